package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/teslashibe/go-checkout/pkg/cart"
)

// Item is a cart line as rendered to the UI.
type Item struct {
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Restricted bool            `json:"restricted"`
}

func items(c *cart.Cart) []Item {
	entries := c.Entries()
	out := make([]Item, len(entries))
	for i, e := range entries {
		out[i] = Item{Name: e.Product.Name, Price: e.Product.Price, Restricted: e.Product.Restricted}
	}
	return out
}

// Receipt is the confirmation shown at Completed. It is never persisted.
type Receipt struct {
	SessionID   string          `json:"session_id"`
	Items       []Item          `json:"items"`
	Total       decimal.Decimal `json:"total"`
	Outcome     *Outcome        `json:"outcome,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

func newReceipt(sessionID string, c *cart.Cart, o *Outcome, at time.Time) *Receipt {
	return &Receipt{
		SessionID:   sessionID,
		Items:       items(c),
		Total:       c.Total(),
		Outcome:     o,
		CompletedAt: at,
	}
}

// Snapshot is the render model of the current session.
type Snapshot struct {
	SessionID            string          `json:"session_id"`
	State                State           `json:"state"`
	Items                []Item          `json:"items"`
	Total                decimal.Decimal `json:"total"`
	Enabled              []Intent        `json:"enabled"`
	VerificationRequired bool            `json:"verification_required"`
	Outcome              *Outcome        `json:"outcome,omitempty"`
	CameraActive         bool            `json:"camera_active"`
	LastEstimate         *int            `json:"last_estimate,omitempty"`
	StaffAttempts        int             `json:"staff_attempts"`
	CodeRejected         bool            `json:"code_rejected"`
	Receipt              *Receipt        `json:"receipt,omitempty"`
}

// Snapshot captures the session for rendering.
func (w *Workflow) Snapshot() Snapshot {
	return Snapshot{
		SessionID:            w.sessionID,
		State:                w.state,
		Items:                items(w.cart),
		Total:                w.cart.Total(),
		Enabled:              w.Enabled(),
		VerificationRequired: w.required,
		Outcome:              w.outcome,
		CameraActive:         w.cameraActive,
		LastEstimate:         w.lastEstimate,
		StaffAttempts:        w.staffAttempts,
		CodeRejected:         w.codeRejected,
		Receipt:              w.receipt,
	}
}

// Enabled lists the intents the current state accepts.
func (w *Workflow) Enabled() []Intent {
	var out []Intent
	for _, in := range stateIntents[w.state] {
		if in == IntentProceed && w.cart.Len() == 0 {
			continue
		}
		out = append(out, in)
	}
	return append(out, IntentReset)
}

// Allows reports whether intent is currently enabled.
func (w *Workflow) Allows(intent Intent) bool {
	for _, in := range w.Enabled() {
		if in == intent {
			return true
		}
	}
	return false
}
