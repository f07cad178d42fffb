// Package checkout sequences a self-checkout session: cart completion, the
// restricted-item branch, automated or staff age verification, and payment.
//
// A Workflow is driven by discrete intents and is not safe for concurrent
// use. The kiosk loop owns it and applies every intent and estimator result
// from one goroutine.
package checkout

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teslashibe/go-checkout/internal/log"
	"github.com/teslashibe/go-checkout/pkg/cart"
	"github.com/teslashibe/go-checkout/pkg/staff"
)

var (
	// ErrInvalidTransition is returned for an intent the current state does
	// not accept.
	ErrInvalidTransition = errors.New("checkout: invalid transition")

	// ErrEmptyCart is returned when proceeding with nothing scanned.
	ErrEmptyCart = errors.New("checkout: cart is empty")
)

// Camera is the automated age check resource. Start acquires the frame
// source and begins estimating; Stop releases it and must tolerate being
// called when already stopped.
type Camera interface {
	Start() error
	Stop() error
}

// Recorder receives workflow telemetry.
type Recorder interface {
	Transition(from, to State)
	Outcome(kind OutcomeKind)
}

type nopRecorder struct{}

func (nopRecorder) Transition(State, State) {}
func (nopRecorder) Outcome(OutcomeKind)     {}

// Transition is one entry in the session history.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Event is delivered to the listener after every change the UI should render.
type Event struct {
	SessionID string
	Transition
}

// Transition reasons.
const (
	ReasonProceed           = "proceed"
	ReasonNoRestricted      = "no_restricted_items"
	ReasonRestricted        = "restricted_item_present"
	ReasonChoseAI           = "chose_ai"
	ReasonChoseStaff        = "chose_staff"
	ReasonCameraUnavailable = "camera_unavailable"
	ReasonAgePassed         = "age_passed"
	ReasonUnderage          = "estimate_below_minimum"
	ReasonCancelled         = "ai_cancelled"
	ReasonTimeout           = "ai_timeout"
	ReasonCodeAccepted      = "code_accepted"
	ReasonCodeRejected      = "code_rejected"
	ReasonStaffAdult        = "staff_adult"
	ReasonStaffMinor        = "staff_minor"
	ReasonItemsRemoved      = "restricted_items_removed"
	ReasonPaid              = "paid"
	ReasonScanned           = "scanned"
	ReasonReset             = "reset"
)

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// WithListener registers fn for state-change events.
func WithListener(fn func(Event)) Option {
	return func(w *Workflow) { w.listener = fn }
}

// WithRecorder sets the telemetry sink.
func WithRecorder(r Recorder) Option {
	return func(w *Workflow) { w.recorder = r }
}

// Workflow is the checkout state machine for one kiosk.
type Workflow struct {
	cfg      Config
	verifier *staff.Verifier
	camera   Camera
	logger   *slog.Logger
	now      func() time.Time
	listener func(Event)
	recorder Recorder

	// session state, replaced on Reset
	sessionID     string
	state         State
	cart          *cart.Cart
	required      bool
	restricted    []string
	outcome       *Outcome
	cameraActive  bool
	aiStartedAt   time.Time
	lastEstimate  *int
	staffAttempts int
	codeRejected  bool
	receipt       *Receipt
	history       []Transition
}

// New creates a workflow in Scanning with an empty cart. A nil camera makes
// the automated check unavailable; choosing it routes straight to staff.
func New(cfg Config, verifier *staff.Verifier, camera Camera, opts ...Option) *Workflow {
	w := &Workflow{
		cfg:      cfg,
		verifier: verifier,
		camera:   camera,
		logger:   log.Component("checkout"),
		now:      time.Now,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.verifier == nil {
		w.verifier = staff.NewVerifier(staff.DefaultCode)
	}
	w.newSession()
	return w
}

func (w *Workflow) newSession() {
	w.sessionID = uuid.NewString()
	w.state = Scanning
	w.cart = cart.New()
	w.required = false
	w.restricted = nil
	w.outcome = nil
	w.cameraActive = false
	w.aiStartedAt = time.Time{}
	w.lastEstimate = nil
	w.staffAttempts = 0
	w.codeRejected = false
	w.receipt = nil
	w.history = nil
	w.logger.Info("session started", "session", w.sessionID)
}

// State returns the current state.
func (w *Workflow) State() State { return w.state }

// SessionID identifies the current session.
func (w *Workflow) SessionID() string { return w.sessionID }

// Outcome returns the verification outcome, or nil if none exists yet.
func (w *Workflow) Outcome() *Outcome { return w.outcome }

// Receipt returns the confirmation once Completed.
func (w *Workflow) Receipt() *Receipt { return w.receipt }

// Total returns the current cart total.
func (w *Workflow) Total() decimal.Decimal { return w.cart.Total() }

// History returns the transitions of the current session.
func (w *Workflow) History() []Transition {
	out := make([]Transition, len(w.history))
	copy(out, w.history)
	return out
}

// Visited reports whether the session has been in s.
func (w *Workflow) Visited(s State) bool {
	if s == Scanning {
		return true
	}
	for _, t := range w.history {
		if t.To == s {
			return true
		}
	}
	return false
}

func (w *Workflow) invalid(intent Intent) error {
	return fmt.Errorf("%w: %s in %s", ErrInvalidTransition, intent, w.state)
}

// Scan adds a product to the cart. Only Scanning accepts scans.
func (w *Workflow) Scan(p cart.Product) error {
	if w.state != Scanning {
		return w.invalid(IntentScan)
	}
	w.cart.Scan(p)
	w.logger.Debug("item scanned", "product", p.Name, "restricted", p.Restricted, "total", w.Total().StringFixed(2))
	w.notify(Transition{From: w.state, To: w.state, Reason: ReasonScanned, At: w.now()})
	return nil
}

// RequestProceed freezes the cart and takes the restricted-item branch. The
// branch is decided here once per session.
func (w *Workflow) RequestProceed() error {
	if w.state != Scanning {
		return w.invalid(IntentProceed)
	}
	if w.cart.Len() == 0 {
		return ErrEmptyCart
	}
	w.enter(ProceedPending, ReasonProceed)

	w.required = w.cart.HasRestrictedItem()
	if !w.required {
		w.enter(PaymentReady, ReasonNoRestricted)
		return nil
	}
	w.restricted = w.cart.RestrictedNames()
	w.enter(ChoosingVerification, ReasonRestricted)
	return nil
}

// ChooseAI starts the camera check. If the camera cannot start the session
// falls through to the staff path.
func (w *Workflow) ChooseAI() error {
	if w.state != ChoosingVerification {
		return w.invalid(IntentChooseAI)
	}
	if w.camera == nil {
		w.logger.Warn("no camera configured, using staff verification")
		w.enter(StaffFlow, ReasonCameraUnavailable)
		return nil
	}
	if err := w.camera.Start(); err != nil {
		w.logger.Warn("camera start failed, using staff verification", "error", err)
		w.enter(StaffFlow, ReasonCameraUnavailable)
		return nil
	}
	w.cameraActive = true
	w.aiStartedAt = w.now()
	w.enter(AIChecking, ReasonChoseAI)
	return nil
}

// ChooseStaff goes to the staff code prompt.
func (w *Workflow) ChooseStaff() error {
	if w.state != ChoosingVerification {
		return w.invalid(IntentChooseStaff)
	}
	w.enter(StaffFlow, ReasonChoseStaff)
	return nil
}

// CancelAI stops the camera and falls back to staff.
func (w *Workflow) CancelAI() error {
	if w.state != AIChecking {
		return w.invalid(IntentCancelAI)
	}
	w.stopCamera()
	w.enter(StaffFlow, ReasonCancelled)
	return nil
}

// AgeDetected applies an automated estimate. Estimates that arrive outside
// AIChecking are stale and dropped.
func (w *Workflow) AgeDetected(years int) error {
	if w.state != AIChecking {
		w.logger.Debug("discarding estimate outside ai check", "age", years, "state", w.state)
		return fmt.Errorf("%w: age estimate in %s", ErrInvalidTransition, w.state)
	}
	w.lastEstimate = &years
	w.stopCamera()

	if years >= w.cfg.MinimumAutoPassAge {
		w.resolve(passed(years, w.now()))
		w.enter(PaymentReady, ReasonAgePassed)
		return nil
	}
	w.logger.Info("estimate below minimum age", "age", years, "minimum", w.cfg.MinimumAutoPassAge)
	w.enter(StaffFlow, ReasonUnderage)
	return nil
}

// Tick enforces the AI check timeout.
func (w *Workflow) Tick(now time.Time) {
	if w.state != AIChecking || w.cfg.AICheckTimeout <= 0 {
		return
	}
	if now.Sub(w.aiStartedAt) < w.cfg.AICheckTimeout {
		return
	}
	w.logger.Warn("no conclusive age estimate", "waited", now.Sub(w.aiStartedAt))
	w.stopCamera()
	w.enter(StaffFlow, ReasonTimeout)
}

// SubmitStaffCode checks a staff code. A wrong code keeps the prompt open
// and is not an error.
func (w *Workflow) SubmitStaffCode(code string) (bool, error) {
	if w.state != StaffFlow {
		return false, w.invalid(IntentStaffCode)
	}
	w.staffAttempts++
	if !w.verifier.Verify(code) {
		w.codeRejected = true
		w.logger.Warn("staff code rejected", "attempts", w.staffAttempts)
		w.notify(Transition{From: StaffFlow, To: StaffFlow, Reason: ReasonCodeRejected, At: w.now()})
		return false, nil
	}
	w.codeRejected = false
	w.enter(AwaitingStaffDecision, ReasonCodeAccepted)
	return true, nil
}

// StaffDecision records the staff member's call. A minor decision strips
// every restricted product from the cart before payment.
func (w *Workflow) StaffDecision(adult bool) error {
	if w.state != AwaitingStaffDecision {
		return w.invalid(IntentStaffDecision)
	}
	w.resolve(overridden(adult, w.now()))
	if adult {
		w.enter(PaymentReady, ReasonStaffAdult)
		return nil
	}

	w.enter(RestrictedItemRemoved, ReasonStaffMinor)
	removed := 0
	for _, name := range w.restricted {
		removed += w.cart.RemoveByName(name)
	}
	w.logger.Info("restricted items removed", "products", w.restricted, "entries", removed, "total", w.Total().StringFixed(2))
	w.enter(PaymentReady, ReasonItemsRemoved)
	return nil
}

// RequestPay completes the session and issues the receipt.
func (w *Workflow) RequestPay() error {
	if w.state != PaymentReady {
		return w.invalid(IntentPay)
	}
	w.receipt = newReceipt(w.sessionID, w.cart, w.outcome, w.now())
	w.enter(Completed, ReasonPaid)
	return nil
}

// Reset ends the current session from any state and starts a new one. An
// unresolved verification is recorded as Failed.
func (w *Workflow) Reset() {
	prev, id := w.state, w.sessionID
	w.stopCamera()
	if w.required && w.outcome == nil {
		w.resolve(failed(w.now()))
	}
	w.logger.Info("session reset", "session", id, "from", prev)
	w.newSession()
	w.recorder.Transition(prev, Scanning)
	w.notify(Transition{From: prev, To: Scanning, Reason: ReasonReset, At: w.now()})
}

func (w *Workflow) enter(to State, reason string) {
	t := Transition{From: w.state, To: to, Reason: reason, At: w.now()}
	w.state = to
	w.history = append(w.history, t)
	w.recorder.Transition(t.From, t.To)
	w.logger.Info("checkout transition", "session", w.sessionID, "from", t.From, "to", t.To, "reason", reason)
	w.notify(t)
}

func (w *Workflow) resolve(o *Outcome) {
	if w.outcome != nil {
		return
	}
	w.outcome = o
	w.recorder.Outcome(o.Kind)
	w.logger.Info("verification outcome", "session", w.sessionID, "outcome", o.Kind)
}

func (w *Workflow) stopCamera() {
	if !w.cameraActive {
		return
	}
	w.cameraActive = false
	if err := w.camera.Stop(); err != nil {
		w.logger.Warn("camera stop failed", "error", err)
	}
}

func (w *Workflow) notify(t Transition) {
	if w.listener != nil {
		w.listener(Event{SessionID: w.sessionID, Transition: t})
	}
}
