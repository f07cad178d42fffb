package checkout

import (
	"fmt"
	"time"
)

// OutcomeKind tags a VerificationOutcome.
type OutcomeKind int

const (
	// Passed means the automated estimate met the minimum age.
	Passed OutcomeKind = iota + 1
	// Failed means verification was required but never resolved.
	Failed
	// Overridden means staff made the decision.
	Overridden
)

func (k OutcomeKind) String() string {
	switch k {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Overridden:
		return "overridden"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes an outcome kind name.
func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for _, kind := range []OutcomeKind{Passed, Failed, Overridden} {
		if kind.String() == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("checkout: unknown outcome %q", b)
}

// Outcome is the result of age verification for one session. It is created
// at most once and never changed.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	// EstimatedAge is set for Passed.
	EstimatedAge *int `json:"estimated_age,omitempty"`
	// Adult is the staff decision, set for Overridden.
	Adult     *bool     `json:"adult,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

func passed(age int, at time.Time) *Outcome {
	return &Outcome{Kind: Passed, EstimatedAge: &age, DecidedAt: at}
}

func overridden(adult bool, at time.Time) *Outcome {
	return &Outcome{Kind: Overridden, Adult: &adult, DecidedAt: at}
}

func failed(at time.Time) *Outcome {
	return &Outcome{Kind: Failed, DecidedAt: at}
}

// AllowsRestricted reports whether restricted items may be sold.
func (o *Outcome) AllowsRestricted() bool {
	if o == nil {
		return false
	}
	switch o.Kind {
	case Passed:
		return true
	case Overridden:
		return o.Adult != nil && *o.Adult
	default:
		return false
	}
}
