package checkout

import "fmt"

// State is a checkout workflow state.
type State int

const (
	Scanning State = iota
	ProceedPending
	ChoosingVerification
	AIChecking
	StaffFlow
	AwaitingStaffDecision
	RestrictedItemRemoved
	PaymentReady
	Completed
)

var stateNames = [...]string{
	Scanning:              "scanning",
	ProceedPending:        "proceed_pending",
	ChoosingVerification:  "choosing_verification",
	AIChecking:            "ai_checking",
	StaffFlow:             "staff_flow",
	AwaitingStaffDecision: "awaiting_staff_decision",
	RestrictedItemRemoved: "restricted_item_removed",
	PaymentReady:          "payment_ready",
	Completed:             "completed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("checkout: unknown state %q", b)
}

// Intent names a user action sent across the UI boundary.
type Intent string

const (
	IntentScan          Intent = "scan"
	IntentProceed       Intent = "proceed"
	IntentChooseAI      Intent = "choose_ai"
	IntentChooseStaff   Intent = "choose_staff"
	IntentCancelAI      Intent = "cancel_ai"
	IntentStaffCode     Intent = "staff_code"
	IntentStaffDecision Intent = "staff_decision"
	IntentPay           Intent = "pay"
	IntentReset         Intent = "reset"
)

// stateIntents lists what each state accepts, apart from reset which every
// state accepts. Scanning only offers proceed once the cart has an entry.
var stateIntents = map[State][]Intent{
	Scanning:              {IntentScan, IntentProceed},
	ChoosingVerification:  {IntentChooseAI, IntentChooseStaff},
	AIChecking:            {IntentCancelAI},
	StaffFlow:             {IntentStaffCode},
	AwaitingStaffDecision: {IntentStaffDecision},
	PaymentReady:          {IntentPay},
}
