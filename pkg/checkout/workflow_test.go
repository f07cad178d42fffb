package checkout

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-checkout/internal/log"
	"github.com/teslashibe/go-checkout/pkg/cart"
	"github.com/teslashibe/go-checkout/pkg/staff"
)

type fakeCamera struct {
	startErr error
	stopErr  error
	starts   int
	stops    int
}

func (c *fakeCamera) Start() error {
	c.starts++
	return c.startErr
}

func (c *fakeCamera) Stop() error {
	c.stops++
	return c.stopErr
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type countingRecorder struct {
	transitions int
	outcomes    []OutcomeKind
}

func (r *countingRecorder) Transition(State, State)  { r.transitions++ }
func (r *countingRecorder) Outcome(kind OutcomeKind) { r.outcomes = append(r.outcomes, kind) }

type harness struct {
	w      *Workflow
	cam    *fakeCamera
	clock  *fakeClock
	rec    *countingRecorder
	events []Event
	cat    *cart.Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cam:   &fakeCamera{},
		clock: &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		rec:   &countingRecorder{},
		cat:   cart.DefaultCatalog(),
	}
	h.w = New(DefaultConfig(), staff.NewVerifier(staff.DefaultCode), h.cam,
		WithLogger(log.Discard()),
		WithClock(h.clock.Now),
		WithRecorder(h.rec),
		WithListener(func(e Event) { h.events = append(h.events, e) }),
	)
	return h
}

func (h *harness) scan(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		p, err := h.cat.Lookup(name)
		require.NoError(t, err)
		require.NoError(t, h.w.Scan(p))
	}
}

func (h *harness) toChoosing(t *testing.T) {
	t.Helper()
	h.scan(t, "Bread", "Beer")
	require.NoError(t, h.w.RequestProceed())
	require.Equal(t, ChoosingVerification, h.w.State())
}

func TestEndToEndAIPass(t *testing.T) {
	h := newHarness(t)
	h.toChoosing(t)

	require.NoError(t, h.w.ChooseAI())
	assert.Equal(t, AIChecking, h.w.State())
	assert.Equal(t, 1, h.cam.starts)

	require.NoError(t, h.w.AgeDetected(30))
	assert.Equal(t, PaymentReady, h.w.State())
	assert.Equal(t, "5.00", h.w.Total().StringFixed(2))
	assert.Equal(t, 1, h.cam.stops, "camera released on leaving ai check")
	assert.False(t, h.w.Visited(StaffFlow))

	out := h.w.Outcome()
	require.NotNil(t, out)
	assert.Equal(t, Passed, out.Kind)
	require.NotNil(t, out.EstimatedAge)
	assert.Equal(t, 30, *out.EstimatedAge)
	assert.True(t, out.AllowsRestricted())

	require.NoError(t, h.w.RequestPay())
	assert.Equal(t, Completed, h.w.State())
	rc := h.w.Receipt()
	require.NotNil(t, rc)
	assert.Equal(t, h.w.SessionID(), rc.SessionID)
	assert.Len(t, rc.Items, 2)
	assert.Equal(t, "5.00", rc.Total.StringFixed(2))
	assert.Equal(t, []OutcomeKind{Passed}, h.rec.outcomes)
}

func TestEndToEndStaffMinor(t *testing.T) {
	h := newHarness(t)
	h.toChoosing(t)

	require.NoError(t, h.w.ChooseStaff())
	assert.Equal(t, StaffFlow, h.w.State())

	ok, err := h.w.SubmitStaffCode("9999")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StaffFlow, h.w.State())
	assert.True(t, h.w.Snapshot().CodeRejected)

	ok, err = h.w.SubmitStaffCode("0000")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, AwaitingStaffDecision, h.w.State())
	assert.Equal(t, 2, h.w.Snapshot().StaffAttempts)

	require.NoError(t, h.w.StaffDecision(false))
	assert.Equal(t, PaymentReady, h.w.State())
	assert.True(t, h.w.Visited(RestrictedItemRemoved))
	assert.Equal(t, "2.00", h.w.Total().StringFixed(2))

	snap := h.w.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "Bread", snap.Items[0].Name)
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, Overridden, snap.Outcome.Kind)
	assert.False(t, snap.Outcome.AllowsRestricted())
	assert.Equal(t, 0, h.cam.starts, "staff path never touches the camera")
}

func TestPaddedStaffCodeRejected(t *testing.T) {
	for _, code := range []string{" 0000", "0000 ", "0000\n", "\t0000"} {
		t.Run(fmt.Sprintf("%q", code), func(t *testing.T) {
			h := newHarness(t)
			h.toChoosing(t)
			require.NoError(t, h.w.ChooseStaff())

			ok, err := h.w.SubmitStaffCode(code)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, StaffFlow, h.w.State())
			assert.True(t, h.w.Snapshot().CodeRejected)
		})
	}
}

func TestStaffAdultKeepsCart(t *testing.T) {
	h := newHarness(t)
	h.toChoosing(t)
	require.NoError(t, h.w.ChooseStaff())
	_, err := h.w.SubmitStaffCode(staff.DefaultCode)
	require.NoError(t, err)

	require.NoError(t, h.w.StaffDecision(true))
	assert.Equal(t, PaymentReady, h.w.State())
	assert.Equal(t, "5.00", h.w.Total().StringFixed(2))
	assert.False(t, h.w.Visited(RestrictedItemRemoved))
	assert.True(t, h.w.Outcome().AllowsRestricted())
}

func TestAgeThreshold(t *testing.T) {
	for _, years := range []int{0, 12, 17, 18, 19, 45, 100} {
		t.Run(fmt.Sprintf("age_%d", years), func(t *testing.T) {
			h := newHarness(t)
			h.toChoosing(t)
			require.NoError(t, h.w.ChooseAI())
			require.NoError(t, h.w.AgeDetected(years))

			if years >= DefaultMinimumAge {
				assert.Equal(t, PaymentReady, h.w.State(), "age %d", years)
				assert.False(t, h.w.Visited(StaffFlow), "age %d", years)
				return
			}
			assert.Equal(t, StaffFlow, h.w.State(), "age %d", years)
			assert.Nil(t, h.w.Outcome(), "underage estimate leaves decision to staff")
			require.NotNil(t, h.w.Snapshot().LastEstimate)
			assert.Equal(t, 1, h.cam.stops)
		})
	}
}

func TestRemovesAllRestrictedUnits(t *testing.T) {
	h := newHarness(t)
	h.scan(t, "Milk", "Beer", "Beer", "Apple", "Beer")
	require.NoError(t, h.w.RequestProceed())
	require.NoError(t, h.w.ChooseStaff())
	_, err := h.w.SubmitStaffCode("0000")
	require.NoError(t, err)
	require.NoError(t, h.w.StaffDecision(false))

	for _, it := range h.w.Snapshot().Items {
		assert.NotEqual(t, "Beer", it.Name)
	}
	assert.Len(t, h.w.Snapshot().Items, 2)
	assert.Equal(t, "1.70", h.w.Total().StringFixed(2))
}

func TestBranchDecidedOnce(t *testing.T) {
	h := newHarness(t)
	h.scan(t, "Bread")
	require.NoError(t, h.w.RequestProceed())
	require.Equal(t, PaymentReady, h.w.State())

	beer, err := h.cat.Lookup("Beer")
	require.NoError(t, err)
	assert.ErrorIs(t, h.w.Scan(beer), ErrInvalidTransition)

	// Even a mutation behind the workflow's back does not re-branch
	h.w.cart.Scan(beer)
	require.NoError(t, h.w.RequestPay())
	assert.Equal(t, Completed, h.w.State())
	assert.False(t, h.w.Visited(ChoosingVerification))
	assert.Nil(t, h.w.Outcome())
}

func TestCancelAI(t *testing.T) {
	h := newHarness(t)
	h.toChoosing(t)
	require.NoError(t, h.w.ChooseAI())

	require.NoError(t, h.w.CancelAI())
	assert.Equal(t, StaffFlow, h.w.State())
	assert.Equal(t, 1, h.cam.stops)

	// A late estimate has nowhere to go
	assert.ErrorIs(t, h.w.AgeDetected(40), ErrInvalidTransition)
	assert.Equal(t, StaffFlow, h.w.State())
	assert.Nil(t, h.w.Outcome())

	assert.ErrorIs(t, h.w.CancelAI(), ErrInvalidTransition)
	assert.Equal(t, 1, h.cam.stops)
}

func TestCameraStartFailureRoutesToStaff(t *testing.T) {
	h := newHarness(t)
	h.cam.startErr = errors.New("no device")
	h.toChoosing(t)

	require.NoError(t, h.w.ChooseAI())
	assert.Equal(t, StaffFlow, h.w.State())
	assert.False(t, h.w.Visited(AIChecking))
	assert.Equal(t, 0, h.cam.stops)

	last := h.w.History()[len(h.w.History())-1]
	assert.Equal(t, ReasonCameraUnavailable, last.Reason)
}

func TestNoCameraRoutesToStaff(t *testing.T) {
	w := New(DefaultConfig(), nil, nil, WithLogger(log.Discard()))
	p, err := cart.DefaultCatalog().Lookup("Beer")
	require.NoError(t, err)
	require.NoError(t, w.Scan(p))
	require.NoError(t, w.RequestProceed())

	require.NoError(t, w.ChooseAI())
	assert.Equal(t, StaffFlow, w.State())
}

func TestCameraStopErrorTolerated(t *testing.T) {
	h := newHarness(t)
	h.cam.stopErr = errors.New("already closed")
	h.toChoosing(t)
	require.NoError(t, h.w.ChooseAI())

	require.NoError(t, h.w.CancelAI())
	assert.Equal(t, StaffFlow, h.w.State())
}

func TestAICheckTimeout(t *testing.T) {
	h := newHarness(t)
	h.toChoosing(t)
	require.NoError(t, h.w.ChooseAI())

	h.clock.Advance(44 * time.Second)
	h.w.Tick(h.clock.Now())
	assert.Equal(t, AIChecking, h.w.State())

	h.clock.Advance(time.Second)
	h.w.Tick(h.clock.Now())
	assert.Equal(t, StaffFlow, h.w.State())
	assert.Equal(t, 1, h.cam.stops)

	h.w.Tick(h.clock.Now().Add(time.Minute))
	assert.Equal(t, StaffFlow, h.w.State())
}

func TestEmptyCartCannotProceed(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.w.RequestProceed(), ErrEmptyCart)
	assert.Equal(t, Scanning, h.w.State())
	assert.NotContains(t, h.w.Enabled(), IntentProceed)

	h.scan(t, "Apple")
	assert.Contains(t, h.w.Enabled(), IntentProceed)
}

func TestInvalidIntents(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.w.ChooseAI(), ErrInvalidTransition)
	assert.ErrorIs(t, h.w.ChooseStaff(), ErrInvalidTransition)
	assert.ErrorIs(t, h.w.CancelAI(), ErrInvalidTransition)
	assert.ErrorIs(t, h.w.StaffDecision(true), ErrInvalidTransition)
	assert.ErrorIs(t, h.w.RequestPay(), ErrInvalidTransition)
	_, err := h.w.SubmitStaffCode("0000")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, Scanning, h.w.State())
	assert.Empty(t, h.w.History())
}

func TestEnabledIntents(t *testing.T) {
	h := newHarness(t)
	h.toChoosing(t)
	assert.ElementsMatch(t, []Intent{IntentChooseAI, IntentChooseStaff, IntentReset}, h.w.Enabled())

	require.NoError(t, h.w.ChooseAI())
	assert.ElementsMatch(t, []Intent{IntentCancelAI, IntentReset}, h.w.Enabled())
	assert.True(t, h.w.Snapshot().CameraActive)
	assert.True(t, h.w.Allows(IntentCancelAI))
	assert.False(t, h.w.Allows(IntentPay))
}

func TestResetUnresolvedRecordsFailed(t *testing.T) {
	h := newHarness(t)
	h.toChoosing(t)
	require.NoError(t, h.w.ChooseAI())
	first := h.w.SessionID()

	h.w.Reset()

	assert.Equal(t, Scanning, h.w.State())
	assert.NotEqual(t, first, h.w.SessionID())
	assert.Equal(t, 1, h.cam.stops, "reset releases the camera")
	assert.Equal(t, []OutcomeKind{Failed}, h.rec.outcomes)
	assert.Empty(t, h.w.Snapshot().Items)
	assert.Empty(t, h.w.History())
	assert.Nil(t, h.w.Outcome())

	last := h.events[len(h.events)-1]
	assert.Equal(t, ReasonReset, last.Reason)
	assert.Equal(t, AIChecking, last.From)
}

func TestResetAfterCompletion(t *testing.T) {
	h := newHarness(t)
	h.scan(t, "Milk")
	require.NoError(t, h.w.RequestProceed())
	require.NoError(t, h.w.RequestPay())

	h.w.Reset()
	assert.Empty(t, h.rec.outcomes)
	assert.Nil(t, h.w.Receipt())
	assert.Equal(t, Scanning, h.w.State())
}

func TestHistoryAndEvents(t *testing.T) {
	h := newHarness(t)
	h.toChoosing(t)

	hist := h.w.History()
	require.Len(t, hist, 2)
	assert.Equal(t, Transition{From: Scanning, To: ProceedPending, Reason: ReasonProceed, At: h.clock.Now()}, hist[0])
	assert.Equal(t, ChoosingVerification, hist[1].To)
	assert.Equal(t, ReasonRestricted, hist[1].Reason)

	// two scans plus two transitions
	assert.Len(t, h.events, 4)
	for _, e := range h.events {
		assert.Equal(t, h.w.SessionID(), e.SessionID)
	}
	assert.Equal(t, 2, h.rec.transitions)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "awaiting_staff_decision", AwaitingStaffDecision.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.Equal(t, "overridden", Overridden.String())

	b, err := RestrictedItemRemoved.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "restricted_item_removed", string(b))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MinimumAutoPassAge: 0}.Validate())
	assert.Error(t, Config{MinimumAutoPassAge: 18, AICheckTimeout: -time.Second}.Validate())
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.toChoosing(t)
	require.NoError(t, h.w.ChooseStaff())
	_, err := h.w.SubmitStaffCode("0000")
	require.NoError(t, err)
	require.NoError(t, h.w.StaffDecision(true))

	data, err := json.Marshal(h.w.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"payment_ready"`)
	assert.Contains(t, string(data), `"kind":"overridden"`)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, PaymentReady, back.State)
	require.NotNil(t, back.Outcome)
	assert.Equal(t, Overridden, back.Outcome.Kind)
	assert.True(t, back.Total.Equal(h.w.Total()))

	var s State
	assert.Error(t, s.UnmarshalText([]byte("dancing")))
}
