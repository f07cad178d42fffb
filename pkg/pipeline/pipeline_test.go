package pipeline

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/teslashibe/go-checkout/internal/log"
	"github.com/teslashibe/go-checkout/pkg/age"
	"github.com/teslashibe/go-checkout/pkg/detection"
	"github.com/teslashibe/go-checkout/pkg/vision"
)

var oneFace = []detection.Detection{{X: 0.3, Y: 0.2, W: 0.4, H: 0.5, Confidence: 0.9}}

func sharpImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			if ((x/4)+(y/4))%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return img
}

func blurryImage() image.Image {
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	for i := range img.Pix {
		img.Pix[i] = 120
	}
	return img
}

// countingLocator wraps a Static locator and counts calls.
type countingLocator struct {
	detection.Static
	calls int
}

func (c *countingLocator) Locate(f vision.Frame) ([]detection.Detection, error) {
	c.calls++
	return c.Static.Locate(f)
}

type fixture struct {
	src     *MockSource
	locator *countingLocator
	est     *age.MockEstimator
	p       *Pipeline
	start   time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		src:     NewMockSource(sharpImage()),
		locator: &countingLocator{Static: detection.Static{Detections: oneFace}},
		est:     age.NewMockEstimator(30),
		start:   time.Unix(1_700_000_000, 0),
	}
	f.p = New(cfg, f.src, f.locator, f.est, WithLogger(log.Discard()))
	f.p.Start(f.start)
	t.Cleanup(func() {
		f.est.Release()
		f.p.Stop()
	})
	return f
}

// at returns a tick time d after the fixture start.
func (f *fixture) at(d time.Duration) time.Time {
	return f.start.Add(d)
}

func noWarmUp() Config {
	cfg := DefaultConfig()
	cfg.WarmUp = 0
	return cfg
}

func waitResult(t *testing.T, p *Pipeline) Result {
	t.Helper()
	select {
	case res := <-p.Results():
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for estimate result")
		return Result{}
	}
}

func TestWarmUpSkipsEvaluation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WarmUp = 3 * time.Second
	f := newFixture(t, cfg)

	var shown int
	f.p.sink = func(vision.Frame) { shown++ }

	for i := 0; i < 10; i++ {
		f.p.Tick(f.at(time.Duration(i) * 250 * time.Millisecond))
	}

	if f.p.State() != WarmingUp {
		t.Errorf("state = %v, want warming_up", f.p.State())
	}
	if f.locator.calls != 0 {
		t.Errorf("locator called %d times during warm-up", f.locator.calls)
	}
	if shown != 10 {
		t.Errorf("display sink saw %d frames, want 10", shown)
	}

	f.p.Tick(f.at(3 * time.Second))
	if f.p.State() != AwaitingEstimate {
		t.Errorf("after warm-up state = %v, want awaiting_estimate", f.p.State())
	}
}

func TestScanningGates(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		located int
	}{
		{
			name:    "no frame available",
			setup:   func(f *fixture) { f.src.Gap(1) },
			located: 0,
		},
		{
			name:    "no face in frame",
			setup:   func(f *fixture) { f.locator.Detections = nil },
			located: 1,
		},
		{
			name:    "face but blurry",
			setup:   func(f *fixture) { f.src.SetImage(blurryImage()) },
			located: 1,
		},
		{
			name:    "locator error is transient",
			setup:   func(f *fixture) { f.locator.Err = errors.New("model hiccup") },
			located: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, noWarmUp())
			tc.setup(f)

			f.p.Tick(f.at(0))

			if f.p.State() != Scanning {
				t.Errorf("state = %v, want scanning", f.p.State())
			}
			if f.locator.calls != tc.located {
				t.Errorf("locator calls = %d, want %d", f.locator.calls, tc.located)
			}
			if f.est.Calls() != 0 {
				t.Errorf("estimator called %d times, want 0", f.est.Calls())
			}
		})
	}
}

func TestHeldFaceDispatchesOnce(t *testing.T) {
	f := newFixture(t, noWarmUp())
	f.est.Hold()

	for i := 0; i < 30; i++ {
		f.p.Tick(f.at(time.Duration(i) * 33 * time.Millisecond))
	}

	if f.p.State() != AwaitingEstimate {
		t.Fatalf("state = %v, want awaiting_estimate", f.p.State())
	}
	if f.locator.calls != 1 {
		t.Errorf("locator calls = %d, want 1 while awaiting", f.locator.calls)
	}
	if f.src.Reads() != 30 {
		t.Errorf("frames read = %d, want 30 (display keeps refreshing)", f.src.Reads())
	}

	f.est.Release()
	res := waitResult(t, f.p)
	years, ok := f.p.Resolve(res)
	if !ok || years != 30 {
		t.Fatalf("Resolve = %d, %v; want 30, true", years, ok)
	}
	if f.p.State() != Scanning {
		t.Errorf("state after resolve = %v, want scanning", f.p.State())
	}
	if f.est.Calls() != 1 {
		t.Errorf("estimator calls = %d, want 1", f.est.Calls())
	}
}

func TestEstimateFailureReturnsToScanning(t *testing.T) {
	f := newFixture(t, noWarmUp())
	f.est.SetResult(0, age.ErrNoFace)

	f.p.Tick(f.at(0))
	years, ok := f.p.Resolve(waitResult(t, f.p))
	if ok {
		t.Fatalf("failed estimate reported age %d", years)
	}
	if f.p.State() != Scanning {
		t.Fatalf("state = %v, want scanning", f.p.State())
	}

	// The next usable frame tries again
	f.est.SetResult(25, nil)
	f.p.Tick(f.at(33 * time.Millisecond))
	years, ok = f.p.Resolve(waitResult(t, f.p))
	if !ok || years != 25 {
		t.Errorf("retry Resolve = %d, %v; want 25, true", years, ok)
	}
	if f.est.Calls() != 2 {
		t.Errorf("estimator calls = %d, want 2", f.est.Calls())
	}
}

// failureRecorder keeps the errors passed to EstimateFinished.
type failureRecorder struct {
	nopRecorder
	finished []error
}

func (r *failureRecorder) EstimateFinished(_ time.Duration, err error) {
	r.finished = append(r.finished, err)
}

func TestOutOfRangeAgeIsInconclusive(t *testing.T) {
	f := newFixture(t, noWarmUp())
	rec := &failureRecorder{}
	f.p.recorder = rec
	f.est.SetResult(150, nil)

	f.p.Tick(f.at(0))
	if _, ok := f.p.Resolve(waitResult(t, f.p)); ok {
		t.Error("age 150 should not be accepted")
	}
	if len(rec.finished) != 1 || !errors.Is(rec.finished[0], age.ErrOutOfRange) {
		t.Errorf("recorded %v, want one ErrOutOfRange failure", rec.finished)
	}
}

func TestStopWhileInFlight(t *testing.T) {
	f := newFixture(t, noWarmUp())
	f.est.Hold()

	f.p.Tick(f.at(0))
	if !f.p.InFlight() {
		t.Fatal("expected an estimate in flight")
	}

	if err := f.p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := f.p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if f.src.Closes() != 1 {
		t.Errorf("source closed %d times, want exactly 1", f.src.Closes())
	}

	// Cancellation unblocks the held call; its result must be dropped
	res := waitResult(t, f.p)
	if !errors.Is(res.Err, age.ErrInference) {
		t.Errorf("cancelled call error = %v, want inference error", res.Err)
	}
	if _, ok := f.p.Resolve(res); ok {
		t.Error("late result applied after Stop")
	}

	f.p.Tick(f.at(time.Second))
	if f.src.ReadsAfterClose() != 0 {
		t.Errorf("pipeline read %d frames after Stop", f.src.ReadsAfterClose())
	}
	if f.p.State() != Stopped {
		t.Errorf("state = %v, want stopped", f.p.State())
	}
}

func TestStopToleratesCloseError(t *testing.T) {
	f := newFixture(t, noWarmUp())
	f.src.FailClose(errors.New("already released"))

	if err := f.p.Stop(); err == nil {
		t.Error("expected close error to be reported")
	}
	if f.p.State() != Stopped {
		t.Errorf("state = %v, want stopped", f.p.State())
	}
	if err := f.p.Stop(); err != nil {
		t.Errorf("second Stop should be a silent no-op, got %v", err)
	}
}

func TestStaleResultIgnored(t *testing.T) {
	f := newFixture(t, noWarmUp())
	f.est.Hold()
	f.p.Tick(f.at(0))

	if _, ok := f.p.Resolve(Result{Seq: 99, Age: 40}); ok {
		t.Error("result for another dispatch was applied")
	}
	if f.p.State() != AwaitingEstimate {
		t.Errorf("state = %v, want awaiting_estimate", f.p.State())
	}
}

func TestAtMostOneEstimateInFlight(t *testing.T) {
	f := newFixture(t, noWarmUp())
	f.est.SetDelay(3 * time.Millisecond)

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(300 * time.Millisecond)

	resolved := 0
	for done := false; !done; {
		select {
		case now := <-ticker.C:
			f.p.Tick(now)
		case res := <-f.p.Results():
			if _, ok := f.p.Resolve(res); ok {
				resolved++
			}
		case <-deadline:
			done = true
		}
	}

	if resolved == 0 {
		t.Fatal("no estimates completed")
	}
	if f.est.MaxInFlight() != 1 {
		t.Errorf("max concurrent estimates = %d, want 1", f.est.MaxInFlight())
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	cfg := DefaultConfig()
	cfg.TickInterval = 0
	cfg.Crop.Size = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error")
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		WarmingUp:        "warming_up",
		Scanning:         "scanning",
		AwaitingEstimate: "awaiting_estimate",
		Stopped:          "stopped",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
