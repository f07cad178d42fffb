// Package pipeline runs the camera side of the age check.
//
// A Pipeline is driven by its owner's tick: each Tick pulls one frame, hands
// it to the display sink and, when the pipeline is Scanning, runs face
// location and the sharpness gate. A passing frame moves the pipeline to
// AwaitingEstimate and starts exactly one estimator call in the background.
// The call's Result arrives on Results() and must be handed back through
// Resolve on the owner's goroutine; only Resolve leaves AwaitingEstimate.
// That makes "one estimate in flight" a property of the state itself.
//
// Pipeline is not safe for concurrent use. Tick, Resolve and Stop must all be
// called from the same goroutine.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/teslashibe/go-checkout/pkg/age"
	"github.com/teslashibe/go-checkout/pkg/detection"
	"github.com/teslashibe/go-checkout/pkg/vision"
)

// State is the pipeline lifecycle state.
type State int

const (
	WarmingUp State = iota
	Scanning
	AwaitingEstimate
	Stopped
)

func (s State) String() string {
	switch s {
	case WarmingUp:
		return "warming_up"
	case Scanning:
		return "scanning"
	case AwaitingEstimate:
		return "awaiting_estimate"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// FrameSource supplies camera frames. Read returns false when no frame is
// available right now.
type FrameSource interface {
	Read() (vision.Frame, bool)
	Close() error
}

// Result is the outcome of one estimator call.
type Result struct {
	Seq     uint64 // Dispatch number the result belongs to
	Age     int
	Err     error
	Latency time.Duration
}

// Rejection reasons reported to the Recorder.
const (
	RejectWarmUp      = "warmup"
	RejectBusy        = "busy"
	RejectNoFace      = "no_face"
	RejectBlurry      = "blurry"
	RejectLocateError = "locate_error"
	RejectCropError   = "crop_error"
)

// Recorder receives pipeline counters. pkg/metrics provides the Prometheus one.
type Recorder interface {
	FrameRead()
	FrameRejected(reason string)
	EstimateStarted()
	EstimateFinished(latency time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) FrameRead()                            {}
func (nopRecorder) FrameRejected(string)                  {}
func (nopRecorder) EstimateStarted()                      {}
func (nopRecorder) EstimateFinished(time.Duration, error) {}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithFrameSink registers a display callback invoked with every frame read.
// The sink must not keep the frame past the call.
func WithFrameSink(fn func(vision.Frame)) Option {
	return func(p *Pipeline) { p.sink = fn }
}

// Pipeline is the periodic frame loop of one camera check.
type Pipeline struct {
	cfg       Config
	src       FrameSource
	locator   detection.Locator
	estimator age.Estimator
	logger    *slog.Logger
	recorder  Recorder
	sink      func(vision.Frame)

	state     State
	startedAt time.Time
	seq       uint64
	cancel    context.CancelFunc
	results   chan Result
}

// New creates a pipeline in WarmingUp. The pipeline owns src and closes it
// on Stop; locator and estimator are shared and left open.
func New(cfg Config, src FrameSource, locator detection.Locator, estimator age.Estimator, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		src:       src,
		locator:   locator,
		estimator: estimator,
		logger:    slog.Default(),
		recorder:  nopRecorder{},
		state:     WarmingUp,
		results:   make(chan Result, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// Start stamps the beginning of the warm-up period. Ticks before Start use
// the first tick's time instead.
func (p *Pipeline) Start(now time.Time) {
	if p.state != WarmingUp || !p.startedAt.IsZero() {
		return
	}
	p.startedAt = now
	p.logger.Info("pipeline started", "warmup", p.cfg.WarmUp)
}

// State returns the current state.
func (p *Pipeline) State() State {
	return p.state
}

// InFlight reports whether an estimator call is outstanding.
func (p *Pipeline) InFlight() bool {
	return p.state == AwaitingEstimate
}

// Results delivers estimator outcomes. Pass each one to Resolve.
func (p *Pipeline) Results() <-chan Result {
	return p.results
}

// Tick processes one frame.
func (p *Pipeline) Tick(now time.Time) {
	if p.state == Stopped {
		return
	}
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	frame, ok := p.src.Read()
	if !ok {
		return
	}
	p.recorder.FrameRead()
	if p.sink != nil {
		p.sink(frame)
	}

	switch p.state {
	case WarmingUp:
		if now.Sub(p.startedAt) < p.cfg.WarmUp {
			p.recorder.FrameRejected(RejectWarmUp)
			return
		}
		p.state = Scanning
		p.logger.Debug("warm-up complete")
	case AwaitingEstimate:
		p.recorder.FrameRejected(RejectBusy)
		return
	}

	p.scan(frame)
}

// scan runs face location and the sharpness gate and dispatches an estimate
// for the first face when both pass.
func (p *Pipeline) scan(frame vision.Frame) {
	faces, err := p.locator.Locate(frame)
	if err != nil {
		p.recorder.FrameRejected(RejectLocateError)
		p.logger.Debug("face location failed", "error", err)
		return
	}
	if len(faces) == 0 {
		p.recorder.FrameRejected(RejectNoFace)
		return
	}
	if !vision.IsSharp(frame, p.cfg.SharpnessThreshold) {
		p.recorder.FrameRejected(RejectBlurry)
		return
	}

	crop, err := vision.CropFace(frame.Image, faces[0].Rect(frame.Width(), frame.Height()), p.cfg.Crop)
	if err != nil {
		p.recorder.FrameRejected(RejectCropError)
		p.logger.Debug("face crop failed", "error", err)
		return
	}

	p.dispatch(crop)
}

// dispatch moves to AwaitingEstimate and starts the estimator call.
func (p *Pipeline) dispatch(crop *image.RGBA) {
	p.seq++
	seq := p.seq
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.EstimateTimeout)
	p.cancel = cancel
	p.state = AwaitingEstimate
	p.recorder.EstimateStarted()
	p.logger.Debug("estimate dispatched", "seq", seq)

	results := p.results
	estimator := p.estimator
	go func() {
		defer cancel()
		start := time.Now()
		years, err := estimator.Estimate(ctx, crop)
		results <- Result{Seq: seq, Age: years, Err: err, Latency: time.Since(start)}
	}()
}

// Resolve applies an estimator result. It returns the age and true only for
// a successful estimate of the current dispatch; failures and stale results
// return false. A failure returns the pipeline to Scanning so the next
// usable frame triggers a fresh attempt.
func (p *Pipeline) Resolve(res Result) (int, bool) {
	if p.state != AwaitingEstimate || res.Seq != p.seq {
		p.logger.Debug("discarding stale estimate", "seq", res.Seq, "state", p.state)
		return 0, false
	}

	p.cancel = nil
	p.state = Scanning

	err := res.Err
	if err == nil && !age.Valid(res.Age) {
		err = fmt.Errorf("%w: %d", age.ErrOutOfRange, res.Age)
	}
	p.recorder.EstimateFinished(res.Latency, err)

	if err != nil {
		p.logger.Warn("age estimate failed", "seq", res.Seq, "error", err)
		return 0, false
	}

	p.logger.Info("age detected", "age", res.Age, "latency_ms", res.Latency.Milliseconds())
	return res.Age, true
}

// Stop ends the pipeline, cancels an outstanding estimate and closes the
// frame source. Stopping twice is a no-op. A close error is logged and
// returned but leaves the pipeline stopped.
func (p *Pipeline) Stop() error {
	if p.state == Stopped {
		return nil
	}
	prev := p.state
	p.state = Stopped

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	err := p.src.Close()
	if err != nil {
		p.logger.Warn("frame source close failed", "error", err)
	}
	p.logger.Info("pipeline stopped", "from", prev)
	return err
}
