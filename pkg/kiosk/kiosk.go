// Package kiosk runs a checkout workflow and its camera pipeline on a single
// goroutine. Intents from the UI, pipeline ticks, and estimator results are
// all serialized through Run, so the workflow, cart, and pipeline are never
// mutated concurrently.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-checkout/internal/log"
	"github.com/teslashibe/go-checkout/pkg/age"
	"github.com/teslashibe/go-checkout/pkg/cart"
	"github.com/teslashibe/go-checkout/pkg/checkout"
	"github.com/teslashibe/go-checkout/pkg/detection"
	"github.com/teslashibe/go-checkout/pkg/metrics"
	"github.com/teslashibe/go-checkout/pkg/pipeline"
	"github.com/teslashibe/go-checkout/pkg/staff"
	"github.com/teslashibe/go-checkout/pkg/vision"
)

var (
	// ErrClosed is returned by Do once Run has returned.
	ErrClosed = errors.New("kiosk: closed")

	// ErrUnknownIntent is returned for an intent kind the kiosk doesn't handle.
	ErrUnknownIntent = errors.New("kiosk: unknown intent")
)

// SourceFactory opens a frame source for one camera check.
type SourceFactory func() (pipeline.FrameSource, error)

// Vision groups the camera check collaborators.
type Vision struct {
	Open      SourceFactory
	Locator   detection.Locator
	Estimator age.Estimator
}

// Intent is a user action from the UI boundary.
type Intent struct {
	Kind    checkout.Intent `json:"kind"`
	Product string          `json:"product,omitempty"`
	EventID string          `json:"event_id,omitempty"`
	Code    string          `json:"code,omitempty"`
	Adult   bool            `json:"adult,omitempty"`
}

// Reply is the result of applying an intent.
type Reply struct {
	Snapshot checkout.Snapshot `json:"snapshot"`
	// Accepted reports the staff code check for IntentStaffCode.
	Accepted bool `json:"accepted"`
	// Duplicate is set when a scan event ID was already applied.
	Duplicate bool `json:"duplicate,omitempty"`
}

type request struct {
	intent Intent
	reply  chan response
}

type response struct {
	reply Reply
	err   error
}

// Option configures a Kiosk.
type Option func(*Kiosk)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kiosk) { k.logger = l }
}

// WithMetrics records pipeline and workflow telemetry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(k *Kiosk) { k.metrics = m }
}

// WithSnapshotSink is called on the loop goroutine after every state change.
func WithSnapshotSink(fn func(checkout.Snapshot)) Option {
	return func(k *Kiosk) { k.snapshotSink = fn }
}

// WithFrameSink receives every camera frame while a check runs. It is
// called on the loop goroutine and must not keep the frame.
func WithFrameSink(fn func(vision.Frame)) Option {
	return func(k *Kiosk) { k.frameSink = fn }
}

// Kiosk owns one checkout lane.
type Kiosk struct {
	cfg     Config
	catalog *cart.Catalog
	vision  *Vision
	logger  *slog.Logger
	metrics *metrics.Metrics

	snapshotSink func(checkout.Snapshot)
	frameSink    func(vision.Frame)

	// loop-owned
	workflow *checkout.Workflow
	pipe     *pipeline.Pipeline
	seen     map[string]bool

	requests chan request
	done     chan struct{}
	running  atomic.Bool
	latest   atomic.Pointer[checkout.Snapshot]
}

// New builds a kiosk. A nil vision disables the camera check; choosing it
// then routes to staff.
func New(cfg Config, catalog *cart.Catalog, vis *Vision, opts ...Option) (*Kiosk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kiosk: invalid config: %w", err)
	}
	if catalog == nil {
		catalog = cart.DefaultCatalog()
	}
	if vis != nil && (vis.Open == nil || vis.Locator == nil || vis.Estimator == nil) {
		return nil, errors.New("kiosk: vision needs a source, locator and estimator")
	}

	k := &Kiosk{
		cfg:      cfg,
		catalog:  catalog,
		vision:   vis,
		logger:   log.Component("kiosk"),
		seen:     make(map[string]bool),
		requests: make(chan request, cfg.IntentQueue),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}

	wopts := []checkout.Option{
		checkout.WithLogger(k.logger.With("stage", "checkout")),
		checkout.WithListener(k.onEvent),
	}
	if k.metrics != nil {
		wopts = append(wopts, checkout.WithRecorder(k.metrics))
	}
	var cam checkout.Camera
	if vis != nil {
		cam = camera{k: k}
	}
	k.workflow = checkout.New(cfg.Checkout, staff.NewVerifier(cfg.StaffCode), cam, wopts...)
	k.store(k.workflow.Snapshot())
	return k, nil
}

// Catalog returns the product catalog.
func (k *Kiosk) Catalog() *cart.Catalog {
	return k.catalog
}

// Snapshot returns the most recent session snapshot. Safe from any
// goroutine.
func (k *Kiosk) Snapshot() checkout.Snapshot {
	return *k.latest.Load()
}

// Run drives the kiosk until ctx is done. It returns nil on cancellation.
func (k *Kiosk) Run(ctx context.Context) error {
	if !k.running.CompareAndSwap(false, true) {
		return errors.New("kiosk: already running")
	}
	defer close(k.done)

	ticker := time.NewTicker(k.cfg.Pipeline.TickInterval)
	defer ticker.Stop()

	k.logger.Info("kiosk running", "tick", k.cfg.Pipeline.TickInterval, "camera", k.vision != nil)
	for {
		// nil when no check runs, which disables the case
		var results <-chan pipeline.Result
		if k.pipe != nil {
			results = k.pipe.Results()
		}

		select {
		case <-ctx.Done():
			k.shutdown()
			return nil
		case now := <-ticker.C:
			k.tick(now)
		case res := <-results:
			k.resolve(res)
		case req := <-k.requests:
			reply, err := k.apply(req.intent)
			req.reply <- response{reply: reply, err: err}
		}
	}
}

// Do applies an intent on the loop and waits for the result.
func (k *Kiosk) Do(ctx context.Context, in Intent) (Reply, error) {
	req := request{intent: in, reply: make(chan response, 1)}
	select {
	case k.requests <- req:
	case <-k.done:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp.reply, resp.err
	case <-k.done:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (k *Kiosk) tick(now time.Time) {
	if k.pipe != nil {
		k.pipe.Tick(now)
	}
	k.workflow.Tick(now)
}

func (k *Kiosk) resolve(res pipeline.Result) {
	if k.pipe == nil {
		return
	}
	years, ok := k.pipe.Resolve(res)
	if !ok {
		return
	}
	if err := k.workflow.AgeDetected(years); err != nil {
		k.logger.Debug("estimate not applied", "error", err)
	}
}

func (k *Kiosk) apply(in Intent) (Reply, error) {
	w := k.workflow
	var (
		err      error
		accepted bool
	)

	switch in.Kind {
	case checkout.IntentScan:
		if in.EventID != "" && k.seen[in.EventID] {
			k.logger.Debug("duplicate scan event", "event", in.EventID)
			return Reply{Snapshot: w.Snapshot(), Duplicate: true}, nil
		}
		var p cart.Product
		if p, err = k.catalog.Lookup(in.Product); err == nil {
			if err = w.Scan(p); err == nil && in.EventID != "" {
				k.seen[in.EventID] = true
			}
		}
	case checkout.IntentProceed:
		err = w.RequestProceed()
	case checkout.IntentChooseAI:
		err = w.ChooseAI()
	case checkout.IntentChooseStaff:
		err = w.ChooseStaff()
	case checkout.IntentCancelAI:
		err = w.CancelAI()
	case checkout.IntentStaffCode:
		accepted, err = w.SubmitStaffCode(in.Code)
	case checkout.IntentStaffDecision:
		err = w.StaffDecision(in.Adult)
	case checkout.IntentPay:
		err = w.RequestPay()
	case checkout.IntentReset:
		w.Reset()
		k.seen = make(map[string]bool)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownIntent, in.Kind)
	}

	return Reply{Snapshot: w.Snapshot(), Accepted: accepted}, err
}

func (k *Kiosk) onEvent(checkout.Event) {
	// Called from inside workflow methods, always on the loop goroutine.
	k.store(k.workflow.Snapshot())
}

func (k *Kiosk) store(s checkout.Snapshot) {
	k.latest.Store(&s)
	if k.snapshotSink != nil {
		k.snapshotSink(s)
	}
}

func (k *Kiosk) shutdown() {
	if k.pipe != nil {
		if err := k.pipe.Stop(); err != nil {
			k.logger.Warn("pipeline stop on shutdown", "error", err)
		}
		k.pipe = nil
	}
	k.logger.Info("kiosk stopped")
}
