// Package metrics exposes Prometheus collectors for the frame pipeline and
// the checkout workflow. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teslashibe/go-checkout/pkg/age"
	"github.com/teslashibe/go-checkout/pkg/checkout"
)

const namespace = "kiosk"

// Metrics implements pipeline.Recorder and checkout.Recorder.
type Metrics struct {
	FramesRead       prometheus.Counter
	FramesRejected   *prometheus.CounterVec // reason: warmup, busy, no_face, blurry, ...
	EstimatesStarted prometheus.Counter
	EstimatesFailed  *prometheus.CounterVec // kind: no_face, inference, timeout
	EstimateLatency  prometheus.Histogram

	Transitions *prometheus.CounterVec
	Outcomes    *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in the binary and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_read_total",
			Help:      "Frames read from the camera",
		}),
		FramesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Frames not sent for age estimation, by reason",
		}, []string{"reason"}),
		EstimatesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "age_estimates_total",
			Help:      "Age estimator calls dispatched",
		}),
		EstimatesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "age_estimate_failures_total",
			Help:      "Age estimator calls that produced no usable age",
		}, []string{"kind"}),
		EstimateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "age_estimate_duration_seconds",
			Help:      "Age estimator call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_transitions_total",
			Help:      "Checkout workflow transitions",
		}, []string{"from", "to"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_outcomes_total",
			Help:      "Age verification outcomes by kind",
		}, []string{"kind"}),
	}
}

// FrameRead counts a frame pulled from the source.
func (m *Metrics) FrameRead() {
	if m != nil {
		m.FramesRead.Inc()
	}
}

// FrameRejected counts a frame skipped by the gates.
func (m *Metrics) FrameRejected(reason string) {
	if m != nil {
		m.FramesRejected.WithLabelValues(reason).Inc()
	}
}

// EstimateStarted counts a dispatched estimator call.
func (m *Metrics) EstimateStarted() {
	if m != nil {
		m.EstimatesStarted.Inc()
	}
}

// EstimateFinished records latency and, on failure, the failure kind.
func (m *Metrics) EstimateFinished(latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.EstimateLatency.Observe(latency.Seconds())
	if err != nil {
		m.EstimatesFailed.WithLabelValues(failureKind(err)).Inc()
	}
}

// Transition counts a workflow state change.
func (m *Metrics) Transition(from, to checkout.State) {
	if m != nil {
		m.Transitions.WithLabelValues(from.String(), to.String()).Inc()
	}
}

// Outcome counts a verification outcome.
func (m *Metrics) Outcome(kind checkout.OutcomeKind) {
	if m != nil {
		m.Outcomes.WithLabelValues(kind.String()).Inc()
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, age.ErrNoFace):
		return "no_face"
	case errors.Is(err, age.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "inference"
	}
}
