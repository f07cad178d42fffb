package age

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

const providerMock = "mock"

// MockEstimator is a scriptable Estimator for tests and camera-less demos.
// It records how many calls were made and the peak number running at once.
type MockEstimator struct {
	mu    sync.Mutex
	age   int
	err   error
	delay time.Duration
	gate  chan struct{}

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	closed      atomic.Bool
}

// NewMockEstimator returns a mock that answers age for every call.
func NewMockEstimator(age int) *MockEstimator {
	return &MockEstimator{age: age}
}

// SetResult changes the answer for subsequent calls.
func (m *MockEstimator) SetResult(age int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.age, m.err = age, err
}

// SetDelay makes each call sleep for d before answering.
func (m *MockEstimator) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Hold makes calls block until Release is called or their context ends.
func (m *MockEstimator) Hold() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
}

// Release unblocks every call waiting on Hold.
func (m *MockEstimator) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Estimate returns the scripted result.
func (m *MockEstimator) Estimate(ctx context.Context, _ image.Image) (int, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.maxInFlight.Load()
		if n <= peak || m.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	m.mu.Lock()
	age, err, delay, gate := m.age, m.err, m.delay, m.gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, WrapError(providerMock, ctx.Err())
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, WrapError(providerMock, ctx.Err())
		}
	}

	if err != nil {
		return 0, WrapError(providerMock, err)
	}
	return age, nil
}

// Close marks the mock closed.
func (m *MockEstimator) Close() error {
	m.closed.Store(true)
	return nil
}

// Calls returns the number of Estimate calls made.
func (m *MockEstimator) Calls() int { return int(m.calls.Load()) }

// InFlight returns the number of calls currently running.
func (m *MockEstimator) InFlight() int { return int(m.inFlight.Load()) }

// MaxInFlight returns the peak number of concurrent calls observed.
func (m *MockEstimator) MaxInFlight() int { return int(m.maxInFlight.Load()) }

// Closed reports whether Close was called.
func (m *MockEstimator) Closed() bool { return m.closed.Load() }
