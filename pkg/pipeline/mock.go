package pipeline

import (
	"image"
	"sync"
	"time"

	"github.com/teslashibe/go-checkout/pkg/vision"
)

// MockSource is a FrameSource that serves one fixed image. It counts reads
// and closes so tests can check resource handling.
type MockSource struct {
	mu              sync.Mutex
	img             image.Image
	gaps            int
	seq             uint64
	reads           int
	readsAfterClose int
	closes          int
	closed          bool
	closeErr        error
}

// NewMockSource serves img on every read.
func NewMockSource(img image.Image) *MockSource {
	return &MockSource{img: img}
}

// SetImage changes the image served by subsequent reads.
func (m *MockSource) SetImage(img image.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.img = img
}

// Gap makes the next n reads report no frame.
func (m *MockSource) Gap(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gaps = n
}

// FailClose makes Close return err.
func (m *MockSource) FailClose(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeErr = err
}

// Read returns the configured image unless a gap is pending or the source
// is closed.
func (m *MockSource) Read() (vision.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.readsAfterClose++
		return vision.Frame{}, false
	}
	m.reads++
	if m.gaps > 0 {
		m.gaps--
		return vision.Frame{}, false
	}
	m.seq++
	return vision.Frame{Image: m.img, Seq: m.seq, CapturedAt: time.Now()}, true
}

// Close marks the source closed.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.closed = true
	return m.closeErr
}

// Reads returns the number of reads made while open.
func (m *MockSource) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// ReadsAfterClose returns the number of reads attempted after Close.
func (m *MockSource) ReadsAfterClose() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readsAfterClose
}

// Closes returns how many times Close was called.
func (m *MockSource) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}
