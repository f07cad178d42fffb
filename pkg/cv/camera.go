package cv

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/teslashibe/go-checkout/pkg/vision"
	"gocv.io/x/gocv"
)

// CameraConfig selects and configures the capture device.
type CameraConfig struct {
	Device    string `json:"device"`    // Index ("0") or path/URL
	Width     int    `json:"width"`     // Requested frame width in pixels
	Height    int    `json:"height"`    // Requested frame height in pixels
	Framerate int    `json:"framerate"` // Requested FPS
	Flip      bool   `json:"flip"`      // Mirror both axes for display
}

// DefaultCameraConfig returns the 640x480 mirrored webcam setup.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Device:    "0",
		Width:     640,
		Height:    480,
		Framerate: 30,
		Flip:      true,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c CameraConfig) Validate() []string {
	var errors []string
	if c.Device == "" {
		errors = append(errors, "device must not be empty")
	}
	if c.Width < 160 || c.Width > 4096 {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > 2160 {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	return errors
}

// Camera is a FrameSource reading from an OpenCV VideoCapture.
// Close is idempotent.
type Camera struct {
	cfg     CameraConfig
	capture *gocv.VideoCapture
	raw     gocv.Mat
	flipped gocv.Mat
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	seq    uint64
}

// OpenCamera opens the configured device.
func OpenCamera(cfg CameraConfig, logger *slog.Logger) (*Camera, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var device interface{} = cfg.Device
	if idx, err := strconv.Atoi(cfg.Device); err == nil {
		device = idx
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", cfg.Device, err)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	logger = logger.With("component", "cv.camera", "device", cfg.Device)
	logger.Info("camera opened", "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)

	return &Camera{
		cfg:     cfg,
		capture: capture,
		raw:     gocv.NewMat(),
		flipped: gocv.NewMat(),
		logger:  logger,
	}, nil
}

// Read grabs one frame. It returns false when the device has nothing to
// give, which callers treat as a transient gap.
func (c *Camera) Read() (vision.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return vision.Frame{}, false
	}
	if ok := c.capture.Read(&c.raw); !ok || c.raw.Empty() {
		return vision.Frame{}, false
	}

	src := c.raw
	if c.cfg.Flip {
		gocv.Flip(c.raw, &c.flipped, -1)
		src = c.flipped
	}

	img, err := src.ToImage()
	if err != nil {
		c.logger.Debug("frame conversion failed", "error", err)
		return vision.Frame{}, false
	}

	c.seq++
	return vision.Frame{Image: img, Seq: c.seq, CapturedAt: time.Now()}, true
}

// Close releases the device. Calling it again is a no-op.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.raw.Close()
	c.flipped.Close()
	c.logger.Info("camera released")
	return c.capture.Close()
}
