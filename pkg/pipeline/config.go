package pipeline

import (
	"errors"
	"time"

	"github.com/teslashibe/go-checkout/pkg/vision"
)

// Config holds the tunable parameters of the frame pipeline.
type Config struct {
	// Timing
	WarmUp          time.Duration // Frames are shown but not evaluated for this long
	TickInterval    time.Duration // Frame loop period
	EstimateTimeout time.Duration // Upper bound on one estimator call

	// Gating
	SharpnessThreshold float64 // Laplacian variance a frame must exceed

	// Estimator input
	Crop vision.CropConfig
}

// DefaultConfig returns the kiosk defaults: 3s warm-up at 30 Hz.
func DefaultConfig() Config {
	return Config{
		WarmUp:             3 * time.Second,
		TickInterval:       time.Second / 30,
		EstimateTimeout:    10 * time.Second,
		SharpnessThreshold: vision.DefaultSharpnessThreshold,
		Crop:               vision.DefaultCropConfig(),
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if c.WarmUp < 0 {
		errs = append(errs, errors.New("pipeline: warm-up must not be negative"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, errors.New("pipeline: tick interval must be positive"))
	}
	if c.EstimateTimeout <= 0 {
		errs = append(errs, errors.New("pipeline: estimate timeout must be positive"))
	}
	if c.SharpnessThreshold < 0 {
		errs = append(errs, errors.New("pipeline: sharpness threshold must not be negative"))
	}
	if c.Crop.Size <= 0 {
		errs = append(errs, errors.New("pipeline: crop size must be positive"))
	}
	return errors.Join(errs...)
}
