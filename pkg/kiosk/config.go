package kiosk

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-checkout/pkg/checkout"
	"github.com/teslashibe/go-checkout/pkg/pipeline"
	"github.com/teslashibe/go-checkout/pkg/staff"
)

// Config aggregates the settings of one kiosk.
type Config struct {
	Checkout  checkout.Config
	Pipeline  pipeline.Config
	StaffCode string

	// IntentQueue bounds intents waiting for the loop.
	IntentQueue int
}

// DefaultConfig returns the demo kiosk settings.
func DefaultConfig() Config {
	return Config{
		Checkout:    checkout.DefaultConfig(),
		Pipeline:    pipeline.DefaultConfig(),
		StaffCode:   staff.DefaultCode,
		IntentQueue: 16,
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	if err := c.Checkout.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("checkout: %w", err))
	}
	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.StaffCode == "" {
		errs = append(errs, errors.New("staff code required"))
	}
	if c.IntentQueue < 0 {
		errs = append(errs, errors.New("intent queue must not be negative"))
	}
	return errors.Join(errs...)
}
