package checkout

import (
	"errors"
	"time"
)

// DefaultMinimumAge is the lowest estimated age that passes automatically.
const DefaultMinimumAge = 18

// Config holds workflow settings.
type Config struct {
	// MinimumAutoPassAge is compared against estimates with >=.
	MinimumAutoPassAge int

	// AICheckTimeout routes a camera check with no passing read to staff.
	// Zero waits indefinitely.
	AICheckTimeout time.Duration
}

// DefaultConfig returns the kiosk defaults.
func DefaultConfig() Config {
	return Config{
		MinimumAutoPassAge: DefaultMinimumAge,
		AICheckTimeout:     45 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.MinimumAutoPassAge <= 0 {
		errs = append(errs, errors.New("minimum auto-pass age must be positive"))
	}
	if c.AICheckTimeout < 0 {
		errs = append(errs, errors.New("ai check timeout must not be negative"))
	}
	return errors.Join(errs...)
}
