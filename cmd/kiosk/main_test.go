package main

import (
	"testing"
	"time"

	"github.com/teslashibe/go-checkout/internal/config"
)

func TestParseFlagsEnvOverrides(t *testing.T) {
	t.Setenv(config.EnvAICheckTimeout, "20s")
	t.Setenv(config.EnvFPS, "10")
	t.Setenv(config.EnvStaffCode, "4711")

	cfg := parseFlags(nil)

	if cfg.Kiosk.Checkout.AICheckTimeout != 20*time.Second {
		t.Errorf("AICheckTimeout = %v, want 20s", cfg.Kiosk.Checkout.AICheckTimeout)
	}
	if cfg.Kiosk.Pipeline.TickInterval != 100*time.Millisecond {
		t.Errorf("TickInterval = %v, want 100ms", cfg.Kiosk.Pipeline.TickInterval)
	}
	if cfg.Kiosk.StaffCode != "4711" {
		t.Errorf("StaffCode = %q, want 4711", cfg.Kiosk.StaffCode)
	}
}

func TestParseFlagsBeatEnv(t *testing.T) {
	t.Setenv(config.EnvAICheckTimeout, "20s")
	t.Setenv(config.EnvFPS, "10")

	cfg := parseFlags([]string{"-ai-timeout", "0", "-fps", "25"})

	if cfg.Kiosk.Checkout.AICheckTimeout != 0 {
		t.Errorf("AICheckTimeout = %v, want 0 from flag", cfg.Kiosk.Checkout.AICheckTimeout)
	}
	if cfg.Kiosk.Pipeline.TickInterval != 40*time.Millisecond {
		t.Errorf("TickInterval = %v, want 40ms", cfg.Kiosk.Pipeline.TickInterval)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	cfg := parseFlags(nil)

	if cfg.Kiosk.Checkout.AICheckTimeout != 45*time.Second {
		t.Errorf("AICheckTimeout = %v, want 45s", cfg.Kiosk.Checkout.AICheckTimeout)
	}
	if cfg.Kiosk.Pipeline.TickInterval != time.Second/30 {
		t.Errorf("TickInterval = %v, want 1/30s", cfg.Kiosk.Pipeline.TickInterval)
	}
}
