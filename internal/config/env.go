// Package config provides environment helpers for the kiosk commands.
// Flags are parsed in cmd/; these helpers only apply KIOSK_* overrides.
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variable names understood by the kiosk.
const (
	EnvPort           = "KIOSK_PORT"
	EnvStaffCode      = "KIOSK_STAFF_CODE"
	EnvCatalog        = "KIOSK_CATALOG"
	EnvLogLevel       = "KIOSK_LOG_LEVEL"
	EnvCameraDevice   = "KIOSK_CAMERA_DEVICE"
	EnvFaceModel      = "KIOSK_FACE_MODEL"
	EnvAgeModel       = "KIOSK_AGE_MODEL"
	EnvAgeURL         = "KIOSK_AGE_URL"
	EnvAgeAPIKey      = "KIOSK_AGE_API_KEY"
	EnvMinimumAge     = "KIOSK_MINIMUM_AGE"
	EnvAICheckTimeout = "KIOSK_AI_TIMEOUT"
	EnvWarmUp         = "KIOSK_WARMUP"
	EnvFPS            = "KIOSK_FPS"
	EnvSharpness      = "KIOSK_SHARPNESS"
)

// String returns the value of key, or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns key parsed as an int. Unparseable values fall back to def.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Float returns key parsed as a float64. Unparseable values fall back to def.
func Float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// Duration returns key parsed with time.ParseDuration ("3s", "250ms").
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
