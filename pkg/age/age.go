// Package age provides the age estimation contract used by the camera check.
//
// An Estimator receives a square face crop and returns an integer age in
// years. Implementations fail with an error that matches ErrInference when
// no usable face signal can be extracted or the backend is unavailable;
// callers treat that as an inconclusive read, never as a pass.
//
// Example usage:
//
//	est, _ := age.NewClient(
//	    age.WithBaseURL("http://localhost:8090"),
//	    age.WithTimeout(5*time.Second),
//	)
//	defer est.Close()
//
//	years, err := est.Estimate(ctx, crop)
//	if errors.Is(err, age.ErrInference) {
//	    // route to staff
//	}
package age

import (
	"context"
	"image"
)

// Estimator predicts an age from a face crop.
type Estimator interface {
	// Estimate returns the estimated age in whole years.
	Estimate(ctx context.Context, face image.Image) (int, error)

	// Close releases any resources held by the estimator.
	Close() error
}

// MaxAge is the largest age an estimator may report.
const MaxAge = 100

// Valid reports whether years is a plausible estimator output.
func Valid(years int) bool {
	return years >= 0 && years <= MaxAge
}
