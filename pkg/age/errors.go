package age

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrInference matches every estimation failure.
	ErrInference = errors.New("age: inference failed")

	// ErrNoFace is returned when the crop carries no usable face signal.
	ErrNoFace = errors.New("age: no usable face signal")

	// ErrOutOfRange is returned when an estimate falls outside 0..MaxAge.
	ErrOutOfRange = errors.New("age: estimate out of range")

	// ErrNoEndpoint is returned when a remote estimator has no base URL.
	ErrNoEndpoint = errors.New("age: endpoint required")

	// ErrNoModel is returned when a local estimator has no model file.
	ErrNoModel = errors.New("age: model required")
)

// InferenceError wraps an estimation failure with provider context.
// errors.Is(err, ErrInference) is true for every InferenceError.
type InferenceError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	return fmt.Sprintf("age [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Is makes every InferenceError match ErrInference.
func (e *InferenceError) Is(target error) bool {
	return target == ErrInference
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InferenceError
	if errors.As(err, &ie) {
		return err
	}
	return &InferenceError{Provider: provider, Err: err}
}

// APIError represents an error response from a remote estimator.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for rate limits (429) and server errors (5xx).
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}
