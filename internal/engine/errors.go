package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when there are no timestamps to resample.
	ErrEmptyInput = errors.New("no samples to resample")
	// ErrInvalidInterval is returned for a non-positive resampling interval.
	ErrInvalidInterval = errors.New("resampling interval must be positive")
	// ErrInvalidInterpolationLimit is returned for a negative interpolation limit.
	ErrInvalidInterpolationLimit = errors.New("interpolation limit must not be negative")
	// ErrInvalidWindowing is returned for unusable window length, stride or missing ratio.
	ErrInvalidWindowing = errors.New("invalid windowing parameters")
	// ErrInsufficientWindows is returned when no window is left to run through the model.
	ErrInsufficientWindows = errors.New("no windows left for inference")
)

// ModelInferenceError wraps a failure surfaced by the reconstruction model boundary.
type ModelInferenceError struct {
	Err error
}

func (e *ModelInferenceError) Error() string {
	return fmt.Sprintf("model inference: %v", e.Err)
}

func (e *ModelInferenceError) Unwrap() error {
	return e.Err
}
