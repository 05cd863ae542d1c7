package eyetracker

import (
	"errors"
	"fmt"
)

// Sentinel errors for calibration failures.
var (
	// ErrInsufficientSamples indicates fewer calibration points than required.
	ErrInsufficientSamples = errors.New("eyetracker: insufficient calibration samples")

	// ErrLowQuality indicates the computed quality is below the acceptance threshold.
	ErrLowQuality = errors.New("eyetracker: calibration quality too low")
)

// CalibrationError carries the reason and measurements of a failed calibration.
type CalibrationError struct {
	// Reason is ErrInsufficientSamples or ErrLowQuality.
	Reason error

	// Quality is the computed score (0 when never computed).
	Quality float64

	// Points is the number of points supplied.
	Points int

	// Required is the minimum point count or acceptance quality, depending on Reason.
	Required float64
}

// Error implements the error interface.
func (e *CalibrationError) Error() string {
	if errors.Is(e.Reason, ErrInsufficientSamples) {
		return fmt.Sprintf("%v: got %d, need %.0f", e.Reason, e.Points, e.Required)
	}
	return fmt.Sprintf("%v: %.3f < %.3f", e.Reason, e.Quality, e.Required)
}

// Unwrap returns the sentinel reason.
func (e *CalibrationError) Unwrap() error {
	return e.Reason
}

// IsCalibrationFailure returns true for any calibration rejection.
func IsCalibrationFailure(err error) bool {
	return errors.Is(err, ErrInsufficientSamples) || errors.Is(err, ErrLowQuality)
}
