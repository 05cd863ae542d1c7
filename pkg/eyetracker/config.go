package eyetracker

import (
	"errors"
	"math"
)

// Config holds all tunable parameters for calibration and classification.
type Config struct {
	// Calibration
	MinCalibrationPoints   int     // Fewer points fail with ErrInsufficientSamples
	AcceptanceQuality      float64 // Profiles below this fail with ErrLowQuality
	MaxCalibrationErrorDeg float64 // Residual error at which quality reaches 0

	// Smoothing
	SmoothingWindow int     // Number of recent directions kept
	SmoothingAlpha  float64 // EMA decay (0-1, higher = more weight on newest)

	// Fixation (dispersion-threshold identification)
	DispersionDeg float64 // Window dispersion must stay below this
	MinFixationMs int64   // Window span needed before FixationStart

	// Saccade
	SaccadeThresholdDeg float64 // Consecutive-sample displacement that counts as a saccade

	// Blink
	BlinkConfidence    float64 // Samples below this confidence are "eyes closed"
	BlinkMinDurationMs int64   // Shorter dips are bridged as noise
	BlinkMaxDurationMs int64   // Longer runs are tracking loss, not blinks

	// Tracking loss
	MaxGapMs int64 // Larger gaps discard the fixation candidate
}

// DefaultConfig returns the recommended configuration for 60-120 Hz headsets.
func DefaultConfig() Config {
	return Config{
		MinCalibrationPoints:   9,
		AcceptanceQuality:      0.5,
		MaxCalibrationErrorDeg: 2.0,

		SmoothingWindow: 10,
		SmoothingAlpha:  0.6, // 60% newest sample

		DispersionDeg: 1.0,
		MinFixationMs: 100,

		SaccadeThresholdDeg: 5.0,

		BlinkConfidence:    0.3,
		BlinkMinDurationMs: 50,
		BlinkMaxDurationMs: 500,

		MaxGapMs: 250,
	}
}

// WithPrecision widens the dispersion bound for noisy devices so that
// sensor noise alone cannot break a fixation.
func (c Config) WithPrecision(precisionDeg float64) Config {
	c.DispersionDeg = math.Max(c.DispersionDeg, 2*precisionDeg)
	return c
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	switch {
	case c.MinCalibrationPoints < 1:
		return errors.New("eyetracker: MinCalibrationPoints must be positive")
	case c.AcceptanceQuality < 0 || c.AcceptanceQuality > 1:
		return errors.New("eyetracker: AcceptanceQuality must be in [0,1]")
	case c.MaxCalibrationErrorDeg <= 0:
		return errors.New("eyetracker: MaxCalibrationErrorDeg must be positive")
	case c.SmoothingWindow < 1:
		return errors.New("eyetracker: SmoothingWindow must be at least 1")
	case c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1:
		return errors.New("eyetracker: SmoothingAlpha must be in (0,1]")
	case c.DispersionDeg <= 0:
		return errors.New("eyetracker: DispersionDeg must be positive")
	case c.MinFixationMs <= 0:
		return errors.New("eyetracker: MinFixationMs must be positive")
	case c.SaccadeThresholdDeg <= 0:
		return errors.New("eyetracker: SaccadeThresholdDeg must be positive")
	case c.BlinkConfidence < 0 || c.BlinkConfidence > 1:
		return errors.New("eyetracker: BlinkConfidence must be in [0,1]")
	case c.BlinkMinDurationMs <= 0 || c.BlinkMaxDurationMs <= c.BlinkMinDurationMs:
		return errors.New("eyetracker: blink durations must satisfy 0 < min < max")
	case c.MaxGapMs <= 0:
		return errors.New("eyetracker: MaxGapMs must be positive")
	}
	return nil
}
