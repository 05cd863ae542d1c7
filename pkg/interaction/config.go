package interaction

import "errors"

// Config holds the dwell, focus and navigation parameters.
type Config struct {
	// Dwell selection
	DwellThresholdMs int64 // Continuous gaze needed to select
	FocusThresholdMs int64 // Continuous gaze needed to highlight
	RepeatSelection  bool  // Allow several selections per dwell episode
	// ResetOnBlink makes closed-eye frames end the dwell episode like looking
	// away. Otherwise they pause the timer.
	ResetOnBlink bool

	// History
	HistoryCapacity int // Selections retained for statistics

	// Navigation
	Navigation NavigationConfig
}

// NavigationConfig maps sustained off-center gaze to locomotion.
type NavigationConfig struct {
	Enabled      bool
	DeadZoneDeg  float64 // No movement inside this cone
	MaxAngleDeg  float64 // Full speed at or beyond this angle
	MaxSpeed     float64 // Meters per second
	ActivationMs int64   // Off-center time before movement starts
	RampMs       int64   // Time from activation to full speed
}

// DefaultConfig returns the recommended dwell configuration.
func DefaultConfig() Config {
	return Config{
		DwellThresholdMs: 800,
		FocusThresholdMs: 300,
		HistoryCapacity:  50,
		Navigation: NavigationConfig{
			DeadZoneDeg:  15,
			MaxAngleDeg:  35,
			MaxSpeed:     1.5,
			ActivationMs: 400,
			RampMs:       600,
		},
	}
}

// FastDwellConfig returns a configuration for experienced users.
func FastDwellConfig() Config {
	cfg := DefaultConfig()
	cfg.DwellThresholdMs = 500
	cfg.FocusThresholdMs = 200
	return cfg
}

// AccessibleConfig returns a configuration with longer dwell times that
// tolerate slower, less steady gaze.
func AccessibleConfig() Config {
	cfg := DefaultConfig()
	cfg.DwellThresholdMs = 1200
	cfg.FocusThresholdMs = 500
	cfg.Navigation.DeadZoneDeg = 20
	cfg.Navigation.ActivationMs = 800
	return cfg
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	switch {
	case c.DwellThresholdMs <= 0:
		return errors.New("interaction: DwellThresholdMs must be positive")
	case c.FocusThresholdMs <= 0 || c.FocusThresholdMs >= c.DwellThresholdMs:
		return errors.New("interaction: FocusThresholdMs must be positive and below DwellThresholdMs")
	case c.HistoryCapacity < 1:
		return errors.New("interaction: HistoryCapacity must be at least 1")
	}
	n := c.Navigation
	if n.Enabled {
		switch {
		case n.DeadZoneDeg < 0 || n.MaxAngleDeg <= n.DeadZoneDeg:
			return errors.New("interaction: navigation angles must satisfy 0 <= dead zone < max")
		case n.MaxSpeed <= 0:
			return errors.New("interaction: navigation MaxSpeed must be positive")
		case n.ActivationMs < 0 || n.RampMs <= 0:
			return errors.New("interaction: navigation timings must be positive")
		}
	}
	return nil
}
