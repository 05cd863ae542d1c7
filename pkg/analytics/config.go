package analytics

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidWeights is returned when cognitive-load weights are negative,
// non-finite or do not sum to 1.
var ErrInvalidWeights = errors.New("analytics: load weights must be non-negative and sum to 1")

// Weights are the cognitive-load component weights.
type Weights struct {
	PupilVariability float64 `json:"pupil_variability"`
	ShortFixation    float64 `json:"short_fixation"`
	HighSaccade      float64 `json:"high_saccade"`
	BlinkRate        float64 `json:"blink_rate"`
}

// DefaultWeights returns the standard 0.3/0.3/0.2/0.2 weighting.
func DefaultWeights() Weights {
	return Weights{PupilVariability: 0.3, ShortFixation: 0.3, HighSaccade: 0.2, BlinkRate: 0.2}
}

// Validate checks that the weights form a convex combination.
func (w Weights) Validate() error {
	sum := 0.0
	for _, v := range []float64{w.PupilVariability, w.ShortFixation, w.HighSaccade, w.BlinkRate} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return ErrInvalidWeights
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w (sum %.4f)", ErrInvalidWeights, sum)
	}
	return nil
}

// Config holds the attention analytics parameters.
type Config struct {
	WindowMs int64 // Rolling window for derived metrics
	Weights  Weights

	// Normalization of load components
	ShortFixationMs    float64 // Fixations shorter than this count as short
	PupilCVScale       float64 // Coefficient of variation mapped to 1.0
	MaxSaccadesPerMin  float64 // Saccade rate mapped to 1.0
	NormalBlinksPerMin float64 // Resting blink rate mapped to 1.0

	// Attention level thresholds on cognitive load
	HighlyFocusedBelow float64
	FocusedBelow       float64
	DistractedBelow    float64

	// Fixation-duration trend (linear regression over the window)
	TrendMinFixations int     // Fixations needed before a trend is reported
	TrendDeclineSlope float64 // Slope in ms per minute at or below which duration is declining
	TrendMinLoad      float64 // Declining trend only marks fatigue at or above this load

	// Heatmap
	GridCellDeg  float64 // Initial grid cell size for fixations off any target
	MaxGridCells int     // Compaction doubles the cell size above this

	// UI issues
	HardToReadFixationMs float64
	HardToReadMinVisits  int
	ConfusingVisitRatio  float64 // Visits relative to the mean across keys
	ConfusingMinVisits   int
	ConfusingMaxDwellMs  float64 // Per-visit dwell below this is unresolved
}

// DefaultConfig returns the recommended analytics configuration.
func DefaultConfig() Config {
	return Config{
		WindowMs:             60_000,
		Weights:              DefaultWeights(),
		ShortFixationMs:      200,
		PupilCVScale:         0.1,
		MaxSaccadesPerMin:    120,
		NormalBlinksPerMin:   17,
		HighlyFocusedBelow:   0.3,
		FocusedBelow:         0.5,
		DistractedBelow:      0.7,
		TrendMinFixations:    10,
		TrendDeclineSlope:    -20,
		TrendMinLoad:         0.5,
		GridCellDeg:          2,
		MaxGridCells:         512,
		HardToReadFixationMs: 200,
		HardToReadMinVisits:  5,
		ConfusingVisitRatio:  2,
		ConfusingMinVisits:   5,
		ConfusingMaxDwellMs:  300,
	}
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	switch {
	case c.WindowMs <= 0:
		return errors.New("analytics: WindowMs must be positive")
	case c.ShortFixationMs <= 0 || c.PupilCVScale <= 0 || c.MaxSaccadesPerMin <= 0 || c.NormalBlinksPerMin <= 0:
		return errors.New("analytics: normalization scales must be positive")
	case !(c.HighlyFocusedBelow < c.FocusedBelow && c.FocusedBelow < c.DistractedBelow && c.DistractedBelow <= 1):
		return errors.New("analytics: attention thresholds must be increasing and at most 1")
	case c.TrendMinFixations < 2:
		return errors.New("analytics: TrendMinFixations must be at least 2")
	case c.GridCellDeg <= 0 || c.MaxGridCells < 1:
		return errors.New("analytics: heatmap grid must be positive")
	case c.HardToReadMinVisits < 1 || c.ConfusingMinVisits < 1 || c.ConfusingVisitRatio <= 0:
		return errors.New("analytics: issue thresholds must be positive")
	}
	return nil
}
