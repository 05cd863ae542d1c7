package analytics

import "github.com/teslashibe/go-gaze/pkg/gaze"

// Level is the classified attention state.
type Level string

const (
	LevelUnknown       Level = "unknown"
	LevelHighlyFocused Level = "highly_focused"
	LevelFocused       Level = "focused"
	LevelDistracted    Level = "distracted"
	LevelFatigued      Level = "fatigued"
)

// LoadComponents are the normalized inputs to cognitive load, each in [0,1].
type LoadComponents struct {
	PupilVariability    float64 `json:"pupil_variability"`
	ShortFixationRatio  float64 `json:"short_fixation_ratio"`
	HighSaccadeRatio    float64 `json:"high_saccade_ratio"`
	BlinkRateNormalized float64 `json:"blink_rate_normalized"`
}

// CognitiveLoad combines the components with w. Every component is clipped
// to [0,1] first, NaN counts as 0, and the result is clipped to [0,1].
func CognitiveLoad(c LoadComponents, w Weights) float64 {
	pv := gaze.Clamp(c.PupilVariability, 0, 1)
	sf := gaze.Clamp(c.ShortFixationRatio, 0, 1)
	hs := gaze.Clamp(c.HighSaccadeRatio, 0, 1)
	br := gaze.Clamp(c.BlinkRateNormalized, 0, 1)

	load := w.PupilVariability*pv +
		w.ShortFixation*sf +
		w.HighSaccade*hs +
		w.BlinkRate*(1-br)
	return gaze.Clamp(load, 0, 1)
}

// Classify maps a load and fixation-duration trend to an attention level.
func Classify(load float64, declining bool, cfg Config) Level {
	switch {
	case load >= cfg.DistractedBelow:
		return LevelFatigued
	case declining && load >= cfg.TrendMinLoad:
		return LevelFatigued
	case load >= cfg.FocusedBelow:
		return LevelDistracted
	case load >= cfg.HighlyFocusedBelow:
		return LevelFocused
	default:
		return LevelHighlyFocused
	}
}

// slope returns the least-squares slope of y over x, or 0 when x has no spread.
func slope(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n
	var num, den float64
	for i := range xs {
		dx := xs[i] - mx
		num += dx * (ys[i] - my)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}
