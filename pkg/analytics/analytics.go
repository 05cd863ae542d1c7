// Package analytics derives attention metrics, a gaze heatmap and advisory
// UI issues from a session's classified gaze events.
package analytics

import (
	"log/slog"
	"math"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Metrics is the rolling attention snapshot.
type Metrics struct {
	CognitiveLoad          float64        `json:"cognitive_load"`
	AttentionLevel         Level          `json:"attention_level"`
	AvgFixationDurationMs  float64        `json:"avg_fixation_duration_ms"`
	SaccadeFrequencyPerMin float64        `json:"saccade_frequency_per_min"`
	BlinkRatePerMin        float64        `json:"blink_rate_per_min"`
	GazeStabilityPct       float64        `json:"gaze_stability_pct"`
	FixationTrendMsPerMin  float64        `json:"fixation_trend_ms_per_min"`
	Declining              bool           `json:"declining"`
	Components             LoadComponents `json:"components"`
	WindowMs               int64          `json:"window_ms"`
}

// DefaultMetrics is what queries return before any data is available.
func DefaultMetrics() Metrics {
	return Metrics{AttentionLevel: LevelUnknown}
}

type fixationRec struct {
	durationMs int64
}

// Analytics aggregates one session's events. It is owned by a single
// goroutine; readers use Snapshot.
type Analytics struct {
	config Config
	logger *slog.Logger

	now     int64
	firstTs int64
	hasData bool

	fixations series[fixationRec]
	saccades  series[struct{}]
	blinks    series[struct{}]
	pupils    series[float64]

	// Running sums over fixations in the window
	fixSumMs       int64
	shortFixations int

	heat *heatmap
}

// New creates an analytics aggregator. A nil logger uses the global logger.
func New(config Config, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = log.L()
	}
	return &Analytics{
		config: config,
		logger: logger,
		heat:   newHeatmap(config.GridCellDeg, config.MaxGridCells),
	}
}

// ObserveSample records the pupil reading and advances the window clock.
func (a *Analytics) ObserveSample(s gaze.Sample) {
	a.advance(s.TimestampMs)
	if s.PupilMm > 0 {
		a.pupils.push(s.TimestampMs, s.PupilMm)
	}
}

// ObserveEvent records a classified event. targetID names the registered
// target the fixation centroid landed on, or is empty for open space.
func (a *Analytics) ObserveEvent(e gaze.Event, targetID string) {
	a.advance(e.Time())
	switch ev := e.(type) {
	case gaze.FixationEvent:
		a.fixations.push(ev.EndTs, fixationRec{durationMs: ev.DurationMs})
		a.fixSumMs += ev.DurationMs
		if float64(ev.DurationMs) < a.config.ShortFixationMs {
			a.shortFixations++
		}
		if targetID != "" {
			a.heat.recordTarget(targetID, ev.DurationMs)
		} else {
			yaw, pitch := gaze.YawPitch(ev.Centroid)
			a.heat.recordCell(yaw, pitch, ev.DurationMs)
		}
	case gaze.SaccadeEvent:
		a.saccades.push(ev.Ts, struct{}{})
	case gaze.BlinkEvent:
		a.blinks.push(ev.EndTs, struct{}{})
	}
}

func (a *Analytics) advance(ts int64) {
	if !a.hasData {
		a.hasData = true
		a.firstTs = ts
	}
	if ts > a.now {
		a.now = ts
	}
	cutoff := a.now - a.config.WindowMs
	a.fixations.evict(cutoff, func(f fixationRec) {
		a.fixSumMs -= f.durationMs
		if float64(f.durationMs) < a.config.ShortFixationMs {
			a.shortFixations--
		}
	})
	a.saccades.evict(cutoff, nil)
	a.blinks.evict(cutoff, nil)
	a.pupils.evict(cutoff, nil)
}

// Metrics computes the current rolling metrics.
func (a *Analytics) Metrics() Metrics {
	if !a.hasData {
		return DefaultMetrics()
	}
	cfg := a.config

	spanMs := a.now - a.firstTs
	if spanMs > cfg.WindowMs {
		spanMs = cfg.WindowMs
	}
	if spanMs < 1000 {
		spanMs = 1000
	}
	spanMin := float64(spanMs) / 60_000

	m := Metrics{WindowMs: spanMs}
	m.SaccadeFrequencyPerMin = float64(a.saccades.len()) / spanMin
	m.BlinkRatePerMin = float64(a.blinks.len()) / spanMin

	nFix := a.fixations.len()
	if nFix > 0 {
		m.AvgFixationDurationMs = float64(a.fixSumMs) / float64(nFix)
		m.GazeStabilityPct = gaze.Clamp(100*float64(a.fixSumMs)/float64(spanMs), 0, 100)
		m.Components.ShortFixationRatio = float64(a.shortFixations) / float64(nFix)
	}

	if mean, sd, ok := a.pupilSpread(); ok && mean > 0 {
		m.Components.PupilVariability = gaze.Clamp(sd/mean/cfg.PupilCVScale, 0, 1)
	}
	m.Components.HighSaccadeRatio = gaze.Clamp(m.SaccadeFrequencyPerMin/cfg.MaxSaccadesPerMin, 0, 1)
	m.Components.BlinkRateNormalized = gaze.Clamp(m.BlinkRatePerMin/cfg.NormalBlinksPerMin, 0, 1)

	m.CognitiveLoad = CognitiveLoad(m.Components, cfg.Weights)

	if nFix >= cfg.TrendMinFixations {
		xs := make([]float64, 0, nFix)
		ys := make([]float64, 0, nFix)
		a.fixations.each(func(ts int64, f fixationRec) {
			xs = append(xs, float64(ts)/60_000)
			ys = append(ys, float64(f.durationMs))
		})
		m.FixationTrendMsPerMin = slope(xs, ys)
		m.Declining = m.FixationTrendMsPerMin <= cfg.TrendDeclineSlope
	}

	m.AttentionLevel = Classify(m.CognitiveLoad, m.Declining, cfg)
	return m
}

// pupilSpread returns the mean and population standard deviation of the
// pupil readings in the window. Both passes run over the window itself so
// long sessions accumulate no rounding drift.
func (a *Analytics) pupilSpread() (mean, sd float64, ok bool) {
	n := float64(a.pupils.len())
	if n < 2 {
		return 0, 0, false
	}
	a.pupils.each(func(_ int64, mm float64) { mean += mm })
	mean /= n
	var ss float64
	a.pupils.each(func(_ int64, mm float64) {
		d := mm - mean
		ss += d * d
	})
	return mean, math.Sqrt(ss / n), true
}

// Compact runs the periodic heatmap compaction pass.
func (a *Analytics) Compact() {
	before := len(a.heat.cells)
	if a.heat.compact() {
		a.logger.Debug("heatmap compacted",
			"cells_before", before,
			"cells_after", len(a.heat.cells),
			"cell_size_deg", a.heat.cellSize)
	}
}

// Snapshot builds an immutable view for concurrent readers.
func (a *Analytics) Snapshot() *Snapshot {
	points := a.heat.points()
	return &Snapshot{
		Ts:      a.now,
		Metrics: a.Metrics(),
		points:  points,
		issues:  DetectIssues(points, a.config),
	}
}

// Reset clears the rolling window. Heatmap totals are kept.
func (a *Analytics) Reset() {
	a.fixations.reset()
	a.saccades.reset()
	a.blinks.reset()
	a.pupils.reset()
	a.fixSumMs, a.shortFixations = 0, 0
	a.hasData = false
	a.now = 0
}
