// Package eyetracker calibrates a user's gaze and classifies a sample
// stream into fixations, saccades and blinks.
package eyetracker

import (
	"log/slog"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Stats counts what the tracker has seen since creation.
type Stats struct {
	Accepted     uint64 `json:"accepted"`
	Dropped      uint64 `json:"dropped"` // Out-of-order or duplicate timestamps
	Fixations    uint64 `json:"fixations"`
	Saccades     uint64 `json:"saccades"`
	Blinks       uint64 `json:"blinks"`
	BridgedDips  uint64 `json:"bridged_dips"`
	Gaps         uint64 `json:"gaps"`
	TrackingLost bool   `json:"tracking_lost"`
}

// Tracker classifies one session's sample stream. It is owned by a single
// goroutine and is not safe for concurrent use.
type Tracker struct {
	config  Config
	profile *Profile
	logger  *slog.Logger

	smoother *smoother
	window   fixationWindow

	// Ordering
	hasLast bool
	lastTs  int64

	// Previous valid (high-confidence) direction, for saccade detection
	hasPrevDir bool
	prevDir    gaze.Vec3
	prevDirTs  int64

	// Low-confidence run
	inLow   bool
	lowFrom int64

	// Latest smoothed direction
	current    gaze.Vec3
	hasCurrent bool

	trackingLost bool
	stats        Stats
}

// New creates a tracker. A nil logger uses the global logger.
func New(config Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = log.L()
	}
	return &Tracker{
		config:   config,
		logger:   logger,
		smoother: newSmoother(config.SmoothingWindow, config.SmoothingAlpha),
	}
}

// Calibrate computes a profile from points and, on success, replaces the
// active profile. On failure the previous profile stays active.
func (t *Tracker) Calibrate(userID string, points []CalibrationPoint) (Profile, error) {
	profile, err := ComputeProfile(userID, points, t.config)
	if err != nil {
		t.logger.Info("calibration rejected", "points", len(points), "error", err)
		return Profile{}, err
	}
	t.profile = &profile
	t.resetClassification()
	t.logger.Info("calibration accepted",
		"profile_id", profile.ID,
		"quality", profile.Quality,
		"mean_error_deg", profile.MeanErrorDeg)
	return profile, nil
}

// Profile returns the active calibration profile, if any.
func (t *Tracker) Profile() (Profile, bool) {
	if t.profile == nil {
		return Profile{}, false
	}
	return *t.profile, true
}

// Current returns the latest smoothed, calibrated gaze direction. ok is
// false while the eyes are closed or before the first valid sample.
func (t *Tracker) Current() (gaze.Vec3, bool) {
	return t.current, t.hasCurrent
}

// TrackingLost reports the transient tracking-lost flag.
func (t *Tracker) TrackingLost() bool {
	return t.trackingLost
}

// Stats returns a copy of the counters.
func (t *Tracker) Stats() Stats {
	s := t.stats
	s.TrackingLost = t.trackingLost
	return s
}

// Reset discards any in-flight fixation candidate and low-confidence run.
// The calibration profile and counters are kept.
func (t *Tracker) Reset() {
	t.resetClassification()
	t.hasLast = false
	t.trackingLost = false
}

func (t *Tracker) resetClassification() {
	t.window.reset()
	t.smoother.Reset()
	t.hasPrevDir = false
	t.inLow = false
	t.hasCurrent = false
}

// ProcessSample classifies one sample and returns the events it completes,
// in timestamp order. Most samples produce no event.
func (t *Tracker) ProcessSample(s gaze.Sample) []gaze.Event {
	if t.hasLast && s.TimestampMs <= t.lastTs {
		t.stats.Dropped++
		t.logger.Debug("dropped out-of-order sample", "ts", s.TimestampMs, "last_ts", t.lastTs)
		return nil
	}

	lostHere := false
	if t.hasLast && s.TimestampMs-t.lastTs > t.config.MaxGapMs {
		t.stats.Gaps++
		t.resetClassification()
		if !t.trackingLost {
			t.logger.Debug("tracking lost", "gap_ms", s.TimestampMs-t.lastTs)
		}
		t.trackingLost = true
		lostHere = true
	}
	t.hasLast = true
	t.lastTs = s.TimestampMs
	t.stats.Accepted++

	if s.Confidence < t.config.BlinkConfidence {
		t.lowConfidence(s.TimestampMs)
		return nil
	}

	// The flag stays up for the sample that raised it and clears on the
	// next valid one, whether or not that sample completes an event
	if t.trackingLost && !lostHere {
		t.trackingLost = false
		t.logger.Debug("tracking restored", "ts", s.TimestampMs)
	}

	var events []gaze.Event
	dir := t.profile.Apply(s.Direction)

	if t.inLow {
		events = t.endLowConfidence(s.TimestampMs, events)
	}

	if t.hasPrevDir {
		amplitude := gaze.AngleDeg(t.prevDir, dir)
		if amplitude > t.config.SaccadeThresholdDeg {
			events = t.endFixation(events)
			dt := float64(s.TimestampMs-t.prevDirTs) / 1000.0
			events = append(events, gaze.SaccadeEvent{
				Ts:              s.TimestampMs,
				From:            t.prevDir,
				To:              dir,
				AmplitudeDeg:    amplitude,
				AngularVelocity: amplitude / dt,
			})
			t.stats.Saccades++
			t.window.reset()
			t.smoother.Reset()
		}
	}
	t.hasPrevDir = true
	t.prevDir = dir
	t.prevDirTs = s.TimestampMs

	smoothed := t.smoother.Push(dir)
	t.current = smoothed
	t.hasCurrent = true

	return t.extendFixation(s.TimestampMs, smoothed, events)
}

func (t *Tracker) lowConfidence(ts int64) {
	t.hasCurrent = false
	if !t.inLow {
		t.inLow = true
		t.lowFrom = ts
		return
	}
	if ts-t.lowFrom > t.config.BlinkMaxDurationMs && !t.trackingLost {
		t.trackingLost = true
		t.window.reset()
		t.smoother.Reset()
		t.hasPrevDir = false
		t.logger.Debug("tracking lost", "low_confidence_ms", ts-t.lowFrom)
	}
}

// endLowConfidence closes a low-confidence run at the first valid sample.
func (t *Tracker) endLowConfidence(ts int64, events []gaze.Event) []gaze.Event {
	t.inLow = false
	d := ts - t.lowFrom
	switch {
	case d < t.config.BlinkMinDurationMs:
		// Brief dip: bridged, classification continues as if it never happened
		t.stats.BridgedDips++
	case d <= t.config.BlinkMaxDurationMs:
		events = t.endFixation(events)
		events = append(events, gaze.BlinkEvent{StartTs: t.lowFrom, EndTs: ts})
		t.stats.Blinks++
		t.window.reset()
		t.smoother.Reset()
		t.hasPrevDir = false
	default:
		// Prolonged loss already reset classification in lowConfidence
		t.hasPrevDir = false
	}
	return events
}

// endFixation emits FixationEnd if the current window qualified.
func (t *Tracker) endFixation(events []gaze.Event) []gaze.Event {
	if t.window.started {
		events = append(events, t.window.event())
		t.stats.Fixations++
	}
	t.window.reset()
	return events
}

func (t *Tracker) extendFixation(ts int64, d gaze.Vec3, events []gaze.Event) []gaze.Event {
	if t.window.empty() {
		t.window.begin(ts, d)
		return events
	}
	if t.window.dispersionWith(d) >= t.config.DispersionDeg {
		events = t.endFixation(events)
		t.window.begin(ts, d)
		return events
	}
	t.window.add(ts, d)
	if !t.window.started && t.window.spanMs() >= t.config.MinFixationMs {
		t.window.started = true
		events = append(events, gaze.FixationStart{StartTs: t.window.firstTs, Ts: ts})
	}
	return events
}
