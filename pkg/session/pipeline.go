package session

import (
	"log/slog"

	"github.com/teslashibe/go-gaze/pkg/analytics"
	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/interaction"
)

// Statistics are the per-session event counts.
type Statistics struct {
	FixationCount  uint64 `json:"fixation_count"`
	SaccadeCount   uint64 `json:"saccade_count"`
	BlinkCount     uint64 `json:"blink_count"`
	SelectionCount uint64 `json:"selection_count"`
}

// Pipeline wires one user's tracker, interaction and analytics together.
// It is deterministic and owned by a single goroutine.
type Pipeline struct {
	userID      string
	tracker     *eyetracker.Tracker
	interaction *interaction.Interaction
	analytics   *analytics.Analytics
	stats       Statistics
}

// NewPipeline builds the components for userID, widening the fixation
// dispersion bound for the device's precision.
func NewPipeline(userID string, capability ingest.Capability, cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		userID:      userID,
		tracker:     eyetracker.New(cfg.Tracker.WithPrecision(capability.PrecisionDeg), logger),
		interaction: interaction.New(cfg.Interaction, logger),
		analytics:   analytics.New(cfg.Analytics, logger),
	}
}

// Calibrate computes and installs a profile. Interaction is enabled once a
// profile is accepted and stays enabled across failed recalibrations.
func (p *Pipeline) Calibrate(points []eyetracker.CalibrationPoint) (eyetracker.Profile, error) {
	profile, err := p.tracker.Calibrate(p.userID, points)
	if err != nil {
		return profile, err
	}
	p.interaction.Enable()
	return profile, nil
}

// Process runs one sample through classification, interaction and
// analytics, returning every event it produced in order. A sample the
// tracker drops as out of order reaches neither interaction nor analytics.
func (p *Pipeline) Process(s gaze.Sample) []gaze.Event {
	dropped := p.tracker.Stats().Dropped
	events := p.tracker.ProcessSample(s)
	if p.tracker.Stats().Dropped != dropped {
		return nil
	}
	p.analytics.ObserveSample(s)

	for _, ev := range events {
		target := ""
		switch e := ev.(type) {
		case gaze.FixationEvent:
			p.stats.FixationCount++
			if hit, ok := p.interaction.Registry().HitTest(s.Origin, e.Centroid); ok {
				target = hit.Target.ID
			}
		case gaze.SaccadeEvent:
			p.stats.SaccadeCount++
		case gaze.BlinkEvent:
			p.stats.BlinkCount++
		}
		p.analytics.ObserveEvent(ev, target)
	}

	dir, valid := p.tracker.Current()
	res := p.interaction.Update(interaction.Frame{
		Ts:           s.TimestampMs,
		Origin:       s.Origin,
		Direction:    dir,
		Valid:        valid,
		TrackingLost: p.tracker.TrackingLost(),
	})
	for _, f := range res.Focus {
		events = append(events, f)
	}
	if res.Selection != nil {
		p.stats.SelectionCount++
		events = append(events, *res.Selection)
	}
	return events
}

// Statistics returns the event counts.
func (p *Pipeline) Statistics() Statistics { return p.stats }

// Tracker exposes the eye tracker.
func (p *Pipeline) Tracker() *eyetracker.Tracker { return p.tracker }

// Interaction exposes the interaction state machine.
func (p *Pipeline) Interaction() *interaction.Interaction { return p.interaction }

// Analytics exposes the analytics aggregator.
func (p *Pipeline) Analytics() *analytics.Analytics { return p.analytics }

// Discard drops any in-flight fixation candidate and dwell timer.
func (p *Pipeline) Discard() {
	p.tracker.Reset()
	p.interaction.Disable()
}
