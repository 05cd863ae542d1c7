package gaze

// EventKind identifies a classified or interaction event.
type EventKind string

const (
	KindFixationStart EventKind = "fixation_start"
	KindFixationEnd   EventKind = "fixation_end"
	KindSaccade       EventKind = "saccade"
	KindBlink         EventKind = "blink"
	KindSelection     EventKind = "selection"
	KindFocus         EventKind = "focus"
)

// Event is any immutable event emitted by the pipeline.
type Event interface {
	Kind() EventKind
	// Time is the timestamp (ms) used for ordering within a session.
	Time() int64
}

// FixationStart marks the moment a candidate window qualifies as a fixation.
type FixationStart struct {
	StartTs int64 `json:"start_ts"`
	Ts      int64 `json:"ts"`
}

func (e FixationStart) Kind() EventKind { return KindFixationStart }
func (e FixationStart) Time() int64     { return e.Ts }

// FixationEvent is a completed fixation.
type FixationEvent struct {
	StartTs    int64 `json:"start_ts"`
	EndTs      int64 `json:"end_ts"`
	Centroid   Vec3  `json:"centroid"`
	DurationMs int64 `json:"duration_ms"`
}

func (e FixationEvent) Kind() EventKind { return KindFixationEnd }
func (e FixationEvent) Time() int64     { return e.EndTs }

// SaccadeEvent is a rapid gaze shift between two consecutive samples.
type SaccadeEvent struct {
	Ts              int64   `json:"ts"`
	From            Vec3    `json:"from"`
	To              Vec3    `json:"to"`
	AmplitudeDeg    float64 `json:"amplitude_deg"`
	AngularVelocity float64 `json:"angular_velocity"` // deg/s
}

func (e SaccadeEvent) Kind() EventKind { return KindSaccade }
func (e SaccadeEvent) Time() int64     { return e.Ts }

// BlinkEvent spans a low-confidence interval long enough to be a blink.
type BlinkEvent struct {
	StartTs int64 `json:"start_ts"`
	EndTs   int64 `json:"end_ts"`
}

func (e BlinkEvent) Kind() EventKind { return KindBlink }
func (e BlinkEvent) Time() int64     { return e.EndTs }

// DurationMs returns the blink length.
func (e BlinkEvent) DurationMs() int64 { return e.EndTs - e.StartTs }

// SelectionEvent is emitted once per dwell episode that reaches the threshold.
type SelectionEvent struct {
	TargetID string `json:"target_id"`
	DwellMs  int64  `json:"dwell_ms"`
	Ts       int64  `json:"ts"`
}

func (e SelectionEvent) Kind() EventKind { return KindSelection }
func (e SelectionEvent) Time() int64     { return e.Ts }

// FocusEvent reports a target entering or leaving the focused state.
// It is observational and never causes a selection.
type FocusEvent struct {
	TargetID string `json:"target_id"`
	Focused  bool   `json:"focused"`
	Ts       int64  `json:"ts"`
}

func (e FocusEvent) Kind() EventKind { return KindFocus }
func (e FocusEvent) Time() int64     { return e.Ts }
