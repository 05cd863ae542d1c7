// Package interaction turns a calibrated gaze stream into dwell selections,
// focus highlights and optional gaze-driven navigation.
package interaction

import (
	"log/slog"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Frame is one tick of input to the interaction state machine.
type Frame struct {
	Ts           int64
	Origin       gaze.Vec3
	Direction    gaze.Vec3 // Smoothed, calibrated direction
	Valid        bool      // False while the eyes are closed
	TrackingLost bool
}

// Result is what one frame produced.
type Result struct {
	Selection  *gaze.SelectionEvent
	Focus      []gaze.FocusEvent
	Hit        string    // Target under gaze, empty if none
	Navigation gaze.Vec3 // Zero unless navigation is enabled and active
}

// Stats summarizes interaction activity.
type Stats struct {
	Targets        int    `json:"targets"`
	Selections     uint64 `json:"selections"`
	FocusedTarget  string `json:"focused_target,omitempty"`
	DwellTarget    string `json:"dwell_target,omitempty"`
	DwellMs        int64  `json:"dwell_ms"`
	NavigationMode bool   `json:"navigation_mode"`
}

// Interaction is the per-session dwell/focus state machine. It is owned by
// a single goroutine.
type Interaction struct {
	config   Config
	registry *Registry
	history  *history
	logger   *slog.Logger

	enabled bool

	// Last frame seen; frames that do not advance it are ignored
	hasFrame bool
	frameTs  int64

	// Dwell episode
	target   string
	dwellMs  int64
	lastTs   int64
	paused   bool
	selected bool
	focused  bool

	// Navigation
	offCenter      bool
	offCenterSince int64

	selections uint64
}

// New creates an interaction state machine. It starts disabled and emits
// nothing until Enable is called.
func New(config Config, logger *slog.Logger) *Interaction {
	if logger == nil {
		logger = log.L()
	}
	return &Interaction{
		config:   config,
		registry: NewRegistry(),
		history:  newHistory(config.HistoryCapacity),
		logger:   logger,
	}
}

// Enable starts producing selections. The session calls this once a
// calibration profile is active.
func (in *Interaction) Enable() { in.enabled = true }

// Disable stops producing selections and clears the dwell episode.
func (in *Interaction) Disable() {
	in.enabled = false
	in.hasFrame = false
	in.resetDwell(0)
	in.offCenter = false
}

// Enabled reports whether selections can be produced.
func (in *Interaction) Enabled() bool { return in.enabled }

// RegisterTarget adds an interactive target.
func (in *Interaction) RegisterTarget(id string, position gaze.Vec3, hitRadius float64) error {
	if err := in.registry.Register(id, position, hitRadius); err != nil {
		return err
	}
	in.logger.Debug("target registered", "target_id", id, "hit_radius", hitRadius)
	return nil
}

// UnregisterTarget removes a target. A dwell in progress on it is abandoned.
func (in *Interaction) UnregisterTarget(id string) error {
	if err := in.registry.Unregister(id); err != nil {
		return err
	}
	if in.target == id {
		in.resetDwell(in.lastTs)
	}
	return nil
}

// Registry exposes the target registry for hit tests and analytics.
func (in *Interaction) Registry() *Registry { return in.registry }

// SetNavigation toggles navigation mode.
func (in *Interaction) SetNavigation(enabled bool) {
	in.config.Navigation.Enabled = enabled
	if !enabled {
		in.offCenter = false
	}
}

// Dwell returns the current dwell target and accumulated time.
func (in *Interaction) Dwell() (string, int64) {
	return in.target, in.dwellMs
}

// History returns recent selections, oldest first.
func (in *Interaction) History() []gaze.SelectionEvent {
	return in.history.items()
}

// Stats returns a snapshot of interaction counters.
func (in *Interaction) Stats() Stats {
	s := Stats{
		Targets:        in.registry.Len(),
		Selections:     in.selections,
		DwellTarget:    in.target,
		DwellMs:        in.dwellMs,
		NavigationMode: in.config.Navigation.Enabled,
	}
	if in.focused {
		s.FocusedTarget = in.target
	}
	return s
}

// Update advances the state machine by one frame.
//
// Dwell time accumulates across consecutive valid frames on the same
// target. Frames with closed eyes pause the timer unless ResetOnBlink is
// set; looking away, switching targets or losing tracking resets it.
// Reaching the dwell threshold emits one selection and resets the timer.
// A frame whose timestamp does not advance past the previous one is ignored.
func (in *Interaction) Update(f Frame) Result {
	var res Result
	if !in.enabled {
		return res
	}
	if in.hasFrame && f.Ts <= in.frameTs {
		return res
	}
	in.hasFrame = true
	in.frameTs = f.Ts

	if f.TrackingLost {
		res.Focus = in.resetDwell(f.Ts)
		in.offCenter = false
		return res
	}
	if !f.Valid {
		if in.config.ResetOnBlink {
			res.Focus = in.resetDwell(f.Ts)
			return res
		}
		in.paused = true
		return res
	}

	res.Navigation = in.navigate(f)

	hit, ok := in.registry.HitTest(f.Origin, f.Direction)
	if !ok {
		res.Focus = in.resetDwell(f.Ts)
		return res
	}
	res.Hit = hit.Target.ID

	if hit.Target.ID != in.target {
		res.Focus = in.resetDwell(f.Ts)
		in.target = hit.Target.ID
		in.lastTs = f.Ts
		return res
	}

	if !in.paused && f.Ts > in.lastTs {
		in.dwellMs += f.Ts - in.lastTs
	}
	in.lastTs = f.Ts
	in.paused = false

	if !in.focused && in.dwellMs >= in.config.FocusThresholdMs {
		in.focused = true
		res.Focus = append(res.Focus, gaze.FocusEvent{TargetID: in.target, Focused: true, Ts: f.Ts})
	}

	if !in.selected && in.dwellMs >= in.config.DwellThresholdMs {
		sel := gaze.SelectionEvent{TargetID: in.target, DwellMs: in.dwellMs, Ts: f.Ts}
		res.Selection = &sel
		in.history.push(sel)
		in.selections++
		in.dwellMs = 0
		if !in.config.RepeatSelection {
			in.selected = true
		}
		in.logger.Debug("target selected", "target_id", sel.TargetID, "dwell_ms", sel.DwellMs)
	}
	return res
}

// resetDwell clears the episode and returns a focus-lost event if the
// previous target was highlighted.
func (in *Interaction) resetDwell(ts int64) []gaze.FocusEvent {
	var out []gaze.FocusEvent
	if in.focused && in.target != "" {
		out = append(out, gaze.FocusEvent{TargetID: in.target, Focused: false, Ts: ts})
	}
	in.target = ""
	in.dwellMs = 0
	in.paused = false
	in.selected = false
	in.focused = false
	return out
}

func (in *Interaction) navigate(f Frame) gaze.Vec3 {
	nav := in.config.Navigation
	if !nav.Enabled {
		return gaze.Vec3{}
	}
	yaw, pitch := gaze.YawPitch(f.Direction)
	if gaze.AngleDeg(f.Direction, gaze.Forward) < nav.DeadZoneDeg {
		in.offCenter = false
		return gaze.Vec3{}
	}
	if !in.offCenter {
		in.offCenter = true
		in.offCenterSince = f.Ts
	}
	return NavigationVector(yaw, pitch, f.Ts-in.offCenterSince, nav)
}
