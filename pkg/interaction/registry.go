package interaction

import (
	"math"
	"sort"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Target is an interactive object registered by the scene.
type Target struct {
	ID        string    `json:"id"`
	Position  gaze.Vec3 `json:"position"`
	HitRadius float64   `json:"hit_radius"` // Meters
}

// Hit is the result of a gaze ray test against the registry.
type Hit struct {
	Target   Target
	AngleDeg float64 // Angular distance between gaze and target center
}

// Registry maps target ids to targets for one session.
type Registry struct {
	targets map[string]Target
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]Target)}
}

// Register adds a target. Ids must be unique within the registry.
func (r *Registry) Register(id string, position gaze.Vec3, hitRadius float64) error {
	if id == "" {
		return ErrEmptyTargetID
	}
	if !position.IsFinite() || math.IsNaN(hitRadius) || math.IsInf(hitRadius, 0) || hitRadius <= 0 {
		return ErrInvalidTargetGeometry
	}
	if _, exists := r.targets[id]; exists {
		return ErrDuplicateTargetID
	}
	r.targets[id] = Target{ID: id, Position: position, HitRadius: hitRadius}
	return nil
}

// Unregister removes a target.
func (r *Registry) Unregister(id string) error {
	if _, exists := r.targets[id]; !exists {
		return ErrUnknownTarget
	}
	delete(r.targets, id)
	return nil
}

// Get returns a target by id.
func (r *Registry) Get(id string) (Target, bool) {
	t, ok := r.targets[id]
	return t, ok
}

// Len returns the number of registered targets.
func (r *Registry) Len() int {
	return len(r.targets)
}

// All returns the registered targets sorted by id.
func (r *Registry) All() []Target {
	out := make([]Target, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HitTest returns the target nearest to the gaze ray, by angular distance,
// among those whose hit sphere the ray passes through.
func (r *Registry) HitTest(origin, direction gaze.Vec3) (Hit, bool) {
	var best Hit
	found := false
	for _, t := range r.targets {
		toTarget := t.Position.Sub(origin)
		dist := toTarget.Len()

		var angle, radiusDeg float64
		if dist <= t.HitRadius {
			// Eye inside the hit sphere
			angle, radiusDeg = 0, 180
		} else {
			angle = gaze.AngleDeg(direction, toTarget)
			radiusDeg = gaze.Degrees(math.Asin(t.HitRadius / dist))
		}
		if angle > radiusDeg {
			continue
		}
		if !found || angle < best.AngleDeg || (angle == best.AngleDeg && t.ID < best.Target.ID) {
			best = Hit{Target: t, AngleDeg: angle}
			found = true
		}
	}
	return best, found
}
