// Package ingest validates and normalizes inbound gaze samples before they
// reach the eye tracker.
package ingest

import (
	"math"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Physiological pupil range; readings outside it are treated as unknown.
const (
	MinPupilMm = 1.0
	MaxPupilMm = 10.0
)

// ScreenPoint is a gaze point in normalized screen space, both axes in
// [-1, 1] with +X right and +Y up.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Raw is an inbound sample as delivered by the device abstraction.
// Exactly one of Direction or Screen should be set.
type Raw struct {
	UserID      string       `json:"user_id"`
	TimestampMs int64        `json:"ts"`
	Origin      gaze.Vec3    `json:"origin"`
	Direction   *gaze.Vec3   `json:"direction,omitempty"`
	Screen      *ScreenPoint `json:"screen,omitempty"`
	PupilMm     float64      `json:"pupil_mm"`
	Confidence  float64      `json:"confidence"`
}

// Normalize validates raw and converts it into a gaze.Sample with a unit
// direction, clamped confidence and a sanitized pupil reading.
func Normalize(raw Raw, capability Capability) (gaze.Sample, error) {
	if raw.UserID == "" {
		return gaze.Sample{}, invalid("user_id", "required")
	}
	if raw.TimestampMs < 0 {
		return gaze.Sample{}, invalid("ts", "negative timestamp")
	}
	if !raw.Origin.IsFinite() {
		return gaze.Sample{}, invalid("origin", "non-finite")
	}

	var dir gaze.Vec3
	switch {
	case raw.Direction != nil:
		d, ok := raw.Direction.Normalize()
		if !ok {
			return gaze.Sample{}, invalid("direction", "zero or non-finite")
		}
		dir = d
	case raw.Screen != nil:
		d, err := ScreenToDirection(*raw.Screen, capability)
		if err != nil {
			return gaze.Sample{}, err
		}
		dir = d
	default:
		return gaze.Sample{}, invalid("direction", "direction or screen point required")
	}

	confidence := raw.Confidence
	if math.IsNaN(confidence) {
		confidence = 0
	}

	return gaze.Sample{
		UserID:      raw.UserID,
		TimestampMs: raw.TimestampMs,
		Origin:      raw.Origin,
		Direction:   dir,
		PupilMm:     sanitizePupil(raw.PupilMm),
		Confidence:  gaze.Clamp(confidence, 0, 1),
	}, nil
}

// ScreenToDirection projects a normalized screen point through the device
// field of view onto a unit direction.
func ScreenToDirection(p ScreenPoint, capability Capability) (gaze.Vec3, error) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return gaze.Vec3{}, invalid("screen", "non-finite")
	}
	x := gaze.Clamp(p.X, -1, 1)
	y := gaze.Clamp(p.Y, -1, 1)

	tanH := math.Tan(gaze.Radians(capability.HorizontalFOVDeg / 2))
	tanV := math.Tan(gaze.Radians(capability.VerticalFOVDeg / 2))

	d, ok := gaze.Vec3{X: x * tanH, Y: y * tanV, Z: -1}.Normalize()
	if !ok {
		return gaze.Vec3{}, invalid("screen", "degenerate field of view")
	}
	return d, nil
}

func sanitizePupil(mm float64) float64 {
	if math.IsNaN(mm) || mm < MinPupilMm || mm > MaxPupilMm {
		return 0
	}
	return mm
}
