package interaction

import (
	"math"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// NavigationVector maps a head-relative gaze angle held for sustainedMs to
// a planar velocity in meters per second. Looking right moves +X, looking up
// moves forward (-Z). The result is zero inside the dead zone and before
// the activation delay, then ramps up with both angle and hold time.
func NavigationVector(yawDeg, pitchDeg float64, sustainedMs int64, cfg NavigationConfig) gaze.Vec3 {
	off := math.Hypot(yawDeg, pitchDeg)
	if off < cfg.DeadZoneDeg || off == 0 || sustainedMs < cfg.ActivationMs {
		return gaze.Vec3{}
	}

	angleGain := gaze.Clamp((off-cfg.DeadZoneDeg)/(cfg.MaxAngleDeg-cfg.DeadZoneDeg), 0, 1)
	timeGain := 1.0
	if cfg.RampMs > 0 {
		timeGain = gaze.Clamp(float64(sustainedMs-cfg.ActivationMs)/float64(cfg.RampMs), 0, 1)
	}
	speed := cfg.MaxSpeed * angleGain * timeGain

	return gaze.Vec3{
		X: speed * yawDeg / off,
		Z: -speed * pitchDeg / off,
	}
}
