package eyetracker

import (
	"math"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// fixationWindow is the dispersion-threshold candidate window. Dispersion
// is (max yaw - min yaw) + (max pitch - min pitch) over the window, which
// can be maintained in O(1) per sample.
type fixationWindow struct {
	count   int
	firstTs int64
	lastTs  int64
	sum     gaze.Vec3

	minYaw, maxYaw     float64
	minPitch, maxPitch float64

	started bool // FixationStart already emitted
}

func (w *fixationWindow) reset() {
	*w = fixationWindow{}
}

func (w *fixationWindow) empty() bool {
	return w.count == 0
}

// begin starts a fresh window at one point.
func (w *fixationWindow) begin(ts int64, d gaze.Vec3) {
	yaw, pitch := gaze.YawPitch(d)
	*w = fixationWindow{
		count:    1,
		firstTs:  ts,
		lastTs:   ts,
		sum:      d,
		minYaw:   yaw,
		maxYaw:   yaw,
		minPitch: pitch,
		maxPitch: pitch,
	}
}

// dispersionWith returns the dispersion the window would have after adding d.
func (w *fixationWindow) dispersionWith(d gaze.Vec3) float64 {
	yaw, pitch := gaze.YawPitch(d)
	return (math.Max(w.maxYaw, yaw) - math.Min(w.minYaw, yaw)) +
		(math.Max(w.maxPitch, pitch) - math.Min(w.minPitch, pitch))
}

func (w *fixationWindow) add(ts int64, d gaze.Vec3) {
	yaw, pitch := gaze.YawPitch(d)
	w.minYaw = math.Min(w.minYaw, yaw)
	w.maxYaw = math.Max(w.maxYaw, yaw)
	w.minPitch = math.Min(w.minPitch, pitch)
	w.maxPitch = math.Max(w.maxPitch, pitch)
	w.sum = w.sum.Add(d)
	w.lastTs = ts
	w.count++
}

func (w *fixationWindow) spanMs() int64 {
	return w.lastTs - w.firstTs
}

// event returns the completed fixation described by the window.
func (w *fixationWindow) event() gaze.FixationEvent {
	centroid, ok := w.sum.Normalize()
	if !ok {
		centroid = gaze.Forward
	}
	return gaze.FixationEvent{
		StartTs:    w.firstTs,
		EndTs:      w.lastTs,
		Centroid:   centroid,
		DurationMs: w.spanMs(),
	}
}
