package eyetracker

import "github.com/teslashibe/go-gaze/pkg/gaze"

// smoother keeps the last N directions and returns their exponentially
// weighted average, newest weighted highest.
type smoother struct {
	alpha float64
	buf   []gaze.Vec3 // oldest first
	size  int
}

func newSmoother(size int, alpha float64) *smoother {
	return &smoother{alpha: alpha, size: size, buf: make([]gaze.Vec3, 0, size)}
}

// Push adds d and returns the smoothed unit direction.
func (s *smoother) Push(d gaze.Vec3) gaze.Vec3 {
	if len(s.buf) == s.size {
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:s.size-1]
	}
	s.buf = append(s.buf, d)

	var sum gaze.Vec3
	w := s.alpha
	for i := len(s.buf) - 1; i >= 0; i-- {
		sum = sum.Add(s.buf[i].Scale(w))
		w *= 1 - s.alpha
	}
	out, ok := sum.Normalize()
	if !ok {
		return d
	}
	return out
}

func (s *smoother) Reset() {
	s.buf = s.buf[:0]
}
