// Package gaze defines the shared types of the gaze pipeline: vectors,
// samples and the events produced by classification and interaction.
package gaze

import "math"

// Vec3 is a 3D vector in world coordinates (meters for positions,
// unit length for directions). Forward is -Z, up is +Y, right is +X.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Forward is the neutral gaze direction.
var Forward = Vec3{0, 0, -1}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Len returns the Euclidean length.
func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }

// IsFinite reports whether every component is a finite number.
func (v Vec3) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

// Normalize returns the unit vector in the direction of v.
// ok is false for zero-length or non-finite vectors.
func (v Vec3) Normalize() (Vec3, bool) {
	if !v.IsFinite() {
		return Vec3{}, false
	}
	l := v.Len()
	if l < 1e-12 {
		return Vec3{}, false
	}
	return v.Scale(1 / l), true
}

// AngleDeg returns the angle between two directions in degrees.
// Inputs need not be normalized; zero vectors yield 180.
func AngleDeg(a, b Vec3) float64 {
	la, lb := a.Len(), b.Len()
	if la < 1e-12 || lb < 1e-12 {
		return 180
	}
	c := a.Dot(b) / (la * lb)
	c = Clamp(c, -1, 1)
	return Degrees(math.Acos(c))
}

// YawPitch decomposes a direction into yaw (positive to the right) and
// pitch (positive up), both in degrees.
func YawPitch(d Vec3) (yaw, pitch float64) {
	yaw = Degrees(math.Atan2(d.X, -d.Z))
	pitch = Degrees(math.Atan2(d.Y, math.Hypot(d.X, d.Z)))
	return yaw, pitch
}

// FromYawPitch builds a unit direction from yaw and pitch in degrees.
// It is the inverse of YawPitch.
func FromYawPitch(yaw, pitch float64) Vec3 {
	y, p := Radians(yaw), Radians(pitch)
	return Vec3{
		X: math.Sin(y) * math.Cos(p),
		Y: math.Sin(p),
		Z: -math.Cos(y) * math.Cos(p),
	}
}

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// Clamp limits x to [lo, hi]. NaN maps to lo.
func Clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
