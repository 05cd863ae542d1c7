package eyetracker

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// CalibrationPoint pairs a known target direction with the gaze direction
// measured while the user looked at it.
type CalibrationPoint struct {
	Target   gaze.Vec3 `json:"target"`
	Measured gaze.Vec3 `json:"measured"`
}

// Profile is the active calibration for a session. It is replaced
// wholesale on recalibration.
type Profile struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Quality        float64   `json:"quality"` // 0-1
	PointCount     int       `json:"point_count"`
	MeanErrorDeg   float64   `json:"mean_error_deg"` // Residual error after correction
	PrecisionDeg   float64   `json:"precision_deg"`  // Std dev of residual error
	YawOffsetDeg   float64   `json:"yaw_offset_deg"`
	PitchOffsetDeg float64   `json:"pitch_offset_deg"`
	CreatedAt      time.Time `json:"created_at"`
}

// Apply corrects a measured direction with the profile's mean offset.
func (p *Profile) Apply(d gaze.Vec3) gaze.Vec3 {
	if p == nil || (p.YawOffsetDeg == 0 && p.PitchOffsetDeg == 0) {
		return d
	}
	yaw, pitch := gaze.YawPitch(d)
	return gaze.FromYawPitch(yaw-p.YawOffsetDeg, pitch-p.PitchOffsetDeg)
}

// ComputeProfile derives a calibration profile from points. Quality is a
// pure function of the ordered point sequence.
func ComputeProfile(userID string, points []CalibrationPoint, cfg Config) (Profile, error) {
	if len(points) < cfg.MinCalibrationPoints {
		return Profile{}, &CalibrationError{
			Reason:   ErrInsufficientSamples,
			Points:   len(points),
			Required: float64(cfg.MinCalibrationPoints),
		}
	}

	type pair struct {
		target, measured gaze.Vec3
		ok               bool
	}
	pairs := make([]pair, len(points))

	// Mean yaw/pitch offset over the usable points
	var yawSum, pitchSum float64
	usable := 0
	for i, p := range points {
		target, okT := p.Target.Normalize()
		measured, okM := p.Measured.Normalize()
		pairs[i] = pair{target, measured, okT && okM}
		if !pairs[i].ok {
			continue
		}
		ty, tp := gaze.YawPitch(target)
		my, mp := gaze.YawPitch(measured)
		yawSum += wrapDeg(my - ty)
		pitchSum += mp - tp
		usable++
	}

	profile := Profile{
		ID:         uuid.NewString(),
		UserID:     userID,
		PointCount: len(points),
		CreatedAt:  time.Now(),
	}
	if usable > 0 {
		profile.YawOffsetDeg = yawSum / float64(usable)
		profile.PitchOffsetDeg = pitchSum / float64(usable)
	}

	// Residual error after correction; unusable points count as worst case
	residuals := make([]float64, len(pairs))
	for i, p := range pairs {
		if !p.ok {
			residuals[i] = 180
			continue
		}
		residuals[i] = gaze.AngleDeg(profile.Apply(p.measured), p.target)
	}
	mean, std := meanStd(residuals)
	profile.MeanErrorDeg = mean
	profile.PrecisionDeg = std
	profile.Quality = gaze.Clamp(1-(mean+std)/cfg.MaxCalibrationErrorDeg, 0, 1)

	if profile.Quality < cfg.AcceptanceQuality {
		return Profile{}, &CalibrationError{
			Reason:   ErrLowQuality,
			Quality:  profile.Quality,
			Points:   len(points),
			Required: cfg.AcceptanceQuality,
		}
	}
	return profile, nil
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		std += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(std / float64(len(xs)))
}

// wrapDeg maps an angle difference into (-180, 180].
func wrapDeg(d float64) float64 {
	for d > 180 {
		d -= 360
	}
	for d <= -180 {
		d += 360
	}
	return d
}
