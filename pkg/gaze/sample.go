package gaze

// Sample is one normalized gaze measurement. Samples are consumed
// immediately by the pipeline and never stored raw.
type Sample struct {
	UserID      string  `json:"user_id"`
	TimestampMs int64   `json:"ts"`         // Monotonic, per session
	Origin      Vec3    `json:"origin"`     // Eye position in world coords
	Direction   Vec3    `json:"direction"`  // Unit gaze direction
	PupilMm     float64 `json:"pupil_mm"`   // 0 = unknown
	Confidence  float64 `json:"confidence"` // 0-1
}
