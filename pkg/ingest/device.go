package ingest

import "strings"

// DeviceClass names a family of eye-tracking devices with shared capabilities.
type DeviceClass string

const (
	DeviceGeneric       DeviceClass = "generic"
	DeviceHeadset       DeviceClass = "vr-headset"
	DeviceHeadsetPro    DeviceClass = "vr-headset-pro"
	DeviceScreenTracker DeviceClass = "screen-tracker"
	DeviceMobileAR      DeviceClass = "mobile-ar"
)

// Capability describes what a device class delivers. It is resolved once
// at session start and never inspected again per sample.
type Capability struct {
	Class            DeviceClass `json:"class"`
	SampleRateHz     float64     `json:"sample_rate_hz"`
	PrecisionDeg     float64     `json:"precision_deg"`      // Typical angular noise
	HorizontalFOVDeg float64     `json:"horizontal_fov_deg"` // Used for screen-space samples
	VerticalFOVDeg   float64     `json:"vertical_fov_deg"`
}

// NominalPeriodMs returns the expected time between samples.
func (c Capability) NominalPeriodMs() float64 {
	if c.SampleRateHz <= 0 {
		return 0
	}
	return 1000.0 / c.SampleRateHz
}

var capabilities = map[DeviceClass]Capability{
	DeviceGeneric:       {Class: DeviceGeneric, SampleRateHz: 60, PrecisionDeg: 0.5, HorizontalFOVDeg: 90, VerticalFOVDeg: 90},
	DeviceHeadset:       {Class: DeviceHeadset, SampleRateHz: 90, PrecisionDeg: 0.5, HorizontalFOVDeg: 100, VerticalFOVDeg: 100},
	DeviceHeadsetPro:    {Class: DeviceHeadsetPro, SampleRateHz: 120, PrecisionDeg: 0.3, HorizontalFOVDeg: 110, VerticalFOVDeg: 105},
	DeviceScreenTracker: {Class: DeviceScreenTracker, SampleRateHz: 60, PrecisionDeg: 0.8, HorizontalFOVDeg: 50, VerticalFOVDeg: 30},
	DeviceMobileAR:      {Class: DeviceMobileAR, SampleRateHz: 60, PrecisionDeg: 1.0, HorizontalFOVDeg: 60, VerticalFOVDeg: 45},
}

// Resolve returns the capability for a device class.
// Unknown classes resolve to the generic profile.
func Resolve(class DeviceClass) Capability {
	if c, ok := capabilities[DeviceClass(strings.ToLower(string(class)))]; ok {
		return c
	}
	return capabilities[DeviceGeneric]
}

// Classes lists the known device classes.
func Classes() []DeviceClass {
	return []DeviceClass{DeviceGeneric, DeviceHeadset, DeviceHeadsetPro, DeviceScreenTracker, DeviceMobileAR}
}
