// Package protocol defines the JSON wire messages exchanged between gaze
// devices, event subscribers and gazed.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/ingest"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Device → server messages
	TypeHello      MessageType = "hello"      // Open a session
	TypeSample     MessageType = "sample"     // One gaze sample
	TypeSamples    MessageType = "samples"    // Batch of gaze samples
	TypeCalibrate  MessageType = "calibrate"  // Calibration points
	TypeTarget     MessageType = "target"     // Register a target
	TypeUntarget   MessageType = "untarget"   // Unregister a target
	TypeNavigation MessageType = "navigation" // Toggle navigation mode

	// Server → device/subscriber messages
	TypeWelcome    MessageType = "welcome"    // Session opened
	TypeCalibrated MessageType = "calibrated" // Calibration result
	TypeAck        MessageType = "ack"        // Command accepted
	TypeError      MessageType = "error"      // Command rejected

	// Outbound events
	TypeFixationStart MessageType = MessageType(gaze.KindFixationStart)
	TypeFixationEnd   MessageType = MessageType(gaze.KindFixationEnd)
	TypeSaccade       MessageType = MessageType(gaze.KindSaccade)
	TypeBlink         MessageType = MessageType(gaze.KindBlink)
	TypeSelection     MessageType = MessageType(gaze.KindSelection)
	TypeFocus         MessageType = MessageType(gaze.KindFocus)
	TypeAttention     MessageType = "attention"

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Device → Server Message Types
// =============================================================================

// HelloData opens a session and negotiates device capability
type HelloData struct {
	UserID string             `json:"user_id"`
	Device ingest.DeviceClass `json:"device"`
}

// SampleData is one inbound gaze sample
type SampleData = ingest.Raw

// SamplesData is a batch of samples, oldest first
type SamplesData struct {
	Samples []ingest.Raw `json:"samples"`
}

// CalibrateData carries calibration point pairs
type CalibrateData struct {
	Points []eyetracker.CalibrationPoint `json:"points"`
}

// TargetData registers an interactive target
type TargetData struct {
	ID        string    `json:"id"`
	Position  gaze.Vec3 `json:"position"`
	HitRadius float64   `json:"hit_radius"`
}

// UntargetData unregisters a target
type UntargetData struct {
	ID string `json:"id"`
}

// NavigationData toggles navigation mode
type NavigationData struct {
	Enabled bool `json:"enabled"`
}

// =============================================================================
// Server → Device Message Types
// =============================================================================

// WelcomeData confirms an opened session
type WelcomeData struct {
	SessionID string            `json:"session_id"`
	UserID    string            `json:"user_id"`
	Device    ingest.Capability `json:"device"`
}

// CalibratedData reports a calibration outcome
type CalibratedData struct {
	Accepted bool                `json:"accepted"`
	Profile  *eyetracker.Profile `json:"profile,omitempty"`
	Reason   string              `json:"reason,omitempty"`
}

// AckData confirms a command
type AckData struct {
	Command MessageType `json:"command"`
}

// ErrorData reports a rejected command
type ErrorData struct {
	Command MessageType `json:"command,omitempty"`
	Code    int         `json:"code"` // HTTP-equivalent status
	Message string      `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
