package protocol

import (
	"fmt"

	"github.com/teslashibe/go-gaze/pkg/eyetracker"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/ingest"
	"github.com/teslashibe/go-gaze/pkg/stream"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewHelloMessage creates a session-open message
func NewHelloMessage(userID string, device ingest.DeviceClass) (*Message, error) {
	return NewMessage(TypeHello, HelloData{UserID: userID, Device: device})
}

// NewSampleMessage creates a single-sample message
func NewSampleMessage(raw ingest.Raw) (*Message, error) {
	return NewMessage(TypeSample, raw)
}

// NewSamplesMessage creates a batched sample message
func NewSamplesMessage(raws []ingest.Raw) (*Message, error) {
	return NewMessage(TypeSamples, SamplesData{Samples: raws})
}

// NewCalibrateMessage creates a calibration message
func NewCalibrateMessage(points []eyetracker.CalibrationPoint) (*Message, error) {
	return NewMessage(TypeCalibrate, CalibrateData{Points: points})
}

// NewTargetMessage creates a target registration message
func NewTargetMessage(id string, position gaze.Vec3, hitRadius float64) (*Message, error) {
	return NewMessage(TypeTarget, TargetData{ID: id, Position: position, HitRadius: hitRadius})
}

// NewUntargetMessage creates a target removal message
func NewUntargetMessage(id string) (*Message, error) {
	return NewMessage(TypeUntarget, UntargetData{ID: id})
}

// NewNavigationMessage creates a navigation toggle message
func NewNavigationMessage(enabled bool) (*Message, error) {
	return NewMessage(TypeNavigation, NavigationData{Enabled: enabled})
}

// NewWelcomeMessage creates a session-opened reply
func NewWelcomeMessage(sessionID, userID string, device ingest.Capability) (*Message, error) {
	msg, err := NewMessage(TypeWelcome, WelcomeData{SessionID: sessionID, UserID: userID, Device: device})
	if err != nil {
		return nil, err
	}
	msg.UserID = userID
	return msg, nil
}

// NewCalibratedMessage creates a calibration result reply
func NewCalibratedMessage(profile *eyetracker.Profile, calErr error) (*Message, error) {
	data := CalibratedData{Accepted: calErr == nil, Profile: profile}
	if calErr != nil {
		data.Profile = nil
		data.Reason = calErr.Error()
	}
	return NewMessage(TypeCalibrated, data)
}

// NewAckMessage creates a command acknowledgement
func NewAckMessage(command MessageType) (*Message, error) {
	return NewMessage(TypeAck, AckData{Command: command})
}

// NewErrorMessage creates an error reply
func NewErrorMessage(command MessageType, code int, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Command: command, Code: code, Message: message})
}

// NewEventMessage wraps a classified, selection or focus event
func NewEventMessage(userID string, ev gaze.Event) (*Message, error) {
	msg, err := NewMessage(MessageType(ev.Kind()), ev)
	if err != nil {
		return nil, err
	}
	msg.UserID = userID
	msg.Timestamp = ev.Time()
	return msg, nil
}

// FromStream converts an outbound bus message to its wire form
func FromStream(m stream.Message) (*Message, error) {
	if ev, ok := m.Payload.(gaze.Event); ok {
		return NewEventMessage(m.UserID, ev)
	}
	if m.Kind != stream.KindAttention {
		return nil, fmt.Errorf("unsupported stream message kind %q", m.Kind)
	}
	msg, err := NewMessage(TypeAttention, m.Payload)
	if err != nil {
		return nil, err
	}
	msg.UserID = m.UserID
	msg.Timestamp = m.Ts
	return msg, nil
}

// NewPingMessage creates a ping message
func NewPingMessage(id string, ts int64) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: ts})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetHelloData extracts hello data from a message
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSampleData extracts a single sample from a message
func (m *Message) GetSampleData() (*SampleData, error) {
	var data SampleData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSamplesData extracts a sample batch from a message
func (m *Message) GetSamplesData() (*SamplesData, error) {
	var data SamplesData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCalibrateData extracts calibration points from a message
func (m *Message) GetCalibrateData() (*CalibrateData, error) {
	var data CalibrateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTargetData extracts a target registration from a message
func (m *Message) GetTargetData() (*TargetData, error) {
	var data TargetData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetUntargetData extracts a target removal from a message
func (m *Message) GetUntargetData() (*UntargetData, error) {
	var data UntargetData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetNavigationData extracts a navigation toggle from a message
func (m *Message) GetNavigationData() (*NavigationData, error) {
	var data NavigationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetWelcomeData extracts a welcome reply from a message
func (m *Message) GetWelcomeData() (*WelcomeData, error) {
	var data WelcomeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCalibratedData extracts a calibration result from a message
func (m *Message) GetCalibratedData() (*CalibratedData, error) {
	var data CalibratedData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts an error reply from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSelectionEvent extracts a selection event from a message
func (m *Message) GetSelectionEvent() (*gaze.SelectionEvent, error) {
	var data gaze.SelectionEvent
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
