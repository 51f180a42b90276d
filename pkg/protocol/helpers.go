package protocol

import (
	"time"

	"github.com/teslashibe/go-facetrack/pkg/trigger"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewTrackingMessage creates the per-frame side-channel message
func NewTrackingMessage(seq uint64, tsMillis float64, subjects int, hands []vision.Hand, active []string, pending []trigger.Pending) (*Message, error) {
	// Empty lists serialize as [] so subscribers can iterate without nil checks
	if hands == nil {
		hands = []vision.Hand{}
	}
	if active == nil {
		active = []string{}
	}
	if pending == nil {
		pending = []trigger.Pending{}
	}
	return NewMessage(TypeTracking, TrackingData{
		Sequence:        seq,
		Timestamp:       tsMillis,
		Subjects:        subjects,
		Hands:           hands,
		ActiveTriggers:  active,
		PendingTriggers: pending,
	})
}

// NewReadyMessage creates an init-complete message
func NewReadyMessage() (*Message, error) {
	return NewMessage(TypeReady, nil)
}

// NewErrorMessage creates an error message
func NewErrorMessage(message, code string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: message, Code: code})
}

// NewCompanionStatusMessage creates a companion status message
func NewCompanionStatusMessage(connected bool) (*Message, error) {
	return NewMessage(TypeCompanionStatus, CompanionStatusData{Connected: connected})
}

// NewVariableMessage creates a companion variable relay message
func NewVariableMessage(kind string, value any, at time.Time) (*Message, error) {
	return NewMessage(TypeVariable, VariableData{
		MessageType: kind,
		Value:       value,
		Timestamp:   at.UnixMilli(),
	})
}

// NewStatusMessage creates a status message
func NewStatusMessage(status StatusData) (*Message, error) {
	return NewMessage(TypeStatus, status)
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
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

// GetTrackingData extracts tracking data from a message
func (m *Message) GetTrackingData() (*TrackingData, error) {
	var data TrackingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetConfigUpdate extracts config update from a message
func (m *Message) GetConfigUpdate() (*ConfigUpdate, error) {
	var data ConfigUpdate
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
