// Package protocol defines the JSON side-channel messages sent to tracking
// subscribers alongside the binary frame buffer, and the control messages
// they may send back.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-facetrack/pkg/trigger"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → subscriber messages
	TypeTracking        MessageType = "tracking"         // Per-frame hands and triggers
	TypeReady           MessageType = "ready"            // Pipeline initialized
	TypeError           MessageType = "error"            // Pipeline error
	TypeCompanionStatus MessageType = "companion_status" // Companion socket up/down
	TypeVariable        MessageType = "variable_update"  // Variable pushed by the companion
	TypeStatus          MessageType = "status"           // Pipeline counters

	// Subscriber → server messages
	TypeConfig MessageType = "update_config" // Runtime configuration change

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
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
func (m *Message) ParseData(v interface{}) error {
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
// Server → Subscriber Message Types
// =============================================================================

// TrackingData accompanies each binary frame buffer. Sequence pairs it with
// the buffer sent just before it.
type TrackingData struct {
	Sequence        uint64            `json:"seq"`
	Timestamp       float64           `json:"timestamp"` // ms since pipeline start, same as the buffer header
	Subjects        int               `json:"subjects"`
	Hands           []vision.Hand     `json:"hands"`
	ActiveTriggers  []string          `json:"activeTriggers"`
	PendingTriggers []trigger.Pending `json:"pendingTriggers"`
}

// ErrorData reports a pipeline failure
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// CompanionStatusData reports the companion connection state
type CompanionStatusData struct {
	Connected bool `json:"isConnected"`
}

// VariableData relays a companion variable update
type VariableData struct {
	MessageType string `json:"messageType"` // generic, recording, playback
	Value       any    `json:"value"`
	Timestamp   int64  `json:"timestamp"` // Unix milliseconds
}

// StatusData contains pipeline counters
type StatusData struct {
	SessionID   string `json:"session_id"`
	Ready       bool   `json:"ready"`
	Processed   uint64 `json:"processed"`
	Dropped     uint64 `json:"dropped"`
	Recovered   uint64 `json:"recovered"`
	Panics      uint64 `json:"panics"`
	Tracks      int    `json:"tracks"`
	Companion   bool   `json:"companion"`
	Subscribers int    `json:"subscribers"`
}

// =============================================================================
// Subscriber → Server Message Types
// =============================================================================

// ConfigUpdate is a partial runtime configuration change. Nil fields are left alone.
type ConfigUpdate struct {
	ShowMesh    *bool            `json:"showMesh,omitempty"`
	HeadWidthMm *float64         `json:"headWidthMm,omitempty"`
	EyeOffsetX  *float64         `json:"eyeOffsetX,omitempty"`
	EyeOffsetPx *float64         `json:"eyeOffsetPx,omitempty"` // Vertical eye offset
	FOV         *float64         `json:"fov,omitempty"`
	GestureZone *trigger.Zone    `json:"gestureZone,omitempty"`
	HandZone    *trigger.Zone    `json:"handZone,omitempty"`
	Gestures    *trigger.Mapping `json:"gestures,omitempty"`
	Thresholds  *Thresholds      `json:"thresholds,omitempty"`
	Companion   *CompanionTarget `json:"companion,omitempty"`
}

// Thresholds are detector confidence thresholds. Nil fields are left alone.
type Thresholds struct {
	FaceDetect     *float64 `json:"faceDetect,omitempty"`
	HandDetect     *float64 `json:"handDetect,omitempty"`
	RecoveryDetect *float64 `json:"recoveryDetect,omitempty"`
	ScoutDetect    *float64 `json:"scoutDetect,omitempty"`
}

// CompanionTarget is the companion host and port
type CompanionTarget struct {
	Host string `json:"host"`
	Port int    `json:"port"`
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
