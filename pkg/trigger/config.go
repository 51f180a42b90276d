package trigger

import (
	"time"

	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Zone is a normalized screen region with a hold time
type Zone struct {
	Enabled        bool       `json:"enabled"`
	Box            vision.Box `json:"box"`
	HoldDurationMs int        `json:"holdDurationMs"`
}

// HoldDuration returns the hold time as a duration
func (z Zone) HoldDuration() time.Duration {
	return time.Duration(z.HoldDurationMs) * time.Millisecond
}

// Action is the companion button a trigger presses
type Action struct {
	Page int `json:"page"`
	Bank int `json:"bank"`
}

// Definition binds a trigger id to the gesture that fires it
type Definition struct {
	ID      string         `json:"id"`
	Gesture vision.Gesture `json:"gesture"`
	Action  Action         `json:"action"`
}

// Trigger ids
const (
	StartRecording = "start-rec"
	StopRecording  = "stop-rec"
	StartPlayback  = "start-play"
	StopPlayback   = "stop-play"
)

// Mapping is the user-facing gesture assignment for the four triggers
type Mapping struct {
	StartRecording vision.Gesture `json:"startRecording"`
	StopRecording  vision.Gesture `json:"stopRecording"`
	StartPlayback  vision.Gesture `json:"startPlayback"`
	StopPlayback   vision.Gesture `json:"stopPlayback"`
}

// DefaultMapping returns the factory gesture assignment
func DefaultMapping() Mapping {
	return Mapping{
		StartRecording: vision.GestureThumbUp,
		StopRecording:  vision.GestureOpenPalm,
		StartPlayback:  vision.GesturePointingUp,
		StopPlayback:   vision.GestureClosedFist,
	}
}

// Definitions expands the mapping into trigger definitions on companion page 1, banks 1-4
func (m Mapping) Definitions() []Definition {
	return []Definition{
		{ID: StartRecording, Gesture: m.StartRecording, Action: Action{Page: 1, Bank: 1}},
		{ID: StopRecording, Gesture: m.StopRecording, Action: Action{Page: 1, Bank: 2}},
		{ID: StartPlayback, Gesture: m.StartPlayback, Action: Action{Page: 1, Bank: 3}},
		{ID: StopPlayback, Gesture: m.StopPlayback, Action: Action{Page: 1, Bank: 4}},
	}
}

// DefaultDefinitions returns the definitions for DefaultMapping
func DefaultDefinitions() []Definition {
	return DefaultMapping().Definitions()
}

// Config holds trigger timing and zone settings
type Config struct {
	GestureZone  Zone          `json:"gestureZone"` // Where gestures count; HoldDurationMs is the trigger hold
	ReleaseDelay time.Duration `json:"-"`           // Grace period after losing a match
}

// DefaultHoldMs is the hold time used when the gesture zone leaves it unset
const DefaultHoldMs = 150

// DefaultConfig returns the recommended trigger configuration
func DefaultConfig() Config {
	return Config{
		GestureZone: Zone{
			Enabled:        true,
			Box:            vision.Box{X: 0.3, Y: 0.2, Width: 0.4, Height: 0.6}, // Center-ish
			HoldDurationMs: DefaultHoldMs,
		},
		ReleaseDelay: 300 * time.Millisecond,
	}
}

// hold returns the effective hold time
func (c Config) hold() time.Duration {
	if c.GestureZone.HoldDurationMs <= 0 {
		return DefaultHoldMs * time.Millisecond
	}
	return c.GestureZone.HoldDuration()
}
