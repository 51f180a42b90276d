package pipeline

import (
	"github.com/teslashibe/go-facetrack/pkg/trigger"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// CodeInitFailed is the error code reported when the detectors cannot load
const CodeInitFailed = "INIT_FAILED"

// Output is the result of one processed frame
type Output struct {
	Sequence        uint64            `json:"seq"`
	Timestamp       float64           `json:"timestamp"` // ms since pipeline start
	Buffer          []float32         `json:"-"`         // Owned by the receiver
	Subjects        int               `json:"subjects"`
	Hands           []vision.Hand     `json:"hands"`
	ActiveTriggers  []string          `json:"activeTriggers"`
	PendingTriggers []trigger.Pending `json:"pendingTriggers"`
}

// ErrorEvent reports a pipeline failure to subscribers
type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Stats are pipeline counters
type Stats struct {
	SessionID string `json:"sessionId"`
	Ready     bool   `json:"ready"`
	Processed uint64 `json:"processed"`
	Dropped   uint64 `json:"dropped"`
	Recovered uint64 `json:"recovered"` // Frames where recovery found the face
	Panics    uint64 `json:"panics"`
	Tracks    int    `json:"tracks"`
}
