// Package debug provides global debug logging flags
package debug

import (
	"fmt"

	"github.com/teslashibe/go-facetrack/internal/log"
)

// Enabled controls whether debug logging is active
var Enabled bool

// Tracking controls whether per-frame tracking logs are shown (matches, slots, recovery).
// Use --debug-tracking to enable these very verbose logs
var Tracking bool

// Log emits a formatted debug message only if debug mode is enabled
func Log(format string, args ...interface{}) {
	if Enabled {
		log.Debug(fmt.Sprintf(format, args...))
	}
}

// TrackLog emits a structured message only if tracking debug mode is enabled
func TrackLog(msg string, args ...any) {
	if Tracking {
		log.L().Debug(msg, args...)
	}
}
