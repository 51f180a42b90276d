package tracking

import "github.com/teslashibe/go-facetrack/pkg/filter"

// Config holds all tunable parameters for multi-target tracking
type Config struct {
	// Output
	MaxSubjects int `json:"maxSubjects"` // Number of stable output slots

	// Matching
	MatchThreshold float64 `json:"matchThreshold"` // Max anchor distance in pixels for a match (strict)
	MaxLostFrames  int     `json:"maxLostFrames"`  // Delete a track once it has been lost for more than this

	// Smoothing
	Filters filter.BankParams `json:"filters"`
}

// DefaultConfig returns the recommended configuration for two webcam subjects
func DefaultConfig() Config {
	return Config{
		MaxSubjects: 2,

		MatchThreshold: 200, // ~10% of a 1080p frame width
		MaxLostFrames:  15,  // ~0.5s at 30fps

		Filters: filter.DefaultBankParams(),
	}
}

// SlowConfig returns a configuration for heavier smoothing and longer memory
func SlowConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxLostFrames = 30
	cfg.Filters.Position = filter.Params{MinCutoff: 0.5, Beta: 2.0, DCutoff: 1.0}
	cfg.Filters.Angle = filter.Params{MinCutoff: 0.5, Beta: 0.02, DCutoff: 1.0}
	return cfg
}

// AggressiveConfig returns a configuration for fast-moving subjects
func AggressiveConfig() Config {
	cfg := DefaultConfig()
	cfg.MatchThreshold = 300 // Allow bigger jumps between frames
	cfg.MaxLostFrames = 8
	return cfg
}
