package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-facetrack/pkg/filter"
	"github.com/teslashibe/go-facetrack/pkg/framebuf"
	"github.com/teslashibe/go-facetrack/pkg/geometry"
	"github.com/teslashibe/go-facetrack/pkg/protocol"
	"github.com/teslashibe/go-facetrack/pkg/recovery"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
	"github.com/teslashibe/go-facetrack/pkg/trigger"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Thresholds are detector confidence thresholds (0-1)
type Thresholds struct {
	FaceDetect     float64 `json:"faceDetect"`
	HandDetect     float64 `json:"handDetect"`
	RecoveryDetect float64 `json:"recoveryDetect"` // Sniper landmarker
	ScoutDetect    float64 `json:"scoutDetect"`    // Scout face detector
}

// ModelPaths locates the detector model files
type ModelPaths struct {
	FaceLandmarker    string `json:"faceLandmarker"`
	FaceDetector      string `json:"faceDetector"`
	GestureRecognizer string `json:"gestureRecognizer"`
}

// CompanionConfig is the companion socket address
type CompanionConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Config holds everything the pipeline needs per frame
type Config struct {
	// Camera
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FOV    float64 `json:"fov"` // Horizontal, degrees

	// Subjects
	MaxSubjects int     `json:"maxFaces"`
	ShowMesh    bool    `json:"showMesh"`
	MeshPoints  int     `json:"meshPoints"`
	HeadWidthMm float64 `json:"headWidthMm"` // Ear-to-ear reference width

	// Eye-level offset from the solved head center, pixels
	EyeOffsetX float64 `json:"eyeOffsetX"`
	EyeOffsetY float64 `json:"eyeOffsetPx"`

	// Tracking
	MatchThreshold float64           `json:"matchThreshold"` // Pixels
	MaxLostFrames  int               `json:"maxLostFrames"`
	Filters        filter.BankParams `json:"filters"`

	// Gestures
	HandEvery      int             `json:"handEvery"`   // Run the gesture recognizer every Nth frame
	HandZone       trigger.Zone    `json:"handZone"`    // Visual feedback only
	GestureZone    trigger.Zone    `json:"gestureZone"` // Filters where triggers fire
	Gestures       trigger.Mapping `json:"gestures"`
	ReleaseDelayMs int             `json:"releaseDelayMs"`

	Thresholds Thresholds      `json:"thresholds"`
	Recovery   recovery.Config `json:"recovery"`
	Models     ModelPaths      `json:"modelPaths"`
	Companion  CompanionConfig `json:"companion"`
}

// DefaultConfig returns the recommended configuration for a 1080p webcam
func DefaultConfig() Config {
	trk := tracking.DefaultConfig()
	trg := trigger.DefaultConfig()

	return Config{
		Width:  1920,
		Height: 1080,
		FOV:    geometry.DefaultFOV,

		MaxSubjects: trk.MaxSubjects,
		ShowMesh:    true,
		MeshPoints:  framebuf.DefaultMeshPoints,
		HeadWidthMm: 160, // Average adult ear-to-ear

		MatchThreshold: trk.MatchThreshold,
		MaxLostFrames:  trk.MaxLostFrames,
		Filters:        trk.Filters,

		HandEvery: 3, // ~10fps at 30fps input
		HandZone: trigger.Zone{
			Enabled:        true,
			Box:            vision.Box{X: 0.05, Y: 0.05, Width: 0.2, Height: 0.2}, // Top left
			HoldDurationMs: 3000,
		},
		GestureZone:    trg.GestureZone,
		Gestures:       trigger.DefaultMapping(),
		ReleaseDelayMs: int(trg.ReleaseDelay / time.Millisecond),

		Thresholds: Thresholds{
			FaceDetect:     0.5,
			HandDetect:     0.5,
			RecoveryDetect: 0.3,
			ScoutDetect:    0.2,
		},
		Recovery: recovery.DefaultConfig(),
		Models: ModelPaths{
			FaceLandmarker:    "models/face_mesh.onnx",
			FaceDetector:      "models/face_detection_yunet_2023mar.onnx",
			GestureRecognizer: "models/hand_gestures.onnx",
		},
		Companion: CompanionConfig{Host: "localhost", Port: 28492},
	}
}

// Camera returns the camera model for the geometry solver
func (c Config) Camera() geometry.Camera {
	return geometry.Camera{Width: c.Width, Height: c.Height, FOV: c.FOV}
}

// TrackingConfig returns the tracker settings
func (c Config) TrackingConfig() tracking.Config {
	return tracking.Config{
		MaxSubjects:    c.MaxSubjects,
		MatchThreshold: c.MatchThreshold,
		MaxLostFrames:  c.MaxLostFrames,
		Filters:        c.Filters,
	}
}

// TriggerConfig returns the trigger evaluator settings
func (c Config) TriggerConfig() trigger.Config {
	return trigger.Config{
		GestureZone:  c.GestureZone,
		ReleaseDelay: time.Duration(c.ReleaseDelayMs) * time.Millisecond,
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid frame size %dx%d", c.Width, c.Height))
	}
	if c.MaxSubjects < 1 {
		errs = append(errs, fmt.Errorf("maxFaces must be at least 1, got %d", c.MaxSubjects))
	}
	if c.MeshPoints < 0 {
		errs = append(errs, fmt.Errorf("meshPoints must not be negative, got %d", c.MeshPoints))
	}
	if c.HeadWidthMm <= 0 {
		errs = append(errs, fmt.Errorf("headWidthMm must be positive, got %v", c.HeadWidthMm))
	}
	if c.HandEvery < 1 {
		errs = append(errs, fmt.Errorf("handEvery must be at least 1, got %d", c.HandEvery))
	}
	if c.Recovery.CropSize < 1 {
		errs = append(errs, fmt.Errorf("recovery.offscreenSize must be positive, got %d", c.Recovery.CropSize))
	}
	return errors.Join(errs...)
}

// ApplyUpdate merges a partial subscriber update into the config.
// It reports whether the companion address changed.
func (c *Config) ApplyUpdate(u protocol.ConfigUpdate) (companionChanged bool) {
	if u.ShowMesh != nil {
		c.ShowMesh = *u.ShowMesh
	}
	if u.HeadWidthMm != nil && *u.HeadWidthMm > 0 {
		c.HeadWidthMm = *u.HeadWidthMm
	}
	if u.EyeOffsetX != nil {
		c.EyeOffsetX = *u.EyeOffsetX
	}
	if u.EyeOffsetPx != nil {
		c.EyeOffsetY = *u.EyeOffsetPx
	}
	if u.FOV != nil && *u.FOV > 0 {
		c.FOV = *u.FOV
	}
	if u.GestureZone != nil {
		c.GestureZone = *u.GestureZone
	}
	if u.HandZone != nil {
		c.HandZone = *u.HandZone
	}
	if u.Gestures != nil {
		c.Gestures = *u.Gestures
	}
	if t := u.Thresholds; t != nil {
		setIf(&c.Thresholds.FaceDetect, t.FaceDetect)
		setIf(&c.Thresholds.HandDetect, t.HandDetect)
		setIf(&c.Thresholds.RecoveryDetect, t.RecoveryDetect)
		setIf(&c.Thresholds.ScoutDetect, t.ScoutDetect)
	}
	if u.Companion != nil && u.Companion.Host != "" && u.Companion.Port > 0 {
		if u.Companion.Host != c.Companion.Host || u.Companion.Port != c.Companion.Port {
			c.Companion = CompanionConfig{Host: u.Companion.Host, Port: u.Companion.Port}
			companionChanged = true
		}
	}
	return companionChanged
}

func setIf(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
