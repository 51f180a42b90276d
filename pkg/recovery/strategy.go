// Package recovery finds a face the primary landmarker missed: a cheap scout
// detector locates a face box (full frame, then a zoomed center crop) and a
// precise sniper landmarker runs on a square crop around it.
package recovery

import (
	"log/slog"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/debug"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Config holds recovery tuning
type Config struct {
	CenterCropSize float64 `json:"centerCropSize"` // Share of the frame kept for the zoomed scout pass
	SniperPadding  float64 `json:"sniperPadding"`  // Extra margin around the scout box (0.5 = 50%)
	CropSize       int     `json:"offscreenSize"`  // Side in pixels the crops are resampled to
}

// DefaultConfig returns the recommended recovery configuration
func DefaultConfig() Config {
	return Config{
		CenterCropSize: 0.5,
		SniperPadding:  0.5,
		CropSize:       256,
	}
}

// Strategy runs the scout/sniper recovery pass.
// Not safe for concurrent use: the pipeline worker owns it.
type Strategy struct {
	config Config
	scout  vision.FaceDetector
	sniper vision.FaceLandmarker
	logger *slog.Logger
}

// New creates a recovery strategy over the given detectors
func New(scout vision.FaceDetector, sniper vision.FaceLandmarker, config Config) *Strategy {
	return &Strategy{
		config: config,
		scout:  scout,
		sniper: sniper,
		logger: log.Component("recovery"),
	}
}

// SetConfig replaces the tuning
func (s *Strategy) SetConfig(config Config) {
	s.config = config
}

// Run attempts recovery on frame and returns the landmarks of at most one
// face, normalized to frame. Any miss or detector failure yields nil.
func (s *Strategy) Run(frame vision.Frame) []vision.Landmark {
	if s.scout == nil || s.sniper == nil {
		return nil
	}

	w, h := frame.Width(), frame.Height()
	if w <= 0 || h <= 0 {
		return nil
	}

	box, ok := s.scoutFullFrame(frame)
	if !ok {
		box, ok = s.scoutCenter(frame)
	}
	if !ok {
		debug.TrackLog("recovery: scout found nothing")
		return nil
	}

	region, crop := SquareCrop(box.Pixels(w, h), s.config.SniperPadding, w, h)
	patch, err := frame.Crop(region, s.config.CropSize)
	if err != nil {
		s.logger.Warn("sniper crop failed", "error", err)
		return nil
	}
	defer patch.Close()

	faces, err := s.sniper.Detect(patch)
	if err != nil {
		s.logger.Warn("sniper detect failed", "error", err)
		return nil
	}
	if len(faces) == 0 || len(faces[0].Landmarks) == 0 {
		debug.TrackLog("recovery: sniper found nothing", "region", region)
		return nil
	}

	local := faces[0].Landmarks
	global := make([]vision.Landmark, len(local))
	for i, lm := range local {
		global[i] = crop.ToGlobal(lm)
	}
	debug.TrackLog("recovery: face recovered", "region", region, "landmarks", len(global))
	return global
}

// scoutFullFrame runs the scout on the whole frame
func (s *Strategy) scoutFullFrame(frame vision.Frame) (vision.Box, bool) {
	boxes, err := s.scout.Detect(frame)
	if err != nil {
		s.logger.Warn("scout detect failed", "error", err)
		return vision.Box{}, false
	}
	if len(boxes) == 0 {
		return vision.Box{}, false
	}
	return boxes[0], true
}

// scoutCenter zooms into the frame center and runs the scout again
func (s *Strategy) scoutCenter(frame vision.Frame) (vision.Box, bool) {
	region, crop := CenterCrop(s.config.CenterCropSize, frame.Width(), frame.Height())
	patch, err := frame.Crop(region, s.config.CropSize)
	if err != nil {
		s.logger.Warn("center crop failed", "error", err)
		return vision.Box{}, false
	}
	defer patch.Close()

	boxes, err := s.scout.Detect(patch)
	if err != nil {
		s.logger.Warn("scout detect failed", "error", err, "pass", "center")
		return vision.Box{}, false
	}
	if len(boxes) == 0 {
		return vision.Box{}, false
	}
	return crop.BoxToGlobal(boxes[0]), true
}
