package detection

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/pipeline"
)

// Load creates the OpenCV detectors for cfg. The face mesh and its box
// detector are required; recovery and gestures are skipped with a warning
// when their models are missing.
func Load(ctx context.Context, cfg pipeline.Config) (*pipeline.Detectors, error) {
	logger := log.Component("detection")
	det := &pipeline.Detectors{}

	boxCfg := DefaultConfig()
	boxCfg.ModelPath = cfg.Models.FaceDetector
	boxCfg.ConfidenceThresh = cfg.Thresholds.FaceDetect
	boxes, err := NewYuNet(boxCfg)
	if err != nil {
		return nil, fmt.Errorf("face detector: %w", err)
	}

	meshCfg := DefaultMeshConfig()
	meshCfg.ModelPath = cfg.Models.FaceLandmarker
	meshCfg.PresenceThresh = cfg.Thresholds.FaceDetect
	meshCfg.MaxFaces = cfg.MaxSubjects
	landmarker, err := NewMesh(meshCfg, boxes)
	if err != nil {
		boxes.Close()
		return nil, fmt.Errorf("face landmarker: %w", err)
	}
	det.Landmarker = landmarker

	if err := ctx.Err(); err != nil {
		det.Close()
		return nil, err
	}

	// Recovery: scout boxes plus a single-shot sniper mesh
	scoutCfg := boxCfg
	scoutCfg.ConfidenceThresh = cfg.Thresholds.ScoutDetect
	scout, err := NewYuNet(scoutCfg)
	if err == nil {
		sniperCfg := meshCfg
		sniperCfg.PresenceThresh = cfg.Thresholds.RecoveryDetect
		sniperCfg.MaxFaces = 1
		sniper, serr := NewMesh(sniperCfg, nil)
		if serr == nil {
			det.Scout, det.Sniper = scout, sniper
		} else {
			scout.Close()
			err = serr
		}
	}
	if err != nil {
		logger.Warn("recovery disabled", "error", err)
	}

	gestCfg := DefaultGestureConfig()
	gestCfg.ModelPath = cfg.Models.GestureRecognizer
	gestCfg.ConfidenceThresh = float32(cfg.Thresholds.HandDetect)
	if gestures, err := NewGesture(gestCfg); err == nil {
		det.Gestures = gestures
	} else {
		logger.Warn("gesture recognition disabled", "error", err)
	}

	logger.Info("detectors loaded",
		"landmarker", cfg.Models.FaceLandmarker,
		"recovery", det.Scout != nil,
		"gestures", det.Gestures != nil)
	return det, nil
}
