package pipeline

import (
	"context"
	"errors"

	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Detectors is the set of inference backends the pipeline runs
type Detectors struct {
	Landmarker vision.FaceLandmarker    // Primary, video mode. Required.
	Scout      vision.FaceDetector      // Recovery face finder. Optional.
	Sniper     vision.FaceLandmarker    // Recovery landmarker, single-shot. Optional.
	Gestures   vision.GestureRecognizer // Optional.
}

// Close disposes every loaded detector
func (d *Detectors) Close() error {
	var errs []error
	if d.Landmarker != nil {
		errs = append(errs, d.Landmarker.Close())
	}
	if d.Scout != nil {
		errs = append(errs, d.Scout.Close())
	}
	if d.Sniper != nil {
		errs = append(errs, d.Sniper.Close())
	}
	if d.Gestures != nil {
		errs = append(errs, d.Gestures.Close())
	}
	return errors.Join(errs...)
}

// setThresholds forwards confidence thresholds to detectors that accept them
func (d *Detectors) setThresholds(t Thresholds) {
	set := func(v any, conf float64) {
		if s, ok := v.(vision.ThresholdSetter); ok {
			s.SetThreshold(conf)
		}
	}
	set(d.Landmarker, t.FaceDetect)
	set(d.Scout, t.ScoutDetect)
	set(d.Sniper, t.RecoveryDetect)
	set(d.Gestures, t.HandDetect)
}

// DetectorLoader creates the detectors for a configuration
type DetectorLoader interface {
	Load(ctx context.Context, cfg Config) (*Detectors, error)
}

// LoaderFunc adapts a function to DetectorLoader
type LoaderFunc func(ctx context.Context, cfg Config) (*Detectors, error)

// Load calls f
func (f LoaderFunc) Load(ctx context.Context, cfg Config) (*Detectors, error) {
	return f(ctx, cfg)
}
