package detection

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/pkg/debug"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Config holds face box detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.2 for scouting)
	NMSThresh        float64
	InputWidth       int // Initial model input width, updated per frame
	InputHeight      int
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet_2023mar.onnx",
		ConfidenceThresh: 0.2,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// Scored is a face box with its detector confidence
type Scored struct {
	Box        vision.Box
	Confidence float64
}

// YuNetDetector uses OpenCV's FaceDetectorYN to find face boxes
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",                                        // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight), // Initial input size
		float32(cfg.ConfidenceThresh),             // Score threshold
		float32(cfg.NMSThresh),                    // NMS threshold
		5000,                                      // Top K
		int(gocv.NetBackendDefault),               // Backend
		int(gocv.NetTargetCPU),                    // Target
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect finds face boxes in frame, normalized to the frame
func (d *YuNetDetector) Detect(frame vision.Frame) ([]vision.Box, error) {
	scored, err := d.DetectScored(frame)
	if err != nil {
		return nil, err
	}
	boxes := make([]vision.Box, len(scored))
	for i, s := range scored {
		boxes[i] = s.Box
	}
	return boxes, nil
}

// DetectScored is Detect with the confidence of each box, best first (see Rank)
func (d *YuNetDetector) DetectScored(frame vision.Frame) ([]Scored, error) {
	img, err := matOf(frame)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	// Update detector input size to match image
	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)

	// YuNet output format (15 columns):
	// 0-3: x, y, w, h (bounding box in pixels)
	// 4-13: 5 facial landmarks (x,y pairs)
	// 14: face score
	var out []Scored
	for r := 0; r < faces.Rows(); r++ {
		x := float64(faces.GetFloatAt(r, 0))
		y := float64(faces.GetFloatAt(r, 1))
		w := float64(faces.GetFloatAt(r, 2))
		h := float64(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		out = append(out, Scored{
			Box:        vision.Box{X: x / imgW, Y: y / imgH, Width: w / imgW, Height: h / imgH},
			Confidence: score,
		})
	}
	Rank(out)

	if len(out) > 0 {
		debug.TrackLog("yunet found faces", "count", len(out), "best", out[0].Confidence)
	}
	return out, nil
}

// SetThreshold changes the minimum face score
func (d *YuNetDetector) SetThreshold(confidence float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.ConfidenceThresh = confidence
	d.detector.SetScoreThreshold(float32(confidence))
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
