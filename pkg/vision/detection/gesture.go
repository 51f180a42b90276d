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

// GestureConfig holds hand gesture detector configuration
type GestureConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	MaxHands         int
	Labels           []vision.Gesture // Model class index to gesture
	MirrorX          bool             // Flip boxes horizontally for a selfie view
}

// DefaultGestureLabels is the class order of the bundled hand gesture model
var DefaultGestureLabels = []vision.Gesture{
	vision.GestureNone,
	vision.GestureClosedFist,
	vision.GestureOpenPalm,
	vision.GesturePointingUp,
	vision.GestureThumbDown,
	vision.GestureThumbUp,
	vision.GestureVictory,
	vision.GestureILoveYou,
}

// DefaultGestureConfig returns production defaults for a YOLOv8n hand gesture export
func DefaultGestureConfig() GestureConfig {
	return GestureConfig{
		ModelPath:        "models/hand_gestures.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		MaxHands:         2,
		Labels:           DefaultGestureLabels,
		MirrorX:          true,
	}
}

// GestureDetector finds hands and their gesture with a single YOLOv8 pass:
// every class of the model is one gesture.
type GestureDetector struct {
	net       gocv.Net
	config    GestureConfig
	mu        sync.Mutex
	inputSize image.Point
	lastTs    int64
}

// NewGesture creates a new YOLO hand gesture detector
func NewGesture(cfg GestureConfig) (*GestureDetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if len(cfg.Labels) == 0 {
		return nil, fmt.Errorf("gesture model needs class labels")
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load gesture model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &GestureDetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		lastTs:    -1,
	}, nil
}

// RecognizeForVideo finds hands in frame. Timestamps must strictly increase.
func (d *GestureDetector) RecognizeForVideo(frame vision.Frame, tsMillis int64) ([]vision.Hand, error) {
	img, err := matOf(frame)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if tsMillis <= d.lastTs {
		return nil, fmt.Errorf("timestamp %d not after %d", tsMillis, d.lastTs)
	}
	d.lastTs = tsMillis

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	hands := d.parseOutput(output, imgW, imgH)
	if len(hands) > 0 {
		debug.TrackLog("hands found", "count", len(hands), "gesture", hands[0].Gesture)
	}
	return hands, nil
}

// parseOutput parses the YOLOv8 output tensor
func (d *GestureDetector) parseOutput(output gocv.Mat, imgW, imgH float32) []vision.Hand {
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	// YOLOv8 output: [1, 4+classes, anchors]; read column-wise
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil
	}
	cols, rows := sizes[1], sizes[2]
	if cols < 4+len(d.config.Labels) {
		return nil
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < 4+len(d.config.Labels); c++ {
			score := data[c*rows+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}

		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		// Bounding box (center x, center y, width, height) in input pixels
		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * imgW / float32(d.config.InputWidth))
		y1 := int((cy - h/2) * imgH / float32(d.config.InputHeight))
		x2 := int((cx + w/2) * imgW / float32(d.config.InputWidth))
		y2 := int((cy + h/2) * imgH / float32(d.config.InputHeight))

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	var hands []vision.Hand
	for _, idx := range indices {
		if d.config.MaxHands > 0 && len(hands) >= d.config.MaxHands {
			break
		}
		box := boxes[idx]
		b := vision.Box{
			X:      float64(box.Min.X) / float64(imgW),
			Y:      float64(box.Min.Y) / float64(imgH),
			Width:  float64(box.Dx()) / float64(imgW),
			Height: float64(box.Dy()) / float64(imgH),
		}
		if d.config.MirrorX {
			b = MirrorX(b)
		}
		hands = append(hands, vision.Hand{
			Box:     b,
			Gesture: d.config.Labels[classIDs[idx]],
			Score:   float64(confidences[idx]),
		})
	}
	return hands
}

// MirrorX flips a normalized box horizontally
func MirrorX(b vision.Box) vision.Box {
	b.X = 1 - b.X - b.Width
	return b
}

// SetThreshold changes the minimum gesture score
func (d *GestureDetector) SetThreshold(confidence float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config.ConfidenceThresh = float32(confidence)
}

// Close releases the detector resources
func (d *GestureDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
