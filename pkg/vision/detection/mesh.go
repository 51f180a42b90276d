package detection

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/pkg/debug"
	"github.com/teslashibe/go-facetrack/pkg/recovery"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// MeshConfig holds face mesh landmarker configuration
type MeshConfig struct {
	ModelPath      string
	InputSize      int     // Square model input side (192 for the MediaPipe mesh)
	LandmarkOutput string  // Output layer with 468*3 landmark coordinates
	ScoreOutput    string  // Output layer with the face presence logit
	PresenceThresh float64 // Minimum face presence (0-1)
	MaxFaces       int
	RoiPadding     float64 // Margin added around a face box before meshing
}

// DefaultMeshConfig returns production defaults for the MediaPipe face mesh ONNX export
func DefaultMeshConfig() MeshConfig {
	return MeshConfig{
		ModelPath:      "models/face_mesh.onnx",
		InputSize:      192,
		LandmarkOutput: "conv2d_21",
		ScoreOutput:    "conv2d_31",
		PresenceThresh: 0.5,
		MaxFaces:       2,
		RoiPadding:     0.5,
	}
}

// MeshPoints is the number of landmarks the mesh model produces
const MeshPoints = 468

// MeshLandmarker runs a face mesh model on square regions around faces.
//
// In video mode the region of each face is carried over from the previous
// frame's landmarks, and the box detector only runs while fewer than MaxFaces
// faces are being followed. Single-shot mode treats the whole frame as the
// face region, which is how the recovery sniper calls it.
type MeshLandmarker struct {
	net    gocv.Net
	boxes  *YuNetDetector // Finds new faces in video mode. May be nil.
	config MeshConfig
	mu     sync.Mutex

	// Video mode state
	rois   []vision.Rect
	lastTs int64
}

// NewMesh loads the mesh model. boxes finds faces for video mode and is
// closed with the landmarker; without it only single-shot Detect produces results.
func NewMesh(cfg MeshConfig, boxes *YuNetDetector) (*MeshLandmarker, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load face mesh model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &MeshLandmarker{
		net:    net,
		boxes:  boxes,
		config: cfg,
		lastTs: -1,
	}, nil
}

// DetectForVideo finds up to MaxFaces faces. Timestamps must strictly increase.
func (m *MeshLandmarker) DetectForVideo(frame vision.Frame, tsMillis int64) ([]vision.Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tsMillis <= m.lastTs {
		return nil, fmt.Errorf("timestamp %d not after %d", tsMillis, m.lastTs)
	}
	m.lastTs = tsMillis

	w, h := frame.Width(), frame.Height()
	rois := m.rois
	if len(rois) < m.config.MaxFaces && m.boxes != nil {
		found, err := m.boxes.DetectScored(frame)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if len(rois) >= m.config.MaxFaces {
				break
			}
			if overlapsAny(f.Box, rois, w, h) {
				continue
			}
			rois = append(rois, f.Box.Pixels(w, h))
		}
	}

	faces := make([]vision.Face, 0, len(rois))
	next := make([]vision.Rect, 0, len(rois))
	for _, roi := range rois {
		region, crop := recovery.SquareCrop(roi, m.config.RoiPadding, w, h)
		lms, ok, err := m.meshRegion(frame, region, crop)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		faces = append(faces, vision.Face{Landmarks: lms})
		next = append(next, landmarkBounds(lms, w, h))
	}
	m.rois = next

	debug.TrackLog("face mesh", "ts", tsMillis, "rois", len(rois), "faces", len(faces))
	return faces, nil
}

// Detect runs the mesh on the whole frame and returns at most one face
func (m *MeshLandmarker) Detect(frame vision.Frame) ([]vision.Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	region := image.Rect(0, 0, frame.Width(), frame.Height())
	lms, ok, err := m.meshRegion(frame, region, recovery.Identity)
	if err != nil || !ok {
		return nil, err
	}
	return []vision.Face{{Landmarks: lms}}, nil
}

// meshRegion runs the model on region and remaps the landmarks with crop
func (m *MeshLandmarker) meshRegion(frame vision.Frame, region image.Rectangle, crop recovery.Crop) ([]vision.Landmark, bool, error) {
	size := m.config.InputSize
	input, err := frame.Crop(region, size)
	if err != nil {
		return nil, false, fmt.Errorf("crop face region: %w", err)
	}
	defer input.Close()

	img, err := matOf(input)
	if err != nil {
		return nil, false, err
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	outs := m.net.ForwardLayers([]string{m.config.LandmarkOutput, m.config.ScoreOutput})
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()
	if len(outs) != 2 {
		return nil, false, fmt.Errorf("face mesh returned %d outputs, want 2", len(outs))
	}

	score, err := outs[1].DataPtrFloat32()
	if err != nil || len(score) == 0 {
		return nil, false, fmt.Errorf("read face presence: %w", err)
	}
	if sigmoid(float64(score[0])) < m.config.PresenceThresh {
		return nil, false, nil
	}

	coords, err := outs[0].DataPtrFloat32()
	if err != nil {
		return nil, false, fmt.Errorf("read face landmarks: %w", err)
	}
	if len(coords) < MeshPoints*3 {
		return nil, false, fmt.Errorf("face mesh returned %d values, want %d", len(coords), MeshPoints*3)
	}

	s := float64(size)
	lms := make([]vision.Landmark, MeshPoints)
	for i := range lms {
		local := vision.Landmark{
			X: float64(coords[3*i]) / s,
			Y: float64(coords[3*i+1]) / s,
			Z: float64(coords[3*i+2]) / s,
		}
		lms[i] = crop.ToGlobal(local)
	}
	return lms, true, nil
}

// SetThreshold changes the minimum face presence and box score
func (m *MeshLandmarker) SetThreshold(confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.PresenceThresh = confidence
	if m.boxes != nil {
		m.boxes.SetThreshold(confidence)
	}
}

// Close releases the model and the box detector
func (m *MeshLandmarker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rois = nil
	if m.boxes != nil {
		m.boxes.Close()
	}
	return m.net.Close()
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// landmarkBounds is the pixel bounding box of normalized landmarks
func landmarkBounds(lms []vision.Landmark, w, h int) vision.Rect {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, lm := range lms {
		minX, maxX = math.Min(minX, lm.X), math.Max(maxX, lm.X)
		minY, maxY = math.Min(minY, lm.Y), math.Max(maxY, lm.Y)
	}
	return vision.Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}.Pixels(w, h)
}

// overlapsAny reports whether b (normalized) overlaps one of the pixel rois
func overlapsAny(b vision.Box, rois []vision.Rect, w, h int) bool {
	for _, r := range rois {
		roi := vision.Box{
			X:      r.X / float64(w),
			Y:      r.Y / float64(h),
			Width:  r.Width / float64(w),
			Height: r.Height / float64(h),
		}
		if roi.Intersects(b) {
			return true
		}
	}
	return false
}
