package detection

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/pkg/recovery"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Error("Expected error for empty bytes")
	}
	if _, err := Decode([]byte("not a jpeg")); err == nil {
		t.Error("Expected error for invalid JPEG")
	}
}

func TestDecode_Size(t *testing.T) {
	frame, err := Decode(createSolidJPEG(320, 240, color.RGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer frame.Close()

	if frame.Width() != 320 || frame.Height() != 240 {
		t.Errorf("Decode: got %dx%d, want 320x240", frame.Width(), frame.Height())
	}
}

func TestMatFrame_CropPadsOutside(t *testing.T) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 100, 100, gocv.MatTypeCV8UC3)
	frame := NewMatFrame(mat)
	defer frame.Close()

	// Left half of the region lies outside the frame
	out, err := frame.Crop(image.Rect(-50, 0, 50, 100), 50)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	defer out.Close()

	if out.Width() != 50 || out.Height() != 50 {
		t.Fatalf("Crop: got %dx%d, want 50x50", out.Width(), out.Height())
	}
	m := out.(*MatFrame).Mat()
	if v := m.GetVecbAt(25, 5)[0]; v != 0 {
		t.Errorf("outside pixel: got %d, want 0", v)
	}
	if v := m.GetVecbAt(25, 45)[0]; v != 255 {
		t.Errorf("inside pixel: got %d, want 255", v)
	}
}

func TestMatFrame_CropFullyOutside(t *testing.T) {
	frame := NewMatFrame(gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3))
	defer frame.Close()

	out, err := frame.Crop(image.Rect(100, 100, 120, 120), 8)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	defer out.Close()
	if out.Width() != 8 {
		t.Errorf("Crop: got width %d, want 8", out.Width())
	}
}

func TestMatFrame_CropInvalid(t *testing.T) {
	frame := NewMatFrame(gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3))
	defer frame.Close()

	if _, err := frame.Crop(image.Rectangle{}, 8); err == nil {
		t.Error("Expected error for empty region")
	}
	if _, err := frame.Crop(image.Rect(0, 0, 5, 5), 0); err == nil {
		t.Error("Expected error for zero size")
	}
}

func TestMatOf_ForeignFrame(t *testing.T) {
	if _, err := matOf(foreignFrame{}); err != ErrNotMatFrame {
		t.Errorf("matOf: got %v, want ErrNotMatFrame", err)
	}
}

// TestYuNetNewInvalidPath tests error handling for missing model
func TestYuNetNewInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	if _, err := NewYuNet(cfg); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestNewMeshInvalidPath(t *testing.T) {
	cfg := DefaultMeshConfig()
	cfg.ModelPath = "/nonexistent/path/mesh.onnx"

	if _, err := NewMesh(cfg, nil); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

func TestNewGestureInvalid(t *testing.T) {
	cfg := DefaultGestureConfig()
	cfg.ModelPath = "/nonexistent/path/gestures.onnx"
	if _, err := NewGesture(cfg); err == nil {
		t.Error("Expected error for invalid model path")
	}
}

// TestYuNetDetect_SolidImage tests detection on solid color image (no faces)
func TestYuNetDetect_SolidImage(t *testing.T) {
	modelPath := findModelPath("face_detection_yunet_2023mar.onnx")
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	cfg.ConfidenceThresh = 0.5

	detector, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	frame, err := Decode(createSolidJPEG(320, 240, color.RGBA{0, 0, 255, 255}))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer frame.Close()

	boxes, err := detector.Detect(frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) > 0 {
		t.Errorf("Expected no detections in solid color image, got %d", len(boxes))
	}

	// The recovery strategy runs the scout on crops of the same frame
	region, _ := recovery.CenterCrop(0.5, frame.Width(), frame.Height())
	crop, err := frame.Crop(region, 256)
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	defer crop.Close()
	if _, err := detector.Detect(crop); err != nil {
		t.Errorf("Detect on crop failed: %v", err)
	}
}

// TestYuNetConcurrency tests thread safety
func TestYuNetConcurrency(t *testing.T) {
	modelPath := findModelPath("face_detection_yunet_2023mar.onnx")
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath

	detector, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	data := createSolidJPEG(320, 240, color.RGBA{100, 100, 100, 255})

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- true }()
			frame, err := Decode(data)
			if err != nil {
				t.Errorf("Decode failed: %v", err)
				return
			}
			defer frame.Close()
			if _, err := detector.Detect(frame); err != nil {
				t.Errorf("Concurrent detection failed: %v", err)
			}
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

// Helper functions

type foreignFrame struct{}

func (foreignFrame) Width() int   { return 1 }
func (foreignFrame) Height() int  { return 1 }
func (foreignFrame) Close() error { return nil }
func (foreignFrame) Crop(image.Rectangle, int) (vision.Frame, error) {
	return foreignFrame{}, nil
}

func findModelPath(name string) string {
	if cwd, err := os.Getwd(); err == nil {
		// Walk up to find models directory
		for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
			modelPath := filepath.Join(dir, "models", name)
			if _, err := os.Stat(modelPath); err == nil {
				return modelPath
			}
		}
	}
	return ""
}

func createSolidJPEG(width, height int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
