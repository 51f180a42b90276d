package detection

import (
	"math"
	"testing"

	"github.com/teslashibe/go-facetrack/pkg/vision"
)

func TestRank(t *testing.T) {
	tests := []struct {
		name      string
		faces     []Scored
		expectTop float64 // Confidence of the face ranked first
	}{
		{
			name:      "single face",
			faces:     []Scored{{Box: vision.Box{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2}, Confidence: 0.9}},
			expectTop: 0.9,
		},
		{
			name: "high confidence beats larger area",
			faces: []Scored{
				{Box: vision.Box{Width: 0.4, Height: 0.4}, Confidence: 0.5},                  // Larger but low conf
				{Box: vision.Box{X: 0.3, Y: 0.3, Width: 0.2, Height: 0.2}, Confidence: 0.95}, // Smaller but high conf
			},
			expectTop: 0.95, // 0.95*0.7 + 0.25*0.3 = 0.74 vs 0.5*0.7 + 1.0*0.3 = 0.65
		},
		{
			name: "similar confidence picks larger",
			faces: []Scored{
				{Box: vision.Box{X: 0.3, Y: 0.3, Width: 0.1, Height: 0.1}, Confidence: 0.8},
				{Box: vision.Box{Width: 0.5, Height: 0.5}, Confidence: 0.81},
			},
			expectTop: 0.81,
		},
		{
			name: "zero area falls back to confidence",
			faces: []Scored{
				{Confidence: 0.3},
				{Confidence: 0.6},
			},
			expectTop: 0.6,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			Rank(tc.faces)
			if tc.faces[0].Confidence != tc.expectTop {
				t.Errorf("Rank: top confidence %.2f, want %.2f", tc.faces[0].Confidence, tc.expectTop)
			}
		})
	}
}

func TestMirrorX(t *testing.T) {
	got := MirrorX(vision.Box{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4})
	if math.Abs(got.X-0.6) > 1e-9 || got.Y != 0.2 || got.Width != 0.3 || got.Height != 0.4 {
		t.Errorf("MirrorX: got %+v", got)
	}

	// Mirroring twice is the identity
	b := vision.Box{X: 0.25, Y: 0.5, Width: 0.1, Height: 0.1}
	if back := MirrorX(MirrorX(b)); math.Abs(back.X-b.X) > 1e-9 {
		t.Errorf("MirrorX twice: got %+v, want %+v", back, b)
	}
}

func TestLandmarkBounds(t *testing.T) {
	lms := []vision.Landmark{{X: 0.25, Y: 0.5}, {X: 0.5, Y: 0.25}, {X: 0.375, Y: 0.75}}
	got := landmarkBounds(lms, 1000, 800)
	want := vision.Rect{X: 250, Y: 200, Width: 250, Height: 400}
	if math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 ||
		math.Abs(got.Width-want.Width) > 1e-9 || math.Abs(got.Height-want.Height) > 1e-9 {
		t.Errorf("landmarkBounds: got %+v, want %+v", got, want)
	}
}

func TestOverlapsAny(t *testing.T) {
	rois := []vision.Rect{{X: 100, Y: 100, Width: 100, Height: 100}}

	tests := []struct {
		name   string
		box    vision.Box
		expect bool
	}{
		{"inside", vision.Box{X: 0.12, Y: 0.12, Width: 0.02, Height: 0.02}, true},
		{"far away", vision.Box{X: 0.8, Y: 0.8, Width: 0.1, Height: 0.1}, false},
		{"touching edge", vision.Box{X: 0.2, Y: 0.1, Width: 0.1, Height: 0.1}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := overlapsAny(tc.box, rois, 1000, 1000); got != tc.expect {
				t.Errorf("overlapsAny: got %v, want %v", got, tc.expect)
			}
		})
	}
}

func TestSigmoid(t *testing.T) {
	if got := sigmoid(0); got != 0.5 {
		t.Errorf("sigmoid(0): got %v, want 0.5", got)
	}
	if sigmoid(10) < 0.99 || sigmoid(-10) > 0.01 {
		t.Error("sigmoid should saturate")
	}
}

func TestDefaultConfigs(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ModelPath == "" {
		t.Error("DefaultConfig: ModelPath should not be empty")
	}
	if cfg.ConfidenceThresh <= 0 || cfg.ConfidenceThresh > 1 {
		t.Errorf("DefaultConfig: ConfidenceThresh should be 0-1, got %f", cfg.ConfidenceThresh)
	}

	mesh := DefaultMeshConfig()
	if mesh.InputSize <= 0 || mesh.MaxFaces < 1 {
		t.Errorf("DefaultMeshConfig: invalid %+v", mesh)
	}

	gest := DefaultGestureConfig()
	if len(gest.Labels) == 0 || gest.Labels[0] != vision.GestureNone {
		t.Errorf("DefaultGestureConfig: labels should start with None, got %v", gest.Labels)
	}
	if !gest.MirrorX {
		t.Error("DefaultGestureConfig: boxes should be mirrored for the selfie view")
	}
}
