package geometry

import (
	"math"
	"testing"

	"github.com/teslashibe/go-facetrack/pkg/vision"
)

const eps = 1e-9

// face builds a 478-point mesh with only the ears and nose placed
func face(lEar, rEar, nose vision.Landmark) []vision.Landmark {
	lm := make([]vision.Landmark, 478)
	lm[LeftEar] = lEar
	lm[RightEar] = rEar
	lm[NoseTip] = nose
	return lm
}

var cam = Camera{Width: 1920, Height: 1080, FOV: 50}

func TestFocalLength(t *testing.T) {
	want := 960 / math.Tan(Radians(25))

	tests := []struct {
		name string
		fov  float64
	}{
		{"configured", 50},
		{"zero falls back", 0},
		{"negative falls back", -10},
		{"180 falls back", 180},
		{"above 180 falls back", 200},
	}
	for _, tc := range tests {
		if got := FocalLength(1920, tc.fov); math.Abs(got-want) > eps {
			t.Errorf("%s: FocalLength(1920, %v) = %v, want %v", tc.name, tc.fov, got, want)
		}
	}

	if got := FocalLength(1920, 90); math.Abs(got-960) > eps {
		t.Errorf("FocalLength(1920, 90) = %v, want 960", got)
	}
}

func TestApplyYawCorrection(t *testing.T) {
	tests := []struct {
		yaw  float64
		want float64
	}{
		{0, 1000},
		{60, 500},
		{-60, 500},
		{90, 500}, // clamped to 60
		{-85, 500},
	}
	for _, tc := range tests {
		if got := ApplyYawCorrection(1000, tc.yaw); math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("ApplyYawCorrection(1000, %v) = %v, want %v", tc.yaw, got, tc.want)
		}
	}
}

func TestDepthFromWidth(t *testing.T) {
	if got := DepthFromWidth(0, 1000, 160); got != 0 {
		t.Errorf("Expected 0 for zero pixel width, got %v", got)
	}
	if got := DepthFromWidth(200, 1000, 160); got != 800 {
		t.Errorf("Expected 800, got %v", got)
	}
}

func TestSolve_FrontalFace(t *testing.T) {
	// Ears 0.1 apart (192px), nose centered on the ear line
	lm := face(
		vision.Landmark{X: 0.45, Y: 0.5},
		vision.Landmark{X: 0.55, Y: 0.5},
		vision.Landmark{X: 0.50, Y: 0.5},
	)

	pose, ok := Solve(lm, cam, 160, nil)
	if !ok {
		t.Fatal("Expected a pose")
	}

	if math.Abs(pose.Yaw) > eps || math.Abs(pose.Pitch) > eps || math.Abs(pose.Roll) > eps {
		t.Errorf("Expected zero angles, got yaw=%v pitch=%v roll=%v", pose.Yaw, pose.Pitch, pose.Roll)
	}
	if math.Abs(pose.CenterX-960) > 1e-6 || math.Abs(pose.CenterY-540) > 1e-6 {
		t.Errorf("Expected center (960, 540), got (%v, %v)", pose.CenterX, pose.CenterY)
	}

	wantDepth := 160 * FocalLength(1920, 50) / 192
	if math.Abs(pose.DepthMm-wantDepth) > 1e-6 {
		t.Errorf("Expected depth %v, got %v", wantDepth, pose.DepthMm)
	}
	if len(pose.Mesh) != 478 {
		t.Errorf("Expected mesh of 478, got %d", len(pose.Mesh))
	}
}

func TestSolve_YawCorrectsDepth(t *testing.T) {
	// Nose offset picked so yaw is exactly 60°: 2*atan2(off, 2*0.1) = 60° → off = 0.2*tan(30°)
	off := 0.2 * math.Tan(Radians(30))
	lm := face(
		vision.Landmark{X: 0.45, Y: 0.5},
		vision.Landmark{X: 0.55, Y: 0.5},
		vision.Landmark{X: 0.50 + off, Y: 0.5},
	)

	pose, ok := Solve(lm, cam, 160, nil)
	if !ok {
		t.Fatal("Expected a pose")
	}
	if math.Abs(pose.Yaw-60) > 1e-6 {
		t.Fatalf("Expected yaw 60, got %v", pose.Yaw)
	}

	raw := 160 * FocalLength(1920, 50) / 192
	if math.Abs(pose.DepthMm-raw/2) > 1e-6 {
		t.Errorf("Expected depth %v (half of raw), got %v", raw/2, pose.DepthMm)
	}
}

func TestSolve_RollAndPitch(t *testing.T) {
	// Right ear lower than left by the same pixel distance as horizontal: 45° roll
	lm := face(
		vision.Landmark{X: 0.45, Y: 0.5},
		vision.Landmark{X: 0.55, Y: 0.5 + 192.0/1080},
		vision.Landmark{X: 0.50, Y: 0.5 + 96.0/1080 + 0.1},
	)

	pose, ok := Solve(lm, cam, 160, nil)
	if !ok {
		t.Fatal("Expected a pose")
	}
	if math.Abs(pose.Roll-45) > 1e-6 {
		t.Errorf("Expected roll 45, got %v", pose.Roll)
	}
	if math.Abs(pose.Pitch-(-10)) > 1e-6 {
		t.Errorf("Expected pitch -10, got %v", pose.Pitch)
	}
}

func TestSolve_TransformCenter(t *testing.T) {
	lm := face(
		vision.Landmark{X: 0.1, Y: 0.1},
		vision.Landmark{X: 0.2, Y: 0.1},
		vision.Landmark{X: 0.15, Y: 0.1},
	)

	m := make([]float64, 16)
	m[12], m[13], m[14] = 5, -2, -50

	pose, ok := Solve(lm, cam, 160, m)
	if !ok {
		t.Fatal("Expected a pose")
	}

	f := FocalLength(1920, 50)
	wantX := (5.0/50)*f + 960
	wantY := (-2.0/50)*f + 540
	if math.Abs(pose.CenterX-wantX) > 1e-6 || math.Abs(pose.CenterY-wantY) > 1e-6 {
		t.Errorf("Expected center (%v, %v), got (%v, %v)", wantX, wantY, pose.CenterX, pose.CenterY)
	}

	// Zero z translation keeps the ear midpoint
	m[14] = 0
	pose, _ = Solve(lm, cam, 160, m)
	if math.Abs(pose.CenterX-288) > 1e-6 || math.Abs(pose.CenterY-108) > 1e-6 {
		t.Errorf("Expected ear midpoint (288, 108), got (%v, %v)", pose.CenterX, pose.CenterY)
	}

	// Wrong length is ignored
	m[14] = -50
	pose, _ = Solve(lm, cam, 160, m[:12])
	if math.Abs(pose.CenterX-288) > 1e-6 {
		t.Errorf("Expected ear midpoint for short matrix, got %v", pose.CenterX)
	}
}

func TestSolve_Rejects(t *testing.T) {
	if _, ok := Solve(nil, cam, 160, nil); ok {
		t.Error("Expected false for nil landmarks")
	}
	if _, ok := Solve([]vision.Landmark{}, cam, 160, nil); ok {
		t.Error("Expected false for empty landmarks")
	}
	if _, ok := Solve(make([]vision.Landmark, 300), cam, 160, nil); ok {
		t.Error("Expected false for landmarks missing the right ear")
	}
}

func TestSolve_CoincidentEars(t *testing.T) {
	lm := face(
		vision.Landmark{X: 0.5, Y: 0.5},
		vision.Landmark{X: 0.5, Y: 0.5},
		vision.Landmark{X: 0.6, Y: 0.5},
	)
	pose, ok := Solve(lm, cam, 160, nil)
	if !ok {
		t.Fatal("Expected a pose")
	}
	if pose.Yaw != 0 || pose.DepthMm != 0 {
		t.Errorf("Expected zero yaw and depth, got yaw=%v depth=%v", pose.Yaw, pose.DepthMm)
	}
}
