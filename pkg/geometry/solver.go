// Package geometry turns dense face landmarks into a head pose: pixel center,
// metric depth and yaw/pitch/roll, using a pinhole camera model.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Face mesh landmark indices
const (
	LeftEar  = 234
	RightEar = 454
	NoseTip  = 1
)

// Camera describes the image the landmarks were produced from
type Camera struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FOV    float64 `json:"fov"` // horizontal, degrees
}

// Pose is the solved geometry of one face
type Pose struct {
	CenterX float64 // pixels
	CenterY float64 // pixels
	DepthMm float64
	Yaw     float64 // degrees
	Pitch   float64 // degrees (approximate, see PitchScale)
	Roll    float64 // degrees

	Mesh []vision.Landmark // normalized, as given
}

// Solve computes a Pose from normalized face landmarks.
//
// transform is an optional 4×4 column-major pose matrix. When it carries a
// non-zero z translation, its x/y translation is projected to give a steadier
// center than the ear midpoint. Depth always comes from the ear span.
//
// Returns false when the list is empty or too short to contain the ear landmarks.
func Solve(landmarks []vision.Landmark, cam Camera, headWidthMm float64, transform []float64) (Pose, bool) {
	if len(landmarks) <= RightEar {
		return Pose{}, false
	}

	lEar := landmarks[LeftEar]
	rEar := landmarks[RightEar]
	nose := landmarks[NoseTip]

	w, h := float64(cam.Width), float64(cam.Height)
	lPx := r2.Vec{X: lEar.X * w, Y: lEar.Y * h}
	rPx := r2.Vec{X: rEar.X * w, Y: rEar.Y * h}

	span := r2.Sub(rPx, lPx)
	roll := Degrees(math.Atan2(span.Y, span.X))

	center := r2.Scale(0.5, r2.Add(lPx, rPx))

	// Yaw in normalized space: nose offset from the ear midpoint against the ear span
	var yaw float64
	faceWidth := math.Abs(rEar.X - lEar.X)
	if faceWidth > 0 {
		noseOffset := nose.X - (lEar.X+rEar.X)/2
		yaw = Degrees(math.Atan2(noseOffset, faceWidth*2)) * 2
	}

	pitch := (nose.Y - (lEar.Y+rEar.Y)/2) * PitchScale

	focal := FocalLength(cam.Width, cam.FOV)
	var depth float64
	if dist := r2.Norm(span); dist > 0 {
		depth = ApplyYawCorrection(DepthFromWidth(dist, focal, headWidthMm), yaw)
	}

	if len(transform) == 16 {
		tx, ty, tz := transform[12], transform[13], transform[14]
		if tz != 0 {
			center = r2.Vec{
				X: (tx/-tz)*focal + w/2,
				Y: (ty/-tz)*focal + h/2,
			}
		}
	}

	return Pose{
		CenterX: center.X,
		CenterY: center.Y,
		DepthMm: depth,
		Yaw:     yaw,
		Pitch:   pitch,
		Roll:    roll,
		Mesh:    landmarks,
	}, true
}
