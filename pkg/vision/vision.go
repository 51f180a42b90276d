// Package vision defines the boundary between the tracking core and the
// inference backends: landmark, box and hand types plus the detector
// capabilities the pipeline consumes. Nothing here performs inference.
package vision

import (
	"image"
)

// Landmark is a single face or hand landmark.
// X and Y are normalized to the frame (0-1); Z is the detector's relative depth.
type Landmark struct {
	X, Y, Z float64
}

// Box is an axis-aligned bounding box in normalized frame coordinates.
// X, Y is the top-left corner.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box
func (b Box) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns the area of the box
func (b Box) Area() float64 {
	return b.Width * b.Height
}

// Intersects reports whether two boxes overlap. Touching edges count as overlap.
func (b Box) Intersects(o Box) bool {
	return !(b.X > o.X+o.Width ||
		b.X+b.Width < o.X ||
		b.Y > o.Y+o.Height ||
		b.Y+b.Height < o.Y)
}

// Pixels converts the normalized box to a pixel rectangle for a w×h frame.
func (b Box) Pixels(w, h int) Rect {
	return Rect{
		X:      b.X * float64(w),
		Y:      b.Y * float64(h),
		Width:  b.Width * float64(w),
		Height: b.Height * float64(h),
	}
}

// Rect is a rectangle in pixel space. Values may be fractional and may
// extend past the frame edges.
type Rect struct {
	X, Y, Width, Height float64
}

// Image returns the integer rectangle covering r.
func (r Rect) Image() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.Width+0.5), int(r.Y+r.Height+0.5))
}

// Face is one face found by a landmarker.
type Face struct {
	Landmarks []Landmark
	// Transform is an optional 4×4 column-major pose matrix (16 values).
	Transform []float64
}

// Gesture is a hand gesture classification label.
type Gesture string

// Gesture labels produced by the recognizers.
const (
	GestureNone       Gesture = "None"
	GestureClosedFist Gesture = "Closed_Fist"
	GestureOpenPalm   Gesture = "Open_Palm"
	GesturePointingUp Gesture = "Pointing_Up"
	GestureThumbDown  Gesture = "Thumb_Down"
	GestureThumbUp    Gesture = "Thumb_Up"
	GestureVictory    Gesture = "Victory"
	GestureILoveYou   Gesture = "ILoveYou"
	GestureUnknown    Gesture = "Unknown"
)

// KnownGestures lists every recognised label except None and Unknown.
var KnownGestures = []Gesture{
	GestureClosedFist,
	GestureOpenPalm,
	GesturePointingUp,
	GestureThumbDown,
	GestureThumbUp,
	GestureVictory,
	GestureILoveYou,
}

// ParseGesture maps a classifier label to a Gesture.
// Empty labels become None, unrecognised labels are kept verbatim.
func ParseGesture(label string) Gesture {
	switch label {
	case "":
		return GestureNone
	case string(GestureNone):
		return GestureNone
	}
	for _, g := range KnownGestures {
		if string(g) == label {
			return g
		}
	}
	return Gesture(label)
}

// Hand is a single per-frame hand observation. Hands are not tracked by identity.
type Hand struct {
	Box       Box        `json:"box"`
	IsLeft    bool       `json:"is_left"`
	Gesture   Gesture    `json:"gesture"`
	Score     float64    `json:"gesture_score"`
	Landmarks []Landmark `json:"landmarks,omitempty"`
}

// Frame is a decoded camera frame owned by exactly one holder at a time.
// Whoever holds a frame must Close it.
type Frame interface {
	Width() int
	Height() int

	// Crop extracts region (pixels, may exceed the frame bounds) and resamples it
	// to a size×size frame. Out-of-bounds areas are filled black.
	Crop(region image.Rectangle, size int) (Frame, error)

	Close() error
}

// FaceLandmarker produces dense face landmarks.
// DetectForVideo is the continuous mode and needs strictly increasing timestamps;
// Detect is the single-shot mode.
type FaceLandmarker interface {
	DetectForVideo(frame Frame, tsMillis int64) ([]Face, error)
	Detect(frame Frame) ([]Face, error)
	Close() error
}

// FaceDetector finds face boxes (normalized to the frame it was given).
type FaceDetector interface {
	Detect(frame Frame) ([]Box, error)
	Close() error
}

// GestureRecognizer finds hands and classifies their gesture.
type GestureRecognizer interface {
	RecognizeForVideo(frame Frame, tsMillis int64) ([]Hand, error)
	Close() error
}

// ThresholdSetter is implemented by detectors whose confidence thresholds can
// change at runtime.
type ThresholdSetter interface {
	SetThreshold(confidence float64)
}
