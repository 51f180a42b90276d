package geometry

import "math"

const (
	// DefaultFOV is the horizontal field of view used when the configured one is unusable.
	DefaultFOV = 50.0 // degrees

	// MaxYawCorrection bounds the yaw used for depth correction. Past this the
	// cosine falls off too fast and the ear distance is no longer reliable.
	MaxYawCorrection = 60.0 // degrees

	// PitchScale converts the nose-to-ear-line offset (normalized) into degrees.
	// Empirical linear approximation, not a camera-model angle.
	PitchScale = -100.0
)

// Degrees converts radians to degrees.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

// FocalLength returns the focal length in pixels for an image width and a
// horizontal FOV in degrees. A FOV outside (0, 180) falls back to DefaultFOV.
func FocalLength(imageWidth int, fovDegrees float64) float64 {
	if fovDegrees <= 0 || fovDegrees >= 180 {
		fovDegrees = DefaultFOV
	}
	return (float64(imageWidth) / 2) / math.Tan(Radians(fovDegrees)/2)
}

// DepthFromWidth applies the pinhole model: distance = realWidth * focal / pixelWidth.
// Returns 0 for a non-positive pixel width.
func DepthFromWidth(pixelWidth, focalPx, realWidthMm float64) float64 {
	if pixelWidth <= 0 {
		return 0
	}
	return realWidthMm * focalPx / pixelWidth
}

// ApplyYawCorrection scales depth by cos(yaw), with yaw clamped to ±MaxYawCorrection.
// A turned head shows a shorter ear-to-ear span, which would otherwise read as farther away.
func ApplyYawCorrection(depth, yawDegrees float64) float64 {
	yaw := math.Max(-MaxYawCorrection, math.Min(MaxYawCorrection, yawDegrees))
	return depth * math.Cos(Radians(yaw))
}
