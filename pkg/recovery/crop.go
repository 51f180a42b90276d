package recovery

import (
	"image"
	"math"

	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Crop maps coordinates normalized to a cropped frame back into coordinates
// normalized to the source frame: global = offset + local*scale, per axis.
type Crop struct {
	OffsetX, OffsetY float64
	ScaleX, ScaleY   float64
}

// Identity is the crop of a frame onto itself
var Identity = Crop{ScaleX: 1, ScaleY: 1}

// ToGlobal remaps one landmark. Z is relative depth and is left untouched.
func (c Crop) ToGlobal(lm vision.Landmark) vision.Landmark {
	return vision.Landmark{
		X: c.OffsetX + lm.X*c.ScaleX,
		Y: c.OffsetY + lm.Y*c.ScaleY,
		Z: lm.Z,
	}
}

// BoxToGlobal remaps a normalized box found inside the crop
func (c Crop) BoxToGlobal(b vision.Box) vision.Box {
	return vision.Box{
		X:      c.OffsetX + b.X*c.ScaleX,
		Y:      c.OffsetY + b.Y*c.ScaleY,
		Width:  b.Width * c.ScaleX,
		Height: b.Height * c.ScaleY,
	}
}

// cropFor builds the remap for a pixel region of a w×h frame
func cropFor(region image.Rectangle, w, h int) Crop {
	fw, fh := float64(w), float64(h)
	return Crop{
		OffsetX: float64(region.Min.X) / fw,
		OffsetY: float64(region.Min.Y) / fh,
		ScaleX:  float64(region.Dx()) / fw,
		ScaleY:  float64(region.Dy()) / fh,
	}
}

// SquareCrop returns a square pixel region of side max(w, h)*(1+padding)
// centered on box, and the remap for landmarks found inside it. The region
// may extend past the frame; Frame.Crop fills the outside black.
func SquareCrop(box vision.Rect, padding float64, frameW, frameH int) (image.Rectangle, Crop) {
	cx := box.X + box.Width/2
	cy := box.Y + box.Height/2
	size := math.Max(box.Width, box.Height) * (1 + padding)

	side := int(math.Round(size))
	if side < 1 {
		side = 1
	}
	x0 := int(math.Round(cx - float64(side)/2))
	y0 := int(math.Round(cy - float64(side)/2))

	region := image.Rect(x0, y0, x0+side, y0+side)
	return region, cropFor(region, frameW, frameH)
}

// CenterCrop returns the centered square region used for the zoomed scout
// pass. fraction is the share of each frame dimension to keep; the square
// side is the larger of the two.
func CenterCrop(fraction float64, frameW, frameH int) (image.Rectangle, Crop) {
	cw := float64(frameW) * fraction
	ch := float64(frameH) * fraction
	return SquareCrop(vision.Rect{
		X:      (float64(frameW) - cw) / 2,
		Y:      (float64(frameH) - ch) / 2,
		Width:  cw,
		Height: ch,
	}, 0, frameW, frameH)
}
