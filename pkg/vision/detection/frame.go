// Package detection provides the OpenCV inference adapters behind the vision
// capabilities: YuNet face boxes, an ONNX face mesh and a YOLO hand gesture model.
package detection

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// ErrNotMatFrame is returned when a detector is handed a frame it cannot read pixels from
var ErrNotMatFrame = errors.New("frame is not a MatFrame")

// MatFrame is a BGR image held in an OpenCV Mat
type MatFrame struct {
	mat gocv.Mat
}

// NewMatFrame takes ownership of mat
func NewMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{mat: mat}
}

// Decode decodes a JPEG (or any format OpenCV reads) into a frame
func Decode(data []byte) (*MatFrame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("empty image")
	}
	return &MatFrame{mat: img}, nil
}

// Mat returns the underlying image. It stays owned by the frame.
func (f *MatFrame) Mat() gocv.Mat {
	return f.mat
}

// Width returns the image width in pixels
func (f *MatFrame) Width() int {
	return f.mat.Cols()
}

// Height returns the image height in pixels
func (f *MatFrame) Height() int {
	return f.mat.Rows()
}

// Crop copies region into a new size×size frame. Parts of region outside the
// image are filled black so the crop keeps the region's scale.
func (f *MatFrame) Crop(region image.Rectangle, size int) (vision.Frame, error) {
	if region.Empty() || size <= 0 {
		return nil, fmt.Errorf("invalid crop %v to %d", region, size)
	}

	bounds := image.Rect(0, 0, f.Width(), f.Height())
	inside := region.Intersect(bounds)

	padded := gocv.NewMat()
	if inside.Empty() {
		padded.Close()
		padded = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), region.Dy(), region.Dx(), gocv.MatTypeCV8UC3)
	} else {
		roi := f.mat.Region(inside)
		gocv.CopyMakeBorder(roi, &padded,
			inside.Min.Y-region.Min.Y, region.Max.Y-inside.Max.Y,
			inside.Min.X-region.Min.X, region.Max.X-inside.Max.X,
			gocv.BorderConstant, color.RGBA{0, 0, 0, 0})
		roi.Close()
	}
	defer padded.Close()

	out := gocv.NewMat()
	gocv.Resize(padded, &out, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
	if out.Empty() {
		out.Close()
		return nil, fmt.Errorf("crop %v produced an empty image", region)
	}
	return &MatFrame{mat: out}, nil
}

// Close releases the image
func (f *MatFrame) Close() error {
	return f.mat.Close()
}

// matOf extracts the Mat of a frame produced by this package
func matOf(frame vision.Frame) (gocv.Mat, error) {
	mf, ok := frame.(*MatFrame)
	if !ok {
		return gocv.Mat{}, ErrNotMatFrame
	}
	if mf.mat.Empty() {
		return gocv.Mat{}, fmt.Errorf("empty image")
	}
	return mf.mat, nil
}
