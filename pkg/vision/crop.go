package vision

import (
	"errors"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// ErrEmptyCrop is returned when a face box does not overlap the frame.
var ErrEmptyCrop = errors.New("vision: face box outside frame")

// CropConfig controls how a face box becomes an estimator input.
type CropConfig struct {
	Size      int     // Output edge length in pixels
	Padding   float64 // Extra margin as a fraction of the box size
	Rotate180 bool    // Undo a mirrored (flip both axes) camera feed
}

// DefaultCropConfig matches the 224x224 input of the age model.
func DefaultCropConfig() CropConfig {
	return CropConfig{Size: 224}
}

// CropFace cuts a square region centred on box out of img and scales it to
// cfg.Size x cfg.Size. The square side is the longer edge of the padded box,
// clamped to the image bounds.
func CropFace(img image.Image, box image.Rectangle, cfg CropConfig) (*image.RGBA, error) {
	if cfg.Size <= 0 {
		cfg.Size = DefaultCropConfig().Size
	}
	b := img.Bounds()

	w, h := float64(box.Dx()), float64(box.Dy())
	padW, padH := cfg.Padding*w, cfg.Padding*h

	x1 := math.Max(float64(b.Min.X), float64(box.Min.X)-padW)
	y1 := math.Max(float64(b.Min.Y), float64(box.Min.Y)-padH)
	x2 := math.Min(float64(b.Max.X), float64(box.Max.X)+padW)
	y2 := math.Min(float64(b.Max.Y), float64(box.Max.Y)+padH)

	cx, cy := (x1+x2)/2, (y1+y2)/2
	half := math.Max(x2-x1, y2-y1) / 2

	region := image.Rect(
		int(math.Max(float64(b.Min.X), cx-half)),
		int(math.Max(float64(b.Min.Y), cy-half)),
		int(math.Min(float64(b.Max.X), cx+half)),
		int(math.Min(float64(b.Max.Y), cy+half)),
	)
	if region.Empty() {
		return nil, ErrEmptyCrop
	}

	dst := image.NewRGBA(image.Rect(0, 0, cfg.Size, cfg.Size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, region, draw.Src, nil)

	if cfg.Rotate180 {
		rotate180(dst)
	}
	return dst, nil
}

// rotate180 reverses the pixel order of img in place.
func rotate180(img *image.RGBA) {
	pix := img.Pix
	for i, j := 0, len(pix)-4; i < j; i, j = i+4, j-4 {
		for k := 0; k < 4; k++ {
			pix[i+k], pix[j+k] = pix[j+k], pix[i+k]
		}
	}
}
