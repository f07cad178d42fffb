package vision

import (
	"image"
)

// DefaultSharpnessThreshold is the Laplacian variance below which a frame is
// considered too blurry to estimate an age from.
const DefaultSharpnessThreshold = 20.0

// IsSharp reports whether the frame's Laplacian variance exceeds threshold.
// The frame must be decoded; an empty frame is never sharp.
func IsSharp(f Frame, threshold float64) bool {
	if f.Empty() {
		return false
	}
	return LaplacianVariance(f.Image) > threshold
}

// LaplacianVariance computes the variance of the 4-neighbour Laplacian over
// the luminance channel. Border pixels are skipped. Images smaller than 3x3
// have no interior and return 0.
func LaplacianVariance(img image.Image) float64 {
	gray, w, h := luminance(img)
	if w < 3 || h < 3 {
		return 0
	}

	var n, mean, m2 float64
	for y := 1; y < h-1; y++ {
		row := y * w
		for x := 1; x < w-1; x++ {
			i := row + x
			lap := gray[i-w] + gray[i+w] + gray[i-1] + gray[i+1] - 4*gray[i]

			// Welford's running variance
			n++
			delta := lap - mean
			mean += delta / n
			m2 += delta * (lap - mean)
		}
	}
	return m2 / n
}

// luminance converts img to a row-major slice of 0-255 luma values using the
// BT.601 weights.
func luminance(img image.Image) ([]float64, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, 0, 0
	}
	out := make([]float64, w*h)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < w; x++ {
				out[y*w+x] = float64(src.Pix[off+x])
			}
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < w; x++ {
				p := src.Pix[off+x*4 : off+x*4+3 : off+x*4+3]
				out[y*w+x] = 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				out[y*w+x] = (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
			}
		}
	}
	return out, w, h
}
