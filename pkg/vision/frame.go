// Package vision holds the camera frame type and the pure image operations
// the age check needs: the blur gate and the face crop.
package vision

import (
	"image"
	"time"
)

// Frame is one decoded camera image. It lives for a single pipeline tick
// and is never written to storage.
type Frame struct {
	Image      image.Image
	Seq        uint64    // Monotonic per source
	CapturedAt time.Time // When the source produced it
}

// Width returns the frame width in pixels.
func (f Frame) Width() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dx()
}

// Height returns the frame height in pixels.
func (f Frame) Height() int {
	if f.Image == nil {
		return 0
	}
	return f.Image.Bounds().Dy()
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return f.Width() == 0 || f.Height() == 0
}
