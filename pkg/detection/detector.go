// Package detection defines the face locator contract used by the age check.
package detection

import (
	"cmp"
	"image"
	"slices"

	"github.com/teslashibe/go-checkout/pkg/vision"
)

// Detection represents a detected face
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// SortLargestFirst orders dets by box area, biggest first, so the face
// nearest the camera leads. Equal areas keep their relative order.
func SortLargestFirst(dets []Detection) {
	slices.SortStableFunc(dets, func(a, b Detection) int {
		return cmp.Compare(b.Area(), a.Area())
	})
}

// Rect converts the normalized box to pixel coordinates for a frame of the
// given size.
func (d Detection) Rect(width, height int) image.Rectangle {
	fw, fh := float64(width), float64(height)
	return image.Rect(
		int(d.X*fw),
		int(d.Y*fh),
		int((d.X+d.W)*fw),
		int((d.Y+d.H)*fh),
	)
}

// Locator finds faces in a frame. Implementations may return an empty slice.
type Locator interface {
	// Locate returns the faces found in the frame. Callers use the first one.
	Locate(frame vision.Frame) ([]Detection, error)

	// Close releases resources
	Close() error
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	InputWidth       int     // Model input width
	InputHeight      int     // Model input height
	MinFaceSize      int     // Ignore faces narrower or shorter than this (pixels)
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		InputWidth:       320,
		InputHeight:      320,
		MinFaceSize:      100,
	}
}

// FilterMinSize drops detections smaller than minPx on either side, keeping
// the original order. minPx <= 0 keeps everything.
func FilterMinSize(dets []Detection, width, height, minPx int) []Detection {
	if minPx <= 0 || len(dets) == 0 {
		return dets
	}
	kept := dets[:0:0]
	for _, d := range dets {
		r := d.Rect(width, height)
		if r.Dx() >= minPx && r.Dy() >= minPx {
			kept = append(kept, d)
		}
	}
	return kept
}

// Static is a Locator that always returns the same detections. Useful for
// demos without a model file and for tests.
type Static struct {
	Detections []Detection
	Err        error
}

// Locate returns the configured detections.
func (s *Static) Locate(vision.Frame) ([]Detection, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]Detection, len(s.Detections))
	copy(out, s.Detections)
	return out, nil
}

// Close is a no-op.
func (s *Static) Close() error { return nil }
