package cv

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/teslashibe/go-checkout/pkg/detection"
	"github.com/teslashibe/go-checkout/pkg/vision"
	"gocv.io/x/gocv"
)

// YuNetLocator uses OpenCV's FaceDetectorYN for face detection
type YuNetLocator struct {
	detector gocv.FaceDetectorYN
	config   detection.Config
	logger   *slog.Logger
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face locator using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg detection.Config, logger *slog.Logger) (*YuNetLocator, error) {
	// Check if model file exists first
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Initial size is replaced per frame
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		0.3,  // NMS threshold
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetLocator{
		detector: detector,
		config:   cfg,
		logger:   logger.With("component", "cv.yunet"),
	}, nil
}

// Locate finds faces in the frame, largest box first, with faces under
// MinFaceSize removed.
func (d *YuNetLocator) Locate(frame vision.Frame) ([]detection.Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()

	d.detector.Detect(img, &faces)

	var detections []detection.Detection
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		x := float64(faces.GetFloatAt(r, 0))
		y := float64(faces.GetFloatAt(r, 1))
		w := float64(faces.GetFloatAt(r, 2))
		h := float64(faces.GetFloatAt(r, 3))
		score := float64(faces.GetFloatAt(r, 14))

		detections = append(detections, detection.Detection{
			X:          x / imgW,
			Y:          y / imgH,
			W:          w / imgW,
			H:          h / imgH,
			Confidence: score,
		})
	}

	kept := detection.FilterMinSize(detections, img.Cols(), img.Rows(), d.config.MinFaceSize)
	detection.SortLargestFirst(kept)
	if len(kept) > 0 {
		d.logger.Debug("faces located", "found", len(detections), "kept", len(kept))
	}
	return kept, nil
}

// Close releases the detector resources
func (d *YuNetLocator) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
