package cv

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/teslashibe/go-checkout/pkg/age"
	"gocv.io/x/gocv"
)

const providerONNX = "onnx"

// ImageNet normalisation folded into BlobFromImage's single scale factor.
var (
	imagenetMean  = gocv.NewScalar(123.675, 116.28, 103.53, 0)
	imagenetScale = 1.0 / (255.0 * 0.226)
)

// ONNXEstimator runs an age classifier exported to ONNX. The network must
// output one score per year of age (0..age.MaxAge); the arg-max is the estimate.
type ONNXEstimator struct {
	net       gocv.Net
	inputSize int
	logger    *slog.Logger
	mu        sync.Mutex // Net is not safe for concurrent use
	closed    bool
}

// NewONNXEstimator loads the model at path. inputSize is the square edge the
// network expects (224 for the VGG16 export).
func NewONNXEstimator(path string, inputSize int, logger *slog.Logger) (*ONNXEstimator, error) {
	if path == "" {
		return nil, age.ErrNoModel
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", path)
	}
	if inputSize <= 0 {
		inputSize = 224
	}
	if logger == nil {
		logger = slog.Default()
	}

	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("load age model %s: empty network", path)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target: %w", err)
	}

	return &ONNXEstimator{
		net:       net,
		inputSize: inputSize,
		logger:    logger.With("component", "cv.onnx_age"),
	}, nil
}

// Estimate returns the most likely age for the face crop.
func (e *ONNXEstimator) Estimate(ctx context.Context, face image.Image) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, age.WrapError(providerONNX, err)
	}
	if face == nil || face.Bounds().Empty() {
		return 0, age.WrapError(providerONNX, age.ErrNoFace)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, age.WrapError(providerONNX, fmt.Errorf("estimator closed"))
	}

	img, err := gocv.ImageToMatRGB(face)
	if err != nil {
		return 0, age.WrapError(providerONNX, fmt.Errorf("convert crop: %w", err))
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, imagenetScale, image.Pt(e.inputSize, e.inputSize), imagenetMean, true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	if out.Empty() || out.Total() < 2 {
		return 0, age.WrapError(providerONNX, age.ErrNoFace)
	}

	_, score, _, loc := gocv.MinMaxLoc(out)
	years := loc.X
	if !age.Valid(years) {
		return 0, age.WrapError(providerONNX, fmt.Errorf("%w: class %d out of range", age.ErrNoFace, years))
	}

	e.logger.Debug("age inferred", "age", years, "score", score)
	return years, nil
}

// Close releases the network.
func (e *ONNXEstimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.net.Close()
}
