package main

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"time"

	"github.com/teslashibe/go-checkout/pkg/age"
	"github.com/teslashibe/go-checkout/pkg/cv"
	"github.com/teslashibe/go-checkout/pkg/detection"
	"github.com/teslashibe/go-checkout/pkg/kiosk"
	"github.com/teslashibe/go-checkout/pkg/pipeline"
)

// Vision backends.
const (
	modeAuto = "auto"
	modeCV   = "cv"
	modeMock = "mock"
	modeOff  = "off"
)

type visionConfig struct {
	Mode      string
	Camera    cv.CameraConfig
	FaceModel string
	AgeModel  string
	AgeURL    string
	AgeAPIKey string
	MockAge   int
}

func defaultVisionConfig() visionConfig {
	return visionConfig{
		Mode:      modeAuto,
		Camera:    cv.DefaultCameraConfig(),
		FaceModel: detection.DefaultConfig().ModelPath,
		MockAge:   30,
	}
}

// buildVision wires the camera check collaborators. The returned func
// releases the locator and estimator.
func buildVision(cfg visionConfig, cropSize int, logger *slog.Logger) (*kiosk.Vision, func(), error) {
	noop := func() {}

	mode := cfg.Mode
	if mode == modeAuto {
		mode = modeMock
		if fileExists(cfg.FaceModel) && (cfg.AgeURL != "" || fileExists(cfg.AgeModel)) {
			mode = modeCV
		}
	}
	logger.Info("vision backend", "mode", mode)

	switch mode {
	case modeOff:
		return nil, noop, nil
	case modeMock:
		return mockVision(cfg.MockAge), noop, nil
	case modeCV:
	default:
		return nil, noop, fmt.Errorf("unknown vision mode %q", cfg.Mode)
	}

	dcfg := detection.DefaultConfig()
	dcfg.ModelPath = cfg.FaceModel
	locator, err := cv.NewYuNet(dcfg, logger)
	if err != nil {
		return nil, noop, err
	}

	var estimator age.Estimator
	if cfg.AgeURL != "" {
		estimator, err = age.NewClient(
			age.WithBaseURL(cfg.AgeURL),
			age.WithAPIKey(cfg.AgeAPIKey),
			age.WithLogger(logger),
		)
	} else {
		estimator, err = cv.NewONNXEstimator(cfg.AgeModel, cropSize, logger)
	}
	if err != nil {
		locator.Close()
		return nil, noop, err
	}

	camCfg := cfg.Camera
	vis := &kiosk.Vision{
		Open: func() (pipeline.FrameSource, error) {
			return cv.OpenCamera(camCfg, logger)
		},
		Locator:   locator,
		Estimator: estimator,
	}
	closeAll := func() {
		if err := estimator.Close(); err != nil {
			logger.Warn("estimator close", "error", err)
		}
		if err := locator.Close(); err != nil {
			logger.Warn("locator close", "error", err)
		}
	}
	return vis, closeAll, nil
}

// mockVision serves a synthetic sharp frame with one centred face and a
// fixed age, for running the kiosk without a camera or models.
func mockVision(years int) *kiosk.Vision {
	est := age.NewMockEstimator(years)
	est.SetDelay(800 * time.Millisecond)
	pattern := testPattern(640, 480)

	return &kiosk.Vision{
		Open: func() (pipeline.FrameSource, error) {
			return pipeline.NewMockSource(pattern), nil
		},
		Locator: &detection.Static{Detections: []detection.Detection{
			{X: 0.3, Y: 0.2, W: 0.4, H: 0.55, Confidence: 0.99},
		}},
		Estimator: est,
	}
}

func testPattern(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/8)+(y/8))%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 220})
			} else {
				img.SetGray(x, y, color.Gray{Y: 40})
			}
		}
	}
	return img
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
