// Kiosk - self-checkout lane with camera age verification and staff override
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-checkout/internal/config"
	"github.com/teslashibe/go-checkout/internal/log"
	"github.com/teslashibe/go-checkout/pkg/cart"
	"github.com/teslashibe/go-checkout/pkg/kiosk"
	"github.com/teslashibe/go-checkout/pkg/metrics"
	"github.com/teslashibe/go-checkout/pkg/web"
)

// appConfig is everything main needs after flags and environment.
type appConfig struct {
	LogLevel    string
	CatalogPath string
	Kiosk       kiosk.Config
	Web         web.Config
	Vision      visionConfig
}

func main() {
	cfg := parseFlags(os.Args[1:])
	log.Init(cfg.LogLevel)
	logger := log.L()

	if err := run(cfg); err != nil {
		logger.Error("kiosk failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg appConfig) error {
	logger := log.L()

	catalog := cart.DefaultCatalog()
	if cfg.CatalogPath != "" {
		c, err := cart.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return err
		}
		catalog = c
	}
	logger.Info("catalog loaded", "products", catalog.Len(), "path", cfg.CatalogPath)

	vis, closeVision, err := buildVision(cfg.Vision, cfg.Kiosk.Pipeline.Crop.Size, logger)
	if err != nil {
		return fmt.Errorf("vision: %w", err)
	}
	defer closeVision()

	m := metrics.New(prometheus.DefaultRegisterer)
	srv := web.NewServer(cfg.Web, web.WithGatherer(prometheus.DefaultGatherer))

	k, err := kiosk.New(cfg.Kiosk, catalog, vis,
		kiosk.WithMetrics(m),
		kiosk.WithSnapshotSink(srv.PublishSnapshot),
		kiosk.WithFrameSink(srv.PublishFrame),
	)
	if err != nil {
		return err
	}
	srv.Attach(k)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return k.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("kiosk shut down")
	return nil
}

// parseFlags parses command line flags, then applies KIOSK_* environment
// overrides for anything not set on the command line.
func parseFlags(args []string) appConfig {
	cfg := appConfig{
		Kiosk:  kiosk.DefaultConfig(),
		Web:    web.DefaultConfig(),
		Vision: defaultVisionConfig(),
	}

	fs := flag.NewFlagSet("kiosk", flag.ExitOnError)

	debug := fs.Bool("debug", false, "Enable verbose debug logging")
	port := fs.String("port", cfg.Web.Port, "HTTP listen port")
	static := fs.String("static", "", "Directory of UI assets served at /")
	catalogPath := fs.String("catalog", "", "YAML product catalog (default: built-in demo catalog)")
	staffCode := fs.String("staff-code", cfg.Kiosk.StaffCode, "Staff override code")
	minAge := fs.Int("min-age", cfg.Kiosk.Checkout.MinimumAutoPassAge, "Minimum estimated age that passes automatically")
	aiTimeout := fs.Duration("ai-timeout", cfg.Kiosk.Checkout.AICheckTimeout, "Hand over to staff after this long without a passing estimate (0 = never)")
	warmUp := fs.Duration("warmup", cfg.Kiosk.Pipeline.WarmUp, "Camera warm-up before faces are evaluated")
	fps := fs.Int("fps", 30, "Frame loop rate")
	sharpness := fs.Float64("sharpness", cfg.Kiosk.Pipeline.SharpnessThreshold, "Laplacian variance a frame must exceed")
	mode := fs.String("vision", cfg.Vision.Mode, "Camera check backend: auto, cv, mock, off")
	device := fs.String("camera", cfg.Vision.Camera.Device, "Camera device index or URL")
	noFlip := fs.Bool("no-flip", false, "Do not mirror the camera feed")
	faceModel := fs.String("face-model", cfg.Vision.FaceModel, "YuNet face detector ONNX model")
	ageModel := fs.String("age-model", "", "Age classifier ONNX model")
	ageURL := fs.String("age-url", "", "Remote age estimation service base URL")
	mockAge := fs.Int("mock-age", cfg.Vision.MockAge, "Age reported by the mock estimator")

	fs.Parse(args)
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg.LogLevel = config.String(config.EnvLogLevel, "info")
	if *debug {
		cfg.LogLevel = "debug"
	}

	cfg.Web.Port = pick(set["port"], *port, config.String(config.EnvPort, *port))
	cfg.Web.StaticDir = *static
	cfg.CatalogPath = pick(set["catalog"], *catalogPath, config.String(config.EnvCatalog, *catalogPath))
	cfg.Kiosk.StaffCode = pick(set["staff-code"], *staffCode, config.String(config.EnvStaffCode, *staffCode))
	cfg.Kiosk.Checkout.MinimumAutoPassAge = pick(set["min-age"], *minAge, config.Int(config.EnvMinimumAge, *minAge))
	cfg.Kiosk.Checkout.AICheckTimeout = pick(set["ai-timeout"], *aiTimeout, config.Duration(config.EnvAICheckTimeout, *aiTimeout))
	cfg.Kiosk.Pipeline.WarmUp = pick(set["warmup"], *warmUp, config.Duration(config.EnvWarmUp, *warmUp))
	cfg.Kiosk.Pipeline.SharpnessThreshold = pick(set["sharpness"], *sharpness, config.Float(config.EnvSharpness, *sharpness))
	if rate := pick(set["fps"], *fps, config.Int(config.EnvFPS, *fps)); rate > 0 {
		cfg.Kiosk.Pipeline.TickInterval = time.Second / time.Duration(rate)
	}

	cfg.Vision.Mode = *mode
	cfg.Vision.Camera.Device = pick(set["camera"], *device, config.String(config.EnvCameraDevice, *device))
	cfg.Vision.Camera.Flip = !*noFlip
	cfg.Kiosk.Pipeline.Crop.Rotate180 = cfg.Vision.Camera.Flip
	cfg.Vision.FaceModel = pick(set["face-model"], *faceModel, config.String(config.EnvFaceModel, *faceModel))
	cfg.Vision.AgeModel = pick(set["age-model"], *ageModel, config.String(config.EnvAgeModel, *ageModel))
	cfg.Vision.AgeURL = pick(set["age-url"], *ageURL, config.String(config.EnvAgeURL, *ageURL))
	cfg.Vision.AgeAPIKey = config.String(config.EnvAgeAPIKey, "")
	cfg.Vision.MockAge = *mockAge
	return cfg
}

// pick prefers an explicitly set flag over the environment value.
func pick[T any](flagSet bool, flagVal, envVal T) T {
	if flagSet {
		return flagVal
	}
	return envVal
}
