// Package web is the kiosk UI boundary: a JSON API for shopper and staff
// intents plus websocket feeds for state changes and camera frames.
package web

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-checkout/internal/log"
	"github.com/teslashibe/go-checkout/pkg/cart"
	"github.com/teslashibe/go-checkout/pkg/checkout"
	"github.com/teslashibe/go-checkout/pkg/hub"
	"github.com/teslashibe/go-checkout/pkg/kiosk"
	"github.com/teslashibe/go-checkout/pkg/vision"
)

// Kiosk is what the server drives. *kiosk.Kiosk satisfies it.
type Kiosk interface {
	Do(ctx context.Context, in kiosk.Intent) (kiosk.Reply, error)
	Snapshot() checkout.Snapshot
	Catalog() *cart.Catalog
}

// Config holds server settings.
type Config struct {
	Port        string
	StaticDir   string // Optional UI assets served at /
	JPEGQuality int
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the demo settings.
func DefaultConfig() Config {
	return Config{
		Port:            "8080",
		JPEGQuality:     75,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server is the kiosk web server
type Server struct {
	cfg    Config
	app    *fiber.App
	kiosk  Kiosk
	logger *slog.Logger

	// Hubs for websocket broadcast
	stateHub  *hub.Hub
	cameraHub *hub.Hub

	gatherer prometheus.Gatherer
	validate *validator.Validate
	jpegBuf  bytes.Buffer
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves g at /metrics. Without it the route is absent.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates the server. Attach a kiosk before serving requests.
func NewServer(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    log.Component("web"),
		stateHub:  hub.New("state"),
		cameraHub: hub.New("camera"),
		validate:  validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.JPEGQuality <= 0 || s.cfg.JPEGQuality > 100 {
		s.cfg.JPEGQuality = jpeg.DefaultQuality
	}

	app := fiber.New(fiber.Config{
		AppName:               "Checkout Kiosk",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	// API routes
	api := app.Group("/api")
	api.Get("/catalog", s.handleCatalog)
	api.Get("/state", s.handleState)
	api.Post("/scan", s.handleScan)
	api.Post("/proceed", s.intent(checkout.IntentProceed))
	api.Post("/verify/ai", s.intent(checkout.IntentChooseAI))
	api.Post("/verify/staff", s.intent(checkout.IntentChooseStaff))
	api.Post("/verify/cancel", s.intent(checkout.IntentCancelAI))
	api.Post("/staff/code", s.handleStaffCode)
	api.Post("/staff/decision", s.handleStaffDecision)
	api.Post("/pay", s.intent(checkout.IntentPay))
	api.Post("/reset", s.intent(checkout.IntentReset))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	s.app = app
	return s
}

// Attach sets the kiosk the handlers drive. Call it before Run.
func (s *Server) Attach(k Kiosk) {
	s.kiosk = k
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.kiosk == nil {
		return errors.New("web: no kiosk attached")
	}
	go s.stateHub.Run(ctx)
	go s.cameraHub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("kiosk ui listening", "url", "http://localhost:"+s.cfg.Port)
		errc <- s.app.Listen(":" + s.cfg.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(s.cfg.ShutdownTimeout); err != nil {
			return err
		}
		return nil
	}
}

// PublishSnapshot pushes a state change to /ws/state clients.
func (s *Server) PublishSnapshot(snap checkout.Snapshot) {
	if err := s.stateHub.BroadcastJSON(snap); err != nil {
		s.logger.Warn("snapshot encode failed", "error", err)
	}
}

// PublishFrame JPEG-encodes a camera frame for /ws/camera clients. Frames
// are skipped when nobody is watching. It is called from the kiosk loop
// only, which owns jpegBuf.
func (s *Server) PublishFrame(f vision.Frame) {
	if f.Empty() || s.cameraHub.ClientCount() == 0 {
		return
	}
	s.jpegBuf.Reset()
	if err := jpeg.Encode(&s.jpegBuf, f.Image, &jpeg.Options{Quality: s.cfg.JPEGQuality}); err != nil {
		s.logger.Debug("frame encode failed", "error", err)
		return
	}
	// The hub keeps the slice past this call
	s.cameraHub.BroadcastBinary(bytes.Clone(s.jpegBuf.Bytes()))
}
