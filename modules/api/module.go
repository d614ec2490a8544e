package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/uvuchan/chanchu/config"
	"github.com/uvuchan/chanchu/modules/activity"
	"github.com/uvuchan/chanchu/modules/broadcast"
	"github.com/uvuchan/chanchu/modules/registry"
)

// RegistryProvider gives access to the started registry.
type RegistryProvider interface {
	Registry() *registry.Registry
}

// ActivityFeed serves the recent activity endpoint.
type ActivityFeed interface {
	Recent(limit int) []activity.Entry
	Summary(ctx context.Context) (activity.Summary, error)
}

// Module is the HTTP API module with the WebSocket push channel.
type Module struct {
	cfg       config.Config
	registryM RegistryProvider
	hub       *broadcast.Hub
	feed      ActivityFeed
	logger    types.Logger

	app      *fiber.App
	registry *registry.Registry
	handlers map[string]EventHandler
	newID    func() string
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new API module.
func NewModule(cfg config.Config, logger types.Logger) (*Module, error) {
	gen, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}
	m := &Module{
		cfg:    cfg,
		logger: logger,
		newID:  gen,
	}
	m.handlers = m.eventHandlers()
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "api"
}

// SetRegistryModule injects the registry dependency.
func (m *Module) SetRegistryModule(p RegistryProvider) {
	m.registryM = p
}

// SetHub sets the broadcast hub (called from main.go).
func (m *Module) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// SetActivity sets the activity feed. It is optional.
func (m *Module) SetActivity(feed ActivityFeed) {
	m.feed = feed
}

// Start builds the Fiber application and starts listening.
func (m *Module) Start(_ context.Context) error {
	if err := m.init(); err != nil {
		return err
	}

	addr := ":" + strconv.Itoa(m.cfg.HTTPPort)
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			errCh <- err
		}
	}()

	// Catch immediate startup errors such as a port already in use.
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.logger.Info("HTTP server started", "addr", addr)
	return nil
}

func (m *Module) init() error {
	if m.registryM == nil || m.registryM.Registry() == nil {
		return errors.New("registry dependency not set")
	}
	if m.hub == nil {
		return errors.New("broadcast hub dependency not set")
	}
	m.registry = m.registryM.Registry()
	m.app = m.buildApp()
	return nil
}

func (m *Module) buildApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
		BodyLimit:             int(m.cfg.MaxRequestSize),
		ReadTimeout:           m.cfg.UploadTimeout,
		WriteTimeout:          m.cfg.UploadTimeout,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: m.newID,
	}))
	app.Use(m.loggerMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.CORSAllowedOrigins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	app.Use(metricsMiddleware())

	m.setupRoutes(app)
	return app
}

// Stop shuts down the Fiber HTTP server.
func (m *Module) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	return m.app.Shutdown()
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{
		"port": m.cfg.HTTPPort,
	}
	if m.hub != nil {
		details["connected_sessions"] = m.hub.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// errorHandler renders errors that escape handlers, including the body
// limit rejection Fiber produces before a handler runs.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := "server_error"
		switch fe.Code {
		case fiber.StatusRequestEntityTooLarge:
			code = "payload_too_large"
		case fiber.StatusNotFound:
			code = "not_found"
		case fiber.StatusBadRequest:
			code = "invalid_request"
		case fiber.StatusUpgradeRequired:
			code = "upgrade_required"
		}
		return c.Status(fe.Code).JSON(ErrorResponse{Error: code, Message: fe.Message})
	}
	return m.sendError(c, err)
}

// loggerMiddleware logs each request with its id.
func (m *Module) loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// WebSocket sessions log their own lifecycle.
		if c.Get(fiber.HeaderUpgrade) == "websocket" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		m.logger.Debug("HTTP request",
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", time.Since(start).String())
		return err
	}
}
