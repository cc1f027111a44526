// Package api implements the gateway's request pipeline: URL parsing,
// authentication, rate limiting, provider dispatch, streaming bodies and
// response shaping.
package api

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/floodgatehq/floodgate/internal/auth"
	"github.com/floodgatehq/floodgate/internal/notify"
	"github.com/floodgatehq/floodgate/internal/observability"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/floodgatehq/floodgate/internal/ratelimit"
	"github.com/floodgatehq/floodgate/internal/transfer"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Version is stamped at build time.
var Version = "dev"

// Server holds the pipeline's collaborators.
type Server struct {
	authHandler auth.Handler
	registry    *provider.Registry
	limiter     *ratelimit.Limiter
	notifier    notify.Notifier
	metrics     *observability.Metrics
	engine      *transfer.Engine
	logger      *slog.Logger
	startTime   time.Time
}

// NewServer creates the API server.
func NewServer(
	authHandler auth.Handler,
	registry *provider.Registry,
	limiter *ratelimit.Limiter,
	notifier notify.Notifier,
	metrics *observability.Metrics,
	engine *transfer.Engine,
	logger *slog.Logger,
) *Server {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		authHandler: authHandler,
		registry:    registry,
		limiter:     limiter,
		notifier:    notifier,
		metrics:     metrics,
		engine:      engine,
		logger:      logger,
		startTime:   time.Now(),
	}
}

// SetupRoutes configures all routes on the Fiber app.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/status", s.handleStatus)
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	v1 := app.Group("/v1")
	v1.Use(cors.New())
	v1.Use(recover.New())
	v1.Use(RequestIDMiddleware())
	v1.Use(LoggingMiddleware(s.logger))
	v1.Use(s.rateLimitMiddleware)
	v1.All("/resources/:resource/providers/:provider/*", s.handleEntity)
}

// handleEntity dispatches one /v1 request by method, recording metrics.
func (s *Server) handleEntity(c *fiber.Ctx) error {
	start := time.Now()

	var action string
	var err error
	switch c.Method() {
	case fiber.MethodGet, fiber.MethodHead:
		action = "read"
		err = s.handleRead(c)
	case fiber.MethodPut:
		action = "write"
		err = s.handleWrite(c)
	case fiber.MethodPost:
		action = "action"
		err = s.handleAction(c)
	case fiber.MethodDelete:
		action = "delete"
		err = s.handleDelete(c)
	default:
		action = "other"
		err = gerrorsNotSupported(c.Method())
	}
	if err != nil {
		err = RespondError(c, err)
	}

	if s.metrics != nil {
		s.metrics.ObserveRequest(c.Params("provider"), action,
			c.Response().StatusCode(), time.Since(start).Seconds())
	}
	return err
}

// handleStatus answers the liveness probe.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "ok",
		"version":    Version,
		"uptime":     time.Since(s.startTime).String(),
		"go_version": runtime.Version(),
	})
}

// grantProvider runs the auth and provider-construction steps shared by
// every action handler.
func (s *Server) grantProvider(c *fiber.Ctx, resource, providerName string, action auth.Action) (*auth.Grant, provider.Provider, error) {
	grant, err := s.authHandler.Fetch(c.UserContext(), resource, providerName, action, parseTokens(c))
	if err != nil {
		return nil, nil, err
	}
	prov, err := s.registry.New(c.UserContext(), providerName, grant.Credentials, grant.Settings)
	if err != nil {
		return nil, nil, err
	}
	return grant, prov, nil
}
