package api

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/floodgatehq/floodgate/internal/slogutil"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDMiddleware tags every request with an id, echoed in the
// X-Request-ID header and attached to all log records for the request.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("X-Request-ID", id)
		c.SetUserContext(slogutil.With(c.UserContext(), "request_id", id))
		return c.Next()
	}
}

// LoggingMiddleware logs handled requests.
func LoggingMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		logger.DebugContext(c.UserContext(), "request handled",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
			"remote_addr", c.IP(),
		)
		return err
	}
}

// rateLimitMiddleware consults the fixed-window limiter before any work is
// done for the request. Denials carry the standard informational headers.
func (s *Server) rateLimitMiddleware(c *fiber.Ctx) error {
	if s.limiter == nil {
		return c.Next()
	}
	decision, err := s.limiter.Allow(c.UserContext(), c.Get(fiber.HeaderAuthorization), c.Get(fiber.HeaderCookie), c.IP())
	if err != nil {
		return RespondError(c, err)
	}
	if decision.Allowed {
		return c.Next()
	}

	if s.metrics != nil {
		s.metrics.ObserveRateLimited(string(decision.Class))
	}
	c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(decision.RetryAfter(), 10))
	c.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
	c.Set("X-RateLimit-Remaining", "0")
	c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"code":    "RATE_LIMITED",
		"message": "rate limit exceeded, retry after the window resets",
	})
}
