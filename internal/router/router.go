package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/config"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/handler"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/middleware"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	RealtimeHandler     *handler.RealtimeHandler
	HistoryHandler      *handler.HistoryHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// The websocket endpoint authenticates in-band, not via bearer token.
	if deps.RealtimeHandler != nil {
		realtime := app.Group("/api/v1/realtime")
		deps.RealtimeHandler.Register(realtime)
	}

	if deps.HistoryHandler != nil {
		history := app.Group("/api/v1/history", jwtMiddleware)
		deps.HistoryHandler.Register(history)
	}

	if deps.NotificationHandler != nil {
		notifications := app.Group("/api/v1/notifications", jwtMiddleware,
			middleware.RateLimit("notifications", 60, 0))
		deps.NotificationHandler.Register(notifications)
	}
}
