package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/middleware"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/service"
)

// RealtimeHandler wires the persistent-connection endpoint. Authentication
// happens in-band over the socket via the authenticate intent, so the upgrade
// itself is unauthenticated.
type RealtimeHandler struct {
	service *service.RealtimeService
	logger  zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(service *service.RealtimeService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		service: service,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			ctx := c.UserContext()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
			c.Locals("request_ctx", ctx)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	h.logger.Info().Str("correlation_id", correlation).Msg("websocket connected")
	h.service.ServeConnection(conn, service.ConnectionOptions{
		CorrelationID: correlation,
		Context:       baseCtx,
	})
	h.logger.Info().Str("correlation_id", correlation).Msg("websocket disconnected")
}
