package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Eddie2111/trip-otter-dev-sub001/internal/middleware"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/service"
	"github.com/Eddie2111/trip-otter-dev-sub001/internal/utils"
)

// HistoryHandler exposes the REST replay endpoints a client uses after
// reconnect, before its live subscription is re-armed.
type HistoryHandler struct {
	service *service.RealtimeService
	logger  zerolog.Logger
}

// NewHistoryHandler creates a history handler instance.
func NewHistoryHandler(service *service.RealtimeService, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		service: service,
		logger:  logger.With().Str("component", "history_handler").Logger(),
	}
}

// Register binds the history routes under the provided router group.
func (h *HistoryHandler) Register(router fiber.Router) {
	router.Get("/conversation/:peer", h.conversation)
	router.Get("/group/:id", h.group)
	router.Get("/global", h.global)
}

func (h *HistoryHandler) conversation(c *fiber.Ctx) error {
	identity := userIDStringFromContext(c)
	if identity == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	peer := c.Params("peer")
	if peer == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "peer identity required")
	}

	before, limit, err := historyWindow(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	messages, err := h.service.HistoryPrivate(requestContext(c), identity, peer, before, limit)
	if err != nil {
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}

	return utils.SendSuccess(c, "conversation history", messages)
}

func (h *HistoryHandler) group(c *fiber.Ctx) error {
	identity := userIDStringFromContext(c)
	if identity == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	groupID := c.Params("id")
	if groupID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "group id required")
	}

	before, limit, err := historyWindow(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	messages, err := h.service.HistoryGroup(requestContext(c), identity, groupID, before, limit)
	if errors.Is(err, service.ErrNotGroupMember) {
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	}
	if err != nil {
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}

	return utils.SendSuccess(c, "group history", messages)
}

func (h *HistoryHandler) global(c *fiber.Ctx) error {
	identity := userIDStringFromContext(c)
	if identity == "" {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	before, limit, err := historyWindow(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	messages, err := h.service.HistoryGlobal(requestContext(c), before, limit)
	if err != nil {
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}

	return utils.SendSuccess(c, "global history", messages)
}

func historyWindow(c *fiber.Ctx) (time.Time, int, error) {
	before := time.Time{}
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, 0, errors.New("invalid before timestamp")
		}
		before = parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return time.Time{}, 0, errors.New("invalid limit")
	}

	return before, limit, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}
