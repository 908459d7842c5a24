package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/utils"
)

// AdminActivityHandler exposes the assignment and submission audit trail.
type AdminActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewAdminActivityHandler constructs the handler.
func NewAdminActivityHandler(service service.ActivityService, logger zerolog.Logger) *AdminActivityHandler {
	return &AdminActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "admin_activity_handler").Logger(),
	}
}

// Register attaches activity log routes to the router group.
func (h *AdminActivityHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *AdminActivityHandler) list(c *fiber.Ctx) error {
	var query dto.ActivityListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	entries, err := h.service.List(requestContext(c), query)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "activity logs", entries)
}
