package handler

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/utils"
)

// StatisticsHandler exposes the teacher assignment analytics.
type StatisticsHandler struct {
	service service.StatisticsService
	logger  zerolog.Logger
}

// NewStatisticsHandler constructs the handler.
func NewStatisticsHandler(service service.StatisticsService, logger zerolog.Logger) *StatisticsHandler {
	return &StatisticsHandler{
		service: service,
		logger:  logger.With().Str("component", "statistics_handler").Logger(),
	}
}

// Register attaches analytics routes to the router group.
func (h *StatisticsHandler) Register(router fiber.Router) {
	router.Get("/teacher/assignments", h.assignments)
}

func (h *StatisticsHandler) assignments(c *fiber.Ctx) error {
	format := strings.ToLower(strings.TrimSpace(c.Query("format", "json")))
	switch format {
	case "csv":
		return h.csv(c)
	case "json":
	default:
		return utils.SendError(c, fiber.StatusBadRequest, "format must be json or csv")
	}

	report, err := h.service.GetAssignmentStatistics(requestContext(c), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, report, "assignment statistics", fiber.Map{
		"partial": report.Partial,
		"skipped": len(report.Skipped),
	})
}

func (h *StatisticsHandler) csv(c *fiber.Ctx) error {
	var buf bytes.Buffer
	filename, err := h.service.ExportCSV(requestContext(c), actorFromContext(c), &buf)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}
