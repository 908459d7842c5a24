package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/middleware"
	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/utils"
)

// GradingHandler wires grading endpoints for teachers and admins.
type GradingHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(service service.GradingService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches grading endpoints to the assignments router group.
func (h *GradingHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}
	router.Post("/submissions/grade", middleware.WithAuth(h.bulkGrade, staff))
	router.Post("/submissions/:id/grade", middleware.WithAuth(h.grade, staff))
	router.Post("/submissions/:id/feedback-suggestion", middleware.WithAuth(h.suggestFeedback, staff))
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	submission, err := h.service.Grade(requestContext(c), actorFromContext(c), c.Params("id"), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "Submission graded successfully", submission)
}

func (h *GradingHandler) bulkGrade(c *fiber.Ctx) error {
	var payload dto.BulkGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.BulkGrade(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "Submissions graded successfully", result)
}

func (h *GradingHandler) suggestFeedback(c *fiber.Ctx) error {
	suggestion, err := h.service.SuggestFeedback(requestContext(c), actorFromContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "feedback suggestion", suggestion)
}
