package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/middleware"
	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/utils"
)

func localString(c *fiber.Ctx, key string) string {
	if value, ok := c.Locals(key).(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	return service.Actor{
		ID:    localString(c, "user_id"),
		Role:  localString(c, "user_role"),
		Name:  localString(c, "user_name"),
		Token: localString(c, "access_token"),
	}
}

func requestContext(c *fiber.Ctx) context.Context {
	return middleware.ContextWithCorrelation(c.UserContext(), middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// respondError maps service and lifecycle errors onto HTTP statuses.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var (
		validationErrors validator.ValidationErrors
		validationErr    *lifecycle.ValidationError
		rejected         *lifecycle.SubmissionRejectedError
	)

	switch {
	case errors.As(err, &validationErrors):
		details := make([]fieldError, 0, len(validationErrors))
		for _, fe := range validationErrors {
			details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	case errors.As(err, &validationErr):
		return utils.Fail(c, fiber.StatusBadRequest, validationErr.Error(), fiber.Map{"field": validationErr.Field})
	case errors.As(err, &rejected):
		return utils.Fail(c, fiber.StatusBadRequest, rejected.Message, fiber.Map{"reason": rejected.Reason})
	case errors.Is(err, service.ErrGradeOutOfRange):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrNotificationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, notFoundMessage(err))
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "access denied")
	case errors.Is(err, service.ErrAlreadySubmitted):
		return utils.SendError(c, fiber.StatusConflict, "You have already submitted this assignment")
	case errors.Is(err, service.ErrStatisticsUnavailable),
		errors.Is(err, service.ErrUploadUnavailable),
		errors.Is(err, service.ErrFeedbackUnavailable):
		requestLogger(logger, c).Warn().Err(err).Msg("dependency unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, unavailableMessage(err))
	case errors.Is(err, context.Canceled):
		return utils.SendError(c, fiber.StatusRequestTimeout, "request cancelled")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrAssignmentNotFound):
		return "Assignment not found"
	case errors.Is(err, service.ErrSubmissionNotFound):
		return "Submission not found"
	case errors.Is(err, service.ErrCourseNotFound):
		return "Course not found"
	default:
		return "Notification not found"
	}
}

func unavailableMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrStatisticsUnavailable):
		return "Failed to load assignment statistics"
	case errors.Is(err, service.ErrUploadUnavailable):
		return "File uploads are not available"
	default:
		return "Feedback suggestions are not available"
	}
}
