package handler

import (
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/middleware"
	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/utils"
)

// SubmissionHandler manages submission endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	limiter fiber.Handler
	logger  zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance. limiter guards
// the submit route and may be nil.
func NewSubmissionHandler(service service.SubmissionService, limiter fiber.Handler, logger zerolog.Logger) *SubmissionHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &SubmissionHandler{
		service: service,
		limiter: limiter,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the assignments router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Get("/submissions/:id", h.get)
	router.Post("/:id/submit", h.limiter, middleware.WithAuth(h.submit, middleware.AuthOptions{Role: middleware.AuthRoleStudent}))
}

// submit accepts either a JSON body or a multipart form with an optional
// "file" part.
func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	var file *multipart.FileHeader

	if strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEMultipartForm) {
		payload.TextContent = c.FormValue("text_content")
		if upload, err := c.FormFile("file"); err == nil {
			file = upload
		}
	} else if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
		}
	}

	submission, err := h.service.Submit(requestContext(c), actorFromContext(c), c.Params("id"), payload, file)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.Created(c, "Assignment submitted successfully", submission)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	submission, err := h.service.Get(requestContext(c), actorFromContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}
