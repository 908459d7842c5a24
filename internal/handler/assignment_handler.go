package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/utils"
)

// AssignmentHandler wires assignment HTTP routes.
type AssignmentHandler struct {
	service service.AssignmentService
	logger  zerolog.Logger
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(service service.AssignmentService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches assignment endpoints to the router group.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Post("", h.create)
	router.Get("/:id", h.get)
	router.Put("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Get("/:id/export", h.export)
}

func (h *AssignmentHandler) list(c *fiber.Ctx) error {
	var query dto.AssignmentListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	assignments, err := h.service.List(requestContext(c), actorFromContext(c), query)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, assignments, "assignments retrieved", fiber.Map{"count": len(assignments)})
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	assignment, err := h.service.Get(requestContext(c), actorFromContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	assignment, err := h.service.Create(requestContext(c), actorFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.Created(c, "Assignment created successfully", assignment)
}

func (h *AssignmentHandler) update(c *fiber.Ctx) error {
	var payload dto.AssignmentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	assignment, err := h.service.Update(requestContext(c), actorFromContext(c), c.Params("id"), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "Assignment updated successfully", assignment)
}

// delete deactivates the assignment; submissions are kept.
func (h *AssignmentHandler) delete(c *fiber.Ctx) error {
	assignment, err := h.service.Deactivate(requestContext(c), actorFromContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "Assignment deactivated", assignment)
}

func (h *AssignmentHandler) export(c *fiber.Ctx) error {
	export, err := h.service.Export(requestContext(c), actorFromContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment exported", export)
}
