package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the envelope every JSON endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
	Meta    interface{} `json:"meta,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func reply(c *fiber.Ctx, status int, body APIResponse) error {
	if body.Message == "" {
		if body.Success {
			body.Message = "success"
		} else {
			body.Message = "error"
		}
	}
	return c.Status(status).JSON(body)
}

// SendSuccess answers 200 with data.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return reply(c, fiber.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

// Created answers 201 with the newly stored resource.
func Created(c *fiber.Ctx, message string, data interface{}) error {
	return reply(c, fiber.StatusCreated, APIResponse{Success: true, Message: message, Data: data})
}

// OK answers 200 with data plus metadata such as counts or report flags.
func OK(c *fiber.Ctx, data interface{}, message string, meta interface{}) error {
	return reply(c, fiber.StatusOK, APIResponse{Success: true, Message: message, Data: data, Meta: meta})
}

// SendError answers with a bare failure message.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, message, nil)
}

// Fail answers with a failure message and machine readable details.
func Fail(c *fiber.Ctx, status int, message string, details interface{}) error {
	return reply(c, status, APIResponse{Message: message, Details: details})
}
