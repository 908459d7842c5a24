package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/edunexa-api/internal/utils"
)

// Auth role constants used by WithAuth.
const (
	AuthRoleAny     = "any"
	AuthRoleStaff   = "staff"
	AuthRoleStudent = "student"
	AuthRoleAdmin   = "admin"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	Role        string
	RequireUser bool
}

// WithAuth wraps a handler with authentication and role guards. Staff
// covers teachers and administrators.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	role := strings.ToLower(strings.TrimSpace(opts.Role))
	if role == "" {
		role = AuthRoleAny
	}
	requireUser := opts.RequireUser || role != AuthRoleAny

	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if requireUser && strings.TrimSpace(userID) == "" {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		if role == AuthRoleAny {
			return handler(c)
		}

		currentRole := normalizeRoleValue(c.Locals("user_role"))
		var allowed bool
		switch role {
		case AuthRoleStaff:
			allowed = currentRole == "teacher" || currentRole == "admin"
		default:
			allowed = currentRole == role
		}
		if !allowed {
			return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", map[string]string{"required_role": role})
		}

		return handler(c)
	}
}
