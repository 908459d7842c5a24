package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/edunexa-api/internal/config"
	"github.com/noah-isme/edunexa-api/internal/handler"
	"github.com/noah-isme/edunexa-api/internal/middleware"
	"github.com/noah-isme/edunexa-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler   *handler.AssignmentHandler
	SubmissionHandler   *handler.SubmissionHandler
	GradingHandler      *handler.GradingHandler
	StatisticsHandler   *handler.StatisticsHandler
	NotificationHandler *handler.NotificationHandler
	ActivityHandler     *handler.AdminActivityHandler
	HealthHandler       *handler.HealthHandler
	JWTMiddleware       fiber.Handler
	// Metrics exposes /metrics when true.
	Metrics bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	if deps.Metrics {
		app.Get("/metrics", observability.MetricsHandler())
	}

	v1 := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	health := deps.HealthHandler
	if health == nil {
		health = handler.NewHealthHandler(cfg, nil)
	}
	v1.Get("/health", health.Check)

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	// Submission and grading routes share the /api/assignments prefix and
	// must be registered before the /:id catch-alls.
	assignments := app.Group("/api/assignments", jwtMiddleware)
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(assignments)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(assignments)
	}
	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(assignments)
	}

	if deps.StatisticsHandler != nil {
		analytics := app.Group("/api/analytics", jwtMiddleware, middleware.RequireRole("teacher", "admin"))
		deps.StatisticsHandler.Register(analytics)
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(app.Group("/api/notifications", jwtMiddleware))
	}

	if deps.ActivityHandler != nil {
		activity := app.Group("/api/admin/activity", jwtMiddleware, middleware.RequireRole("admin"))
		deps.ActivityHandler.Register(activity)
	}
}
