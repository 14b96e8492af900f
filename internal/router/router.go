package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/handler"
	"github.com/noah-isme/gema-homework-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler   *handler.AssignmentHandler
	TaskProgressHandler *handler.TaskProgressHandler
	HealthPinger        handler.Pinger
	ExposeMetrics       bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthPinger))

	if deps.ExposeMetrics {
		app.Get("/metrics", observability.MetricsHandler())
	}

	homeworks := app.Group("/api/homeworks")

	// task routes first so /tasks is never captured by /:id
	if deps.TaskProgressHandler != nil {
		deps.TaskProgressHandler.Register(homeworks.Group("/tasks"))
	}

	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(homeworks)
	}
}
