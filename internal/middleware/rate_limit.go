package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit creates a limiter keyed by the acting student when the request names
// one, falling back to the client IP. Route params are only visible when the
// limiter is attached to the route itself.
func RateLimit(identifier string, max int, window time.Duration) fiber.Handler {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}

	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return fmt.Sprintf("%s:%s", identifier, actorKey(c))
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "too many requests",
			})
		},
	})
}

func actorKey(c *fiber.Ctx) string {
	if id := strings.TrimSpace(c.Query("student_id")); id != "" {
		return "student:" + id
	}
	if id := strings.TrimSpace(c.Params("studentId")); id != "" {
		return "student:" + id
	}
	return "ip:" + c.IP()
}
