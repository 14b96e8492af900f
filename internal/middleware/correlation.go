package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	correlationHeader   = "X-Correlation-ID"
	requestIDHeader     = "X-Request-ID"
	correlationLocalKey = "correlation_id"
	maxCorrelationIDLen = 128
)

type correlationIDKey struct{}

var correlationKey = correlationIDKey{}

// CorrelationID makes sure every request carries a correlation identifier. Incoming
// values that are blank or oversized are replaced with a fresh UUID.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(correlationHeader))
		if id == "" {
			id = strings.TrimSpace(c.Get(requestIDHeader))
		}
		if id == "" || len(id) > maxCorrelationIDLen {
			id = uuid.NewString()
		}

		c.Locals(correlationLocalKey, id)
		c.Set(correlationHeader, id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))

		return c.Next()
	}
}

// CorrelationIDFromContext extracts the correlation identifier from context, if present.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(correlationKey).(string); ok {
		return id
	}
	return ""
}

// GetCorrelationID returns the correlation identifier bound to the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocalKey).(string); ok {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation attaches the correlation identifier to the provided context.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey, correlationID)
}

// RequestLogger derives a logger tagged with the request correlation identifier.
func RequestLogger(base zerolog.Logger, c *fiber.Ctx) zerolog.Logger {
	id := GetCorrelationID(c)
	if id == "" {
		return base
	}
	return base.With().Str("correlation_id", id).Logger()
}
