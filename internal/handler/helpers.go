package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/middleware"
	"github.com/noah-isme/gema-homework-api/internal/service"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

var errInvalidIdentifier = errors.New("invalid identifier")

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return parsed, nil
}

func parseQueryBool(c *fiber.Ctx, key string) (*bool, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	return &parsed, nil
}

func parseUUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(c.Params(name)))
	if err != nil {
		return uuid.Nil, errInvalidIdentifier
	}
	return parsed, nil
}

func parseUUIDQuery(c *fiber.Ctx, key string) (uuid.UUID, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return uuid.Nil, errors.New(key + " is required")
	}
	parsed, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, errors.New("invalid " + key)
	}
	return parsed, nil
}

func parseOptionalUUIDQuery(c *fiber.Ctx, key string) (*uuid.UUID, error) {
	if strings.TrimSpace(c.Query(key)) == "" {
		return nil, nil
	}
	parsed, err := parseUUIDQuery(c, key)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := middleware.RequestLogger(base, c)
	return &logger
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fieldErr := range errs {
		details[fieldErr.Namespace()] = fieldErr.Tag()
	}
	return details
}

// respondError maps service errors onto the response envelope.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, validationErrors.Error(), validationDetails(validationErrors))
	case errors.Is(err, service.ErrValidation):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrTaskNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "task not found")
	case errors.Is(err, service.ErrTaskForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "forbidden")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
