package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/service"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

// TaskProgressHandler exposes student task transitions.
type TaskProgressHandler struct {
	service service.TaskProgressService
	limiter fiber.Handler
	logger  zerolog.Logger
}

// NewTaskProgressHandler constructs the handler. limiter may be nil.
func NewTaskProgressHandler(service service.TaskProgressService, limiter fiber.Handler, logger zerolog.Logger) *TaskProgressHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}

	return &TaskProgressHandler{
		service: service,
		limiter: limiter,
		logger:  logger.With().Str("component", "task_progress_handler").Logger(),
	}
}

// Register attaches the task endpoints to the router group.
func (h *TaskProgressHandler) Register(router fiber.Router) {
	router.Post("/:taskId/start", h.limiter, h.start)
	router.Post("/:taskId/progress", h.limiter, h.progress)
	router.Post("/:taskId/complete", h.limiter, h.complete)
}

func (h *TaskProgressHandler) start(c *fiber.Ctx) error {
	taskID, studentID, err := taskActor(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignment, err := h.service.Start(c.UserContext(), taskID, studentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "task started", assignment)
}

func (h *TaskProgressHandler) progress(c *fiber.Ctx) error {
	taskID, studentID, err := taskActor(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TaskProgressRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	assignment, err := h.service.Progress(c.UserContext(), taskID, studentID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "task progress recorded", assignment)
}

func (h *TaskProgressHandler) complete(c *fiber.Ctx) error {
	taskID, studentID, err := taskActor(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TaskCompleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	assignment, err := h.service.Complete(c.UserContext(), taskID, studentID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "task completed", assignment)
}

func taskActor(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	taskID, err := parseUUIDParam(c, "taskId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	studentID, err := parseUUIDQuery(c, "student_id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	return taskID, studentID, nil
}
