package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/service"
	"github.com/noah-isme/gema-homework-api/internal/utils"
)

// AssignmentHandler wires homework assignment HTTP routes.
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

// Register attaches assignment endpoints to the router group. Static segments
// are registered before /:id.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("/student/:studentId", h.listForStudent)
	router.Get("/student/:studentId/counts", h.countForStudent)
	router.Get("/tutor/:teacherId", h.listForTeacher)
	router.Get("/:id", h.get)
	router.Delete("/:id", h.delete)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	teacherID, err := parseUUIDQuery(c, "teacher_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.HomeworkAssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	assignment, err := h.service.Create(c.UserContext(), teacherID, payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "homework assigned", assignment)
}

func (h *AssignmentHandler) listForStudent(c *fiber.Ctx) error {
	studentID, err := parseUUIDParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	req, err := listRequestFromQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.ListForStudent(c.UserContext(), studentID, req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "homework retrieved", result)
}

func (h *AssignmentHandler) listForTeacher(c *fiber.Ctx) error {
	teacherID, err := parseUUIDParam(c, "teacherId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	studentID, err := parseOptionalUUIDQuery(c, "student_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	req, err := listRequestFromQuery(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.service.ListForTeacher(c.UserContext(), teacherID, studentID, req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "homework retrieved", result)
}

func (h *AssignmentHandler) countForStudent(c *fiber.Ctx) error {
	studentID, err := parseUUIDParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	includeOverdue, err := parseQueryBool(c, "include_overdue")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	counts, err := h.service.CountForStudent(c.UserContext(), studentID, dto.AssignmentCountRequest{
		From:           c.Query("from"),
		To:             c.Query("to"),
		IncludeOverdue: includeOverdue,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "homework counts retrieved", counts)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignment, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "homework retrieved", assignment)
}

func (h *AssignmentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "homework deleted", fiber.Map{"id": id})
}

func listRequestFromQuery(c *fiber.Ctx) (dto.AssignmentListRequest, error) {
	includeOverdue, err := parseQueryBool(c, "include_overdue")
	if err != nil {
		return dto.AssignmentListRequest{}, err
	}
	hideCompleted, err := parseQueryBool(c, "hide_completed")
	if err != nil {
		return dto.AssignmentListRequest{}, err
	}
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return dto.AssignmentListRequest{}, err
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return dto.AssignmentListRequest{}, err
	}

	return dto.AssignmentListRequest{
		Status:         strings.TrimSpace(c.Query("status")),
		From:           c.Query("from"),
		To:             c.Query("to"),
		IncludeOverdue: includeOverdue,
		HideCompleted:  hideCompleted,
		Sort:           strings.TrimSpace(c.Query("sort")),
		Page:           page,
		PageSize:       pageSize,
	}, nil
}
