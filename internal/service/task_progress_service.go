package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/repository"
)

// TaskProgressService applies student progress to homework tasks. Every call
// returns the full owning assignment.
type TaskProgressService interface {
	Start(ctx context.Context, taskID, studentID uuid.UUID) (dto.HomeworkAssignmentResponse, error)
	Progress(ctx context.Context, taskID, studentID uuid.UUID, payload dto.TaskProgressRequest) (dto.HomeworkAssignmentResponse, error)
	Complete(ctx context.Context, taskID, studentID uuid.UUID, payload dto.TaskCompleteRequest) (dto.HomeworkAssignmentResponse, error)
}

type taskProgressService struct {
	repo      repository.HomeworkRepository
	validator *validator.Validate
	events    EventPublisher
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// taskTransition mutates the task in place and reports whether anything changed.
type taskTransition func(task *models.HomeworkTask, now time.Time) bool

// NewTaskProgressService constructs the task progress service.
func NewTaskProgressService(repo repository.HomeworkRepository, validate *validator.Validate, events EventPublisher, logger zerolog.Logger) TaskProgressService {
	return &taskProgressService{
		repo:      repo,
		validator: validate,
		events:    events,
		logger:    logger.With().Str("component", "task_progress_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-homework-api/internal/service/task_progress"),
		now:       time.Now,
	}
}

func (s *taskProgressService) Start(ctx context.Context, taskID, studentID uuid.UUID) (dto.HomeworkAssignmentResponse, error) {
	return s.apply(ctx, "start", EventTaskStarted, taskID, studentID, startTask)
}

func (s *taskProgressService) Progress(ctx context.Context, taskID, studentID uuid.UUID, payload dto.TaskProgressRequest) (dto.HomeworkAssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.HomeworkAssignmentResponse{}, err
	}

	return s.apply(ctx, "progress", EventTaskProgressed, taskID, studentID, func(task *models.HomeworkTask, now time.Time) bool {
		return progressTask(task, now, payload.ProgressPct, payload.Meta)
	})
}

func (s *taskProgressService) Complete(ctx context.Context, taskID, studentID uuid.UUID, payload dto.TaskCompleteRequest) (dto.HomeworkAssignmentResponse, error) {
	return s.apply(ctx, "complete", EventTaskCompleted, taskID, studentID, func(task *models.HomeworkTask, now time.Time) bool {
		completeTask(task, now, payload.Meta)
		return true
	})
}

func (s *taskProgressService) apply(ctx context.Context, name, eventType string, taskID, studentID uuid.UUID, transition taskTransition) (dto.HomeworkAssignmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "homework.task."+name, trace.WithAttributes(
		attribute.String("homework.task_id", taskID.String()),
		attribute.String("homework.student_id", studentID.String()),
	))
	defer span.End()

	now := s.now().UTC()

	var (
		view    models.HomeworkAssignment
		task    models.HomeworkTask
		changed bool
	)
	err := s.repo.Transaction(ctx, func(repo repository.HomeworkRepository) error {
		var err error
		task, err = repo.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}

		owner, err := repo.GetByID(ctx, task.AssignmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return err
		}
		if owner.StudentID != studentID {
			return ErrTaskForbidden
		}

		changed = transition(&task, now)
		if !changed {
			view = owner
			return nil
		}

		task.UpdatedAt = now
		if err := repo.SaveTaskProgress(ctx, &task); err != nil {
			return err
		}
		if err := repo.TouchAssignment(ctx, owner.ID, now); err != nil {
			return err
		}

		view, err = repo.GetByID(ctx, owner.ID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, ErrTaskNotFound):
			span.SetStatus(codes.Error, "task_not_found")
		case errors.Is(err, ErrTaskForbidden):
			span.SetStatus(codes.Error, "task_forbidden")
		default:
			span.SetStatus(codes.Error, "task_update_failed")
		}
		return dto.HomeworkAssignmentResponse{}, err
	}

	if !changed {
		observability.HomeworkTaskTransitions().WithLabelValues(name, "noop").Inc()
		return dto.NewHomeworkAssignmentResponse(view), nil
	}

	observability.HomeworkTaskTransitions().WithLabelValues(name, "applied").Inc()
	s.logger.Info().
		Str("task_id", task.ID.String()).
		Str("assignment_id", view.ID.String()).
		Str("status", string(task.Status)).
		Int("progress_pct", task.ProgressPct).
		Msg("homework task updated")

	progress := task.ProgressPct
	emitEvent(ctx, s.events, s.logger, HomeworkEvent{
		Type:         eventType,
		OccurredAt:   now,
		AssignmentID: view.ID,
		TaskID:       &task.ID,
		StudentID:    view.StudentID,
		TeacherID:    view.TeacherID,
		Status:       string(task.Status),
		ProgressPct:  &progress,
	})

	return dto.NewHomeworkAssignmentResponse(view), nil
}
