package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/observability"
	"github.com/noah-isme/gema-homework-api/internal/repository"
)

const (
	defaultListPageSize = 20
	maxListPageSize     = 100
)

// ListingConfig bounds the page sizes accepted by assignment listings.
type ListingConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// AssignmentService exposes homework assignment use cases.
type AssignmentService interface {
	Create(ctx context.Context, teacherID uuid.UUID, payload dto.HomeworkAssignmentCreateRequest) (dto.HomeworkAssignmentResponse, error)
	ListForStudent(ctx context.Context, studentID uuid.UUID, req dto.AssignmentListRequest) (dto.AssignmentSummaryListResponse, error)
	ListForTeacher(ctx context.Context, teacherID uuid.UUID, studentID *uuid.UUID, req dto.AssignmentListRequest) (dto.AssignmentSummaryListResponse, error)
	CountForStudent(ctx context.Context, studentID uuid.UUID, req dto.AssignmentCountRequest) (dto.AssignmentCountsResponse, error)
	Get(ctx context.Context, id uuid.UUID) (dto.HomeworkAssignmentResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type assignmentService struct {
	repo      repository.HomeworkRepository
	validator *validator.Validate
	events    EventPublisher
	listing   ListingConfig
	plainText *bluemonday.Policy
	richText  *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() uuid.UUID
}

// NewAssignmentService builds a new homework assignment service.
func NewAssignmentService(repo repository.HomeworkRepository, validate *validator.Validate, events EventPublisher, listing ListingConfig, logger zerolog.Logger) AssignmentService {
	if listing.DefaultPageSize <= 0 {
		listing.DefaultPageSize = defaultListPageSize
	}
	if listing.MaxPageSize <= 0 {
		listing.MaxPageSize = maxListPageSize
	}
	if listing.DefaultPageSize > listing.MaxPageSize {
		listing.DefaultPageSize = listing.MaxPageSize
	}

	return &assignmentService{
		repo:      repo,
		validator: validate,
		events:    events,
		listing:   listing,
		plainText: bluemonday.StrictPolicy(),
		richText:  bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "assignment_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-homework-api/internal/service/assignment"),
		now:       time.Now,
		newID:     uuid.New,
	}
}

func (s *assignmentService) Create(ctx context.Context, teacherID uuid.UUID, payload dto.HomeworkAssignmentCreateRequest) (dto.HomeworkAssignmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "homework.create", trace.WithAttributes(
		attribute.String("homework.teacher_id", teacherID.String()),
		attribute.String("homework.student_id", payload.StudentID.String()),
	))
	defer span.End()

	if teacherID == uuid.Nil {
		return dto.HomeworkAssignmentResponse{}, validationError("teacher id is required")
	}
	if len(payload.Tasks) == 0 {
		return dto.HomeworkAssignmentResponse{}, validationError("at least one task is required")
	}
	if err := s.validator.Struct(payload); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.HomeworkAssignmentResponse{}, err
	}

	key := strings.TrimSpace(payload.IdempotencyKey)
	now := s.now().UTC()

	var (
		result  models.HomeworkAssignment
		created bool
	)
	err := s.repo.Transaction(ctx, func(repo repository.HomeworkRepository) error {
		if key != "" {
			existing, err := repo.FindByIdempotencyKey(ctx, teacherID, payload.StudentID, key)
			if err == nil {
				result = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		assignment, err := s.buildAssignment(teacherID, payload, key, now)
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, &assignment); err != nil {
			return err
		}

		result = assignment
		created = true
		return nil
	})
	if err != nil {
		if key != "" && repository.IsUniqueViolation(err) {
			// a concurrent request with the same key committed first
			winner, findErr := s.repo.FindByIdempotencyKey(ctx, teacherID, payload.StudentID, key)
			if findErr == nil {
				observability.HomeworkAssignmentsCreated().WithLabelValues("replayed").Inc()
				return dto.NewHomeworkAssignmentResponse(winner), nil
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "create_failed")
		return dto.HomeworkAssignmentResponse{}, err
	}

	if !created {
		observability.HomeworkAssignmentsCreated().WithLabelValues("replayed").Inc()
		s.logger.Debug().Str("assignment_id", result.ID.String()).Msg("idempotent homework creation replayed")
		return dto.NewHomeworkAssignmentResponse(result), nil
	}

	observability.HomeworkAssignmentsCreated().WithLabelValues("created").Inc()
	s.logger.Info().
		Str("assignment_id", result.ID.String()).
		Str("student_id", result.StudentID.String()).
		Int("tasks", len(result.Tasks)).
		Msg("homework assigned")

	emitEvent(ctx, s.events, s.logger, HomeworkEvent{
		Type:         EventAssignmentCreated,
		OccurredAt:   now,
		AssignmentID: result.ID,
		StudentID:    result.StudentID,
		TeacherID:    result.TeacherID,
	})

	return dto.NewHomeworkAssignmentResponse(result), nil
}

// buildAssignment materializes the assignment graph with every identifier minted up front.
func (s *assignmentService) buildAssignment(teacherID uuid.UUID, payload dto.HomeworkAssignmentCreateRequest, key string, now time.Time) (models.HomeworkAssignment, error) {
	title := strings.TrimSpace(s.plainText.Sanitize(payload.Title))
	if title == "" {
		return models.HomeworkAssignment{}, validationError("title empty after sanitization")
	}

	assignment := models.HomeworkAssignment{
		ID:           s.newID(),
		TeacherID:    teacherID,
		StudentID:    payload.StudentID,
		Title:        title,
		Instructions: strings.TrimSpace(s.richText.Sanitize(payload.Instructions)),
		DueAt:        utcPtr(payload.DueAt),
		LessonID:     payload.LessonID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Tasks:        make([]models.HomeworkTask, 0, len(payload.Tasks)),
	}
	if key != "" {
		assignment.IdempotencyKey = &key
	}

	ordinals := make(map[int]struct{}, len(payload.Tasks))
	for i, taskReq := range payload.Tasks {
		// implicit ordinals follow the input position, not a separate counter
		ordinal := i + 1
		if taskReq.Ordinal != nil {
			ordinal = *taskReq.Ordinal
		}
		if _, exists := ordinals[ordinal]; exists {
			return models.HomeworkAssignment{}, validationError("duplicate task ordinal %d", ordinal)
		}
		ordinals[ordinal] = struct{}{}

		taskTitle := strings.TrimSpace(s.plainText.Sanitize(taskReq.Title))
		if taskTitle == "" {
			return models.HomeworkAssignment{}, validationError("task %d title empty after sanitization", ordinal)
		}

		task := models.HomeworkTask{
			ID:           s.newID(),
			AssignmentID: assignment.ID,
			Ordinal:      ordinal,
			Type:         taskReq.Type,
			SourceKind:   taskReq.SourceKind,
			Title:        taskTitle,
			Instructions: strings.TrimSpace(s.richText.Sanitize(taskReq.Instructions)),
			ContentRef:   datatypes.JSONMap{},
			Status:       models.TaskStatusNotStarted,
			Meta:         datatypes.JSONMap{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		for k, v := range taskReq.ContentRef {
			task.ContentRef[k] = v
		}

		if taskReq.Type == models.TaskTypeVocab {
			seen := make(map[uuid.UUID]struct{}, len(taskReq.VocabWordIDs))
			for _, wordID := range taskReq.VocabWordIDs {
				if _, dup := seen[wordID]; dup || wordID == uuid.Nil {
					continue
				}
				seen[wordID] = struct{}{}
				task.VocabWords = append(task.VocabWords, models.HomeworkTaskVocabWord{
					ID:     s.newID(),
					TaskID: task.ID,
					WordID: wordID,
				})
			}
		}

		assignment.Tasks = append(assignment.Tasks, task)
	}

	return assignment, nil
}

func (s *assignmentService) ListForStudent(ctx context.Context, studentID uuid.UUID, req dto.AssignmentListRequest) (dto.AssignmentSummaryListResponse, error) {
	return s.list(ctx, repository.ProjectionFilter{StudentID: &studentID}, req)
}

func (s *assignmentService) ListForTeacher(ctx context.Context, teacherID uuid.UUID, studentID *uuid.UUID, req dto.AssignmentListRequest) (dto.AssignmentSummaryListResponse, error) {
	return s.list(ctx, repository.ProjectionFilter{TeacherID: &teacherID, StudentID: studentID}, req)
}

func (s *assignmentService) list(ctx context.Context, scope repository.ProjectionFilter, req dto.AssignmentListRequest) (dto.AssignmentSummaryListResponse, error) {
	ctx, span := s.tracer.Start(ctx, "homework.list")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssignmentSummaryListResponse{}, err
	}

	now := s.now().UTC()
	criteria, err := ResolveListCriteria(req, now)
	if err != nil {
		span.SetStatus(codes.Error, "validation_failed")
		return dto.AssignmentSummaryListResponse{}, err
	}
	span.SetAttributes(
		attribute.String("homework.status", criteria.Status),
		attribute.String("homework.sort", criteria.Sort),
	)

	filter := scope
	if !criteria.Unbounded() {
		filter.CreatedFrom = &criteria.Range.From
		filter.CreatedTo = &criteria.Range.To
	}

	var projections []models.AssignmentProjection
	err = s.repo.Transaction(ctx, func(repo repository.HomeworkRepository) error {
		var listErr error
		projections, listErr = repo.ListProjections(ctx, filter)
		return listErr
	})
	if err != nil {
		span.RecordError(err)
		return dto.AssignmentSummaryListResponse{}, err
	}

	summaries := filterSummaries(summarize(projections, now), criteria)

	page, pageSize := s.pageWindow(req.Page, req.PageSize)
	return dto.AssignmentSummaryListResponse{
		Items:      paginateSummaries(summaries, page, pageSize),
		Pagination: dto.NewPaginationMeta(page, pageSize, int64(len(summaries))),
		Filters:    criteria.Applied(),
	}, nil
}

func (s *assignmentService) CountForStudent(ctx context.Context, studentID uuid.UUID, req dto.AssignmentCountRequest) (dto.AssignmentCountsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "homework.count", trace.WithAttributes(
		attribute.String("homework.student_id", studentID.String()),
	))
	defer span.End()

	now := s.now().UTC()
	dateRange, err := ResolveDateRange(req.From, req.To, now)
	if err != nil {
		return dto.AssignmentCountsResponse{}, err
	}

	includeOverdue := true
	if req.IncludeOverdue != nil {
		includeOverdue = *req.IncludeOverdue
	}

	var all, ranged []models.AssignmentProjection
	err = s.repo.Transaction(ctx, func(repo repository.HomeworkRepository) error {
		var listErr error
		all, listErr = repo.ListProjections(ctx, repository.ProjectionFilter{StudentID: &studentID})
		if listErr != nil {
			return listErr
		}

		ranged, listErr = repo.ListProjections(ctx, repository.ProjectionFilter{
			StudentID:   &studentID,
			CreatedFrom: &dateRange.From,
			CreatedTo:   &dateRange.To,
		})
		return listErr
	})
	if err != nil {
		span.RecordError(err)
		return dto.AssignmentCountsResponse{}, err
	}

	return countAssignments(summarize(all, now), summarize(ranged, now), includeOverdue), nil
}

func (s *assignmentService) Get(ctx context.Context, id uuid.UUID) (dto.HomeworkAssignmentResponse, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.HomeworkAssignmentResponse{}, ErrAssignmentNotFound
		}

		return dto.HomeworkAssignmentResponse{}, err
	}

	return dto.NewHomeworkAssignmentResponse(assignment), nil
}

func (s *assignmentService) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "homework.delete", trace.WithAttributes(
		attribute.String("homework.assignment_id", id.String()),
	))
	defer span.End()

	var removed models.HomeworkAssignment
	err := s.repo.Transaction(ctx, func(repo repository.HomeworkRepository) error {
		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		removed = existing
		return repo.Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Debug().Str("assignment_id", id.String()).Msg("homework already removed")
			return nil
		}
		span.RecordError(err)
		return err
	}

	s.logger.Info().Str("assignment_id", id.String()).Msg("homework deleted")
	emitEvent(ctx, s.events, s.logger, HomeworkEvent{
		Type:         EventAssignmentDeleted,
		OccurredAt:   s.now().UTC(),
		AssignmentID: removed.ID,
		StudentID:    removed.StudentID,
		TeacherID:    removed.TeacherID,
	})

	return nil
}

func (s *assignmentService) pageWindow(page, pageSize int) (int, int) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 {
		pageSize = s.listing.DefaultPageSize
	}
	if pageSize > s.listing.MaxPageSize {
		pageSize = s.listing.MaxPageSize
	}
	return page, pageSize
}

func summarize(projections []models.AssignmentProjection, now time.Time) []dto.AssignmentSummaryResponse {
	summaries := make([]dto.AssignmentSummaryResponse, 0, len(projections))
	for _, projection := range projections {
		summaries = append(summaries, dto.NewAssignmentSummaryResponse(projection, now))
	}
	return summaries
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := t.UTC()
	return &value
}
