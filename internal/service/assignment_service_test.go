package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/repository"
)

type memoryHomeworkRepo struct {
	mu          sync.Mutex
	assignments map[uuid.UUID]models.HomeworkAssignment
	// beforeCreate runs ahead of every insert; a non-nil error aborts it.
	beforeCreate func(assignment models.HomeworkAssignment) error
	creates      int
}

func newMemoryHomeworkRepo() *memoryHomeworkRepo {
	return &memoryHomeworkRepo{assignments: make(map[uuid.UUID]models.HomeworkAssignment)}
}

func (m *memoryHomeworkRepo) Transaction(ctx context.Context, fn func(repo repository.HomeworkRepository) error) error {
	return fn(m)
}

func (m *memoryHomeworkRepo) GetByID(ctx context.Context, id uuid.UUID) (models.HomeworkAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	assignment, ok := m.assignments[id]
	if !ok {
		return models.HomeworkAssignment{}, gorm.ErrRecordNotFound
	}
	return cloneAssignment(assignment), nil
}

func (m *memoryHomeworkRepo) FindByIdempotencyKey(ctx context.Context, teacherID, studentID uuid.UUID, key string) (models.HomeworkAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, assignment := range m.assignments {
		if assignment.TeacherID == teacherID && assignment.StudentID == studentID &&
			assignment.IdempotencyKey != nil && *assignment.IdempotencyKey == key {
			return cloneAssignment(assignment), nil
		}
	}
	return models.HomeworkAssignment{}, gorm.ErrRecordNotFound
}

func (m *memoryHomeworkRepo) Create(ctx context.Context, assignment *models.HomeworkAssignment) error {
	if m.beforeCreate != nil {
		if err := m.beforeCreate(*assignment); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.creates++
	m.assignments[assignment.ID] = cloneAssignment(*assignment)
	return nil
}

func (m *memoryHomeworkRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.assignments[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.assignments, id)
	return nil
}

func (m *memoryHomeworkRepo) ListProjections(ctx context.Context, filter repository.ProjectionFilter) ([]models.AssignmentProjection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	projections := make([]models.AssignmentProjection, 0, len(m.assignments))
	for _, a := range m.assignments {
		if filter.TeacherID != nil && a.TeacherID != *filter.TeacherID {
			continue
		}
		if filter.StudentID != nil && a.StudentID != *filter.StudentID {
			continue
		}
		if filter.CreatedFrom != nil && a.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && !a.CreatedAt.Before(*filter.CreatedTo) {
			continue
		}

		projection := models.AssignmentProjection{
			ID:         a.ID,
			Title:      a.Title,
			TeacherID:  a.TeacherID,
			StudentID:  a.StudentID,
			CreatedAt:  a.CreatedAt,
			DueAt:      a.DueAt,
			TotalTasks: len(a.Tasks),
		}
		sum := 0
		for _, task := range a.Tasks {
			switch task.Status {
			case models.TaskStatusCompleted:
				projection.CompletedTasks++
			case models.TaskStatusInProgress:
				projection.InProgressTasks++
			}
			sum += task.ProgressPct
		}
		if len(a.Tasks) > 0 {
			projection.AverageProgress = float64(sum) / float64(len(a.Tasks))
		}
		projections = append(projections, projection)
	}

	sort.Slice(projections, func(i, j int) bool {
		if projections[i].CreatedAt.Equal(projections[j].CreatedAt) {
			return projections[i].ID.String() < projections[j].ID.String()
		}
		return projections[i].CreatedAt.Before(projections[j].CreatedAt)
	})
	return projections, nil
}

func (m *memoryHomeworkRepo) GetTask(ctx context.Context, id uuid.UUID) (models.HomeworkTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, assignment := range m.assignments {
		for _, task := range assignment.Tasks {
			if task.ID == id {
				return cloneAssignment(models.HomeworkAssignment{Tasks: []models.HomeworkTask{task}}).Tasks[0], nil
			}
		}
	}
	return models.HomeworkTask{}, gorm.ErrRecordNotFound
}

func (m *memoryHomeworkRepo) SaveTaskProgress(ctx context.Context, task *models.HomeworkTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	assignment, ok := m.assignments[task.AssignmentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range assignment.Tasks {
		if assignment.Tasks[i].ID == task.ID {
			stored := cloneAssignment(models.HomeworkAssignment{Tasks: []models.HomeworkTask{*task}}).Tasks[0]
			assignment.Tasks[i] = stored
			m.assignments[assignment.ID] = assignment
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *memoryHomeworkRepo) TouchAssignment(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	assignment, ok := m.assignments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	assignment.UpdatedAt = at
	m.assignments[id] = assignment
	return nil
}

// seed stores a fixture assignment with the given task statuses.
func (m *memoryHomeworkRepo) seed(teacherID, studentID uuid.UUID, title string, createdAt time.Time, dueAt *time.Time, statuses ...models.HomeworkTaskStatus) models.HomeworkAssignment {
	assignment := models.HomeworkAssignment{
		ID:        uuid.New(),
		TeacherID: teacherID,
		StudentID: studentID,
		Title:     title,
		DueAt:     dueAt,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	for i, status := range statuses {
		task := models.HomeworkTask{
			ID:           uuid.New(),
			AssignmentID: assignment.ID,
			Ordinal:      i + 1,
			Type:         models.TaskTypeReading,
			SourceKind:   models.SourceKindTeacherAuthored,
			Title:        title + " task",
			Status:       status,
			ContentRef:   datatypes.JSONMap{},
			Meta:         datatypes.JSONMap{},
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		}
		if status == models.TaskStatusCompleted {
			task.ProgressPct = 100
			task.StartedAt = &createdAt
			task.CompletedAt = &createdAt
		}
		assignment.Tasks = append(assignment.Tasks, task)
	}

	m.mu.Lock()
	m.assignments[assignment.ID] = assignment
	m.mu.Unlock()
	return assignment
}

func cloneAssignment(source models.HomeworkAssignment) models.HomeworkAssignment {
	clone := source
	clone.Tasks = make([]models.HomeworkTask, len(source.Tasks))
	for i, task := range source.Tasks {
		task.ContentRef = mergeMeta(task.ContentRef, nil)
		task.Meta = mergeMeta(task.Meta, nil)
		task.VocabWords = append([]models.HomeworkTaskVocabWord(nil), task.VocabWords...)
		clone.Tasks[i] = task
	}
	return clone
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []HomeworkEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event HomeworkEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, event := range p.events {
		out = append(out, event.Type)
	}
	return out
}

func newTestAssignmentService(repo repository.HomeworkRepository, events EventPublisher, now time.Time) *assignmentService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	svc := NewAssignmentService(repo, validate, events, ListingConfig{DefaultPageSize: 20, MaxPageSize: 50}, zerolog.New(io.Discard)).(*assignmentService)
	svc.now = func() time.Time { return now }
	return svc
}

func sampleCreateRequest(studentID uuid.UUID, key string) dto.HomeworkAssignmentCreateRequest {
	wordA := uuid.New()
	wordB := uuid.New()
	return dto.HomeworkAssignmentCreateRequest{
		StudentID:      studentID,
		Title:          "Week 3 homework",
		Instructions:   "Finish <b>both</b> tasks<script>alert(1)</script>",
		IdempotencyKey: key,
		Tasks: []dto.HomeworkTaskCreateRequest{
			{
				Type:         models.TaskTypeVocab,
				SourceKind:   models.SourceKindLessonContent,
				Title:        "Learn the words",
				ContentRef:   map[string]interface{}{"deck": "w3"},
				VocabWordIDs: []uuid.UUID{wordA, wordB, wordA},
			},
			{
				Type:       models.TaskTypeReading,
				SourceKind: models.SourceKindExternalLink,
				Title:      "Read the article",
			},
		},
	}
}

func TestAssignmentServiceCreateBuildsGraph(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemoryHomeworkRepo()
	events := &recordingPublisher{}
	svc := newTestAssignmentService(repo, events, now)

	teacherID := uuid.New()
	studentID := uuid.New()

	result, err := svc.Create(context.Background(), teacherID, sampleCreateRequest(studentID, ""))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, result.ID)
	require.Equal(t, teacherID, result.TeacherID)
	require.Equal(t, studentID, result.StudentID)
	require.Equal(t, now, result.CreatedAt)
	require.Equal(t, "Finish <b>both</b> tasks", result.Instructions)
	require.Len(t, result.Tasks, 2)

	vocab := result.Tasks[0]
	require.Equal(t, 1, vocab.Ordinal)
	require.Equal(t, models.TaskStatusNotStarted, vocab.Status)
	require.Equal(t, 0, vocab.ProgressPct)
	require.Equal(t, "w3", vocab.ContentRef["deck"])
	require.Len(t, vocab.VocabWords, 2)
	for _, word := range vocab.VocabWords {
		require.False(t, word.Learned)
	}

	reading := result.Tasks[1]
	require.Equal(t, 2, reading.Ordinal)
	require.Empty(t, reading.VocabWords)
	require.NotNil(t, reading.ContentRef)

	require.Equal(t, []string{EventAssignmentCreated}, events.types())
}

func TestAssignmentServiceCreateAssignsOrdinals(t *testing.T) {
	repo := newMemoryHomeworkRepo()
	svc := newTestAssignmentService(repo, nil, time.Now().UTC())

	req := sampleCreateRequest(uuid.New(), "")
	five := 5
	req.Tasks[0].Ordinal = &five

	result, err := svc.Create(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	require.Equal(t, 2, result.Tasks[0].Ordinal)
	require.Equal(t, 5, result.Tasks[1].Ordinal)

	two := 2
	req.Tasks[0].Ordinal = &two
	_, err = svc.Create(context.Background(), uuid.New(), req)
	require.ErrorIs(t, err, ErrValidation)
}

func TestAssignmentServiceCreateValidation(t *testing.T) {
	repo := newMemoryHomeworkRepo()
	svc := newTestAssignmentService(repo, nil, time.Now().UTC())

	req := sampleCreateRequest(uuid.New(), "")
	req.Tasks = nil
	_, err := svc.Create(context.Background(), uuid.New(), req)
	require.ErrorIs(t, err, ErrValidation)

	req = sampleCreateRequest(uuid.New(), "")
	req.Tasks[1].Type = "DANCE"
	_, err = svc.Create(context.Background(), uuid.New(), req)
	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))

	req = sampleCreateRequest(uuid.New(), "")
	req.Title = "<script>x</script>"
	_, err = svc.Create(context.Background(), uuid.New(), req)
	require.ErrorIs(t, err, ErrValidation)

	require.Zero(t, repo.creates)
}

func TestAssignmentServiceCreateIsIdempotent(t *testing.T) {
	repo := newMemoryHomeworkRepo()
	events := &recordingPublisher{}
	svc := newTestAssignmentService(repo, events, time.Now().UTC())

	teacherID := uuid.New()
	studentID := uuid.New()

	first, err := svc.Create(context.Background(), teacherID, sampleCreateRequest(studentID, "req-1"))
	require.NoError(t, err)

	other := sampleCreateRequest(studentID, " req-1 ")
	other.Title = "Different title"
	other.Tasks = other.Tasks[:1]
	second, err := svc.Create(context.Background(), teacherID, other)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Title, second.Title)
	require.Len(t, second.Tasks, 2)
	require.Equal(t, 1, repo.creates)
	require.Equal(t, []string{EventAssignmentCreated}, events.types())

	// a different student with the same key is a separate assignment
	third, err := svc.Create(context.Background(), teacherID, sampleCreateRequest(uuid.New(), "req-1"))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, third.ID)
}

func TestAssignmentServiceCreateReturnsRaceWinner(t *testing.T) {
	repo := newMemoryHomeworkRepo()
	svc := newTestAssignmentService(repo, nil, time.Now().UTC())

	teacherID := uuid.New()
	studentID := uuid.New()
	key := "race-key"
	winner := repo.seed(teacherID, studentID, "Winner", time.Now().UTC(), nil, models.TaskStatusNotStarted)

	// the lookup inside the transaction misses; the insert then hits the unique index
	delete(repo.assignments, winner.ID)
	repo.beforeCreate = func(models.HomeworkAssignment) error {
		winner.IdempotencyKey = &key
		repo.mu.Lock()
		repo.assignments[winner.ID] = winner
		repo.mu.Unlock()
		return gorm.ErrDuplicatedKey
	}

	result, err := svc.Create(context.Background(), teacherID, sampleCreateRequest(studentID, key))
	require.NoError(t, err)
	require.Equal(t, winner.ID, result.ID)
	require.Equal(t, "Winner", result.Title)
	require.Zero(t, repo.creates)
}

func TestAssignmentServiceCreateSurfacesStoreErrors(t *testing.T) {
	repo := newMemoryHomeworkRepo()
	boom := errors.New("disk full")
	repo.beforeCreate = func(models.HomeworkAssignment) error { return boom }
	svc := newTestAssignmentService(repo, nil, time.Now().UTC())

	_, err := svc.Create(context.Background(), uuid.New(), sampleCreateRequest(uuid.New(), ""))
	require.ErrorIs(t, err, boom)
}

// fixtures: A1 open and due soon, A2 overdue, A3 fully completed.
func seedStudentFixtures(repo *memoryHomeworkRepo, teacherID, studentID uuid.UUID, now time.Time) (a1, a2, a3 models.HomeworkAssignment) {
	dueA1 := now.Add(48 * time.Hour)
	dueA2 := now.Add(-24 * time.Hour)
	dueA3 := now.Add(24 * time.Hour)

	a1 = repo.seed(teacherID, studentID, "A1", now.Add(-30*time.Minute), &dueA1, models.TaskStatusNotStarted, models.TaskStatusInProgress)
	a2 = repo.seed(teacherID, studentID, "A2", now.Add(-3*24*time.Hour), &dueA2, models.TaskStatusNotStarted)
	a3 = repo.seed(teacherID, studentID, "A3", now.Add(-10*time.Minute), &dueA3, models.TaskStatusCompleted, models.TaskStatusCompleted)
	return a1, a2, a3
}

func TestAssignmentServiceCountForStudent(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemoryHomeworkRepo()
	svc := newTestAssignmentService(repo, nil, now)

	teacherID := uuid.New()
	studentID := uuid.New()
	seedStudentFixtures(repo, teacherID, studentID, now)
	repo.seed(teacherID, uuid.New(), "other student", now.Add(-time.Hour), nil, models.TaskStatusNotStarted)

	counts, err := svc.CountForStudent(context.Background(), studentID, dto.AssignmentCountRequest{
		From: now.Add(-7 * 24 * time.Hour).Format(time.RFC3339Nano),
		To:   now.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	require.Equal(t, dto.AssignmentCountsResponse{NotFinished: 2, Completed: 1, Overdue: 1, Active: 2, All: 3}, counts)
}

func TestAssignmentServiceListActiveKeepsOverdueOutsideRange(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemoryHomeworkRepo()
	svc := newTestAssignmentService(repo, nil, now)

	teacherID := uuid.New()
	studentID := uuid.New()
	_, a2, _ := seedStudentFixtures(repo, teacherID, studentID, now)

	result, err := svc.ListForStudent(context.Background(), studentID, dto.AssignmentListRequest{
		Status:         AssignmentStatusActive,
		From:           now.Add(-2 * time.Hour).Format(time.RFC3339Nano),
		To:             now.Add(-time.Hour).Format(time.RFC3339Nano),
		IncludeOverdue: boolPtr(true),
		HideCompleted:  boolPtr(true),
		Sort:           AssignmentSortAssignedDesc,
	})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, a2.ID, result.Items[0].ID)
	require.True(t, result.Items[0].Overdue)
	require.False(t, result.Items[0].Completed)
	require.Equal(t, int64(1), result.Pagination.TotalItems)
	require.Equal(t, AssignmentStatusActive, result.Filters.Status)
	require.True(t, result.Filters.HideCompleted)
}

func TestAssignmentServiceListSummaries(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemoryHomeworkRepo()
	svc := newTestAssignmentService(repo, nil, now)

	teacherID := uuid.New()
	studentID := uuid.New()
	a1, _, a3 := seedStudentFixtures(repo, teacherID, studentID, now)

	result, err := svc.ListForStudent(context.Background(), studentID, dto.AssignmentListRequest{Status: AssignmentStatusAll})
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	require.Equal(t, []uuid.UUID{a3.ID, a1.ID}, []uuid.UUID{result.Items[0].ID, result.Items[1].ID})

	completed := result.Items[0]
	require.True(t, completed.Completed)
	require.Equal(t, 100, completed.ProgressPct)
	require.Equal(t, 2, completed.CompletedTasks)

	open := result.Items[1]
	require.False(t, open.Completed)
	require.Equal(t, 0, open.ProgressPct)
	require.Equal(t, 1, open.InProgressTasks)

	completedOnly, err := svc.ListForStudent(context.Background(), studentID, dto.AssignmentListRequest{Status: AssignmentStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completedOnly.Items, 1)
	require.Equal(t, a3.ID, completedOnly.Items[0].ID)

	notFinished, err := svc.ListForStudent(context.Background(), studentID, dto.AssignmentListRequest{
		Status: AssignmentStatusNotFinished,
		From:   "2000-01-01",
		To:     "2000-01-02",
		Sort:   AssignmentSortDueAsc,
	})
	require.NoError(t, err)
	require.Len(t, notFinished.Items, 2)
	require.Equal(t, "A2", notFinished.Items[0].Title)
	require.Equal(t, "A1", notFinished.Items[1].Title)
}

func TestAssignmentServiceListPaginatesAfterFiltering(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemoryHomeworkRepo()
	svc := newTestAssignmentService(repo, nil, now)

	teacherID := uuid.New()
	studentID := uuid.New()
	for i := 0; i < 5; i++ {
		repo.seed(teacherID, studentID, "open", now.Add(-time.Duration(i+1)*time.Hour), nil, models.TaskStatusNotStarted)
		repo.seed(teacherID, studentID, "done", now.Add(-time.Duration(i+1)*time.Minute), nil, models.TaskStatusCompleted)
	}

	page, err := svc.ListForStudent(context.Background(), studentID, dto.AssignmentListRequest{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, int64(5), page.Pagination.TotalItems)
	require.Equal(t, 3, page.Pagination.TotalPages)
	for _, item := range page.Items {
		require.Equal(t, "open", item.Title)
	}

	capped, err := svc.ListForStudent(context.Background(), studentID, dto.AssignmentListRequest{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 50, capped.Pagination.PageSize)

	_, err = svc.ListForStudent(context.Background(), studentID, dto.AssignmentListRequest{Page: -1})
	var validationErrors validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrors))
}

func TestAssignmentServiceListForTeacher(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemoryHomeworkRepo()
	svc := newTestAssignmentService(repo, nil, now)

	teacherID := uuid.New()
	studentA := uuid.New()
	studentB := uuid.New()
	repo.seed(teacherID, studentA, "for A", now.Add(-time.Hour), nil, models.TaskStatusNotStarted)
	repo.seed(teacherID, studentB, "for B", now.Add(-2*time.Hour), nil, models.TaskStatusNotStarted)
	repo.seed(uuid.New(), studentA, "someone else", now.Add(-time.Hour), nil, models.TaskStatusNotStarted)

	all, err := svc.ListForTeacher(context.Background(), teacherID, nil, dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Equal(t, []string{"for A", "for B"}, titles(all.Items))

	narrowed, err := svc.ListForTeacher(context.Background(), teacherID, &studentB, dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Equal(t, []string{"for B"}, titles(narrowed.Items))
}

func TestAssignmentServiceGetAndDelete(t *testing.T) {
	repo := newMemoryHomeworkRepo()
	events := &recordingPublisher{}
	svc := newTestAssignmentService(repo, events, time.Now().UTC())

	seeded := repo.seed(uuid.New(), uuid.New(), "to delete", time.Now().UTC(), nil, models.TaskStatusNotStarted)

	got, err := svc.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, seeded.ID, got.ID)

	require.NoError(t, svc.Delete(context.Background(), seeded.ID))
	_, err = svc.Get(context.Background(), seeded.ID)
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	// deleting again is a no-op
	require.NoError(t, svc.Delete(context.Background(), seeded.ID))
	require.Equal(t, []string{EventAssignmentDeleted}, events.types())
}

func TestAssignmentServiceIgnoresPublisherFailures(t *testing.T) {
	repo := newMemoryHomeworkRepo()
	events := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestAssignmentService(repo, events, time.Now().UTC())

	result, err := svc.Create(context.Background(), uuid.New(), sampleCreateRequest(uuid.New(), ""))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, result.ID)
}
