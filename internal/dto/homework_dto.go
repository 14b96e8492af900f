package dto

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/gema-homework-api/internal/models"
)

// HomeworkTaskCreateRequest describes one task inside an assignment creation payload.
type HomeworkTaskCreateRequest struct {
	Type         models.HomeworkTaskType `json:"type" validate:"required,oneof=VOCAB GRAMMAR READING LISTENING WRITING SPEAKING VIDEO PRACTICE"`
	SourceKind   models.SourceKind       `json:"source_kind" validate:"required,oneof=LESSON_CONTENT TEACHER_AUTHORED EXTERNAL_LINK UPLOADED_FILE"`
	Title        string                  `json:"title" validate:"required,max=255"`
	Instructions string                  `json:"instructions"`
	Ordinal      *int                    `json:"ordinal" validate:"omitempty,min=1"`
	ContentRef   map[string]interface{}  `json:"content_ref"`
	VocabWordIDs []uuid.UUID             `json:"vocab_word_ids"`
}

// HomeworkAssignmentCreateRequest describes the payload for issuing homework to a student.
type HomeworkAssignmentCreateRequest struct {
	StudentID      uuid.UUID                   `json:"student_id" validate:"required"`
	Title          string                      `json:"title" validate:"required,max=255"`
	Instructions   string                      `json:"instructions"`
	DueAt          *time.Time                  `json:"due_at"`
	LessonID       *uuid.UUID                  `json:"lesson_id"`
	IdempotencyKey string                      `json:"idempotency_key" validate:"max=255"`
	Tasks          []HomeworkTaskCreateRequest `json:"tasks" validate:"dive"`
}

// TaskProgressRequest reports partial progress on a task.
type TaskProgressRequest struct {
	ProgressPct *int                   `json:"progress_pct" validate:"omitempty,min=0,max=100"`
	Meta        map[string]interface{} `json:"meta"`
}

// TaskCompleteRequest carries optional metadata recorded when a task is completed.
type TaskCompleteRequest struct {
	Meta map[string]interface{} `json:"meta"`
}

// AssignmentListRequest holds the raw filter tokens of a listing call.
type AssignmentListRequest struct {
	Status         string `validate:"omitempty,oneof=active notFinished completed all"`
	From           string
	To             string
	IncludeOverdue *bool
	HideCompleted  *bool
	Sort           string `validate:"omitempty,oneof=assigned_desc assigned_asc due_asc due_desc"`
	Page           int    `validate:"min=0"`
	PageSize       int    `validate:"min=0"`
}

// AssignmentCountRequest holds the raw filter tokens of a counting call.
type AssignmentCountRequest struct {
	From           string
	To             string
	IncludeOverdue *bool
}

// HomeworkVocabWordResponse is the serialized vocabulary link of a task.
type HomeworkVocabWordResponse struct {
	ID      uuid.UUID `json:"id"`
	WordID  uuid.UUID `json:"word_id"`
	Learned bool      `json:"learned"`
}

// HomeworkTaskResponse is the serialized representation of a task.
type HomeworkTaskResponse struct {
	ID           uuid.UUID                   `json:"id"`
	Ordinal      int                         `json:"ordinal"`
	Type         models.HomeworkTaskType     `json:"type"`
	SourceKind   models.SourceKind           `json:"source_kind"`
	Title        string                      `json:"title"`
	Instructions string                      `json:"instructions"`
	ContentRef   map[string]interface{}      `json:"content_ref"`
	Status       models.HomeworkTaskStatus   `json:"status"`
	ProgressPct  int                         `json:"progress_pct"`
	StartedAt    *time.Time                  `json:"started_at"`
	CompletedAt  *time.Time                  `json:"completed_at"`
	Meta         map[string]interface{}      `json:"meta"`
	VocabWords   []HomeworkVocabWordResponse `json:"vocab_words"`
}

// HomeworkAssignmentResponse is the full assignment view returned after every mutation.
type HomeworkAssignmentResponse struct {
	ID             uuid.UUID              `json:"id"`
	TeacherID      uuid.UUID              `json:"teacher_id"`
	StudentID      uuid.UUID              `json:"student_id"`
	Title          string                 `json:"title"`
	Instructions   string                 `json:"instructions"`
	DueAt          *time.Time             `json:"due_at"`
	LessonID       *uuid.UUID             `json:"lesson_id"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Tasks          []HomeworkTaskResponse `json:"tasks"`
}

// NewHomeworkAssignmentResponse converts an assignment graph into a DTO with tasks in ordinal order.
func NewHomeworkAssignmentResponse(model models.HomeworkAssignment) HomeworkAssignmentResponse {
	tasks := make([]HomeworkTaskResponse, 0, len(model.Tasks))
	for _, task := range model.Tasks {
		tasks = append(tasks, NewHomeworkTaskResponse(task))
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Ordinal < tasks[j].Ordinal
	})

	response := HomeworkAssignmentResponse{
		ID:           model.ID,
		TeacherID:    model.TeacherID,
		StudentID:    model.StudentID,
		Title:        model.Title,
		Instructions: model.Instructions,
		DueAt:        model.DueAt,
		LessonID:     model.LessonID,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
		Tasks:        tasks,
	}
	if model.IdempotencyKey != nil {
		response.IdempotencyKey = *model.IdempotencyKey
	}

	return response
}

// NewHomeworkTaskResponse converts a task model into a DTO.
func NewHomeworkTaskResponse(model models.HomeworkTask) HomeworkTaskResponse {
	words := make([]HomeworkVocabWordResponse, 0, len(model.VocabWords))
	for _, word := range model.VocabWords {
		words = append(words, HomeworkVocabWordResponse{
			ID:      word.ID,
			WordID:  word.WordID,
			Learned: word.Learned,
		})
	}

	return HomeworkTaskResponse{
		ID:           model.ID,
		Ordinal:      model.Ordinal,
		Type:         model.Type,
		SourceKind:   model.SourceKind,
		Title:        model.Title,
		Instructions: model.Instructions,
		ContentRef:   copyPayload(model.ContentRef),
		Status:       model.Status,
		ProgressPct:  model.ProgressPct,
		StartedAt:    model.StartedAt,
		CompletedAt:  model.CompletedAt,
		Meta:         copyPayload(model.Meta),
		VocabWords:   words,
	}
}

// AssignmentSummaryResponse is the derived per-assignment view used by listings.
type AssignmentSummaryResponse struct {
	ID                  uuid.UUID  `json:"id"`
	Title               string     `json:"title"`
	TeacherID           uuid.UUID  `json:"teacher_id"`
	StudentID           uuid.UUID  `json:"student_id"`
	CreatedAt           time.Time  `json:"created_at"`
	DueAt               *time.Time `json:"due_at"`
	TotalTasks          int        `json:"total_tasks"`
	CompletedTasks      int        `json:"completed_tasks"`
	InProgressTasks     int        `json:"in_progress_tasks"`
	ProgressPct         int        `json:"progress_pct"`
	AverageTaskProgress int        `json:"average_task_progress"`
	Completed           bool       `json:"completed"`
	Overdue             bool       `json:"overdue"`
}

// NewAssignmentSummaryResponse derives a summary from a store projection as of now.
func NewAssignmentSummaryResponse(p models.AssignmentProjection, now time.Time) AssignmentSummaryResponse {
	total := maxInt(p.TotalTasks, 0)
	completedTasks := maxInt(p.CompletedTasks, 0)

	progress := 0
	if total > 0 {
		progress = clampPct(int(math.Round(100 * float64(completedTasks) / float64(total))))
	}

	completed := total > 0 && completedTasks == total

	return AssignmentSummaryResponse{
		ID:                  p.ID,
		Title:               p.Title,
		TeacherID:           p.TeacherID,
		StudentID:           p.StudentID,
		CreatedAt:           p.CreatedAt,
		DueAt:               p.DueAt,
		TotalTasks:          total,
		CompletedTasks:      completedTasks,
		InProgressTasks:     maxInt(p.InProgressTasks, 0),
		ProgressPct:         progress,
		AverageTaskProgress: clampPct(int(math.Round(p.AverageProgress))),
		Completed:           completed,
		Overdue:             !completed && p.IsPastDue(now),
	}
}

// AppliedAssignmentFilters echoes the fully resolved filters of a listing.
type AppliedAssignmentFilters struct {
	Status         string    `json:"status"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	IncludeOverdue bool      `json:"include_overdue"`
	HideCompleted  bool      `json:"hide_completed"`
	Sort           string    `json:"sort"`
}

// AssignmentSummaryListResponse is one page of filtered summaries.
type AssignmentSummaryListResponse struct {
	Items      []AssignmentSummaryResponse `json:"items"`
	Pagination PaginationMeta              `json:"pagination"`
	Filters    AppliedAssignmentFilters    `json:"filters"`
}

// AssignmentCountsResponse holds the named counters of a student's homework.
type AssignmentCountsResponse struct {
	NotFinished int64 `json:"not_finished"`
	Completed   int64 `json:"completed"`
	Overdue     int64 `json:"overdue"`
	Active      int64 `json:"active"`
	All         int64 `json:"all"`
}

func copyPayload(source map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(source))
	for key, value := range source {
		result[key] = value
	}
	return result
}

func clampPct(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
