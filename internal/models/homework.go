package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HomeworkTaskType enumerates the kinds of work a task can ask for.
type HomeworkTaskType string

const (
	TaskTypeVocab     HomeworkTaskType = "VOCAB"
	TaskTypeGrammar   HomeworkTaskType = "GRAMMAR"
	TaskTypeReading   HomeworkTaskType = "READING"
	TaskTypeListening HomeworkTaskType = "LISTENING"
	TaskTypeWriting   HomeworkTaskType = "WRITING"
	TaskTypeSpeaking  HomeworkTaskType = "SPEAKING"
	TaskTypeVideo     HomeworkTaskType = "VIDEO"
	TaskTypePractice  HomeworkTaskType = "PRACTICE"
)

// SourceKind records where the content of a task comes from.
type SourceKind string

const (
	SourceKindLessonContent   SourceKind = "LESSON_CONTENT"
	SourceKindTeacherAuthored SourceKind = "TEACHER_AUTHORED"
	SourceKindExternalLink    SourceKind = "EXTERNAL_LINK"
	SourceKindUploadedFile    SourceKind = "UPLOADED_FILE"
)

// HomeworkTaskStatus is the progress state of a single task.
type HomeworkTaskStatus string

const (
	// TaskStatusNotStarted is the initial state of every task.
	TaskStatusNotStarted HomeworkTaskStatus = "NOT_STARTED"
	// TaskStatusInProgress is entered on start or on the first progress report.
	TaskStatusInProgress HomeworkTaskStatus = "IN_PROGRESS"
	// TaskStatusCompleted is terminal.
	TaskStatusCompleted HomeworkTaskStatus = "COMPLETED"
)

// HomeworkAssignment is a unit of homework issued by a teacher to one student.
// Tasks and their vocabulary links are owned by the assignment and removed with it.
type HomeworkAssignment struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TeacherID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_assignment_idem,priority:1;index:idx_hw_assign_teacher,priority:1" json:"teacher_id"`
	StudentID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_assignment_idem,priority:2;index:idx_hw_assign_student,priority:1" json:"student_id"`
	Title          string         `gorm:"size:255;not null" json:"title"`
	Instructions   string         `gorm:"type:text" json:"instructions"`
	DueAt          *time.Time     `gorm:"index:idx_hw_assign_student,priority:2" json:"due_at"`
	LessonID       *uuid.UUID     `gorm:"type:uuid" json:"lesson_id"`
	IdempotencyKey *string        `gorm:"size:255;uniqueIndex:uk_assignment_idem,priority:3" json:"idempotency_key"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_hw_assign_teacher,priority:2" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	Tasks          []HomeworkTask `gorm:"foreignKey:AssignmentID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"tasks"`
}

// TableName pins the table name used by the store.
func (HomeworkAssignment) TableName() string { return "homework_assignments" }

// BeforeCreate assigns an identifier when the caller did not mint one.
func (a *HomeworkAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// HomeworkTask is a single unit of work inside an assignment.
type HomeworkTask struct {
	ID           uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:uk_hw_task_ordinal,priority:1;index:idx_hw_tasks_status,priority:1" json:"assignment_id"`
	Ordinal      int                     `gorm:"not null;uniqueIndex:uk_hw_task_ordinal,priority:2" json:"ordinal"`
	Type         HomeworkTaskType        `gorm:"size:32;not null" json:"type"`
	SourceKind   SourceKind              `gorm:"size:32;not null" json:"source_kind"`
	Title        string                  `gorm:"size:255;not null" json:"title"`
	Instructions string                  `gorm:"type:text" json:"instructions"`
	ContentRef   datatypes.JSONMap       `gorm:"not null" json:"content_ref"`
	Status       HomeworkTaskStatus      `gorm:"size:32;not null;index:idx_hw_tasks_status,priority:2" json:"status"`
	ProgressPct  int                     `gorm:"not null;default:0" json:"progress_pct"`
	StartedAt    *time.Time              `json:"started_at"`
	CompletedAt  *time.Time              `json:"completed_at"`
	Meta         datatypes.JSONMap       `gorm:"not null" json:"meta"`
	CreatedAt    time.Time               `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time               `gorm:"not null" json:"updated_at"`
	VocabWords   []HomeworkTaskVocabWord `gorm:"foreignKey:TaskID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"vocab_words"`
}

// TableName pins the table name used by the store.
func (HomeworkTask) TableName() string { return "homework_tasks" }

// BeforeCreate assigns an identifier and non-null JSON payloads.
func (t *HomeworkTask) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.ContentRef == nil {
		t.ContentRef = datatypes.JSONMap{}
	}
	if t.Meta == nil {
		t.Meta = datatypes.JSONMap{}
	}
	if t.Status == "" {
		t.Status = TaskStatusNotStarted
	}
	return nil
}

// HomeworkTaskVocabWord links a VOCAB task to a vocabulary word.
type HomeworkTaskVocabWord struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TaskID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_hw_task_word,priority:1" json:"task_id"`
	WordID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_hw_task_word,priority:2;index:idx_hw_vocab_word" json:"word_id"`
	Learned bool      `gorm:"not null;default:false" json:"learned"`
}

// TableName pins the table name used by the store.
func (HomeworkTaskVocabWord) TableName() string { return "homework_task_vocab_words" }

// BeforeCreate assigns an identifier when missing.
func (w *HomeworkTaskVocabWord) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// AssignmentProjection is the per-assignment aggregate read from the store
// for listing and counting. It is never persisted.
type AssignmentProjection struct {
	ID              uuid.UUID
	Title           string
	TeacherID       uuid.UUID
	StudentID       uuid.UUID
	CreatedAt       time.Time
	DueAt           *time.Time
	TotalTasks      int
	CompletedTasks  int
	InProgressTasks int
	AverageProgress float64
}

// IsPastDue reports whether the assignment has a deadline earlier than reference.
func (p AssignmentProjection) IsPastDue(reference time.Time) bool {
	return p.DueAt != nil && p.DueAt.Before(reference)
}
