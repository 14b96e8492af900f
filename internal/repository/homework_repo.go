package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-homework-api/internal/models"
)

// ProjectionFilter scopes the aggregate projection query. Nil fields are not applied.
// CreatedFrom is inclusive and CreatedTo exclusive.
type ProjectionFilter struct {
	TeacherID   *uuid.UUID
	StudentID   *uuid.UUID
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// HomeworkRepository persists assignments together with the tasks and vocabulary
// links they own. Tasks are only reachable through their assignment's store.
type HomeworkRepository interface {
	Transaction(ctx context.Context, fn func(repo HomeworkRepository) error) error
	GetByID(ctx context.Context, id uuid.UUID) (models.HomeworkAssignment, error)
	FindByIdempotencyKey(ctx context.Context, teacherID, studentID uuid.UUID, key string) (models.HomeworkAssignment, error)
	Create(ctx context.Context, assignment *models.HomeworkAssignment) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListProjections(ctx context.Context, filter ProjectionFilter) ([]models.AssignmentProjection, error)
	GetTask(ctx context.Context, id uuid.UUID) (models.HomeworkTask, error)
	SaveTaskProgress(ctx context.Context, task *models.HomeworkTask) error
	TouchAssignment(ctx context.Context, id uuid.UUID, at time.Time) error
}

type homeworkRepository struct {
	db *gorm.DB
}

// NewHomeworkRepository instantiates a GORM-backed homework store.
func NewHomeworkRepository(db *gorm.DB) HomeworkRepository {
	return &homeworkRepository{db: db}
}

func (r *homeworkRepository) Transaction(ctx context.Context, fn func(repo HomeworkRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&homeworkRepository{db: tx})
	})
}

func (r *homeworkRepository) graphQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Tasks", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("ordinal ASC")
		}).
		Preload("Tasks.VocabWords")
}

func (r *homeworkRepository) GetByID(ctx context.Context, id uuid.UUID) (models.HomeworkAssignment, error) {
	var assignment models.HomeworkAssignment
	if err := r.graphQuery(ctx).Where("id = ?", id).First(&assignment).Error; err != nil {
		return models.HomeworkAssignment{}, err
	}

	return assignment, nil
}

func (r *homeworkRepository) FindByIdempotencyKey(ctx context.Context, teacherID, studentID uuid.UUID, key string) (models.HomeworkAssignment, error) {
	var assignment models.HomeworkAssignment
	if err := r.graphQuery(ctx).
		Where("teacher_id = ?", teacherID).
		Where("student_id = ?", studentID).
		Where("idempotency_key = ?", key).
		First(&assignment).Error; err != nil {
		return models.HomeworkAssignment{}, err
	}

	return assignment, nil
}

// Create writes the assignment, its tasks and their vocabulary links in one transaction.
// Identifiers are expected to be set before the call so children can reference parents.
func (r *homeworkRepository) Create(ctx context.Context, assignment *models.HomeworkAssignment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(assignment).Error; err != nil {
			return err
		}

		if len(assignment.Tasks) == 0 {
			return nil
		}

		words := make([]models.HomeworkTaskVocabWord, 0)
		for i := range assignment.Tasks {
			task := &assignment.Tasks[i]
			task.AssignmentID = assignment.ID
			if task.ID == uuid.Nil {
				task.ID = uuid.New()
			}
			for j := range task.VocabWords {
				task.VocabWords[j].TaskID = task.ID
				words = append(words, task.VocabWords[j])
			}
		}

		if err := tx.Omit(clause.Associations).Create(&assignment.Tasks).Error; err != nil {
			return err
		}

		if len(words) > 0 {
			if err := tx.Create(&words).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *homeworkRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taskIDs := tx.Model(&models.HomeworkTask{}).Select("id").Where("assignment_id = ?", id)
		if err := tx.Where("task_id IN (?)", taskIDs).Delete(&models.HomeworkTaskVocabWord{}).Error; err != nil {
			return err
		}

		if err := tx.Where("assignment_id = ?", id).Delete(&models.HomeworkTask{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&models.HomeworkAssignment{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

type projectionRow struct {
	ID              uuid.UUID
	Title           string
	TeacherID       uuid.UUID
	StudentID       uuid.UUID
	CreatedAt       time.Time
	DueAt           *time.Time
	TotalTasks      int64
	CompletedTasks  int64
	InProgressTasks int64
	AverageProgress float64
}

// ListProjections aggregates task counts per assignment. Rows come back in
// creation order so callers can rely on it as the stable tie-breaker.
func (r *homeworkRepository) ListProjections(ctx context.Context, filter ProjectionFilter) ([]models.AssignmentProjection, error) {
	query := r.db.WithContext(ctx).
		Table("homework_assignments AS a").
		Select(`a.id AS id, a.title AS title, a.teacher_id AS teacher_id, a.student_id AS student_id,
			a.created_at AS created_at, a.due_at AS due_at,
			COUNT(t.id) AS total_tasks,
			COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0) AS completed_tasks,
			COALESCE(SUM(CASE WHEN t.status = ? THEN 1 ELSE 0 END), 0) AS in_progress_tasks,
			CAST(COALESCE(AVG(t.progress_pct), 0) AS FLOAT) AS average_progress`,
			string(models.TaskStatusCompleted), string(models.TaskStatusInProgress)).
		Joins("LEFT JOIN homework_tasks AS t ON t.assignment_id = a.id")

	if filter.TeacherID != nil {
		query = query.Where("a.teacher_id = ?", *filter.TeacherID)
	}
	if filter.StudentID != nil {
		query = query.Where("a.student_id = ?", *filter.StudentID)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("a.created_at >= ?", filter.CreatedFrom.UTC())
	}
	if filter.CreatedTo != nil {
		query = query.Where("a.created_at < ?", filter.CreatedTo.UTC())
	}

	var rows []projectionRow
	if err := query.
		Group("a.id, a.title, a.teacher_id, a.student_id, a.created_at, a.due_at").
		Order("a.created_at ASC").
		Order("a.id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	projections := make([]models.AssignmentProjection, 0, len(rows))
	for _, row := range rows {
		projections = append(projections, models.AssignmentProjection{
			ID:              row.ID,
			Title:           row.Title,
			TeacherID:       row.TeacherID,
			StudentID:       row.StudentID,
			CreatedAt:       row.CreatedAt,
			DueAt:           row.DueAt,
			TotalTasks:      int(row.TotalTasks),
			CompletedTasks:  int(row.CompletedTasks),
			InProgressTasks: int(row.InProgressTasks),
			AverageProgress: row.AverageProgress,
		})
	}

	return projections, nil
}

func (r *homeworkRepository) GetTask(ctx context.Context, id uuid.UUID) (models.HomeworkTask, error) {
	var task models.HomeworkTask
	if err := r.db.WithContext(ctx).Preload("VocabWords").Where("id = ?", id).First(&task).Error; err != nil {
		return models.HomeworkTask{}, err
	}

	return task, nil
}

// SaveTaskProgress writes the mutable progress columns of a task, keeping the
// caller-provided updated_at.
func (r *homeworkRepository) SaveTaskProgress(ctx context.Context, task *models.HomeworkTask) error {
	result := r.db.WithContext(ctx).
		Model(&models.HomeworkTask{}).
		Where("id = ?", task.ID).
		UpdateColumns(map[string]interface{}{
			"status":       string(task.Status),
			"progress_pct": task.ProgressPct,
			"started_at":   task.StartedAt,
			"completed_at": task.CompletedAt,
			"meta":         task.Meta,
			"updated_at":   task.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *homeworkRepository) TouchAssignment(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.HomeworkAssignment{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at).Error
}
