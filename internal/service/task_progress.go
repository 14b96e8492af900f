package service

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-homework-api/internal/models"
)

// startTask moves a NOT_STARTED task into progress. Any other state is left
// untouched and reported as unchanged.
func startTask(task *models.HomeworkTask, now time.Time) bool {
	if task.Status != models.TaskStatusNotStarted {
		return false
	}

	task.Status = models.TaskStatusInProgress
	task.StartedAt = timePtr(now)
	return true
}

// progressTask records partial progress. The stored percentage never decreases
// and a completed task keeps its status.
func progressTask(task *models.HomeworkTask, now time.Time, pct *int, meta map[string]interface{}) bool {
	changed := startTask(task, now)

	if pct != nil {
		next := maxInt(task.ProgressPct, clampProgress(*pct))
		if next != task.ProgressPct {
			task.ProgressPct = next
			changed = true
		}
	}

	if len(meta) > 0 {
		task.Meta = mergeMeta(task.Meta, meta)
		changed = true
	}

	return changed
}

// completeTask forces the terminal state. Calling it again re-stamps completedAt.
func completeTask(task *models.HomeworkTask, now time.Time, meta map[string]interface{}) {
	task.Status = models.TaskStatusCompleted
	task.ProgressPct = 100
	task.CompletedAt = timePtr(now)
	if task.StartedAt == nil {
		task.StartedAt = timePtr(now)
	}
	if len(meta) > 0 {
		task.Meta = mergeMeta(task.Meta, meta)
	}
}

func mergeMeta(existing datatypes.JSONMap, updates map[string]interface{}) datatypes.JSONMap {
	merged := make(datatypes.JSONMap, len(existing)+len(updates))
	for key, value := range existing {
		merged[key] = value
	}
	for key, value := range updates {
		merged[key] = value
	}
	return merged
}

func clampProgress(value int) int {
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

func timePtr(t time.Time) *time.Time {
	return &t
}
