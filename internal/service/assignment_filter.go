package service

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/gema-homework-api/internal/dto"
)

// Status tokens accepted by assignment listings.
const (
	AssignmentStatusActive      = "active"
	AssignmentStatusNotFinished = "notFinished"
	AssignmentStatusCompleted   = "completed"
	AssignmentStatusAll         = "all"
)

// Sort tokens accepted by assignment listings.
const (
	AssignmentSortAssignedDesc = "assigned_desc"
	AssignmentSortAssignedAsc  = "assigned_asc"
	AssignmentSortDueAsc       = "due_asc"
	AssignmentSortDueDesc      = "due_desc"
)

// ListCriteria is the fully resolved form of a listing request.
type ListCriteria struct {
	Status         string
	Range          DateRange
	IncludeOverdue bool
	HideCompleted  bool
	Sort           string
}

// ResolveListCriteria applies the listing defaults to the raw request tokens.
// hideCompleted defaults to true only for the active status; an explicit value always wins.
func ResolveListCriteria(req dto.AssignmentListRequest, now time.Time) (ListCriteria, error) {
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = AssignmentStatusActive
	}
	switch status {
	case AssignmentStatusActive, AssignmentStatusNotFinished, AssignmentStatusCompleted, AssignmentStatusAll:
	default:
		return ListCriteria{}, validationError("unknown status %q", status)
	}

	sortKey := strings.TrimSpace(req.Sort)
	if sortKey == "" {
		sortKey = AssignmentSortAssignedDesc
	}
	switch sortKey {
	case AssignmentSortAssignedDesc, AssignmentSortAssignedAsc, AssignmentSortDueAsc, AssignmentSortDueDesc:
	default:
		return ListCriteria{}, validationError("unknown sort %q", sortKey)
	}

	dateRange, err := ResolveDateRange(req.From, req.To, now)
	if err != nil {
		return ListCriteria{}, err
	}

	includeOverdue := true
	if req.IncludeOverdue != nil {
		includeOverdue = *req.IncludeOverdue
	}

	hideCompleted := status == AssignmentStatusActive
	if req.HideCompleted != nil {
		hideCompleted = *req.HideCompleted
	}

	return ListCriteria{
		Status:         status,
		Range:          dateRange,
		IncludeOverdue: includeOverdue,
		HideCompleted:  hideCompleted,
		Sort:           sortKey,
	}, nil
}

// Unbounded reports whether candidates must be read without the date range,
// because the predicate can admit rows created outside it.
func (c ListCriteria) Unbounded() bool {
	return c.Status == AssignmentStatusActive || c.Status == AssignmentStatusNotFinished
}

// Matches evaluates the status predicate against one summary.
func (c ListCriteria) Matches(item dto.AssignmentSummaryResponse) bool {
	inRange := c.Range.Contains(item.CreatedAt)

	switch c.Status {
	case AssignmentStatusNotFinished:
		return !item.Completed
	case AssignmentStatusCompleted:
		return inRange && item.Completed
	case AssignmentStatusAll:
		return inRange
	default:
		if !item.Completed && inRange {
			return true
		}
		if c.IncludeOverdue && item.Overdue {
			return true
		}
		return !c.HideCompleted && inRange && item.Completed
	}
}

// Applied echoes the criteria back to the caller.
func (c ListCriteria) Applied() dto.AppliedAssignmentFilters {
	return dto.AppliedAssignmentFilters{
		Status:         c.Status,
		From:           c.Range.From,
		To:             c.Range.To,
		IncludeOverdue: c.IncludeOverdue,
		HideCompleted:  c.HideCompleted,
		Sort:           c.Sort,
	}
}

// filterSummaries keeps matching items and orders them by the sort key. The
// input order is preserved among ties.
func filterSummaries(items []dto.AssignmentSummaryResponse, criteria ListCriteria) []dto.AssignmentSummaryResponse {
	filtered := make([]dto.AssignmentSummaryResponse, 0, len(items))
	for _, item := range items {
		if criteria.Matches(item) {
			filtered = append(filtered, item)
		}
	}

	sort.SliceStable(filtered, summaryLess(filtered, criteria.Sort))
	return filtered
}

func summaryLess(items []dto.AssignmentSummaryResponse, sortKey string) func(i, j int) bool {
	switch sortKey {
	case AssignmentSortAssignedAsc:
		return func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) }
	case AssignmentSortDueAsc:
		return func(i, j int) bool { return dueBefore(items[i].DueAt, items[j].DueAt, false) }
	case AssignmentSortDueDesc:
		return func(i, j int) bool { return dueBefore(items[i].DueAt, items[j].DueAt, true) }
	default:
		return func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) }
	}
}

// dueBefore orders due dates with missing deadlines last in either direction.
func dueBefore(a, b *time.Time, descending bool) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	case descending:
		return a.After(*b)
	default:
		return a.Before(*b)
	}
}

func paginateSummaries(items []dto.AssignmentSummaryResponse, page, pageSize int) []dto.AssignmentSummaryResponse {
	if page < 0 || pageSize <= 0 || page > len(items)/pageSize {
		return []dto.AssignmentSummaryResponse{}
	}

	start := page * pageSize
	if start >= len(items) {
		return []dto.AssignmentSummaryResponse{}
	}

	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}

	return items[start:end]
}
