package service

import (
	"github.com/google/uuid"

	"github.com/noah-isme/gema-homework-api/internal/dto"
)

// countAssignments derives the named counters from the all-time and in-range
// summaries of one student. Active is a union keyed by assignment id because an
// item can be unfinished in range and overdue at once.
func countAssignments(all, ranged []dto.AssignmentSummaryResponse, includeOverdue bool) dto.AssignmentCountsResponse {
	var counts dto.AssignmentCountsResponse
	active := make(map[uuid.UUID]struct{})

	for _, item := range all {
		if !item.Completed {
			counts.NotFinished++
		}
		if item.Overdue {
			counts.Overdue++
			if includeOverdue {
				active[item.ID] = struct{}{}
			}
		}
	}

	for _, item := range ranged {
		if item.Completed {
			counts.Completed++
		} else {
			active[item.ID] = struct{}{}
		}
	}

	counts.All = int64(len(ranged))
	counts.Active = int64(len(active))
	return counts
}
