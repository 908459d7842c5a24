package lifecycle

import (
	"sort"
	"time"

	"github.com/noah-isme/edunexa-api/internal/models"
)

// Priority is the grading urgency tier of an assignment.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight orders priorities for sorting, higher is more urgent.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// PriorityFor derives the tier from the days left and the number of
// ungraded submissions. An overdue assignment is high regardless of pending.
func PriorityFor(daysUntilDeadline, pending int) Priority {
	switch {
	case daysUntilDeadline < 0:
		return PriorityHigh
	case daysUntilDeadline <= 3 && pending > 0:
		return PriorityHigh
	case daysUntilDeadline <= 7 && pending > 0:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// AssignmentPriority computes the tier of an assignment from its submission
// count and the submissions fetched for it.
func AssignmentPriority(assignment models.Assignment, submissions []models.Submission, now time.Time) Priority {
	pending := assignment.SubmissionCount - GradedCount(submissions)
	return PriorityFor(DaysUntilDeadline(assignment.DueDate, now), pending)
}

// GradedCount counts submissions in graded status.
func GradedCount(submissions []models.Submission) int {
	graded := 0
	for _, submission := range submissions {
		if submission.Status == models.SubmissionStatusGraded {
			graded++
		}
	}
	return graded
}

// SortByPriority sorts items by descending priority weight, keeping the input
// order among items of equal priority.
func SortByPriority[T any](items []T, priorityOf func(T) Priority) {
	sort.SliceStable(items, func(i, j int) bool {
		return priorityOf(items[i]).Weight() > priorityOf(items[j]).Weight()
	})
}
