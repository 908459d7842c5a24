// Package lifecycle holds the pure rules that classify assignments and
// submissions: deadline arithmetic, grading priority, submission status and
// the gate a submission attempt must pass before it is stored.
package lifecycle

import (
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/edunexa-api/internal/models"
)

const day = 24 * time.Hour

// IsOverdue reports whether now is strictly after the assignment deadline.
func IsOverdue(assignment models.Assignment, now time.Time) bool {
	return now.After(assignment.DueDate)
}

// DaysUntilDeadline returns ceil((due - now) / 24h). Negative values mean
// the deadline passed that many days ago; zero means due within the day.
func DaysUntilDeadline(due, now time.Time) int {
	days := math.Ceil(float64(due.Sub(now)) / float64(day))
	if days == 0 {
		// ceil of a small negative fraction yields -0.
		return 0
	}
	return int(days)
}

// FormatDeadline renders the deadline relative to now.
func FormatDeadline(due, now time.Time) string {
	days := DaysUntilDeadline(due, now)
	switch {
	case days < 0:
		return fmt.Sprintf("Overdue by %d day(s)", -days)
	case days == 0:
		return "Due today"
	case days == 1:
		return "Due tomorrow"
	default:
		return fmt.Sprintf("Due in %d day(s)", days)
	}
}

// ValidateAssignment checks the invariants a stored assignment must hold.
func ValidateAssignment(assignment models.Assignment) error {
	if err := ValidateReportable(assignment); err != nil {
		return err
	}
	if assignment.MaxPoints == 0 {
		return &ValidationError{Field: "max_points", Message: "must be greater than zero"}
	}
	return nil
}

// ValidateReportable is the weaker check applied when summarising existing
// assignments: a zero point value is tolerated and reported as 0%, a missing
// due date or a negative point value is not.
func ValidateReportable(assignment models.Assignment) error {
	if assignment.DueDate.IsZero() {
		return &ValidationError{Field: "due_date", Message: "must be a valid instant"}
	}
	if assignment.MaxPoints < 0 || math.IsNaN(assignment.MaxPoints) || math.IsInf(assignment.MaxPoints, 0) {
		return &ValidationError{Field: "max_points", Message: "must not be negative"}
	}
	return nil
}
