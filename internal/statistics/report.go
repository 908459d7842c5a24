package statistics

import (
	"fmt"
	"time"

	"github.com/noah-isme/edunexa-api/internal/lifecycle"
)

// WorkloadItem is an assignment that still has ungraded submissions.
type WorkloadItem struct {
	AssignmentID       string             `json:"assignment_id"`
	AssignmentTitle    string             `json:"assignment_title"`
	CourseTitle        string             `json:"course_title"`
	DueDate            time.Time          `json:"due_date"`
	DaysUntilDeadline  int                `json:"days_until_deadline"`
	PendingSubmissions int                `json:"pending_submissions"`
	TotalSubmissions   int                `json:"total_submissions"`
	Priority           lifecycle.Priority `json:"priority"`
}

// Performance summarises the grades of one assignment.
type Performance struct {
	AssignmentID      string    `json:"assignment_id"`
	AssignmentTitle   string    `json:"assignment_title"`
	CourseTitle       string    `json:"course_title"`
	MaxPoints         float64   `json:"max_points"`
	TotalSubmissions  int       `json:"total_submissions"`
	GradedSubmissions int       `json:"graded_submissions"`
	SubmissionRate    float64   `json:"submission_rate"`
	AverageGrade      float64   `json:"average_grade"`
	GradePercentage   float64   `json:"grade_percentage"`
	DueDate           time.Time `json:"due_date"`
	CreatedAt         time.Time `json:"created_at"`
}

// FetchFailure records an assignment whose details could not be loaded. Its
// submissions are left out of the graded and grade figures.
type FetchFailure struct {
	AssignmentID    string `json:"assignment_id"`
	AssignmentTitle string `json:"assignment_title"`
	Reason          string `json:"reason"`
	Err             error  `json:"-"`
}

func (f FetchFailure) Error() string {
	return fmt.Sprintf("fetch assignment %s: %s", f.AssignmentID, f.Reason)
}

func (f FetchFailure) Unwrap() error {
	return f.Err
}

// Report is the folded statistics for a set of assignments.
type Report struct {
	TotalAssignments      int            `json:"total_assignments"`
	TotalSubmissions      int            `json:"total_submissions"`
	PendingSubmissions    int            `json:"pending_submissions"`
	GradedSubmissions     int            `json:"graded_submissions"`
	CompletionRate        float64        `json:"completion_rate"`
	AverageGrade          float64        `json:"average_grade"`
	GradingWorkload       []WorkloadItem `json:"grading_workload"`
	AssignmentPerformance []Performance  `json:"assignment_performance"`
	Skipped               []FetchFailure `json:"skipped,omitempty"`
	Partial               bool           `json:"partial"`
	GeneratedAt           time.Time      `json:"generated_at"`
}

// Reject adds assignments that could not be read at all. They count toward
// TotalAssignments and are listed in Skipped.
func (r *Report) Reject(failures ...FetchFailure) {
	if len(failures) == 0 {
		return
	}
	r.TotalAssignments += len(failures)
	r.Skipped = append(r.Skipped, failures...)
	r.Partial = true
}
