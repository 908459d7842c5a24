package statistics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// WriteCSV renders the analytics report: a summary block followed by the
// per-assignment performance table.
func WriteCSV(w io.Writer, report Report) error {
	writer := csv.NewWriter(w)

	rows := [][]string{
		{"Assignment Analytics Report"},
		{"Generated:", report.GeneratedAt.UTC().Format(time.RFC3339)},
		{""},
		{"Summary Statistics"},
		{"Total Assignments", strconv.Itoa(report.TotalAssignments)},
		{"Pending Submissions", strconv.Itoa(report.PendingSubmissions)},
		{"Graded Submissions", strconv.Itoa(report.GradedSubmissions)},
		{"Completion Rate", fmt.Sprintf("%.1f%%", report.CompletionRate)},
		{"Average Grade", fmt.Sprintf("%.2f", report.AverageGrade)},
		{""},
		{"Assignment Performance"},
		{"Assignment", "Course", "Submissions", "Graded", "Avg Grade", "Grade %", "Due Date"},
	}
	for _, perf := range report.AssignmentPerformance {
		rows = append(rows, []string{
			perf.AssignmentTitle,
			perf.CourseTitle,
			strconv.Itoa(perf.TotalSubmissions),
			strconv.Itoa(perf.GradedSubmissions),
			fmt.Sprintf("%.2f", perf.AverageGrade),
			fmt.Sprintf("%.1f%%", perf.GradePercentage),
			perf.DueDate.UTC().Format("Jan 2, 2006"),
		})
	}
	if len(report.Skipped) > 0 {
		rows = append(rows, []string{""}, []string{"Skipped Assignments"}, []string{"Assignment", "Reason"})
		for _, skipped := range report.Skipped {
			title := skipped.AssignmentTitle
			if title == "" {
				title = skipped.AssignmentID
			}
			rows = append(rows, []string{title, skipped.Reason})
		}
	}

	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write statistics csv: %w", err)
	}
	return nil
}

// CSVFilename returns the download name for a report generated at t.
func CSVFilename(t time.Time) string {
	return fmt.Sprintf("assignment-analytics-%s.csv", t.UTC().Format("2006-01-02"))
}
