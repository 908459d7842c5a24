package lifecycle

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/noah-isme/edunexa-api/internal/models"
)

// Attempt describes a prospective submission before it is stored.
type Attempt struct {
	StudentID   string
	TextContent string
	FileName    string
	FilePath    string
	// FileSize is the upload size in bytes, zero when no file is attached.
	FileSize int64
}

// HasFile reports whether a file accompanies the attempt.
func (a Attempt) HasFile() bool {
	return strings.TrimSpace(a.FileName) != "" || strings.TrimSpace(a.FilePath) != ""
}

// HasText reports whether the attempt carries non-blank text.
func (a Attempt) HasText() bool {
	return strings.TrimSpace(a.TextContent) != ""
}

// CheckSubmission runs the gate without producing a record. Checks are
// applied in a fixed order and the first failure wins.
func CheckSubmission(assignment models.Assignment, attempt Attempt, now time.Time) error {
	if !assignment.IsActive {
		return &SubmissionRejectedError{Reason: ReasonInactive, Message: "Assignment is no longer active"}
	}
	if IsOverdue(assignment, now) {
		return &SubmissionRejectedError{Reason: ReasonDeadline, Message: "Assignment deadline has passed"}
	}
	if !attempt.HasText() && !attempt.HasFile() {
		return &SubmissionRejectedError{Reason: ReasonEmpty, Message: "Please provide either text content or upload a file"}
	}
	if !attempt.HasFile() {
		return nil
	}

	if assignment.MaxFileSizeMB > 0 {
		limit := int64(assignment.MaxFileSizeMB) * 1024 * 1024
		if attempt.FileSize > limit {
			return &SubmissionRejectedError{
				Reason:  ReasonFileTooLarge,
				Message: fmt.Sprintf("File size exceeds the maximum allowed size of %d MB", assignment.MaxFileSizeMB),
			}
		}
	}

	if assignment.SubmissionType == models.SubmissionTypeText {
		return nil
	}

	allowed := normalizeExtensions(assignment.FileTypes())
	if len(allowed) == 0 {
		return nil
	}
	name := attempt.FileName
	if strings.TrimSpace(name) == "" {
		name = attempt.FilePath
	}
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if _, ok := allowed[ext]; !ok {
		display := ext
		if display == "" {
			display = "(none)"
		}
		return &SubmissionRejectedError{
			Reason:  ReasonFileType,
			Message: fmt.Sprintf("File type %s is not allowed", display),
		}
	}

	return nil
}

// AcceptSubmission runs the gate and, on success, returns the record to store
// in submitted status stamped with now.
func AcceptSubmission(assignment models.Assignment, attempt Attempt, now time.Time) (models.Submission, error) {
	if err := CheckSubmission(assignment, attempt, now); err != nil {
		return models.Submission{}, err
	}

	return models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    attempt.StudentID,
		CourseID:     assignment.CourseID,
		TextContent:  strings.TrimSpace(attempt.TextContent),
		FileName:     strings.TrimSpace(attempt.FileName),
		FilePath:     strings.TrimSpace(attempt.FilePath),
		SubmittedAt:  now.UTC(),
		Status:       models.SubmissionStatusSubmitted,
	}, nil
}

func normalizeExtensions(types []string) map[string]struct{} {
	out := make(map[string]struct{}, len(types))
	for _, t := range types {
		ext := strings.ToLower(strings.TrimSpace(t))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}
