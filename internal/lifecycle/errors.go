package lifecycle

import "fmt"

// ValidationError reports malformed input to a lifecycle rule.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Rejection reasons reported by the submission gate.
const (
	ReasonInactive     = "inactive"
	ReasonDeadline     = "deadline_passed"
	ReasonEmpty        = "empty_submission"
	ReasonFileTooLarge = "file_too_large"
	ReasonFileType     = "file_type_not_allowed"
)

// SubmissionRejectedError is returned when a submission attempt fails the gate.
// Message is safe to show to the student as-is.
type SubmissionRejectedError struct {
	Reason  string
	Message string
}

func (e *SubmissionRejectedError) Error() string {
	return e.Message
}
