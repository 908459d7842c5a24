package lifecycle

import (
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/edunexa-api/internal/models"
)

// SubmissionStatus classifies a student's standing on an assignment. A nil
// submission means the student has not submitted yet.
func SubmissionStatus(submission *models.Submission) string {
	switch {
	case submission == nil:
		return models.SubmissionStatusPending
	case submission.Grade != nil:
		return models.SubmissionStatusGraded
	default:
		return models.SubmissionStatusSubmitted
	}
}

var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	http.TimeFormat,
	time.RFC1123Z,
	time.RFC1123,
}

// ParseInstant parses a timestamp as emitted by the LMS backend. Values
// without a zone are taken as UTC. The result is always in UTC.
func ParseInstant(field, value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, &ValidationError{Field: field, Message: "timestamp is empty"}
	}

	for _, layout := range instantLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return parsed.UTC(), nil
		}
	}

	return time.Time{}, &ValidationError{Field: field, Message: "unparsable timestamp " + quote(trimmed)}
}

func quote(value string) string {
	if len(value) > 64 {
		value = value[:64] + "..."
	}
	return `"` + value + `"`
}
