package ai

import "context"

// FeedbackInput carries what a model needs to draft feedback for a submission.
type FeedbackInput struct {
	AssignmentTitle string
	Instructions    string
	MaxPoints       float64
	SubmissionText  string
	FileName        string
	Grade           *float64
}

// FeedbackSuggestion is the draft returned to the grader. It is never stored
// on the submission until the grader sends it back through grading.
type FeedbackSuggestion struct {
	Feedback       string   `json:"feedback"`
	SuggestedGrade *float64 `json:"suggested_grade,omitempty"`
	Strengths      []string `json:"strengths,omitempty"`
	Improvements   []string `json:"improvements,omitempty"`
	Model          string   `json:"model"`
}

// FeedbackSuggester drafts feedback for a submission.
type FeedbackSuggester interface {
	Suggest(ctx context.Context, input FeedbackInput) (FeedbackSuggestion, error)
}
