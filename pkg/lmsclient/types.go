package lmsclient

import (
	"strings"
	"time"

	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/models"
)

// Assignment is an assignment as serialized by the LMS backend.
type Assignment struct {
	ID               string       `json:"_id"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	Instructions     string       `json:"instructions"`
	CourseID         string       `json:"course_id"`
	CourseTitle      string       `json:"course_title"`
	DueDate          string       `json:"due_date"`
	MaxPoints        float64      `json:"max_points"`
	SubmissionType   string       `json:"submission_type"`
	AllowedFileTypes []string     `json:"allowed_file_types"`
	MaxFileSize      int          `json:"max_file_size"`
	IsActive         bool         `json:"is_active"`
	CreatedBy        string       `json:"created_by"`
	CreatedAt        string       `json:"created_at"`
	UpdatedAt        string       `json:"updated_at"`
	SubmissionCount  int          `json:"submission_count"`
	SubmissionStatus string       `json:"submission_status,omitempty"`
	Submissions      []Submission `json:"submissions,omitempty"`
	Submission       *Submission  `json:"submission,omitempty"`
}

// Submission is a submission as serialized by the LMS backend.
type Submission struct {
	ID           string   `json:"_id"`
	AssignmentID string   `json:"assignment_id"`
	StudentID    string   `json:"student_id"`
	StudentName  string   `json:"student_name,omitempty"`
	CourseID     string   `json:"course_id"`
	TextContent  string   `json:"text_content"`
	FilePath     string   `json:"file_path"`
	FileName     string   `json:"file_name"`
	SubmittedAt  string   `json:"submitted_at"`
	Status       string   `json:"status"`
	Grade        *float64 `json:"grade"`
	Feedback     string   `json:"feedback"`
	GradedAt     string   `json:"graded_at,omitempty"`
	GradedBy     string   `json:"graded_by,omitempty"`
}

// MalformedItem is a list entry that did not match the assignment schema.
type MalformedItem struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// AssignmentList is the decoded result of listing assignments.
type AssignmentList struct {
	Assignments []Assignment
	Malformed   []MalformedItem
}

// CreateAssignmentRequest creates an assignment.
type CreateAssignmentRequest struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	CourseID         string   `json:"course_id"`
	Instructions     string   `json:"instructions,omitempty"`
	DueDate          string   `json:"due_date"`
	MaxPoints        *float64 `json:"max_points,omitempty"`
	SubmissionType   string   `json:"submission_type,omitempty"`
	AllowedFileTypes []string `json:"allowed_file_types,omitempty"`
	MaxFileSize      *int     `json:"max_file_size,omitempty"`
}

// UpdateAssignmentRequest changes the non-nil fields of an assignment.
type UpdateAssignmentRequest struct {
	Title            *string  `json:"title,omitempty"`
	Description      *string  `json:"description,omitempty"`
	Instructions     *string  `json:"instructions,omitempty"`
	DueDate          *string  `json:"due_date,omitempty"`
	MaxPoints        *float64 `json:"max_points,omitempty"`
	SubmissionType   *string  `json:"submission_type,omitempty"`
	AllowedFileTypes []string `json:"allowed_file_types,omitempty"`
	MaxFileSize      *int     `json:"max_file_size,omitempty"`
	IsActive         *bool    `json:"is_active,omitempty"`
}

// SubmitRequest submits an assignment by reference to an uploaded file or text.
type SubmitRequest struct {
	TextContent string `json:"text_content,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	FileName    string `json:"file_name,omitempty"`
}

// GradeRequest grades a submission.
type GradeRequest struct {
	Grade    float64 `json:"grade"`
	Feedback string  `json:"feedback,omitempty"`
}

// Model converts the wire assignment to the domain model. An empty timestamp
// stays zero; one that does not parse fails with a *lifecycle.ValidationError
// naming the field.
func (a Assignment) Model() (models.Assignment, error) {
	var p instantParser
	model := models.Assignment{
		ID:              a.ID,
		Title:           a.Title,
		Description:     a.Description,
		Instructions:    a.Instructions,
		CourseID:        a.CourseID,
		CourseTitle:     a.CourseTitle,
		DueDate:         p.parse("due_date", a.DueDate),
		MaxPoints:       a.MaxPoints,
		SubmissionType:  a.SubmissionType,
		MaxFileSizeMB:   a.MaxFileSize,
		IsActive:        a.IsActive,
		CreatedBy:       a.CreatedBy,
		CreatedAt:       p.parse("created_at", a.CreatedAt),
		UpdatedAt:       p.parse("updated_at", a.UpdatedAt),
		SubmissionCount: a.SubmissionCount,
	}
	if p.err != nil {
		return models.Assignment{}, p.err
	}
	model.SetFileTypes(a.AllowedFileTypes)

	if len(a.Submissions) > 0 {
		model.Submissions = make([]models.Submission, 0, len(a.Submissions))
		for _, wire := range a.Submissions {
			submission, err := wire.Model()
			if err != nil {
				return models.Assignment{}, err
			}
			model.Submissions = append(model.Submissions, submission)
		}
	}
	return model, nil
}

// Model converts the wire submission to the domain model.
func (s Submission) Model() (models.Submission, error) {
	var p instantParser
	model := models.Submission{
		ID:           s.ID,
		AssignmentID: s.AssignmentID,
		StudentID:    s.StudentID,
		CourseID:     s.CourseID,
		TextContent:  s.TextContent,
		FilePath:     s.FilePath,
		FileName:     s.FileName,
		SubmittedAt:  p.parse("submitted_at", s.SubmittedAt),
		Status:       s.Status,
		Grade:        s.Grade,
		Feedback:     s.Feedback,
	}
	gradedAt := p.parse("graded_at", s.GradedAt)
	if p.err != nil {
		return models.Submission{}, p.err
	}
	if !gradedAt.IsZero() {
		model.GradedAt = &gradedAt
	}
	if grader := strings.TrimSpace(s.GradedBy); grader != "" {
		model.GradedBy = &grader
	}
	return model, nil
}

// instantParser keeps the first timestamp error so a conversion can parse
// every field and check once.
type instantParser struct {
	err error
}

func (p *instantParser) parse(field, value string) time.Time {
	if p.err != nil || strings.TrimSpace(value) == "" {
		return time.Time{}
	}
	parsed, err := lifecycle.ParseInstant(field, value)
	if err != nil {
		p.err = err
		return time.Time{}
	}
	return parsed
}
