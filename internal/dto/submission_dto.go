package dto

import (
	"time"

	"github.com/noah-isme/edunexa-api/internal/models"
)

// SubmissionCreateRequest carries the text part of a submission. Files arrive
// either as a multipart field next to it or as a reference to an already
// uploaded file. Only multipart files are size checked; a reference is
// checked by its file name.
type SubmissionCreateRequest struct {
	TextContent string `json:"text_content" form:"text_content" validate:"max=50000"`
	FileName    string `json:"file_name" form:"file_name" validate:"omitempty,max=255"`
	FilePath    string `json:"file_path" form:"file_path" validate:"omitempty,url,max=512"`
}

// GradeRequest grades or re-grades one submission.
type GradeRequest struct {
	Grade    *float64 `json:"grade" validate:"required,gte=0"`
	Feedback string   `json:"feedback" validate:"max=2000"`
}

// BulkGradeItem is one entry of a bulk grading request.
type BulkGradeItem struct {
	SubmissionID string   `json:"submission_id" validate:"required,max=64"`
	Grade        *float64 `json:"grade" validate:"required,gte=0"`
	Feedback     string   `json:"feedback" validate:"max=2000"`
}

// BulkGradeRequest grades several submissions at once.
type BulkGradeRequest struct {
	Grades []BulkGradeItem `json:"grades" validate:"required,min=1,max=200,dive"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID           string                           `json:"id"`
	AssignmentID string                           `json:"assignment_id"`
	StudentID    string                           `json:"student_id"`
	CourseID     string                           `json:"course_id,omitempty"`
	TextContent  string                           `json:"text_content,omitempty"`
	FileName     string                           `json:"file_name,omitempty"`
	FilePath     string                           `json:"file_path,omitempty"`
	SubmittedAt  time.Time                        `json:"submitted_at"`
	Status       string                           `json:"status"`
	Grade        *float64                         `json:"grade"`
	Feedback     string                           `json:"feedback"`
	GradedBy     *string                          `json:"graded_by"`
	GradedAt     *time.Time                       `json:"graded_at"`
	History      []SubmissionGradeHistoryResponse `json:"history,omitempty"`
	Assignment   *AssignmentLite                  `json:"assignment,omitempty"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	DueDate   time.Time `json:"due_date"`
	MaxPoints float64   `json:"max_points"`
}

// SubmissionGradeHistoryResponse serializes grading history entries.
type SubmissionGradeHistoryResponse struct {
	Grade    float64   `json:"grade"`
	Feedback string    `json:"feedback"`
	GradedBy string    `json:"graded_by"`
	GradedAt time.Time `json:"graded_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		StudentID:    model.StudentID,
		CourseID:     model.CourseID,
		TextContent:  model.TextContent,
		FileName:     model.FileName,
		FilePath:     model.FilePath,
		SubmittedAt:  model.SubmittedAt,
		Status:       model.Status,
		Grade:        model.Grade,
		Feedback:     model.Feedback,
		GradedBy:     model.GradedBy,
		GradedAt:     model.GradedAt,
	}

	if model.Assignment.ID != "" {
		response.Assignment = &AssignmentLite{
			ID:        model.Assignment.ID,
			Title:     model.Assignment.Title,
			DueDate:   model.Assignment.DueDate,
			MaxPoints: model.Assignment.MaxPoints,
		}
	}

	if len(model.History) > 0 {
		response.History = NewGradeHistoryResponseSlice(model.History)
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(items []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, submission := range items {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}

// NewGradeHistoryResponseSlice converts history rows into DTOs.
func NewGradeHistoryResponseSlice(items []models.SubmissionGradeHistory) []SubmissionGradeHistoryResponse {
	history := make([]SubmissionGradeHistoryResponse, 0, len(items))
	for _, entry := range items {
		history = append(history, SubmissionGradeHistoryResponse{
			Grade:    entry.Grade,
			Feedback: entry.Feedback,
			GradedBy: entry.GradedBy,
			GradedAt: entry.GradedAt,
		})
	}
	return history
}

// BulkGradeResponse lists the graded submissions in request order.
type BulkGradeResponse struct {
	Graded []SubmissionResponse `json:"graded"`
	Count  int                  `json:"count"`
}
