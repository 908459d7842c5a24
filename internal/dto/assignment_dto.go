package dto

import (
	"time"

	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/models"
)

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	Title            string   `json:"title" validate:"required,min=3,max=200"`
	Description      string   `json:"description" validate:"required,min=10,max=1000"`
	Instructions     string   `json:"instructions" validate:"max=5000"`
	CourseID         string   `json:"course_id" validate:"required,max=64"`
	DueDate          string   `json:"due_date" validate:"required"`
	MaxPoints        *float64 `json:"max_points" validate:"omitempty,gte=1,lte=1000"`
	SubmissionType   string   `json:"submission_type" validate:"omitempty,oneof=file text both"`
	AllowedFileTypes []string `json:"allowed_file_types" validate:"omitempty,max=20,dive,min=1,max=16"`
	MaxFileSize      *int     `json:"max_file_size" validate:"omitempty,gte=1,lte=100"`
}

// AssignmentUpdateRequest is a partial update. Setting is_active to false is
// the soft delete.
type AssignmentUpdateRequest struct {
	Title            *string   `json:"title" validate:"omitempty,min=3,max=200"`
	Description      *string   `json:"description" validate:"omitempty,min=10,max=1000"`
	Instructions     *string   `json:"instructions" validate:"omitempty,max=5000"`
	DueDate          *string   `json:"due_date"`
	MaxPoints        *float64  `json:"max_points" validate:"omitempty,gte=1,lte=1000"`
	SubmissionType   *string   `json:"submission_type" validate:"omitempty,oneof=file text both"`
	AllowedFileTypes *[]string `json:"allowed_file_types" validate:"omitempty,max=20,dive,min=1,max=16"`
	MaxFileSize      *int      `json:"max_file_size" validate:"omitempty,gte=1,lte=100"`
	IsActive         *bool     `json:"is_active"`
}

// AssignmentListQuery captures the list filters accepted on the query string.
type AssignmentListQuery struct {
	CourseID string `query:"course_id" validate:"omitempty,max=64"`
	Pending  bool   `query:"pending"`
	Search   string `query:"search" validate:"omitempty,max=100"`
	Sort     string `query:"sort" validate:"omitempty,oneof=due_date -due_date title -title created_at -created_at"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID                string               `json:"id"`
	Title             string               `json:"title"`
	Description       string               `json:"description"`
	Instructions      string               `json:"instructions"`
	CourseID          string               `json:"course_id"`
	CourseTitle       string               `json:"course_title,omitempty"`
	DueDate           time.Time            `json:"due_date"`
	MaxPoints         float64              `json:"max_points"`
	SubmissionType    string               `json:"submission_type"`
	AllowedFileTypes  []string             `json:"allowed_file_types"`
	MaxFileSize       int                  `json:"max_file_size"`
	IsActive          bool                 `json:"is_active"`
	CreatedBy         string               `json:"created_by"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	SubmissionCount   int                  `json:"submission_count"`
	DaysUntilDeadline int                  `json:"days_until_deadline"`
	Deadline          string               `json:"deadline"`
	IsOverdue         bool                 `json:"is_overdue"`
	Priority          lifecycle.Priority   `json:"priority,omitempty"`
	SubmissionStatus  string               `json:"submission_status,omitempty"`
	Submission        *SubmissionResponse  `json:"submission,omitempty"`
	Submissions       []SubmissionResponse `json:"submissions,omitempty"`
}

// NewAssignmentResponse converts a model into a DTO, deriving the deadline
// fields relative to now.
func NewAssignmentResponse(model models.Assignment, now time.Time) AssignmentResponse {
	fileTypes := model.FileTypes()
	if fileTypes == nil {
		fileTypes = []string{}
	}

	return AssignmentResponse{
		ID:                model.ID,
		Title:             model.Title,
		Description:       model.Description,
		Instructions:      model.Instructions,
		CourseID:          model.CourseID,
		CourseTitle:       model.CourseTitle,
		DueDate:           model.DueDate,
		MaxPoints:         model.MaxPoints,
		SubmissionType:    model.SubmissionType,
		AllowedFileTypes:  fileTypes,
		MaxFileSize:       model.MaxFileSizeMB,
		IsActive:          model.IsActive,
		CreatedBy:         model.CreatedBy,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
		SubmissionCount:   model.SubmissionCount,
		DaysUntilDeadline: lifecycle.DaysUntilDeadline(model.DueDate, now),
		Deadline:          lifecycle.FormatDeadline(model.DueDate, now),
		IsOverdue:         lifecycle.IsOverdue(model, now),
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment, now time.Time) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment, now))
	}

	return responses
}

// AssignmentExportStatistics summarises an exported assignment.
type AssignmentExportStatistics struct {
	TotalSubmissions  int     `json:"total_submissions"`
	GradedSubmissions int     `json:"graded_submissions"`
	AverageGrade      float64 `json:"average_grade"`
	SubmissionRate    float64 `json:"submission_rate"`
	EnrolledStudents  int     `json:"enrolled_students"`
}

// AssignmentExportResponse bundles an assignment with every submission.
type AssignmentExportResponse struct {
	Assignment  AssignmentResponse         `json:"assignment"`
	Submissions []SubmissionResponse       `json:"submissions"`
	Statistics  AssignmentExportStatistics `json:"statistics"`
	ExportedAt  time.Time                  `json:"exported_at"`
}
