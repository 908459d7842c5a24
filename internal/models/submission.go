package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	// SubmissionStatusPending is reported for a student who has not submitted yet. It is never stored.
	SubmissionStatusPending = "pending"
	// SubmissionStatusSubmitted indicates the submission was accepted but not graded.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates the submission carries a grade.
	SubmissionStatusGraded = "graded"
)

// Submission is a student's response to an assignment.
type Submission struct {
	ID           string                   `gorm:"primaryKey;size:36" json:"id"`
	AssignmentID string                   `gorm:"size:36;not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID    string                   `gorm:"size:64;not null;uniqueIndex:idx_submission_assignment_student" json:"student_id"`
	CourseID     string                   `gorm:"size:36;index" json:"course_id"`
	TextContent  string                   `gorm:"type:text" json:"text_content"`
	FileName     string                   `gorm:"size:255" json:"file_name"`
	FilePath     string                   `gorm:"size:512" json:"file_path"`
	SubmittedAt  time.Time                `gorm:"not null" json:"submitted_at"`
	Status       string                   `gorm:"size:32;not null;index" json:"status"`
	Grade        *float64                 `json:"grade"`
	Feedback     string                   `gorm:"type:text" json:"feedback"`
	GradedAt     *time.Time               `json:"graded_at"`
	GradedBy     *string                  `gorm:"size:64" json:"graded_by"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
	Assignment   Assignment               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	History      []SubmissionGradeHistory `json:"-"`
}

// BeforeCreate assigns a UUID primary key when none was supplied.
func (s *Submission) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsGraded reports whether the submission has a grade.
func (s Submission) IsGraded() bool {
	return s.Grade != nil
}

// SubmissionGradeHistory keeps every grade ever assigned to a submission.
type SubmissionGradeHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID string    `gorm:"size:36;index;not null" json:"submission_id"`
	Grade        float64   `gorm:"not null" json:"grade"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	GradedBy     string    `gorm:"size:64;not null" json:"graded_by"`
	GradedAt     time.Time `gorm:"not null" json:"graded_at"`
}
