package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Submission modes accepted by an assignment.
const (
	SubmissionTypeFile = "file"
	SubmissionTypeText = "text"
	SubmissionTypeBoth = "both"
)

// Defaults applied when an assignment is created without explicit limits.
const (
	DefaultMaxPoints     = 100
	DefaultMaxFileSizeMB = 10
)

// Assignment is a unit of coursework with a deadline and a grading scale.
type Assignment struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	Title            string         `gorm:"size:200;not null" json:"title"`
	Description      string         `gorm:"type:text" json:"description"`
	Instructions     string         `gorm:"type:text" json:"instructions"`
	CourseID         string         `gorm:"size:36;index;not null" json:"course_id"`
	Course           Course         `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	DueDate          time.Time      `gorm:"not null;index" json:"due_date"`
	MaxPoints        float64        `gorm:"not null;default:100" json:"max_points"`
	SubmissionType   string         `gorm:"size:16;not null;default:file" json:"submission_type"`
	AllowedFileTypes datatypes.JSON `gorm:"type:json" json:"allowed_file_types"`
	MaxFileSizeMB    int            `gorm:"not null;default:10" json:"max_file_size"`
	IsActive         bool           `gorm:"not null;default:true;index" json:"is_active"`
	CreatedBy        string         `gorm:"size:64;not null" json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Submissions      []Submission   `json:"-"`

	// Derived by the repository, never persisted.
	SubmissionCount int    `gorm:"-" json:"submission_count"`
	CourseTitle     string `gorm:"-" json:"course_title"`
}

// BeforeCreate assigns a UUID primary key when none was supplied.
func (a *Assignment) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(a.ID) == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// FileTypes returns the allow-listed extensions. An empty list means unrestricted.
func (a Assignment) FileTypes() []string {
	if len(a.AllowedFileTypes) == 0 {
		return nil
	}
	var types []string
	if err := json.Unmarshal(a.AllowedFileTypes, &types); err != nil {
		return nil
	}
	return types
}

// SetFileTypes stores the extension allow-list.
func (a *Assignment) SetFileTypes(types []string) {
	if len(types) == 0 {
		a.AllowedFileTypes = datatypes.JSON("[]")
		return
	}
	payload, err := json.Marshal(types)
	if err != nil {
		a.AllowedFileTypes = datatypes.JSON("[]")
		return
	}
	a.AllowedFileTypes = datatypes.JSON(payload)
}

// Course groups assignments under a teacher.
type Course struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	TeacherID string    `gorm:"size:64;index;not null" json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key when none was supplied.
func (c *Course) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CourseID  string    `gorm:"size:36;not null;uniqueIndex:idx_enrollment_course_student" json:"course_id"`
	StudentID string    `gorm:"size:64;not null;uniqueIndex:idx_enrollment_course_student" json:"student_id"`
	CreatedAt time.Time `json:"created_at"`
}
