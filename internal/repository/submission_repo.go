package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/models"
)

// ErrDuplicateSubmission is returned when a student already submitted for an assignment.
var ErrDuplicateSubmission = errors.New("submission already exists")

// SubmissionFilter narrows submission queries.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
	Status       string
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id string) (models.Submission, error)
	GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (models.Submission, error)
	ListByStudent(ctx context.Context, studentID string, assignmentIDs []string) ([]models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	SaveGrade(ctx context.Context, submission *models.Submission, history *models.SubmissionGradeHistory) error
	ListHistory(ctx context.Context, submissionID string) ([]models.SubmissionGradeHistory, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Assignment.Course")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != "" {
		query = query.Where("assignment_id = ?", filter.AssignmentID)
	}
	if filter.StudentID != "" {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var submissions []models.Submission
	if err := query.Order("submitted_at ASC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).Where("submissions.id = ?", id).First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assignment_id = ?", assignmentID).
		Where("student_id = ?", studentID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByStudent(ctx context.Context, studentID string, assignmentIDs []string) ([]models.Submission, error) {
	if len(assignmentIDs) == 0 {
		return []models.Submission{}, nil
	}

	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Where("assignment_id IN ?", assignmentIDs).
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	err := r.db.WithContext(ctx).Omit("Assignment", "History").Create(submission).Error
	if isUniqueViolation(err) {
		return ErrDuplicateSubmission
	}
	return err
}

// SaveGrade writes the graded submission and its history entry atomically.
func (r *submissionRepository) SaveGrade(ctx context.Context, submission *models.Submission, history *models.SubmissionGradeHistory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Submission{}).
			Where("id = ?", submission.ID).
			Updates(map[string]interface{}{
				"grade":     submission.Grade,
				"feedback":  submission.Feedback,
				"status":    submission.Status,
				"graded_at": submission.GradedAt,
				"graded_by": submission.GradedBy,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if history == nil {
			return nil
		}
		return tx.Create(history).Error
	})
}

func (r *submissionRepository) ListHistory(ctx context.Context, submissionID string) ([]models.SubmissionGradeHistory, error) {
	var history []models.SubmissionGradeHistory
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("graded_at ASC, id ASC").
		Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
