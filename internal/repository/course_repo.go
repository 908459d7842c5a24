package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/edunexa-api/internal/models"
)

// CourseRepository answers the ownership and enrollment questions that scope
// assignment access.
type CourseRepository interface {
	GetByID(ctx context.Context, id string) (models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Enroll(ctx context.Context, courseID, studentID string) error
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	EnrolledCourseIDs(ctx context.Context, studentID string) ([]string, error)
	ListEnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error)
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository constructs the course repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) GetByID(ctx context.Context, id string) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&course).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

func (r *courseRepository) Enroll(ctx context.Context, courseID, studentID string) error {
	enrollment := models.Enrollment{CourseID: courseID, StudentID: studentID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&enrollment).Error
}

func (r *courseRepository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND student_id = ?", courseID, studentID).
		Count(&count).Error
	return count > 0, err
}

func (r *courseRepository) EnrolledCourseIDs(ctx context.Context, studentID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ?", studentID).
		Pluck("course_id", &ids).Error
	return ids, err
}

func (r *courseRepository) ListEnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ?", courseID).
		Order("student_id ASC").
		Pluck("student_id", &ids).Error
	return ids, err
}
