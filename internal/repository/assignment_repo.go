package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/models"
)

// AssignmentFilter narrows assignment listings. Empty fields do not filter.
type AssignmentFilter struct {
	// CourseIDs restricts results to these courses. A non-nil empty slice matches nothing.
	CourseIDs  []string
	CourseID   string
	TeacherID  string
	ActiveOnly bool
	Search     string
	Sort       string
}

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, error)
	GetByID(ctx context.Context, id string) (models.Assignment, error)
	GetWithSubmissions(ctx context.Context, id string) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Assignment{}).Preload("Course")
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, error) {
	if filter.CourseIDs != nil && len(filter.CourseIDs) == 0 {
		return []models.Assignment{}, nil
	}

	query := r.baseQuery(ctx)
	if len(filter.CourseIDs) > 0 {
		query = query.Where("assignments.course_id IN ?", filter.CourseIDs)
	}
	if filter.CourseID != "" {
		query = query.Where("assignments.course_id = ?", filter.CourseID)
	}
	if filter.TeacherID != "" {
		query = query.Where("assignments.course_id IN (?)",
			r.db.Model(&models.Course{}).Select("id").Where("teacher_id = ?", filter.TeacherID))
	}
	if filter.ActiveOnly {
		query = query.Where("assignments.is_active = ?", true)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("LOWER(assignments.title) LIKE ? OR LOWER(assignments.description) LIKE ?", pattern, pattern)
	}

	var assignments []models.Assignment
	if err := query.Order(normalizeAssignmentSort(filter.Sort)).Find(&assignments).Error; err != nil {
		return nil, err
	}

	if err := r.attachSubmissionCounts(ctx, assignments); err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.baseQuery(ctx).Where("assignments.id = ?", id).First(&assignment).Error; err != nil {
		return models.Assignment{}, err
	}

	list := []models.Assignment{assignment}
	if err := r.attachSubmissionCounts(ctx, list); err != nil {
		return models.Assignment{}, err
	}

	return list[0], nil
}

func (r *assignmentRepository) GetWithSubmissions(ctx context.Context, id string) (models.Assignment, error) {
	var assignment models.Assignment
	err := r.baseQuery(ctx).
		Preload("Submissions", func(db *gorm.DB) *gorm.DB {
			return db.Order("submitted_at ASC")
		}).
		Where("assignments.id = ?", id).
		First(&assignment).Error
	if err != nil {
		return models.Assignment{}, err
	}

	assignment.SubmissionCount = len(assignment.Submissions)
	assignment.CourseTitle = assignment.Course.Title
	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Omit("Course", "Submissions").Create(assignment).Error
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Omit("Course", "Submissions").Save(assignment).Error
}

type submissionCountRow struct {
	AssignmentID string
	Total        int
}

func (r *assignmentRepository) attachSubmissionCounts(ctx context.Context, assignments []models.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.ID)
	}

	var rows []submissionCountRow
	if err := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Select("assignment_id, COUNT(*) AS total").
		Where("assignment_id IN ?", ids).
		Group("assignment_id").
		Scan(&rows).Error; err != nil {
		return err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.AssignmentID] = row.Total
	}
	for i := range assignments {
		assignments[i].SubmissionCount = counts[assignments[i].ID]
		assignments[i].CourseTitle = assignments[i].Course.Title
	}
	return nil
}

func normalizeAssignmentSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "due_date", "due_date:asc":
		return "assignments.due_date ASC"
	case "-due_date", "due_date:desc":
		return "assignments.due_date DESC"
	case "title", "title:asc":
		return "assignments.title ASC"
	case "-title", "title:desc":
		return "assignments.title DESC"
	case "created_at", "created_at:asc":
		return "assignments.created_at ASC"
	default:
		return "assignments.created_at DESC"
	}
}
