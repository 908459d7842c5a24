package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/internal/repository"
)

// AssignmentService exposes assignment domain use cases.
type AssignmentService interface {
	List(ctx context.Context, actor Actor, query dto.AssignmentListQuery) ([]dto.AssignmentResponse, error)
	Get(ctx context.Context, actor Actor, id string) (dto.AssignmentResponse, error)
	Create(ctx context.Context, actor Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, actor Actor, id string, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Deactivate(ctx context.Context, actor Actor, id string) (dto.AssignmentResponse, error)
	Export(ctx context.Context, actor Actor, id string) (dto.AssignmentExportResponse, error)
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	courses     repository.CourseRepository
	validator   *validator.Validate
	activity    ActivityRecorder
	strict      *bluemonday.Policy
	rich        *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	courses repository.CourseRepository,
	validate *validator.Validate,
	activity ActivityRecorder,
	logger zerolog.Logger,
) AssignmentService {
	return &assignmentService{
		assignments: assignments,
		submissions: submissions,
		courses:     courses,
		validator:   validate,
		activity:    activity,
		strict:      bluemonday.StrictPolicy(),
		rich:        bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "assignment_service").Logger(),
		now:         time.Now,
	}
}

func (s *assignmentService) List(ctx context.Context, actor Actor, query dto.AssignmentListQuery) ([]dto.AssignmentResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	filter := repository.AssignmentFilter{
		CourseID: strings.TrimSpace(query.CourseID),
		Search:   query.Search,
		Sort:     query.Sort,
	}

	switch {
	case actor.IsStudent():
		courseIDs, err := s.courses.EnrolledCourseIDs(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		filter.CourseIDs = courseIDs
		filter.ActiveOnly = true
	case actor.IsTeacher():
		filter.TeacherID = actor.ID
	case actor.IsAdmin():
	default:
		return nil, ErrForbidden
	}

	assignments, err := s.assignments.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	if query.Pending {
		pending := assignments[:0]
		for _, assignment := range assignments {
			if assignment.SubmissionCount > 0 {
				pending = append(pending, assignment)
			}
		}
		assignments = pending
	}

	now := s.now()
	responses := dto.NewAssignmentResponseSlice(assignments, now)
	if !actor.IsStudent() || len(assignments) == 0 {
		return responses, nil
	}

	ids := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		ids = append(ids, assignment.ID)
	}
	own, err := s.submissions.ListByStudent(ctx, actor.ID, ids)
	if err != nil {
		return nil, err
	}
	byAssignment := make(map[string]models.Submission, len(own))
	for _, submission := range own {
		byAssignment[submission.AssignmentID] = submission
	}

	for i := range responses {
		attachOwnSubmission(&responses[i], byAssignment)
	}

	return responses, nil
}

func (s *assignmentService) Get(ctx context.Context, actor Actor, id string) (dto.AssignmentResponse, error) {
	assignment, err := s.assignments.GetWithSubmissions(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, mapAssignmentError(err)
	}

	course, err := s.authorizeView(ctx, actor, assignment)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	assignment.CourseTitle = course.Title

	now := s.now()
	response := dto.NewAssignmentResponse(assignment, now)

	if actor.IsStudent() {
		byAssignment := map[string]models.Submission{}
		for _, submission := range assignment.Submissions {
			if submission.StudentID == actor.ID {
				byAssignment[assignment.ID] = submission
			}
		}
		attachOwnSubmission(&response, byAssignment)
		return response, nil
	}

	response.Submissions = dto.NewSubmissionResponseSlice(assignment.Submissions)
	response.Priority = lifecycle.AssignmentPriority(assignment, assignment.Submissions, now)
	return response, nil
}

func (s *assignmentService) Create(ctx context.Context, actor Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if !actor.IsStaff() {
		return dto.AssignmentResponse{}, ErrForbidden
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	course, err := s.courses.GetByID(ctx, strings.TrimSpace(payload.CourseID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrCourseNotFound
		}
		return dto.AssignmentResponse{}, err
	}
	if actor.IsTeacher() && course.TeacherID != actor.ID {
		return dto.AssignmentResponse{}, ErrForbidden
	}

	now := s.now()
	dueDate, err := s.parseFutureDueDate(payload.DueDate, now)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		Title:          s.cleanTitle(payload.Title),
		Description:    s.cleanText(payload.Description),
		Instructions:   s.cleanText(payload.Instructions),
		CourseID:       course.ID,
		DueDate:        dueDate,
		MaxPoints:      models.DefaultMaxPoints,
		SubmissionType: models.SubmissionTypeFile,
		MaxFileSizeMB:  models.DefaultMaxFileSizeMB,
		IsActive:       true,
		CreatedBy:      actor.ID,
	}
	if payload.MaxPoints != nil {
		assignment.MaxPoints = *payload.MaxPoints
	}
	if payload.SubmissionType != "" {
		assignment.SubmissionType = payload.SubmissionType
	}
	if payload.MaxFileSize != nil {
		assignment.MaxFileSizeMB = *payload.MaxFileSize
	}
	assignment.SetFileTypes(normalizeFileTypes(payload.AllowedFileTypes))

	if err := checkCleanedLengths(assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}
	if err := lifecycle.ValidateAssignment(assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}
	assignment.CourseTitle = course.Title

	s.logger.Info().Str("assignment_id", assignment.ID).Str("course_id", course.ID).Msg("assignment created")
	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     models.ActionAssignmentCreated,
		EntityType: models.EntityAssignment,
		EntityID:   assignment.ID,
		Metadata:   map[string]interface{}{"course_id": course.ID, "title": assignment.Title},
	})

	return dto.NewAssignmentResponse(assignment, now), nil
}

func (s *assignmentService) Update(ctx context.Context, actor Actor, id string, payload dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, mapAssignmentError(err)
	}
	if err := s.authorizeManage(ctx, actor, assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	now := s.now()
	changed := []string{}

	if payload.Title != nil {
		assignment.Title = s.cleanTitle(*payload.Title)
		changed = append(changed, "title")
	}
	if payload.Description != nil {
		assignment.Description = s.cleanText(*payload.Description)
		changed = append(changed, "description")
	}
	if payload.Instructions != nil {
		assignment.Instructions = s.cleanText(*payload.Instructions)
		changed = append(changed, "instructions")
	}
	if payload.DueDate != nil {
		dueDate, err := s.parseFutureDueDate(*payload.DueDate, now)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		assignment.DueDate = dueDate
		changed = append(changed, "due_date")
	}
	if payload.MaxPoints != nil {
		assignment.MaxPoints = *payload.MaxPoints
		changed = append(changed, "max_points")
	}
	if payload.SubmissionType != nil {
		assignment.SubmissionType = *payload.SubmissionType
		changed = append(changed, "submission_type")
	}
	if payload.AllowedFileTypes != nil {
		assignment.SetFileTypes(normalizeFileTypes(*payload.AllowedFileTypes))
		changed = append(changed, "allowed_file_types")
	}
	if payload.MaxFileSize != nil {
		assignment.MaxFileSizeMB = *payload.MaxFileSize
		changed = append(changed, "max_file_size")
	}
	if payload.IsActive != nil {
		assignment.IsActive = *payload.IsActive
		changed = append(changed, "is_active")
	}

	if len(changed) == 0 {
		return dto.AssignmentResponse{}, &lifecycle.ValidationError{Field: "body", Message: "no valid fields to update"}
	}
	if err := checkCleanedLengths(assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}
	if err := lifecycle.ValidateAssignment(assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.assignments.Update(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	action := models.ActionAssignmentUpdated
	if payload.IsActive != nil && !*payload.IsActive && len(changed) == 1 {
		action = models.ActionAssignmentDeactivated
	}

	s.logger.Info().Str("assignment_id", assignment.ID).Strs("fields", changed).Msg("assignment updated")
	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     action,
		EntityType: models.EntityAssignment,
		EntityID:   assignment.ID,
		Metadata:   map[string]interface{}{"fields": changed},
	})

	return dto.NewAssignmentResponse(assignment, now), nil
}

func (s *assignmentService) Deactivate(ctx context.Context, actor Actor, id string) (dto.AssignmentResponse, error) {
	inactive := false
	return s.Update(ctx, actor, id, dto.AssignmentUpdateRequest{IsActive: &inactive})
}

func (s *assignmentService) Export(ctx context.Context, actor Actor, id string) (dto.AssignmentExportResponse, error) {
	if !actor.IsStaff() {
		return dto.AssignmentExportResponse{}, ErrForbidden
	}

	assignment, err := s.assignments.GetWithSubmissions(ctx, id)
	if err != nil {
		return dto.AssignmentExportResponse{}, mapAssignmentError(err)
	}
	if err := s.authorizeManage(ctx, actor, assignment); err != nil {
		return dto.AssignmentExportResponse{}, err
	}

	students, err := s.courses.ListEnrolledStudentIDs(ctx, assignment.CourseID)
	if err != nil {
		return dto.AssignmentExportResponse{}, err
	}

	now := s.now()
	stats := dto.AssignmentExportStatistics{
		TotalSubmissions:  len(assignment.Submissions),
		GradedSubmissions: lifecycle.GradedCount(assignment.Submissions),
		EnrolledStudents:  len(students),
	}
	var sum float64
	var count int
	for _, submission := range assignment.Submissions {
		if submission.Grade != nil {
			sum += *submission.Grade
			count++
		}
	}
	if count > 0 {
		stats.AverageGrade = sum / float64(count)
	}
	if assignment.MaxPoints > 0 {
		stats.SubmissionRate = float64(stats.TotalSubmissions) / assignment.MaxPoints * 100
	}

	response := dto.NewAssignmentResponse(assignment, now)
	response.Priority = lifecycle.AssignmentPriority(assignment, assignment.Submissions, now)

	s.logger.Info().Str("assignment_id", assignment.ID).Int("submissions", stats.TotalSubmissions).Msg("assignment exported")
	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     models.ActionAssignmentExported,
		EntityType: models.EntityAssignment,
		EntityID:   assignment.ID,
	})

	return dto.AssignmentExportResponse{
		Assignment:  response,
		Submissions: dto.NewSubmissionResponseSlice(assignment.Submissions),
		Statistics:  stats,
		ExportedAt:  now.UTC(),
	}, nil
}

// authorizeView checks that the actor may read the assignment and returns its course.
func (s *assignmentService) authorizeView(ctx context.Context, actor Actor, assignment models.Assignment) (models.Course, error) {
	course, err := s.courses.GetByID(ctx, assignment.CourseID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Course{}, err
	}

	switch {
	case actor.IsAdmin():
		return course, nil
	case actor.IsTeacher():
		if course.TeacherID != actor.ID {
			return models.Course{}, ErrForbidden
		}
		return course, nil
	case actor.IsStudent():
		enrolled, err := s.courses.IsEnrolled(ctx, assignment.CourseID, actor.ID)
		if err != nil {
			return models.Course{}, err
		}
		if !enrolled {
			return models.Course{}, ErrForbidden
		}
		return course, nil
	default:
		return models.Course{}, ErrForbidden
	}
}

func (s *assignmentService) authorizeManage(ctx context.Context, actor Actor, assignment models.Assignment) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsTeacher() {
		return ErrForbidden
	}
	return ownsCourse(ctx, s.courses, actor, assignment.CourseID)
}

func (s *assignmentService) parseFutureDueDate(value string, now time.Time) (time.Time, error) {
	dueDate, err := lifecycle.ParseInstant("due_date", value)
	if err != nil {
		return time.Time{}, err
	}
	if !dueDate.After(now) {
		return time.Time{}, &lifecycle.ValidationError{Field: "due_date", Message: "must be in the future"}
	}
	return dueDate, nil
}

func (s *assignmentService) cleanTitle(value string) string {
	return plainText(s.strict, value)
}

func (s *assignmentService) cleanText(value string) string {
	return strings.TrimSpace(s.rich.Sanitize(value))
}

// checkCleanedLengths applies the length rules to the sanitized values.
func checkCleanedLengths(assignment models.Assignment) error {
	if n := len([]rune(assignment.Title)); n < 3 || n > 200 {
		return &lifecycle.ValidationError{Field: "title", Message: "must be between 3 and 200 characters"}
	}
	if n := len([]rune(assignment.Description)); n < 10 || n > 1000 {
		return &lifecycle.ValidationError{Field: "description", Message: "must be between 10 and 1000 characters"}
	}
	if len([]rune(assignment.Instructions)) > 5000 {
		return &lifecycle.ValidationError{Field: "instructions", Message: "must be at most 5000 characters"}
	}
	return nil
}

func normalizeFileTypes(types []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(types))
	for _, t := range types {
		ext := strings.ToLower(strings.TrimSpace(t))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func attachOwnSubmission(response *dto.AssignmentResponse, byAssignment map[string]models.Submission) {
	submission, ok := byAssignment[response.ID]
	if !ok {
		response.SubmissionStatus = lifecycle.SubmissionStatus(nil)
		return
	}
	response.SubmissionStatus = lifecycle.SubmissionStatus(&submission)
	own := dto.NewSubmissionResponse(submission)
	response.Submission = &own
}

func ownsCourse(ctx context.Context, courses repository.CourseRepository, actor Actor, courseID string) error {
	course, err := courses.GetByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrForbidden
		}
		return err
	}
	if course.TeacherID != actor.ID {
		return ErrForbidden
	}
	return nil
}

func mapAssignmentError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAssignmentNotFound
	}
	return fmt.Errorf("load assignment: %w", err)
}
