package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

var (
	teacherOne = Actor{ID: "teacher-1", Role: RoleTeacher, Name: "Ada Teacher"}
	teacherTwo = Actor{ID: "teacher-2", Role: RoleTeacher, Name: "Other Teacher"}
	admin      = Actor{ID: "admin-1", Role: RoleAdmin, Name: "Admin"}
	studentOne = Actor{ID: "student-1", Role: RoleStudent, Name: "Sam Student"}
	studentTwo = Actor{ID: "student-2", Role: RoleStudent, Name: "Riley Student"}
)

type testEnv struct {
	db          *gorm.DB
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	courses     repository.CourseRepository
	activity    *memoryActivity
	notifier    *recordingNotifier

	course   models.Course
	essay    models.Assignment
	report   models.Assignment
	closed   models.Assignment
	inactive models.Assignment
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&models.Course{},
		&models.Enrollment{},
		&models.Assignment{},
		&models.Submission{},
		&models.SubmissionGradeHistory{},
		&models.Notification{},
		&models.ActivityLog{},
	))

	env := &testEnv{
		db:          db,
		assignments: repository.NewAssignmentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		courses:     repository.NewCourseRepository(db),
		activity:    &memoryActivity{},
		notifier:    &recordingNotifier{},
	}

	ctx := context.Background()
	env.course = models.Course{Title: "Calculus", TeacherID: teacherOne.ID}
	require.NoError(t, env.courses.Create(ctx, &env.course))
	require.NoError(t, env.courses.Enroll(ctx, env.course.ID, studentOne.ID))
	require.NoError(t, env.courses.Enroll(ctx, env.course.ID, studentTwo.ID))

	now := time.Now().UTC()
	env.essay = models.Assignment{
		Title: "Limits essay", Description: "Explain limits in your own words.", CourseID: env.course.ID,
		DueDate: now.Add(48 * time.Hour), MaxPoints: 100, SubmissionType: models.SubmissionTypeText,
		MaxFileSizeMB: 10, IsActive: true, CreatedBy: teacherOne.ID, CreatedAt: now.Add(-3 * time.Hour),
	}
	env.report = models.Assignment{
		Title: "Lab report", Description: "Upload the lab report as a PDF.", CourseID: env.course.ID,
		DueDate: now.Add(24 * time.Hour), MaxPoints: 20, SubmissionType: models.SubmissionTypeFile,
		MaxFileSizeMB: 1, IsActive: true, CreatedBy: teacherOne.ID, CreatedAt: now.Add(-2 * time.Hour),
	}
	env.report.SetFileTypes([]string{".pdf"})
	env.closed = models.Assignment{
		Title: "Past quiz", Description: "This quiz closed an hour ago.", CourseID: env.course.ID,
		DueDate: now.Add(-time.Hour), MaxPoints: 10, SubmissionType: models.SubmissionTypeBoth,
		MaxFileSizeMB: 10, IsActive: true, CreatedBy: teacherOne.ID, CreatedAt: now.Add(-time.Hour),
	}
	env.inactive = models.Assignment{
		Title: "Withdrawn", Description: "This assignment was withdrawn.", CourseID: env.course.ID,
		DueDate: now.Add(72 * time.Hour), MaxPoints: 10, SubmissionType: models.SubmissionTypeText,
		MaxFileSizeMB: 10, IsActive: true, CreatedBy: teacherOne.ID, CreatedAt: now,
	}
	for _, assignment := range []*models.Assignment{&env.essay, &env.report, &env.closed, &env.inactive} {
		require.NoError(t, env.assignments.Create(ctx, assignment))
	}
	env.inactive.IsActive = false
	require.NoError(t, env.assignments.Update(ctx, &env.inactive))

	return env
}

func (e *testEnv) submit(t *testing.T, assignment models.Assignment, student Actor, text string) models.Submission {
	t.Helper()
	submission := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    student.ID,
		CourseID:     assignment.CourseID,
		TextContent:  text,
		SubmittedAt:  time.Now().UTC(),
		Status:       models.SubmissionStatusSubmitted,
	}
	require.NoError(t, e.submissions.Create(context.Background(), &submission))
	return submission
}

type memoryActivity struct {
	mu      sync.Mutex
	entries []ActivityEntry
}

func (m *memoryActivity) Record(_ context.Context, entry ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryActivity) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

type recordingNotifier struct {
	mu       sync.Mutex
	payloads []dto.NotificationCreateRequest
	err      error
}

func (r *recordingNotifier) Publish(_ context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return dto.NotificationResponse{}, r.err
	}
	r.payloads = append(r.payloads, payload)
	return dto.NotificationResponse{UserID: payload.UserID, Type: payload.Type, Title: payload.Title, Message: payload.Message}, nil
}

func (r *recordingNotifier) sent() []dto.NotificationCreateRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dto.NotificationCreateRequest(nil), r.payloads...)
}

func floatPtr(v float64) *float64 { return &v }

func stringPtr(v string) *string { return &v }
