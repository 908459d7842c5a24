package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Course{},
		&models.Enrollment{},
		&models.Assignment{},
		&models.Submission{},
		&models.SubmissionGradeHistory{},
		&models.Notification{},
		&models.ActivityLog{},
	))
	return db
}

type fixture struct {
	mathCourse    models.Course
	historyCourse models.Course
	essay         models.Assignment
	quiz          models.Assignment
	archived      models.Assignment
}

func seed(t *testing.T, db *gorm.DB) fixture {
	t.Helper()
	ctx := context.Background()
	courses := NewCourseRepository(db)
	assignments := NewAssignmentRepository(db)

	f := fixture{
		mathCourse:    models.Course{Title: "Calculus", TeacherID: "teacher-1"},
		historyCourse: models.Course{Title: "World History", TeacherID: "teacher-2"},
	}
	require.NoError(t, courses.Create(ctx, &f.mathCourse))
	require.NoError(t, courses.Create(ctx, &f.historyCourse))
	require.NoError(t, courses.Enroll(ctx, f.mathCourse.ID, "student-1"))
	require.NoError(t, courses.Enroll(ctx, f.mathCourse.ID, "student-1"))

	now := time.Now().UTC()
	f.essay = models.Assignment{Title: "Limits essay", CourseID: f.mathCourse.ID, DueDate: now.Add(48 * time.Hour), MaxPoints: 100, IsActive: true, CreatedBy: "teacher-1", SubmissionType: models.SubmissionTypeText}
	f.quiz = models.Assignment{Title: "Derivatives quiz", CourseID: f.mathCourse.ID, DueDate: now.Add(24 * time.Hour), MaxPoints: 20, IsActive: true, CreatedBy: "teacher-1", SubmissionType: models.SubmissionTypeFile}
	f.archived = models.Assignment{Title: "Renaissance", CourseID: f.historyCourse.ID, DueDate: now.Add(72 * time.Hour), MaxPoints: 50, IsActive: true, CreatedBy: "teacher-2", SubmissionType: models.SubmissionTypeBoth}
	require.NoError(t, assignments.Create(ctx, &f.essay))
	require.NoError(t, assignments.Create(ctx, &f.quiz))
	require.NoError(t, assignments.Create(ctx, &f.archived))

	f.archived.IsActive = false
	require.NoError(t, assignments.Update(ctx, &f.archived))

	return f
}

func TestAssignmentRepositoryScopesAndCounts(t *testing.T) {
	db := setupTestDB(t)
	f := seed(t, db)
	ctx := context.Background()
	assignments := NewAssignmentRepository(db)
	submissions := NewSubmissionRepository(db)

	for _, student := range []string{"student-1", "student-2"} {
		require.NoError(t, submissions.Create(ctx, &models.Submission{
			AssignmentID: f.essay.ID,
			StudentID:    student,
			CourseID:     f.mathCourse.ID,
			TextContent:  "answer",
			SubmittedAt:  time.Now().UTC(),
			Status:       models.SubmissionStatusSubmitted,
		}))
	}

	teacherView, err := assignments.List(ctx, AssignmentFilter{TeacherID: "teacher-1", Sort: "title"})
	require.NoError(t, err)
	require.Len(t, teacherView, 2)
	require.Equal(t, "Derivatives quiz", teacherView[0].Title)
	require.Equal(t, 0, teacherView[0].SubmissionCount)
	require.Equal(t, "Limits essay", teacherView[1].Title)
	require.Equal(t, 2, teacherView[1].SubmissionCount)
	require.Equal(t, "Calculus", teacherView[1].CourseTitle)

	all, err := assignments.List(ctx, AssignmentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	active, err := assignments.List(ctx, AssignmentFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)

	none, err := assignments.List(ctx, AssignmentFilter{CourseIDs: []string{}})
	require.NoError(t, err)
	require.Empty(t, none)

	detail, err := assignments.GetWithSubmissions(ctx, f.essay.ID)
	require.NoError(t, err)
	require.Len(t, detail.Submissions, 2)
	require.Equal(t, 2, detail.SubmissionCount)

	archived, err := assignments.GetByID(ctx, f.archived.ID)
	require.NoError(t, err)
	require.False(t, archived.IsActive)
	require.Equal(t, "World History", archived.CourseTitle)

	_, err = assignments.GetByID(ctx, "missing")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubmissionRepositoryRejectsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	f := seed(t, db)
	ctx := context.Background()
	submissions := NewSubmissionRepository(db)

	first := models.Submission{AssignmentID: f.quiz.ID, StudentID: "student-1", FileName: "q.pdf", SubmittedAt: time.Now().UTC(), Status: models.SubmissionStatusSubmitted}
	require.NoError(t, submissions.Create(ctx, &first))
	require.NotEmpty(t, first.ID)

	second := models.Submission{AssignmentID: f.quiz.ID, StudentID: "student-1", FileName: "q2.pdf", SubmittedAt: time.Now().UTC(), Status: models.SubmissionStatusSubmitted}
	require.ErrorIs(t, submissions.Create(ctx, &second), ErrDuplicateSubmission)

	found, err := submissions.GetByAssignmentAndStudent(ctx, f.quiz.ID, "student-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, found.ID)
	require.Equal(t, "Calculus", found.Assignment.Course.Title)

	own, err := submissions.ListByStudent(ctx, "student-1", []string{f.quiz.ID, f.essay.ID})
	require.NoError(t, err)
	require.Len(t, own, 1)
}

func TestSubmissionRepositorySaveGradeKeepsHistory(t *testing.T) {
	db := setupTestDB(t)
	f := seed(t, db)
	ctx := context.Background()
	submissions := NewSubmissionRepository(db)

	submission := models.Submission{AssignmentID: f.essay.ID, StudentID: "student-1", TextContent: "essay", SubmittedAt: time.Now().UTC(), Status: models.SubmissionStatusSubmitted}
	require.NoError(t, submissions.Create(ctx, &submission))

	grader := "teacher-1"
	for _, grade := range []float64{70, 88} {
		g := grade
		gradedAt := time.Now().UTC()
		submission.Grade = &g
		submission.Feedback = fmt.Sprintf("score %.0f", grade)
		submission.Status = models.SubmissionStatusGraded
		submission.GradedAt = &gradedAt
		submission.GradedBy = &grader
		require.NoError(t, submissions.SaveGrade(ctx, &submission, &models.SubmissionGradeHistory{
			SubmissionID: submission.ID,
			Grade:        g,
			Feedback:     submission.Feedback,
			GradedBy:     grader,
			GradedAt:     gradedAt,
		}))
	}

	stored, err := submissions.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, stored.Status)
	require.NotNil(t, stored.Grade)
	require.Equal(t, 88.0, *stored.Grade)
	require.Equal(t, "score 88", stored.Feedback)

	history, err := submissions.ListHistory(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 70.0, history[0].Grade)
	require.Equal(t, 88.0, history[1].Grade)

	missing := models.Submission{ID: "missing"}
	require.ErrorIs(t, submissions.SaveGrade(ctx, &missing, nil), gorm.ErrRecordNotFound)
}

func TestCourseRepositoryEnrollment(t *testing.T) {
	db := setupTestDB(t)
	f := seed(t, db)
	ctx := context.Background()
	courses := NewCourseRepository(db)

	enrolled, err := courses.IsEnrolled(ctx, f.mathCourse.ID, "student-1")
	require.NoError(t, err)
	require.True(t, enrolled)

	enrolled, err = courses.IsEnrolled(ctx, f.historyCourse.ID, "student-1")
	require.NoError(t, err)
	require.False(t, enrolled)

	ids, err := courses.EnrolledCourseIDs(ctx, "student-1")
	require.NoError(t, err)
	require.Equal(t, []string{f.mathCourse.ID}, ids)

	ids, err = courses.EnrolledCourseIDs(ctx, "nobody")
	require.NoError(t, err)
	require.NotNil(t, ids)
	require.Empty(t, ids)

	students, err := courses.ListEnrolledStudentIDs(ctx, f.mathCourse.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"student-1"}, students)
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(db)

	first := models.Notification{UserID: "student-1", Type: models.NotificationTypeInfo, Message: "one"}
	second := models.Notification{UserID: "student-1", Type: models.NotificationTypeSuccess, Message: "two"}
	other := models.Notification{UserID: "student-2", Type: models.NotificationTypeInfo, Message: "other"}
	require.NoError(t, repo.Create(ctx, &first))
	require.NoError(t, repo.Create(ctx, &second))
	require.NoError(t, repo.Create(ctx, &other))

	updated, err := repo.MarkRead(ctx, first.ID, "student-1")
	require.NoError(t, err)
	require.True(t, updated.Read)

	_, err = repo.MarkRead(ctx, other.ID, "student-1")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	unread, err := repo.ListByUser(ctx, "student-1", true, 0, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	require.Equal(t, "two", unread[0].Message)
}

func TestActivityLogRepositoryFilters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewActivityLogRepository(db)

	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: "teacher-1", ActorRole: "teacher", Action: "assignment.created", EntityType: "assignment", EntityID: "a-1"}))
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: "teacher-1", ActorRole: "teacher", Action: "submission.graded", EntityType: "submission", EntityID: "s-1"}))

	entries, err := repo.List(ctx, ActivityLogFilter{EntityType: "submission"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "s-1", entries[0].EntityID)

	entries, err = repo.List(ctx, ActivityLogFilter{ActorID: "teacher-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
