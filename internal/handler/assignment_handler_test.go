package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/config"
	"github.com/noah-isme/edunexa-api/internal/database"
	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/handler"
	"github.com/noah-isme/edunexa-api/internal/middleware"
	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/internal/repository"
	"github.com/noah-isme/edunexa-api/internal/router"
	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/statistics"
)

type caller struct {
	id   string
	role string
	name string
}

var (
	teacher  = caller{id: "teacher-1", role: "teacher", name: "Grace Teacher"}
	student  = caller{id: "student-1", role: "student", name: "Alan Student"}
	outsider = caller{id: "student-9", role: "student", name: "Outside Student"}
	admin    = caller{id: "admin-1", role: "admin", name: "Admin"}
	nobody   = caller{}
)

type memoryUploader struct {
	mu    sync.Mutex
	names []string
}

func (m *memoryUploader) Upload(_ context.Context, assignmentID, name string, reader io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, name)
	return "https://files.example.com/" + assignmentID + "/" + name, nil
}

type testAPI struct {
	app         *fiber.App
	db          *gorm.DB
	submissions repository.SubmissionRepository
	course      models.Course
	open        models.Assignment
	closed      models.Assignment
	uploader    *memoryUploader
}

// headerAuth stands in for JWT validation: the caller is taken from test headers.
func headerAuth(c *fiber.Ctx) error {
	id := c.Get("X-Test-User")
	if id == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "authorization header missing"})
	}
	c.Locals("user_id", id)
	c.Locals("user_role", c.Get("X-Test-Role"))
	c.Locals("user_name", c.Get("X-Test-Name"))
	return c.Next()
}

func newTestAPI(t *testing.T, overrides ...func(*router.Dependencies)) *testAPI {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.Nop()

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	courseRepo := repository.NewCourseRepository(db)

	activity := service.NewActivityService(repository.NewActivityLogRepository(db), validate, logger)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), nil, "", nil, validate, logger)
	uploader := &memoryUploader{}

	assignments := service.NewAssignmentService(assignmentRepo, submissionRepo, courseRepo, validate, activity, logger)
	submissions := service.NewSubmissionService(submissionRepo, assignmentRepo, courseRepo, validate, uploader, notifications, activity, logger)
	grading := service.NewGradingService(submissionRepo, validate, activity, notifications, nil, logger)
	stats := service.NewStatisticsService(
		service.NewRepositorySource(assignmentRepo),
		statistics.NewAggregator(statistics.Options{Logger: logger}),
		logger,
	)

	deps := router.Dependencies{
		AssignmentHandler:   handler.NewAssignmentHandler(assignments, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(submissions, nil, logger),
		GradingHandler:      handler.NewGradingHandler(grading, logger),
		StatisticsHandler:   handler.NewStatisticsHandler(stats, logger),
		NotificationHandler: handler.NewNotificationHandler(notifications, logger, time.Second),
		ActivityHandler:     handler.NewAdminActivityHandler(activity, logger),
		JWTMiddleware:       headerAuth,
	}
	for _, override := range overrides {
		override(&deps)
	}

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, config.Config{AppName: "EduNexa Test", AppEnv: "test"}, deps)

	api := &testAPI{app: app, db: db, submissions: submissionRepo, uploader: uploader}

	ctx := context.Background()
	api.course = models.Course{Title: "Physics", TeacherID: teacher.id}
	require.NoError(t, courseRepo.Create(ctx, &api.course))
	require.NoError(t, courseRepo.Enroll(ctx, api.course.ID, student.id))

	now := time.Now().UTC()
	api.open = models.Assignment{
		Title: "Kinematics problems", Description: "Solve the kinematics worksheet.", CourseID: api.course.ID,
		DueDate: now.Add(72 * time.Hour), MaxPoints: 50, SubmissionType: models.SubmissionTypeBoth,
		MaxFileSizeMB: 5, IsActive: true, CreatedBy: teacher.id,
	}
	api.open.SetFileTypes([]string{".pdf", ".txt"})
	api.closed = models.Assignment{
		Title: "Vectors quiz", Description: "Closed vectors quiz.", CourseID: api.course.ID,
		DueDate: now.Add(-time.Hour), MaxPoints: 10, SubmissionType: models.SubmissionTypeText,
		MaxFileSizeMB: 5, IsActive: true, CreatedBy: teacher.id,
	}
	require.NoError(t, assignmentRepo.Create(ctx, &api.open))
	require.NoError(t, assignmentRepo.Create(ctx, &api.closed))

	return api
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
}

func (a *testAPI) request(t *testing.T, who caller, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if who.id != "" {
		req.Header.Set("X-Test-User", who.id)
		req.Header.Set("X-Test-Role", who.role)
		req.Header.Set("X-Test-Name", who.name)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func (a *testAPI) json(t *testing.T, who caller, method, path string, payload interface{}) (*http.Response, envelope) {
	t.Helper()
	var body io.Reader
	contentType := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
		contentType = fiber.MIMEApplicationJSON
	}
	resp := a.request(t, who, method, path, body, contentType)
	return resp, decodeEnvelope(t, resp)
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	var out envelope
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func TestAssignmentRoutesRequireAuthentication(t *testing.T) {
	api := newTestAPI(t)

	resp, _ := api.json(t, nobody, http.MethodGet, "/api/assignments", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	health, body := api.json(t, nobody, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, fiber.StatusOK, health.StatusCode)
	require.True(t, body.Success)
}

func TestAssignmentHandlerCreateListAndGet(t *testing.T) {
	api := newTestAPI(t)

	resp, created := api.json(t, teacher, http.MethodPost, "/api/assignments", map[string]interface{}{
		"title":              "Momentum lab",
		"description":        "Measure momentum in collisions.",
		"course_id":          api.course.ID,
		"due_date":           time.Now().Add(96 * time.Hour).UTC().Format(time.RFC3339),
		"max_points":         40,
		"allowed_file_types": []string{"pdf"},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Equal(t, "Assignment created successfully", created.Message)

	var assignment dto.AssignmentResponse
	require.NoError(t, json.Unmarshal(created.Data, &assignment))
	require.NotEmpty(t, assignment.ID)
	require.Equal(t, 40.0, assignment.MaxPoints)
	require.Equal(t, []string{".pdf"}, assignment.AllowedFileTypes)

	resp, listed := api.json(t, student, http.MethodGet, "/api/assignments", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var items []dto.AssignmentResponse
	require.NoError(t, json.Unmarshal(listed.Data, &items))
	require.Len(t, items, 3)
	for _, item := range items {
		require.Equal(t, models.SubmissionStatusPending, item.SubmissionStatus)
	}

	resp, _ = api.json(t, student, http.MethodGet, "/api/assignments/"+assignment.ID, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = api.json(t, outsider, http.MethodGet, "/api/assignments/"+assignment.ID, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, missing := api.json(t, teacher, http.MethodGet, "/api/assignments/does-not-exist", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Assignment not found", missing.Message)
}

func TestAssignmentHandlerCreateValidation(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.json(t, teacher, http.MethodPost, "/api/assignments", map[string]interface{}{
		"title":     "x",
		"course_id": api.course.ID,
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation failed", body.Message)

	resp, body = api.json(t, teacher, http.MethodPost, "/api/assignments", map[string]interface{}{
		"title":       "Past lab",
		"description": "Due date already passed.",
		"course_id":   api.course.ID,
		"due_date":    time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Contains(t, string(body.Details), "due_date")

	resp, _ = api.json(t, student, http.MethodPost, "/api/assignments", map[string]interface{}{
		"title":       "Student made",
		"description": "Students cannot create assignments.",
		"course_id":   api.course.ID,
		"due_date":    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = api.request(t, teacher, http.MethodPost, "/api/assignments", strings.NewReader("{"), fiber.MIMEApplicationJSON)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAssignmentHandlerUpdateDeleteAndExport(t *testing.T) {
	api := newTestAPI(t)
	path := "/api/assignments/" + api.open.ID

	resp, body := api.json(t, teacher, http.MethodPut, path, map[string]interface{}{"title": "Kinematics problem set"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var updated dto.AssignmentResponse
	require.NoError(t, json.Unmarshal(body.Data, &updated))
	require.Equal(t, "Kinematics problem set", updated.Title)

	resp, _ = api.json(t, student, http.MethodPost, path+"/submit", map[string]string{"text_content": "v = d / t"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body = api.json(t, teacher, http.MethodGet, path+"/export", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var export dto.AssignmentExportResponse
	require.NoError(t, json.Unmarshal(body.Data, &export))
	require.Equal(t, 1, export.Statistics.TotalSubmissions)
	require.InDelta(t, 2.0, export.Statistics.SubmissionRate, 1e-9)
	require.Len(t, export.Submissions, 1)

	resp, _ = api.json(t, student, http.MethodGet, path+"/export", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = api.json(t, teacher, http.MethodDelete, path, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var deactivated dto.AssignmentResponse
	require.NoError(t, json.Unmarshal(body.Data, &deactivated))
	require.False(t, deactivated.IsActive)

	var stored models.Submission
	require.NoError(t, api.db.Where("assignment_id = ?", api.open.ID).First(&stored).Error)
}
