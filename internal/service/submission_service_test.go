package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/models"
)

type memoryUploader struct {
	mu      sync.Mutex
	uploads map[string][]byte
	err     error
}

func (m *memoryUploader) Upload(_ context.Context, assignmentID, name string, reader io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploads == nil {
		m.uploads = map[string][]byte{}
	}
	key := assignmentID + "/" + name
	m.uploads[key] = data
	return "https://files.example.com/" + key, nil
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

func newSubmissionService(env *testEnv, uploader FileUploader) SubmissionService {
	return NewSubmissionService(env.submissions, env.assignments, env.courses, testValidator(), uploader, env.notifier, env.activity, testLogger())
}

func requireRejected(t *testing.T, err error, reason string) {
	t.Helper()
	var rejected *lifecycle.SubmissionRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, reason, rejected.Reason)
}

func TestSubmissionServiceSubmitText(t *testing.T) {
	env := newTestEnv(t)
	svc := newSubmissionService(env, nil)
	ctx := context.Background()

	response, err := svc.Submit(ctx, studentOne, env.essay.ID, dto.SubmissionCreateRequest{
		TextContent: "  Limits describe <b>behaviour</b> near a point. <script>x()</script>",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusSubmitted, response.Status)
	require.Equal(t, studentOne.ID, response.StudentID)
	require.Equal(t, env.course.ID, response.CourseID)
	require.Contains(t, response.TextContent, "<b>behaviour</b>")
	require.NotContains(t, response.TextContent, "script")
	require.NotNil(t, response.Assignment)
	require.Nil(t, response.Grade)

	sent := env.notifier.sent()
	require.Len(t, sent, 1)
	require.Equal(t, teacherOne.ID, sent[0].UserID)
	require.Equal(t, models.NotificationTypeInfo, sent[0].Type)
	require.Equal(t, "New Assignment Submission", sent[0].Title)
	require.Contains(t, sent[0].Message, "Sam Student")
	require.Equal(t, "/assignments/detail?id="+env.essay.ID, sent[0].Link)
	require.Equal(t, []string{"submission.created"}, env.activity.actions())

	_, err = svc.Submit(ctx, studentOne, env.essay.ID, dto.SubmissionCreateRequest{TextContent: "again"}, nil)
	require.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmissionServiceGateOrder(t *testing.T) {
	env := newTestEnv(t)
	svc := newSubmissionService(env, nil)
	ctx := context.Background()
	text := dto.SubmissionCreateRequest{TextContent: "answer"}

	_, err := svc.Submit(ctx, teacherOne, env.essay.ID, text, nil)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Submit(ctx, Actor{ID: "student-9", Role: RoleStudent}, env.essay.ID, text, nil)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Submit(ctx, studentOne, "missing", text, nil)
	require.ErrorIs(t, err, ErrAssignmentNotFound)

	_, err = svc.Submit(ctx, studentOne, env.inactive.ID, text, nil)
	requireRejected(t, err, lifecycle.ReasonInactive)

	_, err = svc.Submit(ctx, studentOne, env.closed.ID, text, nil)
	requireRejected(t, err, lifecycle.ReasonDeadline)

	_, err = svc.Submit(ctx, studentOne, env.essay.ID, dto.SubmissionCreateRequest{TextContent: "   "}, nil)
	requireRejected(t, err, lifecycle.ReasonEmpty)

	_, err = svc.Submit(ctx, studentOne, env.report.ID, dto.SubmissionCreateRequest{
		FileName: "report.exe",
		FilePath: "https://files.example.com/report.exe",
	}, nil)
	requireRejected(t, err, lifecycle.ReasonFileType)

	require.Empty(t, env.notifier.sent())
}

func TestSubmissionServiceRejectsLateEvenIfAlreadySubmitted(t *testing.T) {
	env := newTestEnv(t)
	svc := newSubmissionService(env, nil)
	env.submit(t, env.closed, studentOne, "on time")

	_, err := svc.Submit(context.Background(), studentOne, env.closed.ID, dto.SubmissionCreateRequest{TextContent: "late"}, nil)
	requireRejected(t, err, lifecycle.ReasonDeadline)
}

func TestSubmissionServiceUploadsFiles(t *testing.T) {
	env := newTestEnv(t)
	uploader := &memoryUploader{}
	svc := newSubmissionService(env, uploader)
	ctx := context.Background()

	file := buildFileHeader(t, "lab-report.pdf", []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF"))
	response, err := svc.Submit(ctx, studentOne, env.report.ID, dto.SubmissionCreateRequest{}, file)
	require.NoError(t, err)
	require.Equal(t, "lab-report.pdf", response.FileName)
	require.Equal(t, "https://files.example.com/"+env.report.ID+"/lab-report.pdf", response.FilePath)
	require.Contains(t, uploader.uploads, env.report.ID+"/lab-report.pdf")
}

func TestSubmissionServiceFileChecks(t *testing.T) {
	env := newTestEnv(t)
	uploader := &memoryUploader{}
	svc := newSubmissionService(env, uploader)
	ctx := context.Background()

	wrongType := buildFileHeader(t, "notes.txt", []byte("plain notes"))
	_, err := svc.Submit(ctx, studentOne, env.report.ID, dto.SubmissionCreateRequest{}, wrongType)
	requireRejected(t, err, lifecycle.ReasonFileType)

	tooLarge := buildFileHeader(t, "huge.pdf", bytes.Repeat([]byte("a"), 1024*1024+1))
	_, err = svc.Submit(ctx, studentOne, env.report.ID, dto.SubmissionCreateRequest{}, tooLarge)
	requireRejected(t, err, lifecycle.ReasonFileTooLarge)

	elf := make([]byte, 64)
	copy(elf, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	elf[16] = 2
	disguised := buildFileHeader(t, "report.pdf", elf)
	_, err = svc.Submit(ctx, studentOne, env.report.ID, dto.SubmissionCreateRequest{}, disguised)
	requireRejected(t, err, lifecycle.ReasonFileType)

	require.Empty(t, uploader.uploads)
}

func TestSubmissionServiceReferencedFileIsCheckedByName(t *testing.T) {
	env := newTestEnv(t)
	svc := newSubmissionService(env, nil)

	response, err := svc.Submit(context.Background(), studentOne, env.report.ID, dto.SubmissionCreateRequest{
		FileName: "lab-report.pdf",
		FilePath: "https://files.example.com/lab-report.pdf",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "lab-report.pdf", response.FileName)
	require.Equal(t, "https://files.example.com/lab-report.pdf", response.FilePath)
}

func TestSubmissionServiceUploadFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file := buildFileHeader(t, "lab-report.pdf", []byte("%PDF-1.4 minimal"))

	_, err := newSubmissionService(env, nil).Submit(ctx, studentOne, env.report.ID, dto.SubmissionCreateRequest{}, file)
	require.ErrorIs(t, err, ErrUploadUnavailable)

	broken := &memoryUploader{err: errors.New("cloud unavailable")}
	_, err = newSubmissionService(env, broken).Submit(ctx, studentOne, env.report.ID, dto.SubmissionCreateRequest{}, file)
	require.ErrorContains(t, err, "cloud unavailable")

	_, err = env.submissions.GetByAssignmentAndStudent(ctx, env.report.ID, studentOne.ID)
	require.Error(t, err)
}

func TestSubmissionServiceNotificationFailureDoesNotFailSubmit(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("broker down")
	svc := newSubmissionService(env, nil)

	_, err := svc.Submit(context.Background(), studentTwo, env.essay.ID, dto.SubmissionCreateRequest{TextContent: "answer"}, nil)
	require.NoError(t, err)
}

func TestSubmissionServiceGetChecksOwnership(t *testing.T) {
	env := newTestEnv(t)
	svc := newSubmissionService(env, nil)
	ctx := context.Background()
	submission := env.submit(t, env.essay, studentOne, "answer")

	own, err := svc.Get(ctx, studentOne, submission.ID)
	require.NoError(t, err)
	require.Equal(t, submission.ID, own.ID)

	_, err = svc.Get(ctx, studentTwo, submission.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, teacherTwo, submission.ID)
	require.ErrorIs(t, err, ErrForbidden)

	staff, err := svc.Get(ctx, teacherOne, submission.ID)
	require.NoError(t, err)
	require.Equal(t, env.essay.ID, staff.Assignment.ID)

	_, err = svc.Get(ctx, admin, "missing")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}
