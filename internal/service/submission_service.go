package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/internal/observability"
	"github.com/noah-isme/edunexa-api/internal/repository"
)

// uploadCeiling bounds reads of files for assignments without a size limit.
const uploadCeiling = 100 * 1024 * 1024

var blockedMimeTypes = []string{
	"application/vnd.microsoft.portable-executable",
	"application/x-msdownload",
	"application/x-executable",
	"application/x-elf",
	"application/x-sharedlib",
	"application/x-mach-binary",
}

// FileUploader stores a submission file and returns the URL it can be fetched from.
type FileUploader interface {
	Upload(ctx context.Context, assignmentID, name string, reader io.Reader) (string, error)
}

// SubmissionService orchestrates student submissions.
type SubmissionService interface {
	Submit(ctx context.Context, actor Actor, assignmentID string, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error)
	Get(ctx context.Context, actor Actor, id string) (dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	courses     repository.CourseRepository
	validator   *validator.Validate
	uploader    FileUploader
	notifier    Notifier
	activity    ActivityRecorder
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance. uploader,
// notifier and activity may be nil.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	assignments repository.AssignmentRepository,
	courses repository.CourseRepository,
	validate *validator.Validate,
	uploader FileUploader,
	notifier Notifier,
	activity ActivityRecorder,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		submissions: submissions,
		assignments: assignments,
		courses:     courses,
		validator:   validate,
		uploader:    uploader,
		notifier:    notifier,
		activity:    activity,
		sanitizer:   bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/edunexa-api/internal/service/submission"),
		now:         time.Now,
	}
}

func (s *submissionService) Submit(ctx context.Context, actor Actor, assignmentID string, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.submit", trace.WithAttributes(
		attribute.String("submission.assignment_id", assignmentID),
		attribute.String("submission.student_id", actor.ID),
		attribute.Bool("submission.file_present", file != nil),
	))
	defer span.End()

	if !actor.IsStudent() {
		span.SetStatus(codes.Error, "forbidden")
		return dto.SubmissionResponse{}, fmt.Errorf("%w: only students can submit assignments", ErrForbidden)
	}
	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assignment_lookup_failed")
		return dto.SubmissionResponse{}, mapAssignmentError(err)
	}

	enrolled, err := s.courses.IsEnrolled(ctx, assignment.CourseID, actor.ID)
	if err != nil {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}
	if !enrolled {
		span.SetStatus(codes.Error, "not_enrolled")
		return dto.SubmissionResponse{}, fmt.Errorf("%w: not enrolled in this course", ErrForbidden)
	}

	attempt := lifecycle.Attempt{
		StudentID:   actor.ID,
		TextContent: strings.TrimSpace(s.sanitizer.Sanitize(payload.TextContent)),
		FileName:    filepath.Base(strings.TrimSpace(payload.FileName)),
		FilePath:    strings.TrimSpace(payload.FilePath),
	}
	if attempt.FileName == "." {
		attempt.FileName = ""
	}
	if file != nil {
		attempt.FileName = filepath.Base(file.Filename)
		attempt.FilePath = ""
		attempt.FileSize = file.Size
	}

	now := s.now()
	if err := lifecycle.CheckSubmission(assignment, attempt, now); err != nil {
		return dto.SubmissionResponse{}, s.reject(span, assignment, err)
	}

	if _, err := s.submissions.GetByAssignmentAndStudent(ctx, assignment.ID, actor.ID); err == nil {
		span.SetStatus(codes.Error, "already_submitted")
		return dto.SubmissionResponse{}, ErrAlreadySubmitted
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return dto.SubmissionResponse{}, err
	}

	if file != nil {
		url, err := s.storeFile(ctx, assignment, file)
		if err != nil {
			var rejected *lifecycle.SubmissionRejectedError
			if errors.As(err, &rejected) {
				return dto.SubmissionResponse{}, s.reject(span, assignment, err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "upload_failed")
			return dto.SubmissionResponse{}, err
		}
		attempt.FilePath = url
	}

	submission, err := lifecycle.AcceptSubmission(assignment, attempt, now)
	if err != nil {
		return dto.SubmissionResponse{}, s.reject(span, assignment, err)
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			span.SetStatus(codes.Error, "already_submitted")
			return dto.SubmissionResponse{}, ErrAlreadySubmitted
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_create_failed")
		return dto.SubmissionResponse{}, err
	}

	s.logger.Info().
		Str("submission_id", submission.ID).
		Str("assignment_id", assignment.ID).
		Str("student_id", actor.ID).
		Msg("submission accepted")

	s.notifyTeacher(ctx, actor, assignment)
	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     models.ActionSubmissionCreated,
		EntityType: models.EntitySubmission,
		EntityID:   submission.ID,
		Metadata:   map[string]interface{}{"assignment_id": assignment.ID, "has_file": attempt.HasFile()},
	})

	submission.Assignment = assignment
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Get(ctx context.Context, actor Actor, id string) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	switch {
	case actor.IsAdmin():
	case actor.IsStudent():
		if submission.StudentID != actor.ID {
			return dto.SubmissionResponse{}, ErrForbidden
		}
	case actor.IsTeacher():
		if submission.Assignment.Course.TeacherID != actor.ID {
			return dto.SubmissionResponse{}, ErrForbidden
		}
	default:
		return dto.SubmissionResponse{}, ErrForbidden
	}

	history, err := s.submissions.ListHistory(ctx, submission.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	submission.History = history

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) reject(span trace.Span, assignment models.Assignment, err error) error {
	reason := "invalid"
	var rejected *lifecycle.SubmissionRejectedError
	if errors.As(err, &rejected) {
		reason = rejected.Reason
	}
	observability.SubmissionsRejected().WithLabelValues(reason).Inc()
	span.SetAttributes(attribute.String("submission.rejected", reason))
	span.SetStatus(codes.Error, "rejected")
	s.logger.Info().Str("assignment_id", assignment.ID).Str("reason", reason).Msg("submission rejected")
	return err
}

func (s *submissionService) storeFile(ctx context.Context, assignment models.Assignment, file *multipart.FileHeader) (string, error) {
	if s.uploader == nil {
		return "", ErrUploadUnavailable
	}

	limit := int64(assignment.MaxFileSizeMB) * 1024 * 1024
	if limit <= 0 {
		limit = uploadCeiling
	}

	handle, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, limit+1)); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if int64(buf.Len()) > limit {
		return "", &lifecycle.SubmissionRejectedError{
			Reason:  lifecycle.ReasonFileTooLarge,
			Message: fmt.Sprintf("File size exceeds the maximum allowed size of %d MB", limit/(1024*1024)),
		}
	}

	detected := mimetype.Detect(buf.Bytes())
	for _, blocked := range blockedMimeTypes {
		if detected.Is(blocked) {
			ext := strings.ToLower(filepath.Ext(file.Filename))
			if ext == "" {
				ext = detected.Extension()
			}
			return "", &lifecycle.SubmissionRejectedError{
				Reason:  lifecycle.ReasonFileType,
				Message: fmt.Sprintf("File type %s is not allowed", ext),
			}
		}
	}

	url, err := s.uploader.Upload(ctx, assignment.ID, filepath.Base(file.Filename), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	s.logger.Debug().
		Str("assignment_id", assignment.ID).
		Str("mime", detected.String()).
		Int("bytes", buf.Len()).
		Msg("submission file stored")
	return url, nil
}

func (s *submissionService) notifyTeacher(ctx context.Context, actor Actor, assignment models.Assignment) {
	if s.notifier == nil {
		return
	}

	course, err := s.courses.GetByID(ctx, assignment.CourseID)
	if err != nil {
		s.logger.Warn().Err(err).Str("course_id", assignment.CourseID).Msg("failed to load course for submission notification")
		return
	}

	name := strings.TrimSpace(actor.Name)
	if name == "" {
		name = "A student"
	}

	_, err = s.notifier.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  course.TeacherID,
		Type:    models.NotificationTypeInfo,
		Title:   "New Assignment Submission",
		Message: fmt.Sprintf("%s has submitted the assignment “%s”", name, assignment.Title),
		Link:    "/assignments/detail?id=" + assignment.ID,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("assignment_id", assignment.ID).Msg("failed to notify teacher of submission")
	}
}
