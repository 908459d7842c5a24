package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/internal/observability"
	"github.com/noah-isme/edunexa-api/internal/repository"
	"github.com/noah-isme/edunexa-api/pkg/ai"
)

const bulkGradeConcurrency = 4

// GradingService encapsulates grading workflows for teachers and administrators.
type GradingService interface {
	Grade(ctx context.Context, actor Actor, submissionID string, payload dto.GradeRequest) (dto.SubmissionResponse, error)
	BulkGrade(ctx context.Context, actor Actor, payload dto.BulkGradeRequest) (dto.BulkGradeResponse, error)
	SuggestFeedback(ctx context.Context, actor Actor, submissionID string) (ai.FeedbackSuggestion, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	validator   *validator.Validate
	activity    ActivityRecorder
	notifier    Notifier
	suggester   ai.FeedbackSuggester
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewGradingService constructs the grading service. activity, notifier and
// suggester may be nil.
func NewGradingService(
	submissions repository.SubmissionRepository,
	validate *validator.Validate,
	activity ActivityRecorder,
	notifier Notifier,
	suggester ai.FeedbackSuggester,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		submissions: submissions,
		validator:   validate,
		activity:    activity,
		notifier:    notifier,
		suggester:   suggester,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/edunexa-api/internal/service/grading"),
		now:         time.Now,
	}
}

type pendingGrade struct {
	submission models.Submission
	grade      float64
	feedback   string
	unchanged  bool
}

func (s *gradingService) Grade(ctx context.Context, actor Actor, submissionID string, payload dto.GradeRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.update", trace.WithAttributes(
		attribute.String("grading.submission_id", submissionID),
		attribute.String("grading.actor_id", actor.ID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.SubmissionResponse{}, err
	}

	pending, err := s.prepare(ctx, actor, submissionID, *payload.Grade, payload.Feedback)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_rejected")
		return dto.SubmissionResponse{}, err
	}
	if pending.unchanged {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		return dto.NewSubmissionResponse(pending.submission), nil
	}

	graded, err := s.apply(ctx, actor, pending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_update_failed")
		return dto.SubmissionResponse{}, err
	}

	span.SetAttributes(
		attribute.Float64("grading.score", pending.grade),
		attribute.String("grading.status", graded.Status),
	)
	return dto.NewSubmissionResponse(graded), nil
}

// BulkGrade checks every item before writing any of them. Writes then run
// concurrently and the first failure is returned.
func (s *gradingService) BulkGrade(ctx context.Context, actor Actor, payload dto.BulkGradeRequest) (dto.BulkGradeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.bulk", trace.WithAttributes(
		attribute.Int("grading.items", len(payload.Grades)),
		attribute.String("grading.actor_id", actor.ID),
	))
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.BulkGradeResponse{}, err
	}

	seen := make(map[string]struct{}, len(payload.Grades))
	for _, item := range payload.Grades {
		if _, dup := seen[item.SubmissionID]; dup {
			err := &lifecycle.ValidationError{Field: "grades", Message: fmt.Sprintf("submission %s is listed twice", item.SubmissionID)}
			span.SetStatus(codes.Error, "duplicate_item")
			return dto.BulkGradeResponse{}, err
		}
		seen[item.SubmissionID] = struct{}{}
	}

	prepared := make([]pendingGrade, len(payload.Grades))
	for i, item := range payload.Grades {
		pending, err := s.prepare(ctx, actor, item.SubmissionID, *item.Grade, item.Feedback)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "grading_rejected")
			return dto.BulkGradeResponse{}, fmt.Errorf("submission %s: %w", item.SubmissionID, err)
		}
		prepared[i] = pending
	}

	results := make([]models.Submission, len(prepared))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(bulkGradeConcurrency)
	for i := range prepared {
		group.Go(func() error {
			if prepared[i].unchanged {
				results[i] = prepared[i].submission
				return nil
			}
			graded, err := s.apply(groupCtx, actor, prepared[i])
			if err != nil {
				return fmt.Errorf("submission %s: %w", prepared[i].submission.ID, err)
			}
			results[i] = graded
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk_update_failed")
		return dto.BulkGradeResponse{}, err
	}

	s.logger.Info().Int("count", len(results)).Str("actor_id", actor.ID).Msg("bulk grading completed")
	return dto.BulkGradeResponse{
		Graded: dto.NewSubmissionResponseSlice(results),
		Count:  len(results),
	}, nil
}

func (s *gradingService) SuggestFeedback(ctx context.Context, actor Actor, submissionID string) (ai.FeedbackSuggestion, error) {
	submission, err := s.load(ctx, actor, submissionID)
	if err != nil {
		return ai.FeedbackSuggestion{}, err
	}
	if s.suggester == nil {
		return ai.FeedbackSuggestion{}, ErrFeedbackUnavailable
	}

	suggestion, err := s.suggester.Suggest(ctx, ai.FeedbackInput{
		AssignmentTitle: submission.Assignment.Title,
		Instructions:    submission.Assignment.Instructions,
		MaxPoints:       maxPointsOf(submission.Assignment),
		SubmissionText:  submission.TextContent,
		FileName:        submission.FileName,
		Grade:           submission.Grade,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("submission_id", submissionID).Msg("feedback suggestion failed")
		return ai.FeedbackSuggestion{}, err
	}

	suggestion.Feedback = plainText(s.sanitizer, suggestion.Feedback)
	return suggestion, nil
}

func (s *gradingService) load(ctx context.Context, actor Actor, submissionID string) (models.Submission, error) {
	if !actor.IsStaff() {
		return models.Submission{}, fmt.Errorf("%w: only teachers and admins can grade submissions", ErrForbidden)
	}

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}

	if actor.IsTeacher() && submission.Assignment.Course.TeacherID != actor.ID {
		return models.Submission{}, ErrForbidden
	}
	return submission, nil
}

func (s *gradingService) prepare(ctx context.Context, actor Actor, submissionID string, grade float64, feedback string) (pendingGrade, error) {
	submission, err := s.load(ctx, actor, submissionID)
	if err != nil {
		return pendingGrade{}, err
	}

	maxPoints := maxPointsOf(submission.Assignment)
	if math.IsNaN(grade) || grade < 0 || grade > maxPoints+1e-9 {
		return pendingGrade{}, fmt.Errorf("%w: grade must be between 0 and %g", ErrGradeOutOfRange, maxPoints)
	}

	cleanFeedback := plainText(s.sanitizer, feedback)
	if len([]rune(cleanFeedback)) > 2000 {
		return pendingGrade{}, &lifecycle.ValidationError{Field: "feedback", Message: "must be at most 2000 characters"}
	}

	unchanged := submission.Grade != nil &&
		math.Abs(*submission.Grade-grade) < 1e-6 &&
		strings.TrimSpace(submission.Feedback) == cleanFeedback &&
		submission.GradedBy != nil && *submission.GradedBy == actor.ID

	return pendingGrade{
		submission: submission,
		grade:      grade,
		feedback:   cleanFeedback,
		unchanged:  unchanged,
	}, nil
}

func (s *gradingService) apply(ctx context.Context, actor Actor, pending pendingGrade) (models.Submission, error) {
	submission := pending.submission
	kind := "initial"
	if submission.IsGraded() {
		kind = "regrade"
	}

	grade := pending.grade
	gradedAt := s.now().UTC()
	gradedBy := actor.ID
	submission.Grade = &grade
	submission.Feedback = pending.feedback
	submission.Status = models.SubmissionStatusGraded
	submission.GradedAt = &gradedAt
	submission.GradedBy = &gradedBy

	history := models.SubmissionGradeHistory{
		SubmissionID: submission.ID,
		Grade:        grade,
		Feedback:     pending.feedback,
		GradedBy:     actor.ID,
		GradedAt:     gradedAt,
	}
	if err := s.submissions.SaveGrade(ctx, &submission, &history); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, ErrSubmissionNotFound
		}
		return models.Submission{}, err
	}

	observability.GradesRecorded().WithLabelValues(kind).Inc()
	s.logger.Info().
		Str("submission_id", submission.ID).
		Str("assignment_id", submission.AssignmentID).
		Str("kind", kind).
		Float64("grade", grade).
		Msg("submission graded")

	record(ctx, s.activity, s.logger, ActivityEntry{
		Actor:      actor,
		Action:     models.ActionSubmissionGraded,
		EntityType: models.EntitySubmission,
		EntityID:   submission.ID,
		Metadata: map[string]interface{}{
			"assignment_id": submission.AssignmentID,
			"student_id":    submission.StudentID,
			"grade":         grade,
			"kind":          kind,
		},
	})
	s.notifyStudent(ctx, submission)

	return submission, nil
}

func (s *gradingService) notifyStudent(ctx context.Context, submission models.Submission) {
	if s.notifier == nil || submission.Grade == nil {
		return
	}

	maxPoints := maxPointsOf(submission.Assignment)
	percentage := *submission.Grade / maxPoints * 100
	_, err := s.notifier.Publish(ctx, dto.NotificationCreateRequest{
		UserID: submission.StudentID,
		Type:   GradeNotificationType(percentage),
		Title:  "Assignment Graded",
		Message: fmt.Sprintf("Your assignment “%s” has been graded. Score: %g/%g (%.1f%%)",
			submission.Assignment.Title, *submission.Grade, maxPoints, percentage),
		Link: "/assignments/detail?id=" + submission.AssignmentID,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to notify student of grade")
	}
}

// GradeNotificationType maps a grade percentage to the notification tone.
func GradeNotificationType(percentage float64) string {
	switch {
	case percentage >= 70:
		return models.NotificationTypeSuccess
	case percentage >= 50:
		return models.NotificationTypeWarning
	default:
		return models.NotificationTypeError
	}
}

func maxPointsOf(assignment models.Assignment) float64 {
	if assignment.MaxPoints <= 0 {
		return models.DefaultMaxPoints
	}
	return assignment.MaxPoints
}
