package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edunexa-api/internal/dto"
	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/pkg/ai"
)

type stubSuggester struct {
	input      ai.FeedbackInput
	suggestion ai.FeedbackSuggestion
	err        error
}

func (s *stubSuggester) Suggest(_ context.Context, input ai.FeedbackInput) (ai.FeedbackSuggestion, error) {
	s.input = input
	return s.suggestion, s.err
}

func newGradingService(env *testEnv, suggester ai.FeedbackSuggester) GradingService {
	return NewGradingService(env.submissions, testValidator(), env.activity, env.notifier, suggester, testLogger())
}

func TestGradingServiceGradeNotifiesStudent(t *testing.T) {
	env := newTestEnv(t)
	svc := newGradingService(env, nil)
	ctx := context.Background()
	submission := env.submit(t, env.essay, studentOne, "answer")

	graded, err := svc.Grade(ctx, teacherOne, submission.ID, dto.GradeRequest{
		Grade:    floatPtr(85),
		Feedback: "Clear <b>argument</b> & good examples",
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, graded.Status)
	require.Equal(t, 85.0, *graded.Grade)
	require.Equal(t, "Clear argument & good examples", graded.Feedback)
	require.Equal(t, teacherOne.ID, *graded.GradedBy)
	require.NotNil(t, graded.GradedAt)

	sent := env.notifier.sent()
	require.Len(t, sent, 1)
	require.Equal(t, studentOne.ID, sent[0].UserID)
	require.Equal(t, models.NotificationTypeSuccess, sent[0].Type)
	require.Equal(t, "Your assignment “Limits essay” has been graded. Score: 85/100 (85.0%)", sent[0].Message)
	require.Equal(t, []string{"submission.graded"}, env.activity.actions())
}

func TestGradingServiceRejectsOutOfRangeGrades(t *testing.T) {
	env := newTestEnv(t)
	svc := newGradingService(env, nil)
	ctx := context.Background()
	submission := env.submit(t, env.report, studentOne, "report")

	_, err := svc.Grade(ctx, teacherOne, submission.ID, dto.GradeRequest{Grade: floatPtr(21)})
	require.ErrorIs(t, err, ErrGradeOutOfRange)

	_, err = svc.Grade(ctx, teacherOne, submission.ID, dto.GradeRequest{Grade: floatPtr(-1)})
	require.Error(t, err)

	_, err = svc.Grade(ctx, teacherOne, submission.ID, dto.GradeRequest{})
	require.Error(t, err)

	edge, err := svc.Grade(ctx, teacherOne, submission.ID, dto.GradeRequest{Grade: floatPtr(20)})
	require.NoError(t, err)
	require.Equal(t, 20.0, *edge.Grade)
}

func TestGradingServiceChecksOwnership(t *testing.T) {
	env := newTestEnv(t)
	svc := newGradingService(env, nil)
	ctx := context.Background()
	submission := env.submit(t, env.essay, studentOne, "answer")

	_, err := svc.Grade(ctx, studentOne, submission.ID, dto.GradeRequest{Grade: floatPtr(10)})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Grade(ctx, teacherTwo, submission.ID, dto.GradeRequest{Grade: floatPtr(10)})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Grade(ctx, admin, "missing", dto.GradeRequest{Grade: floatPtr(10)})
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	_, err = svc.Grade(ctx, admin, submission.ID, dto.GradeRequest{Grade: floatPtr(10)})
	require.NoError(t, err)
}

func TestGradingServiceRegradeKeepsHistory(t *testing.T) {
	env := newTestEnv(t)
	svc := newGradingService(env, nil)
	ctx := context.Background()
	submission := env.submit(t, env.essay, studentOne, "answer")

	_, err := svc.Grade(ctx, teacherOne, submission.ID, dto.GradeRequest{Grade: floatPtr(40), Feedback: "Needs work"})
	require.NoError(t, err)

	repeat, err := svc.Grade(ctx, teacherOne, submission.ID, dto.GradeRequest{Grade: floatPtr(40), Feedback: "Needs work"})
	require.NoError(t, err)
	require.Equal(t, 40.0, *repeat.Grade)

	_, err = svc.Grade(ctx, teacherOne, submission.ID, dto.GradeRequest{Grade: floatPtr(60), Feedback: "Better after revision"})
	require.NoError(t, err)

	history, err := env.submissions.ListHistory(ctx, submission.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 40.0, history[0].Grade)
	require.Equal(t, 60.0, history[1].Grade)

	sent := env.notifier.sent()
	require.Len(t, sent, 2)
	require.Equal(t, models.NotificationTypeError, sent[0].Type)
	require.Equal(t, models.NotificationTypeWarning, sent[1].Type)
}

func TestGradeNotificationType(t *testing.T) {
	require.Equal(t, models.NotificationTypeSuccess, GradeNotificationType(70))
	require.Equal(t, models.NotificationTypeWarning, GradeNotificationType(69.9))
	require.Equal(t, models.NotificationTypeWarning, GradeNotificationType(50))
	require.Equal(t, models.NotificationTypeError, GradeNotificationType(49.9))
}

func TestGradingServiceBulkGrade(t *testing.T) {
	env := newTestEnv(t)
	svc := newGradingService(env, nil)
	ctx := context.Background()
	first := env.submit(t, env.essay, studentOne, "one")
	second := env.submit(t, env.essay, studentTwo, "two")

	result, err := svc.BulkGrade(ctx, teacherOne, dto.BulkGradeRequest{Grades: []dto.BulkGradeItem{
		{SubmissionID: first.ID, Grade: floatPtr(90)},
		{SubmissionID: second.ID, Grade: floatPtr(55), Feedback: "Check the definitions"},
	}})
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.Equal(t, first.ID, result.Graded[0].ID)
	require.Equal(t, second.ID, result.Graded[1].ID)
	require.Equal(t, 55.0, *result.Graded[1].Grade)
	require.Len(t, env.notifier.sent(), 2)
}

func TestGradingServiceBulkGradeValidatesBeforeWriting(t *testing.T) {
	env := newTestEnv(t)
	svc := newGradingService(env, nil)
	ctx := context.Background()
	first := env.submit(t, env.essay, studentOne, "one")
	second := env.submit(t, env.essay, studentTwo, "two")

	_, err := svc.BulkGrade(ctx, teacherOne, dto.BulkGradeRequest{Grades: []dto.BulkGradeItem{
		{SubmissionID: first.ID, Grade: floatPtr(90)},
		{SubmissionID: first.ID, Grade: floatPtr(80)},
	}})
	var validationErr *lifecycle.ValidationError
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.BulkGrade(ctx, teacherOne, dto.BulkGradeRequest{Grades: []dto.BulkGradeItem{
		{SubmissionID: first.ID, Grade: floatPtr(90)},
		{SubmissionID: second.ID, Grade: floatPtr(101)},
	}})
	require.ErrorIs(t, err, ErrGradeOutOfRange)

	stored, err := env.submissions.GetByID(ctx, first.ID)
	require.NoError(t, err)
	require.Nil(t, stored.Grade)
	require.Empty(t, env.notifier.sent())

	_, err = svc.BulkGrade(ctx, teacherOne, dto.BulkGradeRequest{})
	require.Error(t, err)
}

func TestGradingServiceSuggestFeedback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	submission := env.submit(t, env.essay, studentOne, "Limits are about approaching values.")

	_, err := newGradingService(env, nil).SuggestFeedback(ctx, teacherOne, submission.ID)
	require.ErrorIs(t, err, ErrFeedbackUnavailable)

	suggester := &stubSuggester{suggestion: ai.FeedbackSuggestion{
		Feedback: "<p>Good start.</p> Add an epsilon-delta example.",
		Model:    "gpt-4o-mini",
	}}
	svc := newGradingService(env, suggester)

	suggestion, err := svc.SuggestFeedback(ctx, teacherOne, submission.ID)
	require.NoError(t, err)
	require.Equal(t, "Good start. Add an epsilon-delta example.", suggestion.Feedback)
	require.Equal(t, "Limits essay", suggester.input.AssignmentTitle)
	require.Equal(t, 100.0, suggester.input.MaxPoints)
	require.Equal(t, "Limits are about approaching values.", suggester.input.SubmissionText)

	_, err = svc.SuggestFeedback(ctx, studentOne, submission.ID)
	require.ErrorIs(t, err, ErrForbidden)

	suggester.err = errors.New("rate limited")
	_, err = svc.SuggestFeedback(ctx, teacherOne, submission.ID)
	require.ErrorContains(t, err, "rate limited")
}
