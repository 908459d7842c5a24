package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/internal/repository"
	"github.com/noah-isme/edunexa-api/internal/statistics"
	"github.com/noah-isme/edunexa-api/pkg/lmsclient"
)

// AssignmentListing is what a source lists for one report. Rejected entries
// could not be read at all and are reported as skipped.
type AssignmentListing struct {
	Assignments []models.Assignment
	Rejected    []statistics.FetchFailure
}

// AssignmentSource supplies the assignments a statistics report covers.
type AssignmentSource interface {
	ListAssignments(ctx context.Context, actor Actor) (AssignmentListing, error)
	FetchDetail(ctx context.Context, actor Actor, assignmentID string) (models.Assignment, error)
}

type repositorySource struct {
	assignments repository.AssignmentRepository
}

// NewRepositorySource reads assignments from the local database.
func NewRepositorySource(assignments repository.AssignmentRepository) AssignmentSource {
	return &repositorySource{assignments: assignments}
}

func (s *repositorySource) ListAssignments(ctx context.Context, actor Actor) (AssignmentListing, error) {
	filter := repository.AssignmentFilter{}
	if actor.IsTeacher() {
		filter.TeacherID = actor.ID
	}
	assignments, err := s.assignments.List(ctx, filter)
	if err != nil {
		return AssignmentListing{}, err
	}
	return AssignmentListing{Assignments: assignments}, nil
}

func (s *repositorySource) FetchDetail(ctx context.Context, _ Actor, assignmentID string) (models.Assignment, error) {
	assignment, err := s.assignments.GetWithSubmissions(ctx, assignmentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Assignment{}, ErrAssignmentNotFound
	}
	return assignment, err
}

// LMSClient is the subset of the LMS REST client used for statistics.
type LMSClient interface {
	ListAssignments(ctx context.Context, cred lmsclient.Credential) (lmsclient.AssignmentList, error)
	GetAssignment(ctx context.Context, cred lmsclient.Credential, id string) (lmsclient.Assignment, error)
}

type lmsSource struct {
	client   LMSClient
	fallback lmsclient.Credential
}

// NewLMSSource reads assignments from a remote LMS. Calls carry the actor's
// token, or the fallback credential when the actor has none.
func NewLMSSource(client LMSClient, fallback lmsclient.Credential) AssignmentSource {
	return &lmsSource{client: client, fallback: fallback}
}

func (s *lmsSource) credential(actor Actor) lmsclient.Credential {
	if actor.Token != "" {
		return lmsclient.Credential{Token: actor.Token}
	}
	return s.fallback
}

func (s *lmsSource) ListAssignments(ctx context.Context, actor Actor) (AssignmentListing, error) {
	list, err := s.client.ListAssignments(ctx, s.credential(actor))
	if err != nil {
		return AssignmentListing{}, err
	}

	listing := AssignmentListing{Assignments: make([]models.Assignment, 0, len(list.Assignments))}
	for _, wire := range list.Assignments {
		assignment, err := wire.Model()
		if err != nil {
			listing.Rejected = append(listing.Rejected, statistics.FetchFailure{
				AssignmentID:    wire.ID,
				AssignmentTitle: wire.Title,
				Reason:          err.Error(),
				Err:             err,
			})
			continue
		}
		listing.Assignments = append(listing.Assignments, assignment)
	}
	for _, malformed := range list.Malformed {
		id := malformed.ID
		if id == "" {
			id = fmt.Sprintf("#%d", malformed.Index)
		}
		listing.Rejected = append(listing.Rejected, statistics.FetchFailure{
			AssignmentID:    id,
			AssignmentTitle: malformed.Title,
			Reason:          malformed.Reason,
			Err:             errors.New(malformed.Reason),
		})
	}
	return listing, nil
}

// FetchDetail fails with a *lifecycle.ValidationError when the LMS returns a
// timestamp that does not parse.
func (s *lmsSource) FetchDetail(ctx context.Context, actor Actor, assignmentID string) (models.Assignment, error) {
	assignment, err := s.client.GetAssignment(ctx, s.credential(actor), assignmentID)
	if err != nil {
		return models.Assignment{}, err
	}
	return assignment.Model()
}

// StatisticsService builds the teacher statistics report. Every call derives
// the report from the current assignments and submissions.
type StatisticsService interface {
	GetAssignmentStatistics(ctx context.Context, actor Actor) (statistics.Report, error)
	ExportCSV(ctx context.Context, actor Actor, w io.Writer) (string, error)
}

type statisticsService struct {
	source     AssignmentSource
	aggregator *statistics.Aggregator
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewStatisticsService constructs the statistics service.
func NewStatisticsService(source AssignmentSource, aggregator *statistics.Aggregator, logger zerolog.Logger) StatisticsService {
	return &statisticsService{
		source:     source,
		aggregator: aggregator,
		logger:     logger.With().Str("component", "statistics_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/edunexa-api/internal/service/statistics"),
	}
}

func (s *statisticsService) GetAssignmentStatistics(ctx context.Context, actor Actor) (statistics.Report, error) {
	if !actor.IsStaff() {
		return statistics.Report{}, ErrForbidden
	}

	ctx, span := s.tracer.Start(ctx, "statistics.assignments", trace.WithAttributes(
		attribute.String("statistics.actor_id", actor.ID),
		attribute.String("statistics.role", actor.NormalizedRole()),
	))
	defer span.End()

	listing, err := s.source.ListAssignments(ctx, actor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_assignments_failed")
		s.logger.Error().Err(err).Str("actor_id", actor.ID).Msg("failed to list assignments for statistics")
		return statistics.Report{}, fmt.Errorf("%w: %w", ErrStatisticsUnavailable, err)
	}

	report, err := s.aggregator.Compute(ctx, listing.Assignments, func(fetchCtx context.Context, id string) (models.Assignment, error) {
		return s.source.FetchDetail(fetchCtx, actor, id)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation_cancelled")
		return statistics.Report{}, err
	}
	report.Reject(listing.Rejected...)

	span.SetAttributes(attribute.Bool("statistics.partial", report.Partial))
	if report.Partial {
		s.logger.Warn().
			Str("actor_id", actor.ID).
			Int("skipped", len(report.Skipped)).
			Msg("statistics report is partial")
	}

	return report, nil
}

func (s *statisticsService) ExportCSV(ctx context.Context, actor Actor, w io.Writer) (string, error) {
	report, err := s.GetAssignmentStatistics(ctx, actor)
	if err != nil {
		return "", err
	}
	if err := statistics.WriteCSV(w, report); err != nil {
		return "", err
	}
	return statistics.CSVFilename(report.GeneratedAt), nil
}
