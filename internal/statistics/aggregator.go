// Package statistics folds assignments and their submissions into the grading
// workload queue and the per-assignment performance table.
package statistics

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/models"
	"github.com/noah-isme/edunexa-api/internal/observability"
)

const (
	// DefaultConcurrency bounds the number of detail fetches in flight.
	DefaultConcurrency = 4
	// DefaultFetchTimeout bounds a single detail fetch.
	DefaultFetchTimeout = 15 * time.Second
)

// ErrFetchTimeout is reported for a detail fetch that exceeded its deadline.
var ErrFetchTimeout = errors.New("detail fetch timed out")

// FetchDetailFunc loads an assignment together with its submissions.
type FetchDetailFunc func(ctx context.Context, assignmentID string) (models.Assignment, error)

// Options configures an Aggregator. Zero values fall back to defaults.
type Options struct {
	Concurrency  int
	FetchTimeout time.Duration
	Now          func() time.Time
	Logger       zerolog.Logger
}

// Aggregator computes statistics reports.
type Aggregator struct {
	concurrency int
	timeout     time.Duration
	now         func() time.Time
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewAggregator builds an aggregator from options.
func NewAggregator(opts Options) *Aggregator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Aggregator{
		concurrency: concurrency,
		timeout:     timeout,
		now:         now,
		logger:      opts.Logger.With().Str("component", "statistics_aggregator").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/edunexa-api/internal/statistics"),
	}
}

type contribution struct {
	failure     *FetchFailure
	graded      int
	gradeSum    float64
	gradeCount  int
	workload    *WorkloadItem
	performance Performance
}

// Compute fetches the detail of every assignment and folds the results. A
// failed or timed out fetch skips that assignment's graded and grade figures
// but it still counts toward the totals. When ctx is cancelled the partial
// work is discarded and ctx.Err() is returned.
func (a *Aggregator) Compute(ctx context.Context, assignments []models.Assignment, fetch FetchDetailFunc) (Report, error) {
	ctx, span := a.tracer.Start(ctx, "statistics.compute", trace.WithAttributes(
		attribute.Int("statistics.assignments", len(assignments)),
	))
	defer span.End()

	start := time.Now()
	now := a.now()
	slots := make([]contribution, len(assignments))

	var group errgroup.Group
	group.SetLimit(a.concurrency)
	for i := range assignments {
		group.Go(func() error {
			slots[i] = a.contribute(ctx, assignments[i], fetch, now)
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return Report{}, err
	}

	report := merge(assignments, slots)
	report.GeneratedAt = now.UTC()

	observability.StatisticsDuration().Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("statistics.skipped", len(report.Skipped)),
		attribute.Int("statistics.graded", report.GradedSubmissions),
	)

	return report, nil
}

func (a *Aggregator) contribute(ctx context.Context, summary models.Assignment, fetch FetchDetailFunc, now time.Time) contribution {
	if ctx.Err() != nil {
		return contribution{}
	}

	if err := lifecycle.ValidateReportable(summary); err != nil {
		return a.skip(summary, "invalid", err)
	}

	detail, err := a.fetchWithTimeout(ctx, summary.ID, fetch)
	if err != nil {
		if ctx.Err() != nil {
			return contribution{}
		}
		outcome := "failed"
		if errors.Is(err, ErrFetchTimeout) {
			outcome = "timeout"
		}
		return a.skip(summary, outcome, err)
	}
	observability.StatisticsDetailFetches().WithLabelValues("ok").Inc()

	return fold(summary, detail.Submissions, now)
}

func (a *Aggregator) fetchWithTimeout(ctx context.Context, id string, fetch FetchDetailFunc) (models.Assignment, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	fetchCtx, span := a.tracer.Start(fetchCtx, "statistics.fetch_detail", trace.WithAttributes(
		attribute.String("assignment.id", id),
	))
	defer span.End()

	type result struct {
		assignment models.Assignment
		err        error
	}
	done := make(chan result, 1)
	go func() {
		assignment, err := fetch(fetchCtx, id)
		done <- result{assignment: assignment, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && ctx.Err() == nil {
				res.err = errors.Join(ErrFetchTimeout, res.err)
			}
			span.RecordError(res.err)
			span.SetStatus(codes.Error, "fetch_failed")
		}
		return res.assignment, res.err
	case <-fetchCtx.Done():
		err := fetchCtx.Err()
		if ctx.Err() == nil {
			err = ErrFetchTimeout
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch_abandoned")
		return models.Assignment{}, err
	}
}

func (a *Aggregator) skip(summary models.Assignment, outcome string, err error) contribution {
	observability.StatisticsDetailFetches().WithLabelValues(outcome).Inc()
	a.logger.Warn().
		Err(err).
		Str("assignment_id", summary.ID).
		Str("outcome", outcome).
		Msg("skipping assignment in statistics")

	return contribution{failure: &FetchFailure{
		AssignmentID:    summary.ID,
		AssignmentTitle: summary.Title,
		Reason:          err.Error(),
		Err:             err,
	}}
}

func fold(summary models.Assignment, submissions []models.Submission, now time.Time) contribution {
	c := contribution{graded: lifecycle.GradedCount(submissions)}
	for _, submission := range submissions {
		if submission.Grade != nil {
			c.gradeSum += *submission.Grade
			c.gradeCount++
		}
	}

	pending := summary.SubmissionCount - c.graded
	if pending > 0 {
		days := lifecycle.DaysUntilDeadline(summary.DueDate, now)
		c.workload = &WorkloadItem{
			AssignmentID:       summary.ID,
			AssignmentTitle:    summary.Title,
			CourseTitle:        summary.CourseTitle,
			DueDate:            summary.DueDate,
			DaysUntilDeadline:  days,
			PendingSubmissions: pending,
			TotalSubmissions:   summary.SubmissionCount,
			Priority:           lifecycle.PriorityFor(days, pending),
		}
	}

	average := 0.0
	if c.gradeCount > 0 {
		average = c.gradeSum / float64(c.gradeCount)
	}
	percentage := 0.0
	rate := 0.0
	if summary.MaxPoints > 0 {
		percentage = average / summary.MaxPoints * 100
		// Divides by max points, not enrollment. Kept for compatibility with existing reports.
		rate = float64(summary.SubmissionCount) / summary.MaxPoints * 100
	}

	c.performance = Performance{
		AssignmentID:      summary.ID,
		AssignmentTitle:   summary.Title,
		CourseTitle:       summary.CourseTitle,
		MaxPoints:         summary.MaxPoints,
		TotalSubmissions:  summary.SubmissionCount,
		GradedSubmissions: c.graded,
		SubmissionRate:    rate,
		AverageGrade:      average,
		GradePercentage:   percentage,
		DueDate:           summary.DueDate,
		CreatedAt:         summary.CreatedAt,
	}

	return c
}

func merge(assignments []models.Assignment, slots []contribution) Report {
	report := Report{
		TotalAssignments:      len(assignments),
		GradingWorkload:       []WorkloadItem{},
		AssignmentPerformance: []Performance{},
	}

	gradeSum := 0.0
	gradeCount := 0
	for i, assignment := range assignments {
		report.TotalSubmissions += assignment.SubmissionCount

		slot := slots[i]
		if slot.failure != nil {
			report.Skipped = append(report.Skipped, *slot.failure)
			continue
		}
		report.GradedSubmissions += slot.graded
		gradeSum += slot.gradeSum
		gradeCount += slot.gradeCount
		if slot.workload != nil {
			report.GradingWorkload = append(report.GradingWorkload, *slot.workload)
		}
		report.AssignmentPerformance = append(report.AssignmentPerformance, slot.performance)
	}

	// Summary counts and fetched details may disagree; pending then goes
	// negative rather than being hidden.
	report.PendingSubmissions = report.TotalSubmissions - report.GradedSubmissions
	if report.TotalSubmissions > 0 {
		report.CompletionRate = float64(report.GradedSubmissions) / float64(report.TotalSubmissions) * 100
		if report.CompletionRate > 100 {
			report.CompletionRate = 100
		}
	}
	if gradeCount > 0 {
		report.AverageGrade = gradeSum / float64(gradeCount)
	}
	report.Partial = len(report.Skipped) > 0

	lifecycle.SortByPriority(report.GradingWorkload, func(item WorkloadItem) lifecycle.Priority {
		return item.Priority
	})
	sort.SliceStable(report.AssignmentPerformance, func(i, j int) bool {
		return report.AssignmentPerformance[i].CreatedAt.After(report.AssignmentPerformance[j].CreatedAt)
	})

	return report
}
