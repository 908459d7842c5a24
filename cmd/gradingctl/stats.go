package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noah-isme/edunexa-api/internal/config"
	"github.com/noah-isme/edunexa-api/internal/lifecycle"
	"github.com/noah-isme/edunexa-api/internal/service"
	"github.com/noah-isme/edunexa-api/internal/statistics"
	"github.com/noah-isme/edunexa-api/pkg/lmsclient"
)

func newStatsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Compute teacher assignment statistics from the LMS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, v)
		},
	}

	f := cmd.Flags()
	f.StringP("format", "f", "table", "output format (table, json, csv)")
	f.Int("concurrency", 0, "assignment detail fetches in flight (EDUNEXA_STATISTICS_CONCURRENCY)")
	f.String("fetch-timeout", "", "timeout per assignment detail fetch (EDUNEXA_STATISTICS_FETCH_TIMEOUT)")
	bindFlags(v, f, map[string]string{
		"cli.format":               "format",
		"statistics.concurrency":   "concurrency",
		"statistics.fetch_timeout": "fetch-timeout",
	})
	return cmd
}

func runStats(cmd *cobra.Command, v *viper.Viper) error {
	format := strings.ToLower(strings.TrimSpace(v.GetString("cli.format")))
	switch format {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("unknown format %q: expected table, json or csv", format)
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.LMSToken) == "" {
		return errors.New("an LMS token is required (--token or EDUNEXA_LMS_TOKEN)")
	}

	logger := cliLogger(cmd, v)
	client, err := lmsclient.New(lmsclient.Config{
		BaseURL: cfg.LMSBaseURL,
		Timeout: cfg.LMSTimeout,
		Retries: cfg.LMSRetries,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	aggregator := statistics.NewAggregator(statistics.Options{
		Concurrency:  cfg.StatisticsConcurrency,
		FetchTimeout: cfg.StatisticsFetchTimeout,
		Logger:       logger,
	})
	stats := service.NewStatisticsService(
		service.NewLMSSource(client, lmsclient.Credential{Token: cfg.LMSToken}),
		aggregator, logger,
	)

	report, err := stats.GetAssignmentStatistics(cmd.Context(), service.Actor{ID: "gradingctl", Role: service.RoleAdmin})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "csv":
		return statistics.WriteCSV(out, report)
	default:
		return writeTable(out, report)
	}
}

func writeTable(w io.Writer, report statistics.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Assignments:\t%d\n", report.TotalAssignments)
	fmt.Fprintf(tw, "Submissions:\t%d (%d pending, %d graded)\n", report.TotalSubmissions, report.PendingSubmissions, report.GradedSubmissions)
	fmt.Fprintf(tw, "Completion:\t%.1f%%\n", report.CompletionRate)
	fmt.Fprintf(tw, "Average grade:\t%.2f\n", report.AverageGrade)
	if report.Partial {
		fmt.Fprintf(tw, "Partial:\t%d assignment(s) skipped\n", len(report.Skipped))
	}

	if len(report.GradingWorkload) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "PRIORITY\tASSIGNMENT\tCOURSE\tPENDING\tDEADLINE")
		for _, item := range report.GradingWorkload {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				item.Priority, item.AssignmentTitle, item.CourseTitle, item.PendingSubmissions,
				lifecycle.FormatDeadline(item.DueDate, report.GeneratedAt))
		}
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ASSIGNMENT\tCOURSE\tSUBMITTED\tGRADED\tAVG\tGRADE %")
	for _, perf := range report.AssignmentPerformance {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%.1f\n",
			perf.AssignmentTitle, perf.CourseTitle, perf.TotalSubmissions, perf.GradedSubmissions,
			perf.AverageGrade, perf.GradePercentage)
	}

	for _, skipped := range report.Skipped {
		name := skipped.AssignmentTitle
		if name == "" {
			name = skipped.AssignmentID
		}
		fmt.Fprintf(tw, "skipped\t%s\t%s\n", name, skipped.Reason)
	}

	return tw.Flush()
}
