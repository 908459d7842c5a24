package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noah-isme/edunexa-api/internal/lifecycle"
)

func newDeadlineCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadline <due-date>",
		Short:   "Describe a due date relative to now",
		Example: "  gradingctl deadline 2024-03-01T23:59:00Z --pending 4",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeadline(cmd, v, args[0])
		},
	}

	f := cmd.Flags()
	f.String("now", "", "reference instant instead of the current time")
	f.Int("pending", 0, "ungraded submissions, used to derive the grading priority")
	bindFlags(v, f, map[string]string{
		"cli.now":     "now",
		"cli.pending": "pending",
	})
	return cmd
}

func runDeadline(cmd *cobra.Command, v *viper.Viper, raw string) error {
	due, err := lifecycle.ParseInstant("due_date", raw)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if value := strings.TrimSpace(v.GetString("cli.now")); value != "" {
		now, err = lifecycle.ParseInstant("now", value)
		if err != nil {
			return err
		}
	}

	days := lifecycle.DaysUntilDeadline(due, now)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, lifecycle.FormatDeadline(due, now))
	fmt.Fprintf(out, "due:      %s\n", due.Format(time.RFC3339))
	fmt.Fprintf(out, "days:     %d\n", days)
	fmt.Fprintf(out, "priority: %s\n", lifecycle.PriorityFor(days, v.GetInt("cli.pending")))
	return nil
}
