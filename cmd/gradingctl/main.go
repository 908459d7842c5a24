// Command gradingctl inspects assignment deadlines and grading statistics
// from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/noah-isme/edunexa-api/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:          "gradingctl",
		Short:        "Inspect assignment deadlines and grading statistics",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("lms-url", "", "LMS API base URL (EDUNEXA_LMS_BASE_URL)")
	flags.String("token", "", "bearer token sent to the LMS (EDUNEXA_LMS_TOKEN)")
	flags.String("timeout", "", "HTTP timeout per LMS request (EDUNEXA_LMS_TIMEOUT)")
	flags.Int("retries", 0, "retries for failed LMS reads (EDUNEXA_LMS_RETRIES)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	bindFlags(v, flags, map[string]string{
		"lms.base_url":  "lms-url",
		"lms.token":     "token",
		"lms.timeout":   "timeout",
		"lms.retries":   "retries",
		"cli.log_level": "log-level",
	})

	root.AddCommand(newStatsCmd(v), newDeadlineCmd(v))
	return root
}

// bindFlags maps config keys onto flags. Unset flags fall back to the
// environment and then to the registered defaults.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

func cliLogger(cmd *cobra.Command, v *viper.Viper) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(v.GetString("cli.log_level")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true}).
		Level(level).
		With().Timestamp().Str("app", "gradingctl").
		Logger()
}
