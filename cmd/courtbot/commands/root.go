package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"courtbot/internal/logging"
)

var (
	logFormat string
	logLevel  string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "courtbot",
		Short: "Court hearing SMS reminders",
		Long: `courtbot ingests the court calendar export, matches it against text
message subscriptions and sends matched, expired and reminder messages.

Configuration comes from the environment (and .env); see DATABASE_URL,
PHONE_ENCRYPTION_KEY and COURT_CONFIG.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd)
		},
	}

	root.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format: json or text")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewNotifyCmd(),
		NewRunCmd(),
		NewMigrateCmd(),
		NewAdminCmd(),
		NewVersionCmd(),
	)
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(cmd *cobra.Command) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		h = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	case "text":
		h = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	default:
		return fmt.Errorf("invalid --log-format %q", logFormat)
	}
	logging.SetLogger(slog.New(h))
	return nil
}
