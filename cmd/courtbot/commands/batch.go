package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"courtbot/internal/lock"
)

func NewIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [location]",
		Short: "Replace the hearing store with one calendar export",
		Long: `Read a calendar export and atomically replace every stored hearing and
citation with its contents. The location is a local path, an http(s) URL or
s3://bucket/key; it defaults to DATA_URL.

Examples:
  courtbot ingest ./calendar.csv
  courtbot ingest s3://court-exports/today.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, jobIngest, func(a *app) string {
				if len(args) == 1 {
					return args[0]
				}
				return a.cfg.DataURL
			})
		},
	}
}

func NewNotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Run one notification cycle",
		Long: `Match new hearings, expire stale requests, retire requests whose hearing
is gone, send due reminders and, with LEGACY_QUEUE, drain the queue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, jobCycle, nil)
		},
	}
}

// runBatch runs one job under the lock and prints its summary. A held lock
// is reported but is not a failure.
func runBatch(cmd *cobra.Command, typ string, location func(*app) string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	task := a.cycleTask()
	if location != nil {
		task = a.ingestTask(location(a))
	}

	var summary string
	w := a.worker(typ, func(ctx context.Context) (string, error) {
		s, err := task(ctx)
		summary = s
		return s, err
	})
	err = w.RunOnce(ctx)
	if errors.Is(err, lock.ErrHeld) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s already running elsewhere; skipped\n", typ)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), summary)
	return nil
}

func NewRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Ingest and notify on a schedule until stopped",
		Long: `Every RUN_INTERVAL, ingest DATA_URL (when set) and run a notification
cycle. Failures are retried with exponential backoff.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			err = a.worker(jobCycle, a.scheduledTask()).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
