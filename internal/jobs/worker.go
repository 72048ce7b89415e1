package jobs

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"courtbot/internal/errs"
	"courtbot/internal/lock"
	"courtbot/internal/logging"
)

// Task is one unit of scheduled work. The summary is stored on the run row.
type Task func(ctx context.Context) (summary string, err error)

// Worker runs Task every Interval. After a failure the next attempt waits
// Backoff(attempts) instead, so the scheduler owns the retry policy and the
// task itself never retries.
type Worker struct {
	Type     string
	Interval time.Duration
	Task     Task
	Repo     *Repo
	Locker   lock.Locker
	// LockTTL bounds how long a crashed run can block the next one.
	LockTTL time.Duration
	Now     func() time.Time

	attempts int
}

func (w *Worker) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			wait := w.Interval
			if err := w.RunOnce(ctx); err != nil && !errors.Is(err, lock.ErrHeld) {
				wait = Backoff(w.attempts)
			}
			timer.Reset(wait)
		}
	}
}

// RunOnce executes the task once under the lock and records the run.
func (w *Worker) RunOnce(ctx context.Context) error {
	runID := uuid.NewString()
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "jobs.worker"),
		slog.String("job", w.Type),
		slog.String("run_id", runID),
	)

	if w.Locker != nil {
		release, err := w.Locker.TryLock(ctx, w.Type, w.lockTTL())
		if errors.Is(err, lock.ErrHeld) {
			logging.Info(ctx, "job skipped", slog.Any("reason", errs.Loggable(err)))
			return err
		}
		if err != nil {
			w.attempts++
			logging.Error(ctx, "job lock failed",
				slog.Int("attempts", w.attempts),
				slog.Duration("retry_in", Backoff(w.attempts)),
				slog.Any("err", errs.Loggable(err)),
			)
			return errs.Wrap(err, "acquire job lock")
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logging.Warn(ctx, "lock release failed", slog.Any("err", errs.Loggable(err)))
			}
		}()
	}

	run, err := w.Repo.Start(ctx, runID, w.Type, w.attempts+1, w.now())
	if err != nil {
		w.attempts++
		return errs.Wrap(err, "record job start")
	}

	summary, taskErr := w.Task(ctx)
	if taskErr != nil {
		w.attempts++
		logging.Error(ctx, "job failed",
			slog.Int("attempts", w.attempts),
			slog.Duration("retry_in", Backoff(w.attempts)),
			slog.Any("err", errs.Loggable(taskErr)),
		)
		if err := w.Repo.MarkFailed(context.WithoutCancel(ctx), run.ID, taskErr.Error(), w.now()); err != nil {
			logging.Warn(ctx, "record job failure", slog.Any("err", errs.Loggable(err)))
		}
		return taskErr
	}

	w.attempts = 0
	logging.Info(ctx, "job done", slog.String("summary", summary))
	if err := w.Repo.MarkDone(ctx, run.ID, summary, w.now()); err != nil {
		return errs.Wrap(err, "record job done")
	}
	return nil
}

// Backoff is 2^attempts seconds, capped at ten minutes.
func Backoff(attempts int) time.Duration {
	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	return time.Duration(sec) * time.Second
}

func (w *Worker) lockTTL() time.Duration {
	if w.LockTTL > 0 {
		return w.LockTTL
	}
	return 30 * time.Minute
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}
