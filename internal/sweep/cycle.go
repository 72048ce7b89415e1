package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"courtbot/internal/logging"
)

// Cycle is one notification pass. Matching runs before expiry so a request
// whose hearing arrived today is matched rather than expired.
type Cycle struct {
	Matcher  *Matcher
	Expirer  *Expirer
	Reminder *Reminder
	// Queue is nil unless the legacy queue is enabled.
	Queue *QueueSweep
}

type CycleReport struct {
	RunID    string
	Matched  Report
	Expired  Report
	Retired  int64
	Reminded Report
	Queue    Report
	Duration time.Duration
}

func (r CycleReport) Summary() string {
	return fmt.Sprintf("matched=%d expired=%d retired=%d reminded=%d queue=%d failed=%d",
		len(r.Matched.Outcomes)-r.Matched.Skipped(),
		len(r.Expired.Outcomes)-r.Expired.Skipped(),
		r.Retired,
		r.Reminded.Sent(),
		len(r.Queue.Outcomes)-r.Queue.Skipped(),
		r.Matched.Failed()+r.Expired.Failed()+r.Reminded.Failed()+r.Queue.Failed(),
	)
}

// Run executes the passes in order and stops at the first persistence
// failure. Failed sends do not stop the cycle; they are in the report.
func (c *Cycle) Run(ctx context.Context) (CycleReport, error) {
	rep := CycleReport{RunID: uuid.NewString()}
	ctx = logging.WithAttrs(ctx, slog.String("run_id", rep.RunID))
	start := time.Now()

	var err error
	if rep.Matched, err = c.Matcher.Run(ctx); err != nil {
		return rep, fmt.Errorf("matcher: %w", err)
	}
	if rep.Expired, err = c.Expirer.Run(ctx); err != nil {
		return rep, fmt.Errorf("expiry: %w", err)
	}
	if rep.Retired, err = c.Expirer.RetireOrphans(ctx); err != nil {
		return rep, fmt.Errorf("expiry: %w", err)
	}
	if c.Reminder != nil {
		if rep.Reminded, err = c.Reminder.Run(ctx); err != nil {
			return rep, fmt.Errorf("reminder: %w", err)
		}
	}
	if c.Queue != nil {
		if rep.Queue, err = c.Queue.Run(ctx); err != nil {
			return rep, fmt.Errorf("queue: %w", err)
		}
	}

	rep.Duration = time.Since(start)
	logging.Info(ctx, "notification cycle done",
		slog.String("component", "sweep.cycle"),
		slog.String("summary", rep.Summary()),
		slog.Duration("took", rep.Duration))
	return rep, nil
}
