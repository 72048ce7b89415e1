// Package sweep holds the batch passes over the request store: matching new
// hearings, expiring stale requests, sending hearing reminders and draining
// the legacy queue. Each pass flips database state first and only then tries
// to notify, so a failed send never undoes or repeats a state change.
package sweep

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"courtbot/internal/errs"
	"courtbot/internal/logging"
	"courtbot/internal/notify"
)

type Dispatcher interface {
	Notify(ctx context.Context, m notify.Message) (notify.Result, error)
}

// Outcome is the settled result of one row in a sweep.
type Outcome struct {
	RowID  uint64
	CaseID string
	Kind   notify.Kind
	// Skipped is set when the row was already resolved by the time its
	// transition ran; nothing was sent.
	Skipped      bool
	Notification *notify.Notification
	// SendErr is the delivery failure recorded on Notification.
	SendErr error
}

type Report struct {
	Kind     notify.Kind
	Outcomes []Outcome
}

func (r Report) Sent() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Skipped && o.SendErr == nil && o.Notification != nil {
			n++
		}
	}
	return n
}

func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.SendErr != nil {
			n++
		}
	}
	return n
}

func (r Report) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Skipped {
			n++
		}
	}
	return n
}

// settle runs fn for every item with at most limit in flight. A failing item
// never cancels its siblings; every item settles before the joined
// persistence errors are returned.
func settle[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) (Outcome, error)) ([]Outcome, error) {
	if limit <= 0 {
		limit = 8
	}
	outcomes := make([]Outcome, len(items))

	var (
		mu       sync.Mutex
		failures []error
	)
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			o, err := fn(ctx, item)
			outcomes[i] = o
			if err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errors.Join(failures...)
}

// dispatch sends m and folds the result into o.
func dispatch(ctx context.Context, d Dispatcher, o Outcome, m notify.Message) (Outcome, error) {
	res, err := d.Notify(ctx, m)
	if err != nil {
		return o, err
	}
	o.Notification = &res.Notification
	o.SendErr = res.Err
	return o, nil
}

func logReport(ctx context.Context, r Report, took time.Duration) {
	attrs := []slog.Attr{
		slog.Int("rows", len(r.Outcomes)),
		slog.Int("sent", r.Sent()),
		slog.Int("failed", r.Failed()),
		slog.Int("skipped", r.Skipped()),
		slog.Duration("took", took),
	}
	if r.Failed() > 0 {
		logging.Warn(ctx, "sweep finished with failed sends", attrs...)
		return
	}
	logging.Info(ctx, "sweep finished", attrs...)
}

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return time.Now().UTC()
}

func wrapRow(err error, what string, id uint64) error {
	return errs.Wrapf(err, "%s %d", what, id)
}
