package calendar

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"courtbot/internal/errs"
	"courtbot/internal/logging"
)

// ErrEmptyExport is returned when an export yields no cases. The current
// hearings are kept rather than replaced by nothing.
var ErrEmptyExport = errors.New("calendar: export produced no cases")

// Replacer swaps the whole hearing store for a new set of cases.
type Replacer interface {
	Replace(ctx context.Context, cases []Case) error
}

type Ingester struct {
	Sources    Opener
	Normalizer *Normalizer
	Store      Replacer
}

type IngestReport struct {
	RunID      string
	Location   string
	Unreadable int
	NormalizeReport
	Duration time.Duration
}

func (i *Ingester) Run(ctx context.Context, location string) (IngestReport, error) {
	started := time.Now()
	report := IngestReport{RunID: uuid.NewString(), Location: location}
	ctx = logging.WithAttrs(ctx,
		slog.String("component", "calendar.ingest"),
		slog.String("run_id", report.RunID),
	)

	rc, err := i.Sources.Open(ctx, location)
	if err != nil {
		return report, errs.Wrap(err, "open export")
	}
	defer rc.Close()

	rows, bad, err := ReadRows(rc)
	if err != nil {
		return report, err
	}
	report.Unreadable = bad

	cases, nr := i.Normalizer.Normalize(ctx, rows)
	report.NormalizeReport = nr
	if len(cases) == 0 {
		return report, ErrEmptyExport
	}

	if err := i.Store.Replace(ctx, cases); err != nil {
		return report, errs.Wrap(err, "replace hearings")
	}

	report.Duration = time.Since(started)
	logging.Info(ctx, "export ingested",
		slog.String("location", location),
		slog.Int("rows", nr.Rows),
		slog.Int("cases", nr.Cases),
		slog.Int("citations", nr.Citations),
		slog.Int("unreadable", bad),
		slog.Any("skipped", nr.Skipped),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}
