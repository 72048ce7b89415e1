package sweep

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"courtbot/internal/errs"
	"courtbot/internal/hearing"
	"courtbot/internal/logging"
	"courtbot/internal/message"
	"courtbot/internal/notify"
	"courtbot/internal/request"
)

const citationExists = "EXISTS (SELECT 1 FROM citations c WHERE c.citation_id = queued.citation_id)"

// QueueSweep drains the legacy queue. An unsent item whose citation has
// appeared is marked sent and gets "matched"; one older than the TTL with no
// citation is marked sent and gets "expired".
type QueueSweep struct {
	DB          *gorm.DB
	Hearings    *hearing.Store
	Dispatcher  Dispatcher
	TTL         time.Duration
	Concurrency int
	Now         func() time.Time
}

type queuedWork struct {
	item  request.QueuedItem
	kind  notify.Kind
	guard string
}

func (q *QueueSweep) Run(ctx context.Context) (Report, error) {
	ctx = logging.WithAttrs(ctx, slog.String("component", "sweep.queue"))
	start := time.Now()
	// found items lead the pass; each outcome carries its own kind
	report := Report{Kind: notify.Matched}

	var found, stale []request.QueuedItem
	err := q.DB.WithContext(ctx).
		Where("sent = ?", false).Where(citationExists).
		Order("id asc").Find(&found).Error
	if err != nil {
		return report, errs.Wrap(err, "find found queued items")
	}
	err = q.DB.WithContext(ctx).
		Where("sent = ? AND created_at < ?", false, clock(q.Now).Add(-q.TTL)).
		Where("NOT " + citationExists).
		Order("id asc").Find(&stale).Error
	if err != nil {
		return report, errs.Wrap(err, "find stale queued items")
	}

	work := make([]queuedWork, 0, len(found)+len(stale))
	for _, it := range found {
		work = append(work, queuedWork{item: it, kind: notify.Matched, guard: citationExists})
	}
	for _, it := range stale {
		work = append(work, queuedWork{item: it, kind: notify.Expired, guard: "NOT " + citationExists})
	}

	outcomes, err := settle(ctx, q.Concurrency, work, q.resolve)
	report.Outcomes = outcomes
	logReport(ctx, report, time.Since(start))
	return report, err
}

func (q *QueueSweep) resolve(ctx context.Context, w queuedWork) (Outcome, error) {
	it := w.item
	o := Outcome{RowID: it.ID, CaseID: it.CitationID, Kind: w.kind}

	var flipped bool
	err := q.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&request.QueuedItem{}).
			Where("id = ? AND sent = ?", it.ID, false).
			Where(w.guard).
			Update("sent", true)
		flipped = res.RowsAffected == 1
		return res.Error
	})
	if err != nil {
		return o, wrapRow(err, "mark queued item sent", it.ID)
	}
	if !flipped {
		o.Skipped = true
		return o, nil
	}

	m := notify.Message{
		CaseID: it.CitationID,
		Phone:  it.Phone,
		Kind:   w.kind,
		Data:   message.Data{CaseID: it.CitationID, CitationID: it.CitationID},
	}
	if w.kind == notify.Matched {
		h, err := q.Hearings.FindByCitation(ctx, it.CitationID)
		switch {
		case err == nil:
			m.CaseID = h.CaseID
			o.CaseID = h.CaseID
			m.Data = message.Data{
				CaseID:     h.CaseID,
				CitationID: it.CitationID,
				Defendant:  h.Defendant,
				Room:       h.Room,
				Date:       h.Date,
			}
		case errors.Is(err, hearing.ErrNotFound):
			// the citation vanished in a concurrent replace; send what we know
		default:
			return o, wrapRow(err, "load hearing for queued item", it.ID)
		}
	}
	return dispatch(ctx, q.Dispatcher, o, m)
}
