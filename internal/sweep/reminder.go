package sweep

import (
	"context"
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

// Reminder sends one "reminder" per request and hearing date when the
// hearing is less than Lead away. A notification row for the same phone,
// case and hearing date marks the reminder as done, failed sends included.
type Reminder struct {
	DB          *gorm.DB
	Dispatcher  Dispatcher
	Lead        time.Duration
	Concurrency int
	Now         func() time.Time
}

type dueRow struct {
	RequestID uint64
	HearingID uint64
}

// FindDue returns the (request, hearing) pairs still owed a reminder.
func (r *Reminder) FindDue(ctx context.Context) ([]Match, error) {
	now := clock(r.Now)

	var rows []dueRow
	err := r.DB.WithContext(ctx).Raw(`
select r.id as request_id, h.id as hearing_id
from requests r
join hearings h on h.case_id = r.case_id
where r.active = ? and r.known_case = ?
  and h.date > ? and h.date <= ?
  and not exists (
    select 1 from notifications n
    where n.phone = r.phone and n.case_id = r.case_id
      and n.type = ? and n.event_date = h.date
  )
order by r.id asc
`, true, true, now, now.Add(r.Lead), string(notify.Reminder)).Scan(&rows).Error
	if err != nil {
		return nil, errs.Wrap(err, "find due reminders")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	reqIDs := make([]uint64, 0, len(rows))
	hearingIDs := make([]uint64, 0, len(rows))
	for _, row := range rows {
		reqIDs = append(reqIDs, row.RequestID)
		hearingIDs = append(hearingIDs, row.HearingID)
	}

	var reqs []request.Request
	if err := r.DB.WithContext(ctx).Where("id IN ?", reqIDs).Find(&reqs).Error; err != nil {
		return nil, errs.Wrap(err, "load reminder requests")
	}
	var hearings []hearing.Hearing
	if err := r.DB.WithContext(ctx).Where("id IN ?", hearingIDs).Find(&hearings).Error; err != nil {
		return nil, errs.Wrap(err, "load reminder hearings")
	}
	reqByID := make(map[uint64]request.Request, len(reqs))
	for _, q := range reqs {
		reqByID[q.ID] = q
	}
	hearingByID := make(map[uint64]hearing.Hearing, len(hearings))
	for _, h := range hearings {
		hearingByID[h.ID] = h
	}

	out := make([]Match, 0, len(rows))
	for _, row := range rows {
		q, okR := reqByID[row.RequestID]
		h, okH := hearingByID[row.HearingID]
		if okR && okH {
			out = append(out, Match{Request: q, Hearing: h})
		}
	}
	return out, nil
}

func (r *Reminder) Run(ctx context.Context) (Report, error) {
	ctx = logging.WithAttrs(ctx, slog.String("component", "sweep.reminder"))
	start := time.Now()

	due, err := r.FindDue(ctx)
	if err != nil {
		return Report{Kind: notify.Reminder}, err
	}

	outcomes, err := settle(ctx, r.Concurrency, due, r.remind)
	report := Report{Kind: notify.Reminder, Outcomes: outcomes}
	logReport(ctx, report, time.Since(start))
	return report, err
}

func (r *Reminder) remind(ctx context.Context, m Match) (Outcome, error) {
	q, h := m.Request, m.Hearing
	date := h.Date.UTC()
	return dispatch(ctx, r.Dispatcher, Outcome{RowID: q.ID, CaseID: q.CaseID, Kind: notify.Reminder}, notify.Message{
		CaseID:    q.CaseID,
		Phone:     q.Phone,
		Kind:      notify.Reminder,
		EventDate: &date,
		Data: message.Data{
			CaseID:    h.CaseID,
			Defendant: h.Defendant,
			Room:      h.Room,
			Date:      h.Date,
		},
	})
}
