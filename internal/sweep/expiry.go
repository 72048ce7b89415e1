package sweep

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"courtbot/internal/errs"
	"courtbot/internal/logging"
	"courtbot/internal/message"
	"courtbot/internal/notify"
	"courtbot/internal/request"
)

const noHearing = "NOT " + hasHearing

type Expirer struct {
	DB          *gorm.DB
	Dispatcher  Dispatcher
	TTL         time.Duration
	Concurrency int
	Now         func() time.Time
}

// FindExpired returns active unmatched requests untouched for longer than
// the TTL that still have no hearing.
func (e *Expirer) FindExpired(ctx context.Context) ([]request.Request, error) {
	cutoff := clock(e.Now).Add(-e.TTL)
	var out []request.Request
	err := e.DB.WithContext(ctx).
		Where("known_case = ? AND active = ? AND updated_at < ?", false, true, cutoff).
		Where(noHearing).
		Order("id asc").
		Find(&out).Error
	if err != nil {
		return nil, errs.Wrap(err, "find expired requests")
	}
	return out, nil
}

// Run deactivates every expired request and sends "expired".
func (e *Expirer) Run(ctx context.Context) (Report, error) {
	ctx = logging.WithAttrs(ctx, slog.String("component", "sweep.expirer"))
	start := time.Now()

	expired, err := e.FindExpired(ctx)
	if err != nil {
		return Report{Kind: notify.Expired}, err
	}

	outcomes, err := settle(ctx, e.Concurrency, expired, e.resolve)
	report := Report{Kind: notify.Expired, Outcomes: outcomes}
	logReport(ctx, report, time.Since(start))
	return report, err
}

func (e *Expirer) resolve(ctx context.Context, r request.Request) (Outcome, error) {
	o := Outcome{RowID: r.ID, CaseID: r.CaseID, Kind: notify.Expired}

	var flipped bool
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// repeat the read predicates so a hearing that arrived since the read
		// keeps the request alive for the matcher
		res := tx.Model(&request.Request{}).
			Where("id = ? AND known_case = ? AND active = ?", r.ID, false, true).
			Where(noHearing).
			Updates(map[string]any{"active": false, "updated_at": clock(e.Now)})
		flipped = res.RowsAffected == 1
		return res.Error
	})
	if err != nil {
		return o, wrapRow(err, "expire request", r.ID)
	}
	if !flipped {
		o.Skipped = true
		return o, nil
	}

	return dispatch(ctx, e.Dispatcher, o, notify.Message{
		CaseID: r.CaseID,
		Phone:  r.Phone,
		Kind:   notify.Expired,
		Data:   message.Data{CaseID: r.CaseID},
	})
}

// RetireOrphans deactivates known requests whose hearing left the store,
// typically because the hearing date passed. Nothing is sent.
func (e *Expirer) RetireOrphans(ctx context.Context) (int64, error) {
	res := e.DB.WithContext(ctx).Model(&request.Request{}).
		Where("known_case = ? AND active = ?", true, true).
		Where(noHearing).
		Updates(map[string]any{"active": false, "updated_at": clock(e.Now)})
	if res.Error != nil {
		return 0, errs.Wrap(res.Error, "retire orphaned requests")
	}
	if res.RowsAffected > 0 {
		logging.Info(ctx, "retired requests without a hearing",
			slog.String("component", "sweep.expirer"),
			slog.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
