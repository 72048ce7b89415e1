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

// Match pairs an unmatched request with the hearing that now exists for it.
type Match struct {
	Request request.Request
	Hearing hearing.Hearing
}

type Matcher struct {
	DB          *gorm.DB
	Hearings    *hearing.Store
	Dispatcher  Dispatcher
	Concurrency int
	Now         func() time.Time
}

// hasHearing holds when a request's id names a hearing directly or one of
// its citations. Courts without case numbers key hearings by a hash, so
// people can only ever text the citation number.
const hasHearing = "(EXISTS (SELECT 1 FROM hearings h WHERE h.case_id = requests.case_id)" +
	" OR EXISTS (SELECT 1 FROM citations c WHERE c.citation_id = requests.case_id))"

// Discover returns active requests with known_case=false whose id resolves
// to a hearing in the store, by case id or by citation number.
func (m *Matcher) Discover(ctx context.Context) ([]Match, error) {
	var reqs []request.Request
	err := m.DB.WithContext(ctx).
		Where("known_case = ? AND active = ?", false, true).
		Where(hasHearing).
		Order("id asc").
		Find(&reqs).Error
	if err != nil {
		return nil, errs.Wrap(err, "discover matches")
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.CaseID)
	}
	hearings, err := m.Hearings.FindByCaseIDs(ctx, ids)
	if err != nil {
		return nil, errs.Wrap(err, "load matched hearings")
	}

	out := make([]Match, 0, len(reqs))
	for _, r := range reqs {
		// a replace between the two reads can drop the hearing; the next pass
		// sees the new store
		h, ok := hearings[r.CaseID]
		if !ok {
			byCitation, err := m.Hearings.FindByCitation(ctx, r.CaseID)
			if errors.Is(err, hearing.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, errs.Wrapf(err, "resolve citation for request %d", r.ID)
			}
			h = *byCitation
		}
		out = append(out, Match{Request: r, Hearing: h})
	}
	return out, nil
}

// Run flips every discovered request to known and sends "matched".
func (m *Matcher) Run(ctx context.Context) (Report, error) {
	ctx = logging.WithAttrs(ctx, slog.String("component", "sweep.matcher"))
	start := time.Now()

	matches, err := m.Discover(ctx)
	if err != nil {
		return Report{Kind: notify.Matched}, err
	}

	outcomes, err := settle(ctx, m.Concurrency, matches, m.resolve)
	report := Report{Kind: notify.Matched, Outcomes: outcomes}
	logReport(ctx, report, time.Since(start))
	return report, err
}

func (m *Matcher) resolve(ctx context.Context, match Match) (Outcome, error) {
	r, h := match.Request, match.Hearing
	o := Outcome{RowID: r.ID, CaseID: h.CaseID, Kind: notify.Matched}

	// the request is rekeyed to the hearing's case id so reminders and
	// orphan retirement follow the hearing, not the number that was typed
	var flipped bool
	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&request.Request{}).
			Where("id = ? AND known_case = ? AND active = ?", r.ID, false, true).
			Updates(map[string]any{"known_case": true, "case_id": h.CaseID, "updated_at": clock(m.Now)})
		flipped = res.RowsAffected == 1
		return res.Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// the same phone already follows this hearing; retire the duplicate
		// without a second "matched"
		err = m.DB.WithContext(ctx).Model(&request.Request{}).
			Where("id = ? AND active = ?", r.ID, true).
			Updates(map[string]any{"active": false, "updated_at": clock(m.Now)}).Error
		if err != nil {
			return o, wrapRow(err, "retire duplicate request", r.ID)
		}
		o.Skipped = true
		return o, nil
	}
	if err != nil {
		return o, wrapRow(err, "mark request known", r.ID)
	}
	if !flipped {
		o.Skipped = true
		return o, nil
	}

	return dispatch(ctx, m.Dispatcher, o, notify.Message{
		CaseID: h.CaseID,
		Phone:  r.Phone,
		Kind:   notify.Matched,
		Data: message.Data{
			CaseID:     h.CaseID,
			CitationID: citationOf(r, h),
			Defendant:  h.Defendant,
			Room:       h.Room,
			Date:       h.Date,
		},
	})
}

func citationOf(r request.Request, h hearing.Hearing) string {
	if r.CaseID == h.CaseID {
		return ""
	}
	return r.CaseID
}
