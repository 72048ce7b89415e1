package hearing

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"courtbot/internal/calendar"
	"courtbot/internal/errs"
)

var ErrNotFound = errors.New("hearing not found")

const insertBatchSize = 500

type Store struct {
	DB *gorm.DB
}

// Replace swaps every hearing and citation for cases in one transaction, so
// readers see either the previous ingest or the new one, never a mix.
func (s *Store) Replace(ctx context.Context, cases []calendar.Case) error {
	hearings := make([]Hearing, 0, len(cases))
	var citations []Citation
	for _, c := range cases {
		hearings = append(hearings, Hearing{
			CaseID:    c.CaseID,
			Date:      c.Date.UTC(),
			Defendant: c.Defendant,
			Room:      c.Room,
			Type:      c.Type,
		})
		for _, ct := range c.Citations {
			citations = append(citations, Citation{
				CitationID:    ct.ID,
				CaseID:        c.CaseID,
				ViolationCode: ct.ViolationCode,
				Description:   ct.Description,
				Location:      ct.Location,
				Payable:       ct.Payable,
			})
		}
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`delete from citations`).Error; err != nil {
			return errs.Wrap(err, "clear citations")
		}
		if err := tx.Exec(`delete from hearings`).Error; err != nil {
			return errs.Wrap(err, "clear hearings")
		}
		if len(hearings) > 0 {
			if err := tx.CreateInBatches(&hearings, insertBatchSize).Error; err != nil {
				return errs.Wrap(err, "insert hearings")
			}
		}
		if len(citations) > 0 {
			if err := tx.CreateInBatches(&citations, insertBatchSize).Error; err != nil {
				return errs.Wrap(err, "insert citations")
			}
		}
		return nil
	})
}

// Add inserts one hearing without touching the rest of the store.
func (s *Store) Add(ctx context.Context, h *Hearing) error {
	h.Date = h.Date.UTC()
	return s.DB.WithContext(ctx).Create(h).Error
}

func (s *Store) FindByCaseID(ctx context.Context, caseID string) (*Hearing, error) {
	var h Hearing
	err := s.DB.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("date desc").
		First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// FindByCitation returns the hearing owning a citation number.
func (s *Store) FindByCitation(ctx context.Context, citationID string) (*Hearing, error) {
	var c Citation
	err := s.DB.WithContext(ctx).Where("citation_id = ?", citationID).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.FindByCaseID(ctx, c.CaseID)
}

// Lookup resolves an id a person typed: a case id first, then a citation number.
func (s *Store) Lookup(ctx context.Context, id string) (*Hearing, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return nil, ErrNotFound
	}
	h, err := s.FindByCaseID(ctx, id)
	if !errors.Is(err, ErrNotFound) {
		return h, err
	}
	return s.FindByCitation(ctx, id)
}

// FindByCaseIDs returns hearings keyed by case id.
func (s *Store) FindByCaseIDs(ctx context.Context, caseIDs []string) (map[string]Hearing, error) {
	out := make(map[string]Hearing, len(caseIDs))
	if len(caseIDs) == 0 {
		return out, nil
	}
	var rows []Hearing
	if err := s.DB.WithContext(ctx).
		Where("case_id IN ?", caseIDs).
		Order("date asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	// latest date wins when a case id appears twice
	for _, h := range rows {
		out[h.CaseID] = h
	}
	return out, nil
}

func (s *Store) Citations(ctx context.Context, caseID string) ([]Citation, error) {
	var out []Citation
	err := s.DB.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("id asc").
		Find(&out).Error
	return out, err
}

func (s *Store) Count(ctx context.Context) (hearings int64, citations int64, err error) {
	if err = s.DB.WithContext(ctx).Model(&Hearing{}).Count(&hearings).Error; err != nil {
		return 0, 0, err
	}
	if err = s.DB.WithContext(ctx).Model(&Citation{}).Count(&citations).Error; err != nil {
		return 0, 0, err
	}
	return hearings, citations, nil
}
