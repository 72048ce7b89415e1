package request

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"courtbot/internal/errs"
)

var (
	ErrNotFound     = errors.New("request not found")
	ErrInvalidInput = errors.New("request: phone and case id are required")
)

type Store struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create subscribes phone (ciphertext) to caseID. When an active request for
// the pair already exists it is returned unchanged with created=false.
func (s *Store) Create(ctx context.Context, phone, caseID string, knownCase bool) (req *Request, created bool, err error) {
	caseID = strings.ToUpper(strings.TrimSpace(caseID))
	if phone == "" || caseID == "" {
		return nil, false, ErrInvalidInput
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Request
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("phone = ? AND case_id = ? AND active = ?", phone, caseID, true).
			First(&existing).Error
		if err == nil {
			req = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := s.now()
		r := Request{
			Phone:     phone,
			CaseID:    caseID,
			KnownCase: knownCase,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
		req, created = &r, true
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a race with a concurrent insert of the same pair
		r, ferr := s.FindActive(ctx, phone, caseID)
		return r, false, ferr
	}
	if err != nil {
		return nil, false, errs.Wrap(err, "create request")
	}
	return req, created, nil
}

func (s *Store) FindActive(ctx context.Context, phone, caseID string) (*Request, error) {
	var r Request
	err := s.DB.WithContext(ctx).
		Where("phone = ? AND case_id = ? AND active = ?", phone, strings.ToUpper(caseID), true).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &r, err
}

func (s *Store) Get(ctx context.Context, id uint64) (*Request, error) {
	var r Request
	err := s.DB.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &r, err
}

// ListByPhone returns the active requests of one subscriber.
func (s *Store) ListByPhone(ctx context.Context, phone string) ([]Request, error) {
	var out []Request
	err := s.DB.WithContext(ctx).
		Where("phone = ? AND active = ?", phone, true).
		Order("id asc").
		Find(&out).Error
	return out, err
}

func (s *Store) ListByCase(ctx context.Context, caseID string) ([]Request, error) {
	var out []Request
	err := s.DB.WithContext(ctx).
		Where("case_id = ?", strings.ToUpper(caseID)).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// DeleteByPhone removes every request and queued item of a phone. Only the
// fixture cleanup path uses it; normal flows never delete requests.
func (s *Store) DeleteByPhone(ctx context.Context, phone string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("phone = ?", phone).Delete(&Request{}).Error; err != nil {
			return err
		}
		return tx.Where("phone = ?", phone).Delete(&QueuedItem{}).Error
	})
}

// Queue records a legacy queued item for a citation number.
func (s *Store) Queue(ctx context.Context, phone, citationID string) (*QueuedItem, error) {
	citationID = strings.ToUpper(strings.TrimSpace(citationID))
	if phone == "" || citationID == "" {
		return nil, ErrInvalidInput
	}

	var out *QueuedItem
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing QueuedItem
		err := tx.Where("phone = ? AND citation_id = ? AND sent = ?", phone, citationID, false).First(&existing).Error
		if err == nil {
			out = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		q := QueuedItem{CitationID: citationID, Phone: phone, CreatedAt: s.now()}
		if err := tx.Create(&q).Error; err != nil {
			return err
		}
		out = &q
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, "queue citation")
	}
	return out, nil
}
