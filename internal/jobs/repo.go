package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) Start(ctx context.Context, runID, typ string, attempts int, at time.Time) (*Run, error) {
	run := Run{
		RunID:     runID,
		Type:      typ,
		Status:    StatusRunning,
		Attempts:  attempts,
		StartedAt: at.UTC(),
	}
	if err := r.DB.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repo) MarkDone(ctx context.Context, id uint64, summary string, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&Run{}).Where("id = ?", id).Updates(map[string]any{
		"status":      StatusDone,
		"summary":     summary,
		"finished_at": at.UTC(),
	}).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&Run{}).Where("id = ?", id).Updates(map[string]any{
		"status":      StatusFailed,
		"last_error":  errMsg,
		"finished_at": at.UTC(),
	}).Error
}

// Recent lists the latest runs, newest first. An empty typ matches all.
func (r *Repo) Recent(ctx context.Context, typ string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := r.DB.WithContext(ctx).Order("started_at desc, id desc").Limit(limit)
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var out []Run
	return out, q.Find(&out).Error
}
