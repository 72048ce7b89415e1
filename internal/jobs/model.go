package jobs

import "time"

const (
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

// Run is the audit row of one scheduled task execution.
type Run struct {
	ID     uint64 `gorm:"primaryKey" json:"id"`
	RunID  string `gorm:"uniqueIndex;not null" json:"run_id"`
	Type   string `gorm:"type:text;not null" json:"type"` // INGEST / CYCLE
	Status string `gorm:"index;not null" json:"status"`

	// Attempts counts consecutive failures before this run, including it.
	Attempts  int     `gorm:"not null;default:0" json:"attempts"`
	Summary   string  `gorm:"type:text" json:"summary"`
	LastError *string `gorm:"type:text" json:"last_error"`

	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

func (Run) TableName() string { return "job_runs" }
