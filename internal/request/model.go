package request

import "time"

// Request is a standing ask to be notified about a case. Phone is ciphertext.
// A (phone, case_id) pair is unique among active rows; inactive rows are kept
// for audit.
type Request struct {
	ID        uint64    `gorm:"primaryKey"`
	Phone     string    `gorm:"index;not null"`
	CaseID    string    `gorm:"index;not null"`
	KnownCase bool      `gorm:"not null;default:false"`
	Active    bool      `gorm:"index;not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"index;not null"`
}

// QueuedItem is the older single-notification form of a Request, keyed by a
// citation number instead of a case id.
type QueuedItem struct {
	ID         uint64    `gorm:"primaryKey"`
	CitationID string    `gorm:"index;not null"`
	Phone      string    `gorm:"index;not null"`
	Sent       bool      `gorm:"index;not null;default:false"`
	CreatedAt  time.Time `gorm:"index;not null"`
}

func (QueuedItem) TableName() string { return "queued" }
