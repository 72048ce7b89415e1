package notify

import "time"

type Kind string

const (
	Matched  Kind = "matched"
	Expired  Kind = "expired"
	Reminder Kind = "reminder"
)

// Notification is the append-only record of one dispatch attempt. A retried
// send is a new row. Phone is ciphertext; Error is nil on success.
type Notification struct {
	ID     uint64  `gorm:"primaryKey"`
	CaseID string  `gorm:"index;not null"`
	Phone  string  `gorm:"index;not null"`
	Type   string  `gorm:"index;not null"`
	Error  *string `gorm:"type:text"`
	// EventDate is the hearing date a reminder was sent for.
	EventDate *time.Time
	CreatedAt time.Time `gorm:"index;not null"`
}

func (n Notification) Failed() bool { return n.Error != nil }
