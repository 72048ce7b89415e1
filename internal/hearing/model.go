package hearing

import "time"

// Hearing is the current scheduled appearance for a case. The table is
// replaced wholesale on every ingest.
type Hearing struct {
	ID        uint64    `gorm:"primaryKey"`
	CaseID    string    `gorm:"index;not null"`
	Date      time.Time `gorm:"index;not null"`
	Defendant string    `gorm:"not null;default:''"`
	Room      string    `gorm:"not null;default:''"`
	Type      string    `gorm:"not null;default:''"`
	CreatedAt time.Time `gorm:"not null"`
}

// Citation belongs to the hearing with the same CaseID. CitationID is the
// court's number and is not unique across cases.
type Citation struct {
	ID            uint64 `gorm:"primaryKey"`
	CitationID    string `gorm:"index;not null"`
	CaseID        string `gorm:"index;not null"`
	ViolationCode string `gorm:"not null;default:''"`
	Description   string `gorm:"type:text;not null;default:''"`
	Location      string `gorm:"not null;default:''"`
	Payable       bool   `gorm:"not null;default:false"`
}
