package calendar

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // court zones must resolve in minimal images
)

// Layout describes where a court's export keeps each field. Column indices are
// zero based; -1 marks a column the court does not provide.
type Layout struct {
	Date          int `yaml:"date"`
	Time          int `yaml:"time"`
	Defendant     int `yaml:"defendant"`
	Room          int `yaml:"room"`
	CitationID    int `yaml:"citation_id"`
	ViolationCode int `yaml:"violation_code"`
	Description   int `yaml:"description"`
	Payable       int `yaml:"payable"`
	CaseNumber    int `yaml:"case_number"`
	Type          int `yaml:"type"`
	Location      int `yaml:"location"`

	MinFields   int    `yaml:"min_fields"`
	HeaderLabel string `yaml:"header_label"`
	DateFormat  string `yaml:"date_format"`
	TimeFormat  string `yaml:"time_format"`
	TimeZone    string `yaml:"time_zone"`

	// JunkMarkers are substrings the upstream parser appends to citation ids;
	// everything from the marker onward is dropped.
	JunkMarkers         []string `yaml:"junk_markers"`
	MinCitationIDLength int      `yaml:"min_citation_id_length"`
	RoomPrefixLength    int      `yaml:"room_prefix_length"`

	DatePolicy DatePolicy `yaml:"date_policy"`
}

func DefaultLayout() Layout {
	return Layout{
		Date:          0,
		Defendant:     1,
		Room:          2,
		Time:          3,
		CitationID:    4,
		ViolationCode: 5,
		Description:   6,
		Payable:       7,
		CaseNumber:    -1,
		Type:          -1,
		Location:      -1,

		MinFields:           8,
		HeaderLabel:         "date",
		DateFormat:          "01/02/2006",
		TimeFormat:          "3:04 PM",
		TimeZone:            "America/Anchorage",
		JunkMarkers:         []string{"Page "},
		MinCitationIDLength: 4,
		RoomPrefixLength:    4,
		DatePolicy:          LatestWins,
	}
}

func (l Layout) Validate() error {
	for name, idx := range map[string]int{"date": l.Date, "defendant": l.Defendant, "room": l.Room} {
		if idx < 0 {
			return fmt.Errorf("layout: %s column is required", name)
		}
		if l.MinFields > 0 && idx >= l.MinFields {
			return fmt.Errorf("layout: %s column %d beyond min_fields %d", name, idx, l.MinFields)
		}
	}
	if strings.TrimSpace(l.DateFormat) == "" {
		return fmt.Errorf("layout: date_format is required")
	}
	if _, err := l.location(); err != nil {
		return err
	}
	if !l.DatePolicy.valid() {
		return fmt.Errorf("layout: unknown date_policy %q", l.DatePolicy)
	}
	return nil
}

func (l Layout) location() (*time.Location, error) {
	if l.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(l.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("layout: time_zone %q: %w", l.TimeZone, err)
	}
	return loc, nil
}

// DatePolicy decides which date survives when duplicate rows disagree.
type DatePolicy string

const (
	LatestWins   DatePolicy = "latest"
	EarliestWins DatePolicy = "earliest"
	FirstSeen    DatePolicy = "first"
	LastSeen     DatePolicy = "last"
)

func (p DatePolicy) valid() bool {
	switch p {
	case "", LatestWins, EarliestWins, FirstSeen, LastSeen:
		return true
	}
	return false
}

// Resolve returns the date to keep given the stored one and a newly seen one.
func (p DatePolicy) Resolve(prev, next time.Time) time.Time {
	switch p {
	case EarliestWins:
		if next.Before(prev) {
			return next
		}
		return prev
	case FirstSeen:
		return prev
	case LastSeen:
		return next
	default:
		if next.After(prev) {
			return next
		}
		return prev
	}
}
