package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"courtbot/internal/logging"
)

// Row is one raw record of an export, fields kept positional.
type Row struct {
	Line   int
	Fields []string
}

type Citation struct {
	ID            string
	ViolationCode string
	Description   string
	Location      string
	Payable       bool
}

// Case is a deduplicated hearing with the citations seen for it.
type Case struct {
	CaseID    string
	Date      time.Time
	Defendant string
	Room      string
	Type      string
	Citations []Citation
}

// Skip reasons reported for rows dropped as parser noise.
const (
	SkipTooFewFields    = "too_few_fields"
	SkipHeader          = "header"
	SkipBadDate         = "bad_date"
	SkipNoDefendant     = "missing_defendant"
	SkipBadCitationID   = "bad_citation_id"
	SkipDuplicateRecord = "duplicate"
)

type NormalizeReport struct {
	Rows      int
	Cases     int
	Citations int
	Skipped   map[string]int
}

type Normalizer struct {
	layout Layout
	loc    *time.Location
}

func NewNormalizer(layout Layout) (*Normalizer, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	loc, err := layout.location()
	if err != nil {
		return nil, err
	}
	return &Normalizer{layout: layout, loc: loc}, nil
}

// Normalize collapses raw rows into cases. Output order follows the first
// appearance of each case in rows; dates are returned in UTC.
func (n *Normalizer) Normalize(ctx context.Context, rows []Row) ([]Case, NormalizeReport) {
	ctx = logging.WithAttrs(ctx, slog.String("component", "calendar.normalizer"))
	report := NormalizeReport{Rows: len(rows), Skipped: map[string]int{}}

	var order []*Case
	casesByKey := map[string]*Case{}
	// citation ids repeat across unrelated cases, so they are tracked per case
	seenCitations := map[string]struct{}{}

	skip := func(row Row, reason string) {
		report.Skipped[reason]++
		logging.Warn(ctx, "export row skipped",
			slog.Int("line", row.Line),
			slog.String("reason", reason),
			slog.Int("fields", len(row.Fields)),
		)
	}

	for _, row := range rows {
		if len(row.Fields) < n.layout.MinFields {
			skip(row, SkipTooFewFields)
			continue
		}
		if n.isHeader(row) {
			skip(row, SkipHeader)
			continue
		}

		newCase, err := n.caseFromRow(row)
		if err != nil {
			skip(row, err.Error())
			continue
		}
		caseKey := n.caseKey(row)

		citation, hasCitation := n.citationFromRow(row, newCase.Room)
		if !hasCitation && n.field(row, n.layout.CitationID) != "" {
			report.Skipped[SkipBadCitationID]++
			logging.Warn(ctx, "citation id discarded",
				slog.Int("line", row.Line),
				slog.String("case_id", newCase.CaseID),
			)
		}
		citationKey := ""
		if hasCitation {
			citationKey = citation.ID + "|" + citation.ViolationCode
		}

		prev, ok := casesByKey[caseKey]
		if !ok {
			c := newCase
			if hasCitation {
				c.Citations = append(c.Citations, citation)
				seenCitations[caseKey+"#"+citationKey] = struct{}{}
			}
			casesByKey[caseKey] = &c
			order = append(order, &c)
			continue
		}

		prev.Date = n.layout.DatePolicy.Resolve(prev.Date, newCase.Date)
		if !hasCitation {
			continue
		}
		if _, seen := seenCitations[caseKey+"#"+citationKey]; seen {
			report.Skipped[SkipDuplicateRecord]++
			continue
		}
		prev.Citations = append(prev.Citations, citation)
		seenCitations[caseKey+"#"+citationKey] = struct{}{}
	}

	out := make([]Case, 0, len(order))
	for _, c := range order {
		report.Citations += len(c.Citations)
		out = append(out, *c)
	}
	report.Cases = len(out)
	return out, report
}

func (n *Normalizer) isHeader(row Row) bool {
	if n.layout.HeaderLabel == "" || len(row.Fields) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(row.Fields[0]), n.layout.HeaderLabel)
}

type skipError string

func (e skipError) Error() string { return string(e) }

func (n *Normalizer) caseFromRow(row Row) (Case, error) {
	defendant := collapseSpaces(n.field(row, n.layout.Defendant))
	if defendant == "" {
		return Case{}, skipError(SkipNoDefendant)
	}
	date, err := n.parseDate(n.field(row, n.layout.Date), n.field(row, n.layout.Time))
	if err != nil {
		return Case{}, skipError(SkipBadDate)
	}

	c := Case{
		Date:      date,
		Defendant: defendant,
		Room:      collapseSpaces(n.field(row, n.layout.Room)),
		Type:      collapseSpaces(n.field(row, n.layout.Type)),
	}
	if number := n.field(row, n.layout.CaseNumber); number != "" {
		c.CaseID = strings.ToUpper(number)
	} else {
		c.CaseID = n.caseKey(row)
	}
	return c, nil
}

// caseKey hashes defendant and a stable prefix of the room, so the same
// logical case gets the same key on every ingest.
func (n *Normalizer) caseKey(row Row) string {
	room := strings.ToUpper(collapseSpaces(n.field(row, n.layout.Room)))
	if p := n.layout.RoomPrefixLength; p > 0 && len(room) > p {
		room = room[:p]
	}
	parts := []string{
		strings.ToUpper(n.field(row, n.layout.CaseNumber)),
		strings.ToLower(collapseSpaces(n.field(row, n.layout.Defendant))),
		room,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:20])
}

func (n *Normalizer) citationFromRow(row Row, room string) (Citation, bool) {
	id := n.cleanCitationID(n.field(row, n.layout.CitationID))
	if id == "" {
		return Citation{}, false
	}
	location := n.field(row, n.layout.Location)
	if location == "" {
		location = room
	}
	return Citation{
		ID:            id,
		ViolationCode: strings.ToUpper(n.field(row, n.layout.ViolationCode)),
		Description:   collapseSpaces(n.field(row, n.layout.Description)),
		Location:      collapseSpaces(location),
		Payable:       parseFlag(n.field(row, n.layout.Payable)),
	}, true
}

func (n *Normalizer) cleanCitationID(raw string) string {
	id := raw
	if i := strings.IndexAny(id, "\r\n"); i >= 0 {
		id = id[:i]
	}
	for _, marker := range n.layout.JunkMarkers {
		if marker == "" {
			continue
		}
		if i := strings.Index(id, marker); i >= 0 {
			id = id[:i]
		}
	}
	id = strings.ToUpper(strings.Join(strings.Fields(id), ""))
	if len(id) < n.layout.MinCitationIDLength {
		return ""
	}
	return id
}

func (n *Normalizer) parseDate(date, clock string) (time.Time, error) {
	if clock == "" || n.layout.TimeFormat == "" {
		t, err := time.ParseInLocation(n.layout.DateFormat, date, n.loc)
		return t.UTC(), err
	}
	t, err := time.ParseInLocation(n.layout.DateFormat+" "+n.layout.TimeFormat, date+" "+strings.ToUpper(clock), n.loc)
	if err != nil {
		// some exports use a 24 hour clock for part of the day's rows
		t, err = time.ParseInLocation(n.layout.DateFormat+" 15:04", date+" "+clock, n.loc)
	}
	return t.UTC(), err
}

func (n *Normalizer) field(row Row, idx int) string {
	if idx < 0 || idx >= len(row.Fields) {
		return ""
	}
	return strings.TrimSpace(row.Fields[idx])
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseFlag(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "Y", "YES", "TRUE", "T", "1", "X":
		return true
	}
	return false
}
