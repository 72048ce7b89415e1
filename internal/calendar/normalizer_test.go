package calendar

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLayout() Layout {
	l := DefaultLayout()
	l.TimeZone = "UTC"
	return l
}

func newTestNormalizer(t *testing.T, l Layout) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(l)
	require.NoError(t, err)
	return n
}

func rowsOf(lines ...string) []Row {
	rows := make([]Row, 0, len(lines))
	for i, line := range lines {
		rows = append(rows, Row{Line: i + 1, Fields: strings.Split(line, ",")})
	}
	return rows
}

func TestNormalizeMergesCitationsForSameCase(t *testing.T) {
	n := newTestNormalizer(t, testLayout())

	cases, report := n.Normalize(context.Background(), rowsOf(
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928456,PK11,No parking,Y",
		"10/21/2026,TURNER  FREDERICK,CNVCRT,9:00 AM,4928457,SP20,Speeding,N",
		"10/21/2026,SMITH JANE,ROOM 3,1:30 PM,5550001,PK11,No parking,Y",
	))

	require.Len(t, cases, 2)
	assert.Equal(t, "TURNER FREDERICK", cases[0].Defendant)
	require.Len(t, cases[0].Citations, 2)
	assert.Equal(t, "4928456", cases[0].Citations[0].ID)
	assert.True(t, cases[0].Citations[0].Payable)
	assert.Equal(t, "CNVCRT", cases[0].Citations[0].Location)
	assert.Equal(t, "4928457", cases[0].Citations[1].ID)
	assert.False(t, cases[0].Citations[1].Payable)
	assert.Equal(t, time.Date(2026, 10, 21, 13, 30, 0, 0, time.UTC), cases[1].Date)
	assert.Equal(t, 2, report.Cases)
	assert.Equal(t, 3, report.Citations)
}

func TestNormalizeIsIdempotentForDuplicateRows(t *testing.T) {
	n := newTestNormalizer(t, testLayout())
	lines := []string{
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928456,PK11,No parking,Y",
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928456,PK11,No parking,Y",
	}

	once, _ := n.Normalize(context.Background(), rowsOf(lines...))
	twice, report := n.Normalize(context.Background(), rowsOf(append(lines, lines...)...))

	require.Len(t, once, 1)
	assert.Equal(t, once, twice)
	assert.Len(t, twice[0].Citations, 1)
	assert.Equal(t, 3, report.Skipped[SkipDuplicateRecord])
}

func TestNormalizeLatestDateWinsInEitherOrder(t *testing.T) {
	n := newTestNormalizer(t, testLayout())
	early := "10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928456,PK11,No parking,Y"
	late := "10/28/2026,TURNER FREDERICK,CNVCRT,10:00 AM,4928456,PK11,No parking,Y"
	want := time.Date(2026, 10, 28, 10, 0, 0, 0, time.UTC)

	forward, _ := n.Normalize(context.Background(), rowsOf(early, late))
	backward, _ := n.Normalize(context.Background(), rowsOf(late, early))

	require.Len(t, forward, 1)
	require.Len(t, backward, 1)
	assert.Equal(t, want, forward[0].Date)
	assert.Equal(t, want, backward[0].Date)
}

func TestNormalizeDatePolicyIsConfigurable(t *testing.T) {
	l := testLayout()
	l.DatePolicy = EarliestWins
	n := newTestNormalizer(t, l)

	cases, _ := n.Normalize(context.Background(), rowsOf(
		"10/28/2026,TURNER FREDERICK,CNVCRT,10:00 AM,4928456,PK11,No parking,Y",
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928457,PK11,No parking,Y",
	))
	require.Len(t, cases, 1)
	assert.Equal(t, time.Date(2026, 10, 21, 9, 0, 0, 0, time.UTC), cases[0].Date)
}

func TestNormalizeDropsParserNoise(t *testing.T) {
	n := newTestNormalizer(t, testLayout())

	cases, report := n.Normalize(context.Background(), rowsOf(
		"DATE,DEFENDANT,ROOM,TIME,ID,VIOLATION,DESCRIPTION,PAYABLE",
		"10/21/2026,TURNER FREDERICK,CNVCRT",
		"not a date,TURNER FREDERICK,CNVCRT,9:00 AM,4928456,PK11,No parking,Y",
		"10/21/2026, ,CNVCRT,9:00 AM,4928456,PK11,No parking,Y",
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928456,PK11,No parking,Y",
	))

	require.Len(t, cases, 1)
	assert.Equal(t, 1, report.Skipped[SkipHeader])
	assert.Equal(t, 1, report.Skipped[SkipTooFewFields])
	assert.Equal(t, 1, report.Skipped[SkipBadDate])
	assert.Equal(t, 1, report.Skipped[SkipNoDefendant])
}

func TestNormalizeCleansCitationIDs(t *testing.T) {
	n := newTestNormalizer(t, testLayout())

	cases, report := n.Normalize(context.Background(), rowsOf(
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928456Page 3 of 9,PK11,No parking,Y",
		"10/21/2026,SMITH JANE,ROOM 3,9:00 AM,49,PK11,No parking,Y",
		"10/21/2026,DOE JOHN,ROOM 4,9:00 AM,,PK11,No parking,Y",
	))

	require.Len(t, cases, 3)
	require.Len(t, cases[0].Citations, 1)
	assert.Equal(t, "4928456", cases[0].Citations[0].ID)
	assert.Empty(t, cases[1].Citations, "truncated id is dropped")
	assert.Empty(t, cases[2].Citations)
	assert.Equal(t, 1, report.Skipped[SkipBadCitationID])
}

func TestNormalizeReusedCitationIDsStaySeparate(t *testing.T) {
	n := newTestNormalizer(t, testLayout())

	cases, _ := n.Normalize(context.Background(), rowsOf(
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,1000,PK11,No parking,Y",
		"10/21/2026,SMITH JANE,ROOM 3,9:00 AM,1000,PK11,No parking,Y",
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,1000,SP20,Speeding,N",
	))

	require.Len(t, cases, 2)
	assert.Len(t, cases[0].Citations, 2)
	assert.Len(t, cases[1].Citations, 1)
}

func TestCaseKeyIsStableAcrossDaysAndRoomSuffix(t *testing.T) {
	n := newTestNormalizer(t, testLayout())

	a, _ := n.Normalize(context.Background(), rowsOf("10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928456,PK11,x,Y"))
	b, _ := n.Normalize(context.Background(), rowsOf("11/02/2026,Turner Frederick,CNVCRT B,2:00 PM,4928456,PK11,x,Y"))

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].CaseID, b[0].CaseID)
	assert.Len(t, a[0].CaseID, 20)
}

func TestCaseNumberColumnIsUsedAsCaseID(t *testing.T) {
	l := testLayout()
	l.CaseNumber = 8
	n := newTestNormalizer(t, l)

	cases, _ := n.Normalize(context.Background(), rowsOf(
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928456,PK11,x,Y,3an-26-0042",
	))
	require.Len(t, cases, 1)
	assert.Equal(t, "3AN-26-0042", cases[0].CaseID)
}

func TestNormalizeConvertsCourtTimeZoneToUTC(t *testing.T) {
	l := testLayout()
	l.TimeZone = "America/Anchorage"
	n := newTestNormalizer(t, l)

	cases, _ := n.Normalize(context.Background(), rowsOf(
		"10/21/2026,TURNER FREDERICK,CNVCRT,9:00 AM,4928456,PK11,x,Y",
	))
	require.Len(t, cases, 1)
	assert.Equal(t, time.UTC, cases[0].Date.Location())
	assert.Equal(t, time.Date(2026, 10, 21, 17, 0, 0, 0, time.UTC), cases[0].Date)
}

func TestLayoutValidate(t *testing.T) {
	l := testLayout()
	l.Defendant = -1
	assert.Error(t, l.Validate())

	l = testLayout()
	l.TimeZone = "Mars/Olympus"
	assert.Error(t, l.Validate())

	l = testLayout()
	l.DatePolicy = "random"
	assert.Error(t, l.Validate())

	assert.NoError(t, testLayout().Validate())
}
