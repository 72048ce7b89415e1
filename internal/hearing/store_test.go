package hearing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courtbot/internal/calendar"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "hearings.sqlite")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&Hearing{}, &Citation{}))
	return &Store{DB: db}
}

func sampleCases(day time.Time) []calendar.Case {
	return []calendar.Case{
		{
			CaseID:    "4928456",
			Date:      day,
			Defendant: "Frederick Turner",
			Room:      "CNVCRT",
			Citations: []calendar.Citation{
				{ID: "A100", ViolationCode: "PK11", Location: "CNVCRT", Payable: true},
				{ID: "A101", ViolationCode: "SP20", Location: "CNVCRT"},
			},
		},
		{CaseID: "5550001", Date: day.Add(2 * time.Hour), Defendant: "Jane Smith", Room: "ROOM 3"},
	}
}

func TestReplaceIsWholesale(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 21, 17, 0, 0, 0, time.UTC)

	require.NoError(t, s.Replace(ctx, sampleCases(day)))
	require.NoError(t, s.Replace(ctx, sampleCases(day)))

	hearings, citations, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hearings, "re-ingesting the same export must not duplicate")
	assert.Equal(t, int64(2), citations)

	require.NoError(t, s.Replace(ctx, sampleCases(day)[1:]))
	_, err = s.FindByCaseID(ctx, "4928456")
	assert.ErrorIs(t, err, ErrNotFound)
	hearings, citations, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hearings)
	assert.Zero(t, citations)
}

func TestReplaceRollsBackOnFailure(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 21, 17, 0, 0, 0, time.UTC)
	require.NoError(t, s.Replace(ctx, sampleCases(day)))

	require.NoError(t, s.DB.Callback().Create().Before("gorm:create").Register("fail_citations", func(tx *gorm.DB) {
		if tx.Statement.Table == "citations" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	err := s.Replace(ctx, []calendar.Case{{
		CaseID:    "9999999",
		Date:      day,
		Defendant: "Someone Else",
		Citations: []calendar.Citation{{ID: "Z900"}},
	}})
	require.Error(t, err)

	_, err = s.FindByCaseID(ctx, "9999999")
	assert.ErrorIs(t, err, ErrNotFound)
	h, err := s.FindByCaseID(ctx, "4928456")
	require.NoError(t, err)
	assert.Equal(t, "Frederick Turner", h.Defendant)
}

func TestLookupByCaseOrCitation(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 21, 17, 0, 0, 0, time.UTC)
	require.NoError(t, s.Replace(ctx, sampleCases(day)))

	h, err := s.Lookup(ctx, " 4928456 ")
	require.NoError(t, err)
	assert.Equal(t, "4928456", h.CaseID)
	assert.True(t, h.Date.Equal(day))

	h, err = s.Lookup(ctx, "a101")
	require.NoError(t, err)
	assert.Equal(t, "4928456", h.CaseID)

	_, err = s.Lookup(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Lookup(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	cits, err := s.Citations(ctx, "4928456")
	require.NoError(t, err)
	require.Len(t, cits, 2)
	assert.True(t, cits[0].Payable)
}

func TestFindByCaseIDs(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	day := time.Date(2026, 10, 21, 17, 0, 0, 0, time.UTC)
	require.NoError(t, s.Replace(ctx, sampleCases(day)))

	got, err := s.FindByCaseIDs(ctx, []string{"4928456", "5550001", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "Jane Smith", got["5550001"].Defendant)

	empty, err := s.FindByCaseIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
