package request_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courtbot/internal/db"
	"courtbot/internal/request"
)

func setupStore(t *testing.T) (*request.Store, *gorm.DB) {
	t.Helper()
	gdb, err := db.Connect("sqlite://" + filepath.Join(t.TempDir(), "requests.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrateAndIndexes(gdb))
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	return &request.Store{DB: gdb, Now: func() time.Time { return now }}, gdb
}

func TestCreateIsIdempotentWhileActive(t *testing.T) {
	ctx := context.Background()
	s, gdb := setupStore(t)

	first, created, err := s.Create(ctx, "enc-phone", " 4928456 ", false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "4928456", first.CaseID)
	assert.True(t, first.Active)

	again, created, err := s.Create(ctx, "enc-phone", "4928456", true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	assert.False(t, again.KnownCase, "existing row is returned unchanged")

	// once inactive the pair can be requested again; the old row stays
	require.NoError(t, gdb.Model(&request.Request{}).Where("id = ?", first.ID).Update("active", false).Error)
	fresh, created, err := s.Create(ctx, "enc-phone", "4928456", false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, fresh.ID)

	all, err := s.ListByCase(ctx, "4928456")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateConcurrentSamePair(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	var wg sync.WaitGroup
	ids := make([]uint64, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, _, err := s.Create(ctx, "enc-phone", "4928456", false)
			if assert.NoError(t, err) {
				ids[i] = r.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := s.ListByPhone(ctx, "enc-phone")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateRejectsEmptyInput(t *testing.T) {
	s, _ := setupStore(t)
	_, _, err := s.Create(context.Background(), "", "4928456", false)
	assert.ErrorIs(t, err, request.ErrInvalidInput)
	_, _, err = s.Create(context.Background(), "enc", "  ", false)
	assert.ErrorIs(t, err, request.ErrInvalidInput)
}

func TestFindActiveAndGet(t *testing.T) {
	ctx := context.Background()
	s, _ := setupStore(t)

	_, err := s.FindActive(ctx, "enc", "NOPE")
	assert.ErrorIs(t, err, request.ErrNotFound)
	_, err = s.Get(ctx, 999)
	assert.ErrorIs(t, err, request.ErrNotFound)

	r, _, err := s.Create(ctx, "enc", "ab123", false)
	require.NoError(t, err)
	got, err := s.FindActive(ctx, "enc", "AB123")
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestQueueAndFixtureCleanup(t *testing.T) {
	ctx := context.Background()
	s, gdb := setupStore(t)

	q1, err := s.Queue(ctx, "enc", "ka123456")
	require.NoError(t, err)
	q2, err := s.Queue(ctx, "enc", "KA123456")
	require.NoError(t, err)
	assert.Equal(t, q1.ID, q2.ID)
	assert.Equal(t, "KA123456", q1.CitationID)

	_, _, err = s.Create(ctx, "enc", "4928456", false)
	require.NoError(t, err)

	require.NoError(t, s.DeleteByPhone(ctx, "enc"))
	var n int64
	require.NoError(t, gdb.Model(&request.Request{}).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, gdb.Model(&request.QueuedItem{}).Count(&n).Error)
	assert.Zero(t, n)
}
