package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courtbot/internal/request"
)

func TestActiveRequestPairIsUnique(t *testing.T) {
	gdb, err := Connect("sqlite://" + filepath.Join(t.TempDir(), "courtbot.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrateAndIndexes(gdb))
	// migrating twice is harmless
	require.NoError(t, AutoMigrateAndIndexes(gdb))

	now := time.Now().UTC()
	first := request.Request{Phone: "enc", CaseID: "A1", Active: true, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, gdb.Create(&first).Error)

	dup := request.Request{Phone: "enc", CaseID: "A1", Active: true, CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, gdb.Create(&dup).Error, gorm.ErrDuplicatedKey)

	// retiring the first frees the pair
	require.NoError(t, gdb.Model(&first).Update("active", false).Error)
	again := request.Request{Phone: "enc", CaseID: "A1", Active: true, CreatedAt: now, UpdatedAt: now}
	assert.NoError(t, gdb.Create(&again).Error)
}

func TestConnectUsesUTC(t *testing.T) {
	gdb, err := Connect("file:" + filepath.Join(t.TempDir(), "utc.db"))
	require.NoError(t, err)
	assert.Equal(t, time.UTC, gdb.NowFunc().Location())
}
