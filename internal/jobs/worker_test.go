package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"courtbot/internal/lock"
)

func setupRepo(t *testing.T) *Repo {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(&Run{}))
	return &Repo{DB: gdb}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 64*time.Second, Backoff(6))
	assert.Equal(t, 600*time.Second, Backoff(20))
}

func TestRunOnceRecordsSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	fail := true
	w := &Worker{
		Type: "CYCLE",
		Repo: repo,
		Task: func(context.Context) (string, error) {
			if fail {
				return "", errors.New("db down")
			}
			return "matched=1", nil
		},
	}

	require.Error(t, w.RunOnce(ctx))
	require.Error(t, w.RunOnce(ctx))
	assert.Equal(t, 2, w.attempts)

	fail = false
	require.NoError(t, w.RunOnce(ctx))
	assert.Equal(t, 0, w.attempts)

	runs, err := repo.Recent(ctx, "CYCLE", 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	assert.Equal(t, StatusDone, runs[0].Status)
	assert.Equal(t, "matched=1", runs[0].Summary)
	assert.Equal(t, 3, runs[0].Attempts)
	assert.NotNil(t, runs[0].FinishedAt)

	assert.Equal(t, StatusFailed, runs[1].Status)
	require.NotNil(t, runs[1].LastError)
	assert.Equal(t, "db down", *runs[1].LastError)
	assert.Equal(t, 2, runs[1].Attempts)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	locker := lock.NewLocal()

	_, err := locker.TryLock(ctx, "CYCLE", time.Minute)
	require.NoError(t, err)

	called := false
	w := &Worker{Type: "CYCLE", Repo: repo, Locker: locker, Task: func(context.Context) (string, error) {
		called = true
		return "", nil
	}}
	assert.ErrorIs(t, w.RunOnce(ctx), lock.ErrHeld)
	assert.False(t, called)

	runs, err := repo.Recent(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

type downLocker struct{}

func (downLocker) TryLock(context.Context, string, time.Duration) (lock.Release, error) {
	return nil, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
}

func TestRunOnceCountsLockFailureAsAttempt(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	called := false
	w := &Worker{Type: "CYCLE", Repo: repo, Locker: downLocker{}, Task: func(context.Context) (string, error) {
		called = true
		return "", nil
	}}

	err := w.RunOnce(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, lock.ErrHeld)
	require.Error(t, w.RunOnce(ctx))
	assert.Equal(t, 2, w.attempts)
	assert.Equal(t, 4*time.Second, Backoff(w.attempts))
	assert.False(t, called)
}

func TestRunStopsOnCancel(t *testing.T) {
	repo := setupRepo(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	w := &Worker{Type: "INGEST", Interval: time.Hour, Repo: repo, Task: func(context.Context) (string, error) {
		close(done)
		return "", nil
	}}

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not start immediately")
	}
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
