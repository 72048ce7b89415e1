// Package lock keeps batch commands from overlapping: two `courtbot run`
// processes, or a cron `notify` firing while the previous one still sweeps.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrHeld is returned when another owner holds the lock.
var ErrHeld = errors.New("lock: held by another owner")

// Release gives a lock back. It is a no-op when the lock has already expired
// or been taken over.
type Release func(ctx context.Context) error

type Locker interface {
	// TryLock acquires name for at most ttl without waiting.
	TryLock(ctx context.Context, name string, ttl time.Duration) (Release, error)
}

// Local is an in-process Locker for single-instance deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), now: time.Now}
}

func (l *Local) TryLock(_ context.Context, name string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[name]; ok && now.Before(until) {
		return nil, ErrHeld
	}
	until := now.Add(ttl)
	l.held[name] = until

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[name].Equal(until) {
			delete(l.held, name)
		}
		return nil
	}, nil
}
