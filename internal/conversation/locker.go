package conversation

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Locker serialises turns per session. Distinct sessions never contend.
type Locker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sessionLock
}

type sessionLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: map[uuid.UUID]*sessionLock{}}
}

// Lock blocks until the session is free or ctx is done. The returned func
// must be called exactly once.
func (l *Locker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{sem: semaphore.NewWeighted(1)}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	if err := sl.sem.Acquire(ctx, 1); err != nil {
		l.release(id, sl, false)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(id, sl, true) })
	}, nil
}

func (l *Locker) release(id uuid.UUID, sl *sessionLock, held bool) {
	if held {
		sl.sem.Release(1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, id)
	}
}

// Len is the number of sessions with a turn in flight or waiting.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
