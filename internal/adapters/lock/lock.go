// Package lock implements usecases.ThreadLocker. MemoryLocker serializes
// runs inside one process; RedisLocker extends that across processes that
// share a Redis server.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flowgraph/agentgraph/internal/app/usecases"
)

// ErrLockAcquire is returned when a lock cannot be acquired.
var ErrLockAcquire = errors.New("failed to acquire thread lock")

// MemoryLocker is a process-local ThreadLocker. The ttl is ignored: a lock
// lives until its UnlockFunc is called. A key's slot is dropped once its
// holder and every waiter are gone.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// slot admits one holder at a time. refs counts the holder and waiters and
// is guarded by MemoryLocker.mu.
type slot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, key string, _ time.Duration) (usecases.UnlockFunc, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
		return nil
	}, nil
}

func (l *MemoryLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
