package repository

import (
	"context"
	"sync"
	"time"

	"shareit/internal/domain"
)

type itemLock struct {
	ch   chan struct{}
	refs int
}

// MemoryCoordinator is the single-process coordinator. Item locks are
// reference counted and dropped when the last waiter leaves.
type MemoryCoordinator struct {
	mu         sync.Mutex
	locks      map[int64]*itemLock
	rateLimits sync.Map
}

func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{locks: make(map[int64]*itemLock)}
}

// LockItem blocks until the item is free or ctx ends. ttl is ignored: the
// holder always releases in-process.
func (r *MemoryCoordinator) LockItem(ctx context.Context, itemID int64, _ time.Duration) (domain.Unlock, error) {
	r.mu.Lock()
	l, ok := r.locks[itemID]
	if !ok {
		l = &itemLock{ch: make(chan struct{}, 1)}
		r.locks[itemID] = l
	}
	l.refs++
	r.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		r.release(itemID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			<-l.ch
			r.release(itemID, l)
		})
		return nil
	}, nil
}

func (r *MemoryCoordinator) release(itemID int64, l *itemLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, itemID)
	}
}

func (r *MemoryCoordinator) lockCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryCoordinator) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, _ := r.rateLimits.LoadOrStore(userID, &rateLimitEntry{expiresAt: now.Add(window)})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++
	return entry.count <= limit, nil
}
