package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"shareit/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCoordinator uses primary (Redis) while it answers and falls back to
// the in-process coordinator otherwise. The primary is retried once a minute.
type FailoverCoordinator struct {
	primary  domain.Coordinator
	fallback domain.Coordinator
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverCoordinator(primary, fallback domain.Coordinator, logger *zerolog.Logger) *FailoverCoordinator {
	return &FailoverCoordinator{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should go to the primary.
func (r *FailoverCoordinator) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverCoordinator) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary coordinator failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

func (r *FailoverCoordinator) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary coordinator recovered")
	}
}

func (r *FailoverCoordinator) LockItem(ctx context.Context, itemID int64, ttl time.Duration) (domain.Unlock, error) {
	if r.usePrimary() {
		unlock, err := r.primary.LockItem(ctx, itemID, ttl)
		if err == nil {
			r.markUp()
			return unlock, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		r.markDown(err)
	}
	return r.fallback.LockItem(ctx, itemID, ttl)
}

func (r *FailoverCoordinator) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
