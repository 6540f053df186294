package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"autoagenda/internal/domain"

	"github.com/rs/zerolog"
)

const failoverRecoveryInterval = time.Minute

// FailoverSlotLocker prefers the shared (redis) locker and degrades to the
// in-process one when it fails, probing the primary again after a cooldown.
// Degraded mode keeps single-instance deployments correct; multi-instance
// deployments lose cross-process exclusion only while redis is down.
type FailoverSlotLocker struct {
	primary   domain.SlotLocker
	fallback  domain.SlotLocker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverSlotLocker(primary, fallback domain.SlotLocker, logger *zerolog.Logger) *FailoverSlotLocker {
	return &FailoverSlotLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *FailoverSlotLocker) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if l.usePrimary() {
		ok, err := l.primary.TryAcquire(ctx, key, owner, ttl)
		if err == nil {
			return ok, nil
		}
		l.markDown(err)
	}
	return l.fallback.TryAcquire(ctx, key, owner, ttl)
}

func (l *FailoverSlotLocker) Release(ctx context.Context, key, owner string) error {
	if l.usePrimary() {
		if err := l.primary.Release(ctx, key, owner); err == nil {
			return nil
		} else {
			l.markDown(err)
		}
	}
	return l.fallback.Release(ctx, key, owner)
}

func (l *FailoverSlotLocker) usePrimary() bool {
	if l.primary == nil {
		return false
	}
	if !l.isDown.Load() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCheck) > failoverRecoveryInterval {
		l.lastCheck = time.Now()
		l.isDown.Store(false)
		return true
	}
	return false
}

func (l *FailoverSlotLocker) markDown(err error) {
	if l.logger != nil {
		l.logger.Error().Err(err).Msg("primary slot locker failed, falling back to memory")
	}
	l.mu.Lock()
	l.lastCheck = time.Now()
	l.mu.Unlock()
	l.isDown.Store(true)
}

// FailoverAlertWindow mirrors FailoverSlotLocker for the alert counter.
type FailoverAlertWindow struct {
	primary   domain.AlertWindow
	fallback  domain.AlertWindow
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverAlertWindow(primary, fallback domain.AlertWindow, logger *zerolog.Logger) *FailoverAlertWindow {
	return &FailoverAlertWindow{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (w *FailoverAlertWindow) Incr(ctx context.Context, window time.Duration) (int64, error) {
	if w.primary != nil && !w.isDown.Load() {
		count, err := w.primary.Incr(ctx, window)
		if err == nil {
			return count, nil
		}
		if w.logger != nil {
			w.logger.Error().Err(err).Msg("primary alert window failed, falling back to memory")
		}
		w.mu.Lock()
		w.lastCheck = time.Now()
		w.mu.Unlock()
		w.isDown.Store(true)
	}

	if w.isDown.Load() {
		w.mu.Lock()
		if time.Since(w.lastCheck) > failoverRecoveryInterval {
			w.lastCheck = time.Now()
			w.isDown.Store(false)
		}
		w.mu.Unlock()
	}

	return w.fallback.Incr(ctx, window)
}
