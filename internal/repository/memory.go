package repository

import (
	"context"
	"sync"
	"time"
)

// MemorySlotLocker is the single-process slot lock. It honors the same
// TTL semantics as the redis locker so the coordinator cannot tell them
// apart.
type MemorySlotLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLockEntry
}

type memoryLockEntry struct {
	owner     string
	expiresAt time.Time
}

func NewMemorySlotLocker() *MemorySlotLocker {
	return &MemorySlotLocker{locks: make(map[string]memoryLockEntry)}
}

func (l *MemorySlotLocker) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.locks[key]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}

	l.locks[key] = memoryLockEntry{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (l *MemorySlotLocker) Release(ctx context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.locks[key]; ok && entry.owner == owner {
		delete(l.locks, key)
	}
	return nil
}

// MemoryAlertWindow is the process-local alert counter with a fixed reset
// boundary at window expiry.
type MemoryAlertWindow struct {
	mu        sync.Mutex
	count     int64
	expiresAt time.Time
}

func NewMemoryAlertWindow() *MemoryAlertWindow {
	return &MemoryAlertWindow{}
}

func (w *MemoryAlertWindow) Incr(ctx context.Context, window time.Duration) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if now.After(w.expiresAt) {
		w.count = 0
		w.expiresAt = now.Add(window)
	}
	w.count++
	return w.count, nil
}
