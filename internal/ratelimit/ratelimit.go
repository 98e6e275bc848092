// Package ratelimit provides fixed-window counters used to cap notification
// sends per recipient.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter counts hits against a key within a fixed window and reports
// whether the hit is within the allowed budget.
type Limiter interface {
	// Allow records one hit against key and returns true while the count
	// for the current window is at or below limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps windows in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		l.windows[key] = w
	}
	w.count++
	return w.count <= limit, nil
}

// SetClock overrides the time source, for tests.
func (l *MemoryLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
