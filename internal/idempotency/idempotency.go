// Package idempotency guards side effects against double execution. The
// executor claims a key before running an action; a key already claimed
// means another run got there first.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// Keeper claims execution keys.
type Keeper interface {
	// Claim marks key as executed and reports whether this call won the
	// claim. A false return means the key was already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryKeeper keeps claims in process memory.
type MemoryKeeper struct {
	mu      sync.Mutex
	claims  map[string]time.Time
	now     func() time.Time
	maxSize int
}

func NewMemoryKeeper() *MemoryKeeper {
	return &MemoryKeeper{
		claims:  make(map[string]time.Time),
		now:     time.Now,
		maxSize: 100000,
	}
}

func (k *MemoryKeeper) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if expiry, ok := k.claims[key]; ok && now.Before(expiry) {
		return false, nil
	}
	if len(k.claims) >= k.maxSize {
		for key, expiry := range k.claims {
			if now.After(expiry) {
				delete(k.claims, key)
			}
		}
	}
	k.claims[key] = now.Add(ttl)
	return true, nil
}
