package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/pipewise/pipewise/agent-core/internal/ratelimit"
)

func TestMemoryLimiterEnforcesBudget(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "alice@example.com", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("hit %d denied, want allowed", i+1)
		}
	}

	ok, err := l.Allow(ctx, "alice@example.com", 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Error("fourth hit allowed, want denied")
	}

	// Another recipient has its own window.
	ok, _ = l.Allow(ctx, "bob@example.com", 3, time.Minute)
	if !ok {
		t.Error("separate key denied, want allowed")
	}
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	ctx := context.Background()

	now := time.Now()
	l.SetClock(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow(ctx, "k", 1, time.Minute); ok != (i == 0) {
			t.Fatalf("hit %d allowed=%v", i+1, ok)
		}
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := l.Allow(ctx, "k", 1, time.Minute); !ok {
		t.Error("hit after window reset denied, want allowed")
	}
}

func TestZeroLimitDisablesLimiting(t *testing.T) {
	l := ratelimit.NewMemoryLimiter()
	for i := 0; i < 50; i++ {
		ok, err := l.Allow(context.Background(), "k", 0, time.Minute)
		if err != nil || !ok {
			t.Fatalf("Allow with zero limit = (%v, %v), want allowed", ok, err)
		}
	}
}
