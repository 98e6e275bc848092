package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/pipewise/pipewise/agent-core/internal/agent"
	"github.com/pipewise/pipewise/agent-core/internal/config"
	"github.com/pipewise/pipewise/agent-core/internal/idempotency"
	"github.com/pipewise/pipewise/agent-core/internal/llm"
	"github.com/pipewise/pipewise/agent-core/internal/queue"
	"github.com/pipewise/pipewise/agent-core/internal/ratelimit"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

func newRegistry(t *testing.T) (*agent.Registry, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	client := llm.NewClient([]llm.Provider{&scriptedProvider{}}, llm.ClientConfig{RetryBackoff: time.Nanosecond})
	r := agent.NewRegistry(agent.Deps{
		Store:         s,
		LLM:           client,
		Queue:         queue.NewMemoryQueue(),
		Keeper:        idempotency.NewMemoryKeeper(),
		Limiter:       ratelimit.NewMemoryLimiter(),
		Executor:      config.ExecutorConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond},
		SweepInterval: time.Hour,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r, s
}

func mustCreateOrg(t *testing.T, s *store.MemoryStore, id string) {
	t.Helper()
	err := s.CreateOrg(context.Background(), &models.Organization{
		ID:       id,
		Name:     "Org " + id,
		Settings: models.DefaultAgentSettings(),
	})
	if err != nil {
		t.Fatalf("CreateOrg(%s): %v", id, err)
	}
}

func TestRegistryCreatesOnFirstUse(t *testing.T) {
	r, s := newRegistry(t)
	mustCreateOrg(t, s, "org-a")

	if _, ok := r.Peek("org-a"); ok {
		t.Fatal("agent existed before first use")
	}

	first, err := r.Get(context.Background(), "org-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := r.Get(context.Background(), "org-a")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if first != second {
		t.Error("Get returned a fresh agent for a running org")
	}
}

func TestRegistryUnknownOrg(t *testing.T) {
	r, _ := newRegistry(t)
	if _, err := r.Get(context.Background(), "missing"); err == nil {
		t.Fatal("Get succeeded for an unknown org")
	}
}

func TestRegistryIsolatesOrgs(t *testing.T) {
	r, s := newRegistry(t)
	mustCreateOrg(t, s, "org-a")
	mustCreateOrg(t, s, "org-b")

	a, err := r.Get(context.Background(), "org-a")
	if err != nil {
		t.Fatalf("Get org-a: %v", err)
	}
	b, err := r.Get(context.Background(), "org-b")
	if err != nil {
		t.Fatalf("Get org-b: %v", err)
	}
	if a == b {
		t.Fatal("two orgs share one agent")
	}

	stats := r.Stats()
	if len(stats) != 2 || stats[0].OrgID != "org-a" || stats[1].OrgID != "org-b" {
		t.Errorf("Stats = %+v, want org-a and org-b in order", stats)
	}
}

func TestRegistryShutdownIsTerminal(t *testing.T) {
	r, s := newRegistry(t)
	mustCreateOrg(t, s, "org-a")
	if _, err := r.Get(context.Background(), "org-a"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := r.Get(context.Background(), "org-a"); err == nil {
		t.Fatal("Get succeeded after Shutdown")
	}
}
