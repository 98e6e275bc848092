package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/pipewise/pipewise/agent-core/internal/llm"
)

// fakeProvider is a scriptable test Provider.
type fakeProvider struct {
	name  string
	calls int
	// errs are returned in order; a nil entry (or exhausted slice)
	// yields a success.
	errs []error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	return &llm.Completion{
		Provider: p.name,
		Model:    "fake-model",
		Content:  "response from " + p.name,
	}, nil
}

func retryableErr(provider string) error {
	return &llm.Error{Code: llm.ErrProviderUnavailable, Provider: provider, Message: "down"}
}

func fatalErr(provider string) error {
	return &llm.Error{Code: llm.ErrProviderUnauthorized, Provider: provider, Message: "bad key"}
}

func testConfig() llm.ClientConfig {
	return llm.ClientConfig{
		CallTimeout:  time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

func TestCompleteFirstProviderWins(t *testing.T) {
	primary := &fakeProvider{name: "primary"}
	backup := &fakeProvider{name: "backup"}
	c := llm.NewClient([]llm.Provider{primary, backup}, testConfig())

	resp, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "primary" {
		t.Errorf("Provider = %q, want %q", resp.Provider, "primary")
	}
	if backup.calls != 0 {
		t.Errorf("backup called %d times, want 0", backup.calls)
	}
}

func TestCompleteRetriesThenSucceeds(t *testing.T) {
	primary := &fakeProvider{name: "primary", errs: []error{retryableErr("primary"), retryableErr("primary")}}
	c := llm.NewClient([]llm.Provider{primary}, testConfig())

	resp, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if primary.calls != 3 {
		t.Errorf("primary called %d times, want 3 (1 + 2 retries)", primary.calls)
	}
	if resp.Provider != "primary" {
		t.Errorf("Provider = %q, want %q", resp.Provider, "primary")
	}
}

func TestCompleteFailsOverAfterRetriesExhausted(t *testing.T) {
	primary := &fakeProvider{name: "primary", errs: []error{
		retryableErr("primary"), retryableErr("primary"), retryableErr("primary"),
	}}
	backup := &fakeProvider{name: "backup"}
	c := llm.NewClient([]llm.Provider{primary, backup}, testConfig())

	resp, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "backup" {
		t.Errorf("Provider = %q, want %q", resp.Provider, "backup")
	}
	if primary.calls != 3 {
		t.Errorf("primary called %d times, want 3", primary.calls)
	}
}

func TestCompleteNonRetryableFailsOverImmediately(t *testing.T) {
	primary := &fakeProvider{name: "primary", errs: []error{fatalErr("primary")}}
	backup := &fakeProvider{name: "backup"}
	c := llm.NewClient([]llm.Provider{primary, backup}, testConfig())

	resp, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("primary called %d times, want 1 (no retries on auth errors)", primary.calls)
	}
	if resp.Provider != "backup" {
		t.Errorf("Provider = %q, want %q", resp.Provider, "backup")
	}
}

func TestCompleteAllProvidersFailed(t *testing.T) {
	a := &fakeProvider{name: "a", errs: []error{fatalErr("a")}}
	b := &fakeProvider{name: "b", errs: []error{fatalErr("b")}}
	c := llm.NewClient([]llm.Provider{a, b}, testConfig())

	_, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if err == nil {
		t.Fatal("Complete: expected error when all providers fail")
	}
	if got := llm.CodeOf(err); got != llm.ErrAllProvidersFailed {
		t.Errorf("CodeOf(err) = %q, want %q", got, llm.ErrAllProvidersFailed)
	}
}

func TestCompleteNoProviders(t *testing.T) {
	c := llm.NewClient(nil, testConfig())

	_, err := c.Complete(context.Background(), llm.CompletionRequest{})
	if got := llm.CodeOf(err); got != llm.ErrNoProviders {
		t.Errorf("CodeOf(err) = %q, want %q", got, llm.ErrNoProviders)
	}
}

func TestRoundRobinRotates(t *testing.T) {
	a := &fakeProvider{name: "a"}
	b := &fakeProvider{name: "b"}
	cfg := testConfig()
	cfg.Strategy = llm.StrategyRoundRobin
	c := llm.NewClient([]llm.Provider{a, b}, cfg)

	for i := 0; i < 4; i++ {
		if _, err := c.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if a.calls != 2 || b.calls != 2 {
		t.Errorf("calls = a:%d b:%d, want 2 each", a.calls, b.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", retryableErr("p"), true},
		{"rate limited", &llm.Error{Code: llm.ErrRateLimited}, true},
		{"timeout", &llm.Error{Code: llm.ErrTimeout}, true},
		{"network", &llm.Error{Code: llm.ErrNetwork}, true},
		{"unauthorized", fatalErr("p"), false},
		{"invalid request", &llm.Error{Code: llm.ErrInvalidRequest}, false},
		{"malformed response", &llm.Error{Code: llm.ErrResponseMalformed}, false},
		{"plain error", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := llm.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
