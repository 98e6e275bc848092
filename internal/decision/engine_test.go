package decision_test

import (
	"context"
	"testing"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/internal/decision"
	"github.com/pipewise/pipewise/agent-core/internal/llm"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// scriptedProvider returns canned completions (or errors) in order.
type scriptedProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return nil, p.errs[idx]
	}
	content := ""
	if idx < len(p.responses) {
		content = p.responses[idx]
	}
	return &llm.Completion{Provider: "scripted", Model: "test", Content: content}, nil
}

func newEngine(t *testing.T, provider llm.Provider, settings models.AgentSettings) (*decision.Engine, *store.MemoryStore, *bus.Bus) {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	b := bus.New(s)
	client := llm.NewClient([]llm.Provider{provider}, llm.ClientConfig{
		MaxRetries:   1,
		RetryBackoff: 1,
	})
	return decision.NewEngine("org-1", settings, client, s, b), s, b
}

func testInput() *models.AgentInput {
	return &models.AgentInput{
		ID:            "in-1",
		OrgID:         "org-1",
		Source:        models.SourceEmail,
		Type:          "email.received",
		RawContent:    "can we meet tomorrow?",
		Priority:      3,
		CorrelationID: "corr-1",
	}
}

const confidentResponse = `{"category":"scheduling_request","urgency":"normal","confidence":0.95,` +
	`"reasoning":"clear ask","actions":[{"kind":"send_notification","send_notification":` +
	`{"recipients":["owner@x.com"],"subject":"Meeting request","body":"please review","urgency":"normal"}}]}`

const destructiveResponse = `{"category":"cancellation","urgency":"normal","confidence":0.99,` +
	`"reasoning":"sender cancels","actions":[{"kind":"cancel_event","cancel_event":{"event_id":"ev-1"}}]}`

const hesitantResponse = `{"category":"unclear","urgency":"low","confidence":0.4,` +
	`"reasoning":"ambiguous","actions":[]}`

func TestDecideAutoApproved(t *testing.T) {
	provider := &scriptedProvider{responses: []string{confidentResponse}}
	engine, s, _ := newEngine(t, provider, models.DefaultAgentSettings())

	d, err := engine.Decide(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.RequiresConfirmation {
		t.Error("RequiresConfirmation = true for confident non-destructive decision")
	}
	if d.State != models.StateAutoApproved {
		t.Errorf("State = %q, want %q", d.State, models.StateAutoApproved)
	}

	stored, err := s.GetDecision(context.Background(), "org-1", d.ID)
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if stored.State != models.StateAutoApproved {
		t.Errorf("persisted State = %q, want %q", stored.State, models.StateAutoApproved)
	}
}

func TestDecideLowConfidenceRequiresConfirmation(t *testing.T) {
	provider := &scriptedProvider{responses: []string{hesitantResponse}}
	engine, _, _ := newEngine(t, provider, models.DefaultAgentSettings())

	d, err := engine.Decide(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !d.RequiresConfirmation {
		t.Error("RequiresConfirmation = false below the auto-execute threshold")
	}
	if d.State != models.StateAwaitingConfirmation {
		t.Errorf("State = %q, want %q", d.State, models.StateAwaitingConfirmation)
	}
}

func TestDecideDestructiveRequiresConfirmation(t *testing.T) {
	provider := &scriptedProvider{responses: []string{destructiveResponse}}
	engine, _, _ := newEngine(t, provider, models.DefaultAgentSettings())

	d, err := engine.Decide(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !d.RequiresConfirmation {
		t.Error("RequiresConfirmation = false for a destructive action despite high confidence")
	}
}

func TestDecideFallbackOnExhaustedProviders(t *testing.T) {
	timeout := &llm.Error{Code: llm.ErrTimeout, Provider: "scripted", Message: "deadline"}
	provider := &scriptedProvider{errs: []error{timeout, timeout, timeout}}
	engine, _, b := newEngine(t, provider, models.DefaultAgentSettings())

	fallbackEvents := 0
	b.Subscribe(decision.EventDecisionFallback, "counter", func(ctx context.Context, e bus.Event) error {
		fallbackEvents++
		return nil
	})

	d, err := engine.Decide(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !d.Fallback {
		t.Error("Fallback = false after all providers exhausted")
	}
	if !d.RequiresConfirmation {
		t.Error("fallback decision must require confirmation")
	}
	if len(d.Actions) != 1 || d.Actions[0].Kind != models.ActionEscalate {
		t.Errorf("Actions = %+v, want a single escalate", d.Actions)
	}
	if fallbackEvents != 1 {
		t.Errorf("decision.fallback emitted %d times, want 1", fallbackEvents)
	}
}

func TestDecideFallbackOnUnparseableResponse(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"I'd be happy to help! What would you like?"}}
	engine, _, _ := newEngine(t, provider, models.DefaultAgentSettings())

	d, err := engine.Decide(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !d.Fallback {
		t.Error("Fallback = false for an unparseable response")
	}
	if d.RawResponse == "" {
		t.Error("RawResponse not preserved for audit")
	}
}

func TestDecideEmitsDecisionMade(t *testing.T) {
	provider := &scriptedProvider{responses: []string{confidentResponse}}
	engine, _, b := newEngine(t, provider, models.DefaultAgentSettings())

	var made []bus.Event
	b.Subscribe(decision.EventDecisionMade, "capture", func(ctx context.Context, e bus.Event) error {
		made = append(made, e)
		return nil
	})

	d, err := engine.Decide(context.Background(), testInput())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(made) != 1 {
		t.Fatalf("decision.made emitted %d times, want 1", len(made))
	}
	if made[0].CorrelationID != d.CorrelationID {
		t.Errorf("event CorrelationID = %q, want %q", made[0].CorrelationID, d.CorrelationID)
	}
}
