package decision_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/internal/decision"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

func newTracker(t *testing.T) (*decision.Tracker, *store.MemoryStore, *bus.Bus) {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	b := bus.New(s)
	return decision.NewTracker("org-1", models.DefaultAgentSettings(), s, b, time.Minute), s, b
}

func pendingDecision(t *testing.T, s *store.MemoryStore, id string) *models.AgentDecisionResult {
	t.Helper()
	d := &models.AgentDecisionResult{
		ID:            id,
		OrgID:         "org-1",
		CorrelationID: "corr-" + id,
		State:         models.StateAwaitingConfirmation,
		RequiresConfirmation: true,
	}
	if err := s.CreateDecision(context.Background(), d); err != nil {
		t.Fatalf("CreateDecision: %v", err)
	}
	return d
}

func TestConfirmEmitsApproval(t *testing.T) {
	tracker, s, b := newTracker(t)
	d := pendingDecision(t, s, "d-1")
	tracker.Track(d)

	approvals := 0
	b.Subscribe(decision.EventDecisionApproved, "counter", func(ctx context.Context, e bus.Event) error {
		approvals++
		return nil
	})

	got, err := tracker.Confirm(context.Background(), "d-1", "user-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.ID != "d-1" {
		t.Errorf("decision ID = %q, want d-1", got.ID)
	}
	if approvals != 1 {
		t.Errorf("decision.approved emitted %d times, want 1", approvals)
	}
	if len(tracker.List()) != 0 {
		t.Error("decision still pending after confirmation")
	}
}

func TestRejectIsTerminal(t *testing.T) {
	tracker, s, _ := newTracker(t)
	d := pendingDecision(t, s, "d-1")
	tracker.Track(d)

	if err := tracker.Reject(context.Background(), "d-1", "user-1"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	stored, err := s.GetDecision(context.Background(), "org-1", "d-1")
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if stored.State != models.StateRejected {
		t.Errorf("State = %q, want %q", stored.State, models.StateRejected)
	}

	record, err := s.GetRecord(context.Background(), "org-1", "d-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record.Resolution != models.ResolutionRejected {
		t.Errorf("Resolution = %q, want %q", record.Resolution, models.ResolutionRejected)
	}
	if record.ResolvedBy != "user-1" {
		t.Errorf("ResolvedBy = %q, want %q", record.ResolvedBy, "user-1")
	}
}

func TestConcurrentConfirmationsExactlyOneWins(t *testing.T) {
	tracker, s, _ := newTracker(t)
	d := pendingDecision(t, s, "d-1")
	tracker.Track(d)

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = tracker.Confirm(context.Background(), "d-1", "user")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else if !errors.Is(err, decision.ErrAlreadyResolved) && !errors.Is(err, decision.ErrNotPending) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("%d confirmations won, want exactly 1", winners)
	}
}

func TestConfirmUnknownDecision(t *testing.T) {
	tracker, _, _ := newTracker(t)

	_, err := tracker.Confirm(context.Background(), "ghost", "user-1")
	if !errors.Is(err, decision.ErrNotPending) {
		t.Errorf("Confirm unknown: got %v, want ErrNotPending", err)
	}
}

func TestExpiryAutoRejects(t *testing.T) {
	tracker, s, b := newTracker(t)
	d := pendingDecision(t, s, "d-1")
	tracker.TrackWithDeadline(d, time.Now().UTC().Add(-time.Second))

	expired := 0
	b.Subscribe(decision.EventDecisionExpired, "counter", func(ctx context.Context, e bus.Event) error {
		expired++
		return nil
	})

	tracker.ExpireNow(context.Background())

	if expired != 1 {
		t.Errorf("decision.expired emitted %d times, want 1", expired)
	}
	stored, err := s.GetDecision(context.Background(), "org-1", "d-1")
	if err != nil {
		t.Fatalf("GetDecision: %v", err)
	}
	if stored.State != models.StateExpired {
		t.Errorf("State = %q, want %q", stored.State, models.StateExpired)
	}
	record, err := s.GetRecord(context.Background(), "org-1", "d-1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if record.Resolution != models.ResolutionExpired {
		t.Errorf("Resolution = %q, want %q", record.Resolution, models.ResolutionExpired)
	}

	// An expired decision cannot be confirmed afterwards.
	if _, err := tracker.Confirm(context.Background(), "d-1", "user-1"); err == nil {
		t.Error("Confirm succeeded on an expired decision")
	}
}

func TestUnexpiredDecisionSurvivesSweep(t *testing.T) {
	tracker, s, _ := newTracker(t)
	d := pendingDecision(t, s, "d-1")
	tracker.TrackWithDeadline(d, time.Now().UTC().Add(time.Hour))

	tracker.ExpireNow(context.Background())

	if len(tracker.List()) != 1 {
		t.Error("unexpired decision was swept")
	}
}
