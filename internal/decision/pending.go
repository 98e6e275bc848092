package decision

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Bus event names emitted by the tracker.
const (
	EventDecisionApproved = "decision.approved"
	EventDecisionRejected = "decision.rejected"
	EventDecisionExpired  = "decision.expired"
)

var (
	// ErrNotPending is returned when the decision id is unknown to the
	// tracker (never tracked, or already resolved and evicted).
	ErrNotPending = errors.New("decision is not pending confirmation")

	// ErrAlreadyResolved is returned to the loser of a confirmation race:
	// the decision reached a terminal resolution between lookup and resolve.
	ErrAlreadyResolved = errors.New("decision already resolved")
)

type pendingEntry struct {
	decision  models.AgentDecisionResult
	expiresAt time.Time
	resolved  bool
}

// Tracker holds decisions awaiting human confirmation for one organization.
// Resolution is first-writer-wins: of two concurrent confirmations exactly
// one transitions the decision; the other observes ErrAlreadyResolved.
// Unresolved decisions expire past their TTL and auto-reject — expiry never
// executes actions.
type Tracker struct {
	orgID    string
	settings models.AgentSettings
	store    store.Store
	bus      *bus.Bus

	mu      sync.Mutex
	pending map[string]*pendingEntry

	sweepInterval time.Duration
}

func NewTracker(orgID string, settings models.AgentSettings, s store.Store, b *bus.Bus, sweepInterval time.Duration) *Tracker {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &Tracker{
		orgID:         orgID,
		settings:      settings,
		store:         s,
		bus:           b,
		pending:       make(map[string]*pendingEntry),
		sweepInterval: sweepInterval,
	}
}

// Track registers a decision awaiting confirmation. The clock starts now;
// the TTL comes from org settings.
func (t *Tracker) Track(decision *models.AgentDecisionResult) {
	t.TrackWithDeadline(decision, time.Now().UTC().Add(t.settings.ConfirmationTTL()))
}

// TrackWithDeadline registers a decision with an explicit expiry instant.
func (t *Tracker) TrackWithDeadline(decision *models.AgentDecisionResult, expiresAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[decision.ID] = &pendingEntry{
		decision:  *decision,
		expiresAt: expiresAt,
	}
}

// List returns the currently pending decisions, unordered.
func (t *Tracker) List() []models.AgentDecisionResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.AgentDecisionResult, 0, len(t.pending))
	for _, entry := range t.pending {
		if !entry.resolved {
			out = append(out, entry.decision)
		}
	}
	return out
}

// Confirm approves a pending decision. On success the decision is handed to
// execution via a decision.approved event and removed from the tracker.
func (t *Tracker) Confirm(ctx context.Context, decisionID, resolvedBy string) (*models.AgentDecisionResult, error) {
	decision, err := t.resolve(decisionID)
	if err != nil {
		return nil, err
	}

	t.bus.Emit(ctx, bus.Event{
		Name:          EventDecisionApproved,
		OrgID:         t.orgID,
		CorrelationID: decision.CorrelationID,
		Payload: map[string]interface{}{
			"decision_id": decision.ID,
			"resolved_by": resolvedBy,
		},
	})
	return decision, nil
}

// Reject declines a pending decision: terminal, no execution.
func (t *Tracker) Reject(ctx context.Context, decisionID, resolvedBy string) error {
	decision, err := t.resolve(decisionID)
	if err != nil {
		return err
	}

	if err := t.store.UpdateDecisionState(ctx, t.orgID, decision.ID, models.StateRejected); err != nil {
		log.Error().Err(err).Str("decision_id", decision.ID).Msg("persist rejected state")
	}
	decision.State = models.StateRejected
	t.saveRecord(ctx, decision, models.ResolutionRejected, resolvedBy)

	t.bus.Emit(ctx, bus.Event{
		Name:          EventDecisionRejected,
		OrgID:         t.orgID,
		CorrelationID: decision.CorrelationID,
		Payload: map[string]interface{}{
			"decision_id": decision.ID,
			"resolved_by": resolvedBy,
		},
	})
	return nil
}

// resolve is the atomic terminal transition: exactly one caller per decision
// id gets the entry, every later caller gets ErrAlreadyResolved.
func (t *Tracker) resolve(decisionID string) (*models.AgentDecisionResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[decisionID]
	if !ok {
		return nil, ErrNotPending
	}
	if entry.resolved {
		return nil, ErrAlreadyResolved
	}
	entry.resolved = true
	delete(t.pending, decisionID)
	decision := entry.decision
	return &decision, nil
}

// Start runs the expiry sweeper until ctx is canceled.
func (t *Tracker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

// sweep expires decisions past their confirmation window.
func (t *Tracker) sweep(ctx context.Context) {
	now := time.Now().UTC()

	t.mu.Lock()
	var expired []models.AgentDecisionResult
	for id, entry := range t.pending {
		if !entry.resolved && now.After(entry.expiresAt) {
			entry.resolved = true
			delete(t.pending, id)
			expired = append(expired, entry.decision)
		}
	}
	t.mu.Unlock()

	for _, decision := range expired {
		if err := t.store.UpdateDecisionState(ctx, t.orgID, decision.ID, models.StateExpired); err != nil {
			log.Error().Err(err).Str("decision_id", decision.ID).Msg("persist expired state")
		}
		decision.State = models.StateExpired
		t.saveRecord(ctx, &decision, models.ResolutionExpired, "")

		log.Info().
			Str("org_id", t.orgID).
			Str("decision_id", decision.ID).
			Msg("pending decision expired unconfirmed")

		t.bus.Emit(ctx, bus.Event{
			Name:          EventDecisionExpired,
			OrgID:         t.orgID,
			CorrelationID: decision.CorrelationID,
			Payload:       map[string]interface{}{"decision_id": decision.ID},
		})
	}
}

// ExpireNow force-expires everything past due; used by tests and shutdown.
func (t *Tracker) ExpireNow(ctx context.Context) {
	t.sweep(ctx)
}

func (t *Tracker) saveRecord(ctx context.Context, decision *models.AgentDecisionResult, resolution models.Resolution, resolvedBy string) {
	record := &models.DecisionRecord{
		Decision:   *decision,
		Resolution: resolution,
		ResolvedBy: resolvedBy,
		ResolvedAt: time.Now().UTC(),
	}
	if err := t.store.SaveRecord(ctx, record); err != nil {
		log.Error().Err(err).Str("decision_id", decision.ID).Msg("save decision record")
	}
}
