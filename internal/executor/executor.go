// Package executor runs the actions of an approved decision. It owns the
// kind → handler registry, per-entity serialization, bounded retries with
// exponential backoff, at-most-once execution per (decision, action index),
// and escalation when an action fails terminally.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/actions"
	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/internal/config"
	"github.com/pipewise/pipewise/agent-core/internal/idempotency"
	"github.com/pipewise/pipewise/agent-core/internal/queue"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Bus event names emitted during execution.
const (
	EventActionCompleted  = "action.completed"
	EventActionFailed     = "action.failed"
	EventDecisionExecuted = "decision.executed"
)

// claimTTL bounds how long an idempotency claim outlives its execution.
const claimTTL = 24 * time.Hour

// Executor executes decisions for one organization.
type Executor struct {
	orgID    string
	store    store.Store
	bus      *bus.Bus
	queue    queue.Queue
	keeper   idempotency.Keeper
	cfg      config.ExecutorConfig
	handlers map[models.ActionKind]actions.Handler

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(orgID string, s store.Store, b *bus.Bus, q queue.Queue, keeper idempotency.Keeper, cfg config.ExecutorConfig) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &Executor{
		orgID:    orgID,
		store:    s,
		bus:      b,
		queue:    q,
		keeper:   keeper,
		cfg:      cfg,
		handlers: make(map[models.ActionKind]actions.Handler),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Register binds a handler to its action kind. Later registrations for the
// same kind replace earlier ones.
func (e *Executor) Register(h actions.Handler) {
	e.handlers[h.Kind()] = h
}

// VerifyRegistrations checks every defined action kind has a handler. A
// missing handler is a configuration error surfaced at startup, not at
// execution time.
func (e *Executor) VerifyRegistrations() error {
	var missing []string
	for _, kind := range models.AllActionKinds {
		if _, ok := e.handlers[kind]; !ok {
			missing = append(missing, string(kind))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("no handler registered for action kind(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// ExecuteDecision runs every action of the decision in order, records the
// outcomes and the terminal decision record, and enqueues the downstream
// job. Re-executing a decision is safe: actions with a stored outcome are
// short-circuited to it.
func (e *Executor) ExecuteDecision(ctx context.Context, decision *models.AgentDecisionResult, resolution models.Resolution, resolvedBy string) (*models.DecisionRecord, error) {
	e.transition(ctx, decision, models.StateExecuting)

	outcomes := make([]models.ActionOutcome, 0, len(decision.Actions))
	failed := 0
	for i, action := range decision.Actions {
		outcome := e.runAction(ctx, decision, i, action)
		outcomes = append(outcomes, outcome)
		if !outcome.Success {
			failed++
		}
	}

	// A terminal action failure never goes unnoticed: synthesize an
	// escalation so a human sees the partial result.
	if failed > 0 && !hasEscalation(decision.Actions) {
		escalation := models.AgentAction{
			Kind: models.ActionEscalate,
			Escalate: &models.EscalateParams{
				Reason:   fmt.Sprintf("%d of %d action(s) failed terminally", failed, len(decision.Actions)),
				Priority: priorityFromUrgency(decision.Intent.Urgency),
			},
		}
		outcome := e.runAction(ctx, decision, len(decision.Actions), escalation)
		outcomes = append(outcomes, outcome)
	}

	finalState := models.StateCompleted
	if failed > 0 {
		finalState = models.StateFailed
	}
	e.transition(ctx, decision, finalState)

	record := &models.DecisionRecord{
		Decision:      *decision,
		Resolution:    resolution,
		ResolvedBy:    resolvedBy,
		ResolvedAt:    time.Now().UTC(),
		ActionResults: outcomes,
	}
	if err := e.store.SaveRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("save decision record: %w", err)
	}

	e.enqueueJob(ctx, decision)

	e.bus.Emit(ctx, bus.Event{
		Name:          EventDecisionExecuted,
		OrgID:         e.orgID,
		CorrelationID: decision.CorrelationID,
		Payload: map[string]interface{}{
			"decision_id": decision.ID,
			"state":       string(finalState),
			"actions":     len(outcomes),
			"failed":      failed,
		},
	})

	log.Info().
		Str("org_id", e.orgID).
		Str("decision_id", decision.ID).
		Str("state", string(finalState)).
		Int("actions", len(outcomes)).
		Int("failed", failed).
		Msg("decision executed")

	return record, nil
}

// runAction executes one action with idempotency, entity locking and
// bounded retries, persists its outcome and emits the per-action event.
func (e *Executor) runAction(ctx context.Context, decision *models.AgentDecisionResult, index int, action models.AgentAction) models.ActionOutcome {
	outcome := models.ActionOutcome{
		DecisionID:  decision.ID,
		ActionIndex: index,
		Kind:        action.Kind,
	}

	if prior := e.priorOutcome(ctx, decision.ID, index); prior != nil {
		log.Debug().
			Str("decision_id", decision.ID).
			Int("action_index", index).
			Msg("action already executed, reusing outcome")
		return *prior
	}

	won, err := e.keeper.Claim(ctx, outcome.IdempotencyKey(), claimTTL)
	if err != nil {
		log.Warn().Err(err).Str("key", outcome.IdempotencyKey()).Msg("idempotency claim errored")
	}
	if !won {
		// Someone else claimed the key. If their outcome landed, reuse it;
		// otherwise suppress the duplicate rather than double-fire.
		if prior := e.priorOutcome(ctx, decision.ID, index); prior != nil {
			return *prior
		}
		outcome.Error = "duplicate execution suppressed"
		outcome.CompletedAt = time.Now().UTC()
		return outcome
	}

	handler, ok := e.handlers[action.Kind]
	if !ok {
		// Unreachable when VerifyRegistrations passed at startup.
		outcome.Error = fmt.Sprintf("no handler for action kind %q", action.Kind)
		outcome.CompletedAt = time.Now().UTC()
		e.finishAction(ctx, decision, &outcome)
		return outcome
	}

	if key := action.EntityKey(); key != "" {
		lock := e.entityLock(key)
		lock.Lock()
		defer lock.Unlock()
	}

	req := actions.Request{
		OrgID:         e.orgID,
		DecisionID:    decision.ID,
		ActionIndex:   index,
		CorrelationID: decision.CorrelationID,
		Priority:      priorityFromUrgency(decision.Intent.Urgency),
		Action:        action,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.InitialBackoff
	bo.MaxElapsedTime = 0

	var data map[string]interface{}
	var execErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		outcome.Attempts = attempt
		data, execErr = handler.Execute(ctx, req)
		if execErr == nil || !actions.Retryable(execErr) {
			break
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}
		delay := bo.NextBackOff()
		log.Warn().
			Err(execErr).
			Str("decision_id", decision.ID).
			Str("kind", string(action.Kind)).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("action attempt failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			execErr = ctx.Err()
			attempt = e.cfg.MaxAttempts
		}
	}

	outcome.Success = execErr == nil
	outcome.Data = data
	if execErr != nil {
		outcome.Error = execErr.Error()
	}
	outcome.CompletedAt = time.Now().UTC()

	e.finishAction(ctx, decision, &outcome)
	return outcome
}

func (e *Executor) finishAction(ctx context.Context, decision *models.AgentDecisionResult, outcome *models.ActionOutcome) {
	if err := e.store.SaveOutcome(ctx, e.orgID, outcome); err != nil {
		log.Error().Err(err).Str("key", outcome.IdempotencyKey()).Msg("outcome save failed")
	}

	name := EventActionCompleted
	if !outcome.Success {
		name = EventActionFailed
	}
	e.bus.Emit(ctx, bus.Event{
		Name:          name,
		OrgID:         e.orgID,
		CorrelationID: decision.CorrelationID,
		Payload: map[string]interface{}{
			"decision_id":  outcome.DecisionID,
			"action_index": outcome.ActionIndex,
			"kind":         string(outcome.Kind),
			"attempts":     outcome.Attempts,
			"error":        outcome.Error,
		},
	})
}

func (e *Executor) priorOutcome(ctx context.Context, decisionID string, index int) *models.ActionOutcome {
	stored, err := e.store.ListOutcomes(ctx, e.orgID, decisionID)
	if err != nil {
		log.Warn().Err(err).Str("decision_id", decisionID).Msg("outcome lookup failed")
		return nil
	}
	for i := range stored {
		if stored[i].ActionIndex == index {
			return &stored[i]
		}
	}
	return nil
}

// transition moves the decision's persisted state, warning instead of
// failing on a transition the state machine does not permit.
func (e *Executor) transition(ctx context.Context, decision *models.AgentDecisionResult, next models.DecisionState) {
	if !decision.State.CanTransitionTo(next) {
		log.Warn().
			Str("decision_id", decision.ID).
			Str("from", string(decision.State)).
			Str("to", string(next)).
			Msg("invalid decision state transition, skipping")
		return
	}
	if err := e.store.UpdateDecisionState(ctx, e.orgID, decision.ID, next); err != nil {
		log.Error().Err(err).Str("decision_id", decision.ID).Msg("state update failed")
		return
	}
	decision.State = next
}

func (e *Executor) enqueueJob(ctx context.Context, decision *models.AgentDecisionResult) {
	if e.queue == nil {
		return
	}
	job := models.Job{
		TaskID:        decision.ID,
		OrgID:         e.orgID,
		Priority:      priorityFromUrgency(decision.Intent.Urgency),
		CorrelationID: decision.CorrelationID,
	}
	if err := e.queue.Enqueue(ctx, job); err != nil {
		log.Error().Err(err).Str("task_id", job.TaskID).Msg("downstream enqueue failed")
	}
}

func (e *Executor) entityLock(key string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}

func hasEscalation(list []models.AgentAction) bool {
	for _, a := range list {
		if a.Kind == models.ActionEscalate {
			return true
		}
	}
	return false
}

func priorityFromUrgency(u models.Urgency) int {
	switch u {
	case models.UrgencyLow:
		return 2
	case models.UrgencyHigh:
		return 4
	case models.UrgencyCritical:
		return 5
	default:
		return 3
	}
}
