package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/internal/llm"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Bus event names emitted by the engine.
const (
	EventDecisionMade     = "decision.made"
	EventDecisionFallback = "decision.fallback"
)

// Engine turns inputs into decisions. One engine serves one organization;
// cross-org isolation falls out of each org owning its own pipeline.
type Engine struct {
	orgID    string
	settings models.AgentSettings
	client   *llm.Client
	builder  *ContextBuilder
	store    store.Store
	bus      *bus.Bus
}

func NewEngine(orgID string, settings models.AgentSettings, client *llm.Client, s store.Store, b *bus.Bus) *Engine {
	return &Engine{
		orgID:    orgID,
		settings: settings,
		client:   client,
		builder:  NewContextBuilder(s),
		store:    s,
		bus:      b,
	}
}

// Decide runs the full classification pipeline for one input. It never
// returns a nil decision alongside a nil error: when the model path fails
// the fallback decision escalates to a human queue, so no input is silently
// dropped. The returned error reports persistence problems only.
func (e *Engine) Decide(ctx context.Context, input *models.AgentInput) (*models.AgentDecisionResult, error) {
	decision := &models.AgentDecisionResult{
		ID:            uuid.NewString(),
		InputID:       input.ID,
		OrgID:         e.orgID,
		CorrelationID: input.CorrelationID,
		State:         models.StatePendingClassification,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("persist decision: %w", err)
	}

	dc := e.builder.Build(ctx, input, e.settings)
	intent, actions, err := e.classify(ctx, input, dc, decision)
	if err != nil {
		log.Warn().
			Err(err).
			Str("org_id", e.orgID).
			Str("input_id", input.ID).
			Msg("classification failed, using fallback decision")
		e.applyFallback(decision, input, err)
	} else {
		decision.Intent = *intent
		decision.Actions = actions
		decision.Confidence = intent.Confidence
		decision.State = models.StateClassified
	}

	// Confirmation gate: auto-execute only with high confidence and no
	// destructive action in the candidate set.
	decision.RequiresConfirmation = e.requiresConfirmation(decision)
	if decision.State == models.StateClassified {
		if decision.RequiresConfirmation {
			decision.State = models.StateAwaitingConfirmation
		} else {
			decision.State = models.StateAutoApproved
		}
	}

	if err := e.store.CreateDecision(ctx, decision); err != nil {
		return nil, fmt.Errorf("persist decision: %w", err)
	}

	eventName := EventDecisionMade
	if decision.Fallback {
		eventName = EventDecisionFallback
	}
	e.bus.Emit(ctx, bus.Event{
		Name:          eventName,
		OrgID:         e.orgID,
		CorrelationID: decision.CorrelationID,
		Payload: map[string]interface{}{
			"decision_id":           decision.ID,
			"input_id":              input.ID,
			"category":              decision.Intent.Category,
			"confidence":            decision.Confidence,
			"requires_confirmation": decision.RequiresConfirmation,
			"state":                 string(decision.State),
			"action_count":          len(decision.Actions),
		},
	})

	return decision, nil
}

// classify runs the LLM round trip. Retries and provider failover live in
// the llm client; a parse failure here is terminal for the model path.
func (e *Engine) classify(ctx context.Context, input *models.AgentInput, dc *Context, decision *models.AgentDecisionResult) (*models.IntentClassification, []models.AgentAction, error) {
	completion, err := e.client.Complete(ctx, llm.CompletionRequest{
		Messages: BuildPrompt(input, dc),
	})
	if err != nil {
		return nil, nil, err
	}
	decision.RawResponse = completion.Content

	intent, actions, err := ParseResponse(completion.Content)
	if err != nil {
		return nil, nil, fmt.Errorf("response from %s: %w", completion.Provider, err)
	}
	return intent, actions, nil
}

// applyFallback fills a deterministic, LLM-free decision: escalate to the
// human queue, always behind the confirmation gate.
func (e *Engine) applyFallback(decision *models.AgentDecisionResult, input *models.AgentInput, cause error) {
	decision.Fallback = true
	decision.Confidence = 0
	decision.Intent = models.IntentClassification{
		Category:  "unclassified",
		Urgency:   urgencyFromPriority(input.Priority),
		Reasoning: "automatic classification unavailable: " + cause.Error(),
	}
	decision.Actions = []models.AgentAction{{
		Kind: models.ActionEscalate,
		Escalate: &models.EscalateParams{
			Reason:   "automatic classification failed; human review required",
			Priority: input.Priority,
		},
	}}
	decision.State = models.StateClassified
}

func (e *Engine) requiresConfirmation(decision *models.AgentDecisionResult) bool {
	if decision.Fallback {
		return true
	}
	if decision.Confidence < e.settings.AutoExecuteThreshold {
		return true
	}
	for _, action := range decision.Actions {
		if e.settings.IsDestructive(action.Kind) {
			return true
		}
	}
	return false
}

func urgencyFromPriority(priority int) models.Urgency {
	switch {
	case priority >= 5:
		return models.UrgencyCritical
	case priority == 4:
		return models.UrgencyHigh
	case priority <= 2:
		return models.UrgencyLow
	default:
		return models.UrgencyNormal
	}
}
