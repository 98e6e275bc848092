package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

const defaultEscalationQueue = "triage"

// Escalator routes an input to a human queue. It writes the audit trail
// entry humans triage from; delivery to reviewers rides the downstream job
// queue keyed by the escalation priority.
type Escalator struct {
	store store.Store
}

func NewEscalator(s store.Store) *Escalator {
	return &Escalator{store: s}
}

func (h *Escalator) Kind() models.ActionKind { return models.ActionEscalate }

func (h *Escalator) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	params := req.Action.Escalate

	queue := params.Queue
	if queue == "" {
		queue = defaultEscalationQueue
	}
	priority := params.Priority
	if priority <= 0 {
		priority = req.Priority
	}

	entry := &models.ActivityEntry{
		ID:      uuid.NewString(),
		OrgID:   req.OrgID,
		Actor:   "agent",
		Verb:    "escalated",
		Subject: "decision:" + req.DecisionID,
		Detail: map[string]interface{}{
			"reason":         params.Reason,
			"queue":          queue,
			"priority":       priority,
			"correlation_id": req.CorrelationID,
		},
		At: time.Now().UTC(),
	}
	if err := h.store.AppendActivity(ctx, entry); err != nil {
		return nil, fmt.Errorf("record escalation: %w", err)
	}

	log.Warn().
		Str("org_id", req.OrgID).
		Str("decision_id", req.DecisionID).
		Str("queue", queue).
		Int("priority", priority).
		Str("reason", params.Reason).
		Msg("decision escalated to human queue")

	return map[string]interface{}{
		"queue":    queue,
		"priority": priority,
	}, nil
}
