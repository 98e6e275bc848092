// Package actions implements the side-effecting handlers behind each action
// kind: pipeline assignment, calendar management, notification dispatch,
// automation triggering and escalation. Handlers own their conflict and
// validation rules; the executor owns retries, idempotency and locking.
package actions

import (
	"context"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Request is one action execution as seen by a handler. The executor fills
// it from the decision being executed.
type Request struct {
	OrgID         string
	DecisionID    string
	ActionIndex   int
	CorrelationID string
	Priority      int
	Action        models.AgentAction
}

// Handler performs the side effect for one action kind. The returned map is
// stored on the ActionOutcome as result data.
type Handler interface {
	Kind() models.ActionKind
	Execute(ctx context.Context, req Request) (map[string]interface{}, error)
}
