// Package inputs contains the four ingress handlers (webhook, email, worker
// events, database triggers). Each normalizes its raw payload into a
// models.AgentInput and publishes it on the event bus; the decision engine
// consumes those inputs downstream.
package inputs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// ReceivedEventName is the bus event name for a normalized input, derived
// from its source: "webhook.received", "email.received", "worker.received",
// "db_trigger.received".
func ReceivedEventName(source models.InputSource) string {
	return string(source) + ".received"
}

// ReceivedEvents lists the event names of every ingress source. Consumers
// of normalized inputs subscribe to all of them.
var ReceivedEvents = []string{
	ReceivedEventName(models.SourceWebhook),
	ReceivedEventName(models.SourceEmail),
	ReceivedEventName(models.SourceWorker),
	ReceivedEventName(models.SourceDBTrigger),
}

// ProcessingResult is the common outcome of handling one raw payload.
type ProcessingResult struct {
	Success      bool               `json:"success"`
	Input        *models.AgentInput `json:"input,omitempty"`
	EventEmitted bool               `json:"event_emitted"`

	// SkipReason is set when a well-formed payload was deliberately not
	// turned into an input (spam, auto-reply, insignificant change).
	SkipReason string `json:"skip_reason,omitempty"`

	Error string `json:"error,omitempty"`
}

func skipped(reason string) *ProcessingResult {
	return &ProcessingResult{Success: true, SkipReason: reason}
}

// publishInput emits the input on the bus and stamps the result. The emit is
// synchronous: by the time this returns, every subscriber has seen the input.
func publishInput(ctx context.Context, b *bus.Bus, input *models.AgentInput) *ProcessingResult {
	if input.ID == "" {
		input.ID = uuid.NewString()
	}
	if input.CorrelationID == "" {
		input.CorrelationID = input.ID
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now().UTC()
	}

	b.Emit(ctx, bus.Event{
		Name:          ReceivedEventName(input.Source),
		OrgID:         input.OrgID,
		CorrelationID: input.CorrelationID,
		Payload: map[string]interface{}{
			"input_id": input.ID,
			"source":   string(input.Source),
			"type":     input.Type,
			"priority": input.Priority,
			"input":    input,
		},
	})

	return &ProcessingResult{Success: true, Input: input, EventEmitted: true}
}
