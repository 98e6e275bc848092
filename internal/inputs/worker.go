package inputs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/pkg/contracts"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// WorkerEventHandler adapts job-queue lifecycle notifications into agent
// inputs, letting the agent react to its own asynchronous work — a failed
// job is the case that matters most.
type WorkerEventHandler struct {
	orgID string
	bus   *bus.Bus
}

func NewWorkerEventHandler(orgID string, b *bus.Bus) *WorkerEventHandler {
	return &WorkerEventHandler{orgID: orgID, bus: b}
}

// Handle normalizes one worker lifecycle event. Every phase produces an
// input; failures carry elevated priority so the decision engine sees them
// promptly.
func (h *WorkerEventHandler) Handle(ctx context.Context, body []byte) (*ProcessingResult, error) {
	var event contracts.WorkerEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("malformed worker event: %w", err)
	}
	if event.JobID == "" || event.Phase == "" {
		return nil, fmt.Errorf("worker event missing job_id or phase")
	}

	priority := 2
	content := fmt.Sprintf("job %s (%s) %s", event.JobID, event.JobType, event.Phase)
	if event.Phase == contracts.WorkerFailed {
		priority = 4
		content += ": " + event.Error
	}

	input := &models.AgentInput{
		OrgID:      h.orgID,
		Source:     models.SourceWorker,
		Type:       "worker." + string(event.Phase),
		RawContent: content,
		Metadata: map[string]interface{}{
			"job_id":       event.JobID,
			"job_type":     event.JobType,
			"phase":        string(event.Phase),
			"attempt":      event.Attempt,
			"max_attempts": event.MaxAttempts,
			"error":        event.Error,
		},
		Priority:      priority,
		CorrelationID: event.CorrelationID,
	}

	return publishInput(ctx, h.bus, input), nil
}
