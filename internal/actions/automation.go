package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/inputs"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

const defaultAutomationTimeout = 10 * time.Second

// AutomationTrigger invokes external workflows over their webhooks. Outbound
// payloads are HMAC-signed with the org's automation secret using the same
// scheme the inbound webhook handler verifies. Calls are bounded by a hard
// timeout; the executor's backoff policy owns retries.
type AutomationTrigger struct {
	settings models.AgentSettings
	client   *http.Client
}

func NewAutomationTrigger(settings models.AgentSettings) *AutomationTrigger {
	return &AutomationTrigger{
		settings: settings,
		client:   &http.Client{},
	}
}

// SetHTTPClient overrides the transport, for tests.
func (h *AutomationTrigger) SetHTTPClient(c *http.Client) { h.client = c }

func (h *AutomationTrigger) Kind() models.ActionKind { return models.ActionTriggerAutomation }

func (h *AutomationTrigger) timeout() time.Duration {
	if h.settings.AutomationTimeoutSeconds > 0 {
		return time.Duration(h.settings.AutomationTimeoutSeconds) * time.Second
	}
	return defaultAutomationTimeout
}

func (h *AutomationTrigger) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	params := req.Action.TriggerAutomation

	url, ok := h.settings.Automations[params.AutomationID]
	if !ok || url == "" {
		return nil, &NotFoundError{Entity: "automation", Key: params.AutomationID}
	}

	body, err := json.Marshal(map[string]interface{}{
		"automation_id":  params.AutomationID,
		"org_id":         req.OrgID,
		"decision_id":    req.DecisionID,
		"correlation_id": req.CorrelationID,
		"payload":        params.Payload,
		"triggered_at":   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal automation payload: %w", err)
	}

	timeout := h.timeout()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build automation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.settings.AutomationSecret != "" {
		httpReq.Header.Set("X-Signature", inputs.Sign(h.settings.AutomationSecret, body, time.Now()))
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return nil, &ExecutionTimeoutError{AutomationID: params.AutomationID, Timeout: timeout}
		}
		return nil, fmt.Errorf("automation call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &WebhookRequestError{AutomationID: params.AutomationID, Status: resp.StatusCode}
	}

	log.Info().
		Str("org_id", req.OrgID).
		Str("automation_id", params.AutomationID).
		Int("status", resp.StatusCode).
		Msg("automation triggered")

	return map[string]interface{}{
		"automation_id": params.AutomationID,
		"status":        resp.StatusCode,
	}, nil
}
