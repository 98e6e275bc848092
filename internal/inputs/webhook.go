package inputs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// WebhookHandler ingests generic signed webhooks for one organization.
// Signature verification happens before any parsing; an unauthenticated
// request produces no event and no side effect.
type WebhookHandler struct {
	orgID    string
	settings models.AgentSettings
	bus      *bus.Bus
}

func NewWebhookHandler(orgID string, settings models.AgentSettings, b *bus.Bus) *WebhookHandler {
	return &WebhookHandler{orgID: orgID, settings: settings, bus: b}
}

// AuthError marks a rejected signature. The API layer maps it to 401.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "ingress authentication failed: " + e.Reason }

// Handle verifies and normalizes one webhook delivery. Headers carry the
// signature ("X-Signature", optionally composite "t=...,v1=..." form, plus
// "X-Timestamp"). A valid payload becomes exactly one bus event.
func (h *WebhookHandler) Handle(ctx context.Context, body []byte, headers map[string]string) (*ProcessingResult, error) {
	if err := VerifyIngress(h.settings.WebhookSecret, body, headers, time.Now()); err != nil {
		log.Warn().Err(err).Str("org_id", h.orgID).Msg("webhook rejected")
		return nil, &AuthError{Reason: err.Error()}
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}

	inputType, _ := payload["type"].(string)
	if inputType == "" {
		inputType = "webhook.received"
	}

	input := &models.AgentInput{
		OrgID:      h.orgID,
		Source:     models.SourceWebhook,
		Type:       inputType,
		RawContent: string(body),
		Metadata:   payload,
		Priority:   DetectPriority(headers, string(body)),
	}
	if from, ok := payload["from"].(string); ok {
		input.Contact = &models.ContactInfo{Email: from}
	}
	if corr, ok := payload["correlation_id"].(string); ok {
		input.CorrelationID = corr
	}

	return publishInput(ctx, h.bus, input), nil
}

// headerValue does a case-insensitive header lookup on a plain map.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
