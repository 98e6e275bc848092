package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// decisionPayload mirrors the JSON schema the system prompt demands.
type decisionPayload struct {
	Category   string               `json:"category"`
	Urgency    models.Urgency       `json:"urgency"`
	Confidence float64              `json:"confidence"`
	Reasoning  string               `json:"reasoning"`
	Actions    []models.AgentAction `json:"actions"`
}

// ParseResponse validates an LLM completion into a classification and action
// list. Models wrap JSON in fences or emit trailing commas often enough that
// parsing tries the raw extraction first and a repaired pass second.
func ParseResponse(raw string) (*models.IntentClassification, []models.AgentAction, error) {
	extracted := extractJSON(raw)
	if extracted == "" {
		return nil, nil, fmt.Errorf("no JSON object in response")
	}

	var payload decisionPayload
	if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(extracted)
		if repairErr != nil {
			return nil, nil, fmt.Errorf("parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return nil, nil, fmt.Errorf("parse repaired response: %w", err)
		}
	}

	if err := validatePayload(&payload); err != nil {
		return nil, nil, err
	}

	intent := &models.IntentClassification{
		Category:   payload.Category,
		Urgency:    payload.Urgency,
		Confidence: payload.Confidence,
		Reasoning:  payload.Reasoning,
	}
	return intent, payload.Actions, nil
}

func validatePayload(p *decisionPayload) error {
	if p.Category == "" {
		return fmt.Errorf("response missing category")
	}
	if !p.Urgency.IsValid() {
		return fmt.Errorf("invalid urgency %q", p.Urgency)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]", p.Confidence)
	}
	for i, action := range p.Actions {
		if err := action.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// extractJSON cuts the first balanced top-level JSON object out of a
// response, tolerating markdown fences and surrounding prose.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			raw = rest[:end]
		} else {
			raw = rest
		}
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	// Unbalanced: return the tail and let jsonrepair close it.
	return raw[start:]
}
