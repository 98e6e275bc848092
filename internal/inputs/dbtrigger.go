package inputs

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/pkg/contracts"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// significanceTable maps (entity, field) to the event name emitted when that
// field changes. Fields absent from the table never produce an input.
var significanceTable = map[string]map[string]string{
	"intake": {
		"status":      "intake.status_changed",
		"stage_id":    "intake.stage_changed",
		"pipeline_id": "intake.pipeline_changed",
		"assignee_id": "intake.reassigned",
	},
	"calendar_event": {
		"start":  "event.rescheduled",
		"end":    "event.rescheduled",
		"status": "event.status_changed",
	},
	"notification": {
		"status": "notification.status_changed",
	},
}

// Fields that change on every write and are never signal.
var builtinNoiseFields = map[string]bool{
	"updated_at": true,
	"created_at": true,
	"version":    true,
}

// DBTriggerHandler turns explicit before/after change events from the
// application's write sites into agent inputs. Only significant field
// changes emit; noise fields and an optional org-level significance rule
// filter the rest.
type DBTriggerHandler struct {
	orgID    string
	settings models.AgentSettings
	bus      *bus.Bus

	// rule is the compiled settings.SignificanceRule, nil when unset.
	rule *vm.Program
}

func NewDBTriggerHandler(orgID string, settings models.AgentSettings, b *bus.Bus) *DBTriggerHandler {
	h := &DBTriggerHandler{orgID: orgID, settings: settings, bus: b}
	if settings.SignificanceRule != "" {
		program, err := expr.Compile(settings.SignificanceRule, expr.AsBool())
		if err != nil {
			log.Error().
				Err(err).
				Str("org_id", orgID).
				Msg("invalid significance rule, ignoring")
		} else {
			h.rule = program
		}
	}
	return h
}

// Handle diffs one change event and emits at most one input. The first
// significant field (alphabetically, for determinism) picks the event name;
// all changed fields ride along in metadata.
func (h *DBTriggerHandler) Handle(ctx context.Context, body []byte) (*ProcessingResult, error) {
	var change contracts.DBChange
	if err := json.Unmarshal(body, &change); err != nil {
		return nil, fmt.Errorf("malformed change event: %w", err)
	}
	if change.Entity == "" || change.EntityID == "" {
		return nil, fmt.Errorf("change event missing entity or entity_id")
	}

	changed := h.changedFields(&change)
	if len(changed) == 0 {
		return skipped("no significant fields changed"), nil
	}

	eventName := significanceTable[change.Entity][changed[0]]
	diff := make(map[string]interface{}, len(changed))
	for _, field := range changed {
		diff[field] = map[string]interface{}{
			"before": change.Before[field],
			"after":  change.After[field],
		}
	}

	input := &models.AgentInput{
		OrgID:      h.orgID,
		Source:     models.SourceDBTrigger,
		Type:       eventName,
		RawContent: fmt.Sprintf("%s %s changed: %v", change.Entity, change.EntityID, changed),
		Metadata: map[string]interface{}{
			"entity":         change.Entity,
			"entity_id":      change.EntityID,
			"actor":          change.Actor,
			"changed_fields": changed,
			"diff":           diff,
		},
		Priority: 3,
	}

	return publishInput(ctx, h.bus, input), nil
}

// changedFields returns the significant fields whose values differ between
// the before and after snapshots, sorted for deterministic event naming.
func (h *DBTriggerHandler) changedFields(change *contracts.DBChange) []string {
	mapped, ok := significanceTable[change.Entity]
	if !ok {
		return nil
	}
	noise := h.settings.NoiseFields[change.Entity]

	var changed []string
	for field := range mapped {
		if builtinNoiseFields[field] || contains(noise, field) {
			continue
		}
		before, after := change.Before[field], change.After[field]
		if reflect.DeepEqual(before, after) {
			continue
		}
		if h.rule != nil && !h.evalRule(change.Entity, field, before, after) {
			continue
		}
		changed = append(changed, field)
	}
	sort.Strings(changed)
	return changed
}

func (h *DBTriggerHandler) evalRule(entity, field string, before, after interface{}) bool {
	out, err := expr.Run(h.rule, map[string]interface{}{
		"entity": entity,
		"field":  field,
		"before": before,
		"after":  after,
	})
	if err != nil {
		log.Warn().Err(err).Str("org_id", h.orgID).Msg("significance rule evaluation failed")
		return true // a broken rule must not swallow real changes
	}
	result, _ := out.(bool)
	return result
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
