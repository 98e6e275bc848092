package inputs_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pipewise/pipewise/agent-core/internal/inputs"
	"github.com/pipewise/pipewise/agent-core/pkg/contracts"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

func changeBody(t *testing.T, change contracts.DBChange) []byte {
	t.Helper()
	body, err := json.Marshal(change)
	if err != nil {
		t.Fatalf("marshal change: %v", err)
	}
	return body
}

func TestDBTriggerSignificantChange(t *testing.T) {
	b, events := captureBus(t)
	h := inputs.NewDBTriggerHandler("org-1", models.DefaultAgentSettings(), b)

	body := changeBody(t, contracts.DBChange{
		Entity:   "intake",
		EntityID: "in-1",
		Before:   map[string]interface{}{"status": "new", "updated_at": "2026-01-01"},
		After:    map[string]interface{}{"status": "assigned", "updated_at": "2026-01-02"},
		At:       time.Now().UTC(),
	})

	result, err := h.Handle(context.Background(), body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.EventEmitted {
		t.Fatal("EventEmitted = false, want true")
	}
	if result.Input.Type != "intake.status_changed" {
		t.Errorf("Type = %q, want %q", result.Input.Type, "intake.status_changed")
	}
	if len(*events) != 1 {
		t.Errorf("emitted %d events, want 1", len(*events))
	}
}

func TestDBTriggerIgnoresNoiseFields(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewDBTriggerHandler("org-1", models.DefaultAgentSettings(), b)

	body := changeBody(t, contracts.DBChange{
		Entity:   "intake",
		EntityID: "in-1",
		Before:   map[string]interface{}{"updated_at": "2026-01-01", "version": 1},
		After:    map[string]interface{}{"updated_at": "2026-01-02", "version": 2},
	})

	result, err := h.Handle(context.Background(), body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.EventEmitted {
		t.Error("noise-only change emitted an event")
	}
	if result.SkipReason == "" {
		t.Error("SkipReason empty for skipped change")
	}
}

func TestDBTriggerConfiguredNoiseFields(t *testing.T) {
	b, _ := captureBus(t)
	settings := models.DefaultAgentSettings()
	settings.NoiseFields = map[string][]string{"intake": {"status"}}
	h := inputs.NewDBTriggerHandler("org-1", settings, b)

	body := changeBody(t, contracts.DBChange{
		Entity:   "intake",
		EntityID: "in-1",
		Before:   map[string]interface{}{"status": "new"},
		After:    map[string]interface{}{"status": "assigned"},
	})

	result, err := h.Handle(context.Background(), body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.EventEmitted {
		t.Error("org-configured noise field emitted an event")
	}
}

func TestDBTriggerUnknownEntity(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewDBTriggerHandler("org-1", models.DefaultAgentSettings(), b)

	body := changeBody(t, contracts.DBChange{
		Entity:   "billing_invoice",
		EntityID: "inv-1",
		Before:   map[string]interface{}{"total": 10},
		After:    map[string]interface{}{"total": 20},
	})

	result, err := h.Handle(context.Background(), body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.EventEmitted {
		t.Error("unmapped entity emitted an event")
	}
}

func TestDBTriggerSignificanceRule(t *testing.T) {
	b, _ := captureBus(t)
	settings := models.DefaultAgentSettings()
	settings.SignificanceRule = `field == "status" && after == "assigned"`
	h := inputs.NewDBTriggerHandler("org-1", settings, b)

	accepted := changeBody(t, contracts.DBChange{
		Entity:   "intake",
		EntityID: "in-1",
		Before:   map[string]interface{}{"status": "new"},
		After:    map[string]interface{}{"status": "assigned"},
	})
	result, err := h.Handle(context.Background(), accepted)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.EventEmitted {
		t.Error("rule-matching change did not emit")
	}

	filtered := changeBody(t, contracts.DBChange{
		Entity:   "intake",
		EntityID: "in-1",
		Before:   map[string]interface{}{"status": "assigned"},
		After:    map[string]interface{}{"status": "closed"},
	})
	result, err = h.Handle(context.Background(), filtered)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.EventEmitted {
		t.Error("rule-filtered change emitted")
	}
}

func TestDBTriggerDiffMetadata(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewDBTriggerHandler("org-1", models.DefaultAgentSettings(), b)

	body := changeBody(t, contracts.DBChange{
		Entity:   "intake",
		EntityID: "in-1",
		Actor:    "user-7",
		Before:   map[string]interface{}{"status": "new", "assignee_id": ""},
		After:    map[string]interface{}{"status": "assigned", "assignee_id": "member-1"},
	})

	result, err := h.Handle(context.Background(), body)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	changed, ok := result.Input.Metadata["changed_fields"].([]string)
	if !ok {
		t.Fatalf("changed_fields has type %T", result.Input.Metadata["changed_fields"])
	}
	// Sorted for deterministic event naming: assignee_id before status.
	if len(changed) != 2 || changed[0] != "assignee_id" || changed[1] != "status" {
		t.Errorf("changed_fields = %v, want [assignee_id status]", changed)
	}
	if result.Input.Type != "intake.reassigned" {
		t.Errorf("Type = %q, want %q (first significant field)", result.Input.Type, "intake.reassigned")
	}
}

func TestWorkerEventHandler(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewWorkerEventHandler("org-1", b)

	payload, _ := json.Marshal(contracts.WorkerEvent{
		JobID:         "job-1",
		JobType:       "notification.send",
		Phase:         contracts.WorkerFailed,
		Attempt:       3,
		MaxAttempts:   3,
		Error:         "smtp unreachable",
		CorrelationID: "corr-1",
		At:            time.Now().UTC(),
	})

	result, err := h.Handle(context.Background(), payload)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Input.Type != "worker.failed" {
		t.Errorf("Type = %q, want %q", result.Input.Type, "worker.failed")
	}
	if result.Input.Priority != 4 {
		t.Errorf("Priority = %d, want 4 for failed jobs", result.Input.Priority)
	}
	if result.Input.CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %q, want %q", result.Input.CorrelationID, "corr-1")
	}

	if _, err := h.Handle(context.Background(), []byte(`{"phase":"started"}`)); err == nil {
		t.Error("Handle accepted a worker event without job_id")
	}
}
