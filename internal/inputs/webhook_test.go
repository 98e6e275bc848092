package inputs_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/pipewise/pipewise/agent-core/internal/inputs"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

func webhookSettings(secret string) models.AgentSettings {
	s := models.DefaultAgentSettings()
	s.WebhookSecret = secret
	return s
}

func TestWebhookHandlerValidSignature(t *testing.T) {
	b, events := captureBus(t)
	h := inputs.NewWebhookHandler("org-1", webhookSettings("s3cret"), b)

	body := []byte(`{"type":"form.submitted","from":"a@x.com","text":"asap please"}`)
	headers := map[string]string{"X-Signature": sign(t, "s3cret", body)}

	result, err := h.Handle(context.Background(), body, headers)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.EventEmitted {
		t.Fatal("EventEmitted = false, want true")
	}
	if len(*events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(*events))
	}
	if result.Input.Type != "form.submitted" {
		t.Errorf("Type = %q, want %q", result.Input.Type, "form.submitted")
	}
	if result.Input.Priority < 4 {
		t.Errorf("Priority = %d, want >= 4 for asap content", result.Input.Priority)
	}
	if result.Input.Contact == nil || result.Input.Contact.Email != "a@x.com" {
		t.Errorf("Contact = %+v, want a@x.com", result.Input.Contact)
	}
}

func TestWebhookHandlerRejectsBadSignature(t *testing.T) {
	b, events := captureBus(t)
	h := inputs.NewWebhookHandler("org-1", webhookSettings("s3cret"), b)

	body := []byte(`{"type":"form.submitted"}`)
	headers := map[string]string{"X-Signature": sign(t, "wrong-secret", body)}

	_, err := h.Handle(context.Background(), body, headers)
	if err == nil {
		t.Fatal("Handle accepted a bad signature")
	}
	var authErr *inputs.AuthError
	if !errors.As(err, &authErr) {
		t.Errorf("error type = %T, want *inputs.AuthError", err)
	}
	if len(*events) != 0 {
		t.Errorf("emitted %d events for rejected webhook, want 0", len(*events))
	}
}

func TestWebhookHandlerCompositeHeader(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewWebhookHandler("org-1", webhookSettings("s3cret"), b)

	now := time.Now()
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"type":"ping"}`)
	headers := map[string]string{
		"X-Signature": "t=" + ts + ",v1=" + sign(t, "s3cret", []byte(ts+"."+string(body))),
	}

	result, err := h.Handle(context.Background(), body, headers)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.EventEmitted {
		t.Error("EventEmitted = false, want true")
	}
}

func TestWebhookHandlerSharedToken(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewWebhookHandler("org-1", webhookSettings("tok-1"), b)

	body := []byte(`{"type":"ping"}`)
	headers := map[string]string{"X-Webhook-Token": "tok-1"}

	if _, err := h.Handle(context.Background(), body, headers); err != nil {
		t.Fatalf("Handle with shared token: %v", err)
	}

	headers["X-Webhook-Token"] = "tok-2"
	if _, err := h.Handle(context.Background(), body, headers); err == nil {
		t.Error("Handle accepted a wrong shared token")
	}
}

func TestWebhookHandlerNoSecretSkipsVerification(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewWebhookHandler("org-1", webhookSettings(""), b)

	body := []byte(`{"type":"ping"}`)
	result, err := h.Handle(context.Background(), body, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.EventEmitted {
		t.Error("EventEmitted = false, want true")
	}
}

func TestWebhookHandlerMalformedPayload(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewWebhookHandler("org-1", webhookSettings("s3cret"), b)

	body := []byte(`{broken`)
	headers := map[string]string{"X-Signature": sign(t, "s3cret", body)}

	if _, err := h.Handle(context.Background(), body, headers); err == nil {
		t.Error("Handle accepted malformed JSON")
	}
}
