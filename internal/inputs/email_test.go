package inputs_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/internal/inputs"
	"github.com/pipewise/pipewise/agent-core/pkg/contracts"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// captureBus returns a bus plus a slice that accumulates every published
// input.
func captureBus(t *testing.T) (*bus.Bus, *[]bus.Event) {
	t.Helper()
	b := bus.New(nil)
	var events []bus.Event
	for _, name := range inputs.ReceivedEvents {
		b.Subscribe(name, "capture", func(ctx context.Context, e bus.Event) error {
			events = append(events, e)
			return nil
		})
	}
	return b, &events
}

func emailBody(t *testing.T, email contracts.InboundEmail) []byte {
	t.Helper()
	body, err := json.Marshal(email)
	if err != nil {
		t.Fatalf("marshal email: %v", err)
	}
	return body
}

func TestEmailHandlerEmitsInput(t *testing.T) {
	b, events := captureBus(t)
	h := inputs.NewEmailHandler("org-1", models.DefaultAgentSettings(), b)

	body := emailBody(t, contracts.InboundEmail{
		From:      "Alex Doe <a@x.com>",
		To:        "b@y.com",
		Subject:   "Urgent: reset",
		Text:      "asap please",
		MessageID: "<msg-1@x.com>",
	})

	result, err := h.Handle(context.Background(), body, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.EventEmitted {
		t.Fatal("EventEmitted = false, want true")
	}
	if len(*events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(*events))
	}

	input := result.Input
	if input.Type != inputs.EventEmailReceived {
		t.Errorf("Type = %q, want %q", input.Type, inputs.EventEmailReceived)
	}
	if input.Priority < 4 {
		t.Errorf("Priority = %d, want >= 4 for urgent subject", input.Priority)
	}
	if input.Contact == nil || input.Contact.Email != "a@x.com" {
		t.Errorf("Contact = %+v, want email a@x.com", input.Contact)
	}
	if input.Contact.Name != "Alex Doe" {
		t.Errorf("Contact.Name = %q, want %q", input.Contact.Name, "Alex Doe")
	}
	if input.CorrelationID != "msg-1@x.com" {
		t.Errorf("CorrelationID = %q, want %q", input.CorrelationID, "msg-1@x.com")
	}
}

func TestEmailHandlerThreadsReplies(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewEmailHandler("org-1", models.DefaultAgentSettings(), b)

	body := emailBody(t, contracts.InboundEmail{
		From:      "a@x.com",
		Subject:   "Re: meeting",
		Text:      "works for me",
		MessageID: "<msg-2@x.com>",
		InReplyTo: "<msg-1@x.com>",
	})

	result, err := h.Handle(context.Background(), body, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.Input.CorrelationID != "msg-1@x.com" {
		t.Errorf("CorrelationID = %q, want the In-Reply-To id", result.Input.CorrelationID)
	}
}

func TestEmailHandlerDropsSpam(t *testing.T) {
	b, events := captureBus(t)
	h := inputs.NewEmailHandler("org-1", models.DefaultAgentSettings(), b)

	body := emailBody(t, contracts.InboundEmail{
		From:    "win@lucky.xyz",
		Subject: "claim your prize now",
		Text:    "you won",
	})

	result, err := h.Handle(context.Background(), body, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.EventEmitted {
		t.Error("spam email emitted an event")
	}
	if result.SkipReason == "" {
		t.Error("SkipReason empty for dropped spam")
	}
	if len(*events) != 0 {
		t.Errorf("emitted %d events for spam, want 0", len(*events))
	}
}

func TestEmailHandlerSkipsAutoReplies(t *testing.T) {
	b, _ := captureBus(t)
	settings := models.DefaultAgentSettings() // SkipAutoReplies: true
	h := inputs.NewEmailHandler("org-1", settings, b)

	tests := []struct {
		name  string
		email contracts.InboundEmail
	}{
		{"auto-submitted header", contracts.InboundEmail{
			From: "a@x.com", Subject: "Re: hi", Text: "ooo",
			Headers: map[string]string{"Auto-Submitted": "auto-replied"},
		}},
		{"bounce sender", contracts.InboundEmail{
			From: "mailer-daemon@x.com", Subject: "Delivery failed", Text: "bounce",
		}},
		{"out of office subject", contracts.InboundEmail{
			From: "a@x.com", Subject: "Out of Office: back Monday", Text: "away",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.Handle(context.Background(), emailBody(t, tt.email), nil)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if result.EventEmitted {
				t.Error("auto-reply emitted an event")
			}
		})
	}
}

func TestEmailHandlerKeepsAutoRepliesWhenConfigured(t *testing.T) {
	b, _ := captureBus(t)
	settings := models.DefaultAgentSettings()
	settings.SkipAutoReplies = false
	h := inputs.NewEmailHandler("org-1", settings, b)

	body := emailBody(t, contracts.InboundEmail{
		From: "a@x.com", Subject: "Automatic reply: hi", Text: "away this week",
		Headers: map[string]string{"Auto-Submitted": "auto-replied"},
	})

	result, err := h.Handle(context.Background(), body, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.EventEmitted {
		t.Error("auto-reply dropped despite SkipAutoReplies=false")
	}
}

func TestEmailHandlerStripsHTML(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewEmailHandler("org-1", models.DefaultAgentSettings(), b)

	body := emailBody(t, contracts.InboundEmail{
		From:    "a@x.com",
		Subject: "question",
		HTML:    `<html><head><style>p{color:red}</style></head><body><p>Hello there</p><script>alert(1)</script></body></html>`,
	})

	result, err := h.Handle(context.Background(), body, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	content := result.Input.RawContent
	if !strings.Contains(content, "Hello there") {
		t.Errorf("RawContent = %q, want the visible text", content)
	}
	if strings.Contains(content, "alert(1)") || strings.Contains(content, "color:red") {
		t.Errorf("RawContent = %q, script/style leaked through", content)
	}
}

func TestEmailHandlerExtractsICS(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewEmailHandler("org-1", models.DefaultAgentSettings(), b)

	ics := "BEGIN:VCALENDAR\r\nBEGIN:VEVENT\r\nUID:ev-1\r\nSUMMARY:Kickoff\r\n" +
		"DTSTART:20260401T140000Z\r\nDTEND:20260401T150000Z\r\nLOCATION:Room 4\r\n" +
		"ORGANIZER:mailto:host@x.com\r\nATTENDEE;CN=Alex:mailto:a@x.com\r\n" +
		"END:VEVENT\r\nEND:VCALENDAR\r\n"

	body := emailBody(t, contracts.InboundEmail{
		From:    "host@x.com",
		Subject: "Invitation: Kickoff",
		Text:    "please join",
		Attachments: []contracts.EmailAttachment{{
			Filename:    "invite.ics",
			ContentType: "text/calendar",
			Content:     base64.StdEncoding.EncodeToString([]byte(ics)),
		}},
	})

	result, err := h.Handle(context.Background(), body, nil)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	raw, ok := result.Input.Metadata["event_proposal"]
	if !ok {
		t.Fatal("Metadata missing event_proposal")
	}
	proposal, ok := raw.(*contracts.EventProposal)
	if !ok {
		t.Fatalf("event_proposal has type %T", raw)
	}
	if proposal.Title != "Kickoff" {
		t.Errorf("Title = %q, want %q", proposal.Title, "Kickoff")
	}
	if proposal.Start.IsZero() || proposal.End.IsZero() {
		t.Error("proposal window not parsed")
	}
	if proposal.Location != "Room 4" {
		t.Errorf("Location = %q, want %q", proposal.Location, "Room 4")
	}
	if len(proposal.Attendees) != 1 || proposal.Attendees[0] != "a@x.com" {
		t.Errorf("Attendees = %v, want [a@x.com]", proposal.Attendees)
	}
}

func TestEmailHandlerMalformedPayload(t *testing.T) {
	b, _ := captureBus(t)
	h := inputs.NewEmailHandler("org-1", models.DefaultAgentSettings(), b)

	if _, err := h.Handle(context.Background(), []byte("{not json"), nil); err == nil {
		t.Error("Handle accepted malformed JSON")
	}
	if _, err := h.Handle(context.Background(), []byte(`{"subject":"hi"}`), nil); err == nil {
		t.Error("Handle accepted an email without a sender")
	}
}

func TestEmailHandlerRejectsUnsignedDelivery(t *testing.T) {
	b, events := captureBus(t)
	h := inputs.NewEmailHandler("org-1", webhookSettings("s3cret"), b)

	body := emailBody(t, contracts.InboundEmail{
		From:    "a@x.com",
		To:      "b@y.com",
		Subject: "Urgent: reset",
		Text:    "asap please",
	})

	_, err := h.Handle(context.Background(), body, nil)
	if err == nil {
		t.Fatal("Handle accepted an unsigned email delivery")
	}
	var authErr *inputs.AuthError
	if !errors.As(err, &authErr) {
		t.Errorf("error type = %T, want *inputs.AuthError", err)
	}
	if len(*events) != 0 {
		t.Errorf("emitted %d events for rejected email, want 0", len(*events))
	}
}

func TestEmailHandlerRejectsBadSignature(t *testing.T) {
	b, events := captureBus(t)
	h := inputs.NewEmailHandler("org-1", webhookSettings("s3cret"), b)

	body := emailBody(t, contracts.InboundEmail{From: "a@x.com", Subject: "hi"})
	headers := map[string]string{"X-Signature": sign(t, "wrong-secret", body)}

	if _, err := h.Handle(context.Background(), body, headers); err == nil {
		t.Fatal("Handle accepted a bad signature")
	}
	if len(*events) != 0 {
		t.Errorf("emitted %d events for rejected email, want 0", len(*events))
	}
}

func TestEmailHandlerAcceptsSignedDelivery(t *testing.T) {
	b, events := captureBus(t)
	h := inputs.NewEmailHandler("org-1", webhookSettings("s3cret"), b)

	body := emailBody(t, contracts.InboundEmail{From: "a@x.com", Subject: "hi", Text: "hello"})
	headers := map[string]string{"X-Signature": sign(t, "s3cret", body)}

	result, err := h.Handle(context.Background(), body, headers)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !result.EventEmitted {
		t.Error("EventEmitted = false, want true")
	}
	if len(*events) != 1 {
		t.Errorf("emitted %d events, want 1", len(*events))
	}
}
