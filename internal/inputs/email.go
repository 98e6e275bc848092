package inputs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/bus"
	"github.com/pipewise/pipewise/agent-core/pkg/contracts"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// EventEmailReceived is emitted for every accepted inbound email.
const EventEmailReceived = "email.received"

// EmailHandler ingests inbound email webhooks: strips HTML and signatures,
// filters spam and auto-replies, extracts ICS proposals, and threads replies
// onto the original correlation id.
type EmailHandler struct {
	orgID    string
	settings models.AgentSettings
	bus      *bus.Bus
}

func NewEmailHandler(orgID string, settings models.AgentSettings, b *bus.Bus) *EmailHandler {
	return &EmailHandler{orgID: orgID, settings: settings, bus: b}
}

// Handle verifies and normalizes one inbound email delivery. The provider
// webhook is authenticated exactly like the generic webhook ingress, before
// any parsing. Spam and (configurably) auto-replies are dropped without an
// event; everything else becomes exactly one email.received input.
func (h *EmailHandler) Handle(ctx context.Context, body []byte, headers map[string]string) (*ProcessingResult, error) {
	if err := VerifyIngress(h.settings.WebhookSecret, body, headers, time.Now()); err != nil {
		log.Warn().Err(err).Str("org_id", h.orgID).Msg("inbound email rejected")
		return nil, &AuthError{Reason: err.Error()}
	}

	var email contracts.InboundEmail
	if err := json.Unmarshal(body, &email); err != nil {
		return nil, fmt.Errorf("malformed email payload: %w", err)
	}
	if email.From == "" {
		return nil, fmt.Errorf("email payload missing sender")
	}

	if reason := spamReason(&email); reason != "" {
		log.Info().
			Str("org_id", h.orgID).
			Str("from", email.From).
			Str("reason", reason).
			Msg("inbound email dropped as spam")
		return skipped("spam: " + reason), nil
	}

	if h.settings.SkipAutoReplies {
		if reason := autoReplyReason(&email); reason != "" {
			return skipped("auto-reply: " + reason), nil
		}
	}

	content := email.Text
	if content == "" && email.HTML != "" {
		content = stripHTML(email.HTML)
	}
	content = stripSignature(content)

	metadata := map[string]interface{}{
		"from":       email.From,
		"to":         email.To,
		"subject":    email.Subject,
		"message_id": email.MessageID,
	}
	if proposal := extractEventProposal(&email); proposal != nil {
		metadata["event_proposal"] = proposal
	}
	if len(email.Attachments) > 0 {
		names := make([]string, len(email.Attachments))
		for i, a := range email.Attachments {
			names[i] = a.Filename
		}
		metadata["attachments"] = names
	}

	input := &models.AgentInput{
		OrgID:      h.orgID,
		Source:     models.SourceEmail,
		Type:       EventEmailReceived,
		RawContent: email.Subject + "\n\n" + content,
		Metadata:   metadata,
		Contact:    contactFromAddress(email.From),
		Priority:   DetectPriority(email.Headers, email.Subject+" "+content),
	}

	// Replies thread onto the original message's correlation id so the
	// decision engine sees the prior exchange as context.
	if email.InReplyTo != "" {
		input.CorrelationID = normalizeMessageID(email.InReplyTo)
	} else if email.MessageID != "" {
		input.CorrelationID = normalizeMessageID(email.MessageID)
	}

	return publishInput(ctx, h.bus, input), nil
}

// ── Spam & Auto-Reply Heuristics ────────────────────────────

var spamSubjectPatterns = []string{
	"viagra", "lottery", "winner!!", "claim your prize", "crypto investment",
	"work from home!!!", "100% free", "act now",
}

var spamSenderDomains = []string{
	".xyz", ".top", ".loan", ".click", ".buzz",
}

// spamReason applies subject-pattern and sender-domain heuristics. Returns
// "" for ham.
func spamReason(email *contracts.InboundEmail) string {
	subject := strings.ToLower(email.Subject)
	for _, pattern := range spamSubjectPatterns {
		if strings.Contains(subject, pattern) {
			return "subject pattern " + pattern
		}
	}

	domain := senderDomain(email.From)
	for _, bad := range spamSenderDomains {
		if strings.HasSuffix(domain, bad) {
			return "sender domain " + domain
		}
	}

	// All-caps subjects over a threshold length are overwhelmingly junk.
	if len(email.Subject) > 12 && email.Subject == strings.ToUpper(email.Subject) &&
		strings.ToLower(email.Subject) != email.Subject {
		return "all-caps subject"
	}
	return ""
}

// autoReplyReason detects out-of-office replies and delivery bounces from
// standard headers and sender conventions. Returns "" for a human email.
func autoReplyReason(email *contracts.InboundEmail) string {
	for key, value := range email.Headers {
		switch strings.ToLower(key) {
		case "auto-submitted":
			if !strings.EqualFold(value, "no") {
				return "Auto-Submitted header"
			}
		case "x-autoreply", "x-autorespond":
			return "auto-reply header"
		case "precedence":
			v := strings.ToLower(value)
			if v == "bulk" || v == "junk" || v == "auto_reply" {
				return "Precedence " + v
			}
		}
	}

	local := strings.ToLower(email.From)
	if at := strings.Index(local, "@"); at > 0 {
		local = local[:at]
	}
	switch local {
	case "mailer-daemon", "postmaster", "no-reply", "noreply", "donotreply":
		return "bounce sender " + local
	}

	subject := strings.ToLower(email.Subject)
	for _, prefix := range []string{"out of office", "automatic reply", "delivery status notification", "undeliverable"} {
		if strings.HasPrefix(subject, prefix) {
			return "subject " + prefix
		}
	}
	return ""
}

// ── Content Extraction ──────────────────────────────────────

// stripHTML renders an HTML body down to its visible text.
func stripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style, head").Remove()
	text := doc.Text()

	// Collapse the whitespace soup HTML leaves behind.
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// stripSignature drops everything below a conventional signature delimiter.
func stripSignature(text string) string {
	for _, delim := range []string{"\n-- \n", "\n--\n", "\nSent from my "} {
		if idx := strings.Index(text, delim); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}

func contactFromAddress(from string) *models.ContactInfo {
	// "Display Name <addr@host>" or bare address.
	contact := &models.ContactInfo{}
	if open := strings.Index(from, "<"); open >= 0 {
		if close := strings.Index(from[open:], ">"); close > 0 {
			contact.Email = strings.TrimSpace(from[open+1 : open+close])
			contact.Name = strings.Trim(strings.TrimSpace(from[:open]), `"`)
			return contact
		}
	}
	contact.Email = strings.TrimSpace(from)
	return contact
}

func senderDomain(from string) string {
	addr := contactFromAddress(from).Email
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		return strings.ToLower(addr[at+1:])
	}
	return ""
}

func normalizeMessageID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

// ── ICS Extraction ──────────────────────────────────────────

// extractEventProposal pulls the first VEVENT out of any calendar attachment.
// Returns nil when no parseable invite is present.
func extractEventProposal(email *contracts.InboundEmail) *contracts.EventProposal {
	for _, att := range email.Attachments {
		if !isCalendarAttachment(att) || att.Content == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			// Some providers deliver ICS inline rather than base64.
			raw = []byte(att.Content)
		}
		if proposal := parseICS(string(raw)); proposal != nil {
			return proposal
		}
	}
	return nil
}

func isCalendarAttachment(att contracts.EmailAttachment) bool {
	if strings.Contains(strings.ToLower(att.ContentType), "text/calendar") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(att.Filename), ".ics")
}

// parseICS reads the minimal VEVENT fields out of an iCalendar document.
// Full RFC 5545 handling (recurrence, timezone database) is out of scope;
// the proposal only needs enough structure for the calendar manager.
func parseICS(data string) *contracts.EventProposal {
	inEvent := false
	proposal := &contracts.EventProposal{}

	// Unfold continuation lines (RFC 5545 §3.1).
	data = strings.ReplaceAll(data, "\r\n ", "")
	data = strings.ReplaceAll(data, "\n ", "")

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "BEGIN:VEVENT":
			inEvent = true
			continue
		case line == "END:VEVENT":
			if proposal.Start.IsZero() {
				return nil
			}
			return proposal
		}
		if !inEvent {
			continue
		}

		name, value := splitICSLine(line)
		switch name {
		case "SUMMARY":
			proposal.Title = value
		case "LOCATION":
			proposal.Location = value
		case "UID":
			proposal.UID = value
		case "DTSTART":
			proposal.Start = parseICSTime(value)
		case "DTEND":
			proposal.End = parseICSTime(value)
		case "ORGANIZER":
			proposal.Organizer = strings.TrimPrefix(strings.ToLower(value), "mailto:")
		case "ATTENDEE":
			addr := strings.TrimPrefix(strings.ToLower(value), "mailto:")
			proposal.Attendees = append(proposal.Attendees, addr)
		}
	}
	return nil
}

// splitICSLine separates "NAME;PARAM=X:value" into (NAME, value).
func splitICSLine(line string) (string, string) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", ""
	}
	name := line[:colon]
	if semi := strings.Index(name, ";"); semi >= 0 {
		name = name[:semi]
	}
	return strings.ToUpper(name), line[colon+1:]
}

func parseICSTime(value string) time.Time {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
