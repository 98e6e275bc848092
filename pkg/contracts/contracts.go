// Package contracts defines the wire-level payloads exchanged with external
// systems at the agent-core boundary: inbound webhook/email envelopes, job
// queue entries, and database change events emitted by the application's
// write sites.
//
// These types are in pkg/ (not internal/) so the platform's web tier and
// background workers can construct and parse them without importing
// agent-core internals.
package contracts

import "time"

// ── Inbound Email ───────────────────────────────────────────

// EmailAttachment is one attachment of an inbound email. Content is base64
// when present; providers may omit it and send only metadata.
type EmailAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Content     string `json:"content,omitempty"`
}

// InboundEmail is the canonical inbound-email webhook payload. Field names
// follow the provider wire format.
type InboundEmail struct {
	From        string            `json:"from"`
	To          string            `json:"to"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text,omitempty"`
	HTML        string            `json:"html,omitempty"`
	Attachments []EmailAttachment `json:"attachments,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	InReplyTo   string            `json:"inReplyTo,omitempty"`
}

// ── Database Change Events ──────────────────────────────────

// DBChange is an explicit change event emitted at an application write site,
// carrying structured before/after snapshots of the touched record. This
// replaces middleware-style write interception: the application calls the
// trigger handler directly with the fields it changed.
type DBChange struct {
	Entity   string                 `json:"entity"` // e.g. "intake", "calendar_event"
	EntityID string                 `json:"entity_id"`
	Before   map[string]interface{} `json:"before"`
	After    map[string]interface{} `json:"after"`
	Actor    string                 `json:"actor,omitempty"`
	At       time.Time              `json:"at"`
}

// ── Worker Lifecycle Events ─────────────────────────────────

// WorkerPhase is the lifecycle phase of a background job.
type WorkerPhase string

const (
	WorkerEnqueued  WorkerPhase = "enqueued"
	WorkerStarted   WorkerPhase = "started"
	WorkerCompleted WorkerPhase = "completed"
	WorkerFailed    WorkerPhase = "failed"
)

// WorkerEvent is a job-queue lifecycle notification the agent can react to,
// e.g. re-triggering on a failed job.
type WorkerEvent struct {
	JobID         string      `json:"job_id"`
	JobType       string      `json:"job_type"`
	Phase         WorkerPhase `json:"phase"`
	Attempt       int         `json:"attempt,omitempty"`
	MaxAttempts   int         `json:"max_attempts,omitempty"`
	Error         string      `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	At            time.Time   `json:"at"`
}

// ── Event Proposal ──────────────────────────────────────────

// EventProposal is a structured calendar-event suggestion extracted from an
// ICS attachment or a scheduling request in an email body.
type EventProposal struct {
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Location  string    `json:"location,omitempty"`
	Organizer string    `json:"organizer,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
	UID       string    `json:"uid,omitempty"`
}
