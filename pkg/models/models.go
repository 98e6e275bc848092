package models

import (
	"fmt"
	"strings"
	"time"
)

// ── Agent Input ──────────────────────────────────────────────

// InputSource identifies which ingress path produced an AgentInput.
type InputSource string

const (
	SourceWebhook   InputSource = "webhook"
	SourceEmail     InputSource = "email"
	SourceWorker    InputSource = "worker"
	SourceDBTrigger InputSource = "db_trigger"
	SourceManual    InputSource = "manual"
)

// ContactInfo is the person (if any) behind an input.
type ContactInfo struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// AgentInput is the canonical, source-agnostic form every ingress path
// normalizes into before publishing on the bus. Immutable once published;
// the decision engine consumes it exactly once per correlation id.
type AgentInput struct {
	ID            string                 `json:"id"`
	OrgID         string                 `json:"org_id"`
	Source        InputSource            `json:"source"`
	Type          string                 `json:"type"` // e.g. "email.received", "intake.stage_changed"
	RawContent    string                 `json:"raw_content"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Contact       *ContactInfo           `json:"contact,omitempty"`
	Priority      int                    `json:"priority"` // 1 (lowest) .. 5 (highest)
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// ── Intent Classification ────────────────────────────────────

// Urgency is the model's judgment of how time-sensitive an input is.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// IsValid reports whether u is one of the defined urgency levels.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyNormal, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// IntentClassification is the LLM's raw judgment of an input, before any
// action planning is applied.
type IntentClassification struct {
	Category   string  `json:"category"`
	Urgency    Urgency `json:"urgency"`
	Confidence float64 `json:"confidence"` // 0.0 .. 1.0
	Reasoning  string  `json:"reasoning"`
}

// ── Agent Actions ────────────────────────────────────────────

// ActionKind is the closed set of side effects the agent can take.
// The executor maps each kind to exactly one registered handler.
type ActionKind string

const (
	ActionAssignPipeline    ActionKind = "assign_pipeline"
	ActionCreateEvent       ActionKind = "create_event"
	ActionUpdateEvent       ActionKind = "update_event"
	ActionCancelEvent       ActionKind = "cancel_event"
	ActionSendNotification  ActionKind = "send_notification"
	ActionTriggerAutomation ActionKind = "trigger_automation"
	ActionEscalate          ActionKind = "escalate"
)

// AllActionKinds lists every defined kind, used at startup to verify the
// executor has an exhaustive handler registration.
var AllActionKinds = []ActionKind{
	ActionAssignPipeline,
	ActionCreateEvent,
	ActionUpdateEvent,
	ActionCancelEvent,
	ActionSendNotification,
	ActionTriggerAutomation,
	ActionEscalate,
}

// IsValid reports whether k is a defined action kind.
func (k ActionKind) IsValid() bool {
	for _, known := range AllActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IsDestructive reports whether the kind performs a hard-to-reverse side
// effect. Destructive actions never auto-execute regardless of confidence.
func (k ActionKind) IsDestructive() bool {
	return k == ActionCancelEvent || k == ActionTriggerAutomation
}

// AssignPipelineParams moves an intake into a pipeline stage.
// An empty AssigneeID requests least-loaded assignment.
type AssignPipelineParams struct {
	IntakeID   string `json:"intake_id"`
	PipelineID string `json:"pipeline_id"`
	StageID    string `json:"stage_id,omitempty"`
	AssigneeID string `json:"assignee_id,omitempty"`
}

// CreateEventParams schedules a calendar event. Override skips conflict
// detection when the caller explicitly accepts a double-booking.
type CreateEventParams struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Attendees   []string  `json:"attendees"`
	Location    string    `json:"location,omitempty"`
	IntakeID    string    `json:"intake_id,omitempty"`
	Override    bool      `json:"override,omitempty"`
}

// UpdateEventParams mutates an existing calendar event. Nil time pointers
// leave the window unchanged.
type UpdateEventParams struct {
	EventID         string     `json:"event_id"`
	Title           string     `json:"title,omitempty"`
	Description     string     `json:"description,omitempty"`
	Start           *time.Time `json:"start,omitempty"`
	End             *time.Time `json:"end,omitempty"`
	AddAttendees    []string   `json:"add_attendees,omitempty"`
	RemoveAttendees []string   `json:"remove_attendees,omitempty"`
}

// CancelEventParams cancels a calendar event.
type CancelEventParams struct {
	EventID         string `json:"event_id"`
	Reason          string `json:"reason,omitempty"`
	NotifyAttendees bool   `json:"notify_attendees,omitempty"`
}

// SendNotificationParams dispatches a notification. Role, when set, expands
// to recipients through the org's role-routing table.
type SendNotificationParams struct {
	Recipients []string `json:"recipients,omitempty"`
	Role       string   `json:"role,omitempty"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Urgency    Urgency  `json:"urgency"`
}

// TriggerAutomationParams invokes an external workflow over its webhook.
type TriggerAutomationParams struct {
	AutomationID string                 `json:"automation_id"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// EscalateParams routes an input to a human queue.
type EscalateParams struct {
	Reason   string `json:"reason"`
	Queue    string `json:"queue,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

// AgentAction is a tagged union over action kinds: exactly the field matching
// Kind is populated. Actions are data, not behavior — the executor owns the
// kind → handler mapping.
type AgentAction struct {
	Kind ActionKind `json:"kind"`

	AssignPipeline    *AssignPipelineParams    `json:"assign_pipeline,omitempty"`
	CreateEvent       *CreateEventParams       `json:"create_event,omitempty"`
	UpdateEvent       *UpdateEventParams       `json:"update_event,omitempty"`
	CancelEvent       *CancelEventParams       `json:"cancel_event,omitempty"`
	SendNotification  *SendNotificationParams  `json:"send_notification,omitempty"`
	TriggerAutomation *TriggerAutomationParams `json:"trigger_automation,omitempty"`
	Escalate          *EscalateParams          `json:"escalate,omitempty"`
}

// Validate checks the kind is known and its parameter payload is present.
func (a AgentAction) Validate() error {
	if !a.Kind.IsValid() {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	var ok bool
	switch a.Kind {
	case ActionAssignPipeline:
		ok = a.AssignPipeline != nil && a.AssignPipeline.IntakeID != "" && a.AssignPipeline.PipelineID != ""
	case ActionCreateEvent:
		ok = a.CreateEvent != nil && a.CreateEvent.Title != "" && !a.CreateEvent.Start.IsZero() && !a.CreateEvent.End.IsZero()
	case ActionUpdateEvent:
		ok = a.UpdateEvent != nil && a.UpdateEvent.EventID != ""
	case ActionCancelEvent:
		ok = a.CancelEvent != nil && a.CancelEvent.EventID != ""
	case ActionSendNotification:
		ok = a.SendNotification != nil && a.SendNotification.Subject != "" &&
			(len(a.SendNotification.Recipients) > 0 || a.SendNotification.Role != "")
	case ActionTriggerAutomation:
		ok = a.TriggerAutomation != nil && a.TriggerAutomation.AutomationID != ""
	case ActionEscalate:
		ok = a.Escalate != nil && a.Escalate.Reason != ""
	}
	if !ok {
		return fmt.Errorf("action %q: missing or incomplete parameters", a.Kind)
	}
	return nil
}

// EntityKey returns the downstream entity this action targets, used by the
// executor to serialize actions aimed at the same entity. Actions with no
// single target return an empty key and do not serialize.
func (a AgentAction) EntityKey() string {
	switch a.Kind {
	case ActionAssignPipeline:
		if a.AssignPipeline != nil {
			return "intake:" + a.AssignPipeline.IntakeID
		}
	case ActionCreateEvent:
		if a.CreateEvent != nil && len(a.CreateEvent.Attendees) > 0 {
			return "calendar:" + a.CreateEvent.Attendees[0]
		}
	case ActionUpdateEvent:
		if a.UpdateEvent != nil {
			return "event:" + a.UpdateEvent.EventID
		}
	case ActionCancelEvent:
		if a.CancelEvent != nil {
			return "event:" + a.CancelEvent.EventID
		}
	case ActionTriggerAutomation:
		if a.TriggerAutomation != nil {
			return "automation:" + a.TriggerAutomation.AutomationID
		}
	}
	return ""
}

// ── Decision Lifecycle ───────────────────────────────────────

// DecisionState is one node of the decision state machine:
//
//	PENDING_CLASSIFICATION → CLASSIFIED → (AUTO_APPROVED | AWAITING_CONFIRMATION)
//	  → EXECUTING → (COMPLETED | FAILED)
//	AWAITING_CONFIRMATION → REJECTED | EXPIRED
type DecisionState string

const (
	StatePendingClassification DecisionState = "pending_classification"
	StateClassified            DecisionState = "classified"
	StateAutoApproved          DecisionState = "auto_approved"
	StateAwaitingConfirmation  DecisionState = "awaiting_confirmation"
	StateExecuting             DecisionState = "executing"
	StateCompleted             DecisionState = "completed"
	StateFailed                DecisionState = "failed"
	StateRejected              DecisionState = "rejected"
	StateExpired               DecisionState = "expired"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s DecisionState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateRejected, StateExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits s → next.
func (s DecisionState) CanTransitionTo(next DecisionState) bool {
	switch s {
	case StatePendingClassification:
		return next == StateClassified || next == StateFailed
	case StateClassified:
		return next == StateAutoApproved || next == StateAwaitingConfirmation
	case StateAutoApproved:
		return next == StateExecuting
	case StateAwaitingConfirmation:
		return next == StateExecuting || next == StateRejected || next == StateExpired
	case StateExecuting:
		return next == StateCompleted || next == StateFailed
	}
	return false
}

// AgentDecisionResult is the decision engine's output for one input.
// Produced once per input and persisted for audit; terminal unless a
// confirmation supersedes it.
type AgentDecisionResult struct {
	ID            string               `json:"id"`
	InputID       string               `json:"input_id"`
	OrgID         string               `json:"org_id"`
	CorrelationID string               `json:"correlation_id"`
	Intent        IntentClassification `json:"intent"`
	Actions       []AgentAction        `json:"actions"`
	Confidence    float64              `json:"confidence"`

	// RequiresConfirmation is the confirmation gate: true when confidence is
	// below the auto-execute threshold or any action is destructive.
	RequiresConfirmation bool `json:"requires_confirmation"`

	// Fallback marks a deterministic, LLM-free decision produced after the
	// model path was exhausted.
	Fallback bool `json:"fallback,omitempty"`

	RawResponse string        `json:"raw_response,omitempty"`
	State       DecisionState `json:"state"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Resolution describes how a confirmation-gated decision was resolved.
type Resolution string

const (
	ResolutionAuto     Resolution = "auto"
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
	ResolutionExpired  Resolution = "expired"
)

// DecisionRecord is the terminal audit form of a decision: the decision
// itself, how it was resolved, and the per-action outcomes.
type DecisionRecord struct {
	Decision      AgentDecisionResult `json:"decision"`
	Resolution    Resolution          `json:"resolution"`
	ResolvedBy    string              `json:"resolved_by,omitempty"`
	ResolvedAt    time.Time           `json:"resolved_at"`
	ActionResults []ActionOutcome     `json:"action_results,omitempty"`
}

// ActionOutcome records the terminal result of one action execution. Outcomes
// are per action, not per decision, so partial success is representable and
// each failed action is independently retryable.
type ActionOutcome struct {
	DecisionID  string                 `json:"decision_id"`
	ActionIndex int                    `json:"action_index"`
	Kind        ActionKind             `json:"kind"`
	Success     bool                   `json:"success"`
	Attempts    int                    `json:"attempts"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}

// IdempotencyKey is the executor's at-most-once key for this outcome.
func (o ActionOutcome) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", o.DecisionID, o.ActionIndex)
}

// ── Event Log ────────────────────────────────────────────────

// HandlerResult records one subscriber's handling of a bus event.
type HandlerResult struct {
	Handler    string `json:"handler"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// StoredEvent is the append-only audit record of a bus emit. Used for replay
// and debugging; never for automatically re-running side effects.
type StoredEvent struct {
	ID             string                 `json:"id"`
	OrgID          string                 `json:"org_id"`
	EventName      string                 `json:"event_name"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	EmittedAt      time.Time              `json:"emitted_at"`
	HandlerResults []HandlerResult        `json:"handler_results,omitempty"`
}

// ── Organization & Agent Settings ────────────────────────────

// QuietHours is a daily window during which non-urgent notifications are
// suppressed. Start/End are "HH:MM" in the org's timezone; a window that
// crosses midnight (e.g. 22:00 → 07:00) is supported.
type QuietHours struct {
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// Enabled reports whether a quiet-hours window is configured.
func (q QuietHours) Enabled() bool { return q.Start != "" && q.End != "" }

// NotificationChannel is a delivery channel for notifications.
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelInApp NotificationChannel = "in_app"
	ChannelSMS   NotificationChannel = "sms"
	ChannelPush  NotificationChannel = "push"
)

// AgentSettings is the per-organization tuning surface of the orchestration
// agent. Loaded from the org record, optionally seeded from a YAML file.
type AgentSettings struct {
	// AutoExecuteThreshold is the minimum confidence for auto-execution.
	AutoExecuteThreshold float64 `json:"auto_execute_threshold" yaml:"auto_execute_threshold"`

	// ConfirmationTTLMinutes bounds how long a pending decision waits for a
	// human before expiring.
	ConfirmationTTLMinutes int `json:"confirmation_ttl_minutes" yaml:"confirmation_ttl_minutes"`

	// DestructiveKinds extends the built-in destructive action set.
	DestructiveKinds []string `json:"destructive_kinds,omitempty" yaml:"destructive_kinds,omitempty"`

	QuietHours QuietHours `json:"quiet_hours,omitempty" yaml:"quiet_hours,omitempty"`

	// RoleRouting maps a recipient role to the channels it is notified on.
	RoleRouting map[string][]NotificationChannel `json:"role_routing,omitempty" yaml:"role_routing,omitempty"`

	// NotificationRateLimit is the max sends per recipient per window.
	NotificationRateLimit int `json:"notification_rate_limit" yaml:"notification_rate_limit"`
	RateWindowMinutes     int `json:"rate_window_minutes" yaml:"rate_window_minutes"`

	// NoiseFields lists per-entity fields whose changes never emit a
	// db_trigger input.
	NoiseFields map[string][]string `json:"noise_fields,omitempty" yaml:"noise_fields,omitempty"`

	// SignificanceRule is an optional expr-lang expression evaluated against
	// {entity, field, before, after}; when set, a change is significant only
	// if the rule returns true.
	SignificanceRule string `json:"significance_rule,omitempty" yaml:"significance_rule,omitempty"`

	// SkipAutoReplies drops auto-reply and bounce emails at ingestion.
	SkipAutoReplies bool `json:"skip_auto_replies" yaml:"skip_auto_replies"`

	// WebhookSecret signs inbound webhooks; empty disables verification.
	WebhookSecret string `json:"webhook_secret,omitempty" yaml:"webhook_secret,omitempty"`

	// AutomationSecret signs outbound automation payloads.
	AutomationSecret string `json:"automation_secret,omitempty" yaml:"automation_secret,omitempty"`

	// Automations maps an automation id to its webhook URL.
	Automations map[string]string `json:"automations,omitempty" yaml:"automations,omitempty"`

	// AutomationTimeoutSeconds bounds one outbound automation call.
	AutomationTimeoutSeconds int `json:"automation_timeout_seconds,omitempty" yaml:"automation_timeout_seconds,omitempty"`

	// AuditRetentionDays is how long audit events, activity entries and
	// notifications are kept before the retention janitor removes them.
	// Zero uses the service default.
	AuditRetentionDays int `json:"audit_retention_days,omitempty" yaml:"audit_retention_days,omitempty"`
}

// DefaultAgentSettings returns the settings applied when an org has none.
func DefaultAgentSettings() AgentSettings {
	return AgentSettings{
		AutoExecuteThreshold:   0.85,
		ConfirmationTTLMinutes: 60,
		NotificationRateLimit:  10,
		RateWindowMinutes:      15,
		SkipAutoReplies:        true,
	}
}

// ConfirmationTTL returns the pending-decision TTL as a duration.
func (s AgentSettings) ConfirmationTTL() time.Duration {
	if s.ConfirmationTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.ConfirmationTTLMinutes) * time.Minute
}

// IsDestructive reports whether kind is destructive under these settings,
// combining the built-in set with the org's extensions.
func (s AgentSettings) IsDestructive(kind ActionKind) bool {
	if kind.IsDestructive() {
		return true
	}
	for _, k := range s.DestructiveKinds {
		if ActionKind(k) == kind {
			return true
		}
	}
	return false
}

// Organization is a tenant of the platform.
type Organization struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Settings  AgentSettings `json:"settings"`
	CreatedAt time.Time     `json:"created_at"`
}

// ── Intakes & Pipelines ──────────────────────────────────────

// IntakeStatus tracks an intake through triage.
type IntakeStatus string

const (
	IntakeNew      IntakeStatus = "new"
	IntakeAssigned IntakeStatus = "assigned"
	IntakeClosed   IntakeStatus = "closed"
)

// Intake is an inbound request/lead awaiting pipeline assignment.
type Intake struct {
	ID           string       `json:"id"`
	OrgID        string       `json:"org_id"`
	Title        string       `json:"title"`
	ContactEmail string       `json:"contact_email,omitempty"`
	PipelineID   string       `json:"pipeline_id,omitempty"`
	StageID      string       `json:"stage_id,omitempty"`
	AssigneeID   string       `json:"assignee_id,omitempty"`
	Status       IntakeStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Stage is one step of a pipeline.
type Stage struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// TeamMember is a user who can be assigned intakes.
type TeamMember struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Pipeline is an ordered set of stages with an assignable team.
type Pipeline struct {
	ID      string       `json:"id"`
	OrgID   string       `json:"org_id"`
	Name    string       `json:"name"`
	Stages  []Stage      `json:"stages"`
	Members []TeamMember `json:"members"`
}

// FirstStage returns the lowest-ordered stage, or nil when the pipeline has none.
func (p *Pipeline) FirstStage() *Stage {
	var first *Stage
	for i := range p.Stages {
		if first == nil || p.Stages[i].Order < first.Order {
			first = &p.Stages[i]
		}
	}
	return first
}

// HasStage reports whether the pipeline contains the stage id.
func (p *Pipeline) HasStage(stageID string) bool {
	for _, s := range p.Stages {
		if s.ID == stageID {
			return true
		}
	}
	return false
}

// ── Calendar ─────────────────────────────────────────────────

// EventStatus is the lifecycle state of a calendar event.
type EventStatus string

const (
	EventConfirmed EventStatus = "confirmed"
	EventCancelled EventStatus = "cancelled"
)

// CalendarEvent is a scheduled meeting or appointment.
type CalendarEvent struct {
	ID          string      `json:"id"`
	OrgID       string      `json:"org_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Attendees   []string    `json:"attendees"`
	Location    string      `json:"location,omitempty"`
	IntakeID    string      `json:"intake_id,omitempty"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Overlaps reports whether the event's window intersects [start, end).
func (e CalendarEvent) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && start.Before(e.End)
}

// HasAttendee reports whether email is on the event (case-insensitive).
func (e CalendarEvent) HasAttendee(email string) bool {
	for _, a := range e.Attendees {
		if strings.EqualFold(a, email) {
			return true
		}
	}
	return false
}

// ConflictType classifies a scheduling conflict.
type ConflictType string

const (
	ConflictOverlap ConflictType = "overlap"
	ConflictNone    ConflictType = "none"
)

// ConflictResult is the outcome of conflict detection for a proposed window.
type ConflictResult struct {
	Conflicts []CalendarEvent `json:"conflicts"`
	Type      ConflictType    `json:"type"`
}

// HasConflicts reports whether any conflicting event was found.
func (c ConflictResult) HasConflicts() bool { return len(c.Conflicts) > 0 }

// ── Notifications ────────────────────────────────────────────

// NotificationStatus is the delivery outcome of a notification.
type NotificationStatus string

const (
	NotificationSent        NotificationStatus = "sent"
	NotificationSuppressed  NotificationStatus = "suppressed"   // quiet hours
	NotificationRateLimited NotificationStatus = "rate_limited" // rolling window hit
)

// Notification is one delivery attempt to one recipient on one channel.
type Notification struct {
	ID        string              `json:"id"`
	OrgID     string              `json:"org_id"`
	Recipient string              `json:"recipient"`
	Channel   NotificationChannel `json:"channel"`
	Subject   string              `json:"subject"`
	Body      string              `json:"body,omitempty"`
	Urgency   Urgency             `json:"urgency"`
	Status    NotificationStatus  `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

// ── Activity Log ─────────────────────────────────────────────

// ActivityEntry is one line of the org's audit trail.
type ActivityEntry struct {
	ID      string                 `json:"id"`
	OrgID   string                 `json:"org_id"`
	Actor   string                 `json:"actor"` // "agent" or a user id
	Verb    string                 `json:"verb"`  // e.g. "assigned", "scheduled", "escalated"
	Subject string                 `json:"subject"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
	At      time.Time              `json:"at"`
}

// ── Downstream Jobs ──────────────────────────────────────────

// Job is the unit handed to the downstream job queue after action execution.
type Job struct {
	TaskID        string `json:"task_id"`
	OrgID         string `json:"org_id"`
	Priority      int    `json:"priority"`
	CorrelationID string `json:"correlation_id"`
}

// ── Agent Statistics ─────────────────────────────────────────

// AgentStats is a point-in-time snapshot of one org agent's counters.
type AgentStats struct {
	OrgID                string    `json:"org_id"`
	StartedAt            time.Time `json:"started_at"`
	InputsReceived       int64     `json:"inputs_received"`
	DecisionsMade        int64     `json:"decisions_made"`
	FallbackDecisions    int64     `json:"fallback_decisions"`
	AutoExecuted         int64     `json:"auto_executed"`
	PendingConfirmations int64     `json:"pending_confirmations"`
	ActionsCompleted     int64     `json:"actions_completed"`
	ActionsFailed        int64     `json:"actions_failed"`
}
