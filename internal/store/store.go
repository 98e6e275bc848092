// Package store provides the persistence boundary of the agent core.
// The orchestration pipeline depends only on this interface; swapping the
// in-memory implementation (tests, local dev) for PostgreSQL (production)
// is a wiring change in main.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// Store is the composed storage interface for the agent core.
type Store interface {
	OrgStore
	IntakeStore
	PipelineStore
	CalendarStore
	NotificationStore
	DecisionStore
	EventLogStore
	ActivityStore
	RetentionStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ── Organizations ───────────────────────────────────────────

type OrgStore interface {
	GetOrg(ctx context.Context, id string) (*models.Organization, error)
	CreateOrg(ctx context.Context, org *models.Organization) error
	ListOrgs(ctx context.Context) ([]models.Organization, error)
	UpdateOrgSettings(ctx context.Context, id string, settings models.AgentSettings) error
}

// ── Intakes ─────────────────────────────────────────────────

type IntakeStore interface {
	GetIntake(ctx context.Context, orgID, id string) (*models.Intake, error)
	CreateIntake(ctx context.Context, intake *models.Intake) error
	UpdateIntake(ctx context.Context, intake *models.Intake) error

	// CountOpenIntakes returns the open intake count per assignee,
	// used for least-loaded assignment.
	CountOpenIntakes(ctx context.Context, orgID string) (map[string]int, error)
}

// ── Pipelines ───────────────────────────────────────────────

type PipelineStore interface {
	GetPipeline(ctx context.Context, orgID, id string) (*models.Pipeline, error)
	ListPipelines(ctx context.Context, orgID string) ([]models.Pipeline, error)
	CreatePipeline(ctx context.Context, pipeline *models.Pipeline) error
}

// ── Calendar ────────────────────────────────────────────────

type CalendarStore interface {
	GetEvent(ctx context.Context, orgID, id string) (*models.CalendarEvent, error)
	CreateEvent(ctx context.Context, event *models.CalendarEvent) error
	UpdateEvent(ctx context.Context, event *models.CalendarEvent) error

	// ListEventsInWindow returns non-cancelled events intersecting
	// [start, end) for the org.
	ListEventsInWindow(ctx context.Context, orgID string, start, end time.Time) ([]models.CalendarEvent, error)
}

// ── Notifications ───────────────────────────────────────────

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, orgID string, limit int) ([]models.Notification, error)
}

// ── Decisions ───────────────────────────────────────────────

// DecisionFilter narrows ListDecisions.
type DecisionFilter struct {
	CorrelationID string
	EntityKey     string // matches any action targeting the entity
	Limit         int    // max results (default 50)
}

type DecisionStore interface {
	CreateDecision(ctx context.Context, d *models.AgentDecisionResult) error
	GetDecision(ctx context.Context, orgID, id string) (*models.AgentDecisionResult, error)
	UpdateDecisionState(ctx context.Context, orgID, id string, state models.DecisionState) error
	ListDecisions(ctx context.Context, orgID string, filter DecisionFilter) ([]models.AgentDecisionResult, error)

	// SaveRecord persists the terminal audit record of a decision.
	SaveRecord(ctx context.Context, record *models.DecisionRecord) error
	GetRecord(ctx context.Context, orgID, decisionID string) (*models.DecisionRecord, error)

	// SaveOutcome records one action's terminal result.
	SaveOutcome(ctx context.Context, orgID string, outcome *models.ActionOutcome) error
	ListOutcomes(ctx context.Context, orgID, decisionID string) ([]models.ActionOutcome, error)
}

// ── Event Log ───────────────────────────────────────────────

type EventLogStore interface {
	// AppendEvent appends to the org's audit event log (append-only).
	AppendEvent(ctx context.Context, event *models.StoredEvent) error
	ListEvents(ctx context.Context, orgID string, limit int) ([]models.StoredEvent, error)
}

// ── Activity Log ────────────────────────────────────────────

type ActivityStore interface {
	AppendActivity(ctx context.Context, entry *models.ActivityEntry) error
	ListActivity(ctx context.Context, orgID string, limit int) ([]models.ActivityEntry, error)
}

// ── Retention ───────────────────────────────────────────────

// RetentionStore supports the retention janitor: listing expired audit
// data for archival and deleting it afterwards. List and delete are
// separate calls so a failed archive never loses data.
type RetentionStore interface {
	ListEventsBefore(ctx context.Context, orgID string, cutoff time.Time) ([]models.StoredEvent, error)
	DeleteEventsBefore(ctx context.Context, orgID string, cutoff time.Time) (int, error)

	ListActivityBefore(ctx context.Context, orgID string, cutoff time.Time) ([]models.ActivityEntry, error)
	DeleteActivityBefore(ctx context.Context, orgID string, cutoff time.Time) (int, error)

	DeleteNotificationsBefore(ctx context.Context, orgID string, cutoff time.Time) (int, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return errors.As(err, &nf)
}
