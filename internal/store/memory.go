// Package store — in-memory Store implementation.
// Used in tests and local development when DATABASE_URL is not set.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu            sync.RWMutex
	orgs          map[string]*models.Organization   // key: id
	intakes       map[string]*models.Intake         // key: org:id
	pipelines     map[string]*models.Pipeline       // key: org:id
	events        map[string]*models.CalendarEvent  // key: org:id
	notifications []*models.Notification            // append-only
	decisions     map[string]*models.AgentDecisionResult // key: org:id
	records       map[string]*models.DecisionRecord // key: org:decisionID
	outcomes      map[string][]models.ActionOutcome // key: org:decisionID
	eventLog      []*models.StoredEvent             // append-only
	activity      []*models.ActivityEntry           // append-only
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:      make(map[string]*models.Organization),
		intakes:   make(map[string]*models.Intake),
		pipelines: make(map[string]*models.Pipeline),
		events:    make(map[string]*models.CalendarEvent),
		decisions: make(map[string]*models.AgentDecisionResult),
		records:   make(map[string]*models.DecisionRecord),
		outcomes:  make(map[string][]models.ActionOutcome),
	}
}

func scopedKey(orgID, id string) string { return orgID + ":" + id }

// ── Organizations ───────────────────────────────────────────

func (m *MemoryStore) GetOrg(ctx context.Context, id string) (*models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "organization", Key: id}
	}
	cp := *org
	return &cp, nil
}

func (m *MemoryStore) CreateOrg(ctx context.Context, org *models.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *MemoryStore) ListOrgs(ctx context.Context) ([]models.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Organization, 0, len(m.orgs))
	for _, org := range m.orgs {
		out = append(out, *org)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateOrgSettings(ctx context.Context, id string, settings models.AgentSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return &ErrNotFound{Entity: "organization", Key: id}
	}
	org.Settings = settings
	return nil
}

// ── Intakes ─────────────────────────────────────────────────

func (m *MemoryStore) GetIntake(ctx context.Context, orgID, id string) (*models.Intake, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intake, ok := m.intakes[scopedKey(orgID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "intake", Key: id}
	}
	cp := *intake
	return &cp, nil
}

func (m *MemoryStore) CreateIntake(ctx context.Context, intake *models.Intake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if intake.CreatedAt.IsZero() {
		intake.CreatedAt = now
	}
	intake.UpdatedAt = now
	if intake.Status == "" {
		intake.Status = models.IntakeNew
	}
	cp := *intake
	m.intakes[scopedKey(intake.OrgID, intake.ID)] = &cp
	return nil
}

func (m *MemoryStore) UpdateIntake(ctx context.Context, intake *models.Intake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scopedKey(intake.OrgID, intake.ID)
	if _, ok := m.intakes[key]; !ok {
		return &ErrNotFound{Entity: "intake", Key: intake.ID}
	}
	intake.UpdatedAt = time.Now().UTC()
	cp := *intake
	m.intakes[key] = &cp
	return nil
}

func (m *MemoryStore) CountOpenIntakes(ctx context.Context, orgID string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, intake := range m.intakes {
		if intake.OrgID == orgID && intake.Status != models.IntakeClosed && intake.AssigneeID != "" {
			counts[intake.AssigneeID]++
		}
	}
	return counts, nil
}

// ── Pipelines ───────────────────────────────────────────────

func (m *MemoryStore) GetPipeline(ctx context.Context, orgID, id string) (*models.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[scopedKey(orgID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "pipeline", Key: id}
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) ListPipelines(ctx context.Context, orgID string) ([]models.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Pipeline
	for _, p := range m.pipelines {
		if p.OrgID == orgID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreatePipeline(ctx context.Context, pipeline *models.Pipeline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pipeline
	m.pipelines[scopedKey(pipeline.OrgID, pipeline.ID)] = &cp
	return nil
}

// ── Calendar ────────────────────────────────────────────────

func (m *MemoryStore) GetEvent(ctx context.Context, orgID, id string) (*models.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[scopedKey(orgID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "calendar event", Key: id}
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) CreateEvent(ctx context.Context, event *models.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = models.EventConfirmed
	}
	cp := *event
	m.events[scopedKey(event.OrgID, event.ID)] = &cp
	return nil
}

func (m *MemoryStore) UpdateEvent(ctx context.Context, event *models.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scopedKey(event.OrgID, event.ID)
	if _, ok := m.events[key]; !ok {
		return &ErrNotFound{Entity: "calendar event", Key: event.ID}
	}
	event.UpdatedAt = time.Now().UTC()
	cp := *event
	m.events[key] = &cp
	return nil
}

func (m *MemoryStore) ListEventsInWindow(ctx context.Context, orgID string, start, end time.Time) ([]models.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.CalendarEvent
	for _, e := range m.events {
		if e.OrgID == orgID && e.Status != models.EventCancelled && e.Overlaps(start, end) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// ── Notifications ───────────────────────────────────────────

func (m *MemoryStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	cp := *n
	m.notifications = append(m.notifications, &cp)
	return nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, orgID string, limit int) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var out []models.Notification
	// newest first
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if m.notifications[i].OrgID == orgID {
			out = append(out, *m.notifications[i])
		}
	}
	return out, nil
}

// ── Decisions ───────────────────────────────────────────────

func (m *MemoryStore) CreateDecision(ctx context.Context, d *models.AgentDecisionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	cp := *d
	m.decisions[scopedKey(d.OrgID, d.ID)] = &cp
	return nil
}

func (m *MemoryStore) GetDecision(ctx context.Context, orgID, id string) (*models.AgentDecisionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decisions[scopedKey(orgID, id)]
	if !ok {
		return nil, &ErrNotFound{Entity: "decision", Key: id}
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) UpdateDecisionState(ctx context.Context, orgID, id string, state models.DecisionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[scopedKey(orgID, id)]
	if !ok {
		return &ErrNotFound{Entity: "decision", Key: id}
	}
	d.State = state
	return nil
}

func (m *MemoryStore) ListDecisions(ctx context.Context, orgID string, filter DecisionFilter) ([]models.AgentDecisionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var all []models.AgentDecisionResult
	for _, d := range m.decisions {
		if d.OrgID != orgID {
			continue
		}
		if filter.CorrelationID != "" && d.CorrelationID != filter.CorrelationID {
			continue
		}
		if filter.EntityKey != "" && !decisionTargets(d, filter.EntityKey) {
			continue
		}
		all = append(all, *d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func decisionTargets(d *models.AgentDecisionResult, entityKey string) bool {
	for _, a := range d.Actions {
		if a.EntityKey() == entityKey {
			return true
		}
	}
	return false
}

func (m *MemoryStore) SaveRecord(ctx context.Context, record *models.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records[scopedKey(record.Decision.OrgID, record.Decision.ID)] = &cp
	return nil
}

func (m *MemoryStore) GetRecord(ctx context.Context, orgID, decisionID string) (*models.DecisionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[scopedKey(orgID, decisionID)]
	if !ok {
		return nil, &ErrNotFound{Entity: "decision record", Key: decisionID}
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) SaveOutcome(ctx context.Context, orgID string, outcome *models.ActionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scopedKey(orgID, outcome.DecisionID)
	m.outcomes[key] = append(m.outcomes[key], *outcome)
	return nil
}

func (m *MemoryStore) ListOutcomes(ctx context.Context, orgID, decisionID string) ([]models.ActionOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ActionOutcome, len(m.outcomes[scopedKey(orgID, decisionID)]))
	copy(out, m.outcomes[scopedKey(orgID, decisionID)])
	return out, nil
}

// ── Event Log ───────────────────────────────────────────────

func (m *MemoryStore) AppendEvent(ctx context.Context, event *models.StoredEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.eventLog = append(m.eventLog, &cp)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, orgID string, limit int) ([]models.StoredEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var out []models.StoredEvent
	for i := len(m.eventLog) - 1; i >= 0 && len(out) < limit; i-- {
		if m.eventLog[i].OrgID == orgID {
			out = append(out, *m.eventLog[i])
		}
	}
	return out, nil
}

// ── Activity Log ────────────────────────────────────────────

func (m *MemoryStore) AppendActivity(ctx context.Context, entry *models.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	cp := *entry
	m.activity = append(m.activity, &cp)
	return nil
}

func (m *MemoryStore) ListActivity(ctx context.Context, orgID string, limit int) ([]models.ActivityEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var out []models.ActivityEntry
	for i := len(m.activity) - 1; i >= 0 && len(out) < limit; i-- {
		if m.activity[i].OrgID == orgID {
			out = append(out, *m.activity[i])
		}
	}
	return out, nil
}

// ── Retention ───────────────────────────────────────────────

func (m *MemoryStore) ListEventsBefore(ctx context.Context, orgID string, cutoff time.Time) ([]models.StoredEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.StoredEvent
	for _, e := range m.eventLog {
		if e.OrgID == orgID && e.EmittedAt.Before(cutoff) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteEventsBefore(ctx context.Context, orgID string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.eventLog[:0]
	deleted := 0
	for _, e := range m.eventLog {
		if e.OrgID == orgID && e.EmittedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.eventLog = kept
	return deleted, nil
}

func (m *MemoryStore) ListActivityBefore(ctx context.Context, orgID string, cutoff time.Time) ([]models.ActivityEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ActivityEntry
	for _, e := range m.activity {
		if e.OrgID == orgID && e.At.Before(cutoff) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteActivityBefore(ctx context.Context, orgID string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.activity[:0]
	deleted := 0
	for _, e := range m.activity {
		if e.OrgID == orgID && e.At.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.activity = kept
	return deleted, nil
}

func (m *MemoryStore) DeleteNotificationsBefore(ctx context.Context, orgID string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.notifications[:0]
	deleted := 0
	for _, n := range m.notifications {
		if n.OrgID == orgID && n.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	m.notifications = kept
	return deleted, nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
