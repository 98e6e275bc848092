// Package store — PostgreSQL Store implementation backed by pgx.
// Rich documents (settings, actions, payloads) are stored as JSONB; the
// columns that queries filter or sort on are first-class.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info().Msg("PostgreSQL store ready")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			settings    JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS intakes (
			id          TEXT NOT NULL,
			org_id      TEXT NOT NULL,
			doc         JSONB NOT NULL,
			status      TEXT NOT NULL,
			assignee_id TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (org_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS pipelines (
			id      TEXT NOT NULL,
			org_id  TEXT NOT NULL,
			doc     JSONB NOT NULL,
			PRIMARY KEY (org_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id         TEXT NOT NULL,
			org_id     TEXT NOT NULL,
			doc        JSONB NOT NULL,
			status     TEXT NOT NULL,
			start_at   TIMESTAMPTZ NOT NULL,
			end_at     TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (org_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_window
			ON calendar_events (org_id, start_at, end_at)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id         TEXT PRIMARY KEY,
			org_id     TEXT NOT NULL,
			doc        JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id             TEXT NOT NULL,
			org_id         TEXT NOT NULL,
			correlation_id TEXT NOT NULL DEFAULT '',
			doc            JSONB NOT NULL,
			state          TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (org_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_correlation
			ON decisions (org_id, correlation_id)`,
		`CREATE TABLE IF NOT EXISTS decision_records (
			decision_id TEXT NOT NULL,
			org_id      TEXT NOT NULL,
			doc         JSONB NOT NULL,
			resolved_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (org_id, decision_id)
		)`,
		`CREATE TABLE IF NOT EXISTS action_outcomes (
			decision_id  TEXT NOT NULL,
			action_index INT NOT NULL,
			org_id       TEXT NOT NULL,
			doc          JSONB NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (org_id, decision_id, action_index)
		)`,
		`CREATE TABLE IF NOT EXISTS event_log (
			id         TEXT PRIMARY KEY,
			org_id     TEXT NOT NULL,
			doc        JSONB NOT NULL,
			emitted_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_log_org
			ON event_log (org_id, emitted_at DESC)`,
		`CREATE TABLE IF NOT EXISTS activity_log (
			id     TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			doc    JSONB NOT NULL,
			at     TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ── Organizations ───────────────────────────────────────────

func (s *PostgresStore) GetOrg(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	var settings []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, settings, created_at FROM organizations WHERE id = $1`, id).
		Scan(&org.ID, &org.Name, &settings, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "organization", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get org: %w", err)
	}
	if err := json.Unmarshal(settings, &org.Settings); err != nil {
		return nil, fmt.Errorf("decode org settings: %w", err)
	}
	return &org, nil
}

func (s *PostgresStore) CreateOrg(ctx context.Context, org *models.Organization) error {
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now().UTC()
	}
	settings, err := json.Marshal(org.Settings)
	if err != nil {
		return fmt.Errorf("encode org settings: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, settings, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, settings = EXCLUDED.settings`,
		org.ID, org.Name, settings, org.CreatedAt)
	if err != nil {
		return fmt.Errorf("create org: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOrgs(ctx context.Context) ([]models.Organization, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, settings, created_at FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list orgs: %w", err)
	}
	defer rows.Close()

	var out []models.Organization
	for rows.Next() {
		var org models.Organization
		var settings []byte
		if err := rows.Scan(&org.ID, &org.Name, &settings, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan org: %w", err)
		}
		if err := json.Unmarshal(settings, &org.Settings); err != nil {
			return nil, fmt.Errorf("decode org settings: %w", err)
		}
		out = append(out, org)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateOrgSettings(ctx context.Context, id string, settings models.AgentSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode org settings: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE organizations SET settings = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("update org settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "organization", Key: id}
	}
	return nil
}

// ── Intakes ─────────────────────────────────────────────────

func (s *PostgresStore) GetIntake(ctx context.Context, orgID, id string) (*models.Intake, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM intakes WHERE org_id = $1 AND id = $2`, orgID, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "intake", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get intake: %w", err)
	}
	var intake models.Intake
	if err := json.Unmarshal(doc, &intake); err != nil {
		return nil, fmt.Errorf("decode intake: %w", err)
	}
	return &intake, nil
}

func (s *PostgresStore) CreateIntake(ctx context.Context, intake *models.Intake) error {
	now := time.Now().UTC()
	if intake.CreatedAt.IsZero() {
		intake.CreatedAt = now
	}
	intake.UpdatedAt = now
	if intake.Status == "" {
		intake.Status = models.IntakeNew
	}
	return s.upsertIntake(ctx, intake)
}

func (s *PostgresStore) UpdateIntake(ctx context.Context, intake *models.Intake) error {
	intake.UpdatedAt = time.Now().UTC()
	if _, err := s.GetIntake(ctx, intake.OrgID, intake.ID); err != nil {
		return err
	}
	return s.upsertIntake(ctx, intake)
}

func (s *PostgresStore) upsertIntake(ctx context.Context, intake *models.Intake) error {
	doc, err := json.Marshal(intake)
	if err != nil {
		return fmt.Errorf("encode intake: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO intakes (id, org_id, doc, status, assignee_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (org_id, id) DO UPDATE SET
		   doc = EXCLUDED.doc, status = EXCLUDED.status,
		   assignee_id = EXCLUDED.assignee_id, updated_at = EXCLUDED.updated_at`,
		intake.ID, intake.OrgID, doc, string(intake.Status), intake.AssigneeID, intake.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert intake: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountOpenIntakes(ctx context.Context, orgID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT assignee_id, COUNT(*) FROM intakes
		 WHERE org_id = $1 AND status <> $2 AND assignee_id <> ''
		 GROUP BY assignee_id`, orgID, string(models.IntakeClosed))
	if err != nil {
		return nil, fmt.Errorf("count open intakes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var assignee string
		var n int
		if err := rows.Scan(&assignee, &n); err != nil {
			return nil, fmt.Errorf("scan intake count: %w", err)
		}
		counts[assignee] = n
	}
	return counts, rows.Err()
}

// ── Pipelines ───────────────────────────────────────────────

func (s *PostgresStore) GetPipeline(ctx context.Context, orgID, id string) (*models.Pipeline, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM pipelines WHERE org_id = $1 AND id = $2`, orgID, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "pipeline", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get pipeline: %w", err)
	}
	var p models.Pipeline
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPipelines(ctx context.Context, orgID string) ([]models.Pipeline, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM pipelines WHERE org_id = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var out []models.Pipeline
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		var p models.Pipeline
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode pipeline: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreatePipeline(ctx context.Context, pipeline *models.Pipeline) error {
	doc, err := json.Marshal(pipeline)
	if err != nil {
		return fmt.Errorf("encode pipeline: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO pipelines (id, org_id, doc) VALUES ($1, $2, $3)
		 ON CONFLICT (org_id, id) DO UPDATE SET doc = EXCLUDED.doc`,
		pipeline.ID, pipeline.OrgID, doc)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	return nil
}

// ── Calendar ────────────────────────────────────────────────

func (s *PostgresStore) GetEvent(ctx context.Context, orgID, id string) (*models.CalendarEvent, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM calendar_events WHERE org_id = $1 AND id = $2`, orgID, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "calendar event", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	var e models.CalendarEvent
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, event *models.CalendarEvent) error {
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = models.EventConfirmed
	}
	return s.upsertEvent(ctx, event)
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, event *models.CalendarEvent) error {
	if _, err := s.GetEvent(ctx, event.OrgID, event.ID); err != nil {
		return err
	}
	event.UpdatedAt = time.Now().UTC()
	return s.upsertEvent(ctx, event)
}

func (s *PostgresStore) upsertEvent(ctx context.Context, event *models.CalendarEvent) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO calendar_events (id, org_id, doc, status, start_at, end_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (org_id, id) DO UPDATE SET
		   doc = EXCLUDED.doc, status = EXCLUDED.status,
		   start_at = EXCLUDED.start_at, end_at = EXCLUDED.end_at`,
		event.ID, event.OrgID, doc, string(event.Status), event.Start, event.End)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEventsInWindow(ctx context.Context, orgID string, start, end time.Time) ([]models.CalendarEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM calendar_events
		 WHERE org_id = $1 AND status <> $2 AND start_at < $4 AND end_at > $3
		 ORDER BY start_at`, orgID, string(models.EventCancelled), start, end)
	if err != nil {
		return nil, fmt.Errorf("list events in window: %w", err)
	}
	defer rows.Close()

	var out []models.CalendarEvent
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e models.CalendarEvent
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Notifications ───────────────────────────────────────────

func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO notifications (id, org_id, doc, created_at) VALUES ($1, $2, $3, $4)`,
		n.ID, n.OrgID, doc, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, orgID string, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM notifications WHERE org_id = $1 ORDER BY created_at DESC LIMIT $2`,
		orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		var n models.Notification
		if err := json.Unmarshal(doc, &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ── Decisions ───────────────────────────────────────────────

func (s *PostgresStore) CreateDecision(ctx context.Context, d *models.AgentDecisionResult) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO decisions (id, org_id, correlation_id, doc, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (org_id, id) DO UPDATE SET doc = EXCLUDED.doc, state = EXCLUDED.state`,
		d.ID, d.OrgID, d.CorrelationID, doc, string(d.State), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDecision(ctx context.Context, orgID, id string) (*models.AgentDecisionResult, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM decisions WHERE org_id = $1 AND id = $2`, orgID, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "decision", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}
	var d models.AgentDecisionResult
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) UpdateDecisionState(ctx context.Context, orgID, id string, state models.DecisionState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE decisions SET state = $3,
		   doc = jsonb_set(doc, '{state}', to_jsonb($3::text))
		 WHERE org_id = $1 AND id = $2`, orgID, id, string(state))
	if err != nil {
		return fmt.Errorf("update decision state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &ErrNotFound{Entity: "decision", Key: id}
	}
	return nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, orgID string, filter DecisionFilter) ([]models.AgentDecisionResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT doc FROM decisions WHERE org_id = $1`
	args := []interface{}{orgID}
	if filter.CorrelationID != "" {
		query += fmt.Sprintf(` AND correlation_id = $%d`, len(args)+1)
		args = append(args, filter.CorrelationID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []models.AgentDecisionResult
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		var d models.AgentDecisionResult
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		// Entity matching requires the decoded actions; filter here.
		if filter.EntityKey != "" {
			matched := false
			for _, a := range d.Actions {
				if a.EntityKey() == filter.EntityKey {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveRecord(ctx context.Context, record *models.DecisionRecord) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode decision record: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO decision_records (decision_id, org_id, doc, resolved_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (org_id, decision_id) DO UPDATE SET doc = EXCLUDED.doc, resolved_at = EXCLUDED.resolved_at`,
		record.Decision.ID, record.Decision.OrgID, doc, record.ResolvedAt)
	if err != nil {
		return fmt.Errorf("save decision record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, orgID, decisionID string) (*models.DecisionRecord, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM decision_records WHERE org_id = $1 AND decision_id = $2`,
		orgID, decisionID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "decision record", Key: decisionID}
	}
	if err != nil {
		return nil, fmt.Errorf("get decision record: %w", err)
	}
	var r models.DecisionRecord
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode decision record: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) SaveOutcome(ctx context.Context, orgID string, outcome *models.ActionOutcome) error {
	doc, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode action outcome: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO action_outcomes (decision_id, action_index, org_id, doc, completed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (org_id, decision_id, action_index) DO UPDATE SET doc = EXCLUDED.doc`,
		outcome.DecisionID, outcome.ActionIndex, orgID, doc, outcome.CompletedAt)
	if err != nil {
		return fmt.Errorf("save action outcome: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, orgID, decisionID string) ([]models.ActionOutcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM action_outcomes
		 WHERE org_id = $1 AND decision_id = $2 ORDER BY action_index`, orgID, decisionID)
	if err != nil {
		return nil, fmt.Errorf("list action outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.ActionOutcome
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan action outcome: %w", err)
		}
		var o models.ActionOutcome
		if err := json.Unmarshal(doc, &o); err != nil {
			return nil, fmt.Errorf("decode action outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ── Event Log ───────────────────────────────────────────────

func (s *PostgresStore) AppendEvent(ctx context.Context, event *models.StoredEvent) error {
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode stored event: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO event_log (id, org_id, doc, emitted_at) VALUES ($1, $2, $3, $4)`,
		event.ID, event.OrgID, doc, event.EmittedAt)
	if err != nil {
		return fmt.Errorf("append stored event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, orgID string, limit int) ([]models.StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM event_log WHERE org_id = $1 ORDER BY emitted_at DESC LIMIT $2`,
		orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list stored events: %w", err)
	}
	defer rows.Close()

	var out []models.StoredEvent
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan stored event: %w", err)
		}
		var e models.StoredEvent
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("decode stored event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Activity Log ────────────────────────────────────────────

func (s *PostgresStore) AppendActivity(ctx context.Context, entry *models.ActivityEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	doc, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode activity entry: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO activity_log (id, org_id, doc, at) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.OrgID, doc, entry.At)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivity(ctx context.Context, orgID string, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM activity_log WHERE org_id = $1 ORDER BY at DESC LIMIT $2`,
		orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []models.ActivityEntry
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		var e models.ActivityEntry
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("decode activity entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── Retention ───────────────────────────────────────────────

func (s *PostgresStore) ListEventsBefore(ctx context.Context, orgID string, cutoff time.Time) ([]models.StoredEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM event_log WHERE org_id = $1 AND emitted_at < $2 ORDER BY emitted_at`,
		orgID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired events: %w", err)
	}
	defer rows.Close()

	var out []models.StoredEvent
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan expired event: %w", err)
		}
		var e models.StoredEvent
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("decode expired event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteEventsBefore(ctx context.Context, orgID string, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM event_log WHERE org_id = $1 AND emitted_at < $2`, orgID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListActivityBefore(ctx context.Context, orgID string, cutoff time.Time) ([]models.ActivityEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM activity_log WHERE org_id = $1 AND at < $2 ORDER BY at`,
		orgID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired activity: %w", err)
	}
	defer rows.Close()

	var out []models.ActivityEntry
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan expired activity: %w", err)
		}
		var e models.ActivityEntry
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("decode expired activity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteActivityBefore(ctx context.Context, orgID string, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM activity_log WHERE org_id = $1 AND at < $2`, orgID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge activity: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteNotificationsBefore(ctx context.Context, orgID string, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE org_id = $1 AND created_at < $2`, orgID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ── Lifecycle ───────────────────────────────────────────────

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
