// Package retention implements the audit data retention policy. A
// background janitor periodically removes expired audit events, activity
// entries and notifications per organization, optionally archiving audit
// data to durable files first. Archive failures are fail-safe: data is
// not deleted if archiving fails.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// DefaultRetentionDays applies when an org has no explicit retention window.
const DefaultRetentionDays = 30

// Archiver persists expired audit data before it is purged from the hot
// store. Implementations return a locator for the written archive.
type Archiver interface {
	ArchiveEvents(ctx context.Context, orgID string, events []models.StoredEvent) (string, error)
	ArchiveActivity(ctx context.Context, orgID string, entries []models.ActivityEntry) (string, error)
}

// CycleStats tracks one retention sweep over one org.
type CycleStats struct {
	OrgID               string
	EventsPurged        int
	ActivityPurged      int
	NotificationsPurged int
	ArchivedLocators    []string
	Errors              []error
}

// Janitor runs retention sweeps across all organizations on an interval.
type Janitor struct {
	store    store.Store
	archiver Archiver // nil means purge without archiving
	interval time.Duration
	now      func() time.Time
}

// NewJanitor creates a janitor. A nil archiver purges without archiving.
func NewJanitor(s store.Store, archiver Archiver, interval time.Duration) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{store: s, archiver: archiver, interval: interval, now: time.Now}
}

// SetClock overrides the time source for tests.
func (j *Janitor) SetClock(now func() time.Time) { j.now = now }

// Start blocks until ctx is canceled, running one sweep immediately and
// then one per interval.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().Dur("interval", j.interval).Bool("archiving", j.archiver != nil).Msg("retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep across all orgs and returns per-org stats.
func (j *Janitor) RunCycle(ctx context.Context) []CycleStats {
	start := j.now()
	orgs, err := j.store.ListOrgs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("retention sweep: list orgs failed")
		return nil
	}

	var all []CycleStats
	totalPurged := 0
	for _, org := range orgs {
		stats := j.processOrg(ctx, org)
		totalPurged += stats.EventsPurged + stats.ActivityPurged + stats.NotificationsPurged
		for _, e := range stats.Errors {
			log.Warn().Err(e).Str("org_id", org.ID).Msg("retention cycle error")
		}
		all = append(all, stats)
	}

	if totalPurged > 0 {
		log.Info().
			Int("purged", totalPurged).
			Int("orgs", len(orgs)).
			Dur("elapsed", time.Since(start)).
			Msg("retention cycle complete")
	}
	return all
}

func (j *Janitor) processOrg(ctx context.Context, org models.Organization) CycleStats {
	stats := CycleStats{OrgID: org.ID}

	days := org.Settings.AuditRetentionDays
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := j.now().AddDate(0, 0, -days)

	if j.archiver != nil && !j.archiveOrg(ctx, org.ID, cutoff, &stats) {
		// Fail-safe: an incomplete archive leaves the hot store untouched.
		log.Warn().Str("org_id", org.ID).Msg("archive failed, skipping purge")
		return stats
	}

	if n, err := j.store.DeleteEventsBefore(ctx, org.ID, cutoff); err != nil {
		stats.Errors = append(stats.Errors, err)
	} else {
		stats.EventsPurged = n
	}
	if n, err := j.store.DeleteActivityBefore(ctx, org.ID, cutoff); err != nil {
		stats.Errors = append(stats.Errors, err)
	} else {
		stats.ActivityPurged = n
	}
	if n, err := j.store.DeleteNotificationsBefore(ctx, org.ID, cutoff); err != nil {
		stats.Errors = append(stats.Errors, err)
	} else {
		stats.NotificationsPurged = n
	}
	return stats
}

// archiveOrg writes expired events and activity to the archiver. It
// returns false when any archive write failed.
func (j *Janitor) archiveOrg(ctx context.Context, orgID string, cutoff time.Time, stats *CycleStats) bool {
	events, err := j.store.ListEventsBefore(ctx, orgID, cutoff)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return false
	}
	entries, err := j.store.ListActivityBefore(ctx, orgID, cutoff)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return false
	}

	if len(events) > 0 {
		locator, err := j.archiver.ArchiveEvents(ctx, orgID, events)
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			return false
		}
		stats.ArchivedLocators = append(stats.ArchivedLocators, locator)
	}
	if len(entries) > 0 {
		locator, err := j.archiver.ArchiveActivity(ctx, orgID, entries)
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			return false
		}
		stats.ArchivedLocators = append(stats.ArchivedLocators, locator)
	}
	return true
}
