package retention_test

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pipewise/pipewise/agent-core/internal/retention"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

func seedAuditData(t *testing.T, s *store.MemoryStore, orgID string, retentionDays int) {
	t.Helper()
	ctx := context.Background()

	err := s.CreateOrg(ctx, &models.Organization{
		ID:   orgID,
		Name: orgID,
		Settings: models.AgentSettings{
			AuditRetentionDays: retentionDays,
		},
	})
	if err != nil {
		t.Fatalf("CreateOrg: %v", err)
	}

	old := time.Now().AddDate(0, 0, -60)
	fresh := time.Now().Add(-time.Hour)

	for i, at := range []time.Time{old, fresh} {
		id := string(rune('a' + i))
		if err := s.AppendEvent(ctx, &models.StoredEvent{ID: "ev-" + id, OrgID: orgID, EventName: "webhook.received", EmittedAt: at}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
		if err := s.AppendActivity(ctx, &models.ActivityEntry{ID: "act-" + id, OrgID: orgID, Actor: "agent", Verb: "assigned", At: at}); err != nil {
			t.Fatalf("AppendActivity: %v", err)
		}
		if err := s.CreateNotification(ctx, &models.Notification{ID: "n-" + id, OrgID: orgID, Recipient: "x@y.com", CreatedAt: at}); err != nil {
			t.Fatalf("CreateNotification: %v", err)
		}
	}
}

func TestRunCyclePurgesExpiredData(t *testing.T) {
	s := store.NewMemoryStore()
	seedAuditData(t, s, "org-1", 30)

	j := retention.NewJanitor(s, nil, time.Hour)
	stats := j.RunCycle(context.Background())

	if len(stats) != 1 {
		t.Fatalf("got %d org stats, want 1", len(stats))
	}
	got := stats[0]
	if got.EventsPurged != 1 || got.ActivityPurged != 1 || got.NotificationsPurged != 1 {
		t.Errorf("purged events=%d activity=%d notifications=%d, want 1 each",
			got.EventsPurged, got.ActivityPurged, got.NotificationsPurged)
	}

	events, _ := s.ListEvents(context.Background(), "org-1", 10)
	if len(events) != 1 || events[0].ID != "ev-b" {
		t.Errorf("remaining events = %v, want only ev-b", events)
	}
}

func TestRunCycleRespectsOrgRetentionWindow(t *testing.T) {
	s := store.NewMemoryStore()
	// 90-day window keeps the 60-day-old rows.
	seedAuditData(t, s, "org-1", 90)

	j := retention.NewJanitor(s, nil, time.Hour)
	stats := j.RunCycle(context.Background())

	if got := stats[0]; got.EventsPurged != 0 {
		t.Errorf("EventsPurged = %d, want 0 inside the retention window", got.EventsPurged)
	}
}

func TestRunCycleArchivesBeforePurge(t *testing.T) {
	s := store.NewMemoryStore()
	seedAuditData(t, s, "org-1", 30)

	dir := t.TempDir()
	j := retention.NewJanitor(s, retention.NewLocalFileArchiver(dir, false), time.Hour)
	stats := j.RunCycle(context.Background())

	got := stats[0]
	if len(got.ArchivedLocators) != 2 {
		t.Fatalf("got %d archive locators, want 2 (events + activity)", len(got.ArchivedLocators))
	}
	if got.EventsPurged != 1 {
		t.Errorf("EventsPurged = %d, want 1 after successful archive", got.EventsPurged)
	}

	// The events archive holds exactly the purged row.
	matches, err := filepath.Glob(filepath.Join(dir, "org-1", "events", "*.jsonl"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("events archive glob = %v, %v", matches, err)
	}
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
	}
	if lines != 1 {
		t.Errorf("archive has %d lines, want 1", lines)
	}
}

type failingArchiver struct{}

func (failingArchiver) ArchiveEvents(context.Context, string, []models.StoredEvent) (string, error) {
	return "", os.ErrPermission
}

func (failingArchiver) ArchiveActivity(context.Context, string, []models.ActivityEntry) (string, error) {
	return "", os.ErrPermission
}

func TestArchiveFailureSkipsPurge(t *testing.T) {
	s := store.NewMemoryStore()
	seedAuditData(t, s, "org-1", 30)

	j := retention.NewJanitor(s, failingArchiver{}, time.Hour)
	stats := j.RunCycle(context.Background())

	got := stats[0]
	if got.EventsPurged != 0 || got.ActivityPurged != 0 {
		t.Errorf("purged events=%d activity=%d after failed archive, want 0",
			got.EventsPurged, got.ActivityPurged)
	}
	if len(got.Errors) == 0 {
		t.Error("expected archive error in cycle stats")
	}

	events, _ := s.ListEvents(context.Background(), "org-1", 10)
	if len(events) != 2 {
		t.Errorf("got %d events, want both retained after failed archive", len(events))
	}
}
