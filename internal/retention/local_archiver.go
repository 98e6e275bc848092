package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// LocalFileArchiver writes expired audit data as JSONL files under a local
// directory:
//
//	{basePath}/{org}/events/2026-08-29T15-04-05Z.jsonl[.gz]
//	{basePath}/{org}/activity/2026-08-29T15-04-05Z.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
}

// NewLocalFileArchiver creates a file-based archiver rooted at basePath.
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		basePath = "/var/lib/pipewise/archive"
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress}
}

func (a *LocalFileArchiver) ArchiveEvents(_ context.Context, orgID string, events []models.StoredEvent) (string, error) {
	records := make([]interface{}, len(events))
	for i, e := range events {
		records[i] = e
	}
	return a.writeBatch(orgID, "events", records)
}

func (a *LocalFileArchiver) ArchiveActivity(_ context.Context, orgID string, entries []models.ActivityEntry) (string, error) {
	records := make([]interface{}, len(entries))
	for i, e := range entries {
		records[i] = e
	}
	return a.writeBatch(orgID, "activity", records)
}

func (a *LocalFileArchiver) writeBatch(orgID, kind string, records []interface{}) (string, error) {
	dir := filepath.Join(a.basePath, orgID, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if a.compress {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		enc = json.NewEncoder(gw)
	}

	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return "", fmt.Errorf("encode archive record: %w", err)
		}
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(records)).
		Str("org_id", orgID).
		Msg("archived audit batch")

	return fpath, nil
}
