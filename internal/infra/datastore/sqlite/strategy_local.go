package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fitcalc/site-backend/internal/util/clock"
)

const (
	localSnapshotPrefix = "submissions-snapshot-"
	localSnapshotLayout = "20060102-150405.000000000"
)

// LocalSnapshotStrategy writes a local snapshot into OutputDir on Publish.
// Retention が正なら、それより古い世代を公開時に削除します。
type LocalSnapshotStrategy struct {
	OutputDir string
	Retention time.Duration
}

func (LocalSnapshotStrategy) Restore(ctx context.Context, dbPath string) error { return nil }

func (s LocalSnapshotStrategy) Publish(ctx context.Context, dbPath string) error {
	dir := s.OutputDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(dbPath), "backups")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	now := clock.UTCNow()
	snap := filepath.Join(dir, localSnapshotPrefix+now.Format(localSnapshotLayout)+".sqlite")
	if err := SnapshotTo(ctx, dbPath, snap); err != nil {
		return err
	}
	if s.Retention <= 0 {
		return nil
	}
	if err := pruneLocalSnapshots(dir, now.Add(-s.Retention)); err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	return nil
}

func pruneLocalSnapshots(dir string, before time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, localSnapshotPrefix) || !strings.HasSuffix(name, ".sqlite") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, localSnapshotPrefix), ".sqlite")
		at, err := time.Parse(localSnapshotLayout, stamp)
		if err != nil || !at.Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
