package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	storageif "github.com/fitcalc/site-backend/internal/infra/storage"
	"github.com/fitcalc/site-backend/internal/util/clock"
)

// ObjectStoreSnapshotStrategy は SQLite ファイルを ObjectStore（GCS / ローカルディレクトリ）と同期する戦略です。
// - Restore: FileName をローカルに取得（無ければ空ファイル）
// - Publish: VACUUM INTO で一貫スナップショットを作成 → 二相アップロード + backups/ に保管
//
// Retention が正なら公開のたびにそれより古い世代を削除し、保持期間を過ぎた行が
// バックアップ経由で残り続けないようにする。
type ObjectStoreSnapshotStrategy struct {
	ObjectStore storageif.ObjectStore
	Bucket      string
	Retention   time.Duration
}

func (s ObjectStoreSnapshotStrategy) Restore(ctx context.Context, dbPath string) error {
	if s.ObjectStore == nil || s.Bucket == "" {
		return nil
	}
	// 同一インスタンスでの再オープン時はローカルの方が新しいので上書きしない
	if fi, err := os.Stat(dbPath); err == nil && fi.Size() > 0 {
		return nil
	}
	found, err := s.ObjectStore.Fetch(ctx, s.Bucket, FileName, dbPath)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "sqlite restore", slog.Bool("found", found), slog.String("path", dbPath))
	return nil
}

func (s ObjectStoreSnapshotStrategy) Publish(ctx context.Context, dbPath string) error {
	if s.ObjectStore == nil || s.Bucket == "" {
		return nil
	}
	snap := filepath.Join(os.TempDir(), "submissions-snapshot-"+clock.NowUTCFormatted("20060102-150405.000000000")+".sqlite")
	defer os.Remove(snap)
	if err := SnapshotTo(ctx, dbPath, snap); err != nil {
		return err
	}
	now := clock.UTCNow()
	if err := s.ObjectStore.PublishWithBackup(ctx, s.Bucket, FileName, storageif.BackupKey(now, FileName), snap); err != nil {
		return err
	}
	if s.Retention <= 0 {
		return nil
	}
	n, err := s.ObjectStore.PruneBackups(ctx, s.Bucket, now.Add(-s.Retention))
	if err != nil {
		return fmt.Errorf("prune backups: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "expired sqlite backups removed", slog.Int("generations", n))
	}
	return nil
}
