package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	storageif "github.com/fitcalc/site-backend/internal/infra/storage"
	"github.com/fitcalc/site-backend/internal/util/clock"
)

// Store implements storage.ObjectStore on Cloud Storage.
// 起動時の復元・終了時/定期の公開でしか呼ばれないため GCS クライアントは都度生成します。
type Store struct{}

var _ storageif.ObjectStore = (*Store)(nil)

func (s *Store) Fetch(ctx context.Context, bucket, object, dest string) (bool, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return false, fmt.Errorf("gcs client: %w", err)
	}
	defer client.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, err
	}
	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			slog.WarnContext(ctx, "snapshot object not found, starting with an empty database",
				slog.String("bucket", bucket), slog.String("object", object))
			f, cErr := os.Create(dest)
			if cErr != nil {
				return false, cErr
			}
			return false, f.Close()
		}
		return false, fmt.Errorf("gcs read %s: %w", object, err)
	}
	defer rc.Close()

	// 途中で失敗しても壊れた DB ファイルを残さないよう一時ファイル経由で置き換える
	tmp := dest + ".download"
	out, err := os.Create(tmp)
	if err != nil {
		return false, err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return false, fmt.Errorf("gcs download %s: %w", object, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return false, err
	}
	return true, os.Rename(tmp, dest)
}

func (s *Store) PublishWithBackup(ctx context.Context, bucket, currentObject, backupObject, localPath string) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("gcs client: %w", err)
	}
	defer client.Close()

	b := client.Bucket(bucket)
	tmpName := currentObject + ".tmp-" + clock.NowUTCFormatted("20060102-150405.000000000")
	tmp := b.Object(tmpName)

	// 1. upload to tmp object
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	wc := tmp.NewWriter(ctx)
	wc.ContentType = "application/vnd.sqlite3"
	if _, err := io.Copy(wc, f); err != nil {
		_ = wc.Close()
		_ = f.Close()
		return fmt.Errorf("gcs upload %s: %w", tmpName, err)
	}
	_ = f.Close()
	if err := wc.Close(); err != nil {
		return fmt.Errorf("gcs upload %s: %w", tmpName, err)
	}

	// 2. tmp -> current, 3. tmp -> backup
	if backupObject == "" {
		backupObject = storageif.BackupKey(clock.UTCNow(), filepath.Base(currentObject))
	}
	for _, name := range []string{currentObject, backupObject} {
		if _, err := b.Object(name).CopierFrom(tmp).Run(ctx); err != nil {
			_ = tmp.Delete(ctx)
			return fmt.Errorf("gcs copy %s: %w", name, err)
		}
	}

	// 4. delete tmp
	return tmp.Delete(ctx)
}

// PruneBackups deletes backups/ generations older than before. 世代名から取得時刻を読むので、
// 命名規則に合わないオブジェクトには触れない。
func (s *Store) PruneBackups(ctx context.Context, bucket string, before time.Time) (int, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return 0, fmt.Errorf("gcs client: %w", err)
	}
	defer client.Close()

	b := client.Bucket(bucket)
	it := b.Objects(ctx, &storage.Query{Prefix: storageif.BackupPrefix})
	removed := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return removed, nil
		}
		if err != nil {
			return removed, fmt.Errorf("gcs list %s: %w", storageif.BackupPrefix, err)
		}
		at, ok := storageif.BackupTime(attrs.Name)
		if !ok || !at.Before(before) {
			continue
		}
		if err := b.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return removed, fmt.Errorf("gcs delete %s: %w", attrs.Name, err)
		}
		removed++
	}
}
