package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"io/fs"
	"path/filepath"
	"time"

	storageif "github.com/fitcalc/site-backend/internal/infra/storage"
	"github.com/fitcalc/site-backend/internal/util/clock"
)

// Store implements storage.ObjectStore on the local filesystem: the bucket is a directory
// and object names are relative paths under it. 開発環境や永続ボリューム上での利用を想定。
type Store struct{}

var _ storageif.ObjectStore = Store{}

func (Store) Fetch(ctx context.Context, bucket, object, dest string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, err
	}
	src := filepath.Join(bucket, filepath.FromSlash(object))
	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		f, cErr := os.Create(dest)
		if cErr != nil {
			return false, cErr
		}
		return false, f.Close()
	}
	if err := copyFile(src, dest); err != nil {
		return false, fmt.Errorf("local fetch %s: %w", object, err)
	}
	return true, nil
}

func (Store) PublishWithBackup(ctx context.Context, bucket, currentObject, backupObject, localPath string) error {
	current := filepath.Join(bucket, filepath.FromSlash(currentObject))
	if err := os.MkdirAll(filepath.Dir(current), 0o755); err != nil {
		return err
	}
	tmp := current + ".tmp-" + clock.NowUTCFormatted("20060102-150405.000000000")
	if err := copyFile(localPath, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if backupObject == "" {
		backupObject = storageif.BackupKey(clock.UTCNow(), filepath.Base(currentObject))
	}
	backup := filepath.Join(bucket, filepath.FromSlash(backupObject))
	if err := os.MkdirAll(filepath.Dir(backup), 0o755); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := copyFile(tmp, backup); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// rename は同一ディレクトリ内なのでアトミックに current を置き換える
	return os.Rename(tmp, current)
}

// PruneBackups deletes generations under <bucket>/backups older than before and drops
// day directories left empty.
func (Store) PruneBackups(ctx context.Context, bucket string, before time.Time) (int, error) {
	root := filepath.Join(bucket, filepath.FromSlash(storageif.BackupPrefix))
	removed := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(bucket, path)
		if err != nil {
			return err
		}
		at, ok := storageif.BackupTime(filepath.ToSlash(rel))
		if !ok || !at.Before(before) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("local prune backups: %w", err)
	}
	// 空になった日付ディレクトリを掃除（中身が残っていれば Remove は失敗するので無視）
	if days, rErr := os.ReadDir(root); rErr == nil {
		for _, d := range days {
			if d.IsDir() {
				_ = os.Remove(filepath.Join(root, d.Name()))
			}
		}
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
