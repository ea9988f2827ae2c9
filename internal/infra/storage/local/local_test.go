package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageif "github.com/fitcalc/site-backend/internal/infra/storage"
)

func TestStore_FetchMissingCreatesEmptyFile(t *testing.T) {
	bucket := t.TempDir()
	dest := filepath.Join(t.TempDir(), "nested", "db.sqlite")

	found, err := Store{}.Fetch(context.Background(), bucket, "db.sqlite", dest)
	require.NoError(t, err)
	assert.False(t, found)
	fi, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Zero(t, fi.Size())
}

func TestStore_PublishThenFetch(t *testing.T) {
	ctx := context.Background()
	bucket := t.TempDir()
	src := filepath.Join(t.TempDir(), "snap.sqlite")
	require.NoError(t, os.WriteFile(src, []byte("snapshot-v1"), 0o644))

	require.NoError(t, Store{}.PublishWithBackup(ctx, bucket, "db.sqlite", "backups/2026-01-02/030405-db.sqlite", src))

	got, err := os.ReadFile(filepath.Join(bucket, "db.sqlite"))
	require.NoError(t, err)
	assert.Equal(t, "snapshot-v1", string(got))
	got, err = os.ReadFile(filepath.Join(bucket, "backups", "2026-01-02", "030405-db.sqlite"))
	require.NoError(t, err)
	assert.Equal(t, "snapshot-v1", string(got))

	matches, _ := filepath.Glob(filepath.Join(bucket, "db.sqlite.tmp-*"))
	assert.Empty(t, matches, "tmp object removed")

	dest := filepath.Join(t.TempDir(), "restored.sqlite")
	found, err := Store{}.Fetch(ctx, bucket, "db.sqlite", dest)
	require.NoError(t, err)
	assert.True(t, found)
	got, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "snapshot-v1", string(got))
}

func TestStore_DefaultBackupKey(t *testing.T) {
	bucket := t.TempDir()
	src := filepath.Join(t.TempDir(), "snap.sqlite")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	require.NoError(t, Store{}.PublishWithBackup(context.Background(), bucket, "db.sqlite", "", src))
	matches, err := filepath.Glob(filepath.Join(bucket, "backups", "*", "*-db.sqlite"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestStore_PruneBackups(t *testing.T) {
	ctx := context.Background()
	bucket := t.TempDir()
	src := filepath.Join(t.TempDir(), "snap.sqlite")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, at := range []time.Time{old, old.Add(time.Hour), recent} {
		require.NoError(t, Store{}.PublishWithBackup(ctx, bucket, "db.sqlite", storageif.BackupKey(at, "db.sqlite"), src))
	}
	require.NoError(t, os.WriteFile(filepath.Join(bucket, "backups", "README"), []byte("keep"), 0o644))

	n, err := Store{}.PruneBackups(ctx, bucket, recent.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = os.Stat(filepath.Join(bucket, "backups", "2025-01-01"))
	assert.True(t, os.IsNotExist(err), "emptied day directory removed")
	_, err = os.Stat(filepath.Join(bucket, filepath.FromSlash(storageif.BackupKey(recent, "db.sqlite"))))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(bucket, "backups", "README"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(bucket, "db.sqlite"))
	assert.NoError(t, err, "current object untouched")
}

func TestStore_PruneBackupsWithoutBackupsDir(t *testing.T) {
	n, err := Store{}.PruneBackups(context.Background(), t.TempDir(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
