package storage

import (
	"context"
	"strings"
	"time"
)

// BackupPrefix is where versioned snapshot generations live.
const BackupPrefix = "backups/"

// 同一秒内の公開で世代が上書きされないようナノ秒まで持つ
const backupStampLayout = "2006-01-02/150405.000000000"

// ObjectStore abstracts the small object-storage surface used for SQLite snapshots.
type ObjectStore interface {
	// Fetch copies object into dest. When the object does not exist it leaves an empty
	// file at dest and reports found=false.
	Fetch(ctx context.Context, bucket, object, dest string) (found bool, err error)
	// PublishWithBackup uploads localPath to a tmp object, copies it over currentObject,
	// keeps a versioned copy at backupObject, then removes the tmp.
	PublishWithBackup(ctx context.Context, bucket, currentObject, backupObject, localPath string) error
	// PruneBackups deletes generations under BackupPrefix taken before the given time.
	PruneBackups(ctx context.Context, bucket string, before time.Time) (int, error)
}

// BackupKey は backups/yyyy-mm-dd/HHMMSS.nnnnnnnnn-<base> 形式のキーを返します。
func BackupKey(at time.Time, base string) string {
	return BackupPrefix + at.UTC().Format(backupStampLayout) + "-" + base
}

// BackupTime parses the generation time out of a key built by BackupKey.
func BackupTime(key string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(key, BackupPrefix)
	if !ok || len(rest) < len(backupStampLayout)+1 || rest[len(backupStampLayout)] != '-' {
		return time.Time{}, false
	}
	t, err := time.Parse(backupStampLayout, rest[:len(backupStampLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
