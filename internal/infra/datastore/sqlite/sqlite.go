package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const FileName = "submissions.sqlite"

// Path decides DB file path.
// - explicit: 設定されていればそのまま使う
// - ephemeral (Cloud Run / Lambda 等): 書き込み可能な一時ディレクトリ
// - otherwise: プロジェクト配下の ./data
func Path(explicit string, ephemeral bool) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if ephemeral {
		return filepath.Join(os.TempDir(), FileName)
	}
	return filepath.Join(".", "data", FileName)
}

// PRAGMAの意味:
//
//	journal_mode=WAL: 同時実行性向上のためWALモードを有効化
//	synchronous=NORMAL: 性能と耐障害性のバランスを取る
//	busy_timeout: ロック競合時の自動リトライ待機時間（ms）
const busyTimeoutMs = 2000 // HTTPリクエストタイムアウトに合わせる

func dsnWithPragma(path string) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)", path, busyTimeoutMs)
}

// OpenAndInit creates parent directories, opens the file and applies the schema.
// The schema is idempotent and runs on every open.
func OpenAndInit(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", dsnWithPragma(path))
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS newsletter_submissions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  email TEXT NOT NULL,
  source TEXT NOT NULL DEFAULT '',
  provider TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_newsletter_submissions_created_at ON newsletter_submissions (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS contact_submissions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  subject TEXT NOT NULL,
  message TEXT NOT NULL,
  provider TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_contact_submissions_created_at ON contact_submissions (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS embed_request_submissions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  website TEXT NOT NULL DEFAULT '',
  calculator TEXT NOT NULL DEFAULT '',
  calculator_slug TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  provider TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_embed_request_submissions_created_at ON embed_request_submissions (created_at DESC)`,
}

func initSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// SnapshotTo は VACUUM INTO を用いて、SQLite DB の一貫したスナップショットを作成します。
//
// 注記:
//   - pure Go のドライバ（modernc.org/sqlite）では Online Backup API が直接は提供されていないため、
//     VACUUM INTO によるスナップショット方式を採用しています。
//     VACUUM INTO は実行中に他の書き込み読み取りをブロックします。
//
// 実装メモ:
// - busy_timeout を付けた別接続で開くことで、即時の SQLITE_BUSY を避けます。
// - 書き込みの競合などで BUSY の場合は、短いバックオフ付きで数回リトライします。
// - outPath は信頼できるパスのみを渡すこと（VACUUM INTO はパラメータ化できないためSQLインジェクション注意）。
func SnapshotTo(ctx context.Context, dbPath, outPath string) error {
	const (
		maxRetries    = 3
		baseBackoffMs = 200
	)

	db, err := sql.Open("sqlite", dsnWithPragma(dbPath))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			slog.WarnContext(ctx, "snapshot: db close error", slog.Any("error", cerr))
		}
	}()

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		// WALファイル肥大化対策: チェックポイントでWALをtruncate
		_, _ = db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE);")
		vacuumSQL := fmt.Sprintf(`VACUUM INTO '%s';`, strings.ReplaceAll(outPath, "'", "''"))
		_, err := db.ExecContext(ctx, vacuumSQL)
		if err == nil {
			slog.InfoContext(ctx, "snapshot: success", slog.Int("attempt", i+1))
			return nil
		}
		lastErr = err
		if !IsBusyErr(err) {
			slog.ErrorContext(ctx, "snapshot: failed", slog.Int("attempt", i+1), slog.Any("error", err))
			return err
		}
		backoff := baseBackoffMs * (i + 1)
		slog.WarnContext(ctx, "snapshot: busy, retrying", slog.Int("attempt", i+1), slog.Int("sleep_ms", backoff), slog.Any("error", err))
		select {
		case <-time.After(time.Duration(backoff) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	slog.ErrorContext(ctx, "snapshot: all retries failed", slog.Any("error", lastErr))
	return lastErr
}

// IsBusyErr は SQLITE_BUSY（"database is locked"）系エラーを判定します。
func IsBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked")
}
