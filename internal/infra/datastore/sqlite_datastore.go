package datastore

import (
	"context"
	"database/sql"
	"log/slog"

	sqlitedriver "github.com/fitcalc/site-backend/internal/infra/datastore/sqlite"
)

type sqliteStore struct {
	*sqlitedriver.SubmissionRepo

	db       *sql.DB
	dbPath   string
	strategy SnapshotStrategy
}

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqliteStore) Close() error {
	// 終了時のスナップショットは Strategy に委譲
	if err := s.publish(context.Background()); err != nil {
		slog.Error("snapshot on close failed", slog.Any("error", err))
	}
	return s.db.Close()
}

func (s *sqliteStore) publish(ctx context.Context) error {
	if s.strategy == nil {
		return nil
	}
	return s.strategy.Publish(ctx, s.dbPath)
}

// SetConnPool は SQLite の接続プール設定を適用します。
// - maxOpen: 同時に開ける最大接続数
// - maxIdle: アイドル接続の最大数
func (s *sqliteStore) SetConnPool(maxOpen, maxIdle int) {
	if maxOpen > 0 {
		s.db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		s.db.SetMaxIdleConns(maxIdle)
	}
}

func openSQLite(ctx context.Context, cfg Config) (*sqliteStore, error) {
	dbPath := cfg.SQLitePath
	if dbPath == "" {
		dbPath = sqlitedriver.Path("", false)
	}
	// 起動時の復元は Strategy に委譲
	if cfg.Strategy != nil {
		if err := cfg.Strategy.Restore(ctx, dbPath); err != nil {
			return nil, err
		}
	}
	db, err := sqlitedriver.OpenAndInit(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	s := &sqliteStore{
		SubmissionRepo: sqlitedriver.NewSubmissionRepo(db),
		db:             db,
		dbPath:         dbPath,
		strategy:       cfg.Strategy,
	}
	// 書き込みは1プロセス1ライター。ロック競合はGo側で直列化する
	s.SetConnPool(1, 1)
	return s, nil
}
