package datastore

import "context"

// SnapshotStrategy は SQLite ファイルのスナップショット復元/公開フックを表します。
// - Restore: 初回オープン前（サーバレスでローカルFSが空の場合に前回分を取得）
// - Publish: 定期実行およびクローズ時
// PostgreSQL では使いません。
type SnapshotStrategy interface {
	Restore(ctx context.Context, dbPath string) error
	Publish(ctx context.Context, dbPath string) error
}

// NoopSnapshotStrategy は何もしない実装です。
type NoopSnapshotStrategy struct{}

func (NoopSnapshotStrategy) Restore(ctx context.Context, dbPath string) error { return nil }
func (NoopSnapshotStrategy) Publish(ctx context.Context, dbPath string) error { return nil }
