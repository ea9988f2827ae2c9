package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fitcalc/site-backend/internal/domain/model"
)

const (
	defaultMaxPool             = 10
	defaultRetentionDays       = 365
	defaultSweepIntervalMillis = 15 * 60 * 1000
)

// serverlessMarkers are env vars set by serverless/ephemeral platforms.
// Cloud Run, Lambda, Vercel, Netlify, Cloud Functions の順。
var serverlessMarkers = []string{
	"K_SERVICE",
	"AWS_LAMBDA_FUNCTION_NAME",
	"VERCEL",
	"NETLIFY",
	"FUNCTION_TARGET",
}

// AppConfig は環境変数を読み取りアプリ全体に渡す設定です。
type AppConfig struct {
	Port            string // HTTP ポート（未設定時は 8080）
	LogProvider     string // gcp
	LogLevel        string // -4 | 0 | 4 | 8 or debug/info/warn/error
	MaintenanceMode string // on | off

	DBDriver    string // sqlite | postgres (embedded | networked も可)。空なら自動判定
	DatabaseURL string // PostgreSQL 接続文字列。あれば postgres を自動選択
	DBMaxPool   string // 最大接続数（既定 10）
	DBSSL       string // disable | false | 0 | off で sslmode=disable

	SqlitePath   string // SQLite ファイルパス（未設定時は環境に応じて決定）
	SqliteSource string // local | gcs
	Serverless   bool   // サーバレス環境マーカーを検出したか

	RetentionDays        string // 保持日数。0 以下で無効（既定 365）
	RetentionSweepMillis string // スイープ最小間隔 ms（既定 900000）
	StrictPersistence    string // true なら保存失敗をHTTPエラーにする（ハンドラ側の判断）

	SentryDSN         string
	SentryEnvironment string

	StorageProvider string // gcs | local（SQLITE_BUCKET をディレクトリとして扱う）
	SqliteBucket    string // バケット名

	PeriodicBackup       string // on | off (default off)
	PeriodicBackupMinute string // integer minutes (default 10)
}

func NewFromEnv() AppConfig {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	driver := os.Getenv("SUBMISSIONS_DB_DRIVER")
	if driver == "" {
		driver = os.Getenv("DB_DRIVER")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("POSTGRES_URL")
	}
	return AppConfig{
		Port:                 port,
		LogProvider:          os.Getenv("LOG_PROVIDER"),
		LogLevel:             os.Getenv("LOG_LEVEL"),
		MaintenanceMode:      os.Getenv("MAINTENANCE_MODE"),
		DBDriver:             driver,
		DatabaseURL:          dbURL,
		DBMaxPool:            os.Getenv("SUBMISSIONS_DB_MAX_POOL"),
		DBSSL:                os.Getenv("SUBMISSIONS_DB_SSL"),
		SqlitePath:           os.Getenv("SUBMISSIONS_SQLITE_PATH"),
		SqliteSource:         os.Getenv("SQLITE_SOURCE"),
		Serverless:           detectServerless(),
		RetentionDays:        os.Getenv("SUBMISSIONS_RETENTION_DAYS"),
		RetentionSweepMillis: os.Getenv("SUBMISSIONS_RETENTION_SWEEP_INTERVAL_MS"),
		StrictPersistence:    os.Getenv("SUBMISSIONS_STRICT_PERSISTENCE"),
		SentryDSN:            os.Getenv("SENTRY_DSN"),
		SentryEnvironment:    os.Getenv("SENTRY_ENVIRONMENT"),
		StorageProvider:      os.Getenv("STORAGE_PROVIDER"),
		SqliteBucket:         os.Getenv("SQLITE_BUCKET"),
		PeriodicBackup:       os.Getenv("PERIODIC_BACKUP"),
		PeriodicBackupMinute: os.Getenv("PERIODIC_BACKUP_MINUTE"),
	}
}

func detectServerless() bool {
	for _, k := range serverlessMarkers {
		if os.Getenv(k) != "" {
			return true
		}
	}
	return false
}

// ResolveDriver picks the active backend. It is evaluated on every call, never cached.
//  1. an explicit, recognised DBDriver wins
//  2. otherwise a connection string selects postgres
//  3. otherwise sqlite
func (c AppConfig) ResolveDriver() model.Driver {
	if v := strings.ToLower(strings.TrimSpace(c.DBDriver)); v != "" {
		switch v {
		case "sqlite", "embedded":
			return model.DriverSQLite
		case "postgres", "networked":
			return model.DriverPostgres
		default:
			slog.Warn("ignoring unknown submissions db driver", slog.String("driver", c.DBDriver))
		}
	}
	if strings.TrimSpace(c.DatabaseURL) != "" {
		return model.DriverPostgres
	}
	return model.DriverSQLite
}

// MaxPoolSize は PostgreSQL の最大接続数（正の整数、既定 10）です。
func (c AppConfig) MaxPoolSize() int {
	n, ok := atoi(c.DBMaxPool)
	if !ok || n <= 0 {
		return defaultMaxPool
	}
	return n
}

// SSLDisabled reports whether the postgres connection should use sslmode=disable.
func (c AppConfig) SSLDisabled() bool {
	switch strings.ToLower(strings.TrimSpace(c.DBSSL)) {
	case "disable", "disabled", "false", "0", "off", "no":
		return true
	}
	return false
}

// Ephemeral reports whether the local filesystem may vanish between invocations.
func (c AppConfig) Ephemeral() bool {
	return c.Serverless || c.SqliteSource == "gcs"
}

// RetentionWindow returns the retention window; zero means retention is disabled.
func (c AppConfig) RetentionWindow() time.Duration {
	days := defaultRetentionDays
	if n, ok := atoi(c.RetentionDays); ok {
		days = n
	}
	if days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}

// SweepInterval は保持スイープの最小間隔です。不正値は既定の 15 分。
func (c AppConfig) SweepInterval() time.Duration {
	n, ok := atoi(c.RetentionSweepMillis)
	if !ok || n < 0 {
		n = defaultSweepIntervalMillis
	}
	return time.Duration(n) * time.Millisecond
}

// StrictPersistenceEnabled is read by HTTP handlers, not by the persistence layer.
func (c AppConfig) StrictPersistenceEnabled() bool { return ParseBool(c.StrictPersistence) }

// SnapshotEnabled はスナップショット同期を有効化すべきかの判定です。
func (c AppConfig) SnapshotEnabled() bool {
	switch c.StorageProvider {
	case "gcs", "local":
		return c.SqliteBucket != ""
	}
	return false
}

// PeriodicBackupEnabled は定期バックアップが有効か判定します（既定は off）。
func (c AppConfig) PeriodicBackupEnabled() bool { return c.PeriodicBackup == "on" }

// PeriodicBackupIntervalMinutes は間隔（分）を返します（未設定は 10）。
func (c AppConfig) PeriodicBackupIntervalMinutes() int {
	n, ok := atoi(c.PeriodicBackupMinute)
	if !ok || n <= 0 {
		return 10
	}
	return n
}

// ParseBool accepts 1/true/yes/on in any case; everything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func atoi(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
