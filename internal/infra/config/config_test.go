package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fitcalc/site-backend/internal/domain/model"
)

func TestResolveDriver(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		dbURL  string
		want   model.Driver
	}{
		{name: "zero config defaults to sqlite", want: model.DriverSQLite},
		{name: "connection string selects postgres", dbURL: "postgres://u:p@db/x", want: model.DriverPostgres},
		{name: "explicit sqlite beats connection string", driver: "sqlite", dbURL: "postgres://u:p@db/x", want: model.DriverSQLite},
		{name: "explicit postgres without url", driver: "postgres", want: model.DriverPostgres},
		{name: "embedded alias", driver: "Embedded", want: model.DriverSQLite},
		{name: "networked alias", driver: " networked ", want: model.DriverPostgres},
		{name: "unknown value falls through to auto-detect", driver: "mysql", dbURL: "postgres://u:p@db/x", want: model.DriverPostgres},
		{name: "unknown value without url", driver: "mongo", want: model.DriverSQLite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := AppConfig{DBDriver: tt.driver, DatabaseURL: tt.dbURL}
			assert.Equal(t, tt.want, c.ResolveDriver())
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	for _, k := range serverlessMarkers {
		t.Setenv(k, "")
	}
	t.Setenv("PORT", "")
	t.Setenv("SUBMISSIONS_DB_DRIVER", "")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_URL", "postgres://fallback")
	t.Setenv("SUBMISSIONS_RETENTION_DAYS", "30")

	c := NewFromEnv()
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, "postgres://fallback", c.DatabaseURL)
	assert.False(t, c.Serverless)
	assert.Equal(t, 30*24*time.Hour, c.RetentionWindow())

	t.Setenv("K_SERVICE", "site")
	assert.True(t, NewFromEnv().Serverless)
	assert.True(t, NewFromEnv().Ephemeral())
}

func TestNumericDefaults(t *testing.T) {
	var c AppConfig
	assert.Equal(t, 10, c.MaxPoolSize())
	assert.Equal(t, 365*24*time.Hour, c.RetentionWindow())
	assert.Equal(t, 15*time.Minute, c.SweepInterval())
	assert.Equal(t, 10, c.PeriodicBackupIntervalMinutes())

	c = AppConfig{DBMaxPool: "-3", RetentionDays: "abc", RetentionSweepMillis: "x", PeriodicBackupMinute: "0"}
	assert.Equal(t, 10, c.MaxPoolSize())
	assert.Equal(t, 365*24*time.Hour, c.RetentionWindow())
	assert.Equal(t, 15*time.Minute, c.SweepInterval())
	assert.Equal(t, 10, c.PeriodicBackupIntervalMinutes())

	c = AppConfig{DBMaxPool: "25", RetentionDays: "0", RetentionSweepMillis: "0"}
	assert.Equal(t, 25, c.MaxPoolSize())
	assert.Zero(t, c.RetentionWindow())
	assert.Zero(t, c.SweepInterval())

	c = AppConfig{RetentionDays: "-1"}
	assert.Zero(t, c.RetentionWindow())
}

func TestSSLDisabled(t *testing.T) {
	for _, v := range []string{"disable", "FALSE", "0", "off"} {
		assert.True(t, AppConfig{DBSSL: v}.SSLDisabled(), v)
	}
	for _, v := range []string{"", "require", "true"} {
		assert.False(t, AppConfig{DBSSL: v}.SSLDisabled(), v)
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "on"} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"", "0", "false", "no", "off", "enabled"} {
		assert.False(t, ParseBool(v), v)
	}
	assert.True(t, AppConfig{StrictPersistence: "true"}.StrictPersistenceEnabled())
}

func TestSnapshotEnabled(t *testing.T) {
	assert.True(t, AppConfig{StorageProvider: "gcs", SqliteBucket: "b"}.SnapshotEnabled())
	assert.True(t, AppConfig{StorageProvider: "local", SqliteBucket: "/var/backups"}.SnapshotEnabled())
	assert.False(t, AppConfig{StorageProvider: "gcs"}.SnapshotEnabled())
	assert.False(t, AppConfig{SqliteBucket: "b"}.SnapshotEnabled())
}
