package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apphttp "github.com/fitcalc/site-backend/internal/app/http"
	"github.com/fitcalc/site-backend/internal/app/usecase"
	"github.com/fitcalc/site-backend/internal/domain/model"
	"github.com/fitcalc/site-backend/internal/httpx"
	"github.com/fitcalc/site-backend/internal/infra/config"
	"github.com/fitcalc/site-backend/internal/infra/datastore"
	sqlitedriver "github.com/fitcalc/site-backend/internal/infra/datastore/sqlite"
	"github.com/fitcalc/site-backend/internal/infra/platform/logger"
	"github.com/fitcalc/site-backend/internal/infra/platform/reporter"
	storageif "github.com/fitcalc/site-backend/internal/infra/storage"
	gcsstore "github.com/fitcalc/site-backend/internal/infra/storage/gcs"
	localstore "github.com/fitcalc/site-backend/internal/infra/storage/local"
)

func main() {
	// .env はローカル開発用。無ければ環境変数のみで動く
	_ = godotenv.Load()

	cfg := config.NewFromEnv()
	slog.SetDefault(logger.New(cfg.LogProvider, logger.ParseLevel(cfg.LogLevel)))

	rep := reporter.New(reporter.Options{DSN: cfg.SentryDSN, Environment: cfg.SentryEnvironment})
	defer rep.Flush(2 * time.Second)

	driver := cfg.ResolveDriver()
	registry := datastore.NewRegistry(datastore.Config{
		SQLitePath:  sqlitedriver.Path(cfg.SqlitePath, cfg.Ephemeral()),
		Strategy:    snapshotStrategy(cfg, driver),
		PostgresURL: cfg.DatabaseURL,
		MaxConns:    cfg.MaxPoolSize(),
		SSLDisabled: cfg.SSLDisabled(),
	})
	sweeper := datastore.NewSweeper(cfg.RetentionWindow(), cfg.SweepInterval())
	svc := usecase.NewSubmissionService(cfg, registry, sweeper, rep)

	slog.Info("submission store configured",
		slog.String("driver", string(driver)),
		slog.Bool("ephemeral", cfg.Ephemeral()),
		slog.Duration("retention", cfg.RetentionWindow()),
		slog.Bool("strict", cfg.StrictPersistenceEnabled()),
	)

	mux := http.NewServeMux()
	apphttp.Register(mux, svc, apphttp.Options{StrictPersistence: cfg.StrictPersistenceEnabled()})
	mux.Handle("GET /metrics", promhttp.Handler())
	// Static (serve built site)
	mux.Handle("/", httpx.CachingFileServer("./frontend/dist"))

	handler := httpx.LoggingMiddleware(httpx.MaintenanceMiddleware(config.ParseBool(cfg.MaintenanceMode))(httpx.RecoverMiddleware(mux)))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           http.TimeoutHandler(handler, 10*time.Second, "timeout"),
		ReadHeaderTimeout: 500 * time.Millisecond,
		ReadTimeout:       5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	bgCtx, stopBg := context.WithCancel(context.Background())
	defer stopBg()
	if cfg.PeriodicBackupEnabled() && driver == model.DriverSQLite {
		go periodicBackup(bgCtx, registry, time.Duration(cfg.PeriodicBackupIntervalMinutes())*time.Minute)
	}

	go func() {
		slog.Info("server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
		slog.Info("server stopped accepting new conns")
	}()

	// シャットダウン待受け
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		slog.Error("shutdown error", slog.Any("error", err))
	}
	stopBg()
	// SQLite の場合は Close 時にスナップショットを公開する
	if err := registry.Close(); err != nil {
		slog.Error("datastore close error", slog.Any("error", err))
	}
	slog.Info("graceful shutdown complete")
}

// snapshotStrategy はスナップショット同期戦略を選びます（SQLite のみ）。
func snapshotStrategy(cfg config.AppConfig, driver model.Driver) datastore.SnapshotStrategy {
	if driver != model.DriverSQLite {
		return datastore.NoopSnapshotStrategy{}
	}
	if cfg.SnapshotEnabled() {
		var objStore storageif.ObjectStore = localstore.Store{}
		if cfg.StorageProvider == "gcs" {
			objStore = &gcsstore.Store{}
		}
		return sqlitedriver.ObjectStoreSnapshotStrategy{ObjectStore: objStore, Bucket: cfg.SqliteBucket, Retention: cfg.RetentionWindow()}
	}
	if cfg.PeriodicBackupEnabled() {
		// 外部ストレージ無しでも DB の隣に世代スナップショットを残す
		return sqlitedriver.LocalSnapshotStrategy{Retention: cfg.RetentionWindow()}
	}
	return datastore.NoopSnapshotStrategy{}
}

func periodicBackup(ctx context.Context, registry *datastore.Registry, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := registry.PublishSnapshot(ctx); err != nil {
				slog.WarnContext(ctx, "periodic backup failed", slog.Any("error", err))
				continue
			}
			slog.DebugContext(ctx, "periodic backup published")
		}
	}
}
