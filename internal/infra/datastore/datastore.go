package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fitcalc/site-backend/internal/domain/model"
	"github.com/fitcalc/site-backend/internal/domain/repository"
)

// Config captures the parameters for both backends.
type Config struct {
	// SQLite
	SQLitePath string
	Strategy   SnapshotStrategy

	// PostgreSQL
	PostgresURL string
	MaxConns    int
	SSLDisabled bool
}

// ErrResetDuringInit is returned when Reset ran while the store was being opened.
var ErrResetDuringInit = errors.New("submission store reset during initialisation")

// Open selects and opens a store by driver.
func Open(ctx context.Context, driver model.Driver, cfg Config) (repository.SubmissionStore, error) {
	switch driver {
	case model.DriverSQLite:
		s, err := openSQLite(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	case model.DriverPostgres:
		s, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

// Registry lazily opens one store per driver and keeps it for the process lifetime.
// 初期化中の同時呼び出しは singleflight で同じ初期化を待ちます（CREATE TABLE の競合を避ける）。
// 初期化に失敗した場合はキャッシュせず、次の呼び出しで再試行します。
type Registry struct {
	cfg  Config
	open func(ctx context.Context, driver model.Driver, cfg Config) (repository.SubmissionStore, error)

	group  singleflight.Group
	mu     sync.Mutex
	gen    uint64 // Reset ごとに進める
	stores map[model.Driver]repository.SubmissionStore
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:    cfg,
		open:   Open,
		stores: make(map[model.Driver]repository.SubmissionStore),
	}
}

func (r *Registry) cached(driver model.Driver) (repository.SubmissionStore, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[driver]
	return s, ok
}

// Store returns the store for driver, opening and migrating it on first use.
func (r *Registry) Store(ctx context.Context, driver model.Driver) (repository.SubmissionStore, error) {
	if s, ok := r.cached(driver); ok {
		return s, nil
	}
	v, err, _ := r.group.Do(string(driver), func() (any, error) {
		r.mu.Lock()
		if s, ok := r.stores[driver]; ok {
			r.mu.Unlock()
			return s, nil
		}
		gen := r.gen
		r.mu.Unlock()

		// 先頭の呼び出し元がキャンセルしても他の待機者を巻き込まない
		s, err := r.open(context.WithoutCancel(ctx), driver, r.cfg)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if r.gen != gen {
			// 初期化中に Reset された。開いたハンドルは新しい世代に持ち込まない
			r.mu.Unlock()
			if cErr := s.Close(); cErr != nil {
				return nil, errors.Join(ErrResetDuringInit, cErr)
			}
			return nil, ErrResetDuringInit
		}
		r.stores[driver] = s
		r.mu.Unlock()
		slog.InfoContext(ctx, "submission store ready", slog.String("driver", string(driver)))
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(repository.SubmissionStore), nil
}

// Opened returns the already-open store for driver without opening one.
func (r *Registry) Opened(driver model.Driver) (repository.SubmissionStore, bool) {
	return r.cached(driver)
}

// PublishSnapshot asks an open SQLite store to publish a snapshot. 未オープンなら何もしません。
func (r *Registry) PublishSnapshot(ctx context.Context) error {
	s, ok := r.cached(model.DriverSQLite)
	if !ok {
		return nil
	}
	if ss, ok := s.(*sqliteStore); ok {
		return ss.publish(ctx)
	}
	return nil
}

// Reset closes every open store and forgets it, so the next call re-opens from scratch.
func (r *Registry) Reset() error {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[model.Driver]repository.SubmissionStore)
	r.gen++
	r.mu.Unlock()

	var errs []error
	for d, s := range stores {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", d, err))
		}
	}
	return errors.Join(errs...)
}

// Close is Reset under its shutdown name.
func (r *Registry) Close() error { return r.Reset() }
