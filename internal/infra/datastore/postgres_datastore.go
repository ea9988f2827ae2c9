package datastore

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	pgdriver "github.com/fitcalc/site-backend/internal/infra/datastore/postgres"
)

type postgresStore struct {
	*pgdriver.SubmissionRepo

	pool *pgxpool.Pool
}

func (s *postgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func openPostgres(ctx context.Context, cfg Config) (*postgresStore, error) {
	pool, err := pgdriver.NewPool(ctx, pgdriver.Options{
		URL:         cfg.PostgresURL,
		MaxConns:    cfg.MaxConns,
		SSLDisabled: cfg.SSLDisabled,
	})
	if err != nil {
		return nil, err
	}
	if err := pgdriver.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresStore{SubmissionRepo: pgdriver.NewSubmissionRepo(pool), pool: pool}, nil
}
