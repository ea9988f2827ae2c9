package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitcalc/site-backend/internal/domain/model"
	"github.com/fitcalc/site-backend/internal/domain/repository"
)

var tables = []string{"newsletter_submissions", "contact_submissions", "embed_request_submissions"}

// SubmissionRepo is the PostgreSQL implementation of the submission ledgers.
type SubmissionRepo struct {
	pool *pgxpool.Pool
}

func NewSubmissionRepo(pool *pgxpool.Pool) *SubmissionRepo {
	return &SubmissionRepo{pool: pool}
}

func (r *SubmissionRepo) SaveNewsletter(ctx context.Context, s model.NewsletterSubmission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO newsletter_submissions (email, source, provider, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.Email, s.Source, string(s.Provider), s.Status, s.Error, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert newsletter submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepo) SaveContact(ctx context.Context, s model.ContactSubmission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO contact_submissions (name, email, subject, message, provider, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.Name, s.Email, s.Subject, s.Message, string(s.Provider), s.Status, s.Error, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert contact submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepo) SaveEmbedRequest(ctx context.Context, s model.EmbedRequestSubmission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO embed_request_submissions
		   (name, email, website, calculator, calculator_slug, notes, provider, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.Name, s.Email, s.Website, s.Calculator, s.CalculatorSlug, s.Notes, string(s.Provider), s.Status, s.Error, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert embed request submission: %w", err)
	}
	return nil
}

// Counts returns the number of rows per table. COUNT(*) は bigint で返るため int64 に直接 Scan します。
func (r *SubmissionRepo) Counts(ctx context.Context) (model.SubmissionCounts, error) {
	var n [3]int64
	for i, t := range tables {
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+t).Scan(&n[i]); err != nil {
			return model.SubmissionCounts{}, fmt.Errorf("count %s: %w", t, err)
		}
	}
	return model.SubmissionCounts{Newsletter: n[0], Contact: n[1], EmbedRequests: n[2]}, nil
}

func (r *SubmissionRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (repository.PurgeResult, error) {
	var n [3]int64
	for i, t := range tables {
		tag, err := r.pool.Exec(ctx, `DELETE FROM `+t+` WHERE created_at < $1`, cutoff)
		if err != nil {
			return repository.PurgeResult{Newsletter: n[0], Contact: n[1], EmbedRequests: n[2]}, fmt.Errorf("purge %s: %w", t, err)
		}
		n[i] = tag.RowsAffected()
	}
	return repository.PurgeResult{Newsletter: n[0], Contact: n[1], EmbedRequests: n[2]}, nil
}
