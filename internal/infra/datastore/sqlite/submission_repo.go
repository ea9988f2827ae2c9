package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fitcalc/site-backend/internal/domain/model"
	"github.com/fitcalc/site-backend/internal/domain/repository"
)

// TimeLayout is the fixed-width UTC layout used for created_at so that
// lexical order matches chronological order.
const TimeLayout = "2006-01-02 15:04:05.000000000"

func formatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

type SubmissionRepo struct{ db *sql.DB }

func NewSubmissionRepo(db *sql.DB) *SubmissionRepo { return &SubmissionRepo{db: db} }

func (r *SubmissionRepo) SaveNewsletter(ctx context.Context, s model.NewsletterSubmission) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO newsletter_submissions (email, source, provider, status, error, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, s.Email, s.Source, string(s.Provider), s.Status, s.Error, formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert newsletter submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepo) SaveContact(ctx context.Context, s model.ContactSubmission) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO contact_submissions (name, email, subject, message, provider, status, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, s.Name, s.Email, s.Subject, s.Message, string(s.Provider), s.Status, s.Error, formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert contact submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepo) SaveEmbedRequest(ctx context.Context, s model.EmbedRequestSubmission) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO embed_request_submissions (name, email, website, calculator, calculator_slug, notes, provider, status, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, s.Name, s.Email, s.Website, s.Calculator, s.CalculatorSlug, s.Notes, string(s.Provider), s.Status, s.Error, formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert embed request submission: %w", err)
	}
	return nil
}

// Counts issues one COUNT(*) per table.
func (r *SubmissionRepo) Counts(ctx context.Context) (model.SubmissionCounts, error) {
	var c model.SubmissionCounts
	targets := []struct {
		table string
		dst   *int64
	}{
		{"newsletter_submissions", &c.Newsletter},
		{"contact_submissions", &c.Contact},
		{"embed_request_submissions", &c.EmbedRequests},
	}
	for _, t := range targets {
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t.table).Scan(t.dst); err != nil {
			return model.SubmissionCounts{}, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return c, nil
}

// PurgeBefore hard-deletes rows created before cutoff. 各テーブル独立に削除します。
func (r *SubmissionRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (repository.PurgeResult, error) {
	var res repository.PurgeResult
	ts := formatTime(cutoff)
	targets := []struct {
		table string
		dst   *int64
	}{
		{"newsletter_submissions", &res.Newsletter},
		{"contact_submissions", &res.Contact},
		{"embed_request_submissions", &res.EmbedRequests},
	}
	for _, t := range targets {
		out, err := r.db.ExecContext(ctx, `DELETE FROM `+t.table+` WHERE created_at < ?`, ts)
		if err != nil {
			return res, fmt.Errorf("purge %s: %w", t.table, err)
		}
		if n, err := out.RowsAffected(); err == nil {
			*t.dst = n
		}
	}
	return res, nil
}
