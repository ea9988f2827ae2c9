package repository

import (
	"context"
	"time"

	"github.com/fitcalc/site-backend/internal/domain/model"
)

// SubmissionStore abstracts submission persistence regardless of the underlying DB.
// 各メソッドは1行INSERTまたは集計のみで、トランザクションは使いません。
type SubmissionStore interface {
	SaveNewsletter(ctx context.Context, s model.NewsletterSubmission) error
	SaveContact(ctx context.Context, s model.ContactSubmission) error
	SaveEmbedRequest(ctx context.Context, s model.EmbedRequestSubmission) error
	Counts(ctx context.Context) (model.SubmissionCounts, error)
	// PurgeBefore deletes rows of all three tables created before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (PurgeResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// PurgeResult holds deleted row counts per table.
type PurgeResult struct {
	Newsletter    int64
	Contact       int64
	EmbedRequests int64
}

func (r PurgeResult) Total() int64 { return r.Newsletter + r.Contact + r.EmbedRequests }
