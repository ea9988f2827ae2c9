package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fitcalc/site-backend/internal/domain/model"
	"github.com/fitcalc/site-backend/internal/domain/repository"
	"github.com/fitcalc/site-backend/internal/infra/platform/metrics"
	"github.com/fitcalc/site-backend/internal/util/clock"
)

const (
	OpSaveNewsletter   = "save_newsletter"
	OpSaveContact      = "save_contact"
	OpSaveEmbedRequest = "save_embed_request"
	OpGetCounts        = "get_counts"
)

// DriverResolver picks the active backend on every call.
type DriverResolver interface {
	ResolveDriver() model.Driver
}

// StoreProvider hands out lazily-opened stores per driver.
type StoreProvider interface {
	Store(ctx context.Context, driver model.Driver) (repository.SubmissionStore, error)
	Reset() error
}

// RetentionSweeper is asked after every successful write whether a purge is due.
type RetentionSweeper interface {
	MaybeSweep(ctx context.Context, driver model.Driver, store repository.SubmissionStore)
	Reset()
}

// FailureReporter receives every error caught at the service boundary.
type FailureReporter interface {
	Report(ctx context.Context, operation string, driver model.Driver, err error)
}

// SubmissionService is the only entry point to submission persistence.
// どのメソッドもエラーを返さず panic も外に漏らしません。失敗は結果の値で表現します。
type SubmissionService struct {
	resolver DriverResolver
	stores   StoreProvider
	sweeper  RetentionSweeper
	reporter FailureReporter
}

func NewSubmissionService(resolver DriverResolver, stores StoreProvider, sweeper RetentionSweeper, reporter FailureReporter) *SubmissionService {
	return &SubmissionService{resolver: resolver, stores: stores, sweeper: sweeper, reporter: reporter}
}

func (s *SubmissionService) SaveNewsletter(ctx context.Context, in model.NewsletterSubmissionInput) model.SaveResult {
	rec := model.NewsletterSubmission{
		Email:     model.NormalizeEmail(in.Email),
		Source:    strings.TrimSpace(in.Source),
		Provider:  model.ParseProvider(in.Provider),
		Status:    strings.TrimSpace(in.Status),
		Error:     strings.TrimSpace(in.Error),
		CreatedAt: clock.UTCNow(),
	}
	return s.save(ctx, OpSaveNewsletter, "newsletter", func(ctx context.Context, st repository.SubmissionStore) error {
		return st.SaveNewsletter(ctx, rec)
	})
}

// SaveContact does not reject blank required fields; validation belongs to the caller.
func (s *SubmissionService) SaveContact(ctx context.Context, in model.ContactSubmissionInput) model.SaveResult {
	rec := model.ContactSubmission{
		Name:      strings.TrimSpace(in.Name),
		Email:     model.NormalizeEmail(in.Email),
		Subject:   strings.TrimSpace(in.Subject),
		Message:   strings.TrimSpace(in.Message),
		Provider:  model.ParseProvider(in.Provider),
		Status:    strings.TrimSpace(in.Status),
		Error:     strings.TrimSpace(in.Error),
		CreatedAt: clock.UTCNow(),
	}
	return s.save(ctx, OpSaveContact, "contact", func(ctx context.Context, st repository.SubmissionStore) error {
		return st.SaveContact(ctx, rec)
	})
}

func (s *SubmissionService) SaveEmbedRequest(ctx context.Context, in model.EmbedRequestSubmissionInput) model.SaveResult {
	rec := model.EmbedRequestSubmission{
		Name:           strings.TrimSpace(in.Name),
		Email:          model.NormalizeEmail(in.Email),
		Website:        strings.TrimSpace(in.Website),
		Calculator:     strings.TrimSpace(in.Calculator),
		CalculatorSlug: strings.TrimSpace(in.CalculatorSlug),
		Notes:          strings.TrimSpace(in.Notes),
		Provider:       model.ParseProvider(in.Provider),
		Status:         strings.TrimSpace(in.Status),
		Error:          strings.TrimSpace(in.Error),
		CreatedAt:      clock.UTCNow(),
	}
	return s.save(ctx, OpSaveEmbedRequest, "embed_request", func(ctx context.Context, st repository.SubmissionStore) error {
		return st.SaveEmbedRequest(ctx, rec)
	})
}

// Counts returns per-table row counts. On failure it reports and returns zeros,
// which callers must read as "unknown", not as a real zero.
func (s *SubmissionService) Counts(ctx context.Context) model.SubmissionCounts {
	driver := s.resolver.ResolveDriver()
	var counts model.SubmissionCounts
	err := s.withStore(ctx, driver, func(ctx context.Context, st repository.SubmissionStore) error {
		c, err := st.Counts(ctx)
		if err != nil {
			return err
		}
		counts = c
		return nil
	})
	if err != nil {
		s.reporter.Report(ctx, OpGetCounts, driver, err)
		return model.SubmissionCounts{}
	}
	return counts
}

// Ping checks the active store for health probes. Unlike the other methods it returns the error.
func (s *SubmissionService) Ping(ctx context.Context) (model.Driver, error) {
	driver := s.resolver.ResolveDriver()
	return driver, s.withStore(ctx, driver, func(ctx context.Context, st repository.SubmissionStore) error {
		return st.Ping(ctx)
	})
}

// Reset closes open stores and clears lazy-init and sweep throttle state. テスト用。
func (s *SubmissionService) Reset() error {
	if s.sweeper != nil {
		s.sweeper.Reset()
	}
	return s.stores.Reset()
}

func (s *SubmissionService) save(ctx context.Context, op, kind string, write func(context.Context, repository.SubmissionStore) error) model.SaveResult {
	driver := s.resolver.ResolveDriver()
	start := time.Now()

	var store repository.SubmissionStore
	err := s.withStore(ctx, driver, func(ctx context.Context, st repository.SubmissionStore) error {
		store = st
		return write(ctx, st)
	})
	metrics.RecordSave(kind, string(driver), time.Since(start), err)
	if err != nil {
		s.reporter.Report(ctx, op, driver, err)
		return model.SaveResult{Success: false, Driver: driver, Error: err.Error()}
	}

	// スイープの失敗は書き込み結果に影響させない
	if s.sweeper != nil {
		s.sweeper.MaybeSweep(ctx, driver, store)
	}
	return model.SaveResult{Success: true, Driver: driver}
}

// withStore resolves the store and runs fn, converting panics into errors.
func (s *SubmissionService) withStore(ctx context.Context, driver model.Driver, fn func(context.Context, repository.SubmissionStore) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("submission store panic: %v", rec)
		}
	}()
	st, err := s.stores.Store(ctx, driver)
	if err != nil {
		return err
	}
	return fn(ctx, st)
}
