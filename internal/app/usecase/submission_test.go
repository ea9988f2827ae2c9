package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcalc/site-backend/internal/domain/model"
	"github.com/fitcalc/site-backend/internal/domain/repository"
	"github.com/fitcalc/site-backend/internal/infra/config"
	"github.com/fitcalc/site-backend/internal/infra/datastore"
	"github.com/fitcalc/site-backend/internal/util/clock"
)

// ---------------------------------------------------------------------------
// test doubles
// ---------------------------------------------------------------------------

type fakeReporter struct {
	mu      sync.Mutex
	reports []string
}

func (r *fakeReporter) Report(_ context.Context, op string, d model.Driver, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, op+"|"+string(d))
}

func (r *fakeReporter) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reports...)
}

type mockStore struct {
	repository.SubmissionStore // 未使用メソッドは nil で panic させる

	saveNewsletterFunc func(ctx context.Context, s model.NewsletterSubmission) error
	saveContactFunc    func(ctx context.Context, s model.ContactSubmission) error
	saveEmbedFunc      func(ctx context.Context, s model.EmbedRequestSubmission) error
	countsFunc         func(ctx context.Context) (model.SubmissionCounts, error)
}

func (m *mockStore) SaveNewsletter(ctx context.Context, s model.NewsletterSubmission) error {
	return m.saveNewsletterFunc(ctx, s)
}
func (m *mockStore) SaveContact(ctx context.Context, s model.ContactSubmission) error {
	return m.saveContactFunc(ctx, s)
}
func (m *mockStore) SaveEmbedRequest(ctx context.Context, s model.EmbedRequestSubmission) error {
	return m.saveEmbedFunc(ctx, s)
}
func (m *mockStore) Counts(ctx context.Context) (model.SubmissionCounts, error) {
	return m.countsFunc(ctx)
}

type staticProvider struct {
	store repository.SubmissionStore
	err   error
}

func (p staticProvider) Store(context.Context, model.Driver) (repository.SubmissionStore, error) {
	return p.store, p.err
}
func (staticProvider) Reset() error { return nil }

func sqliteService(t *testing.T, path string, window, interval time.Duration) (*SubmissionService, *fakeReporter) {
	t.Helper()
	rep := &fakeReporter{}
	reg := datastore.NewRegistry(datastore.Config{SQLitePath: path})
	svc := NewSubmissionService(
		config.AppConfig{DBDriver: "sqlite"},
		reg,
		datastore.NewSweeper(window, interval),
		rep,
	)
	t.Cleanup(func() { _ = svc.Reset() })
	return svc, rep
}

// ---------------------------------------------------------------------------
// normalization
// ---------------------------------------------------------------------------

func TestSaveNewsletter_NormalizesFields(t *testing.T) {
	var saved model.NewsletterSubmission
	store := &mockStore{saveNewsletterFunc: func(_ context.Context, s model.NewsletterSubmission) error {
		saved = s
		return nil
	}}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	defer clock.Set(clock.NewManual(fixed))()

	svc := NewSubmissionService(config.AppConfig{}, staticProvider{store: store}, nil, &fakeReporter{})
	res := svc.SaveNewsletter(context.Background(), model.NewsletterSubmissionInput{
		Email:    "  USER@EXAMPLE.COM  ",
		Source:   "  Blog Footer ",
		Provider: "Mailchimp",
		Status:   " subscribed ",
	})

	assert.Equal(t, model.SaveResult{Success: true, Driver: model.DriverSQLite}, res)
	assert.Equal(t, "user@example.com", saved.Email)
	assert.Equal(t, "Blog Footer", saved.Source, "only the email is case-normalized")
	assert.Equal(t, model.ProviderMailchimp, saved.Provider)
	assert.Equal(t, "subscribed", saved.Status)
	assert.Equal(t, "", saved.Error)
	assert.Equal(t, fixed, saved.CreatedAt)
}

func TestSaveContact_BlankRequiredFieldsAreStoredEmpty(t *testing.T) {
	var saved model.ContactSubmission
	store := &mockStore{saveContactFunc: func(_ context.Context, s model.ContactSubmission) error {
		saved = s
		return nil
	}}
	svc := NewSubmissionService(config.AppConfig{}, staticProvider{store: store}, nil, &fakeReporter{})

	res := svc.SaveContact(context.Background(), model.ContactSubmissionInput{
		Name:    "   ",
		Email:   " Jane@Example.com",
		Subject: "\t",
		Message: " hi ",
	})

	assert.True(t, res.Success)
	assert.Equal(t, "", saved.Name)
	assert.Equal(t, "jane@example.com", saved.Email)
	assert.Equal(t, "", saved.Subject)
	assert.Equal(t, "hi", saved.Message)
	assert.Equal(t, model.ProviderNone, saved.Provider)
}

func TestSaveEmbedRequest_OptionalFieldsDefaultToEmpty(t *testing.T) {
	var saved model.EmbedRequestSubmission
	store := &mockStore{saveEmbedFunc: func(_ context.Context, s model.EmbedRequestSubmission) error {
		saved = s
		return nil
	}}
	svc := NewSubmissionService(config.AppConfig{}, staticProvider{store: store}, nil, &fakeReporter{})

	res := svc.SaveEmbedRequest(context.Background(), model.EmbedRequestSubmissionInput{
		Name:  " Jane ",
		Email: "JANE@EXAMPLE.COM",
	})

	assert.True(t, res.Success)
	assert.Equal(t, "Jane", saved.Name)
	assert.Equal(t, "jane@example.com", saved.Email)
	assert.Empty(t, saved.Website)
	assert.Empty(t, saved.Calculator)
	assert.Empty(t, saved.CalculatorSlug)
	assert.Empty(t, saved.Notes)
}

// ---------------------------------------------------------------------------
// no-throw contract
// ---------------------------------------------------------------------------

func TestSave_StoreErrorIsReportedNotReturned(t *testing.T) {
	rep := &fakeReporter{}
	store := &mockStore{saveNewsletterFunc: func(context.Context, model.NewsletterSubmission) error {
		return errors.New("connection reset")
	}}
	svc := NewSubmissionService(config.AppConfig{DBDriver: "postgres"}, staticProvider{store: store}, nil, rep)

	res := svc.SaveNewsletter(context.Background(), model.NewsletterSubmissionInput{Email: "a@b.c"})

	assert.Equal(t, model.SaveResult{Success: false, Driver: model.DriverPostgres, Error: "connection reset"}, res)
	assert.Equal(t, []string{"save_newsletter|postgres"}, rep.ops())
}

func TestSave_ProvisioningErrorIsReported(t *testing.T) {
	rep := &fakeReporter{}
	svc := NewSubmissionService(config.AppConfig{DBDriver: "postgres"}, staticProvider{err: errors.New("no connection string")}, nil, rep)

	res := svc.SaveContact(context.Background(), model.ContactSubmissionInput{Email: "a@b.c"})
	assert.False(t, res.Success)
	assert.Equal(t, "no connection string", res.Error)
	assert.Equal(t, []string{"save_contact|postgres"}, rep.ops())
}

func TestSave_PanicIsContained(t *testing.T) {
	rep := &fakeReporter{}
	store := &mockStore{saveEmbedFunc: func(context.Context, model.EmbedRequestSubmission) error {
		panic("driver bug")
	}}
	svc := NewSubmissionService(config.AppConfig{}, staticProvider{store: store}, nil, rep)

	var res model.SaveResult
	require.NotPanics(t, func() {
		res = svc.SaveEmbedRequest(context.Background(), model.EmbedRequestSubmissionInput{Email: "a@b.c"})
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "driver bug")
	assert.Equal(t, []string{"save_embed_request|sqlite"}, rep.ops())
}

func TestCounts_ErrorDegradesToZero(t *testing.T) {
	rep := &fakeReporter{}
	store := &mockStore{countsFunc: func(context.Context) (model.SubmissionCounts, error) {
		return model.SubmissionCounts{Newsletter: 9}, errors.New("timeout")
	}}
	svc := NewSubmissionService(config.AppConfig{}, staticProvider{store: store}, nil, rep)

	assert.Equal(t, model.SubmissionCounts{}, svc.Counts(context.Background()))
	assert.Equal(t, []string{"get_counts|sqlite"}, rep.ops())
}

// ---------------------------------------------------------------------------
// sqlite end to end
// ---------------------------------------------------------------------------

func TestScenario_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, rep := sqliteService(t, filepath.Join(t.TempDir(), "fresh.sqlite"), 365*24*time.Hour, 15*time.Minute)

	assert.Equal(t, model.SubmissionCounts{}, svc.Counts(ctx))

	res := svc.SaveNewsletter(ctx, model.NewsletterSubmissionInput{
		Email: "jane@example.com", Source: "blog", Provider: "mailchimp", Status: "subscribed",
	})
	assert.Equal(t, model.SaveResult{Success: true, Driver: model.DriverSQLite}, res)

	res = svc.SaveContact(ctx, model.ContactSubmissionInput{
		Name: "Jane Doe", Email: "jane@example.com", Subject: "question",
		Message: "Can you help with embeds?", Provider: "resend", Status: "sent",
	})
	assert.True(t, res.Success)

	res = svc.SaveEmbedRequest(ctx, model.EmbedRequestSubmissionInput{
		Name: "Jane Doe", Email: "jane@example.com", Website: "https://example.com",
		Calculator: "BMI", CalculatorSlug: "bmi", Notes: "...", Provider: "convertkit", Status: "submitted",
	})
	assert.True(t, res.Success)

	assert.Equal(t, model.SubmissionCounts{Newsletter: 1, Contact: 1, EmbedRequests: 1}, svc.Counts(ctx))
	assert.Empty(t, rep.ops())
}

func TestCountsAreIndependentAndAdditive(t *testing.T) {
	ctx := context.Background()
	svc, _ := sqliteService(t, filepath.Join(t.TempDir(), "add.sqlite"), 0, 0)

	for i := 0; i < 3; i++ {
		require.True(t, svc.SaveNewsletter(ctx, model.NewsletterSubmissionInput{Email: "n@example.com"}).Success)
	}
	require.True(t, svc.SaveContact(ctx, model.ContactSubmissionInput{Email: "c@example.com"}).Success)

	assert.Equal(t, model.SubmissionCounts{Newsletter: 3, Contact: 1}, svc.Counts(ctx))
}

func TestPersistenceAcrossReinitialization(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "durable.sqlite")
	svc, _ := sqliteService(t, path, 0, 0)

	require.True(t, svc.SaveNewsletter(ctx, model.NewsletterSubmissionInput{Email: "keep@example.com"}).Success)
	require.NoError(t, svc.Reset())

	assert.Equal(t, int64(1), svc.Counts(ctx).Newsletter)

	other, _ := sqliteService(t, path, 0, 0)
	assert.Equal(t, int64(1), other.Counts(ctx).Newsletter)
}

func TestGracefulDegradation_PathIsDirectory(t *testing.T) {
	ctx := context.Background()
	svc, rep := sqliteService(t, t.TempDir(), 0, 0)

	results := []model.SaveResult{
		svc.SaveNewsletter(ctx, model.NewsletterSubmissionInput{Email: "x@example.com"}),
		svc.SaveContact(ctx, model.ContactSubmissionInput{Email: "x@example.com"}),
		svc.SaveEmbedRequest(ctx, model.EmbedRequestSubmissionInput{Email: "x@example.com"}),
	}
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, model.DriverSQLite, r.Driver)
		assert.NotEmpty(t, r.Error)
	}
	assert.Equal(t, model.SubmissionCounts{}, svc.Counts(ctx))
	assert.Equal(t, []string{
		"save_newsletter|sqlite", "save_contact|sqlite", "save_embed_request|sqlite", "get_counts|sqlite",
	}, rep.ops())
}

func TestRetention_PurgesOnlyExpiredRows(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewManual(t0)
	defer clock.Set(clk)()

	svc, _ := sqliteService(t, filepath.Join(t.TempDir(), "retention.sqlite"), 30*24*time.Hour, 0)

	require.True(t, svc.SaveNewsletter(ctx, model.NewsletterSubmissionInput{Email: "old@example.com"}).Success)
	clk.Advance(10 * 24 * time.Hour)
	require.True(t, svc.SaveContact(ctx, model.ContactSubmissionInput{Email: "recent@example.com"}).Success)
	assert.Equal(t, model.SubmissionCounts{Newsletter: 1, Contact: 1}, svc.Counts(ctx))

	// t0+31d: cutoff は t0+1d。t0 の行だけが期限切れ
	clk.Advance(21 * 24 * time.Hour)
	require.True(t, svc.SaveEmbedRequest(ctx, model.EmbedRequestSubmissionInput{Email: "new@example.com"}).Success)

	assert.Equal(t, model.SubmissionCounts{Newsletter: 0, Contact: 1, EmbedRequests: 1}, svc.Counts(ctx))
}

func TestRetention_DisabledNeverDeletes(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	defer clock.Set(clk)()

	svc, _ := sqliteService(t, filepath.Join(t.TempDir(), "keep.sqlite"), 0, 0)

	require.True(t, svc.SaveNewsletter(ctx, model.NewsletterSubmissionInput{Email: "ancient@example.com"}).Success)
	clk.Advance(10 * 365 * 24 * time.Hour)
	require.True(t, svc.SaveNewsletter(ctx, model.NewsletterSubmissionInput{Email: "today@example.com"}).Success)

	assert.Equal(t, int64(2), svc.Counts(ctx).Newsletter)
}

func TestConcurrentFirstUseOpensOnce(t *testing.T) {
	ctx := context.Background()
	svc, rep := sqliteService(t, filepath.Join(t.TempDir(), "race.sqlite"), 0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.SaveNewsletter(ctx, model.NewsletterSubmissionInput{Email: "race@example.com"})
		}()
	}
	wg.Wait()

	assert.Empty(t, rep.ops())
	assert.Equal(t, int64(16), svc.Counts(ctx).Newsletter)
}

func TestPing(t *testing.T) {
	svc, _ := sqliteService(t, filepath.Join(t.TempDir(), "ping.sqlite"), 0, 0)
	d, err := svc.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DriverSQLite, d)
}
