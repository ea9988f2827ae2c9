// Package reporter logs submission persistence failures and forwards them to
// Sentry when a DSN is configured. Error tracking is optional: a missing DSN or
// a client that fails to initialise degrades to logging only.
package reporter

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"

	"github.com/fitcalc/site-backend/internal/domain/model"
	"github.com/fitcalc/site-backend/internal/httpx"
	"github.com/fitcalc/site-backend/internal/infra/platform/metrics"
)

// Options configures the optional Sentry forwarder.
type Options struct {
	DSN         string
	Environment string
	// BeforeSend can scrub or drop events before they leave the process.
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

type forwarder interface {
	Forward(operation string, driver model.Driver, code string, err error)
	Flush(timeout time.Duration) bool
}

type noopForwarder struct{}

func (noopForwarder) Forward(string, model.Driver, string, error) {}
func (noopForwarder) Flush(time.Duration) bool                    { return true }

type sentryForwarder struct{ hub *sentry.Hub }

func (f sentryForwarder) Forward(operation string, driver model.Driver, code string, err error) {
	// Hub は呼び出しごとに Clone してスコープの混線を避ける
	hub := f.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("operation", operation)
		scope.SetTag("driver", string(driver))
		if code != "" {
			scope.SetTag("code", code)
		}
	})
	hub.CaptureException(err)
}

func (f sentryForwarder) Flush(timeout time.Duration) bool { return f.hub.Flush(timeout) }

// Reporter is safe for concurrent use.
type Reporter struct {
	opts Options

	once sync.Once
	fwd  forwarder
}

func New(opts Options) *Reporter { return &Reporter{opts: opts} }

// forwarder resolves the Sentry client once.
func (r *Reporter) forwarder() forwarder {
	r.once.Do(func() {
		r.fwd = noopForwarder{}
		if r.opts.DSN == "" {
			return
		}
		client, err := sentry.NewClient(sentry.ClientOptions{
			Dsn:         r.opts.DSN,
			Environment: r.opts.Environment,
			BeforeSend:  r.opts.BeforeSend,
		})
		if err != nil {
			slog.Warn("error tracking disabled", slog.Any("error", err))
			return
		}
		r.fwd = sentryForwarder{hub: sentry.NewHub(client, sentry.NewScope())}
	})
	return r.fwd
}

// Report logs the failure at error level, counts it and forwards it best-effort.
func (r *Reporter) Report(ctx context.Context, operation string, driver model.Driver, err error) {
	if err == nil {
		return
	}
	code := ErrorCode(err)
	attrs := []any{
		slog.String("operation", operation),
		slog.String("driver", string(driver)),
		slog.String("code", code),
		slog.String("error", err.Error()),
	}
	// HTTP 経由ならリクエストログと突き合わせられるよう ID を付ける
	if a, ok := httpx.RequestIDAttr(ctx); ok {
		attrs = append(attrs, a)
	}
	slog.ErrorContext(ctx, "submission persistence failed", attrs...)
	metrics.PersistenceFailures.WithLabelValues(operation, string(driver)).Inc()
	r.forward(operation, driver, code, err)
}

func (r *Reporter) forward(operation string, driver model.Driver, code string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("error tracking forward panicked", slog.Any("panic", rec))
		}
	}()
	r.forwarder().Forward(operation, driver, code, err)
}

// Flush waits for buffered events; call it on shutdown.
func (r *Reporter) Flush(timeout time.Duration) bool {
	return r.forwarder().Flush(timeout)
}

// ErrorCode extracts a machine-readable code from driver and OS errors, or "".
func ErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return "SQLITE_" + strconv.Itoa(sqliteErr.Code())
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return "ERRNO_" + strconv.Itoa(int(errno))
	}
	if errors.Is(err, fs.ErrPermission) {
		return "EACCES"
	}
	return ""
}
