package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fitcalc/site-backend/internal/domain/model"
	"github.com/fitcalc/site-backend/internal/domain/repository"
	"github.com/fitcalc/site-backend/internal/infra/platform/metrics"
	"github.com/fitcalc/site-backend/internal/util/clock"
)

// Sweeper deletes rows older than the retention window, at most once per interval per driver.
// 最終実行時刻はメモリのみで保持します（再起動でリセットされても DELETE は冪等）。
type Sweeper struct {
	window   time.Duration
	interval time.Duration

	mu   sync.Mutex
	last map[model.Driver]time.Time
}

// NewSweeper returns a sweeper. window <= 0 disables retention entirely.
func NewSweeper(window, interval time.Duration) *Sweeper {
	return &Sweeper{window: window, interval: interval, last: make(map[model.Driver]time.Time)}
}

// due reports whether a sweep should run now and, if so, records now as the last sweep.
// 削除の成否を待たずに時刻を更新するため、失敗しても次の間隔まで再試行しません。
// 時計が巻き戻った場合（NTP 補正など）は期限切れとみなします。
func (s *Sweeper) due(driver model.Driver, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.last[driver]; ok && !now.Before(last) && now.Sub(last) < s.interval {
		return false
	}
	s.last[driver] = now
	return true
}

// MaybeSweep runs a best-effort purge when one is due. Errors are logged, never returned.
func (s *Sweeper) MaybeSweep(ctx context.Context, driver model.Driver, store repository.SubmissionStore) {
	if s == nil || s.window <= 0 || store == nil {
		return
	}
	now := clock.Now()
	if !s.due(driver, now) {
		return
	}
	cutoff := now.Add(-s.window)

	res, err := s.purge(ctx, store, cutoff)
	metrics.RecordSweep(string(driver), res.Newsletter, res.Contact, res.EmbedRequests, err)
	if err != nil {
		slog.WarnContext(ctx, "retention sweep failed",
			slog.String("driver", string(driver)),
			slog.Time("cutoff", cutoff),
			slog.Any("error", err),
		)
		return
	}
	if n := res.Total(); n > 0 {
		slog.InfoContext(ctx, "retention sweep purged rows",
			slog.String("driver", string(driver)),
			slog.Int64("rows", n),
			slog.Time("cutoff", cutoff),
		)
	}
}

func (s *Sweeper) purge(ctx context.Context, store repository.SubmissionStore, cutoff time.Time) (res repository.PurgeResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("retention sweep panic: %v", rec)
		}
	}()
	return store.PurgeBefore(ctx, cutoff)
}

// Reset forgets all throttle state.
func (s *Sweeper) Reset() {
	s.mu.Lock()
	s.last = make(map[model.Driver]time.Time)
	s.mu.Unlock()
}
