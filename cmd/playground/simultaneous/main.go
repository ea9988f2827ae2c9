package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fitcalc/site-backend/internal/app/usecase"
	"github.com/fitcalc/site-backend/internal/domain/model"
	"github.com/fitcalc/site-backend/internal/infra/datastore"
	sqlitedriver "github.com/fitcalc/site-backend/internal/infra/datastore/sqlite"
	"github.com/fitcalc/site-backend/internal/infra/platform/reporter"
	"github.com/fitcalc/site-backend/internal/util/clock"
)

// フォーム送信が並列に届く中で VACUUM INTO スナップショットが一貫しているかを確かめる検証用プログラム。
const (
	dbPath       = "./tmp/sim_submissions.sqlite"
	backupPath   = "./tmp/sim_submissions-backup.sqlite"
	writers      = 4 // 並列ライター数
	testDuration = 10 * time.Second
)

type sqliteOnly struct{}

func (sqliteOnly) ResolveDriver() model.Driver { return model.DriverSQLite }

type backupResult struct {
	at          time.Time
	duration    time.Duration
	mainTotal   int64
	backupTotal int64
	integrity   string
	err         error
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func total(c model.SubmissionCounts) int64 { return c.Newsletter + c.Contact + c.EmbedRequests }

// writer は 3 種類のフォーム送信をランダムに保存し続けます。
func writer(ctx context.Context, id int, svc *usecase.SubmissionService, failed *atomic.Int64, wg *sync.WaitGroup) {
	defer wg.Done()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		seq++
		email := fmt.Sprintf("w%d-%d@example.com", id, seq)
		var res model.SaveResult
		switch rand.Intn(3) {
		case 0:
			res = svc.SaveNewsletter(ctx, model.NewsletterSubmissionInput{Email: email, Provider: "resend", Status: "sent"})
		case 1:
			res = svc.SaveContact(ctx, model.ContactSubmissionInput{
				Name: fmt.Sprintf("writer %d", id), Email: email, Message: "hello", Provider: "none", Status: "received",
			})
		default:
			res = svc.SaveEmbedRequest(ctx, model.EmbedRequestSubmissionInput{
				Email: email, Website: "https://example.com", Calculator: "bmi", Provider: "none", Status: "received",
			})
		}
		if !res.Success && ctx.Err() == nil {
			failed.Add(1)
			log.Printf("[writer %d] save err: %s", id, res.Error)
		}
		// ほんの少しゆらぎを入れてロック競合を発生させやすくする
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}
}

func backupOnce(ctx context.Context, dbPath, path string) error {
	// VACUUM INTO は出力先が既に存在すると失敗するため、.tmp に出力してから置換する
	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	if err := sqlitedriver.SnapshotTo(ctx, dbPath, tmp); err != nil {
		return err
	}
	_ = os.Remove(path)
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func inspectBackup(ctx context.Context, path string) (int64, string, error) {
	// 別コネクションで対象 DB をオープンして件数と integrity_check
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, "", err
	}
	defer db.Close()

	var ic string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check;`).Scan(&ic); err != nil {
		return 0, "", err
	}
	c, err := sqlitedriver.NewSubmissionRepo(db).Counts(ctx)
	if err != nil {
		return 0, ic, err
	}
	return total(c), ic, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	_ = os.Remove(dbPath)

	registry := datastore.NewRegistry(datastore.Config{SQLitePath: dbPath})
	defer registry.Close()
	// 保持期間は長めにしてスイープ経路も並列で通す
	sweeper := datastore.NewSweeper(24*time.Hour, 500*time.Millisecond)
	svc := usecase.NewSubmissionService(sqliteOnly{}, registry, sweeper, reporter.New(reporter.Options{}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var failed atomic.Int64
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go writer(ctx, i+1, svc, &failed, &wg)
	}

	// バックアップループ
	var results []backupResult
	done := time.After(testDuration)
loop:
	for {
		select {
		case <-done:
			break loop
		case <-ctx.Done():
			break loop
		case <-time.After(2 * time.Second):
			start := clock.Now()
			r := backupResult{at: start}
			if err := backupOnce(ctx, dbPath, backupPath); err != nil {
				r.err = err
				log.Printf("[backup] ERR: %v", err)
			} else {
				r.backupTotal, r.integrity, r.err = inspectBackup(ctx, backupPath)
				// 件数はバックアップ後に取るので backup <= main が成り立つはず
				r.mainTotal = total(svc.Counts(ctx))
				r.duration = time.Since(start)
				log.Printf("[backup] OK in %v  main=%d  backup=%d  integrity=%s",
					r.duration, r.mainTotal, r.backupTotal, r.integrity)
			}
			results = append(results, r)
		}
	}

	stop()
	// writers 終了
	wg.Wait()

	// 終了前に最終バックアップ
	log.Println("[backup] final...")
	final := context.Background()
	must(backupOnce(final, dbPath, backupPath))
	bkTotal, ic, err := inspectBackup(final, backupPath)
	must(err)
	mainTotal := total(svc.Counts(final))
	log.Printf("[final] main=%d backup=%d integrity=%s failedSaves=%d", mainTotal, bkTotal, ic, failed.Load())

	// 検証: バックアップは一貫性があり、件数は単調増加、かつ main を超えない
	var violations []string
	var prev int64 = -1
	for i, r := range results {
		if r.err != nil {
			violations = append(violations, fmt.Sprintf("%d: backup error: %v", i, r.err))
			continue
		}
		if r.integrity != "ok" {
			violations = append(violations, fmt.Sprintf("%d: integrity=%s", i, r.integrity))
		}
		if prev >= 0 && r.backupTotal < prev {
			violations = append(violations, fmt.Sprintf("%d: backup %d < prev %d", i, r.backupTotal, prev))
		}
		if r.backupTotal > r.mainTotal {
			violations = append(violations, fmt.Sprintf("%d: backup %d > main %d", i, r.backupTotal, r.mainTotal))
		}
		prev = r.backupTotal
	}
	if ic != "ok" {
		violations = append(violations, fmt.Sprintf("final integrity=%s", ic))
	}
	// 書き込み停止後の最終バックアップは完全一致するはず
	if bkTotal != mainTotal {
		violations = append(violations, fmt.Sprintf("final backup %d != main %d", bkTotal, mainTotal))
	}
	if n := failed.Load(); n > 0 {
		violations = append(violations, fmt.Sprintf("%d saves failed", n))
	}

	if len(violations) == 0 {
		log.Println("RESULT: PASS (snapshots during concurrent submissions are consistent)")
	} else {
		log.Println("RESULT: FAIL")
		for _, v := range violations {
			log.Printf(" - %s", v)
		}
	}
	log.Println("done.")
}
