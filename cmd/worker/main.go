// The worker binary drains statement files dropped into a watch directory.
// Each file is published to the ingest queue and processed by the worker
// pool; queued files move to done/ and unreadable ones to failed/. Parse
// failures surface as failed batches in the store, same as the HTTP path.
// Intended for bulk backfills and environments without the upload endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spendsense/backend/internal/categorize"
	"github.com/spendsense/backend/internal/config"
	"github.com/spendsense/backend/internal/etl"
	"github.com/spendsense/backend/internal/jobs"
	"github.com/spendsense/backend/internal/logger"
	"github.com/spendsense/backend/internal/model"
	"github.com/spendsense/backend/internal/service"
	"github.com/spendsense/backend/internal/store"
)

const pollInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	ctx := logger.WithContext(context.Background(), log)

	watchDir := os.Getenv("WATCH_DIR")
	if watchDir == "" {
		watchDir = "./inbox"
	}
	defaultUser := os.Getenv("INGEST_USER_ID")
	if defaultUser == "" {
		log.Fatal().Msg("INGEST_USER_ID is required")
	}

	for _, sub := range []string{"", "done", "failed"} {
		if err := os.MkdirAll(filepath.Join(watchDir, sub), 0o755); err != nil {
			log.Fatal().Err(err).Msg("preparing watch directory")
		}
	}

	var st store.Store
	if cfg.UseMemoryStore {
		log.Warn().Msg("using in-memory store; loaded facts will not survive restarts")
		st = store.NewMemoryStore()
	} else {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("connecting to postgres")
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("applying schema")
		}
		st = pg
	}
	defer st.Close()

	engine := categorize.NewEngine(
		categorize.NewRuleCache(st, cfg.RuleCacheTTL),
		categorize.ListClassifier{},
	)
	pipeline := etl.NewPipeline(st, engine)
	svc := service.NewService(st, pipeline, nil)

	queue := jobs.NewQueue(cfg.QueueSize, cfg.WorkerCount)
	if err := queue.Start(ctx, svc.HandleIngestJob); err != nil {
		log.Fatal().Err(err).Msg("starting workers")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	log.Info().Str("dir", watchDir).Int("workers", cfg.WorkerCount).Msg("watching for statement files")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			log.Info().Msg("shutting down")
			drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := queue.Stop(drainCtx); err != nil {
				log.Error().Err(err).Msg("queue drain")
			}
			cancel()
			return
		case <-ticker.C:
			sweep(ctx, watchDir, defaultUser, queue)
		}
	}
}

// sweep publishes every regular file at the top of the watch directory to
// the ingest queue. A file moves to done/ once queued so the next tick does
// not pick it up again; files that cannot be read move to failed/.
func sweep(ctx context.Context, dir, userID string, queue *jobs.Queue) {
	log := logger.FromContext(ctx)

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Error().Err(err).Msg("reading watch directory")
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Error().Err(err).Str("file", entry.Name()).Msg("reading statement file")
			moveTo(ctx, path, dir, "failed", entry.Name())
			continue
		}

		job := &jobs.IngestJob{
			Kind:     jobs.KindStatementFile,
			UserID:   userID,
			Filename: entry.Name(),
			Data:     data,
			BankHint: bankHintFromName(entry.Name()),
		}
		if err := queue.Publish(ctx, job); err != nil {
			log.Error().Err(err).Str("file", entry.Name()).Msg("queueing statement file")
			continue
		}
		log.Info().Str("file", entry.Name()).Str("job_id", job.JobID).Msg("statement queued")
		moveTo(ctx, path, dir, "done", entry.Name())
	}
}

func moveTo(ctx context.Context, path, dir, sub, name string) {
	if err := os.Rename(path, filepath.Join(dir, sub, name)); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("file", name).Msg("moving swept file")
	}
}

// bankHintFromName guesses the bank from the filename, e.g.
// "hdfc-march.csv". Parsing may still refine it from the letterhead.
func bankHintFromName(name string) model.BankCode {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "hdfc"):
		return model.BankHDFC
	case strings.Contains(lower, "icici"):
		return model.BankICICI
	case strings.Contains(lower, "sbi"):
		return model.BankSBI
	case strings.Contains(lower, "axis"):
		return model.BankAxis
	default:
		return model.BankGeneric
	}
}
