package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/spendsense/backend/internal/categorize"
	"github.com/spendsense/backend/internal/config"
	"github.com/spendsense/backend/internal/etl"
	"github.com/spendsense/backend/internal/jobs"
	"github.com/spendsense/backend/internal/logger"
	"github.com/spendsense/backend/internal/service"
	"github.com/spendsense/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	ctx := logger.WithContext(context.Background(), log)

	var st store.Store
	if cfg.UseMemoryStore {
		log.Info().Msg("using in-memory store")
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

	queue := jobs.NewQueue(cfg.QueueSize, cfg.WorkerCount)
	svc := service.NewService(st, pipeline, queue)

	if err := queue.Start(ctx, svc.HandleIngestJob); err != nil {
		log.Fatal().Err(err).Msg("starting ingest workers")
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"User-Agent",
			"X-User-ID",
		},
		AllowCredentials: true,
	})

	handler := c.Handler(svc.Router())
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}

	go func() {
		log.Info().Str("port", cfg.Port).Int("workers", cfg.WorkerCount).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("queue drain")
	}
}
