package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/config"
	"github.com/QTest-hq/queryscope/internal/db"
	qsnats "github.com/QTest-hq/queryscope/internal/nats"
	"github.com/QTest-hq/queryscope/internal/scanner"
	"github.com/QTest-hq/queryscope/internal/worker"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Workers need the database; the queue is optional
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	store := db.NewStore(database)
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	var natsClient *qsnats.Client
	if cfg.NATSURL != "" {
		natsClient, err = qsnats.NewClient(cfg.NATSURL, "queryscope-worker")
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, workers will poll database")
		} else {
			log.Info().Str("url", cfg.NATSURL).Msg("connected to NATS")
			defer natsClient.Close()
		}
	}

	pool, err := worker.NewPool(worker.PoolConfig{
		Count: cfg.Analysis.Workers,
		Store: store,
		Analyzer: scanner.New(scanner.Options{
			Analyzer: analyzer.New(analyzer.Options{MaxNodes: cfg.Analysis.MaxNodes}),
		}),
		NATS: natsClient,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker pool")
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("worker pool is shutting down...")
		cancel()
	}()

	log.Info().Int("workers", pool.Size()).Msg("starting worker pool")
	if err := pool.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("worker pool error")
	}

	log.Info().Msg("worker pool stopped")
}
