package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/cache"
	"github.com/QTest-hq/queryscope/internal/config"
	"github.com/QTest-hq/queryscope/internal/db"
	"github.com/QTest-hq/queryscope/internal/jobs"
	qsnats "github.com/QTest-hq/queryscope/internal/nats"
	"github.com/QTest-hq/queryscope/internal/scanner"
)

const shutdownTimeout = 30 * time.Second

// Run builds the server from cfg and serves until ctx is done. The database
// and NATS are optional: without a database only the synchronous endpoints
// are served, without NATS workers find queued runs by polling.
func Run(ctx context.Context, cfg *config.Config) error {
	opts := Options{
		Config: cfg,
		Analyzer: scanner.New(scanner.Options{
			Workers:  cfg.Analysis.Workers,
			Analyzer: analyzer.New(analyzer.Options{MaxNodes: cfg.Analysis.MaxNodes}),
			Cache:    cache.New(cfg.Analysis.CacheSize),
		}),
		Checks: map[string]HealthChecker{},
	}

	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, async analyses disabled")
		} else {
			defer database.Close()

			store := db.NewStore(database)
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			opts.Runs = store
			opts.Checks["database"] = database

			var publisher jobs.Publisher
			if client := connectNATS(ctx, cfg.NATSURL); client != nil {
				defer client.Close()
				publisher = client
				opts.Checks["nats"] = CheckFunc(func(context.Context) error { return client.HealthCheck() })
			}
			opts.Submitter = jobs.NewSubmitter(store, publisher)
		}
	}

	srv, err := NewServer(opts)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("starting API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("could not listen on port %d: %w", cfg.Port, err)
	case <-ctx.Done():
	}

	log.Info().Msg("server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

// connectNATS returns nil when NATS is not configured or unreachable
func connectNATS(ctx context.Context, url string) *qsnats.Client {
	if url == "" {
		return nil
	}
	client, err := qsnats.NewClient(url, "queryscope-api")
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to NATS, runs will be picked up by polling")
		return nil
	}
	if err := client.SetupStreams(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to setup NATS streams")
	}
	log.Info().Str("url", url).Msg("connected to NATS")
	return client
}
