package worker

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	qsnats "github.com/QTest-hq/queryscope/internal/nats"
)

// Worker is the interface all workers must implement
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Pool runs a fixed number of analysis workers
type Pool struct {
	count    int
	store    RunStore
	analyzer SourceAnalyzer
	nats     *qsnats.Client
	workers  []Worker
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	Count    int
	Store    RunStore
	Analyzer SourceAnalyzer
	NATS     *qsnats.Client // optional
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("worker pool requires a store")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("worker pool requires an analyzer")
	}
	if cfg.Count < 1 {
		cfg.Count = 1
	}

	return &Pool{
		count:    cfg.Count,
		store:    cfg.Store,
		analyzer: cfg.Analyzer,
		nats:     cfg.NATS,
	}, nil
}

// Size returns the number of workers the pool starts
func (p *Pool) Size() int {
	return p.count
}

// consumer sets up the JetStream stream and returns the shared consumer, or
// nil when workers should poll the database
func (p *Pool) consumer(ctx context.Context) jetstream.Consumer {
	if p.nats == nil || !p.nats.IsConnected() {
		return nil
	}

	if err := p.nats.SetupStreams(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to setup NATS streams, workers will poll DB")
		return nil
	}

	consumer, err := p.nats.Consumer(ctx, qsnats.StreamAnalyses, qsnats.ConsumerAnalysisWorker)
	if err != nil {
		log.Warn().Err(err).Msg("failed to get consumer, workers will poll DB")
		return nil
	}

	log.Info().Msg("NATS streams configured")
	return consumer
}

// Run starts all workers and blocks until ctx is cancelled and every worker
// has returned
func (p *Pool) Run(ctx context.Context) error {
	consumer := p.consumer(ctx)

	p.workers = p.workers[:0]
	for i := 0; i < p.count; i++ {
		p.workers = append(p.workers, NewAnalysisWorker(AnalysisWorkerConfig{
			Store:    p.store,
			Analyzer: p.analyzer,
			Consumer: consumer,
		}))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			log.Info().Str("worker", w.Name()).Msg("starting worker")
			if err := w.Run(gctx); err != nil {
				return fmt.Errorf("worker %s failed: %w", w.Name(), err)
			}
			return nil
		})
	}

	err := g.Wait()
	log.Info().Msg("workers stopped")
	return err
}
