// Package worker processes submitted analysis runs
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/db"
	"github.com/QTest-hq/queryscope/internal/jobs"
	"github.com/QTest-hq/queryscope/internal/parser"
)

// RunStore is the subset of db.Store a worker needs
type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*db.AnalysisRun, error)
	ListPending(ctx context.Context, limit int) ([]db.AnalysisRun, error)
	ClaimRun(ctx context.Context, id uuid.UUID) (bool, error)
	CompleteRun(ctx context.Context, id uuid.UUID, report, summary json.RawMessage) error
	FailRun(ctx context.Context, id uuid.UUID, message string) error
	ReleaseRun(ctx context.Context, id uuid.UUID) error
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// releaseTimeout bounds the write that hands a run back after a store error
const releaseTimeout = 5 * time.Second

// SourceAnalyzer turns submitted content into a report
type SourceAnalyzer interface {
	AnalyzeSource(ctx context.Context, path string, content []byte, lang parser.Language) (*analyzer.FileReport, error)
}

// AnalysisWorker claims pending runs and stores their reports
type AnalysisWorker struct {
	workerID   string
	store      RunStore
	analyzer   SourceAnalyzer
	consumer   jetstream.Consumer
	pollPeriod time.Duration
	runTimeout time.Duration
	// staleAfter is how long a run may stay claimed before it is swept
	staleAfter time.Duration
}

// AnalysisWorkerConfig configures an analysis worker
type AnalysisWorkerConfig struct {
	WorkerID string
	Store    RunStore
	Analyzer SourceAnalyzer
	// Consumer is optional; without it the worker polls the store
	Consumer jetstream.Consumer
}

// NewAnalysisWorker creates a new analysis worker
func NewAnalysisWorker(cfg AnalysisWorkerConfig) *AnalysisWorker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("analysis-%s", uuid.New().String()[:8])
	}

	return &AnalysisWorker{
		workerID:   workerID,
		store:      cfg.Store,
		analyzer:   cfg.Analyzer,
		consumer:   cfg.Consumer,
		pollPeriod: 5 * time.Second,
		runTimeout: 30 * time.Second,
		staleAfter: time.Minute,
	}
}

// Name returns the worker's unique ID
func (w *AnalysisWorker) Name() string {
	return w.workerID
}

// SetPollPeriod sets the polling interval
func (w *AnalysisWorker) SetPollPeriod(d time.Duration) {
	w.pollPeriod = d
}

// Run processes runs until ctx is cancelled
func (w *AnalysisWorker) Run(ctx context.Context) error {
	logger := log.With().Str("worker_id", w.workerID).Logger()

	source := "database"
	if w.consumer != nil {
		source = "nats"
	}
	logger.Info().Str("source", source).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopping")
			return nil
		default:
			if err := w.processNext(ctx); err != nil {
				logger.Error().Err(err).Msg("error processing run")
				w.sleep(ctx)
			}
		}
	}
}

func (w *AnalysisWorker) processNext(ctx context.Context) error {
	if w.consumer != nil {
		return w.processFromNATS(ctx)
	}
	return w.processFromDB(ctx)
}

// processFromNATS fetches run announcements from JetStream
func (w *AnalysisWorker) processFromNATS(ctx context.Context) error {
	msgs, err := w.consumer.Fetch(1, jetstream.FetchMaxWait(w.pollPeriod))
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to fetch from NATS: %w", err)
	}

	received := 0
	for msg := range msgs.Messages() {
		received++
		jobMsg, err := jobs.DecodeJobMessage(msg.Data())
		if err != nil {
			log.Error().Err(err).Msg("dropping undecodable job message")
			msg.Term()
			continue
		}

		if _, err := w.Process(ctx, jobMsg.RunID); err != nil {
			log.Error().Err(err).Str("run_id", jobMsg.RunID.String()).Msg("run processing failed")
			msg.Nak()
			continue
		}
		msg.Ack()
	}

	if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return err
	}

	// Runs whose announcement was never published are only in the store
	if received == 0 && ctx.Err() == nil {
		_, err := w.processPending(ctx)
		return err
	}
	return nil
}

// processFromDB polls the store for pending runs
func (w *AnalysisWorker) processFromDB(ctx context.Context) error {
	n, err := w.processPending(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		w.sleep(ctx)
	}
	return nil
}

// processPending processes one batch of pending runs and returns its size.
// Runs claimed longer than staleAfter ago are handed back first.
func (w *AnalysisWorker) processPending(ctx context.Context) (int, error) {
	released, err := w.store.ReleaseStale(ctx, time.Now().Add(-w.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to release stale runs: %w", err)
	}
	if released > 0 {
		log.Warn().Int64("runs", released).Str("worker_id", w.workerID).Msg("released stale runs")
	}

	pending, err := w.store.ListPending(ctx, 10)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending runs: %w", err)
	}

	for _, run := range pending {
		if ctx.Err() != nil {
			return len(pending), nil
		}
		if _, err := w.Process(ctx, run.ID); err != nil {
			log.Error().Err(err).Str("run_id", run.ID.String()).Msg("run processing failed")
		}
	}
	return len(pending), nil
}

// Process claims and analyses one run. It returns false when the run was
// already claimed elsewhere. Analysis failures are recorded on the run and
// are not returned; the error is reserved for store failures, after which
// the run is pending again.
func (w *AnalysisWorker) Process(ctx context.Context, id uuid.UUID) (bool, error) {
	claimed, err := w.store.ClaimRun(ctx, id)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	if err := w.execute(ctx, id); err != nil {
		w.release(ctx, id)
		return true, err
	}
	return true, nil
}

// release hands a claimed run back. ctx may already be cancelled.
func (w *AnalysisWorker) release(ctx context.Context, id uuid.UUID) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := w.store.ReleaseRun(releaseCtx, id); err != nil {
		log.Error().Err(err).Str("run_id", id.String()).Msg("failed to release run")
		return
	}
	log.Warn().Str("run_id", id.String()).Msg("run released for retry")
}

func (w *AnalysisWorker) execute(ctx context.Context, id uuid.UUID) error {
	run, err := w.store.GetRun(ctx, id)
	if err != nil {
		return err
	}

	logger := log.With().
		Str("worker_id", w.workerID).
		Str("run_id", id.String()).
		Str("path", run.SourcePath).
		Logger()

	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	start := time.Now()
	report, err := w.analyzer.AnalyzeSource(runCtx, run.SourcePath, []byte(run.Payload), parser.Language(run.Language))
	if err != nil {
		logger.Warn().Err(err).Msg("analysis failed")
		return w.store.FailRun(ctx, id, err.Error())
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return w.store.FailRun(ctx, id, fmt.Sprintf("failed to encode report: %v", err))
	}
	summaryJSON, err := json.Marshal(analyzer.Summarize([]*analyzer.FileReport{report}))
	if err != nil {
		return w.store.FailRun(ctx, id, fmt.Sprintf("failed to encode summary: %v", err))
	}

	if err := w.store.CompleteRun(ctx, id, reportJSON, summaryJSON); err != nil {
		return err
	}

	logger.Info().
		Int("methods", len(report.Methods)).
		Dur("duration", time.Since(start)).
		Msg("run completed")
	return nil
}

func (w *AnalysisWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollPeriod):
	}
}
