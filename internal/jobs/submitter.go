package jobs

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/queryscope/internal/db"
	qsnats "github.com/QTest-hq/queryscope/internal/nats"
)

// RunCreator persists new runs
type RunCreator interface {
	CreateRun(ctx context.Context, run *db.AnalysisRun) error
}

// Publisher announces new runs to workers
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error)
}

// Submitter stores runs and notifies workers
type Submitter struct {
	store     RunCreator
	publisher Publisher
}

// NewSubmitter creates a submitter. publisher may be nil, in which case
// workers find runs by polling the store.
func NewSubmitter(store RunCreator, publisher Publisher) *Submitter {
	return &Submitter{store: store, publisher: publisher}
}

// Submit validates req, persists a pending run and publishes its ID
func (s *Submitter) Submit(ctx context.Context, req Request) (*db.AnalysisRun, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &db.AnalysisRun{
		SourcePath: req.Path,
		Language:   string(req.Language),
		Payload:    req.Payload,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	if err := s.publish(ctx, run); err != nil {
		// The run is stored; a polling worker will still pick it up
		log.Error().Err(err).Str("run_id", run.ID.String()).Msg("failed to publish run")
	}

	log.Info().
		Str("run_id", run.ID.String()).
		Str("path", run.SourcePath).
		Msg("analysis submitted")

	return run, nil
}

func (s *Submitter) publish(ctx context.Context, run *db.AnalysisRun) error {
	if s.publisher == nil {
		return nil
	}

	msg := &JobMessage{RunID: run.ID}
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	_, err = s.publisher.Publish(ctx, qsnats.SubjectAnalysisRequested, data)
	return err
}
