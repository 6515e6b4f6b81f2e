package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Stream and subjects carrying analysis requests
const (
	StreamAnalyses = "QUERYSCOPE_ANALYSES"

	// SubjectAnalysesAll matches every analysis subject
	SubjectAnalysesAll = "analyses.>"

	// SubjectAnalysisRequested carries one message per submitted run
	SubjectAnalysisRequested = "analyses.requested"
)

// ConsumerAnalysisWorker is the durable consumer shared by all workers
const ConsumerAnalysisWorker = "analysis-worker"

// DefaultStreamConfig returns the work-queue stream for analysis requests.
// A message is removed once a worker acks it.
func DefaultStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamAnalyses,
		Description: "queryscope analysis requests",
		Subjects:    []string{SubjectAnalysesAll},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		Discard:     jetstream.DiscardOld,
		MaxMsgs:     100000,
		MaxBytes:    64 << 20,
		MaxAge:      24 * time.Hour,
		Replicas:    1,
	}
}

// WorkerConsumerConfig returns the durable consumer every worker pulls from.
// A message is delivered at most MaxDeliver times.
func WorkerConsumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:          ConsumerAnalysisWorker,
		Durable:       ConsumerAnalysisWorker,
		FilterSubject: SubjectAnalysisRequested,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       time.Minute,
		MaxDeliver:    3,
		MaxAckPending: 256,
	}
}

// SetupStreams creates the analysis stream and its worker consumer
func (c *Client) SetupStreams(ctx context.Context) error {
	if _, err := c.EnsureStream(ctx, DefaultStreamConfig()); err != nil {
		return err
	}
	_, err := c.EnsureConsumer(ctx, StreamAnalyses, WorkerConsumerConfig())
	return err
}
