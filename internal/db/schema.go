package db

import (
	"context"
	"fmt"
)

// Schema creates the tables used by the Store. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id UUID PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'pending',
	source_path TEXT NOT NULL,
	language TEXT NOT NULL,
	payload TEXT NOT NULL,
	report JSONB,
	summary JSONB,
	error_message TEXT,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	started_at TIMESTAMP WITH TIME ZONE,
	completed_at TIMESTAMP WITH TIME ZONE
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_status_created
	ON analysis_runs(status, created_at);
`

// Migrate applies Schema
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}
