package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle state of an analysis run
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the run will not change again
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Store provides database operations
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store
func NewStore(db *DB) *Store {
	return &Store{pool: db.Pool()}
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// AnalysisRun is a submitted file and, once processed, its report
type AnalysisRun struct {
	ID           uuid.UUID        `json:"id"`
	Status       RunStatus        `json:"status"`
	SourcePath   string           `json:"source_path"`
	Language     string           `json:"language"`
	Payload      string           `json:"-"`
	Report       *json.RawMessage `json:"report,omitempty"`
	Summary      *json.RawMessage `json:"summary,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

const runColumns = `id, status, source_path, language, payload, report, summary, error_message,
	created_at, updated_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*AnalysisRun, error) {
	run := &AnalysisRun{}
	err := row.Scan(&run.ID, &run.Status, &run.SourcePath, &run.Language, &run.Payload,
		&run.Report, &run.Summary, &run.ErrorMessage,
		&run.CreatedAt, &run.UpdatedAt, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CreateRun inserts a pending run
func (s *Store) CreateRun(ctx context.Context, run *AnalysisRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = StatusPending
	run.CreatedAt = time.Now()
	run.UpdatedAt = run.CreatedAt

	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_runs (id, status, source_path, language, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.Status, run.SourcePath, run.Language, run.Payload, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetRun gets a run by ID
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*AnalysisRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]AnalysisRun, error) {
	return s.listRuns(ctx, `
		SELECT `+runColumns+` FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

// ListPending lists pending runs, oldest first
func (s *Store) ListPending(ctx context.Context, limit int) ([]AnalysisRun, error) {
	return s.listRuns(ctx, `
		SELECT `+runColumns+` FROM analysis_runs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
}

func (s *Store) listRuns(ctx context.Context, query string, args ...any) ([]AnalysisRun, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]AnalysisRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// ClaimRun moves a pending run to running. It returns false when another
// worker claimed it first.
func (s *Store) ClaimRun(ctx context.Context, id uuid.UUID) (bool, error) {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_runs SET status = $2, started_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, StatusRunning, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteRun stores the report of a finished run
func (s *Store) CompleteRun(ctx context.Context, id uuid.UUID, report, summary json.RawMessage) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_runs
		SET status = $2, report = $3, summary = $4, completed_at = $5, updated_at = $5
		WHERE id = $1
	`, id, StatusCompleted, report, summary, now)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailRun records why a run could not be analysed
func (s *Store) FailRun(ctx context.Context, id uuid.UUID, message string) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_runs
		SET status = $2, error_message = $3, completed_at = $4, updated_at = $4
		WHERE id = $1
	`, id, StatusFailed, message, now)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseRun returns a running run to pending so it can be claimed again
func (s *Store) ReleaseRun(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_runs SET status = $2, started_at = NULL, updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, id, StatusPending, time.Now())
	if err != nil {
		return fmt.Errorf("failed to release run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseStale returns runs claimed before cutoff to pending and reports how
// many were released
func (s *Store) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE analysis_runs SET status = $1, started_at = NULL, updated_at = NOW()
		WHERE status = 'running' AND started_at < $2
	`, StatusPending, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
