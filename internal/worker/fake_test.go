package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/QTest-hq/queryscope/internal/db"
)

// memoryStore is an in-memory RunStore
type memoryStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*db.AnalysisRun
}

var _ RunStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{runs: make(map[uuid.UUID]*db.AnalysisRun)}
}

func (m *memoryStore) add(path, lang, payload string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.runs[id] = &db.AnalysisRun{
		ID: id, Status: db.StatusPending, SourcePath: path, Language: lang, Payload: payload,
		CreatedAt: time.Now(),
	}
	return id
}

func (m *memoryStore) get(id uuid.UUID) db.AnalysisRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.runs[id]
}

func (m *memoryStore) GetRun(ctx context.Context, id uuid.UUID) (*db.AnalysisRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (m *memoryStore) ListPending(ctx context.Context, limit int) ([]db.AnalysisRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.AnalysisRun
	for _, run := range m.runs {
		if run.Status == db.StatusPending {
			out = append(out, *run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) ClaimRun(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || run.Status != db.StatusPending {
		return false, nil
	}
	now := time.Now()
	run.Status = db.StatusRunning
	run.StartedAt = &now
	return true, nil
}

func (m *memoryStore) CompleteRun(ctx context.Context, id uuid.UUID, report, summary json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return db.ErrNotFound
	}
	run.Status = db.StatusCompleted
	run.Report = &report
	run.Summary = &summary
	return nil
}

func (m *memoryStore) FailRun(ctx context.Context, id uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return db.ErrNotFound
	}
	run.Status = db.StatusFailed
	run.ErrorMessage = &message
	return nil
}

func (m *memoryStore) ReleaseRun(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok || run.Status != db.StatusRunning {
		return db.ErrNotFound
	}
	run.Status = db.StatusPending
	run.StartedAt = nil
	return nil
}

func (m *memoryStore) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, run := range m.runs {
		if run.Status == db.StatusRunning && run.StartedAt != nil && run.StartedAt.Before(cutoff) {
			run.Status = db.StatusPending
			run.StartedAt = nil
			n++
		}
	}
	return n, nil
}

// flakyStore fails the next CompleteRun calls with errCompleteFailed
type flakyStore struct {
	*memoryStore
	mu       sync.Mutex
	failures int
}

var errCompleteFailed = errors.New("connection reset")

func (f *flakyStore) CompleteRun(ctx context.Context, id uuid.UUID, report, summary json.RawMessage) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errCompleteFailed
	}
	f.mu.Unlock()
	return f.memoryStore.CompleteRun(ctx, id, report, summary)
}
