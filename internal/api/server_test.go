package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/db"
	"github.com/QTest-hq/queryscope/internal/jobs"
	"github.com/QTest-hq/queryscope/internal/parser"
	"github.com/QTest-hq/queryscope/internal/scanner"
)

const userController = `<?php
class UserController {
    public function index() {
        $users = User::all();
        foreach ($users as $user) {
            echo $user->posts;
        }
    }
}
`

type fakeRuns struct {
	runs    map[uuid.UUID]*db.AnalysisRun
	listErr error
}

func (f *fakeRuns) GetRun(ctx context.Context, id uuid.UUID) (*db.AnalysisRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return run, nil
}

func (f *fakeRuns) ListRuns(ctx context.Context, limit, offset int) ([]db.AnalysisRun, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []db.AnalysisRun{}
	for _, run := range f.runs {
		out = append(out, *run)
	}
	return out, nil
}

type fakeSubmitter struct {
	got []jobs.Request
	err error
}

func (f *fakeSubmitter) Submit(ctx context.Context, req jobs.Request) (*db.AnalysisRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f.got = append(f.got, req)
	return &db.AnalysisRun{
		ID:         uuid.New(),
		Status:     db.StatusPending,
		SourcePath: req.Path,
		Language:   string(req.Language),
		CreatedAt:  time.Now(),
	}, nil
}

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(ctx context.Context) error { return f.err }

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Analyzer == nil {
		opts.Analyzer = scanner.New(scanner.Options{})
	}
	s, err := NewServer(opts)
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func TestNewServer_RequiresAnalyzer(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, Options{})

	rr := doJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestReadyCheck(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "healthy",
			checks:     map[string]HealthChecker{"database": fakeCheck{}},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "database down",
			checks:     map[string]HealthChecker{"database": fakeCheck{err: errors.New("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"not ready","checks":{"database":"connection refused"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{Checks: tt.checks})
			rr := doJSON(t, s, http.MethodGet, "/ready", nil)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.JSONEq(t, tt.wantBody, rr.Body.String())
		})
	}
}

func TestCorsMiddleware(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyze", nil)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestAnalyze_Source(t *testing.T) {
	s := newTestServer(t, Options{})

	rr := doJSON(t, s, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{
		Path:   "app/Http/Controllers/UserController.php",
		Source: userController,
		Hover:  true,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	require.Len(t, resp.Report.Methods, 1)
	m := resp.Report.Methods[0]
	assert.Equal(t, "index", m.MethodName)
	assert.True(t, m.PossibleNPlusOne)
	assert.Equal(t, 1, resp.Summary.NPlusOneMethods)

	require.Len(t, resp.Lenses, 1)
	assert.Equal(t, 3, resp.Lenses[0].Line)
	assert.Contains(t, resp.Lenses[0].Title, "⚠ N+1 risk")

	require.Len(t, resp.Hover, 1)
	assert.Equal(t, 4, resp.Hover[0].Line)
}

func TestAnalyze_AST(t *testing.T) {
	s := newTestServer(t, Options{})

	ast := json.RawMessage(`{"kind": "method", "loc": {"start": {"line": 4}, "end": {"line": 9}},
		"name": {"kind": "identifier", "name": "index"}, "body": null}`)
	rr := doJSON(t, s, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{Path: "index.json", AST: ast})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Report.Methods, 1)
	assert.Equal(t, analyzer.ComplexityConstant, resp.Report.Methods[0].EstimatedComplexity)
	assert.Empty(t, resp.Hover)
}

func TestAnalyze_BadRequests(t *testing.T) {
	s := newTestServer(t, Options{})

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing path", `{"source": "<?php"}`, http.StatusBadRequest},
		{"missing payload", `{"path": "A.php"}`, http.StatusBadRequest},
		{"null ast", `{"path": "A.json", "ast": null}`, http.StatusBadRequest},
		{"both payloads", `{"path": "A.php", "source": "<?php", "ast": {}}`, http.StatusBadRequest},
		{"blank path", `{"path": "  ", "source": "<?php"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			s.Router().ServeHTTP(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
		})
	}
}

func TestPayloadLimitMatchesAcrossEndpoints(t *testing.T) {
	s := newTestServer(t, Options{Submitter: &fakeSubmitter{}})
	oversized := AnalyzeRequest{Path: "A.php", Source: "<?php " + strings.Repeat("x", jobs.MaxPayloadBytes)}

	for _, path := range []string{"/api/v1/analyze", "/api/v1/analyses"} {
		t.Run(path, func(t *testing.T) {
			rr := doJSON(t, s, http.MethodPost, path, oversized)
			assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
			assert.Contains(t, rr.Body.String(), "payload too large")
		})
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) AnalyzeSource(ctx context.Context, path string, content []byte, lang parser.Language) (*analyzer.FileReport, error) {
	return nil, fmt.Errorf("%s: %w", path, analyzer.ErrBudgetExceeded)
}

func TestAnalyze_AnalysisError(t *testing.T) {
	s := newTestServer(t, Options{Analyzer: failingAnalyzer{}})

	rr := doJSON(t, s, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{Path: "A.php", Source: "<?php"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "node budget exceeded")
}

func TestAnalyze_NonTreeAST(t *testing.T) {
	s := newTestServer(t, Options{})

	rr := doJSON(t, s, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{Path: "A.json", AST: json.RawMessage(`"oops"`)})
	require.Equal(t, http.StatusOK, rr.Code)

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Empty(t, resp.Report.Methods)
	assert.Empty(t, resp.Lenses)
}

func TestCreateAnalysis(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestServer(t, Options{Submitter: sub})

	rr := doJSON(t, s, http.MethodPost, "/api/v1/analyses", AnalyzeRequest{Path: "A.php", Source: userController})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var resp RunResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, db.StatusPending, resp.Status)
	assert.Equal(t, "A.php", resp.Path)
	assert.Equal(t, "php", resp.Language)

	require.Len(t, sub.got, 1)
	assert.Equal(t, userController, sub.got[0].Payload)
}

func TestCreateAnalysis_Errors(t *testing.T) {
	t.Run("no job system", func(t *testing.T) {
		s := newTestServer(t, Options{})
		rr := doJSON(t, s, http.MethodPost, "/api/v1/analyses", AnalyzeRequest{Path: "A.php", Source: "<?php"})
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("missing payload", func(t *testing.T) {
		s := newTestServer(t, Options{Submitter: &fakeSubmitter{}})
		rr := doJSON(t, s, http.MethodPost, "/api/v1/analyses", AnalyzeRequest{Path: "A.php"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("source with any path", func(t *testing.T) {
		s := newTestServer(t, Options{Submitter: &fakeSubmitter{}})
		rr := doJSON(t, s, http.MethodPost, "/api/v1/analyses", AnalyzeRequest{Path: "snippet", Source: "<?php"})
		assert.Equal(t, http.StatusAccepted, rr.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		s := newTestServer(t, Options{Submitter: &fakeSubmitter{err: errors.New("db down")}})
		rr := doJSON(t, s, http.MethodPost, "/api/v1/analyses", AnalyzeRequest{Path: "A.php", Source: "<?php"})
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestGetAnalysis(t *testing.T) {
	report := json.RawMessage(`{"path":"A.php","methods":[]}`)
	done := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &db.AnalysisRun{
		ID:          uuid.New(),
		Status:      db.StatusCompleted,
		SourcePath:  "A.php",
		Language:    "php",
		Report:      &report,
		CreatedAt:   done.Add(-time.Second),
		CompletedAt: &done,
	}
	s := newTestServer(t, Options{Runs: &fakeRuns{runs: map[uuid.UUID]*db.AnalysisRun{run.ID: run}}})

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"found", "/api/v1/analyses/" + run.ID.String(), http.StatusOK},
		{"unknown", "/api/v1/analyses/" + uuid.New().String(), http.StatusNotFound},
		{"invalid id", "/api/v1/analyses/not-a-uuid", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, s, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}

	rr := doJSON(t, s, http.MethodGet, "/api/v1/analyses/"+run.ID.String(), nil)
	var resp RunResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Report)
	assert.JSONEq(t, string(report), string(*resp.Report))
	require.NotNil(t, resp.CompletedAt)
	assert.Equal(t, "2026-03-01T12:00:00Z", *resp.CompletedAt)
}

func TestListAnalyses(t *testing.T) {
	report := json.RawMessage(`{"path":"A.php"}`)
	run := &db.AnalysisRun{ID: uuid.New(), Status: db.StatusCompleted, SourcePath: "A.php", Report: &report}
	runs := &fakeRuns{runs: map[uuid.UUID]*db.AnalysisRun{run.ID: run}}
	s := newTestServer(t, Options{Runs: runs})

	rr := doJSON(t, s, http.MethodGet, "/api/v1/analyses?limit=500&offset=-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Analyses []RunResponse `json:"analyses"`
		Count    int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Nil(t, resp.Analyses[0].Report, "listing omits reports")

	runs.listErr = errors.New("db down")
	rr = doJSON(t, s, http.MethodGet, "/api/v1/analyses", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAnalyses_WithoutStore(t *testing.T) {
	s := newTestServer(t, Options{})

	for _, path := range []string{"/api/v1/analyses", "/api/v1/analyses/" + uuid.New().String()} {
		rr := doJSON(t, s, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}
