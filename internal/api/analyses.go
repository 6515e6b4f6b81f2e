package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/queryscope/internal/analyzer"
	"github.com/QTest-hq/queryscope/internal/db"
	"github.com/QTest-hq/queryscope/internal/jobs"
	"github.com/QTest-hq/queryscope/internal/parser"
	"github.com/QTest-hq/queryscope/internal/report"
)

var errMissingAnalyzer = errors.New("api server requires an analyzer")

// maxBodyBytes leaves room for JSON escaping around the payload limit
const maxBodyBytes = 2*jobs.MaxPayloadBytes + 4096

// AnalyzeRequest submits one file, either as PHP source or as a
// php-parser JSON AST
type AnalyzeRequest struct {
	Path   string          `json:"path"`
	Source string          `json:"source,omitempty"`
	AST    json.RawMessage `json:"ast,omitempty"`
	// Hover asks for line-level query hints; only available for source
	Hover bool `json:"hover,omitempty"`
}

func (r *AnalyzeRequest) payload() (string, parser.Language, error) {
	hasSource, hasAST := r.Source != "", len(r.AST) > 0 && string(r.AST) != "null"
	switch {
	case r.Path == "":
		return "", "", jobs.ErrMissingPath
	case hasSource && hasAST:
		return "", "", errors.New("send either source or ast, not both")
	case hasSource:
		return r.Source, parser.LanguagePHP, nil
	case hasAST:
		return string(r.AST), parser.LanguagePHPAST, nil
	default:
		return "", "", jobs.ErrMissingPayload
	}
}

// jobRequest turns r into a validated jobs.Request. Both the synchronous and
// queued endpoints accept exactly the requests it accepts.
func (r *AnalyzeRequest) jobRequest() (jobs.Request, error) {
	payload, lang, err := r.payload()
	if err != nil {
		return jobs.Request{}, err
	}
	req := jobs.Request{Path: r.Path, Language: lang, Payload: payload}
	return req, req.Validate()
}

// respondRequestError writes the status for a rejected request. It returns
// false for errors that are not the caller's fault.
func respondRequestError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, jobs.ErrPayloadTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, jobs.ErrMissingPath), errors.Is(err, jobs.ErrMissingPayload),
		errors.Is(err, parser.ErrUnsupportedLanguage):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		return false
	}
	return true
}

// Lens is the per-method summary line shown above a method
type Lens struct {
	Method string `json:"method"`
	Line   int    `json:"line"`
	Title  string `json:"title"`
}

// AnalyzeResponse is the synchronous analysis result
type AnalyzeResponse struct {
	Report  *analyzer.FileReport `json:"report"`
	Summary analyzer.Summary     `json:"summary"`
	Lenses  []Lens               `json:"lenses"`
	Hover   []analyzer.Hint      `json:"hover,omitempty"`
}

// RunResponse is the API view of a persisted run
type RunResponse struct {
	ID           uuid.UUID        `json:"id"`
	Status       db.RunStatus     `json:"status"`
	Path         string           `json:"path"`
	Language     string           `json:"language"`
	Report       *json.RawMessage `json:"report,omitempty"`
	Summary      *json.RawMessage `json:"summary,omitempty"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	CreatedAt    string           `json:"created_at"`
	CompletedAt  *string          `json:"completed_at,omitempty"`
}

// runToResponse converts a run to API response format. The report is only
// included when withReport is set.
func runToResponse(run *db.AnalysisRun, withReport bool) *RunResponse {
	resp := &RunResponse{
		ID:           run.ID,
		Status:       run.Status,
		Path:         run.SourcePath,
		Language:     run.Language,
		Summary:      run.Summary,
		ErrorMessage: run.ErrorMessage,
		CreatedAt:    run.CreatedAt.UTC().Format(time.RFC3339),
	}
	if withReport {
		resp.Report = run.Report
	}
	if run.CompletedAt != nil {
		s := run.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	return resp
}

func decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request) (*AnalyzeRequest, bool) {
	var req AnalyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return &req, true
}

// analyze runs the analysis synchronously and returns the report
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	jobReq, err := req.jobRequest()
	if err != nil {
		if !respondRequestError(w, err) {
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	fileReport, err := s.analyzer.AnalyzeSource(r.Context(), jobReq.Path, []byte(jobReq.Payload), jobReq.Language)
	if err != nil {
		log.Debug().Err(err).Str("path", req.Path).Msg("analysis rejected")
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := AnalyzeResponse{
		Report:  fileReport,
		Summary: analyzer.Summarize([]*analyzer.FileReport{fileReport}),
		Lenses:  make([]Lens, 0, len(fileReport.Methods)),
	}
	for _, m := range fileReport.Methods {
		resp.Lenses = append(resp.Lenses, Lens{
			Method: m.MethodName,
			Line:   m.StartLine,
			Title:  report.Title(m.MethodAnalysis),
		})
	}
	if req.Hover && jobReq.Language == parser.LanguagePHP {
		resp.Hover = analyzer.QueryLineHints(req.Source)
	}

	respondJSON(w, http.StatusOK, resp)
}

// createAnalysis queues a run for a worker
func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.submitter == nil {
		respondError(w, http.StatusServiceUnavailable, "job system not available")
		return
	}

	req, ok := decodeAnalyzeRequest(w, r)
	if !ok {
		return
	}

	jobReq, err := req.jobRequest()
	if err != nil {
		if !respondRequestError(w, err) {
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	run, err := s.submitter.Submit(r.Context(), jobReq)
	if err != nil {
		if respondRequestError(w, err) {
			return
		}
		log.Error().Err(err).Msg("failed to submit analysis")
		respondError(w, http.StatusInternalServerError, "failed to submit analysis")
		return
	}

	respondJSON(w, http.StatusAccepted, runToResponse(run, false))
}

// listAnalyses lists runs, newest first
func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "job system not available")
		return
	}

	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	runs, err := s.runs.ListRuns(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list analyses")
		respondError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}

	resp := make([]*RunResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, runToResponse(&runs[i], false))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"analyses": resp,
		"count":    len(resp),
	})
}

// getAnalysis returns a run with its report
func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "job system not available")
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	run, err := s.runs.GetRun(r.Context(), runID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", runID.String()).Msg("failed to get analysis")
		respondError(w, http.StatusInternalServerError, "failed to get analysis")
		return
	}

	respondJSON(w, http.StatusOK, runToResponse(run, true))
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
