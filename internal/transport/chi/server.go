package chi

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/cvgen/internal/domain"
	domprobe "github.com/kailas-cloud/cvgen/internal/domain/probe"
	domresult "github.com/kailas-cloud/cvgen/internal/domain/result"
	logpkg "github.com/kailas-cloud/cvgen/internal/logger"
	"github.com/kailas-cloud/cvgen/internal/version"
	healthuc "github.com/kailas-cloud/cvgen/internal/usecase/health"
	sessionuc "github.com/kailas-cloud/cvgen/internal/usecase/session"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server implements ServerInterface for the chi router.
type Server struct {
	runner        Runner
	sessions      Sessions
	aggregator    HealthAggregator
	liveness      Liveness
	logger        *zap.Logger
	errorHandlers []errorHandler
	now           func() time.Time

	openAPIOnce sync.Once
	openAPIJSON []byte
	openAPIErr  error
}

var _ ServerInterface = (*Server)(nil)

// NewServer creates an HTTP API server.
func NewServer(
	runner Runner,
	sessions Sessions,
	aggregator HealthAggregator,
	liveness Liveness,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:     runner,
		sessions:   sessions,
		aggregator: aggregator,
		liveness:   liveness,
		logger:     logger,
		now:        time.Now,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidSession, http.StatusBadRequest, ErrorResponseCodeInvalidSession),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, ErrorResponseCodeNotFound),
		sentinelHandler(domain.ErrAlreadyExists, http.StatusConflict, ErrorResponseCodeAlreadyExists),
	}
	return s
}

// GetRoot handles GET /.
func (s *Server) GetRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{OK: true, TS: s.now().UTC(), Version: version.Version})
}

// RunTests handles POST /api/tests/run.
func (s *Server) RunTests(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.runner.Trigger(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RunResponse{
		SessionUUID: ticket.SessionID,
		Scheduled:   ticket.Scheduled,
	})
}

// GetSession handles GET /api/tests/session/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request, id openapi_types.UUID) {
	detail, err := s.sessions.Get(r.Context(), id.String())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reportToAPI(detail))
}

// GetLatestSession handles GET /api/tests/latest.
func (s *Server) GetLatestSession(w http.ResponseWriter, r *http.Request) {
	detail, err := s.sessions.Latest(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reportToAPI(detail))
}

// ListDefinitions handles GET /api/tests/defs.
func (s *Server) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.sessions.Definitions(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	items := make([]Definition, len(defs))
	for i, d := range defs {
		items[i] = definitionToAPI(d)
	}
	writeJSON(w, http.StatusOK, DefinitionList{Definitions: items})
}

// UpdateDefinition handles PATCH /api/tests/defs/{id}.
func (s *Server) UpdateDefinition(w http.ResponseWriter, r *http.Request, id string) {
	var req UpdateDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeValidationFailed, "active is required")
		return
	}

	def, err := s.sessions.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, definitionToAPI(def))
}

// GetHealth handles GET /api/health. Any computed answer is a 200; the body carries the verdict.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	sig := s.aggregator.Check(r.Context())
	writeJSON(w, http.StatusOK, HealthSignal{
		Status:    string(sig.Status),
		LastCheck: sig.CheckedAt,
	})
}

// GetStatus handles GET /api/status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	report := s.liveness.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, StatusResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// GetOpenAPIJSON handles GET /openapi.json.
func (s *Server) GetOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	s.openAPIOnce.Do(func() {
		s.openAPIJSON, s.openAPIErr = yamlToJSON(openAPIYAML)
	})
	if s.openAPIErr != nil {
		s.handleDomainError(w, r, s.openAPIErr)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.openAPIJSON)
}

// GetOpenAPIYAML handles GET /openapi.yaml.
func (s *Server) GetOpenAPIYAML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIYAML)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// BadRequestHandler maps parameter binding failures to a JSON 400.
func BadRequestHandler(w http.ResponseWriter, _ *http.Request, err error) {
	var pe *InvalidParamFormatError
	if errors.As(err, &pe) && pe.ParamName == "id" {
		writeError(w, http.StatusBadRequest, ErrorResponseCodeInvalidSession, domain.ErrInvalidSession.Error())
		return
	}
	writeError(w, http.StatusBadRequest, ErrorResponseCodeBadRequest, "invalid request")
}

func yamlToJSON(doc []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode openapi document: %w", err)
	}
	return b, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorResponseCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidSession,
		domain.ErrNotFound,
		domain.ErrAlreadyExists,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorResponseCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Info("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorResponseCodeInternalError, "internal error")
}

func reportToAPI(d sessionuc.Detail) SessionReport {
	pending := d.Pending()
	if pending == nil {
		pending = []string{}
	}
	results := make([]ProbeResult, len(d.Results))
	for i, res := range d.Results {
		def, _ := d.Definition(res.ProbeID())
		results[i] = resultToAPI(res, def)
	}
	return SessionReport{
		SessionUUID: d.ID,
		State:       string(d.State()),
		Scheduled:   d.Scheduled(),
		Received:    d.Received(),
		Pending:     pending,
		Results:     results,
	}
}

// resultToAPI joins a stored result with its definition. def may be the zero value.
func resultToAPI(res domresult.Result, def domprobe.Definition) ProbeResult {
	out := ProbeResult{
		ID:              res.ID(),
		ProbeID:         res.ProbeID(),
		ProbeName:       def.Name(),
		Category:        def.Category(),
		Severity:        string(def.Severity()),
		Status:          string(res.Status()),
		StartedAt:       res.StartedAt().UTC(),
		FinishedAt:      res.FinishedAt().UTC(),
		DurationMs:      res.DurationMs(),
		DurationClamped: res.DurationClamped(),
		Raw:             res.Raw(),
		AIExplanation:   res.AIExplanation(),
		AIFixSuggestion: res.AIFixSuggestion(),
	}
	if code := res.ErrorCode(); code != "" {
		out.ErrorCode = &code
		if e, ok := def.Taxonomy().Lookup(code); ok {
			meaning, fix := e.Meaning, e.Fix
			out.Meaning = &meaning
			out.Fix = &fix
		}
	}
	return out
}

func definitionToAPI(d domprobe.Definition) Definition {
	errorMap := d.Taxonomy()
	if errorMap == nil {
		errorMap = domprobe.Taxonomy{}
	}
	return Definition{
		ID:          d.ID(),
		Name:        d.Name(),
		Description: d.Description(),
		Category:    d.Category(),
		Severity:    string(d.Severity()),
		Active:      d.Active(),
		ErrorMap:    errorMap,
		CreatedAt:   d.CreatedAt(),
	}
}
