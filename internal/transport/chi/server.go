package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/knnsearch/internal/db"
	"github.com/kailas-cloud/knnsearch/internal/domain"
	logpkg "github.com/kailas-cloud/knnsearch/internal/logger"
	healthuc "github.com/kailas-cloud/knnsearch/internal/usecase/health"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeIndexNotFound     = "index_not_found"
	CodeVectorDimMismatch = "vector_dim_mismatch"
	CodeEmbeddingProvider = "embedding_provider_error"
	CodeEmbeddingUnavail  = "embedding_unavailable"
	CodeSearchBackend     = "search_backend_error"
	CodeInternalError     = "internal_error"
)

const (
	defaultK    = 3
	defaultSize = 5
	maxK        = 1000
)

// Searcher is the HTTP-facing subset of the query engine.
type Searcher interface {
	Search(ctx context.Context, indexName, text string, k, returnCount int) (domain.SearchResult, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SearchHit is one ranked document.
type SearchHit struct {
	ID     string          `json:"id"`
	Score  float64         `json:"score"`
	Fields domain.Document `json:"fields"`
}

// SearchResponse is the body of GET /v1/indexes/{index}/search.
type SearchResponse struct {
	Hits  []SearchHit `json:"hits"`
	Total int         `json:"total"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves KNN queries over HTTP.
type Server struct {
	search        Searcher
	health        HealthChecker
	defaults      Defaults
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// Defaults are used when k or size are absent from the query string.
type Defaults struct {
	K    int
	Size int
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, health HealthChecker, defaults Defaults, logger *zap.Logger) *Server {
	if defaults.K <= 0 {
		defaults.K = defaultK
	}
	if defaults.Size <= 0 {
		defaults.Size = defaultSize
	}
	s := &Server{search: search, health: health, defaults: defaults, logger: logger}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(db.ErrIndexNotFound, http.StatusNotFound, CodeIndexNotFound),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadGateway, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusBadGateway, CodeEmbeddingUnavail),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrSearchBackend, http.StatusBadGateway, CodeSearchBackend),
	}
	return s
}

// Routes builds the router with the middleware stack.
func (s *Server) Routes(apiKeys []string, mw ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(mw...)

	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/v1/indexes/{index}/search", s.Search)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	return r
}

// Search handles GET /v1/indexes/{index}/search?q=&k=&size=.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	q := r.URL.Query()

	text := strings.TrimSpace(q.Get("q"))
	if text == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "query parameter q is required")
		return
	}
	size, err := intParam(q.Get("size"), s.defaults.Size)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "size: "+err.Error())
		return
	}
	k, err := intParam(q.Get("k"), max(s.defaults.K, size))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "k: "+err.Error())
		return
	}
	if k > maxK {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "k must not exceed "+strconv.Itoa(maxK))
		return
	}

	res, err := s.search.Search(r.Context(), index, text, k, size)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	hits := make([]SearchHit, len(res.Hits))
	for i, h := range res.Hits {
		hits[i] = SearchHit{ID: h.ID, Score: h.Score, Fields: h.Fields}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Hits: hits, Total: len(hits)})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if v <= 0 {
		return 0, errors.New("must be positive")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// Only the sentinel text reaches the client.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if errors.Is(err, domain.ErrInvalidQuery) {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
