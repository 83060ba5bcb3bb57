// Package chi exposes ingestion and retrieval over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/evergreen/internal/domain"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	"github.com/kailas-cloud/evergreen/internal/logger"
	healthuc "github.com/kailas-cloud/evergreen/internal/usecase/health"
)

// Request bounds.
const (
	DefaultMaxBatchSize = 500
	DefaultEntityLimit  = 20
	MaxEntityLimit      = 100
	maxBodyBytes        = 32 << 20
)

// Server serves the tenant-scoped HTTP API.
type Server struct {
	ingestion     Ingestor
	retrieval     Retriever
	statuses      TenantStatuses
	health        HealthChecker
	logger        *zap.Logger
	maxBatchSize  int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. statuses may be nil.
func NewServer(
	ingestion Ingestor,
	retrieval Retriever,
	statuses TenantStatuses,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ingestion:     ingestion,
		retrieval:     retrieval,
		statuses:      statuses,
		health:        health,
		logger:        logger,
		maxBatchSize:  DefaultMaxBatchSize,
		errorHandlers: defaultErrorHandlers(),
	}
}

// WithMaxBatchSize caps the number of documents in one batch request.
func (s *Server) WithMaxBatchSize(n int) *Server {
	if n > 0 {
		s.maxBatchSize = n
	}
	return s
}

// Register mounts every route on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1/tenants/{tenant}", func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Delete("/", s.DropTenant)
		r.Get("/stats", s.Stats)
		r.Post("/query", s.Query)

		r.Post("/documents", s.IngestDocument)
		r.Post("/documents/batch", s.IngestBatch)
		r.Get("/documents/{id}", s.GetDocument)
		r.Delete("/documents/{id}", s.DeleteDocument)
		r.Get("/documents/{id}/similar", s.SimilarDocuments)

		r.Get("/entities", s.SearchEntities)
		r.Get("/entities/{name}/context", s.EntityContext)
	})
}

// Handler returns a router with every route mounted and no middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

type batchRequest struct {
	Documents []document.RawDocument `json:"documents"`
}

type queryRequest struct {
	Query        string         `json:"query"`
	TopK         int            `json:"top_k"`
	Filters      map[string]any `json:"filters,omitempty"`
	IncludeGraph *bool          `json:"include_graph,omitempty"`
	Synthesize   *bool          `json:"synthesize,omitempty"`
}

// SimilarResponse wraps similar documents.
type SimilarResponse struct {
	DocumentID string                  `json:"document_id"`
	Items      []query.SimilarDocument `json:"items"`
}

// EntityListResponse wraps an entity search.
type EntityListResponse struct {
	Items []entity.Entity `json:"items"`
	Total int             `json:"total"`
}

// IngestDocument handles POST /v1/tenants/{tenant}/documents.
// The status of the returned record tells success from failure.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var raw document.RawDocument
	if !s.decode(w, r, &raw) {
		return
	}
	if !bindTenant(w, r, &raw) {
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	rec := s.ingestion.Ingest(ctx, raw)

	setEmbeddingHeaders(ctx, w, usage)
	writeJSON(w, http.StatusOK, rec)
}

// IngestBatch handles POST /v1/tenants/{tenant}/documents/batch.
func (s *Server) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var maxConcurrent *int
	if err := runtime.BindQueryParameter("form", true, false, "max_concurrent", r.URL.Query(), &maxConcurrent); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid max_concurrent: "+err.Error())
		return
	}
	if maxConcurrent != nil && *maxConcurrent <= 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "max_concurrent must be positive")
		return
	}

	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 || len(req.Documents) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("documents count must be between 1 and %d", s.maxBatchSize))
		return
	}
	for i := range req.Documents {
		if !bindTenant(w, r, &req.Documents[i]) {
			return
		}
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	report := s.ingestion.IngestBatch(ctx, req.Documents, deref(maxConcurrent))

	setEmbeddingHeaders(ctx, w, usage)
	writeJSON(w, http.StatusOK, report)
}

// GetDocument handles GET /v1/tenants/{tenant}/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ingestion.Status(r.Context(), TenantFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteDocument handles DELETE /v1/tenants/{tenant}/documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	del, err := s.ingestion.Delete(r.Context(), TenantFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, del)
}

// SimilarDocuments handles GET /v1/tenants/{tenant}/documents/{id}/similar.
func (s *Server) SimilarDocuments(w http.ResponseWriter, r *http.Request) {
	var topK *int
	if err := runtime.BindQueryParameter("form", true, false, "top_k", r.URL.Query(), &topK); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid top_k: "+err.Error())
		return
	}
	if topK != nil && (*topK <= 0 || *topK > query.MaxTopK) {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("top_k must be between 1 and %d", query.MaxTopK))
		return
	}

	id := chi.URLParam(r, "id")
	ctx, usage := domain.NewContextWithUsage(r.Context())
	items, err := s.retrieval.FindSimilar(ctx, TenantFromContext(ctx), id, deref(topK))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(ctx, w, usage)
	writeJSON(w, http.StatusOK, SimilarResponse{DocumentID: id, Items: items})
}

// Query handles POST /v1/tenants/{tenant}/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var body queryRequest
	if !s.decode(w, r, &body) {
		return
	}

	req := query.NewRequest(body.Query)
	req.TopK = body.TopK
	req.Filters = body.Filters
	if body.IncludeGraph != nil {
		req.IncludeGraph = *body.IncludeGraph
	}
	if body.Synthesize != nil {
		req.Synthesize = *body.Synthesize
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.retrieval.Query(ctx, TenantFromContext(ctx), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(ctx, w, usage)
	writeJSON(w, http.StatusOK, res)
}

// SearchEntities handles GET /v1/tenants/{tenant}/entities.
func (s *Server) SearchEntities(w http.ResponseWriter, r *http.Request) {
	var (
		search, typ *string
		limit       *int
	)
	params := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "search", params, &search); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid search: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "type", params, &typ); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid type: "+err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", params, &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid limit: "+err.Error())
		return
	}

	n := DefaultEntityLimit
	if limit != nil {
		n = *limit
	}
	if n <= 0 || n > MaxEntityLimit {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("limit must be between 1 and %d", MaxEntityLimit))
		return
	}

	items, err := s.retrieval.SearchEntities(r.Context(), TenantFromContext(r.Context()),
		deref(search), entity.Type(deref(typ)), n)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []entity.Entity{}
	}
	writeJSON(w, http.StatusOK, EntityListResponse{Items: items, Total: len(items)})
}

// EntityContext handles GET /v1/tenants/{tenant}/entities/{name}/context.
func (s *Server) EntityContext(w http.ResponseWriter, r *http.Request) {
	var typ *string
	if err := runtime.BindQueryParameter("form", true, false, "type", r.URL.Query(), &typ); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid type: "+err.Error())
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid entity name")
		return
	}

	ec, err := s.retrieval.EntityContext(r.Context(), TenantFromContext(r.Context()), name, entity.Type(deref(typ)))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ec)
}

// Stats handles GET /v1/tenants/{tenant}/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.retrieval.Stats(r.Context(), TenantFromContext(r.Context()))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DropTenant handles DELETE /v1/tenants/{tenant}.
func (s *Server) DropTenant(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if err := s.retrieval.DropTenant(r.Context(), tenant); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if s.statuses != nil {
		n, err := s.statuses.DeleteTenant(r.Context(), tenant)
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		logger.FromContext(r.Context()).Info("Status records dropped", zap.Int("count", n))
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// bindTenant fills the document tenant from the path and rejects a conflicting one.
func bindTenant(w http.ResponseWriter, r *http.Request, raw *document.RawDocument) bool {
	tenant := TenantFromContext(r.Context())
	if raw.TenantID != "" && raw.TenantID != tenant {
		writeError(w, http.StatusBadRequest, CodeInvalidTenant,
			fmt.Sprintf("document tenant %q does not match path tenant %q", raw.TenantID, tenant))
		return false
	}
	raw.TenantID = tenant
	return true
}

func setEmbeddingHeaders(ctx context.Context, w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Calls() > 0 {
		logger.Annotate(ctx, zap.Int("embedding_tokens", usage.Tokens()), zap.Int("embedding_calls", usage.Calls()))
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.Tokens()))
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
