// Package chi exposes the postcard search API over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"unicode/utf8"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/domain"
	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/request"
	logpkg "github.com/cardscout/postcards/internal/logger"
	"github.com/cardscout/postcards/internal/usecase/extraction"
	healthuc "github.com/cardscout/postcards/internal/usecase/health"
	searchuc "github.com/cardscout/postcards/internal/usecase/search"
	suggestuc "github.com/cardscout/postcards/internal/usecase/suggest"
	"github.com/cardscout/postcards/internal/version"
)

// TestImageURL is the fixed image used by GET /api/test-extraction.
const TestImageURL = "https://i.ebayimg.com/images/g/YdEAAOSwlSxlsrq4/s-l1600.jpg"

const (
	welcomeMessage = "Welcome to the Postcard Search API"
	noTextMessage  = "No text extracted"
	maxBodyBytes   = 1 << 20
)

// Searcher runs a marketplace search.
type Searcher interface {
	Search(ctx context.Context, req request.Request) searchuc.Result
}

// Suggester completes partial queries.
type Suggester interface {
	Suggest(ctx context.Context, query string, limit int) suggestuc.Result
}

// Diagnoser runs an uncached extraction for one image.
type Diagnoser interface {
	Diagnose(ctx context.Context, url string) (extraction.Report, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the API handlers.
type Server struct {
	search        Searcher
	suggest       Suggester
	extraction    Diagnoser
	health        HealthChecker
	validate      *validator.Validate
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search Searcher,
	suggest Suggester,
	extraction Diagnoser,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:     search,
		suggest:    suggest,
		extraction: extraction,
		health:     health,
		validate:   newValidator(),
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrPlaceholderImage, http.StatusBadRequest, codePlaceholderImage),
		sentinelHandler(domain.ErrImageDownload, http.StatusBadGateway, codeImageDownload),
		sentinelHandler(domain.ErrNotConfigured, http.StatusServiceUnavailable, codeNotConfigured),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Welcome handles GET /.
func (s *Server) Welcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, welcomeResponse{Message: welcomeMessage})
}

// SearchGet handles GET /api/search.
func (s *Server) SearchGet(w http.ResponseWriter, r *http.Request) {
	req, err := searchRequestFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	s.runSearch(w, r, req)
}

// SearchPost handles POST /api/search.
func (s *Server) SearchPost(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	s.runSearch(w, r, req)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, req searchRequest) {
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, validationMessage(err))
		return
	}
	domReq, err := req.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	ctx := logpkg.With(r.Context(), zap.String("query", domReq.Query()))
	res := s.search.Search(ctx, domReq)

	results := listing.Snapshots(res.Listings)
	if results == nil {
		results = []listing.View{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results:        results,
		Total:          res.Total,
		Page:           res.Page,
		Limit:          res.Limit,
		EnhancedQuery:  optionalString(res.EnhancedQuery),
		FiltersApplied: res.Filters.Applied(),
	})
}

// Suggest handles GET /api/suggest.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	var (
		query string
		limit *int
	)
	if err := runtime.BindQueryParameter("form", true, true, "query", r.URL.Query(), &query); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "query is required")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid parameter limit")
		return
	}

	n := 0
	if limit != nil {
		n = *limit
	}
	res := s.suggest.Suggest(r.Context(), query, n)
	writeJSON(w, http.StatusOK, suggestResponse{
		Suggestions:   res.Suggestions,
		OriginalQuery: res.OriginalQuery,
	})
}

// TestExtraction handles GET /api/test-extraction.
func (s *Server) TestExtraction(w http.ResponseWriter, r *http.Request) {
	s.diagnose(w, r, TestImageURL)
}

// TestCustomExtraction handles POST /api/test-custom-extraction.
func (s *Server) TestCustomExtraction(w http.ResponseWriter, r *http.Request) {
	var req extractionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, validationMessage(err))
		return
	}
	s.diagnose(w, r, req.ImageURL)
}

func (s *Server) diagnose(w http.ResponseWriter, r *http.Request, url string) {
	report, err := s.extraction.Diagnose(r.Context(), url)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	text := report.Text
	if text == "" {
		text = noTextMessage
	}
	writeJSON(w, http.StatusOK, extractionResponse{
		Status:        "success",
		ImageURL:      report.ImageURL,
		ExtractedText: text,
		TextLength:    utf8.RuneCountInString(report.Text),
	})
}

// HealthCheck handles GET /health.
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

	writeJSON(w, httpStatus, healthResponse{
		Status:  string(report.Status),
		Version: version.Version,
		Checks:  checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrPlaceholderImage,
		domain.ErrImageDownload,
		domain.ErrNotConfigured,
		domain.ErrProviderUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.logger.With(zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
