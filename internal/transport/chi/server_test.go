package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/domain"
	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
	"github.com/cardscout/postcards/internal/domain/search/request"
	"github.com/cardscout/postcards/internal/usecase/extraction"
	healthuc "github.com/cardscout/postcards/internal/usecase/health"
	searchuc "github.com/cardscout/postcards/internal/usecase/search"
	suggestuc "github.com/cardscout/postcards/internal/usecase/suggest"
)

// --- Mocks ---

type mockSearcher struct {
	last     *request.Request
	listings []*listing.Listing
	panics   bool
}

func (m *mockSearcher) Search(_ context.Context, req request.Request) searchuc.Result {
	if m.panics {
		panic("boom")
	}
	m.last = &req
	return searchuc.Result{
		Listings:      m.listings,
		Total:         len(m.listings) + 3,
		Page:          req.Page(),
		Limit:         req.Limit(),
		EnhancedQuery: req.Query() + " postcard",
		Filters:       req.Filters(),
	}
}

type mockSuggester struct {
	query string
	limit int
}

func (m *mockSuggester) Suggest(_ context.Context, query string, limit int) suggestuc.Result {
	m.query, m.limit = query, limit
	return suggestuc.Result{Suggestions: []string{query + " vintage"}, OriginalQuery: query}
}

type mockDiagnoser struct {
	url  string
	text string
	err  error
}

func (m *mockDiagnoser) Diagnose(_ context.Context, url string) (extraction.Report, error) {
	m.url = url
	if m.err != nil {
		return extraction.Report{}, m.err
	}
	return extraction.Report{ImageURL: url, Text: m.text}, nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type fixture struct {
	search  *mockSearcher
	suggest *mockSuggester
	diag    *mockDiagnoser
	health  *mockHealth
	handler http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		search:  &mockSearcher{},
		suggest: &mockSuggester{},
		diag:    &mockDiagnoser{},
		health: &mockHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"vision": healthuc.CheckOK},
		}},
	}
	srv := NewServer(f.search, f.suggest, f.diag, f.health, zap.NewNop())
	f.handler = NewRouter(srv, nil, zap.NewNop())
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, http.NoBody)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code errorCode) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["code"]; got != string(code) {
		t.Errorf("expected code %q, got %v", code, got)
	}
}

// --- Tests ---

func TestWelcome(t *testing.T) {
	rec := newFixture().do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode(t, rec)["message"]; got != welcomeMessage {
		t.Errorf("message = %v", got)
	}
}

func TestSearchGet_BindsParameters(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet,
		"/api/search?query=paris&year_min=1900&year_max=1950&location=France&price_min=1.5&price_max=20&sort_by=price_asc&page=2&limit=10",
		"")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req := f.search.last
	if req == nil {
		t.Fatal("search not called")
	}
	if req.Query() != "paris" || req.Page() != 2 || req.Limit() != 10 {
		t.Errorf("unexpected request: query=%q page=%d limit=%d", req.Query(), req.Page(), req.Limit())
	}
	fl := req.Filters()
	if fl == nil {
		t.Fatal("expected filters")
	}
	if v, ok := fl.YearMin(); !ok || v != 1900 {
		t.Errorf("year_min = %v %v", v, ok)
	}
	if v, ok := fl.PriceMax(); !ok || v != 20 {
		t.Errorf("price_max = %v %v", v, ok)
	}
	if fl.Location() != "France" || fl.SortBy() != filter.PriceAsc {
		t.Errorf("location=%q sort=%q", fl.Location(), fl.SortBy())
	}

	body := decode(t, rec)
	applied, ok := body["filters_applied"].(map[string]any)
	if !ok {
		t.Fatalf("filters_applied missing: %v", body["filters_applied"])
	}
	if applied["sort_by"] != "price_asc" || applied["year_max"] != float64(1950) {
		t.Errorf("unexpected filters_applied %v", applied)
	}
	if body["enhanced_query"] != "paris postcard" {
		t.Errorf("enhanced_query = %v", body["enhanced_query"])
	}
}

func TestSearchGet_AlwaysHasFilters(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/search?query=rome", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.search.last.Filters() == nil {
		t.Fatal("GET search should always carry a filter set")
	}
	if f.search.last.Page() != request.DefaultPage || f.search.last.Limit() != request.DefaultLimit {
		t.Errorf("defaults not applied: page=%d limit=%d", f.search.last.Page(), f.search.last.Limit())
	}
	applied := decode(t, rec)["filters_applied"].(map[string]any)
	if applied["sort_by"] != "relevance" {
		t.Errorf("sort_by = %v", applied["sort_by"])
	}
}

func TestSearchGet_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		target string
		code   errorCode
	}{
		{"missing query", "/api/search", codeBadRequest},
		{"non-numeric year", "/api/search?query=x&year_min=old", codeBadRequest},
		{"non-numeric page", "/api/search?query=x&page=two", codeBadRequest},
		{"blank query", "/api/search?query=", codeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			assertError(t, f.do(t, http.MethodGet, tt.target, ""), http.StatusBadRequest, tt.code)
			if f.search.last != nil {
				t.Error("search should not run")
			}
		})
	}
}

func TestSearchGet_BestEffortFilters(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/search?query=paris&sort_by=cheapest&price_min=-1&price_max=-5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	fl := f.search.last.Filters()
	if fl == nil {
		t.Fatal("expected filters")
	}
	if fl.SortBy() != filter.Relevance {
		t.Errorf("unknown sort_by should fall back to relevance, got %q", fl.SortBy())
	}
	if v, ok := fl.PriceMin(); !ok || v != -1 {
		t.Errorf("price_min = %v %v, want -1", v, ok)
	}
	if v, ok := fl.PriceMax(); !ok || v != -5 {
		t.Errorf("price_max = %v %v, want -5", v, ok)
	}
	applied := decode(t, rec)["filters_applied"].(map[string]any)
	if applied["sort_by"] != "relevance" {
		t.Errorf("filters_applied.sort_by = %v", applied["sort_by"])
	}
}

func TestSearchPost_UnknownSortFallsBack(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/search",
		`{"query":"x","filters":{"sort_by":"cheapest","location":"`+strings.Repeat("a", 300)+`"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	fl := f.search.last.Filters()
	if fl == nil || fl.SortBy() != filter.Relevance {
		t.Fatalf("unexpected filters %+v", fl)
	}
	if n := len(fl.Location()); n != filter.MaxLocationLength {
		t.Errorf("location length = %d, want %d", n, filter.MaxLocationLength)
	}
}

func TestSearchPost_WithoutFilters(t *testing.T) {
	f := newFixture()
	l := &listing.Listing{Source: "eBay", Title: "Old mill", Price: 4, Currency: "USD", URL: "https://x.test/1"}
	l.SetImageText(listing.WithText("Greetings from the mill"))
	f.search.listings = []*listing.Listing{l, {Source: "Etsy", Title: "Harbor"}}

	rec := f.do(t, http.MethodPost, "/api/search", `{"query":"mill","page":3,"limit":500}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.search.last.Filters() != nil {
		t.Error("POST without filters should pass nil filters")
	}
	if f.search.last.Limit() != request.MaxLimit {
		t.Errorf("limit should clamp to %d, got %d", request.MaxLimit, f.search.last.Limit())
	}

	body := decode(t, rec)
	if body["filters_applied"] != nil {
		t.Errorf("filters_applied = %v, want null", body["filters_applied"])
	}
	if body["total"] != float64(5) || body["page"] != float64(3) {
		t.Errorf("total=%v page=%v", body["total"], body["page"])
	}
	results := body["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first := results[0].(map[string]any)
	if first["image_text"] != "Greetings from the mill" || first["link"] != "https://x.test/1" {
		t.Errorf("unexpected first result %v", first)
	}
	if second := results[1].(map[string]any); second["image_text"] != nil {
		t.Errorf("pending image text should be omitted, got %v", second["image_text"])
	}
}

func TestSearchPost_WithFilters(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/search",
		`{"query":"boston","filters":{"year_min":1920,"sort_by":"newest"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	fl := f.search.last.Filters()
	if fl == nil || fl.SortBy() != filter.Newest {
		t.Fatalf("unexpected filters %+v", fl)
	}
	if v, ok := fl.YearMin(); !ok || v != 1920 {
		t.Errorf("year_min = %v %v", v, ok)
	}
}

func TestSearchPost_EmptyResultsIsArray(t *testing.T) {
	rec := newFixture().do(t, http.MethodPost, "/api/search", `{"query":"nothing"}`)
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestSearchPost_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		code errorCode
	}{
		{"malformed", `{"query":`, codeBadRequest},
		{"wrong type", `{"query":"x","page":"one"}`, codeBadRequest},
		{"missing query", `{"limit":5}`, codeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertError(t, newFixture().do(t, http.MethodPost, "/api/search", tt.body), http.StatusBadRequest, tt.code)
		})
	}
}

func TestSuggest(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/suggest?query=lond&limit=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.suggest.query != "lond" || f.suggest.limit != 3 {
		t.Errorf("suggester got %q/%d", f.suggest.query, f.suggest.limit)
	}
	body := decode(t, rec)
	if body["original_query"] != "lond" {
		t.Errorf("original_query = %v", body["original_query"])
	}
	if s := body["suggestions"].([]any); len(s) != 1 || s[0] != "lond vintage" {
		t.Errorf("suggestions = %v", s)
	}
}

func TestSuggest_InvalidParameters(t *testing.T) {
	f := newFixture()
	assertError(t, f.do(t, http.MethodGet, "/api/suggest", ""), http.StatusBadRequest, codeBadRequest)
	assertError(t, f.do(t, http.MethodGet, "/api/suggest?query=ab&limit=many", ""), http.StatusBadRequest, codeBadRequest)
}

func TestTestExtraction_FixedImage(t *testing.T) {
	f := newFixture()
	f.diag.text = "Hôtel de Ville"
	rec := f.do(t, http.MethodGet, "/api/test-extraction", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.diag.url != TestImageURL {
		t.Errorf("diagnosed %q", f.diag.url)
	}
	body := decode(t, rec)
	if body["status"] != "success" || body["extracted_text"] != "Hôtel de Ville" {
		t.Errorf("unexpected body %v", body)
	}
	if body["text_length"] != float64(14) {
		t.Errorf("text_length should count characters, got %v", body["text_length"])
	}
}

func TestTestCustomExtraction_NoText(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/test-custom-extraction", `{"image_url":"https://img.test/a.jpg"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["extracted_text"] != noTextMessage || body["text_length"] != float64(0) {
		t.Errorf("unexpected body %v", body)
	}
	if body["image_url"] != "https://img.test/a.jpg" {
		t.Errorf("image_url = %v", body["image_url"])
	}
}

func TestTestCustomExtraction_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
		code   errorCode
	}{
		{"missing url", `{}`, nil, http.StatusBadRequest, codeValidationFailed},
		{"not a url", `{"image_url":"postcard"}`, nil, http.StatusBadRequest, codeValidationFailed},
		{"download failed", `{"image_url":"https://img.test/a.jpg"}`,
			fmt.Errorf("%w: status 404", domain.ErrImageDownload), http.StatusBadGateway, codeImageDownload},
		{"placeholder", `{"image_url":"https://placehold.co/1.jpg"}`,
			domain.ErrPlaceholderImage, http.StatusBadRequest, codePlaceholderImage},
		{"no api key", `{"image_url":"https://img.test/a.jpg"}`,
			fmt.Errorf("vision model: %w", domain.ErrNotConfigured), http.StatusServiceUnavailable, codeNotConfigured},
		{"unexpected", `{"image_url":"https://img.test/a.jpg"}`,
			fmt.Errorf("disk on fire"), http.StatusInternalServerError, codeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.diag.err = tt.err
			rec := f.do(t, http.MethodPost, "/api/test-custom-extraction", tt.body)
			assertError(t, rec, tt.status, tt.code)
			if strings.Contains(rec.Body.String(), "disk on fire") || strings.Contains(rec.Body.String(), "status 404") {
				t.Error("internal error details leaked")
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "ok" || body["version"] == "" {
		t.Errorf("unexpected body %v", body)
	}

	f.health.report = healthuc.Report{
		Status: healthuc.Degraded,
		Checks: map[string]healthuc.CheckResult{"cache": healthuc.CheckError},
	}
	rec = f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if checks := decode(t, rec)["checks"].(map[string]any); checks["cache"] != "error" {
		t.Errorf("checks = %v", checks)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newFixture().do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("expected Go runtime metrics in output")
	}
}

func TestRouter_PanicReturnsJSON(t *testing.T) {
	f := newFixture()
	f.search.panics = true
	assertError(t, f.do(t, http.MethodGet, "/api/search?query=x", ""), http.StatusInternalServerError, codeInternalError)
}

func TestRouter_RequestIDHeader(t *testing.T) {
	rec := newFixture().do(t, http.MethodGet, "/", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	f := newFixture()
	assertError(t, f.do(t, http.MethodGet, "/api/nope", ""), http.StatusNotFound, codeNotFound)
	assertError(t, f.do(t, http.MethodDelete, "/api/search", ""), http.StatusMethodNotAllowed, codeMethodNotAllowed)
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodOptions, "/api/search", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Errorf("expected CORS allow-origin header, got none (status %d)", rec.Code)
	}
}
