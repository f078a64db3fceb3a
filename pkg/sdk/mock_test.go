package postcards

import (
	"context"
	"sync"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
	"github.com/cardscout/postcards/internal/domain/search/request"
	healthuc "github.com/cardscout/postcards/internal/usecase/health"
	searchuc "github.com/cardscout/postcards/internal/usecase/search"
	suggestuc "github.com/cardscout/postcards/internal/usecase/suggest"
)

// --- marketplace mock ---

type mockMarketplace struct {
	name  string
	items func() []*listing.Listing

	mu      sync.Mutex
	queries []string
	filters []*filter.Filters
}

func (m *mockMarketplace) Name() string { return m.name }

func (m *mockMarketplace) Search(
	_ context.Context, query string, filters *filter.Filters, _, _ int,
) []*listing.Listing {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.filters = append(m.filters, filters)
	m.mu.Unlock()
	if m.items == nil {
		return nil
	}
	return m.items()
}

// --- vision mock ---

type mockVision struct {
	fn func(ctx context.Context, model string, image []byte, contentType string) (string, error)
}

func (m *mockVision) Transcribe(ctx context.Context, model string, image []byte, contentType string) (string, error) {
	return m.fn(ctx, model, image, contentType)
}

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn func(ctx context.Context, req request.Request) searchuc.Result
	closed   bool
}

func (m *mockSearchUC) Search(ctx context.Context, req request.Request) searchuc.Result {
	return m.searchFn(ctx, req)
}

func (m *mockSearchUC) Close() { m.closed = true }

// --- suggestUseCase mock ---

type mockSuggestUC struct {
	fn func(ctx context.Context, query string, limit int) suggestuc.Result
}

func (m *mockSuggestUC) Suggest(ctx context.Context, query string, limit int) suggestuc.Result {
	return m.fn(ctx, query, limit)
}

// --- healthUseCase mock ---

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(_ context.Context) healthuc.Report { return m.report }
