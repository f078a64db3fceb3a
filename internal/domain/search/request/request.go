package request

import (
	"fmt"
	"strings"

	"github.com/cardscout/postcards/internal/domain/search/filter"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 512
	DefaultPage    = 1
	DefaultLimit   = 20
	MaxLimit       = 100
)

// Request is a validated marketplace search.
type Request struct {
	query   string
	filters *filter.Filters
	sortBy  filter.SortBy
	page    int
	limit   int
}

// New validates and normalizes search parameters.
// Defaults: page=1, limit=20. Limit is clamped to MaxLimit. filters may be nil.
func New(query string, filters *filter.Filters, page, limit int) (Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Request{}, fmt.Errorf("query is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("query too long (max %d chars)", MaxQueryLength)
	}
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Request{
		query:   query,
		filters: filters,
		page:    page,
		limit:   limit,
	}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Filters returns the filters, or nil when none were supplied.
func (r *Request) Filters() *filter.Filters { return r.filters }

// WithSortBy returns a copy of r ordered by s regardless of its filters.
// An unknown order leaves r unchanged.
func (r Request) WithSortBy(s filter.SortBy) Request {
	if s.IsValid() {
		r.sortBy = s
	}
	return r
}

// SortBy returns the requested sort order. Without an explicit order it is
// taken from the filters (relevance without filters).
func (r *Request) SortBy() filter.SortBy {
	if r.sortBy != "" {
		return r.sortBy
	}
	return r.filters.SortBy()
}

// Page returns the 1-based page number.
func (r *Request) Page() int { return r.page }

// Limit returns the per-marketplace page size.
func (r *Request) Limit() int { return r.limit }
