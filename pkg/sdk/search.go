package postcards

import (
	"context"
	"fmt"
	"time"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
	"github.com/cardscout/postcards/internal/domain/search/request"
	searchuc "github.com/cardscout/postcards/internal/usecase/search"
)

// SortOrder is the result ordering.
type SortOrder string

// Sort orders.
const (
	SortRelevance SortOrder = SortOrder(filter.Relevance)
	SortPriceAsc  SortOrder = SortOrder(filter.PriceAsc)
	SortPriceDesc SortOrder = SortOrder(filter.PriceDesc)
	SortNewest    SortOrder = SortOrder(filter.Newest)
)

// SearchOption narrows or pages a search.
type SearchOption interface {
	applySearch(*searchConfig)
}

// searchOptionFunc adapts a function to the SearchOption interface.
type searchOptionFunc func(*searchConfig)

func (f searchOptionFunc) applySearch(c *searchConfig) { f(c) }

type searchConfig struct {
	params   filter.Params
	filtered bool
	sortBy   filter.SortBy
	page     int
	limit    int
}

// YearRange keeps listings whose text mentions a year within [from, to].
// A zero bound is open.
func YearRange(from, to int) SearchOption {
	return searchOptionFunc(func(c *searchConfig) {
		c.filtered = true
		if from != 0 {
			c.params.YearMin = &from
		}
		if to != 0 {
			c.params.YearMax = &to
		}
	})
}

// PriceRange keeps listings priced within [lo, hi]. A zero bound is open.
func PriceRange(lo, hi float64) SearchOption {
	return searchOptionFunc(func(c *searchConfig) {
		c.filtered = true
		if lo != 0 {
			c.params.PriceMin = &lo
		}
		if hi != 0 {
			c.params.PriceMax = &hi
		}
	})
}

// Location keeps listings whose location contains loc, ignoring case.
// Listings without a location are kept.
func Location(loc string) SearchOption {
	return searchOptionFunc(func(c *searchConfig) {
		c.filtered = true
		c.params.Location = &loc
	})
}

// SortBy orders the aggregated results. Combined with a filter option the
// results are interleaved per marketplace instead, and the order is only
// passed on to the marketplaces.
func SortBy(order SortOrder) SearchOption {
	return searchOptionFunc(func(c *searchConfig) {
		c.sortBy = filter.SortBy(order)
		c.params.SortBy = c.sortBy
	})
}

// Page selects the marketplace result page (default 1).
func Page(n int) SearchOption {
	return searchOptionFunc(func(c *searchConfig) {
		c.page = n
	})
}

// Limit sets the per-marketplace result count (default 20, max 100).
func Limit(n int) SearchOption {
	return searchOptionFunc(func(c *searchConfig) {
		c.limit = n
	})
}

// Search queries every configured marketplace and returns the aggregated
// listings. Image text of the leading listings is extracted before Search
// returns; the rest keeps arriving in the background until the returned
// result is waited on, canceled or the client is closed.
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) (res *SearchResult, err error) {
	start := time.Now()
	defer func() { c.obs.observeSearch(start, res, err) }()

	sc := &searchConfig{}
	for _, o := range opts {
		o.applySearch(sc)
	}

	var filters *filter.Filters
	if sc.filtered {
		filters = filter.New(sc.params)
	}

	req, err := request.New(query, filters, sc.page, sc.limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req = req.WithSortBy(sc.sortBy)

	r := c.searchSvc.Search(ctx, req)
	return &SearchResult{
		Total:         r.Total,
		Page:          r.Page,
		Limit:         r.Limit,
		EnhancedQuery: r.EnhancedQuery,
		items:         r.Listings,
		job:           r.Job,
	}, nil
}

// SearchResult holds aggregated listings whose image text may still be
// extracted in the background.
type SearchResult struct {
	// Total counts listings returned by all marketplaces before filtering.
	Total         int
	Page          int
	Limit         int
	EnhancedQuery string

	items []*listing.Listing
	job   *searchuc.Job
}

// Listings returns the listings with the image text extracted so far.
// Each call takes a fresh snapshot.
func (r *SearchResult) Listings() []Listing {
	out := make([]Listing, len(r.items))
	for i, l := range r.items {
		out[i] = fromView(l.Snapshot())
	}
	return out
}

// Wait blocks until background extraction finishes or ctx is done.
func (r *SearchResult) Wait(ctx context.Context) error {
	if r.job == nil {
		return nil
	}
	select {
	case <-r.job.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BackgroundImages returns the number of images queued for background extraction.
func (r *SearchResult) BackgroundImages() int {
	if r.job == nil {
		return 0
	}
	return r.job.Tasks()
}

// Cancel stops background extraction. Listings not yet processed stay pending.
func (r *SearchResult) Cancel() {
	if r.job != nil {
		r.job.Cancel()
	}
}
