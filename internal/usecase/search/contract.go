package search

import (
	"context"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
)

// Marketplace searches one listing source. Implementations never fail past
// their boundary: any upstream problem yields an empty list.
type Marketplace interface {
	Name() string
	Search(ctx context.Context, query string, filters *filter.Filters, page, limit int) []*listing.Listing
}

// QueryEnhancer rewrites a query for display. Returns the input on failure.
type QueryEnhancer interface {
	Enhance(ctx context.Context, query string) string
}

// Translator detects the query language and translates it to English.
type Translator interface {
	Translate(ctx context.Context, query string) (text, lang string, err error)
}

// Extractor reads the text printed on an image.
type Extractor interface {
	Extract(ctx context.Context, url string) listing.Enrichment
}

// ProcessedSet records image URLs already handed to background enrichment.
type ProcessedSet interface {
	Claim(url string) bool
}
