package filter

// SortBy is the result ordering.
type SortBy string

// Sort order constants.
const (
	// Relevance keeps each marketplace's own ranking.
	Relevance SortBy = "relevance"
	PriceAsc  SortBy = "price_asc"
	PriceDesc SortBy = "price_desc"
	// Newest orders by the listing's four-digit year, most recent first.
	Newest SortBy = "newest"
)

// IsValid checks if the sort order is one of the supported values.
func (s SortBy) IsValid() bool {
	return s == Relevance || s == PriceAsc || s == PriceDesc || s == Newest
}
