package search

import (
	"cmp"
	"slices"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
)

// Aggregate merges per-source listing lists into one ordered result.
//
// Without filters the flat union is sorted by sortBy and returned as is:
// no interleaving and no deduplication. With filters (even an empty set) each
// source list is filtered on its own, the lists are interleaved round-robin by
// position, and repeated (title, source) pairs are dropped, first one wins.
// The filtered path keeps each source's own order.
func Aggregate(sources [][]*listing.Listing, filters *filter.Filters, sortBy filter.SortBy) []*listing.Listing {
	if filters == nil {
		var all []*listing.Listing
		for _, src := range sources {
			all = append(all, src...)
		}
		sortListings(all, sortBy)
		return all
	}

	filtered := make([][]*listing.Listing, len(sources))
	longest := 0
	for i, src := range sources {
		for _, l := range src {
			if filters.Matches(l) {
				filtered[i] = append(filtered[i], l)
			}
		}
		longest = max(longest, len(filtered[i]))
	}

	type key struct{ title, source string }
	seen := make(map[key]struct{})
	var out []*listing.Listing
	for pos := 0; pos < longest; pos++ {
		for _, src := range filtered {
			if pos >= len(src) {
				continue
			}
			l := src[pos]
			k := key{l.Title, l.Source}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// sortListings orders items in place. Ties keep their original relative order.
func sortListings(items []*listing.Listing, sortBy filter.SortBy) {
	switch sortBy {
	case filter.PriceAsc:
		slices.SortStableFunc(items, func(a, b *listing.Listing) int {
			return cmp.Compare(a.Price, b.Price)
		})
	case filter.PriceDesc:
		slices.SortStableFunc(items, func(a, b *listing.Listing) int {
			return cmp.Compare(b.Price, a.Price)
		})
	case filter.Newest:
		slices.SortStableFunc(items, func(a, b *listing.Listing) int {
			return cmp.Compare(b.SortYear(), a.SortYear())
		})
	}
}
