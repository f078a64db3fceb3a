package search

import (
	"strings"

	"github.com/cardscout/postcards/internal/domain/listing"
)

// minTermLength excludes short words ("of", "in") from image text matching.
const minTermLength = 3

// PrioritizeByImageText moves listings whose extracted primary image text
// contains a query term to the front. Relative order within both groups is kept.
func PrioritizeByImageText(items []*listing.Listing, query string) []*listing.Listing {
	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= minTermLength {
			terms = append(terms, strings.ToLower(w))
		}
	}
	if len(terms) == 0 {
		return items
	}

	matches := make([]*listing.Listing, 0, len(items))
	var rest []*listing.Listing
	for _, l := range items {
		if imageTextMatches(l, terms) {
			matches = append(matches, l)
		} else {
			rest = append(rest, l)
		}
	}
	return append(matches, rest...)
}

func imageTextMatches(l *listing.Listing, terms []string) bool {
	e := l.ImageText()
	if !e.HasText() {
		return false
	}
	text := strings.ToLower(e.Text())
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
