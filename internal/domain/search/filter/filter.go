package filter

import (
	"strings"
	"unicode/utf8"

	"github.com/cardscout/postcards/internal/domain/listing"
)

// MaxLocationLength bounds the location substring, in runes.
const MaxLocationLength = 200

// Params are the raw, optional filter inputs.
type Params struct {
	YearMin  *int
	YearMax  *int
	Location *string
	PriceMin *float64
	PriceMax *float64
	SortBy   SortBy
}

// Filters is a validated, immutable set of listing predicates plus the sort order.
// A nil *Filters means "no filters supplied", which is distinct from an empty set.
type Filters struct {
	yearMin  *int
	yearMax  *int
	location string
	priceMin *float64
	priceMax *float64
	sortBy   SortBy
}

// New normalizes filter parameters on a best-effort basis: an unknown sort
// order falls back to relevance and the location is trimmed and truncated.
// Inverted ranges are kept as given and simply match nothing.
func New(p Params) *Filters {
	f := &Filters{
		yearMin:  copyInt(p.YearMin),
		yearMax:  copyInt(p.YearMax),
		priceMin: copyFloat(p.PriceMin),
		priceMax: copyFloat(p.PriceMax),
		sortBy:   p.SortBy,
	}
	if !f.sortBy.IsValid() {
		f.sortBy = Relevance
	}
	if p.Location != nil {
		f.location = strings.TrimSpace(*p.Location)
		if utf8.RuneCountInString(f.location) > MaxLocationLength {
			f.location = string([]rune(f.location)[:MaxLocationLength])
		}
	}
	return f
}

// YearMin returns the lower year bound, if set.
func (f *Filters) YearMin() (int, bool) { return derefInt(f.yearMin) }

// YearMax returns the upper year bound, if set.
func (f *Filters) YearMax() (int, bool) { return derefInt(f.yearMax) }

// Location returns the location substring ("" when unset).
func (f *Filters) Location() string { return f.location }

// PriceMin returns the lower price bound, if set.
func (f *Filters) PriceMin() (float64, bool) { return derefFloat(f.priceMin) }

// PriceMax returns the upper price bound, if set.
func (f *Filters) PriceMax() (float64, bool) { return derefFloat(f.priceMax) }

// SortBy returns the sort order. A nil receiver yields Relevance.
func (f *Filters) SortBy() SortBy {
	if f == nil {
		return Relevance
	}
	return f.sortBy
}

// Matches reports whether l passes every supplied predicate.
// Listings without a parseable year bypass the year bounds; listings without a
// location bypass the location filter.
func (f *Filters) Matches(l *listing.Listing) bool {
	if f.yearMin != nil || f.yearMax != nil {
		if year, ok := l.FilterYear(); ok {
			if f.yearMin != nil && year < *f.yearMin {
				return false
			}
			if f.yearMax != nil && year > *f.yearMax {
				return false
			}
		}
	}

	if f.location != "" && l.Location != "" {
		if !strings.Contains(strings.ToLower(l.Location), strings.ToLower(f.location)) {
			return false
		}
	}

	if f.priceMin != nil && l.Price < *f.priceMin {
		return false
	}
	if f.priceMax != nil && l.Price > *f.priceMax {
		return false
	}
	return true
}

// Applied is the echo of the filters a search ran with.
type Applied struct {
	YearMin  *int     `json:"year_min"`
	YearMax  *int     `json:"year_max"`
	Location *string  `json:"location"`
	PriceMin *float64 `json:"price_min"`
	PriceMax *float64 `json:"price_max"`
	SortBy   SortBy   `json:"sort_by"`
}

// Applied returns the serializable echo of f. A nil receiver yields nil.
func (f *Filters) Applied() *Applied {
	if f == nil {
		return nil
	}
	a := &Applied{
		YearMin:  copyInt(f.yearMin),
		YearMax:  copyInt(f.yearMax),
		PriceMin: copyFloat(f.priceMin),
		PriceMax: copyFloat(f.priceMax),
		SortBy:   f.sortBy,
	}
	if f.location != "" {
		loc := f.location
		a.Location = &loc
	}
	return a
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func derefInt(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func derefFloat(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
