package listing

import (
	"regexp"
	"strconv"
	"sync"
)

var (
	filterYearRe = regexp.MustCompile(`(18|19|20)\d{2}`)
	sortYearRe   = regexp.MustCompile(`^\d{4}$`)
)

// Listing is a normalized marketplace record.
//
// Descriptive fields are set once by the marketplace client. Extraction results
// are written later, possibly by background enrichment after the listing was
// already returned to a caller, so they live behind a mutex.
// A Listing must not be copied after first use.
type Listing struct {
	Source           string
	Title            string
	ImageURL         string
	AdditionalImages []string
	Price            float64
	Currency         string
	URL              string
	Description      string
	Date             string
	Location         string
	AffiliateURL     string

	mu             sync.RWMutex
	imageText      Enrichment
	additionalText []Enrichment
}

// ImageText returns the primary image extraction state.
func (l *Listing) ImageText() Enrichment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.imageText
}

// SetImageText records the primary image extraction outcome.
func (l *Listing) SetImageText(e Enrichment) {
	l.mu.Lock()
	l.imageText = e
	l.mu.Unlock()
}

// AdditionalImageText returns the extraction state of the additional image at index.
func (l *Listing) AdditionalImageText(index int) Enrichment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.additionalText) {
		return Pending()
	}
	return l.additionalText[index]
}

// SetAdditionalImageText records the outcome for the additional image at index,
// growing the slot list with pending entries as needed.
func (l *Listing) SetAdditionalImageText(index int, e Enrichment) {
	if index < 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.additionalText) <= index {
		l.additionalText = append(l.additionalText, Pending())
	}
	l.additionalText[index] = e
}

// FilterYear returns the first 19th-21st century year found anywhere in Date.
func (l *Listing) FilterYear() (int, bool) {
	if l.Date == "" {
		return 0, false
	}
	m := filterYearRe.FindString(l.Date)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}

// SortYear returns Date as a year when it is exactly four digits, otherwise 0.
func (l *Listing) SortYear() int {
	if !sortYearRe.MatchString(l.Date) {
		return 0
	}
	y, _ := strconv.Atoi(l.Date)
	return y
}

// View is the serialized form of a listing at one point in time.
type View struct {
	Source              string       `json:"source"`
	Title               string       `json:"title"`
	ImageURL            string       `json:"image_url"`
	AdditionalImages    []string     `json:"additional_images,omitempty"`
	Price               float64      `json:"price"`
	Currency            string       `json:"currency"`
	Link                string       `json:"link"`
	Description         string       `json:"description,omitempty"`
	Date                string       `json:"date,omitempty"`
	Location            string       `json:"location,omitempty"`
	AffiliateLink       string       `json:"affiliate_link,omitempty"`
	ImageText           *Enrichment  `json:"image_text,omitempty"`
	AdditionalImageText []Enrichment `json:"additional_image_text,omitempty"`
}

// Snapshot captures the listing together with its current extraction state.
func (l *Listing) Snapshot() View {
	l.mu.RLock()
	defer l.mu.RUnlock()

	v := View{
		Source:           l.Source,
		Title:            l.Title,
		ImageURL:         l.ImageURL,
		AdditionalImages: l.AdditionalImages,
		Price:            l.Price,
		Currency:         l.Currency,
		Link:             l.URL,
		Description:      l.Description,
		Date:             l.Date,
		Location:         l.Location,
		AffiliateLink:    l.AffiliateURL,
	}
	if l.imageText.IsProcessed() {
		e := l.imageText
		v.ImageText = &e
	}
	if len(l.additionalText) > 0 {
		v.AdditionalImageText = append([]Enrichment(nil), l.additionalText...)
	}
	return v
}

// Snapshots captures a slice of listings in order.
func Snapshots(items []*Listing) []View {
	out := make([]View, len(items))
	for i, l := range items {
		out[i] = l.Snapshot()
	}
	return out
}
