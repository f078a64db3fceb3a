// Package etsy searches postcard listings through the Etsy Open API v3.
package etsy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
	"github.com/cardscout/postcards/internal/transport/marketplace"
)

const (
	// Source labels Etsy listings.
	Source = "Etsy"
	// DefaultBaseURL is the Open API host.
	DefaultBaseURL = "https://openapi.etsy.com"

	searchPath         = "/v3/application/listings/active"
	listingURLPrefix   = "https://www.etsy.com/listing/"
	maxDescriptionLen  = 200
	yearScanLen        = 100
	defaultCentDivisor = 100
)

// Config holds Etsy credentials and endpoints.
type Config struct {
	APIKey      string
	AffiliateID string
	// TaxonomyID narrows results to one Etsy taxonomy node when set.
	TaxonomyID string
	BaseURL    string
	Requester  marketplace.Options
	Logger     *zap.Logger
}

// Client implements the search marketplace contract for Etsy.
type Client struct {
	cfg     Config
	baseURL string
	req     *marketplace.Requester
	logger  *zap.Logger
}

// New creates an Etsy client.
func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		baseURL: base,
		req:     marketplace.NewRequester(Source, cfg.Requester),
		logger:  log.With(zap.String("source", Source)),
	}
}

// Name returns the marketplace label.
func (c *Client) Name() string { return Source }

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.cfg.APIKey != "" }

// Search returns postcards matching query. Failures yield an empty list.
func (c *Client) Search(ctx context.Context, query string, filters *filter.Filters, page, limit int) []*listing.Listing {
	if !c.Enabled() {
		c.logger.Debug("Etsy API key not configured")
		return nil
	}

	body, err := c.req.Get(ctx, c.searchURL(query, filters, page, limit), http.Header{
		"X-Api-Key": {c.cfg.APIKey},
		"Accept":    {"application/json"},
	})
	if err != nil {
		c.logger.Warn("Etsy search failed", zap.Error(err), zap.String("body", marketplace.Snippet(body)))
		return nil
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("Etsy search payload parse failed", zap.Error(err))
		return nil
	}

	out := make([]*listing.Listing, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, c.toListing(r))
	}
	c.req.Returned(len(out))
	return out
}

func (c *Client) searchURL(query string, filters *filter.Filters, page, limit int) string {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("keywords", query)
	if c.cfg.TaxonomyID != "" {
		q.Set("taxonomy_id", c.cfg.TaxonomyID)
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa((page-1)*limit))
	q.Set("includes", "Images,Shop")

	if filters != nil {
		if v, ok := filters.PriceMin(); ok {
			q.Set("min_price", strconv.FormatFloat(v, 'f', -1, 64))
		}
		if v, ok := filters.PriceMax(); ok {
			q.Set("max_price", strconv.FormatFloat(v, 'f', -1, 64))
		}
		if on, order := sortParams(filters.SortBy()); on != "" {
			q.Set("sort_on", on)
			q.Set("sort_order", order)
		}
	}
	return c.baseURL + searchPath + "?" + q.Encode()
}

func sortParams(s filter.SortBy) (on, order string) {
	switch s {
	case filter.PriceAsc:
		return "price", "asc"
	case filter.PriceDesc:
		return "price", "desc"
	case filter.Newest:
		return "created", "desc"
	default:
		return "", ""
	}
}

func (c *Client) toListing(r result) *listing.Listing {
	currency := r.Price.CurrencyCode
	if currency == "" {
		currency = "USD"
	}
	var imageURL string
	if len(r.Images) > 0 {
		imageURL = r.Images[0].URL570xN
	}

	link := r.URL
	if r.ListingID != 0 {
		link = listingURLPrefix + strconv.FormatInt(r.ListingID, 10)
	}

	l := &listing.Listing{
		Source:      Source,
		Title:       r.Title,
		ImageURL:    imageURL,
		Price:       r.Price.value(),
		Currency:    currency,
		URL:         link,
		Description: truncate(r.Description, maxDescriptionLen),
		Date:        listing.DetectYear(r.Title + " " + prefix(r.Description, yearScanLen)),
		Location:    listing.DetectLocation(r.Title),
	}
	if c.cfg.AffiliateID != "" && link != "" {
		l.AffiliateURL = link + "?utm_source=affiliate&utm_medium=api&utm_campaign=" + url.QueryEscape(c.cfg.AffiliateID)
	}
	return l
}

// prefix returns at most n runes of s.
func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// truncate shortens s to n runes followed by "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return prefix(s, n) + "..."
}
