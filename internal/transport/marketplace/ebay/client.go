// Package ebay searches postcard listings through the eBay Browse API.
package ebay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/domain"
	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
	"github.com/cardscout/postcards/internal/transport/marketplace"
)

const (
	// Source labels eBay listings.
	Source = "eBay"
	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://api.ebay.com"
	// PostcardCategoryID is the eBay category for postcards.
	PostcardCategoryID = "914"

	tokenPath     = "/identity/v1/oauth2/token"
	searchPath    = "/buy/browse/v1/item_summary/search"
	oauthScope    = "https://api.ebay.com/oauth/api_scope"
	marketplaceID = "EBAY_US"
	// tokenSkew renews cached tokens slightly before they expire.
	tokenSkew = time.Minute
)

// Config holds eBay credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	// AuthToken is a pre-issued application token used when credentials are
	// missing or token generation fails.
	AuthToken   string
	AffiliateID string
	BaseURL     string
	Requester   marketplace.Options
	Logger      *zap.Logger
}

// Client implements the search marketplace contract for eBay.
type Client struct {
	cfg     Config
	baseURL string
	req     *marketplace.Requester
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// New creates an eBay client.
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
		now:     time.Now,
	}
}

// Name returns the marketplace label.
func (c *Client) Name() string { return Source }

// Enabled reports whether any credential is configured.
func (c *Client) Enabled() bool {
	return c.cfg.ClientID != "" || cleanToken(c.cfg.AuthToken) != ""
}

// Search returns postcards matching query. Failures yield an empty list.
func (c *Client) Search(ctx context.Context, query string, filters *filter.Filters, page, limit int) []*listing.Listing {
	if !c.Enabled() {
		c.logger.Debug("eBay credentials not configured")
		return nil
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		c.logger.Warn("eBay token unavailable", zap.Error(err))
		return nil
	}

	body, err := c.req.Get(ctx, c.searchURL(query, filters, page, limit), http.Header{
		"Authorization":           {"Bearer " + token},
		"X-Ebay-C-Marketplace-Id": {marketplaceID},
		"Accept":                  {"application/json"},
	})
	if err != nil {
		var status *domain.UpstreamStatusError
		if errors.As(err, &status) && status.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		c.logger.Warn("eBay search failed", zap.Error(err), zap.String("body", marketplace.Snippet(body)))
		return nil
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("eBay search payload parse failed", zap.Error(err))
		return nil
	}
	if len(resp.ItemSummaries) == 0 && len(resp.Warnings) > 0 {
		c.logger.Debug("eBay search returned warnings", zap.Any("warnings", resp.Warnings))
	}

	out := make([]*listing.Listing, 0, len(resp.ItemSummaries))
	for _, it := range resp.ItemSummaries {
		out = append(out, c.toListing(it))
	}
	c.req.Returned(len(out))
	return out
}

func (c *Client) searchURL(query string, filters *filter.Filters, page, limit int) string {
	q := url.Values{}
	q.Set("q", query)
	q.Set("category_ids", PostcardCategoryID)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa((page-1)*limit))

	sort := "bestMatch"
	if filters.SortBy() == filter.Newest {
		sort = "newlyListed"
	}
	q.Set("sort", sort)

	if filters != nil {
		if r := priceRange(filters); r != "" {
			q.Set("filter", "price:"+r+",priceCurrency:USD")
		}
	}
	return c.baseURL + searchPath + "?" + q.Encode()
}

// priceRange renders the Browse API range syntax, e.g. [5..50], [5..] or [..50].
func priceRange(f *filter.Filters) string {
	lo, hasLo := f.PriceMin()
	hi, hasHi := f.PriceMax()
	if !hasLo && !hasHi {
		return ""
	}
	var b strings.Builder
	b.WriteByte('[')
	if hasLo {
		b.WriteString(formatPrice(lo))
	}
	b.WriteString("..")
	if hasHi {
		b.WriteString(formatPrice(hi))
	}
	b.WriteByte(']')
	return b.String()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (c *Client) toListing(it itemSummary) *listing.Listing {
	price, _ := strconv.ParseFloat(it.Price.Value, 64)
	currency := it.Price.Currency
	if currency == "" {
		currency = "USD"
	}

	l := &listing.Listing{
		Source:           Source,
		Title:            it.Title,
		ImageURL:         it.Image.ImageURL,
		AdditionalImages: it.additionalImages(),
		Price:            price,
		Currency:         currency,
		URL:              it.ItemWebURL,
		Description:      it.Subtitle,
		Date:             listing.DetectYear(it.Title + " " + it.Subtitle),
		Location:         it.ItemLocation.label(),
	}
	if l.Location == "" {
		l.Location = listing.DetectLocation(it.Title + " " + it.Subtitle)
	}
	if c.cfg.AffiliateID != "" && l.URL != "" {
		l.AffiliateURL = l.URL + "?mkrid=" + url.QueryEscape(c.cfg.AffiliateID)
	}
	return l
}

// accessToken returns a cached application token, requesting a new one when
// the cached token is missing or about to expire.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry) {
		return c.token, nil
	}

	stored := cleanToken(c.cfg.AuthToken)
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		if stored == "" {
			return "", fmt.Errorf("ebay: %w", domain.ErrNotConfigured)
		}
		return stored, nil
	}

	token, ttl, err := c.requestToken(ctx)
	if err != nil {
		if stored != "" {
			c.logger.Warn("eBay token generation failed, using stored token", zap.Error(err))
			return stored, nil
		}
		return "", err
	}

	c.token = token
	c.expiry = c.now().Add(ttl - tokenSkew)
	c.logger.Debug("eBay application token issued", zap.Duration("expires_in", ttl))
	return token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

func (c *Client) requestToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", oauthScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("ebay: build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.req.Do(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("ebay: token request: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("ebay: token payload parse: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("ebay: token response without access_token: %w", domain.ErrProviderUnavailable)
	}
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= tokenSkew {
		ttl = 2 * tokenSkew
	}
	return tr.AccessToken, ttl, nil
}

// cleanToken strips whitespace and one pair of wrapping quotes left over from
// env files.
func cleanToken(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
