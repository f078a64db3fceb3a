// Package hippostcard searches postcard listings by scraping HipPostcard
// search result pages.
package hippostcard

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
	"github.com/cardscout/postcards/internal/transport/marketplace"
)

const (
	// Source labels HipPostcard listings.
	Source = "HipPostcard"
	// DefaultBaseURL is the site root used for searches and relative links.
	DefaultBaseURL = "https://www.hippostcard.com"
	// DefaultUserAgent is a desktop browser string; the site rejects bare clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	searchPath    = "/search"
	untitledTitle = "Untitled Postcard"
)

var priceRe = regexp.MustCompile(`(\d+\.\d+)`)

// Config holds HipPostcard endpoints.
type Config struct {
	AffiliateID string
	BaseURL     string
	Requester   marketplace.Options
	Logger      *zap.Logger
}

// Client implements the search marketplace contract for HipPostcard.
type Client struct {
	cfg    Config
	base   *url.URL
	req    *marketplace.Requester
	logger *zap.Logger
}

// New creates a HipPostcard client. An unparsable BaseURL falls back to the default.
func New(cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Host == "" {
		base, _ = url.Parse(DefaultBaseURL)
	}
	if cfg.Requester.UserAgent == "" {
		cfg.Requester.UserAgent = DefaultUserAgent
	}
	return &Client{
		cfg:    cfg,
		base:   base,
		req:    marketplace.NewRequester(Source, cfg.Requester),
		logger: log.With(zap.String("source", Source)),
	}
}

// Name returns the marketplace label.
func (c *Client) Name() string { return Source }

// Search scrapes one result page. Failures yield an empty list.
func (c *Client) Search(ctx context.Context, query string, filters *filter.Filters, page, limit int) []*listing.Listing {
	body, err := c.req.Get(ctx, c.searchURL(query, filters, page), http.Header{
		"Accept": {"text/html"},
	})
	if err != nil {
		c.logger.Warn("HipPostcard search failed", zap.Error(err))
		return nil
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("HipPostcard page parse failed", zap.Error(err))
		return nil
	}

	var out []*listing.Listing
	for _, card := range findAll(doc, hasClass("postcard-item")) {
		if len(out) >= limit {
			break
		}
		out = append(out, c.toListing(card))
	}
	c.req.Returned(len(out))
	return out
}

func (c *Client) searchURL(query string, filters *filter.Filters, page int) string {
	q := url.Values{}
	q.Set("keywords", query)
	q.Set("page", strconv.Itoa(page))
	if filters != nil {
		if v, ok := filters.PriceMin(); ok {
			q.Set("min_price", strconv.FormatFloat(v, 'f', -1, 64))
		}
		if v, ok := filters.PriceMax(); ok {
			q.Set("max_price", strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	u := c.base.JoinPath(searchPath)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) toListing(card *html.Node) *listing.Listing {
	title := untitledTitle
	if n := findFirst(card, hasClass("postcard-title")); n != nil {
		if t := textContent(n); t != "" {
			title = t
		}
	}

	var price float64
	if n := findFirst(card, hasClass("postcard-price")); n != nil {
		text := strings.ReplaceAll(textContent(n), ",", "")
		if m := priceRe.FindString(text); m != "" {
			price, _ = strconv.ParseFloat(m, 64)
		}
	}

	var imageURL string
	if wrap := findFirst(card, hasClass("postcard-image")); wrap != nil {
		if img := findFirst(wrap, isElement("img")); img != nil {
			imageURL = c.resolve(attr(img, "src"))
		}
	}

	var link string
	if a := findFirst(card, func(n *html.Node) bool { return isElement("a")(n) && hasClass("postcard-link")(n) }); a != nil {
		link = c.resolve(attr(a, "href"))
	}

	l := &listing.Listing{
		Source:   Source,
		Title:    title,
		ImageURL: imageURL,
		Price:    price,
		Currency: "USD",
		URL:      link,
		Date:     listing.DetectYear(title),
		Location: listing.DetectLocation(title),
	}
	if c.cfg.AffiliateID != "" && link != "" {
		l.AffiliateURL = link + "?ref=" + url.QueryEscape(c.cfg.AffiliateID)
	}
	return l
}

// resolve turns a relative href into an absolute URL on the site.
func (c *Client) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return c.base.ResolveReference(u).String()
}
