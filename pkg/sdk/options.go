package postcards

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	searchuc "github.com/cardscout/postcards/internal/usecase/search"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type ebayCredentials struct {
	clientID     string
	clientSecret string
	authToken    string
	affiliateID  string
}

type etsyCredentials struct {
	apiKey      string
	affiliateID string
	taxonomyID  string
}

type clientConfig struct {
	ebay        *ebayCredentials
	etsy        *etsyCredentials
	hippostcard *string // affiliate id

	// markets replaces the configured marketplaces; set by tests.
	markets []searchuc.Marketplace

	openAIKey     string
	openAIBaseURL string
	vision        Vision
	translate     bool
	prioritize    bool

	redisAddrs    []string
	redisPassword string
	cacheTTL      time.Duration

	limits searchuc.Limits

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithEBay enables eBay through the Browse API using OAuth client credentials.
func WithEBay(clientID, clientSecret, affiliateID string) Option {
	return optionFunc(func(c *clientConfig) {
		if c.ebay == nil {
			c.ebay = &ebayCredentials{}
		}
		c.ebay.clientID = clientID
		c.ebay.clientSecret = clientSecret
		c.ebay.affiliateID = affiliateID
	})
}

// WithEBayToken enables eBay with a pre-issued application token. Combined
// with WithEBay the token is used when token generation fails.
func WithEBayToken(token string) Option {
	return optionFunc(func(c *clientConfig) {
		if c.ebay == nil {
			c.ebay = &ebayCredentials{}
		}
		c.ebay.authToken = token
	})
}

// WithEtsy enables Etsy. taxonomyID may be empty.
func WithEtsy(apiKey, affiliateID, taxonomyID string) Option {
	return optionFunc(func(c *clientConfig) {
		c.etsy = &etsyCredentials{apiKey: apiKey, affiliateID: affiliateID, taxonomyID: taxonomyID}
	})
}

// WithHipPostcard enables the HipPostcard scraper.
func WithHipPostcard(affiliateID string) Option {
	return optionFunc(func(c *clientConfig) {
		c.hippostcard = &affiliateID
	})
}

// WithOpenAI enables image text extraction, query enhancement and model
// suggestions through an OpenAI-compatible API. baseURL may be empty.
func WithOpenAI(apiKey, baseURL string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openAIKey = apiKey
		c.openAIBaseURL = baseURL
	})
}

// WithVision sets a custom vision model for image text extraction.
// It takes precedence over the model configured by WithOpenAI.
func WithVision(v Vision) Option {
	return optionFunc(func(c *clientConfig) {
		c.vision = v
	})
}

// WithQueryTranslation translates non-English queries before searching.
// Requires WithOpenAI.
func WithQueryTranslation() Option {
	return optionFunc(func(c *clientConfig) {
		c.translate = true
	})
}

// WithImageTextPriority moves listings whose image text matches the query
// to the front of the results.
func WithImageTextPriority() Option {
	return optionFunc(func(c *clientConfig) {
		c.prioritize = true
	})
}

// WithRedisCache shares the image text cache through Redis. A zero ttl keeps
// entries until evicted by the server.
func WithRedisCache(addr, password string, ttl time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.redisAddrs = []string{addr}
		c.redisPassword = password
		c.cacheTTL = ttl
	})
}

// WithEnrichment overrides how many image extractions run at once, how many
// listings are enriched before Search returns and how many in the background.
// Zero values keep the defaults.
func WithEnrichment(concurrency, immediateBatch, backgroundListings int) Option {
	return optionFunc(func(c *clientConfig) {
		c.limits.Concurrency = concurrency
		c.limits.ImmediateBatch = immediateBatch
		c.limits.BackgroundMaxListings = backgroundListings
	})
}

// WithLogger sets a structured logger for SDK operations.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics with the given registerer.
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

func withMarketplaces(markets ...searchuc.Marketplace) Option {
	return optionFunc(func(c *clientConfig) {
		c.markets = markets
	})
}
