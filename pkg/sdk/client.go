package postcards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/db"
	dbRedis "github.com/cardscout/postcards/internal/db/redis"
	"github.com/cardscout/postcards/internal/domain/search/request"
	"github.com/cardscout/postcards/internal/repository/textcache"
	"github.com/cardscout/postcards/internal/transport/imagefetch"
	"github.com/cardscout/postcards/internal/transport/marketplace/ebay"
	"github.com/cardscout/postcards/internal/transport/marketplace/etsy"
	"github.com/cardscout/postcards/internal/transport/marketplace/hippostcard"
	openaiClient "github.com/cardscout/postcards/internal/transport/openai"
	"github.com/cardscout/postcards/internal/usecase/extraction"
	healthuc "github.com/cardscout/postcards/internal/usecase/health"
	searchuc "github.com/cardscout/postcards/internal/usecase/search"
	suggestuc "github.com/cardscout/postcards/internal/usecase/suggest"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces, swapped in tests.
type searchUseCase interface {
	Search(ctx context.Context, req request.Request) searchuc.Result
	Close()
}

type suggestUseCase interface {
	Suggest(ctx context.Context, query string, limit int) suggestuc.Result
}

// Client is the postcards SDK entry point.
type Client struct {
	store      db.Store
	searchSvc  searchUseCase
	suggestSvc suggestUseCase
	healthSvc  healthUseCase
	obs        *observer
}

// New creates a Client searching the configured marketplaces. With
// WithRedisCache the provided context bounds the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.ebay == nil && cfg.etsy == nil && cfg.hippostcard == nil && len(cfg.markets) == 0 {
		return nil, errors.New("postcards: no marketplace configured (use WithEBay, WithEtsy or WithHipPostcard)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if len(cfg.redisAddrs) > 0 {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.redisAddrs,
			Password: cfg.redisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("postcards: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("postcards: cache not ready: %w", err)
		}
		store = s
	}

	return wireClient(store, cfg, obs), nil
}

func wireClient(store db.Store, cfg *clientConfig, obs *observer) *Client {
	log := zap.NewNop()

	var (
		cache     extraction.Cache      = textcache.NewMemory()
		processed searchuc.ProcessedSet = textcache.NewProcessedSet()
		cachePing healthuc.CachePinger
	)
	if store != nil {
		cache = textcache.NewKV(store, log).WithTTL(cfg.cacheTTL)
		processed = textcache.NewSharedProcessedSet(store, cfg.cacheTTL, log)
		cachePing = store
	}

	// Nil interfaces, not typed nil pointers, when a provider is absent.
	var (
		vision     extraction.VisionModel
		visionPing healthuc.VisionChecker
		enhancer   searchuc.QueryEnhancer
		translator searchuc.Translator
		suggester  suggestuc.Suggester
	)
	if cfg.openAIKey != "" {
		client := openaiClient.NewClient(&openaiClient.Config{
			APIKey:  cfg.openAIKey,
			BaseURL: cfg.openAIBaseURL,
			Logger:  log,
		})
		vision, visionPing, enhancer, suggester = client, client, client, client
		if cfg.translate {
			translator = client
		}
	}
	if cfg.vision != nil {
		vision = &visionAdapter{inner: cfg.vision}
	}

	extractor := extraction.New(cache, imagefetch.New(imagefetch.Config{}), vision, extraction.Options{}, log)
	scheduler := searchuc.NewScheduler(extractor, processed, cfg.limits, log)

	markets := cfg.markets
	if len(markets) == 0 {
		markets = buildMarketplaces(cfg, log)
	}

	return &Client{
		store: store,
		searchSvc: searchuc.New(markets, enhancer, translator, scheduler, searchuc.Options{
			TranslateQueries:    cfg.translate,
			PrioritizeImageText: cfg.prioritize,
		}),
		suggestSvc: suggestuc.New(suggester, log),
		healthSvc:  healthuc.New(cachePing, visionPing),
		obs:        obs,
	}
}

func buildMarketplaces(cfg *clientConfig, log *zap.Logger) []searchuc.Marketplace {
	var markets []searchuc.Marketplace
	if e := cfg.ebay; e != nil {
		markets = append(markets, ebay.New(ebay.Config{
			ClientID:     e.clientID,
			ClientSecret: e.clientSecret,
			AuthToken:    e.authToken,
			AffiliateID:  e.affiliateID,
			Logger:       log,
		}))
	}
	if e := cfg.etsy; e != nil {
		markets = append(markets, etsy.New(etsy.Config{
			APIKey:      e.apiKey,
			AffiliateID: e.affiliateID,
			TaxonomyID:  e.taxonomyID,
			Logger:      log,
		}))
	}
	if cfg.hippostcard != nil {
		markets = append(markets, hippostcard.New(hippostcard.Config{
			AffiliateID: *cfg.hippostcard,
			Logger:      log,
		}))
	}
	return markets
}

// Close cancels background image extraction and releases all resources.
func (c *Client) Close() {
	if c.searchSvc != nil {
		c.searchSvc.Close()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks cache connectivity. Without WithRedisCache it always succeeds.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if c.store == nil {
		return nil
	}
	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Suggest returns up to limit query suggestions. Without a model provider the
// suggestions are templated from the query.
func (c *Client) Suggest(ctx context.Context, query string, limit int) []string {
	start := time.Now()
	res := c.suggestSvc.Suggest(ctx, query, limit)
	c.obs.observe("suggest", start, nil)
	return res.Suggestions
}
