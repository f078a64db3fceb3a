package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/config"
	dbRedis "github.com/cardscout/postcards/internal/db/redis"
	logpkg "github.com/cardscout/postcards/internal/logger"
	"github.com/cardscout/postcards/internal/metrics"
	"github.com/cardscout/postcards/internal/repository/textcache"
	chiTransport "github.com/cardscout/postcards/internal/transport/chi"
	"github.com/cardscout/postcards/internal/transport/imagefetch"
	"github.com/cardscout/postcards/internal/transport/marketplace"
	"github.com/cardscout/postcards/internal/transport/marketplace/ebay"
	"github.com/cardscout/postcards/internal/transport/marketplace/etsy"
	"github.com/cardscout/postcards/internal/transport/marketplace/hippostcard"
	openaiClient "github.com/cardscout/postcards/internal/transport/openai"
	"github.com/cardscout/postcards/internal/usecase/extraction"
	healthuc "github.com/cardscout/postcards/internal/usecase/health"
	searchuc "github.com/cardscout/postcards/internal/usecase/search"
	suggestuc "github.com/cardscout/postcards/internal/usecase/suggest"
	"github.com/cardscout/postcards/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting postcards API server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	metrics.RegisterPipelineMetrics()

	// Image text cache: in-process, or shared through Redis
	var (
		cache     extraction.Cache
		processed searchuc.ProcessedSet
		cachePing healthuc.CachePinger
	)
	switch cfg.Cache.Driver {
	case config.CacheDriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		readyCtx := context.Background()
		if err := store.WaitForReady(readyCtx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to cache store", zap.Strings("addrs", cfg.Cache.Addrs))
		cachePing = store
		cache = textcache.NewKV(store, logger).WithTTL(cfg.Cache.TTL())
		processed = textcache.NewSharedProcessedSet(store, cfg.Cache.TTL(), logger)
	default:
		cache = textcache.NewMemory()
		processed = textcache.NewProcessedSet()
	}

	// Model provider. Pass nil interfaces (not typed nil pointers) when disabled.
	var (
		vision     extraction.VisionModel
		visionPing healthuc.VisionChecker
		enhancer   searchuc.QueryEnhancer
		translator searchuc.Translator
		suggester  suggestuc.Suggester
	)
	if cfg.OpenAI.APIKey != "" {
		client := openaiClient.NewClient(&openaiClient.Config{
			APIKey:    cfg.OpenAI.APIKey,
			BaseURL:   cfg.OpenAI.BaseURL,
			TextModel: cfg.OpenAI.TextModel,
			Logger:    logger,
		})
		vision, visionPing, enhancer, suggester = client, client, client, client
		if cfg.OpenAI.TranslateQueries {
			translator = client
		}
	} else {
		logger.Warn("OpenAI API key not set: image text extraction, query enhancement and model suggestions are disabled")
	}

	fetcher := imagefetch.New(imagefetch.Config{
		Timeout:  cfg.Extraction.DownloadTimeout(),
		MaxBytes: cfg.Extraction.MaxImageBytes,
	})
	extractionSvc := extraction.New(cache, fetcher, vision, extraction.Options{
		PrimaryModel:     cfg.OpenAI.VisionModel,
		FallbackModel:    cfg.OpenAI.FallbackVisionModel,
		MaxAttempts:      cfg.Extraction.MaxAttempts,
		InitialBackoff:   cfg.Extraction.InitialBackoff(),
		PlaceholderHosts: cfg.Extraction.PlaceholderHosts,
	}, logger)

	markets := buildMarketplaces(cfg.Marketplaces, logger)

	scheduler := searchuc.NewScheduler(extractionSvc, processed, searchuc.Limits{
		Concurrency:           cfg.Enrichment.Concurrency,
		ImmediateBatch:        cfg.Enrichment.ImmediateBatch,
		BackgroundMaxListings: cfg.Enrichment.BackgroundMaxListings,
		BatchTimeout:          cfg.Enrichment.BatchTimeout(),
		Pacing:                cfg.Enrichment.Pacing(),
		JobBudget:             cfg.Enrichment.JobBudget(),
	}, logger)
	searchSvc := searchuc.New(markets, enhancer, translator, scheduler, searchuc.Options{
		TranslateQueries:    cfg.OpenAI.TranslateQueries,
		PrioritizeImageText: cfg.Enrichment.PrioritizeImageText,
	})
	suggestSvc := suggestuc.New(suggester, logger)
	healthSvc := healthuc.New(cachePing, visionPing)

	server := chiTransport.NewServer(searchSvc, suggestSvc, extractionSvc, healthSvc, logger)
	router := chiTransport.NewRouter(server, cfg.HTTP.CORSOrigins, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Cancel background enrichment still in flight.
	searchSvc.Close()

	logger.Info("Server stopped gracefully")
}

// buildMarketplaces creates the enabled marketplace clients in result order.
func buildMarketplaces(cfg config.MarketplacesConfig, logger *zap.Logger) []searchuc.Marketplace {
	var markets []searchuc.Marketplace

	if !cfg.EBay.Disabled {
		c := ebay.New(ebay.Config{
			ClientID:     cfg.EBay.ClientID,
			ClientSecret: cfg.EBay.ClientSecret,
			AuthToken:    cfg.EBay.AuthToken,
			AffiliateID:  cfg.EBay.AffiliateID,
			BaseURL:      cfg.EBay.BaseURL,
			Requester:    requesterOptions(cfg.EBay.ClientConfig, ""),
			Logger:       logger,
		})
		if !c.Enabled() {
			logger.Warn("eBay credentials not set: eBay searches will return no listings")
		}
		markets = append(markets, c)
	}

	if !cfg.Etsy.Disabled {
		c := etsy.New(etsy.Config{
			APIKey:      cfg.Etsy.APIKey,
			AffiliateID: cfg.Etsy.AffiliateID,
			TaxonomyID:  cfg.Etsy.TaxonomyID,
			BaseURL:     cfg.Etsy.BaseURL,
			Requester:   requesterOptions(cfg.Etsy.ClientConfig, ""),
			Logger:      logger,
		})
		if !c.Enabled() {
			logger.Warn("Etsy API key not set: Etsy searches will return no listings")
		}
		markets = append(markets, c)
	}

	if !cfg.HipPostcard.Disabled {
		markets = append(markets, hippostcard.New(hippostcard.Config{
			AffiliateID: cfg.HipPostcard.AffiliateID,
			BaseURL:     cfg.HipPostcard.BaseURL,
			Requester:   requesterOptions(cfg.HipPostcard.ClientConfig, cfg.HipPostcard.UserAgent),
			Logger:      logger,
		}))
	}

	names := make([]string, len(markets))
	for i, m := range markets {
		names[i] = m.Name()
	}
	logger.Info("Marketplaces configured", zap.Strings("marketplaces", names))
	return markets
}

func requesterOptions(c config.ClientConfig, userAgent string) marketplace.Options {
	return marketplace.Options{
		Timeout:   c.Timeout(),
		RateLimit: c.RateLimit,
		UserAgent: userAgent,
	}
}
