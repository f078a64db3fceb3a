// Package search runs postcard searches across marketplaces and enriches the
// results with image text.
package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/domain/search/filter"
	"github.com/cardscout/postcards/internal/domain/search/request"
	"github.com/cardscout/postcards/internal/logger"
)

// Options toggles optional search steps.
type Options struct {
	// TranslateQueries translates non-English queries before searching.
	TranslateQueries bool
	// PrioritizeImageText moves listings whose image text matches the query first.
	PrioritizeImageText bool
}

// Result is the outcome of one search. Listings keep receiving image text
// from Job after Search returns.
type Result struct {
	Listings      []*listing.Listing
	Total         int
	Page          int
	Limit         int
	EnhancedQuery string
	Filters       *filter.Filters
	Job           *Job
}

// Service orchestrates marketplace searches and image enrichment.
type Service struct {
	markets    []Marketplace
	enhancer   QueryEnhancer
	translator Translator
	scheduler  *Scheduler
	opts       Options
}

// New creates a search service. enhancer and translator can be nil.
func New(
	markets []Marketplace, enhancer QueryEnhancer, translator Translator,
	scheduler *Scheduler, opts Options,
) *Service {
	return &Service{
		markets:    markets,
		enhancer:   enhancer,
		translator: translator,
		scheduler:  scheduler,
		opts:       opts,
	}
}

// Search queries every marketplace, aggregates the listings, extracts text
// from the leading images and schedules the rest in the background.
// A failing marketplace or enhancer never fails the search.
func (s *Service) Search(ctx context.Context, req request.Request) Result {
	log := logger.FromContext(ctx)
	start := time.Now()

	query := s.translate(ctx, req.Query())

	perSource, enhanced := s.gather(ctx, query, req)

	total := 0
	for _, src := range perSource {
		total += len(src)
	}

	items := Aggregate(perSource, req.Filters(), req.SortBy())
	immediate := s.scheduler.EnrichImmediate(ctx, items)
	job := s.scheduler.Schedule(ctx, items)

	if s.opts.PrioritizeImageText {
		items = PrioritizeByImageText(items, query)
	}

	log.Info("Search completed",
		zap.Int("total", total),
		zap.Int("aggregated", len(items)),
		zap.Int("immediate", immediate),
		zap.Int("background_images", job.Tasks()),
		zap.Duration("duration", time.Since(start)),
	)

	return Result{
		Listings:      items,
		Total:         total,
		Page:          req.Page(),
		Limit:         req.Limit(),
		EnhancedQuery: enhanced,
		Filters:       req.Filters(),
		Job:           job,
	}
}

// Close stops background enrichment.
func (s *Service) Close() {
	s.scheduler.Close()
}

// gather calls all marketplaces and the enhancer concurrently. Results keep
// marketplace order.
func (s *Service) gather(ctx context.Context, query string, req request.Request) ([][]*listing.Listing, string) {
	log := logger.FromContext(ctx)
	perSource := make([][]*listing.Listing, len(s.markets))
	enhanced := query

	// Marketplace failures are absorbed in safeSearch.
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, m := range s.markets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items := safeSearch(ctx, m, query, req)
			log.Debug("Marketplace returned", zap.String("source", m.Name()), zap.Int("count", len(items)))
			mu.Lock()
			perSource[i] = items
			mu.Unlock()
		}()
	}
	if s.enhancer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := s.enhancer.Enhance(ctx, query)
			mu.Lock()
			enhanced = e
			mu.Unlock()
		}()
	}
	wg.Wait()

	return perSource, enhanced
}

// safeSearch turns a panicking marketplace into an empty result.
func safeSearch(ctx context.Context, m Marketplace, query string, req request.Request) (items []*listing.Listing) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.FromContext(ctx).Error("Marketplace panicked",
				zap.String("source", m.Name()),
				zap.String("panic", fmt.Sprint(rec)),
			)
			items = nil
		}
	}()
	return m.Search(ctx, query, req.Filters(), req.Page(), req.Limit())
}

func (s *Service) translate(ctx context.Context, query string) string {
	if !s.opts.TranslateQueries || s.translator == nil {
		return query
	}
	text, lang, err := s.translator.Translate(ctx, query)
	if err != nil || text == "" {
		logger.FromContext(ctx).Warn("Query translation failed", zap.Error(err))
		return query
	}
	if lang != "en" {
		logger.FromContext(ctx).Debug("Query translated",
			zap.String("lang", lang),
			zap.String("translated", text),
		)
	}
	return text
}
