// Package extraction reads the text printed on postcard images with a vision model.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/domain"
	"github.com/cardscout/postcards/internal/domain/listing"
	"github.com/cardscout/postcards/internal/metrics"
)

// Defaults for Options fields left zero.
const (
	DefaultPrimaryModel   = "o1"
	DefaultFallbackModel  = "gpt-4o"
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = time.Second
)

// DefaultPlaceholderHosts are URL fragments of image stubs that never carry real text.
var DefaultPlaceholderHosts = []string{"placehold.co", "example.com", "dummyimage.com"}

// Outcome labels for extraction metrics.
const (
	outcomeText          = "text"
	outcomeNoText        = "no_text"
	outcomePlaceholder   = "placeholder"
	outcomeDownloadError = "download_error"
	outcomeFailed        = "failed"
)

// Options tunes the extraction pipeline.
type Options struct {
	PrimaryModel     string
	FallbackModel    string
	MaxAttempts      int
	InitialBackoff   time.Duration
	PlaceholderHosts []string
}

func (o *Options) applyDefaults() {
	if o.PrimaryModel == "" {
		o.PrimaryModel = DefaultPrimaryModel
	}
	if o.FallbackModel == "" {
		o.FallbackModel = DefaultFallbackModel
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.PlaceholderHosts == nil {
		o.PlaceholderHosts = DefaultPlaceholderHosts
	}
}

// Service extracts and caches image text.
type Service struct {
	cache   Cache
	fetcher ImageFetcher
	vision  VisionModel
	opts    Options
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates an extraction service. vision can be nil, in which case every
// image yields no text.
func New(cache Cache, fetcher ImageFetcher, vision VisionModel, opts Options, logger *zap.Logger) *Service {
	opts.applyDefaults()
	return &Service{
		cache:   cache,
		fetcher: fetcher,
		vision:  vision,
		opts:    opts,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Extract returns the text visible in the image at url.
// Failures are logged and reported as no text; they are never cached.
func (s *Service) Extract(ctx context.Context, url string) listing.Enrichment {
	if url == "" {
		return listing.NoText()
	}

	if e, ok := s.cache.Get(ctx, url); ok {
		metrics.ImageTextCacheTotal.WithLabelValues("hit").Inc()
		return e
	}
	metrics.ImageTextCacheTotal.WithLabelValues("miss").Inc()

	start := time.Now()
	text, err := s.extract(ctx, url)
	outcome := outcomeLabel(text, err)
	metrics.ExtractionRequestsTotal.WithLabelValues(outcome).Inc()
	metrics.ExtractionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		if !errors.Is(err, domain.ErrPlaceholderImage) {
			s.logger.Warn("Image text extraction failed",
				zap.String("image_url", url),
				zap.Error(err),
			)
		}
		return listing.NoText()
	}

	e := listing.WithText(normalizeLineBreaks(text))
	s.cache.Put(ctx, url, e)

	s.logger.Debug("Image text extracted",
		zap.String("image_url", url),
		zap.Int("text_length", len(e.Text())),
		zap.Duration("duration", time.Since(start)),
	)
	return e
}

// Report is the uncached result of a single diagnostic extraction.
type Report struct {
	ImageURL string
	Text     string
}

// Diagnose downloads and transcribes url without consulting or filling the cache.
// Only a missing image or a disabled model is an error; a failed transcription
// reports no text.
func (s *Service) Diagnose(ctx context.Context, url string) (Report, error) {
	text, err := s.extract(ctx, url)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPlaceholderImage),
		errors.Is(err, domain.ErrImageDownload),
		errors.Is(err, domain.ErrNotConfigured):
		return Report{}, err
	default:
		s.logger.Warn("Diagnostic transcription failed", zap.String("image_url", url), zap.Error(err))
	}
	return Report{ImageURL: url, Text: text}, nil
}

// extract runs download and transcription. An empty text with a nil error
// means the model reported no readable text.
func (s *Service) extract(ctx context.Context, url string) (string, error) {
	if s.isPlaceholder(url) {
		return "", fmt.Errorf("%w: %s", domain.ErrPlaceholderImage, url)
	}

	if s.vision == nil {
		return "", fmt.Errorf("vision model: %w", domain.ErrNotConfigured)
	}

	img, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}

	raw, err := s.transcribeWithRetry(ctx, img)
	if err != nil {
		return "", err
	}

	text, ok := CleanResponse(raw)
	if !ok {
		return "", nil
	}
	return text, nil
}

func (s *Service) isPlaceholder(url string) bool {
	for _, host := range s.opts.PlaceholderHosts {
		if host != "" && strings.Contains(url, host) {
			return true
		}
	}
	return false
}

// transcribeWithRetry calls the vision model until it returns non-empty content,
// backing off exponentially between attempts.
func (s *Service) transcribeWithRetry(ctx context.Context, img domain.Image) (string, error) {
	delay := s.opts.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		raw, err := s.transcribe(ctx, img)
		if err == nil && strings.TrimSpace(raw) != "" {
			return raw, nil
		}
		if err == nil {
			err = domain.ErrEmptyModelResponse
		}
		lastErr = err

		s.logger.Debug("Vision attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.opts.MaxAttempts),
			zap.Error(err),
		)

		if attempt < s.opts.MaxAttempts {
			if err := s.sleep(ctx, delay); err != nil {
				return "", fmt.Errorf("transcribe: %w", err)
			}
			delay *= 2
		}
	}
	return "", fmt.Errorf("transcribe after %d attempts: %w", s.opts.MaxAttempts, lastErr)
}

// transcribe tries the primary model, then the fallback model.
func (s *Service) transcribe(ctx context.Context, img domain.Image) (string, error) {
	raw, err := s.vision.Transcribe(ctx, s.opts.PrimaryModel, img)
	if err == nil {
		metrics.VisionRequestsTotal.WithLabelValues(s.opts.PrimaryModel, "ok").Inc()
		return raw, nil
	}
	metrics.VisionRequestsTotal.WithLabelValues(s.opts.PrimaryModel, "error").Inc()

	s.logger.Debug("Primary vision model failed, using fallback",
		zap.String("primary", s.opts.PrimaryModel),
		zap.String("fallback", s.opts.FallbackModel),
		zap.Error(err),
	)

	raw, err = s.vision.Transcribe(ctx, s.opts.FallbackModel, img)
	if err != nil {
		metrics.VisionRequestsTotal.WithLabelValues(s.opts.FallbackModel, "error").Inc()
		return "", fmt.Errorf("fallback model %s: %w", s.opts.FallbackModel, err)
	}
	metrics.VisionRequestsTotal.WithLabelValues(s.opts.FallbackModel, "ok").Inc()
	return raw, nil
}

func outcomeLabel(text string, err error) string {
	switch {
	case err == nil && text != "":
		return outcomeText
	case err == nil:
		return outcomeNoText
	case errors.Is(err, domain.ErrPlaceholderImage):
		return outcomePlaceholder
	case errors.Is(err, domain.ErrImageDownload):
		return outcomeDownloadError
	default:
		return outcomeFailed
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
