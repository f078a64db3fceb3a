// Package imagefetch downloads listing images over HTTP.
package imagefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cardscout/postcards/internal/domain"
)

// Defaults for Config fields left zero.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultMaxBytes  = 20 << 20
	DefaultUserAgent = "postcards-image-fetcher/1.0"
)

// Config holds download limits.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
}

// Fetcher downloads images with a bounded timeout and size.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// New creates a fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
	}
}

// Fetch downloads the image at url. Every failure wraps domain.ErrImageDownload.
func (f *Fetcher) Fetch(ctx context.Context, url string) (domain.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: build request: %w", domain.ErrImageDownload, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: %w", domain.ErrImageDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Image{}, fmt.Errorf("%w: status %d", domain.ErrImageDownload, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return domain.Image{}, fmt.Errorf("%w: read body: %w", domain.ErrImageDownload, err)
	}
	if int64(len(data)) > f.maxBytes {
		return domain.Image{}, fmt.Errorf("%w: image exceeds %d bytes", domain.ErrImageDownload, f.maxBytes)
	}
	if len(data) == 0 {
		return domain.Image{}, fmt.Errorf("%w: empty body", domain.ErrImageDownload)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return domain.Image{Data: data, ContentType: contentType}, nil
}
