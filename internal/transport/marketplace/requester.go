// Package marketplace holds the HTTP plumbing shared by marketplace clients.
package marketplace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cardscout/postcards/internal/domain"
	"github.com/cardscout/postcards/internal/metrics"
)

// Defaults for outbound marketplace requests.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5.0
	DefaultUserAgent = "postcards/1.0"
	maxBodyBytes     = 8 << 20
)

// Options configures a Requester.
type Options struct {
	Timeout time.Duration
	// RateLimit is the sustained request rate per second. Zero uses the default,
	// a negative value disables limiting.
	RateLimit float64
	UserAgent string
	// HTTPClient overrides the default client. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Requester sends rate-limited, instrumented requests to one marketplace.
type Requester struct {
	source    string
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewRequester creates a Requester labelled source in metrics and errors.
func NewRequester(source string, opts Options) *Requester {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = DefaultRateLimit
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return &Requester{
		source:    source,
		client:    client,
		limiter:   limiter,
		userAgent: ua,
	}
}

// Source returns the marketplace label.
func (r *Requester) Source() string { return r.source }

// Do waits for the rate limiter, sends req and returns the body of a 2xx
// response. Other statuses yield a *domain.UpstreamStatusError.
func (r *Requester) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		metrics.MarketplaceRequestsTotal.WithLabelValues(r.source, "rate_limited").Inc()
		return nil, fmt.Errorf("%s: wait for rate limiter: %w", r.source, err)
	}

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	start := time.Now()
	resp, err := r.client.Do(req.WithContext(ctx))
	metrics.MarketplaceRequestDuration.WithLabelValues(r.source).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MarketplaceRequestsTotal.WithLabelValues(r.source, "error").Inc()
		return nil, fmt.Errorf("%s: %w: %w", r.source, domain.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.MarketplaceRequestsTotal.WithLabelValues(r.source, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w: %w", r.source, domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, domain.NewUpstreamStatus(r.source, resp.StatusCode)
	}
	return body, nil
}

// Get builds and sends a GET request.
func (r *Requester) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", r.source, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return r.Do(ctx, req)
}

// Returned records how many listings a search produced.
func (r *Requester) Returned(n int) {
	metrics.MarketplaceListingsTotal.WithLabelValues(r.source).Add(float64(n))
}

// Snippet shortens an upstream body for logging.
func Snippet(body []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
