package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotConfigured signals a feature disabled by missing credentials.
	ErrNotConfigured = errors.New("not configured")
	// ErrProviderUnavailable signals an upstream marketplace or model failure.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrImageDownload signals a failed image download.
	ErrImageDownload = errors.New("image download failed")
	// ErrEmptyModelResponse signals a model reply without usable content.
	ErrEmptyModelResponse = errors.New("empty model response")
	// ErrPlaceholderImage signals a synthetic image URL that is never fetched.
	ErrPlaceholderImage = errors.New("placeholder image")
)

// UpstreamStatusError carries the HTTP status returned by an upstream provider.
type UpstreamStatusError struct {
	Provider   string
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d", ErrProviderUnavailable.Error(), e.Provider, e.StatusCode)
}

func (e *UpstreamStatusError) Unwrap() error { return ErrProviderUnavailable }

// NewUpstreamStatus creates an upstream status error.
func NewUpstreamStatus(provider string, statusCode int) error {
	return &UpstreamStatusError{Provider: provider, StatusCode: statusCode}
}
