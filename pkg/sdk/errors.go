package postcards

import "github.com/cardscout/postcards/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidRequest      = domain.ErrInvalidRequest
	ErrNotConfigured       = domain.ErrNotConfigured
	ErrProviderUnavailable = domain.ErrProviderUnavailable
	ErrImageDownload       = domain.ErrImageDownload
	ErrPlaceholderImage    = domain.ErrPlaceholderImage
)
