package extraction

import (
	"context"

	"github.com/cardscout/postcards/internal/domain"
	"github.com/cardscout/postcards/internal/domain/listing"
)

// Cache stores extraction outcomes by image URL.
type Cache interface {
	Get(ctx context.Context, url string) (listing.Enrichment, bool)
	Put(ctx context.Context, url string, e listing.Enrichment)
}

// ImageFetcher downloads an image.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (domain.Image, error)
}

// VisionModel transcribes the text visible in an image with the named model.
type VisionModel interface {
	Transcribe(ctx context.Context, model string, img domain.Image) (string, error)
}
