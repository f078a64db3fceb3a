package postcards

import (
	"context"

	"github.com/cardscout/postcards/internal/domain"
)

// Vision transcribes the text printed on an image. model names the primary
// or fallback vision model; implementations may ignore it.
type Vision interface {
	Transcribe(ctx context.Context, model string, image []byte, contentType string) (string, error)
}

// visionAdapter bridges the public Vision interface to the extraction service.
type visionAdapter struct {
	inner Vision
}

func (a *visionAdapter) Transcribe(ctx context.Context, model string, img domain.Image) (string, error) {
	return a.inner.Transcribe(ctx, model, img.Data, img.ContentType)
}
