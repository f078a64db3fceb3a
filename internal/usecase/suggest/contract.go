package suggest

import "context"

// Suggester proposes complete queries for a partial one.
type Suggester interface {
	Suggest(ctx context.Context, query string, limit int) ([]string, error)
}
