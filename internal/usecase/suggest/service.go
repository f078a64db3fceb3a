// Package suggest completes partial postcard search queries.
package suggest

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Suggestion limits.
const (
	DefaultLimit   = 5
	MaxLimit       = 20
	minQueryLength = 2
)

// Suffixes appended to the query when no suggester is configured.
var offlineSuffixes = []string{
	"vintage postcard",
	"antique postcard",
	"historical postcard",
	"postcard collection",
	"rare postcard",
}

// Suffixes appended to the query when the suggester fails.
var fallbackSuffixes = []string{
	"vintage",
	"historic",
	"antique",
	"collection",
	"rare",
}

// Result holds suggestions for one query.
type Result struct {
	Suggestions   []string
	OriginalQuery string
}

// Service produces query suggestions.
type Service struct {
	suggester Suggester
	logger    *zap.Logger
}

// New creates a Service. suggester can be nil.
func New(suggester Suggester, logger *zap.Logger) *Service {
	return &Service{suggester: suggester, logger: logger}
}

// Suggest returns up to limit suggestions. Queries shorter than two characters
// get none; a missing or failing suggester yields templated suggestions.
func (s *Service) Suggest(ctx context.Context, query string, limit int) Result {
	res := Result{Suggestions: []string{}, OriginalQuery: query}

	trimmed := strings.TrimSpace(query)
	if len(trimmed) < minQueryLength {
		return res
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	if s.suggester == nil {
		res.Suggestions = templated(trimmed, offlineSuffixes, limit)
		return res
	}

	out, err := s.suggester.Suggest(ctx, trimmed, limit)
	if err != nil {
		s.logger.Warn("Suggestion generation failed", zap.String("query", trimmed), zap.Error(err))
		res.Suggestions = templated(trimmed, fallbackSuffixes, limit)
		return res
	}
	if len(out) > limit {
		out = out[:limit]
	}
	if out != nil {
		res.Suggestions = out
	}
	return res
}

func templated(query string, suffixes []string, limit int) []string {
	n := min(limit, len(suffixes))
	out := make([]string, n)
	for i := range n {
		out[i] = query + " " + suffixes[i]
	}
	return out
}
