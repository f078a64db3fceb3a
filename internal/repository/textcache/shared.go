package textcache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ProcessedKeyPrefix namespaces claimed image URLs in the shared store.
const ProcessedKeyPrefix = "postcards:processed:"

const claimTimeout = 2 * time.Second

// claimStore is the consumer interface for cross-instance claims.
type claimStore interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// SharedProcessedSet claims image URLs across every instance using the same
// store. A URL is claimed in-process first, so the store sees at most one
// claim per URL per instance. Store failures fall back to the local claim.
type SharedProcessedSet struct {
	local  *ProcessedSet
	store  claimStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewSharedProcessedSet creates a shared set. Claims expire after ttl; zero
// keeps them until evicted.
func NewSharedProcessedSet(s claimStore, ttl time.Duration, logger *zap.Logger) *SharedProcessedSet {
	return &SharedProcessedSet{local: NewProcessedSet(), store: s, ttl: ttl, logger: logger}
}

// Claim reports whether the caller is the first instance to claim url.
func (p *SharedProcessedSet) Claim(url string) bool {
	if !p.local.Claim(url) {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), claimTimeout)
	defer cancel()

	key := ProcessedKeyPrefix + urlHash(url)
	ok, err := p.store.SetNX(ctx, key, []byte{'1'}, p.ttl)
	if err != nil {
		p.logger.Warn("Failed to claim image in shared store", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}
