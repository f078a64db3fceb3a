package textcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cardscout/postcards/internal/db"
	"github.com/cardscout/postcards/internal/domain/listing"
)

// KeyPrefix namespaces cache keys in the shared store.
const KeyPrefix = "postcards:image_text:"

// Stored value markers. A "no text" outcome is cached too.
const (
	markerNoText = '0'
	markerText   = '1'
)

// store is the consumer interface for the shared cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// KV is a cache shared between instances through a key-value store, fronted by
// an in-process Memory cache. Store errors degrade to misses and are logged.
type KV struct {
	front  *Memory
	store  store
	ttl    time.Duration
	logger *zap.Logger
}

// NewKV creates a shared cache.
func NewKV(s store, logger *zap.Logger) *KV {
	return &KV{front: NewMemory(), store: s, logger: logger}
}

// WithTTL expires shared entries after ttl. Zero keeps them forever.
func (k *KV) WithTTL(ttl time.Duration) *KV {
	k.ttl = ttl
	return k
}

// Get returns the cached outcome for url.
func (k *KV) Get(ctx context.Context, url string) (listing.Enrichment, bool) {
	if e, ok := k.front.Get(ctx, url); ok {
		return e, true
	}

	key := cacheKey(url)
	data, err := k.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			k.logger.Warn("Failed to get cached image text", zap.String("key", key), zap.Error(err))
		}
		return listing.Pending(), false
	}

	e, ok := decode(data)
	if !ok {
		k.logger.Warn("Failed to parse cached image text", zap.String("key", key))
		return listing.Pending(), false
	}
	k.front.Put(ctx, url, e)
	return e, true
}

// Put stores a processed outcome in both tiers.
func (k *KV) Put(ctx context.Context, url string, e listing.Enrichment) {
	if !e.IsProcessed() {
		return
	}
	k.front.Put(ctx, url, e)

	key := cacheKey(url)
	if err := k.store.Set(ctx, key, encode(e), k.ttl); err != nil {
		k.logger.Warn("Failed to cache image text", zap.String("key", key), zap.Error(err))
	}
}

func cacheKey(url string) string {
	return KeyPrefix + urlHash(url)
}

func urlHash(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}

func encode(e listing.Enrichment) []byte {
	if !e.HasText() {
		return []byte{markerNoText}
	}
	buf := make([]byte, 0, len(e.Text())+1)
	buf = append(buf, markerText)
	return append(buf, e.Text()...)
}

func decode(data []byte) (listing.Enrichment, bool) {
	if len(data) == 0 {
		return listing.Pending(), false
	}
	switch data[0] {
	case markerNoText:
		return listing.NoText(), true
	case markerText:
		return listing.WithText(string(data[1:])), true
	default:
		return listing.Pending(), false
	}
}
