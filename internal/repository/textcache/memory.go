// Package textcache stores image text extraction outcomes keyed by image URL.
package textcache

import (
	"context"
	"sync"

	"github.com/cardscout/postcards/internal/domain/listing"
)

// Memory is an unbounded in-process cache. Entries are never evicted, so a URL
// stored once is never extracted again for the lifetime of the cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]listing.Enrichment
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]listing.Enrichment)}
}

// Get returns the cached outcome for url. A cached "no text" is a hit.
func (m *Memory) Get(_ context.Context, url string) (listing.Enrichment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[url]
	return e, ok
}

// Put stores a processed outcome. Pending values are ignored.
func (m *Memory) Put(_ context.Context, url string, e listing.Enrichment) {
	if !e.IsProcessed() {
		return
	}
	m.mu.Lock()
	m.entries[url] = e
	m.mu.Unlock()
}

// Len returns the number of cached URLs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// ProcessedSet tracks image URLs already handed to background extraction.
// URLs are never removed.
type ProcessedSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewProcessedSet creates an empty set.
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{urls: make(map[string]struct{})}
}

// Claim inserts url and reports whether the caller is the first to do so.
// Check and insert happen under one lock, so concurrent requests never both win.
func (p *ProcessedSet) Claim(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.urls[url]; ok {
		return false
	}
	p.urls[url] = struct{}{}
	return true
}

// Contains reports whether url was claimed.
func (p *ProcessedSet) Contains(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.urls[url]
	return ok
}

// Len returns the number of claimed URLs.
func (p *ProcessedSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.urls)
}
