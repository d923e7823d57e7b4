package pricefeed

import (
	"context"
	"sync"
	"time"

	"moltapp-trading/internal/domain"
)

// DefaultMaxAge is how long a cached observation is considered fresh.
const DefaultMaxAge = 30 * time.Second

// Cache holds the latest reference price per mint. It is safe for
// concurrent use; the WS updater writes, gate and pipeline read.
type Cache struct {
	mu     sync.RWMutex
	prices map[string]*domain.ReferencePrice
	maxAge time.Duration
	now    func() time.Time
}

// NewCache creates an empty price cache. maxAge <= 0 uses DefaultMaxAge.
func NewCache(maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{
		prices: make(map[string]*domain.ReferencePrice),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Put stores an observation.
func (c *Cache) Put(p *domain.ReferencePrice) {
	if p == nil || p.Mint == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *p
	c.prices[p.Mint] = &cp
}

// Get returns the cached price for a mint if it is still fresh.
func (c *Cache) Get(mint string) (*domain.ReferencePrice, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[mint]
	if !ok || c.now().Sub(p.ObservedAt) > c.maxAge {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// CachedFeed serves from the streaming cache when fresh and falls back to
// the HTTP feed otherwise. A fallback hit refreshes the cache.
type CachedFeed struct {
	cache    *Cache
	fallback Feed
}

// NewCachedFeed wraps a fallback feed with a cache.
func NewCachedFeed(cache *Cache, fallback Feed) *CachedFeed {
	return &CachedFeed{cache: cache, fallback: fallback}
}

// Compile-time interface check.
var _ Feed = (*CachedFeed)(nil)

// Price implements Feed.
func (f *CachedFeed) Price(ctx context.Context, mint string) (*domain.ReferencePrice, error) {
	if p, ok := f.cache.Get(mint); ok {
		return p, nil
	}
	p, err := f.fallback.Price(ctx, mint)
	if err != nil {
		return nil, err
	}
	f.cache.Put(p)
	return p, nil
}
