package oddsfeed

import (
	"context"
	"sync/atomic"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/yourusername/stall10n/internal/metrics"
	"github.com/yourusername/stall10n/internal/models"
)

// DefaultCacheTTL is how long a fetched board stays readable
const DefaultCacheTTL = time.Hour

// CacheStats reports cache effectiveness
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// CachedProvider serves repeat reads for the same race and interval from
// memory so they do not spend quota
type CachedProvider struct {
	provider Provider
	cache    *cache.Cache
	ttl      time.Duration
	hits     atomic.Uint64
	misses   atomic.Uint64
}

// NewCachedProvider wraps provider with a TTL cache
func NewCachedProvider(provider Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedProvider{
		provider: provider,
		cache:    cache.New(ttl, ttl*2),
		ttl:      ttl,
	}
}

func cacheKey(externalRaceID string, interval models.IntervalLabel) string {
	return externalRaceID + ":" + string(interval)
}

// Name returns the wrapped provider's name
func (c *CachedProvider) Name() string {
	return c.provider.Name()
}

// FetchOdds returns a cached board when present, otherwise fetches and caches it
func (c *CachedProvider) FetchOdds(ctx context.Context, externalRaceID string, interval models.IntervalLabel) (*RaceOdds, error) {
	if cached, found := c.cache.Get(cacheKey(externalRaceID, interval)); found {
		if odds, ok := cached.(*RaceOdds); ok {
			c.hits.Add(1)
			metrics.RecordCacheLookup(true)
			return odds, nil
		}
	}

	c.misses.Add(1)
	metrics.RecordCacheLookup(false)
	return c.FetchFresh(ctx, externalRaceID, interval)
}

// FetchFresh always calls the provider and refreshes the cache. Scheduled
// captures use it so a snapshot reflects the odds at capture time.
func (c *CachedProvider) FetchFresh(ctx context.Context, externalRaceID string, interval models.IntervalLabel) (*RaceOdds, error) {
	odds, err := c.provider.FetchOdds(ctx, externalRaceID, interval)
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey(externalRaceID, interval), odds, c.ttl)
	return odds, nil
}

// Invalidate drops every cached interval for a race
func (c *CachedProvider) Invalidate(externalRaceID string) {
	for _, label := range models.AllIntervals() {
		c.cache.Delete(cacheKey(externalRaceID, label))
	}
}

// Stats returns hit and miss counts
func (c *CachedProvider) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.cache.ItemCount(),
	}
}
