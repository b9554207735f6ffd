package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/osint-source-ranker/pkg/redis"
	"golang.org/x/sync/singleflight"
)

// TextCache stores normalized page text by URL.
type TextCache interface {
	Get(ctx context.Context, url string) (string, bool, error)
	Set(ctx context.Context, url string, text string) error
}

// RedisTextCache keeps page text in Redis under pagetext:<sha256(url)>.
type RedisTextCache struct {
	client *pkgredis.Client
	ttl    time.Duration
}

func NewRedisTextCache(client *pkgredis.Client, ttl time.Duration) *RedisTextCache {
	return &RedisTextCache{client: client, ttl: ttl}
}

func (c *RedisTextCache) Get(ctx context.Context, url string) (string, bool, error) {
	text, err := c.client.Get(ctx, cacheKey(url))
	if err != nil {
		if pkgredis.IsNilError(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return text, true, nil
}

func (c *RedisTextCache) Set(ctx context.Context, url string, text string) error {
	return c.client.Set(ctx, cacheKey(url), text, c.ttl)
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "pagetext:" + hex.EncodeToString(sum[:])
}

// MemoryTextCache is an unbounded in-process cache, used to share page text
// between the passes of a single run.
type MemoryTextCache struct {
	mu    sync.RWMutex
	pages map[string]string
}

func NewMemoryTextCache() *MemoryTextCache {
	return &MemoryTextCache{pages: make(map[string]string)}
}

func (c *MemoryTextCache) Get(_ context.Context, url string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.pages[url]
	return text, ok, nil
}

func (c *MemoryTextCache) Set(_ context.Context, url string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[url] = text
	return nil
}

// CachedFetcher decorates a Fetcher with a TextCache. Concurrent requests
// for one URL share a single underlying fetch. Failures are never cached.
type CachedFetcher struct {
	next    Fetcher
	cache   TextCache
	group   singleflight.Group
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
	logger  *slog.Logger
}

// NewCachedFetcher wraps next. m may be nil.
func NewCachedFetcher(next Fetcher, cache TextCache, m *metrics.Metrics) *CachedFetcher {
	return &CachedFetcher{
		next:    next,
		cache:   cache,
		metrics: m,
		logger:  slog.Default().With("component", "page-cache"),
	}
}

func (c *CachedFetcher) FetchText(ctx context.Context, url string) (string, error) {
	text, ok, err := c.cache.Get(ctx, url)
	if err != nil {
		c.logger.Warn("cache get failed", "url", url, "error", err)
	} else if ok {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.PageCacheHitsTotal.Inc()
		}
		return text, nil
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.PageCacheMissesTotal.Inc()
	}

	v, err, _ := c.group.Do(url, func() (any, error) {
		text, err := c.next.FetchText(ctx, url)
		if err != nil {
			return "", err
		}
		if setErr := c.cache.Set(ctx, url, text); setErr != nil {
			c.logger.Warn("cache set failed", "url", url, "error", setErr)
		}
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	return v.(string), nil
}

// Stats returns cache hit and miss counts since creation.
func (c *CachedFetcher) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
