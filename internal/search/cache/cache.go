package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alex-user-go/luxsearch/internal/providers"
	"github.com/alex-user-go/luxsearch/internal/search/types"
)

// Store is a shared second-level cache consulted on a local miss.
type Store interface {
	Get(ctx context.Context, key string) (*types.Result, bool, error)
	Set(ctx context.Context, key string, result *types.Result) error
}

// Cache provides in-memory caching with TTL and request collapsing (singleflight).
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	ttl      time.Duration
	inflight map[string]*inflightRequest
	store    Store
	done     chan struct{}
}

type cacheEntry struct {
	result    *types.Result
	expiresAt time.Time
}

type inflightRequest struct {
	done   chan struct{}
	result *types.Result
	hit    bool
	err    error
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore adds a second-level store. Store errors are treated as misses.
func WithStore(s Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// NewCache creates a new Cache with the specified TTL.
func NewCache(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*cacheEntry),
		ttl:      ttl,
		inflight: make(map[string]*inflightRequest),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanup()

	return c
}

// Close stops the background cleanup goroutine.
func (c *Cache) Close() {
	close(c.done)
}

// Key generates a cache key from a stay. Case differences in the city
// and query do not produce distinct keys.
func (c *Cache) Key(stay providers.Stay) string {
	return fmt.Sprintf("%s:%s:%s:%d:%t:%s:%s",
		strings.ToUpper(strings.TrimSpace(stay.CityCode)),
		stay.CheckIn,
		stay.CheckOut,
		stay.Adults,
		stay.WantsIndoorPool,
		strconv.FormatFloat(stay.MaxPriceGBP, 'f', -1, 64),
		strings.ToLower(strings.TrimSpace(stay.Query)),
	)
}

// GetOrFetch retrieves from cache or executes the fetch function.
// Concurrent requests for the same key are collapsed (singleflight pattern).
// Returns the result and a boolean indicating if it was a cache hit.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch func() (*types.Result, error)) (*types.Result, bool, error) {
	c.mu.Lock()

	if entry, ok := c.entries[key]; ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.result, true, nil
	}

	if inflight, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-inflight.done:
			return inflight.result, inflight.hit, inflight.err
		case <-ctx.Done():
			return nil, false, context.Cause(ctx)
		}
	}

	inflight := &inflightRequest{
		done: make(chan struct{}),
	}
	c.inflight[key] = inflight
	c.mu.Unlock()

	// Fetch outside of the lock, trying the shared store first.
	result, hit := c.fromStore(ctx, key)
	var err error
	if !hit {
		result, err = fetch()
		if err == nil && result != nil && c.store != nil && c.ttl > 0 {
			_ = c.store.Set(ctx, key, result)
		}
	}

	c.mu.Lock()
	inflight.result = result
	inflight.hit = hit
	inflight.err = err
	if err == nil && result != nil && c.ttl > 0 {
		c.entries[key] = &cacheEntry{
			result:    result,
			expiresAt: time.Now().Add(c.ttl),
		}
	}
	delete(c.inflight, key)
	c.mu.Unlock()

	close(inflight.done)

	return result, hit, err
}

func (c *Cache) fromStore(ctx context.Context, key string) (*types.Result, bool) {
	if c.store == nil {
		return nil, false
	}
	result, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok || result == nil {
		return nil, false
	}
	return result, true
}

// Invalidate removes a specific key from the cache.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// cleanup periodically removes expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}
