package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// Cache stores computed visitor averages.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.VisitorAverages, bool, error)
	Set(ctx context.Context, key string, value models.VisitorAverages, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Backend is a Cache with lifecycle hooks used by health checks and shutdown.
type Backend interface {
	Cache
	Ping(ctx context.Context) error
	Close() error
}

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.VisitorAverages
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{data: make(map[string]cacheEntry), now: time.Now}
}

// Get returns (data, true, nil) on hit and (zero, false, nil) on miss or
// expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.VisitorAverages, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return models.VisitorAverages{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.VisitorAverages{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores value for ttl.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.VisitorAverages, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Ping always succeeds.
func (c *InMemoryCache) Ping(ctx context.Context) error { return nil }

// Close drops all entries.
func (c *InMemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]cacheEntry)
	return nil
}
