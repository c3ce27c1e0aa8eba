package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
)

// Backend names accepted by New.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	Redis RedisOptions
}

// New builds the configured backend wrapped with metrics. An empty backend
// name selects the in-memory cache.
func New(opts Options) (Backend, error) {
	var b Backend
	switch opts.Backend {
	case "", BackendInMemory:
		b = NewInMemoryCache()
	case BackendMemcached:
		b = NewMemcachedCache(opts.MemcachedAddrs, opts.MemcachedTimeout, opts.MemcachedMaxIdleConns)
	case BackendRedis:
		b = NewRedisCache(opts.Redis)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
	name := opts.Backend
	if name == "" {
		name = BackendInMemory
	}
	return Instrument(b, name), nil
}

// Instrumented records hits, misses and backend errors per cache type.
type Instrumented struct {
	Backend
	cacheType string
}

// Instrument wraps b so every call is counted under cacheType.
func Instrument(b Backend, cacheType string) *Instrumented {
	return &Instrumented{Backend: b, cacheType: cacheType}
}

// Get counts a hit, a miss, or an error (which callers treat as a miss).
func (c *Instrumented) Get(ctx context.Context, key string) (models.VisitorAverages, bool, error) {
	v, ok, err := c.Backend.Get(ctx, key)
	switch {
	case err != nil:
		observability.CacheErrorsTotal.WithLabelValues(c.cacheType, "get").Inc()
	case ok:
		observability.CacheHitsTotal.WithLabelValues(c.cacheType).Inc()
	default:
		observability.CacheMissesTotal.WithLabelValues(c.cacheType).Inc()
	}
	return v, ok, err
}

// Set counts backend errors.
func (c *Instrumented) Set(ctx context.Context, key string, value models.VisitorAverages, ttl time.Duration) error {
	err := c.Backend.Set(ctx, key, value, ttl)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(c.cacheType, "set").Inc()
	}
	return err
}

// Delete counts backend errors.
func (c *Instrumented) Delete(ctx context.Context, key string) error {
	err := c.Backend.Delete(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues(c.cacheType, "delete").Inc()
	}
	return err
}

// Type returns the cache type label.
func (c *Instrumented) Type() string { return c.cacheType }
