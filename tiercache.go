// Package tiercache is a three-tier read-through cache: a fast
// in-process memory tier, a durable on-disk tier, and a Redis-backed
// tier for cached network responses. Reads walk the tiers in order and
// promote hits upward; writes land in memory synchronously and trickle
// down asynchronously under a type-based persistence policy. An access
// tracker scores key importance and prewarms keys it predicts will be
// needed soon.
//
//	c, err := tiercache.New(ctx,
//		tiercache.WithMemorySize(32<<20),
//		tiercache.WithDurableDirectory("/var/cache/myapp"),
//	)
//	if err != nil { ... }
//	defer c.Close()
//
//	c.Set(ctx, "user:42", types.BytesPayload(data), time.Hour, types.TypeJSON)
//	entry := c.Get(ctx, "user:42")
package tiercache

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tiercache/tiercache/internal/cache"
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/pkg/types"
)

// Cache is the public handle over the tier coordinator.
type Cache struct {
	co        *cache.Coordinator
	collector *metrics.Collector
}

type settings struct {
	cfg    *config.Config
	file   string
	env    bool
	coOpts []cache.Option
}

// Option customizes cache construction.
type Option func(*settings)

// FromFile loads configuration from a YAML file before applying other
// options.
func FromFile(path string) Option {
	return func(s *settings) { s.file = path }
}

// FromEnv applies TIERCACHE_* environment overrides after the file (if
// any) is loaded.
func FromEnv() Option {
	return func(s *settings) { s.env = true }
}

// WithMemorySize sets the memory tier capacity in bytes.
func WithMemorySize(bytes int64) Option {
	return func(s *settings) { s.cfg.Memory.MaxSize = bytes }
}

// WithDefaultTTL sets the TTL applied to entries stored without one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *settings) { s.cfg.DefaultTTL = ttl }
}

// WithDurableDirectory enables the durable tier under the given
// directory.
func WithDurableDirectory(dir string) Option {
	return func(s *settings) {
		s.cfg.Durable.Enabled = true
		s.cfg.Durable.Directory = dir
	}
}

// WithoutDurable disables the durable tier.
func WithoutDurable() Option {
	return func(s *settings) { s.cfg.Durable.Enabled = false }
}

// WithRemote enables the network-response tier against the given Redis
// address.
func WithRemote(address string) Option {
	return func(s *settings) {
		s.cfg.Remote.Enabled = true
		s.cfg.Remote.Address = address
	}
}

// WithLogger sets the logger used for absorbed tier errors and
// maintenance events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.coOpts = append(s.coOpts, cache.WithLogger(logger))
	}
}

// WithMetricsDisabled turns off the Prometheus collector.
func WithMetricsDisabled() Option {
	return func(s *settings) { s.cfg.Metrics.Enabled = false }
}

// New builds and starts a cache from defaults plus the given options.
func New(ctx context.Context, opts ...Option) (*Cache, error) {
	s := &settings{cfg: config.NewDefault()}

	// File and env loading run first so explicit options win.
	for _, opt := range opts {
		opt(s)
	}
	if s.file != "" {
		if err := s.cfg.LoadFromFile(s.file); err != nil {
			return nil, err
		}
	}
	if s.env {
		if err := s.cfg.LoadFromEnv(); err != nil {
			return nil, err
		}
	}
	for _, opt := range opts {
		opt(s)
	}

	collector, err := metrics.NewCollector(s.cfg.Metrics)
	if err != nil {
		return nil, err
	}
	coOpts := append([]cache.Option{cache.WithMetrics(collector)}, s.coOpts...)

	co, err := cache.New(ctx, s.cfg, coOpts...)
	if err != nil {
		return nil, err
	}

	return &Cache{co: co, collector: collector}, nil
}

// Set stores payload under key. A non-positive ttl takes the configured
// default; an empty key is logged and dropped.
func (c *Cache) Set(ctx context.Context, key string, payload types.Payload, ttl time.Duration, resourceType types.ResourceType) {
	c.co.Set(ctx, key, payload, ttl, resourceType)
}

// Get returns the entry for key, or nil on a miss. Lower-tier failures
// read as misses.
func (c *Cache) Get(ctx context.Context, key string) *types.CacheEntry {
	return c.co.Get(ctx, key)
}

// Has reports whether a live entry exists for key in any tier.
func (c *Cache) Has(ctx context.Context, key string) bool {
	return c.co.Has(ctx, key)
}

// Delete removes the entry for key from every tier, best effort.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.co.Delete(ctx, key)
}

// Clear removes every entry from every tier.
func (c *Cache) Clear(ctx context.Context) {
	c.co.Clear(ctx)
}

// ClearByType removes all entries of the given resource type from the
// memory and durable tiers, reporting how many were removed.
func (c *Cache) ClearByType(ctx context.Context, t types.ResourceType) int {
	return c.co.ClearByType(ctx, t)
}

// Cleanup removes expired entries from the memory and durable tiers.
// The background loop runs this on its own; calling it is only needed
// for immediate reclamation.
func (c *Cache) Cleanup(ctx context.Context) int {
	return c.co.Cleanup(ctx)
}

// Prewarm loads keys predicted to be accessed soon from the durable
// tier into memory, reporting how many were loaded.
func (c *Cache) Prewarm(ctx context.Context) int {
	return c.co.Prewarm(ctx)
}

// Stats returns a snapshot across all tiers.
func (c *Cache) Stats() types.CacheStats {
	return c.co.Stats()
}

// Flush blocks until all pending write-behind operations finish.
func (c *Cache) Flush() {
	c.co.Flush()
}

// MetricsHandler returns an HTTP handler serving Prometheus metrics,
// or nil when metrics are disabled.
func (c *Cache) MetricsHandler() http.Handler {
	return c.collector.Handler()
}

// Close stops background maintenance, drains pending writes, and
// closes the lower tiers.
func (c *Cache) Close() error {
	return c.co.Close()
}
