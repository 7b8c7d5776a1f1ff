package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tiercache/tiercache/internal/circuit"
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/pkg/types"
)

// Coordinator is the façade over the three tiers. Reads go through the
// tiers in order with backfill promotion on lower-tier hits; writes hit
// the memory tier synchronously and the durable and network tiers
// asynchronously, gated by the persistence policy. Failures in the
// lower tiers are absorbed: the caller only ever sees hit or miss.
type Coordinator struct {
	cfg     *config.Config
	memory  *MemoryTier
	durable types.DurableStore
	remote  types.ResponseStore
	tracker *Tracker
	policy  *Policy

	metrics types.MetricsCollector
	logger  *slog.Logger

	group          singleflight.Group
	durableBreaker *circuit.Breaker
	remoteBreaker  *circuit.Breaker

	writes sync.WaitGroup
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Option customizes coordinator construction.
type Option func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics sets the instrumentation hook.
func WithMetrics(collector types.MetricsCollector) Option {
	return func(c *Coordinator) { c.metrics = collector }
}

// WithDurableStore replaces the built-in file-backed durable tier.
func WithDurableStore(store types.DurableStore) Option {
	return func(c *Coordinator) { c.durable = store }
}

// WithRemoteStore replaces the built-in Redis-backed network tier.
func WithRemoteStore(store types.ResponseStore) Option {
	return func(c *Coordinator) { c.remote = store }
}

// New creates and starts a coordinator from the configuration. The
// durable and remote tiers are built only when enabled (or injected
// via options); maintenance loops start immediately.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Coordinator{
		cfg:     cfg,
		memory:  NewMemoryTier(cfg.Memory.MaxSize),
		tracker: NewTracker(cfg.Tracker),
		policy:  NewPolicy(cfg.Policy),
		metrics: types.NoopCollector{},
		logger:  slog.Default(),
		stopCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.durable == nil && cfg.Durable.Enabled {
		c.durable = NewDurableTier(cfg.Durable, c.logger)
	}
	if c.remote == nil && cfg.Remote.Enabled {
		c.remote = NewRemoteTier(cfg.Remote)
	}

	if c.durable != nil {
		if err := c.durable.Init(ctx); err != nil {
			return nil, fmt.Errorf("durable tier init: %w", err)
		}
	}

	c.durableBreaker = circuit.NewBreaker("durable", circuit.Config{})
	c.remoteBreaker = circuit.NewBreaker("remote", circuit.Config{})

	c.wg.Add(2)
	go c.cleanupLoop()
	go c.predictionLoop()

	return c, nil
}

// Get returns the entry for key, consulting the tiers in order. A hit
// at a lower tier is promoted into the tiers above it. All lower-tier
// failures are absorbed as misses.
func (c *Coordinator) Get(ctx context.Context, key string) *types.CacheEntry {
	start := time.Now()

	c.tracker.RecordAccess(key, types.TypeUnknown)

	if entry := c.memory.Get(key); entry != nil {
		c.metrics.RecordCacheHit("memory", entry.EstimatedSize())
		c.metrics.RecordOperation("get", time.Since(start), entry.EstimatedSize(), true)
		return entry
	}
	c.metrics.RecordCacheMiss("memory", 0)

	// Collapse concurrent slow-path lookups for the same key.
	result, _, _ := c.group.Do(key, func() (interface{}, error) {
		return c.readLowerTiers(ctx, key), nil
	})

	entry, _ := result.(*types.CacheEntry)
	if entry != nil {
		c.metrics.RecordOperation("get", time.Since(start), entry.EstimatedSize(), true)
	} else {
		c.metrics.RecordOperation("get", time.Since(start), 0, false)
	}
	return entry
}

func (c *Coordinator) readLowerTiers(ctx context.Context, key string) *types.CacheEntry {
	if c.durable != nil {
		var entry *types.CacheEntry
		err := c.durableBreaker.Execute(func() error {
			var getErr error
			entry, getErr = c.durable.Get(ctx, key)
			return getErr
		})
		if err != nil {
			c.logger.Warn("durable tier read failed", "key", key, "error", err)
		}
		if entry != nil {
			c.metrics.RecordCacheHit("durable", entry.EstimatedSize())
			promoted := c.restamp(entry)
			c.memory.Set(promoted)
			return promoted
		}
		c.metrics.RecordCacheMiss("durable", 0)
	}

	if c.remote != nil {
		var entry *types.CacheEntry
		err := c.remoteBreaker.Execute(func() error {
			var getErr error
			entry, getErr = c.remote.Get(ctx, key)
			return getErr
		})
		if err != nil {
			c.logger.Warn("remote tier read failed", "key", key, "error", err)
		}
		if entry != nil {
			c.metrics.RecordCacheHit("remote", entry.EstimatedSize())
			promoted := c.restamp(entry)
			c.memory.Set(promoted)
			c.writeBehindDurable(promoted)
			return promoted
		}
		c.metrics.RecordCacheMiss("remote", 0)
	}

	return nil
}

// restamp gives a promoted entry a fresh write time and the default
// TTL: promotion is a new residency decision in the faster tier.
func (c *Coordinator) restamp(entry *types.CacheEntry) *types.CacheEntry {
	return &types.CacheEntry{
		Key:       entry.Key,
		Payload:   entry.Payload,
		CreatedAt: time.Now(),
		TTL:       c.cfg.DefaultTTL,
		Type:      entry.Type,
		Metadata:  entry.Metadata,
	}
}

// Set stores the payload under key. The memory tier is written
// synchronously; the durable and network tiers are written behind,
// gated by the persistence policy. A non-positive TTL takes the
// configured default. An empty key is logged and dropped.
func (c *Coordinator) Set(ctx context.Context, key string, payload types.Payload, ttl time.Duration, resourceType types.ResourceType) {
	start := time.Now()

	if key == "" {
		c.logger.Warn("ignoring set with empty key")
		c.metrics.RecordOperation("set", time.Since(start), 0, false)
		return
	}
	if payload == nil {
		c.logger.Warn("ignoring set with nil payload", "key", key)
		c.metrics.RecordOperation("set", time.Since(start), 0, false)
		return
	}
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	entry := &types.CacheEntry{
		Key:       key,
		Payload:   payload,
		CreatedAt: time.Now(),
		TTL:       ttl,
		Type:      resourceType,
	}

	c.memory.Set(entry)
	c.tracker.RecordAccess(key, resourceType)

	decision := c.policy.Decide(entry)
	if decision.Durable {
		c.writeBehindDurable(entry)
	}
	if decision.Network && c.remote != nil {
		c.writes.Add(1)
		go func() {
			defer c.writes.Done()
			err := c.remoteBreaker.Execute(func() error {
				return c.remote.Put(context.Background(), entry.Key, entry)
			})
			if err != nil {
				c.logger.Warn("remote tier write failed", "key", entry.Key, "error", err)
			}
		}()
	}

	c.metrics.RecordOperation("set", time.Since(start), entry.EstimatedSize(), true)
}

func (c *Coordinator) writeBehindDurable(entry *types.CacheEntry) {
	if c.durable == nil {
		return
	}
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		err := c.durableBreaker.Execute(func() error {
			return c.durable.Put(context.Background(), entry)
		})
		if err != nil {
			c.logger.Warn("durable tier write failed", "key", entry.Key, "error", err)
		}
	}()
}

// Has reports whether a live entry exists for key in any tier. It goes
// through the full read path, so a lower-tier hit is promoted exactly
// as a Get would.
func (c *Coordinator) Has(ctx context.Context, key string) bool {
	return c.Get(ctx, key) != nil
}

// Delete removes the entry for key from every tier, best effort.
func (c *Coordinator) Delete(ctx context.Context, key string) {
	start := time.Now()

	c.memory.Delete(key)
	c.tracker.Forget(key)

	if c.durable != nil {
		if err := c.durable.Delete(ctx, key); err != nil {
			c.logger.Warn("durable tier delete failed", "key", key, "error", err)
		}
	}
	if c.remote != nil {
		if err := c.remote.Delete(ctx, key); err != nil {
			c.logger.Warn("remote tier delete failed", "key", key, "error", err)
		}
	}

	c.metrics.RecordOperation("delete", time.Since(start), 0, true)
}

// Clear removes every entry from every tier, best effort.
func (c *Coordinator) Clear(ctx context.Context) {
	c.memory.Clear()

	if c.durable != nil {
		if err := c.durable.Clear(ctx); err != nil {
			c.logger.Warn("durable tier clear failed", "error", err)
		}
	}
	if c.remote != nil {
		if err := c.remote.Clear(ctx); err != nil {
			c.logger.Warn("remote tier clear failed", "error", err)
		}
	}
}

// ClearByType removes all entries of the given resource type from the
// memory and durable tiers, reporting how many were removed. The
// network tier is left alone: its entries expire on their own.
func (c *Coordinator) ClearByType(ctx context.Context, t types.ResourceType) int {
	removed := c.memory.ClearType(t)

	if c.durable != nil {
		n, err := c.durable.ScanAndDeleteByType(ctx, t)
		if err != nil {
			c.logger.Warn("durable tier type clear failed", "type", t, "error", err)
		}
		removed += n
	}
	return removed
}

// Cleanup removes expired entries from the memory and durable tiers,
// reporting how many were removed.
func (c *Coordinator) Cleanup(ctx context.Context) int {
	removed := c.memory.SweepExpired()

	if c.durable != nil {
		n, err := c.durable.ScanAndDeleteExpired(ctx)
		if err != nil {
			c.logger.Warn("durable tier cleanup failed", "error", err)
		}
		removed += n
	}
	return removed
}

// Prewarm loads keys the tracker predicts will be accessed soon from
// the durable tier into the memory tier. Prewarmed entries are tagged
// so they can be cleared as a group; failures are silent.
func (c *Coordinator) Prewarm(ctx context.Context) int {
	if c.durable == nil {
		return 0
	}

	warmed := 0
	for _, pattern := range c.tracker.UpcomingKeys(c.cfg.Maintenance.PredictionWindow) {
		if c.memory.Has(pattern.Key) {
			continue
		}

		entry, err := c.durable.Get(ctx, pattern.Key)
		if err != nil || entry == nil {
			continue
		}

		c.memory.Set(&types.CacheEntry{
			Key:       entry.Key,
			Payload:   entry.Payload,
			CreatedAt: time.Now(),
			TTL:       c.cfg.DefaultTTL,
			Type:      types.TypePredicted,
			Metadata:  entry.Metadata,
		})
		warmed++
	}
	return warmed
}

// Stats returns a snapshot across all tiers. The overall hit rate
// counts a lookup as a hit if any tier served it.
func (c *Coordinator) Stats() types.CacheStats {
	stats := types.CacheStats{
		Memory:      c.memory.Stats(),
		TrackedKeys: c.tracker.Len(),
	}
	if c.durable != nil {
		stats.Durable = c.durable.Stats()
	}
	if c.remote != nil {
		stats.Remote = c.remote.Stats()
	}

	hits := stats.Memory.Hits + stats.Durable.Hits + stats.Remote.Hits
	misses := stats.Memory.Misses + stats.Durable.Misses + stats.Remote.Misses
	if hits+misses > 0 {
		stats.OverallRate = float64(hits) / float64(hits+misses)
	}
	return stats
}

// Flush blocks until all pending write-behind operations finish.
func (c *Coordinator) Flush() {
	c.writes.Wait()
}

// Close stops the maintenance loops, drains pending writes, and closes
// the lower tiers.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.writes.Wait()

	var firstErr error
	if c.durable != nil {
		if err := c.durable.Close(); err != nil {
			firstErr = err
		}
	}
	if c.remote != nil {
		if err := c.remote.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Coordinator) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Maintenance.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			removed := c.Cleanup(context.Background())
			if removed > 0 {
				c.logger.Debug("cleanup pass removed expired entries", "count", removed)
			}
			c.metrics.UpdateTierSize("memory", c.memory.Size())
			if c.durable != nil {
				c.metrics.UpdateTierSize("durable", c.durable.Stats().Size)
			}
		}
	}
}

func (c *Coordinator) predictionLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Maintenance.PredictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			warmed := c.Prewarm(context.Background())
			if warmed > 0 {
				c.logger.Debug("prewarmed predicted keys", "count", warmed)
			}
		}
	}
}
