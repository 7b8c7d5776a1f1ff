package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/pkg/types"
)

// RemoteTier is the network-response tier backed by Redis. Entries are
// stored as JSON wire envelopes under a configurable key prefix, with
// the Redis-side expiry mirroring the entry TTL. Every failure surfaces
// as an error for the coordinator to absorb as a miss.
type RemoteTier struct {
	pool   *redis.Pool
	prefix string

	mu    sync.Mutex
	stats types.TierStats

	now func() time.Time
}

// NewRemoteTier creates the remote tier with a connection pool against
// the configured Redis address. No connection is made until first use.
func NewRemoteTier(cfg config.RemoteConfig) *RemoteTier {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 2 * time.Second
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 4
	}

	pool := &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", cfg.Address,
				redis.DialConnectTimeout(dialTimeout),
				redis.DialReadTimeout(readTimeout),
				redis.DialWriteTimeout(readTimeout),
			)
		},
	}

	return &RemoteTier{
		pool:   pool,
		prefix: cfg.KeyPrefix,
		now:    time.Now,
	}
}

// Get returns the cached response for key, or (nil, nil) on a clean
// miss. An entry found past its TTL is deleted before the miss is
// reported; Redis-side expiry usually gets there first.
func (r *RemoteTier) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote tier connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	data, err := redis.Bytes(conn.Do("GET", r.prefix+key))
	if err == redis.ErrNil {
		r.recordMiss()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remote tier get %q: %w", key, err)
	}

	var wire types.WireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		_, _ = conn.Do("DEL", r.prefix+key)
		r.recordMiss()
		return nil, fmt.Errorf("remote tier decode %q: %w", key, err)
	}

	entry, err := types.FromWire(&wire)
	if err != nil {
		_, _ = conn.Do("DEL", r.prefix+key)
		r.recordMiss()
		return nil, fmt.Errorf("remote tier decode %q: %w", key, err)
	}

	if entry.Expired(r.now()) {
		_, _ = conn.Do("DEL", r.prefix+key)
		r.recordMiss()
		return nil, nil
	}

	r.recordHit()
	return entry, nil
}

// Put stores the entry under key with a Redis expiry matching its TTL.
// Entries without a TTL are stored without expiry.
func (r *RemoteTier) Put(ctx context.Context, key string, entry *types.CacheEntry) error {
	wire, err := entry.ToWire()
	if err != nil {
		return fmt.Errorf("remote tier encode %q: %w", key, err)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("remote tier encode %q: %w", key, err)
	}

	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("remote tier connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if entry.TTL > 0 {
		seconds := int64(entry.TTL / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		_, err = conn.Do("SETEX", r.prefix+key, seconds, data)
	} else {
		_, err = conn.Do("SET", r.prefix+key, data)
	}
	if err != nil {
		return fmt.Errorf("remote tier put %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key if present.
func (r *RemoteTier) Delete(ctx context.Context, key string) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("remote tier connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Do("DEL", r.prefix+key); err != nil {
		return fmt.Errorf("remote tier delete %q: %w", key, err)
	}
	return nil
}

// Clear removes every entry under the tier's key prefix, leaving other
// users of the same Redis instance untouched.
func (r *RemoteTier) Clear(ctx context.Context) error {
	conn, err := r.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("remote tier connect: %w", err)
	}
	defer func() { _ = conn.Close() }()

	cursor := 0
	for {
		values, err := redis.Values(conn.Do("SCAN", cursor, "MATCH", r.prefix+"*", "COUNT", 100))
		if err != nil {
			return fmt.Errorf("remote tier scan: %w", err)
		}

		var keys []string
		if _, err := redis.Scan(values, &cursor, &keys); err != nil {
			return fmt.Errorf("remote tier scan: %w", err)
		}

		for _, key := range keys {
			if _, err := conn.Do("DEL", key); err != nil {
				return fmt.Errorf("remote tier delete %q: %w", key, err)
			}
		}

		if cursor == 0 {
			return nil
		}
	}
}

// Stats returns a snapshot of the tier statistics. Size and capacity
// are not tracked; the backing Redis owns its own memory accounting.
func (r *RemoteTier) Stats() types.TierStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close releases the connection pool.
func (r *RemoteTier) Close() error {
	return r.pool.Close()
}

func (r *RemoteTier) recordHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Hits++
	r.updateHitRateLocked()
}

func (r *RemoteTier) recordMiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Misses++
	r.updateHitRateLocked()
}

func (r *RemoteTier) updateHitRateLocked() {
	total := r.stats.Hits + r.stats.Misses
	if total > 0 {
		r.stats.HitRate = float64(r.stats.Hits) / float64(total)
	}
}
