package types

import (
	"context"
	"time"
)

// DurableStore is the adapter contract for the durable tier: a local
// key-value store that survives process restarts. Every operation is
// allowed to be slow and returns an error for the coordinator to absorb.
type DurableStore interface {
	// Init prepares the store (creates directories, loads indexes).
	Init(ctx context.Context) error

	// Get returns the entry for key, or (nil, nil) on a clean miss.
	// An entry found expired is deleted before the miss is reported.
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Put persists the entry, overwriting any previous value for its key.
	Put(ctx context.Context, entry *CacheEntry) error

	// Delete removes the entry for key if present.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// ScanAndDeleteExpired removes all entries past their TTL and
	// reports how many were removed.
	ScanAndDeleteExpired(ctx context.Context) (int, error)

	// ScanAndDeleteByType removes all entries of the given type and
	// reports how many were removed.
	ScanAndDeleteByType(ctx context.Context, t ResourceType) (int, error)

	Stats() TierStats
	Close() error
}

// ResponseStore is the adapter contract for the network-response tier.
// Keys are resource identifiers (URLs). Any underlying I/O failure is
// reported as an error; callers treat errors as misses.
type ResponseStore interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Put(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Stats() TierStats
	Close() error
}

// MetricsCollector is the timer/instrumentation hook the coordinator
// calls around its operations. A no-op implementation must be
// substitutable without behavior change.
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordCacheHit(tier string, size int64)
	RecordCacheMiss(tier string, size int64)
	UpdateTierSize(tier string, size int64)
}

// NoopCollector discards all measurements.
type NoopCollector struct{}

func (NoopCollector) RecordOperation(string, time.Duration, int64, bool) {}
func (NoopCollector) RecordCacheHit(string, int64)                       {}
func (NoopCollector) RecordCacheMiss(string, int64)                      {}
func (NoopCollector) UpdateTierSize(string, int64)                       {}
