// Package cache implements the three-tier cache behind the public API.
//
// The tiers, fastest first:
//
//	MemoryTier  — in-process map with LRU-by-write-time eviction
//	DurableTier — gzip files plus a JSON index on local disk
//	RemoteTier  — Redis-backed store for cached network responses
//
// The Coordinator fronts all three: reads walk the tiers in order and
// promote lower-tier hits upward, writes land in memory synchronously
// and trickle down asynchronously under the persistence Policy. The
// Tracker watches access patterns and feeds the predictive prewarm
// pass. Lower-tier failures never reach the caller; a circuit breaker
// per tier keeps a broken backend from slowing the hot path.
package cache
