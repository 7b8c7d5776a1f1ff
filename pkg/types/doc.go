// Package types defines the value objects and adapter interfaces shared
// by every cache tier: the CacheEntry model, the Payload tagged union
// with its per-variant size heuristics, the WireEntry persistence
// envelope, per-tier statistics, and the DurableStore/ResponseStore/
// MetricsCollector contracts the coordinator consumes.
package types
