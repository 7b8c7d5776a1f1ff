// Package config defines the cache configuration model: YAML-backed
// structs with defaults, TIERCACHE_* environment overrides, validation,
// and human-readable size parsing. Every tunable the coordinator and
// tiers consume (capacities, default TTL, persistence type lists,
// tracker weights and thresholds, maintenance intervals) lives here so
// nothing heuristic is hardcoded at the call sites.
package config
