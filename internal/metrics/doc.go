// Package metrics provides the Prometheus-backed implementation of the
// cache's instrumentation hook: operation counters and latency
// histograms, per-tier hit/miss counters, and tier size gauges. The
// collector is registered on its own registry and exposed through
// Handler so the embedding application decides where (and whether) to
// serve it.
package metrics
