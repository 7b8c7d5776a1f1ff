package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tiercache/tiercache/internal/config"
)

// Collector implements types.MetricsCollector on top of Prometheus.
// When disabled, every method is a no-op so the coordinator never has
// to branch on instrumentation.
type Collector struct {
	mu       sync.RWMutex
	config   config.MetricsConfig
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheRequests     *prometheus.CounterVec
	tierSizeGauge     *prometheus.GaugeVec

	// Internal tracking for GetOperationStats
	operations map[string]*OperationStats
	lastReset  time.Time
}

// OperationStats tracks aggregate metrics for one operation type.
type OperationStats struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// NewCollector creates a new metrics collector.
func NewCollector(cfg config.MetricsConfig) (*Collector, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "tiercache"
	}

	c := &Collector{
		config:     cfg,
		operations: make(map[string]*OperationStats),
		lastReset:  time.Now(),
	}

	if !cfg.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()

	if err := c.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return c, nil
}

// Handler returns an HTTP handler serving the Prometheus exposition
// format, for the embedding application to mount wherever it likes.
// Returns nil when the collector is disabled.
func (c *Collector) Handler() http.Handler {
	if !c.config.Enabled {
		return nil
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordOperation records one coordinator operation with its outcome.
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	stats, exists := c.operations[operation]
	if !exists {
		stats = &OperationStats{}
		c.operations[operation] = stats
	}
	stats.Count++
	stats.TotalDuration += duration
	stats.TotalSize += size
	if !success {
		stats.Errors++
	}
	stats.AvgDuration = time.Duration(int64(stats.TotalDuration) / stats.Count)
	c.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    status,
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())
}

// RecordCacheHit records a hit at the named tier.
func (c *Collector) RecordCacheHit(tier string, size int64) {
	if !c.config.Enabled {
		return
	}
	c.cacheRequests.With(prometheus.Labels{"tier": tier, "result": "hit"}).Inc()
}

// RecordCacheMiss records a miss at the named tier.
func (c *Collector) RecordCacheMiss(tier string, size int64) {
	if !c.config.Enabled {
		return
	}
	c.cacheRequests.With(prometheus.Labels{"tier": tier, "result": "miss"}).Inc()
}

// UpdateTierSize updates the size gauge for the named tier.
func (c *Collector) UpdateTierSize(tier string, size int64) {
	if !c.config.Enabled {
		return
	}
	c.tierSizeGauge.With(prometheus.Labels{"tier": tier}).Set(float64(size))
}

// GetOperationStats returns a copy of the per-operation aggregates.
func (c *Collector) GetOperationStats() map[string]OperationStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]OperationStats, len(c.operations))
	for name, stats := range c.operations {
		out[name] = *stats
	}
	return out
}

// ResetStats clears the per-operation aggregates.
func (c *Collector) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = make(map[string]*OperationStats)
	c.lastReset = time.Now()
}

func (c *Collector) initMetrics() {
	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.config.Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of cache operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15), // 100µs to ~1.6s
		},
		[]string{"operation"},
	)

	c.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Name:      "requests_total",
			Help:      "Cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	c.tierSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: c.config.Namespace,
			Name:      "tier_size_bytes",
			Help:      "Current size of each cache tier in bytes",
		},
		[]string{"tier"},
	)
}

func (c *Collector) registerMetrics() error {
	collectors := []prometheus.Collector{
		c.operationCounter,
		c.operationDuration,
		c.cacheRequests,
		c.tierSizeGauge,
	}

	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}
