package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tiercache/tiercache/internal/config"
)

// TestNewCollector tests collector creation
func TestNewCollector(t *testing.T) {
	c, err := NewCollector(config.MetricsConfig{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}
	if c.Handler() == nil {
		t.Error("enabled collector should expose a handler")
	}
}

// TestNewCollector_Disabled tests the disabled no-op path
func TestNewCollector_Disabled(t *testing.T) {
	c, err := NewCollector(config.MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}
	if c.Handler() != nil {
		t.Error("disabled collector should not expose a handler")
	}

	// None of these should panic
	c.RecordOperation("get", time.Millisecond, 100, true)
	c.RecordCacheHit("memory", 100)
	c.RecordCacheMiss("durable", 0)
	c.UpdateTierSize("memory", 1024)
}

// TestCollector_RecordOperation tests operation aggregation
func TestCollector_RecordOperation(t *testing.T) {
	c, err := NewCollector(config.MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordOperation("get", 10*time.Millisecond, 100, true)
	c.RecordOperation("get", 20*time.Millisecond, 200, true)
	c.RecordOperation("get", 30*time.Millisecond, 0, false)
	c.RecordOperation("set", 5*time.Millisecond, 50, true)

	stats := c.GetOperationStats()
	get := stats["get"]
	if get.Count != 3 {
		t.Errorf("expected 3 get operations, got %d", get.Count)
	}
	if get.Errors != 1 {
		t.Errorf("expected 1 get error, got %d", get.Errors)
	}
	if get.AvgDuration != 20*time.Millisecond {
		t.Errorf("expected avg duration 20ms, got %v", get.AvgDuration)
	}
	if stats["set"].Count != 1 {
		t.Errorf("expected 1 set operation, got %d", stats["set"].Count)
	}
}

// TestCollector_Exposition tests that metrics appear on the handler
func TestCollector_Exposition(t *testing.T) {
	c, err := NewCollector(config.MetricsConfig{Enabled: true, Namespace: "tiercache"})
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordCacheHit("memory", 64)
	c.RecordCacheMiss("durable", 0)
	c.UpdateTierSize("memory", 2048)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Result().Body)
	text := string(body)

	for _, want := range []string{
		"tiercache_requests_total",
		`tier="memory"`,
		`result="hit"`,
		"tiercache_tier_size_bytes",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

// TestCollector_ResetStats tests clearing aggregates
func TestCollector_ResetStats(t *testing.T) {
	c, err := NewCollector(config.MetricsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordOperation("get", time.Millisecond, 1, true)
	c.ResetStats()

	if len(c.GetOperationStats()) != 0 {
		t.Error("expected empty stats after reset")
	}
}
