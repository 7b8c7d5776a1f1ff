package cache

import (
	"testing"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

func newTestEntry(key string, payload types.Payload, ttl time.Duration) *types.CacheEntry {
	return &types.CacheEntry{
		Key:       key,
		Payload:   payload,
		CreatedAt: time.Now(),
		TTL:       ttl,
		Type:      types.TypeBinary,
	}
}

// TestMemoryTier_SetGet tests basic round trips
func TestMemoryTier_SetGet(t *testing.T) {
	m := NewMemoryTier(1024)

	entry := newTestEntry("key1", types.BytesPayload("value1"), time.Minute)
	m.Set(entry)

	got := m.Get("key1")
	if got == nil {
		t.Fatal("expected hit for key1")
	}
	if string(got.Payload.(types.BytesPayload)) != "value1" {
		t.Errorf("unexpected payload %q", got.Payload)
	}

	if m.Get("missing") != nil {
		t.Error("expected miss for unknown key")
	}
}

// TestMemoryTier_Expiration tests lazy TTL expiry on read
func TestMemoryTier_Expiration(t *testing.T) {
	m := NewMemoryTier(1024)

	current := time.Now()
	m.now = func() time.Time { return current }

	entry := &types.CacheEntry{
		Key:       "short",
		Payload:   types.BytesPayload("v"),
		CreatedAt: current,
		TTL:       50 * time.Millisecond,
	}
	m.Set(entry)

	if m.Get("short") == nil {
		t.Fatal("entry should be live before its TTL")
	}

	current = current.Add(100 * time.Millisecond)

	if m.Get("short") != nil {
		t.Error("entry should have expired")
	}
	if m.Len() != 0 {
		t.Error("expired entry should be deleted on read")
	}
}

// TestMemoryTier_NoTTLNeverExpires tests that TTL <= 0 means no expiry
func TestMemoryTier_NoTTLNeverExpires(t *testing.T) {
	m := NewMemoryTier(1024)

	current := time.Now()
	m.now = func() time.Time { return current }

	m.Set(newTestEntry("forever", types.BytesPayload("v"), 0))

	current = current.Add(1000 * time.Hour)

	if m.Get("forever") == nil {
		t.Error("entry without TTL should never expire")
	}
}

// TestMemoryTier_EvictionByWriteOrder tests that the oldest write is
// evicted first regardless of read activity
func TestMemoryTier_EvictionByWriteOrder(t *testing.T) {
	m := NewMemoryTier(100)

	m.Set(newTestEntry("e1", types.BytesPayload(make([]byte, 40)), time.Minute))
	m.Set(newTestEntry("e2", types.BytesPayload(make([]byte, 40)), time.Minute))

	// Reading e1 must not protect it: eviction is by write time.
	if m.Get("e1") == nil {
		t.Fatal("expected hit for e1")
	}

	m.Set(newTestEntry("e3", types.BytesPayload(make([]byte, 40)), time.Minute))

	if m.Get("e1") != nil {
		t.Error("e1 should have been evicted as the oldest write")
	}
	if m.Get("e2") == nil {
		t.Error("e2 should survive")
	}
	if m.Get("e3") == nil {
		t.Error("e3 should survive")
	}
	if m.Size() != 80 {
		t.Errorf("expected size 80 after eviction, got %d", m.Size())
	}

	stats := m.Stats()
	if stats.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", stats.Evictions)
	}
}

// TestMemoryTier_OverwriteAdjustsSize tests size accounting on overwrite
func TestMemoryTier_OverwriteAdjustsSize(t *testing.T) {
	m := NewMemoryTier(1024)

	m.Set(newTestEntry("key", types.BytesPayload(make([]byte, 100)), time.Minute))
	if m.Size() != 100 {
		t.Fatalf("expected size 100, got %d", m.Size())
	}

	m.Set(newTestEntry("key", types.BytesPayload(make([]byte, 30)), time.Minute))
	if m.Size() != 30 {
		t.Errorf("expected size 30 after overwrite, got %d", m.Size())
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", m.Len())
	}
}

// TestMemoryTier_OversizedEntry tests that an entry larger than the
// whole tier does not wedge it
func TestMemoryTier_OversizedEntry(t *testing.T) {
	m := NewMemoryTier(50)

	m.Set(newTestEntry("small", types.BytesPayload(make([]byte, 10)), time.Minute))
	m.Set(newTestEntry("huge", types.BytesPayload(make([]byte, 200)), time.Minute))

	if m.Size() > 50 && m.Len() > 0 {
		// The oversized entry itself gets evicted immediately.
		t.Errorf("tier over capacity: size=%d len=%d", m.Size(), m.Len())
	}

	m.Set(newTestEntry("next", types.BytesPayload(make([]byte, 10)), time.Minute))
	if m.Get("next") == nil {
		t.Error("tier should keep working after an oversized insert")
	}
}

// TestMemoryTier_Delete tests removal
func TestMemoryTier_Delete(t *testing.T) {
	m := NewMemoryTier(1024)

	m.Set(newTestEntry("key", types.BytesPayload("v"), time.Minute))

	if !m.Delete("key") {
		t.Error("delete should report the key was present")
	}
	if m.Delete("key") {
		t.Error("second delete should report absence")
	}
	if m.Size() != 0 {
		t.Errorf("expected size 0 after delete, got %d", m.Size())
	}
}

// TestMemoryTier_ClearType tests type-scoped clearing
func TestMemoryTier_ClearType(t *testing.T) {
	m := NewMemoryTier(1024)

	for _, tc := range []struct {
		key string
		typ types.ResourceType
	}{
		{"a", types.TypeImage},
		{"b", types.TypeImage},
		{"c", types.TypeJSON},
	} {
		entry := newTestEntry(tc.key, types.BytesPayload("v"), time.Minute)
		entry.Type = tc.typ
		m.Set(entry)
	}

	removed := m.ClearType(types.TypeImage)
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if m.Get("a") != nil || m.Get("b") != nil {
		t.Error("image entries should be gone")
	}
	if m.Get("c") == nil {
		t.Error("json entry should survive")
	}
}

// TestMemoryTier_SweepExpired tests the proactive expiry pass
func TestMemoryTier_SweepExpired(t *testing.T) {
	m := NewMemoryTier(1024)

	current := time.Now()
	m.now = func() time.Time { return current }

	m.Set(&types.CacheEntry{Key: "a", Payload: types.BytesPayload("v"), CreatedAt: current, TTL: time.Second})
	m.Set(&types.CacheEntry{Key: "b", Payload: types.BytesPayload("v"), CreatedAt: current, TTL: time.Hour})

	current = current.Add(time.Minute)

	if removed := m.SweepExpired(); removed != 1 {
		t.Errorf("expected 1 swept, got %d", removed)
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 entry left, got %d", m.Len())
	}
}

// TestMemoryTier_Stats tests hit/miss accounting
func TestMemoryTier_Stats(t *testing.T) {
	m := NewMemoryTier(1024)

	m.Set(newTestEntry("key", types.BytesPayload("v"), time.Minute))

	m.Get("key")
	m.Get("key")
	m.Get("missing")

	stats := m.Stats()
	if stats.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if want := 2.0 / 3.0; stats.HitRate != want {
		t.Errorf("expected hit rate %f, got %f", want, stats.HitRate)
	}
	if stats.Capacity != 1024 {
		t.Errorf("expected capacity 1024, got %d", stats.Capacity)
	}
}
