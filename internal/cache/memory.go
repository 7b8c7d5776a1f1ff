package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

// MemoryTier is the fast in-process tier: a map plus a write-ordered
// list with a hard capacity bound. Eviction is LRU by write time —
// reads do not refresh an entry's position, so the oldest write is
// always the first to go.
type MemoryTier struct {
	mu          sync.Mutex
	maxSize     int64
	currentSize int64
	items       map[string]*memoryItem
	order       *list.List // front = newest write
	stats       types.TierStats

	now func() time.Time
}

type memoryItem struct {
	entry   *types.CacheEntry
	size    int64
	element *list.Element
}

// NewMemoryTier creates the fast tier with the given capacity in bytes.
func NewMemoryTier(maxSize int64) *MemoryTier {
	return &MemoryTier{
		maxSize: maxSize,
		items:   make(map[string]*memoryItem),
		order:   list.New(),
		stats:   types.TierStats{Capacity: maxSize},
		now:     time.Now,
	}
}

// Set stores the entry, overwriting any previous value for its key, and
// evicts oldest-written entries until the tier fits its capacity again.
func (m *MemoryTier) Set(entry *types.CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := entry.EstimatedSize()

	if existing, ok := m.items[entry.Key]; ok {
		m.currentSize -= existing.size
		m.order.Remove(existing.element)
		delete(m.items, entry.Key)
	}

	element := m.order.PushFront(entry.Key)
	m.items[entry.Key] = &memoryItem{
		entry:   entry,
		size:    size,
		element: element,
	}
	m.currentSize += size

	m.ensureSpace()
}

// Get returns the payload entry for key, or nil on a miss. An entry
// found past its TTL is deleted before the miss is reported.
func (m *MemoryTier) Get(key string) *types.CacheEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		m.stats.Misses++
		m.updateHitRate()
		return nil
	}

	if item.entry.Expired(m.now()) {
		m.removeLocked(key)
		m.stats.Misses++
		m.updateHitRate()
		return nil
	}

	m.stats.Hits++
	m.updateHitRate()
	return item.entry
}

// Has reports whether a live entry exists for key without touching the
// hit/miss counters. An expired entry is deleted as a side effect.
func (m *MemoryTier) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		return false
	}
	if item.entry.Expired(m.now()) {
		m.removeLocked(key)
		return false
	}
	return true
}

// Delete removes the entry for key, reporting whether it was present.
func (m *MemoryTier) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[key]; !ok {
		return false
	}
	m.removeLocked(key)
	return true
}

// Clear removes every entry.
func (m *MemoryTier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*memoryItem)
	m.order.Init()
	m.currentSize = 0
}

// ClearType removes all entries of the given resource type, reporting
// how many were removed.
func (m *MemoryTier) ClearType(t types.ResourceType) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key, item := range m.items {
		if item.entry.Type == t {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		m.removeLocked(key)
	}
	return len(keys)
}

// SweepExpired removes all entries past their TTL, reporting how many
// were removed.
func (m *MemoryTier) SweepExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var keys []string
	for key, item := range m.items {
		if item.entry.Expired(now) {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		m.removeLocked(key)
	}
	return len(keys)
}

// Len returns the number of entries currently held.
func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Size returns the current estimated size in bytes.
func (m *MemoryTier) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSize
}

// Stats returns a snapshot of the tier statistics.
func (m *MemoryTier) Stats() types.TierStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.Size = m.currentSize
	if m.maxSize > 0 {
		stats.Utilization = float64(m.currentSize) / float64(m.maxSize)
	}
	return stats
}

// ensureSpace evicts oldest-written entries until the tier fits its
// capacity or is empty. Callers must hold the lock.
func (m *MemoryTier) ensureSpace() {
	for m.currentSize > m.maxSize && m.order.Len() > 0 {
		oldest := m.order.Back()
		if oldest == nil {
			return
		}
		m.removeLocked(oldest.Value.(string))
		m.stats.Evictions++
	}
}

func (m *MemoryTier) removeLocked(key string) {
	item, ok := m.items[key]
	if !ok {
		return
	}
	m.order.Remove(item.element)
	delete(m.items, key)
	m.currentSize -= item.size
}

func (m *MemoryTier) updateHitRate() {
	total := m.stats.Hits + m.stats.Misses
	if total > 0 {
		m.stats.HitRate = float64(m.stats.Hits) / float64(total)
	}
}
