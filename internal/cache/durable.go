package cache

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/pkg/types"
)

// ErrClosed is returned by durable tier operations after Close.
var ErrClosed = errors.New("durable tier is closed")

const durableIndexFile = "index.json"

// DurableTier is the persistent local tier: one gzip-compressed file
// per entry under a directory, with a JSON index describing keys, TTLs,
// types and checksums. The index survives restarts; entries whose data
// file is missing or corrupted are dropped on access.
type DurableTier struct {
	mu          sync.RWMutex
	directory   string
	maxSize     int64
	currentSize int64
	index       map[string]*durableItem
	stats       types.TierStats
	logger      *slog.Logger

	syncInterval time.Duration
	dirty        bool
	stopCh       chan struct{}
	closed       bool
	wg           sync.WaitGroup

	now func() time.Time
}

// durableItem is the index record for one persisted entry.
type durableItem struct {
	Key           string             `json:"key"`
	FilePath      string             `json:"file_path"`
	Kind          types.PayloadKind  `json:"kind"`
	Type          types.ResourceType `json:"type"`
	CreatedAt     time.Time          `json:"created_at"`
	TTL           time.Duration      `json:"ttl"`
	StoredSize    int64              `json:"stored_size"`
	EstimatedSize int64              `json:"estimated_size"`
	Checksum      string             `json:"checksum"`
	Metadata      map[string]string  `json:"metadata,omitempty"`
}

func (it *durableItem) expired(now time.Time) bool {
	if it.TTL <= 0 {
		return false
	}
	return now.Sub(it.CreatedAt) > it.TTL
}

// NewDurableTier creates the durable tier. No I/O happens until Init.
func NewDurableTier(cfg config.DurableConfig, logger *slog.Logger) *DurableTier {
	if logger == nil {
		logger = slog.Default()
	}
	syncInterval := cfg.SyncInterval
	if syncInterval <= 0 {
		syncInterval = time.Minute
	}

	return &DurableTier{
		directory:    cfg.Directory,
		maxSize:      cfg.MaxSize,
		index:        make(map[string]*durableItem),
		stats:        types.TierStats{Capacity: cfg.MaxSize},
		logger:       logger,
		syncInterval: syncInterval,
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}
}

// Init creates the cache directory, loads any existing index, and
// starts the background index sync loop.
func (d *DurableTier) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.directory, 0750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.loadIndexLocked(); err != nil {
		return fmt.Errorf("failed to load cache index: %w", err)
	}

	d.wg.Add(1)
	go d.syncLoop()

	return nil
}

// Get returns the entry for key, or (nil, nil) on a clean miss. Expired
// or corrupted entries are deleted before the miss is reported.
func (d *DurableTier) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, ErrClosed
	}
	item, ok := d.index[key]
	d.mu.RUnlock()

	if !ok {
		d.recordMiss()
		return nil, nil
	}

	if item.expired(d.now()) {
		d.removeEntry(key)
		d.recordMiss()
		return nil, nil
	}

	data, err := d.readFromFile(item)
	if err != nil {
		// Missing or corrupted data file; drop the index entry so the
		// next access is a clean miss.
		d.removeEntry(key)
		d.recordMiss()
		return nil, fmt.Errorf("read entry %q: %w", key, err)
	}

	payload, err := types.DecodePayload(item.Kind, data)
	if err != nil {
		d.removeEntry(key)
		d.recordMiss()
		return nil, fmt.Errorf("decode entry %q: %w", key, err)
	}

	d.recordHit()

	return &types.CacheEntry{
		Key:       item.Key,
		Payload:   payload,
		CreatedAt: item.CreatedAt,
		TTL:       item.TTL,
		Type:      item.Type,
		Metadata:  item.Metadata,
	}, nil
}

// Put persists the entry, overwriting any previous value for its key.
func (d *DurableTier) Put(ctx context.Context, entry *types.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := entry.Payload.Encode()
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", entry.Key, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	if existing, ok := d.index[entry.Key]; ok {
		_ = os.Remove(existing.FilePath)
		d.currentSize -= existing.StoredSize
		delete(d.index, entry.Key)
	}

	item := &durableItem{
		Key:           entry.Key,
		FilePath:      d.entryFilePath(entry.Key),
		Kind:          entry.Payload.Kind(),
		Type:          entry.Type,
		CreatedAt:     entry.CreatedAt,
		TTL:           entry.TTL,
		EstimatedSize: entry.EstimatedSize(),
		Checksum:      checksum(data),
		Metadata:      entry.Metadata,
	}

	storedSize, err := d.writeToFile(item, data)
	if err != nil {
		return fmt.Errorf("write entry %q: %w", entry.Key, err)
	}
	item.StoredSize = storedSize

	d.index[entry.Key] = item
	d.currentSize += storedSize
	d.dirty = true

	d.evictIfNeededLocked()

	return nil
}

// Delete removes the entry for key if present.
func (d *DurableTier) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.removeEntryLocked(key)
	return nil
}

// Clear removes every entry and its data file.
func (d *DurableTier) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	for _, item := range d.index {
		_ = os.Remove(item.FilePath)
	}
	d.index = make(map[string]*durableItem)
	d.currentSize = 0
	d.dirty = true
	return nil
}

// ScanAndDeleteExpired removes all entries past their TTL.
func (d *DurableTier) ScanAndDeleteExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}

	now := d.now()
	var keys []string
	for key, item := range d.index {
		if item.expired(now) {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		d.removeEntryLocked(key)
	}
	return len(keys), nil
}

// ScanAndDeleteByType removes all entries of the given resource type.
func (d *DurableTier) ScanAndDeleteByType(ctx context.Context, t types.ResourceType) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}

	var keys []string
	for key, item := range d.index {
		if item.Type == t {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		d.removeEntryLocked(key)
	}
	return len(keys), nil
}

// Stats returns a snapshot of the tier statistics.
func (d *DurableTier) Stats() types.TierStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := d.stats
	stats.Size = d.currentSize
	if d.maxSize > 0 {
		stats.Utilization = float64(d.currentSize) / float64(d.maxSize)
	}
	return stats
}

// Close stops the sync loop and writes the index a final time.
func (d *DurableTier) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saveIndexLocked()
}

// Helper methods

func (d *DurableTier) entryFilePath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(d.directory, fmt.Sprintf("%x.cache", hash[:8]))
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

func (d *DurableTier) writeToFile(item *durableItem, data []byte) (int64, error) {
	file, err := os.Create(item.FilePath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()

	gz := gzip.NewWriter(file)
	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		_ = os.Remove(item.FilePath)
		return 0, err
	}
	if err := gz.Close(); err != nil {
		_ = os.Remove(item.FilePath)
		return 0, err
	}

	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

func (d *DurableTier) readFromFile(item *durableItem) ([]byte, error) {
	file, err := os.Open(item.FilePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = gz.Close() }()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}

	if checksum(data) != item.Checksum {
		return nil, fmt.Errorf("checksum mismatch")
	}

	return data, nil
}

func (d *DurableTier) loadIndexLocked() error {
	indexPath := filepath.Join(d.directory, durableIndexFile)

	file, err := os.Open(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh cache
		}
		return err
	}
	defer func() { _ = file.Close() }()

	var items map[string]*durableItem
	if err := json.NewDecoder(file).Decode(&items); err != nil {
		return err
	}

	d.currentSize = 0
	for key, item := range items {
		if _, err := os.Stat(item.FilePath); os.IsNotExist(err) {
			continue // data file vanished since last sync
		}
		d.index[key] = item
		d.currentSize += item.StoredSize
	}

	return nil
}

func (d *DurableTier) saveIndexLocked() error {
	indexPath := filepath.Join(d.directory, durableIndexFile)
	tmpPath := indexPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(file).Encode(d.index); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	// Atomic replace
	if err := os.Rename(tmpPath, indexPath); err != nil {
		return err
	}
	d.dirty = false
	return nil
}

func (d *DurableTier) evictIfNeededLocked() {
	for d.currentSize > d.maxSize && len(d.index) > 0 {
		var oldestKey string
		var oldestTime time.Time

		first := true
		for key, item := range d.index {
			if first || item.CreatedAt.Before(oldestTime) {
				oldestKey = key
				oldestTime = item.CreatedAt
				first = false
			}
		}

		d.removeEntryLocked(oldestKey)
		d.stats.Evictions++
	}
}

func (d *DurableTier) removeEntry(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeEntryLocked(key)
}

func (d *DurableTier) removeEntryLocked(key string) {
	item, ok := d.index[key]
	if !ok {
		return
	}
	_ = os.Remove(item.FilePath)
	delete(d.index, key)
	d.currentSize -= item.StoredSize
	d.dirty = true
}

func (d *DurableTier) recordHit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Hits++
	d.updateHitRateLocked()
}

func (d *DurableTier) recordMiss() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Misses++
	d.updateHitRateLocked()
}

func (d *DurableTier) updateHitRateLocked() {
	total := d.stats.Hits + d.stats.Misses
	if total > 0 {
		d.stats.HitRate = float64(d.stats.Hits) / float64(total)
	}
}

func (d *DurableTier) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.mu.Lock()
			if d.dirty {
				if err := d.saveIndexLocked(); err != nil {
					d.logger.Warn("durable tier index sync failed", "error", err)
				}
			}
			d.mu.Unlock()
		}
	}
}
