package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/pkg/types"
)

// AccessPattern holds the tracked history for one key.
type AccessPattern struct {
	Key           string             `json:"key"`
	Type          types.ResourceType `json:"type"`
	Count         int64              `json:"count"`
	FirstSeen     time.Time          `json:"first_seen"`
	LastAccess    time.Time          `json:"last_access"`
	Importance    float64            `json:"importance"`
	PredictedNext time.Time          `json:"predicted_next"`
}

// Tracker records per-key access history and scores each key's
// importance as a weighted blend of recency, access rate, and total
// count. When the tracked set grows past its limit it is pruned back
// to the most important keys.
type Tracker struct {
	mu       sync.Mutex
	patterns map[string]*AccessPattern
	cfg      config.TrackerConfig

	now func() time.Time
}

// NewTracker creates a tracker with the given scoring configuration.
func NewTracker(cfg config.TrackerConfig) *Tracker {
	return &Tracker{
		patterns: make(map[string]*AccessPattern),
		cfg:      cfg,
		now:      time.Now,
	}
}

// RecordAccess notes one access to key. A key seen for the first time
// starts at full importance; established keys are rescored from their
// history.
func (t *Tracker) RecordAccess(key string, resourceType types.ResourceType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	pattern, ok := t.patterns[key]
	if !ok {
		t.patterns[key] = &AccessPattern{
			Key:        key,
			Type:       resourceType,
			Count:      1,
			FirstSeen:  now,
			LastAccess: now,
			Importance: 1.0,
		}
		if len(t.patterns) > t.cfg.MaxTracked {
			t.pruneLocked()
		}
		return
	}

	pattern.Count++
	pattern.LastAccess = now
	if resourceType != types.TypeUnknown {
		pattern.Type = resourceType
	}
	pattern.Importance = t.scoreLocked(pattern, now)
}

// Importance returns the current importance score for key, or zero if
// the key is not tracked.
func (t *Tracker) Importance(key string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	pattern, ok := t.patterns[key]
	if !ok {
		return 0
	}
	return t.scoreLocked(pattern, t.now())
}

// Pattern returns a copy of the tracked pattern for key.
func (t *Tracker) Pattern(key string) (AccessPattern, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pattern, ok := t.patterns[key]
	if !ok {
		return AccessPattern{}, false
	}
	return *pattern, true
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.patterns)
}

// Forget drops the tracked pattern for key.
func (t *Tracker) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.patterns, key)
}

// Predict recomputes each key's predicted next access from its average
// inter-access interval and returns copies of all patterns that have
// enough history to predict from.
func (t *Tracker) Predict() []AccessPattern {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []AccessPattern
	for _, pattern := range t.patterns {
		if pattern.Count < 2 {
			continue
		}
		interval := pattern.LastAccess.Sub(pattern.FirstSeen) / time.Duration(pattern.Count-1)
		pattern.PredictedNext = pattern.LastAccess.Add(interval)
		out = append(out, *pattern)
	}
	return out
}

// UpcomingKeys returns the keys predicted to be accessed within the
// given window from now, most imminent first.
func (t *Tracker) UpcomingKeys(window time.Duration) []AccessPattern {
	predictions := t.Predict()

	now := t.now()
	deadline := now.Add(window)

	var upcoming []AccessPattern
	for _, p := range predictions {
		if p.PredictedNext.After(now) && p.PredictedNext.Before(deadline) {
			upcoming = append(upcoming, p)
		}
	}

	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].PredictedNext.Before(upcoming[j].PredictedNext)
	})
	return upcoming
}

// scoreLocked computes the importance of a pattern at the given time:
// a weighted blend of how recently the key was accessed, how fast it
// is being accessed, and how often it has been accessed in total, each
// term normalized to [0, 1].
func (t *Tracker) scoreLocked(p *AccessPattern, now time.Time) float64 {
	recency := 1.0 - float64(now.Sub(p.LastAccess))/float64(t.cfg.RecencyWindow)
	recency = clamp01(recency)

	var frequency float64
	if lifetime := now.Sub(p.FirstSeen).Seconds(); lifetime > 0 {
		rate := float64(p.Count) / lifetime
		frequency = clamp01(rate / t.cfg.FrequencySaturation)
	} else {
		frequency = 1.0
	}

	count := clamp01(float64(p.Count) / float64(t.cfg.CountSaturation))

	score := t.cfg.RecencyWeight*recency +
		t.cfg.FrequencyWeight*frequency +
		t.cfg.CountWeight*count
	return clamp01(score)
}

// pruneLocked rescores every pattern and keeps only the most important
// RetainOnPrune of them.
func (t *Tracker) pruneLocked() {
	now := t.now()

	ranked := make([]*AccessPattern, 0, len(t.patterns))
	for _, pattern := range t.patterns {
		pattern.Importance = t.scoreLocked(pattern, now)
		ranked = append(ranked, pattern)
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})

	keep := t.cfg.RetainOnPrune
	if keep > len(ranked) {
		keep = len(ranked)
	}

	kept := make(map[string]*AccessPattern, keep)
	for _, pattern := range ranked[:keep] {
		kept[pattern.Key] = pattern
	}
	t.patterns = kept
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
