package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/pkg/types"
)

func newTestTracker() *Tracker {
	return NewTracker(config.NewDefault().Tracker)
}

// TestTracker_NewKeyStartsAtFullImportance tests first-access scoring
func TestTracker_NewKeyStartsAtFullImportance(t *testing.T) {
	tr := newTestTracker()

	tr.RecordAccess("fresh", types.TypeImage)

	pattern, ok := tr.Pattern("fresh")
	if !ok {
		t.Fatal("pattern should exist after first access")
	}
	if pattern.Importance != 1.0 {
		t.Errorf("new key should start at importance 1.0, got %f", pattern.Importance)
	}
	if pattern.Count != 1 {
		t.Errorf("expected count 1, got %d", pattern.Count)
	}
	if pattern.Type != types.TypeImage {
		t.Errorf("unexpected type %q", pattern.Type)
	}
}

// TestTracker_ImportanceOrdering tests that a hot key outscores a key
// touched once long ago
func TestTracker_ImportanceOrdering(t *testing.T) {
	tr := newTestTracker()

	current := time.Now()
	tr.now = func() time.Time { return current }

	// Key B: one access, an hour ago.
	tr.RecordAccess("cold", types.TypeUnknown)

	// Key A: ten accesses over the last minute.
	current = current.Add(59 * time.Minute)
	for i := 0; i < 10; i++ {
		tr.RecordAccess("hot", types.TypeUnknown)
		current = current.Add(6 * time.Second)
	}

	hot := tr.Importance("hot")
	cold := tr.Importance("cold")
	if hot <= cold {
		t.Errorf("hot key should outscore cold key: hot=%f cold=%f", hot, cold)
	}
	if hot < 0 || hot > 1 || cold < 0 || cold > 1 {
		t.Errorf("importance must stay in [0,1]: hot=%f cold=%f", hot, cold)
	}
}

// TestTracker_RecencyDecays tests that importance falls as the last
// access recedes past the recency window
func TestTracker_RecencyDecays(t *testing.T) {
	tr := newTestTracker()

	current := time.Now()
	tr.now = func() time.Time { return current }

	tr.RecordAccess("key", types.TypeUnknown)
	tr.RecordAccess("key", types.TypeUnknown)

	fresh := tr.Importance("key")

	current = current.Add(48 * time.Hour)
	stale := tr.Importance("key")

	if stale >= fresh {
		t.Errorf("importance should decay: fresh=%f stale=%f", fresh, stale)
	}
}

// TestTracker_PruneKeepsMostImportant tests the bound on tracked keys
func TestTracker_PruneKeepsMostImportant(t *testing.T) {
	tr := NewTracker(config.TrackerConfig{
		MaxTracked:          100,
		RetainOnPrune:       50,
		RecencyWeight:       0.4,
		FrequencyWeight:     0.4,
		CountWeight:         0.2,
		RecencyWindow:       24 * time.Hour,
		FrequencySaturation: 0.1,
		CountSaturation:     100,
	})

	current := time.Now()
	tr.now = func() time.Time { return current }

	// Old one-shot keys that should be the first to go.
	for i := 0; i < 99; i++ {
		tr.RecordAccess(fmt.Sprintf("flood-%d", i), types.TypeUnknown)
	}

	// A recent hot key that must survive the prune.
	current = current.Add(20 * time.Hour)
	for i := 0; i < 50; i++ {
		tr.RecordAccess("keeper", types.TypeUnknown)
		current = current.Add(time.Second)
	}

	// Push past the limit so the prune fires.
	tr.RecordAccess("flood-99", types.TypeUnknown)
	tr.RecordAccess("flood-100", types.TypeUnknown)

	if got := tr.Len(); got > 100 {
		t.Errorf("tracker should be pruned below its limit, got %d", got)
	}
	if _, ok := tr.Pattern("keeper"); !ok {
		t.Error("high-importance key should survive the prune")
	}
}

// TestTracker_Predict tests the average-interval prediction
func TestTracker_Predict(t *testing.T) {
	tr := newTestTracker()

	base := time.Now()
	current := base
	tr.now = func() time.Time { return current }

	// Accesses at t=0, 10s, 20s: average interval 10s, next at 30s.
	tr.RecordAccess("regular", types.TypeUnknown)
	current = base.Add(10 * time.Second)
	tr.RecordAccess("regular", types.TypeUnknown)
	current = base.Add(20 * time.Second)
	tr.RecordAccess("regular", types.TypeUnknown)

	// A single access carries no interval; it must not predict.
	tr.RecordAccess("oneshot", types.TypeUnknown)

	predictions := tr.Predict()
	if len(predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(predictions))
	}
	want := base.Add(30 * time.Second)
	if !predictions[0].PredictedNext.Equal(want) {
		t.Errorf("expected next access at %v, got %v", want, predictions[0].PredictedNext)
	}
}

// TestTracker_UpcomingKeys tests the prewarm window filter
func TestTracker_UpcomingKeys(t *testing.T) {
	tr := newTestTracker()

	base := time.Now()
	current := base
	tr.now = func() time.Time { return current }

	// "soon": interval 30s, last access now → predicted in 30s.
	tr.RecordAccess("soon", types.TypeUnknown)
	current = base.Add(30 * time.Second)
	tr.RecordAccess("soon", types.TypeUnknown)

	// "later": interval 10m → predicted well outside a 60s window.
	tr.RecordAccess("later", types.TypeUnknown)
	current = base.Add(10 * time.Minute)
	tr.RecordAccess("later", types.TypeUnknown)

	// Window opens now at base+10m; "soon" predicted at base+60s is in
	// the past, so re-touch it to push its prediction forward.
	tr.RecordAccess("soon", types.TypeUnknown)

	upcoming := tr.UpcomingKeys(6 * time.Minute)
	for _, p := range upcoming {
		if p.Key == "later" {
			t.Error("key predicted outside the window must not appear")
		}
	}
	found := false
	for _, p := range upcoming {
		if p.Key == "soon" {
			found = true
		}
	}
	if !found {
		t.Error("key predicted inside the window should appear")
	}
}

// TestTracker_Forget tests dropping a pattern
func TestTracker_Forget(t *testing.T) {
	tr := newTestTracker()

	tr.RecordAccess("key", types.TypeUnknown)
	tr.Forget("key")

	if _, ok := tr.Pattern("key"); ok {
		t.Error("pattern should be gone after Forget")
	}
	if tr.Importance("key") != 0 {
		t.Error("forgotten key should score zero")
	}
}
