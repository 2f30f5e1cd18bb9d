package cache

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestChannelCacheUpdateAndAvailability(t *testing.T) {
	c := NewChannelCache(4, 4)
	if c.CachedChannelDataAvailable(0, 0) {
		t.Fatalf("fresh cache should be invalid")
	}
	ok := c.UpdateChannelImageCache(2, 1, func(buf []float32) error {
		for i := range buf {
			buf[i] = float32(i)
		}
		return nil
	})
	if !ok {
		t.Fatalf("update should succeed")
	}
	if !c.CachedChannelDataAvailable(2, 1) {
		t.Fatalf("cache should report available for (2,1)")
	}
	if c.CachedChannelDataAvailable(3, 1) {
		t.Fatalf("cache should not report available for a different key")
	}
	if c.GetValue(1, 0) != 1 {
		t.Fatalf("want GetValue(1,0)=1, got %v", c.GetValue(1, 0))
	}
}

func TestChannelCacheUpdateFailureClearsValidity(t *testing.T) {
	c := NewChannelCache(2, 2)
	c.UpdateChannelImageCache(0, 0, func(buf []float32) error { return nil })
	ok := c.UpdateChannelImageCache(1, 0, func(buf []float32) error { return errors.New("boom") })
	if ok {
		t.Fatalf("update should fail")
	}
	if c.CachedChannelDataAvailable(1, 0) {
		t.Fatalf("failed update should leave cache invalid")
	}
}

func TestTileCacheCapacityFormula(t *testing.T) {
	if got := capacityFor(10, 10, 4096); got != 40 {
		t.Fatalf("want 2*(10+10)=40, got %d", got)
	}
	if got := capacityFor(1000, 1000, 4096); got != 4096 {
		t.Fatalf("want capped at 4096, got %d", got)
	}
}

func TestTileCacheEviction(t *testing.T) {
	tc := NewTileCache(16)
	tc.Reset(0, 0, 1, 1, 2) // capacityFor(1,1,2) = min(2,4) = 2
	tc.Put(0, 0, []float32{1})
	tc.Put(1, 0, []float32{2})
	tc.Put(2, 0, []float32{3}) // evicts (0,0)
	if _, ok := tc.Get(0, 0); ok {
		t.Fatalf("oldest tile should have been evicted")
	}
	if v, ok := tc.Get(2, 0); !ok || v[0] != 3 {
		t.Fatalf("newest tile should be present")
	}
}

func TestSpillStoreRoundTrip(t *testing.T) {
	store, err := NewSpillStore(filepath.Join(t.TempDir(), "spill"), 2)
	if err != nil {
		t.Fatalf("NewSpillStore: %v", err)
	}
	defer store.Close()

	key := ChannelKey{Z: 3, Stokes: 0}
	plane := []float32{1, 2, 3, 4}
	store.Put(key, plane)

	dst := make([]float32, len(plane))
	if !store.Get(key, dst) {
		t.Fatalf("expected spilled plane to be found")
	}
	for i, v := range plane {
		if dst[i] != v {
			t.Fatalf("round-trip mismatch at %d: got %v want %v", i, dst[i], v)
		}
	}

	miss := make([]float32, len(plane))
	if store.Get(ChannelKey{Z: 9, Stokes: 9}, miss) {
		t.Fatalf("expected miss for unspilled key")
	}
}

func TestChannelCacheSpillsOnChannelSwitch(t *testing.T) {
	store, err := NewSpillStore(filepath.Join(t.TempDir(), "spill"), 4)
	if err != nil {
		t.Fatalf("NewSpillStore: %v", err)
	}
	defer store.Close()

	c := NewChannelCache(2, 2)
	c.SetSpillStore(store)

	loads := 0
	loadFn := func(buf []float32) error {
		loads++
		for i := range buf {
			buf[i] = float32(loads)
		}
		return nil
	}

	if !c.UpdateChannelImageCache(0, 0, loadFn) {
		t.Fatalf("first load should succeed")
	}
	if !c.UpdateChannelImageCache(1, 0, loadFn) {
		t.Fatalf("second load should succeed")
	}
	if loads != 2 {
		t.Fatalf("want 2 loader calls so far, got %d", loads)
	}
	// Switching back to (0,0) should restore from the spill, not reload.
	if !c.UpdateChannelImageCache(0, 0, loadFn) {
		t.Fatalf("restoring spilled channel should succeed")
	}
	if loads != 2 {
		t.Fatalf("want loader not called on spill hit, got %d calls", loads)
	}
	if c.GetValue(0, 0) != 1 {
		t.Fatalf("want restored plane value 1, got %v", c.GetValue(0, 0))
	}
}

func TestTileCacheResetInvalidatesContext(t *testing.T) {
	tc := NewTileCache(16)
	tc.Reset(0, 0, 2, 2, 100)
	tc.Put(0, 0, []float32{1})
	tc.Reset(1, 0, 2, 2, 100)
	if _, ok := tc.Get(0, 0); ok {
		t.Fatalf("reset should drop all tiles")
	}
	if tc.Context() != (ChannelKey{Z: 1, Stokes: 0}) {
		t.Fatalf("context should update to new key")
	}
}
