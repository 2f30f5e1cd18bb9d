// Package cache implements the channel cache and tile cache owned
// exclusively by a Frame: a single xy plane keyed by (z, stokes) with a
// validity bit, and an LRU of fixed TILE_SIZE×TILE_SIZE buffers keyed by
// chunk-aligned (x, y) within a fixed (z, stokes) context.
package cache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ChannelKey identifies the (z, stokes) pair the channel cache currently
// holds.
type ChannelKey struct {
	Z, Stokes int
}

// ChannelCache holds exactly one contiguous xy buffer plus a validity bit.
// Readers take the shared lock; UpdateChannelImageCache takes the
// exclusive lock while reloading. Concurrent reload requests for the same
// key are coalesced via singleflight so only one loader read happens.
type ChannelCache struct {
	mu    sync.RWMutex
	data  []float32
	key   ChannelKey
	valid bool

	width, height int
	group         singleflight.Group
	spill         *SpillStore
}

// NewChannelCache creates an empty cache sized for width*height pixels.
func NewChannelCache(width, height int) *ChannelCache {
	return &ChannelCache{
		data:   make([]float32, width*height),
		width:  width,
		height: height,
	}
}

// SetSpillStore attaches a disk-backed spill area: before this cache drops
// its current plane to load a different (z,stokes), it writes the outgoing
// plane to store so a quick channel-back-and-forth can restore it without
// re-reading the loader. Passing nil disables spilling (the default).
func (c *ChannelCache) SetSpillStore(store *SpillStore) {
	c.mu.Lock()
	c.spill = store
	c.mu.Unlock()
}

// CachedChannelDataAvailable reports whether the cache currently holds
// valid data for (z, stokes).
func (c *ChannelCache) CachedChannelDataAvailable(z, stokes int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.valid && c.key == ChannelKey{Z: z, Stokes: stokes}
}

// InvalidateChannelImageCache drops validity without freeing memory.
func (c *ChannelCache) InvalidateChannelImageCache() {
	c.mu.Lock()
	c.valid = false
	c.mu.Unlock()
}

// UpdateChannelImageCache reloads the full xy plane for (z, stokes) using
// loadFn under the exclusive lock. On success the cache becomes valid; on
// failure validity is cleared. Concurrent callers for the same (z,stokes)
// share one loadFn invocation.
func (c *ChannelCache) UpdateChannelImageCache(z, stokes int, loadFn func(buf []float32) error) bool {
	key := ChannelKey{Z: z, Stokes: stokes}
	groupKey := channelGroupKey(key)

	ok, _, _ := c.group.Do(groupKey, func() (interface{}, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.spill != nil && c.valid && c.key != key {
			c.spill.Put(c.key, c.data)
		}

		if c.spill != nil && c.spill.Get(key, c.data) {
			c.key = key
			c.valid = true
			return true, nil
		}

		if err := loadFn(c.data); err != nil {
			c.valid = false
			return false, nil
		}
		c.key = key
		c.valid = true
		return true, nil
	})
	return ok.(bool)
}

// GetValue is a constant-time accessor; callers must hold no additional
// lock (GetValue takes the shared lock itself) but should have already
// confirmed CachedChannelDataAvailable for the desired (z, stokes), since
// GetValue does not re-check the key.
func (c *ChannelCache) GetValue(x, y int) float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data[y*c.width+x]
}

// Snapshot returns the current plane data and its key under the shared
// lock, for callers that need to read many values (e.g. a raster tile or
// spatial profile extraction) without repeated lock overhead.
func (c *ChannelCache) Snapshot() (data []float32, key ChannelKey, valid bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, c.key, c.valid
}

func channelGroupKey(k ChannelKey) string {
	return fmt.Sprintf("%d:%d", k.Z, k.Stokes)
}
