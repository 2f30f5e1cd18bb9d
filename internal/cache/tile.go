package cache

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// TileKey addresses a tile by its chunk-aligned (tx, ty) origin within
// the current (z, stokes) context.
type TileKey struct {
	TX, TY int
}

// TileCache is an LRU of fixed tileSize×tileSize buffers keyed by
// chunk-aligned (x, y), valid only within one (z, stokes) context.
// Changing (z, stokes) invalidates the whole cache (Reset).
type TileCache struct {
	mu       sync.Mutex
	tiles    map[TileKey][]float32
	order    []TileKey
	present  *roaring.Bitmap // compact "key present" index for large tile grids
	capacity int
	tileSize int
	key      ChannelKey
}

// NewTileCache creates an empty tile cache for the given tile edge length.
func NewTileCache(tileSize int) *TileCache {
	return &TileCache{
		tiles:    make(map[TileKey][]float32),
		present:  roaring.New(),
		tileSize: tileSize,
	}
}

// capacityFor implements spec.md's formula:
// min(MAX_TILE_CAPACITY, 2*(tiles_x + tiles_y)).
func capacityFor(tilesX, tilesY, maxCapacity int) int {
	c := 2 * (tilesX + tilesY)
	if c > maxCapacity {
		c = maxCapacity
	}
	if c < 1 {
		c = 1
	}
	return c
}

// Reset drops all tiles and remembers the new (z, stokes) context and
// capacity, computed from the image's tile grid dimensions.
func (tc *TileCache) Reset(z, stokes, tilesX, tilesY, maxCapacity int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.key = ChannelKey{Z: z, Stokes: stokes}
	tc.tiles = make(map[TileKey][]float32)
	tc.order = tc.order[:0]
	tc.present = roaring.New()
	tc.capacity = capacityFor(tilesX, tilesY, maxCapacity)
}

// tileBit packs a (tx,ty) tile-grid coordinate into a single bitmap index.
// 1<<16 columns is far beyond any real tile grid width.
func tileBit(tx, ty int) uint32 {
	return uint32(ty)<<16 | uint32(tx&0xFFFF)
}

// Get returns the cached tile for (tx, ty), or nil plus false on a miss.
// On a miss, callers should read through the loader under the image mutex
// and call Put.
func (tc *TileCache) Get(tx, ty int) ([]float32, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	key := TileKey{TX: tx, TY: ty}
	v, ok := tc.tiles[key]
	if ok {
		for i, k := range tc.order {
			if k == key {
				tc.order = append(append(tc.order[:i], tc.order[i+1:]...), key)
				break
			}
		}
	}
	return v, ok
}

// Put stores a tile, evicting the least recently used entry if at
// capacity.
func (tc *TileCache) Put(tx, ty int, data []float32) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	key := TileKey{TX: tx, TY: ty}
	if _, exists := tc.tiles[key]; exists {
		return
	}
	for len(tc.tiles) >= tc.capacity && len(tc.order) > 0 {
		oldest := tc.order[0]
		tc.order = tc.order[1:]
		delete(tc.tiles, oldest)
		tc.present.Remove(tileBit(oldest.TX, oldest.TY))
	}
	tc.tiles[key] = data
	tc.order = append(tc.order, key)
	tc.present.Add(tileBit(tx, ty))
}

// Len returns the number of cached tiles.
func (tc *TileCache) Len() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.tiles)
}

// Context returns the (z, stokes) this cache is currently valid for.
func (tc *TileCache) Context() ChannelKey {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.key
}
