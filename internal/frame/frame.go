// Package frame implements Frame, the per-image compute core: it wraps
// one opened loader.Loader, owns its channel and tile caches, and serves
// raster tiles, spatial/spectral profiles, histograms, statistics and
// contour meshes at whatever (z, stokes) the client is currently viewing.
package frame

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pspoerri/carta-compute/internal/cache"
	"github.com/pspoerri/carta-compute/internal/config"
	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/stats"
)

// Computed Stokes indices are negative sentinels so a plain int Stokes
// field distinguishes "real plane index" from "derived product" without a
// separate bool, mirroring the data model's StokesIndex union.
const (
	ComputedPtotal = -1 - iota
	ComputedPFtotal
	ComputedPlinear
	ComputedPFlinear
	ComputedPangle
)

// IsComputed reports whether a Stokes value names one of the five derived
// polarization products rather than a real plane index.
func IsComputed(stokesIdx int) bool { return stokesIdx < 0 }

// Cursor is the per-Frame cursor position, used both as a profile
// extraction point and as a cancellation token for in-flight spectral
// profiles: a moved cursor invalidates any running profile snapshot.
type Cursor struct {
	X, Y int
}

// Frame wraps one opened image. All Loader calls are serialized on mu
// (the "image mutex"), since the underlying format libraries are not
// reentrant for a single file handle; the channel and tile caches have
// their own finer-grained locks for concurrent readers.
type Frame struct {
	mu sync.Mutex

	ld     loader.Loader
	shape  loader.Shape
	fileID int

	spectralAxis, stokesAxis int

	cfg config.Constants
	log *slog.Logger

	connected atomic.Bool

	stateMu sync.RWMutex
	z       int
	stokes  int
	cursor  Cursor

	channelCache *cache.ChannelCache
	tileCache    *cache.TileCache
	spillStore   *cache.SpillStore

	histMu    sync.Mutex
	histCache map[histKey]stats.HistogramResult

	statsMu    sync.Mutex
	statsCache map[statsKey]stats.BasicStats
}

type histKey struct {
	z, stokes, numBins int
	fixedMin, fixedMax float64
	fixedBounds        bool
}

type statsKey struct {
	z, stokes int
}

// New opens ld's coordinate axes and allocates the caches for a frame
// with the given synthetic/real file id. Returns errs.InvalidShape if the
// image is not 2, 3 or 4 dimensional.
func New(fileID int, ld loader.Loader, cfg config.Constants, log *slog.Logger) (*Frame, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := ld.OpenFile(0); err != nil {
		return nil, err
	}
	shape, spectralAxis, stokesAxis, msg := ld.FindCoordinateAxes()
	if !shape.Valid() {
		return nil, errs.New(errs.InvalidShape, "invalid image shape: "+msg)
	}

	f := &Frame{
		ld:           ld,
		shape:        shape,
		fileID:       fileID,
		spectralAxis: spectralAxis,
		stokesAxis:   stokesAxis,
		cfg:          cfg,
		log:          log.With("file_id", fileID),
		channelCache: cache.NewChannelCache(shape.Width, shape.Height),
		tileCache:    cache.NewTileCache(cfg.TileSize),
		histCache:    make(map[histKey]stats.HistogramResult),
		statsCache:   make(map[statsKey]stats.BasicStats),
	}
	f.connected.Store(true)
	tilesX := ceilDiv(shape.Width, cfg.TileSize)
	tilesY := ceilDiv(shape.Height, cfg.TileSize)
	f.tileCache.Reset(0, 0, tilesX, tilesY, cfg.MaxTileCapacity)

	if cfg.ChannelSpillCapacity > 0 && cfg.ChannelSpillDir != "" {
		dir := filepath.Join(cfg.ChannelSpillDir, fmt.Sprintf("file-%d", fileID))
		if store, err := cache.NewSpillStore(dir, cfg.ChannelSpillCapacity); err == nil {
			f.spillStore = store
			f.channelCache.SetSpillStore(store)
		} else {
			f.log.Warn("channel spill disabled", "err", err)
		}
	}
	return f, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// Connected reports whether this Frame may still be used; long-running
// loops must poll this and stop once it flips false.
func (f *Frame) Connected() bool { return f.connected.Load() }

// Disconnect sets the one-way flag every long-running loop polls and
// releases this Frame's disk spill area, if any.
func (f *Frame) Disconnect() {
	f.connected.Store(false)
	if f.spillStore != nil {
		f.spillStore.Close()
	}
}

// Shape returns the image's axis lengths.
func (f *Frame) Shape() loader.Shape { return f.shape }

// TileSize returns the configured tile edge length, for callers (e.g.
// internal/vectorfield) that need to enumerate a tile grid without
// reaching into the Frame's private config.
func (f *Frame) TileSize() int { return f.cfg.TileSize }

// CoordinateSystem returns the world coordinate system for the Frame's
// current Stokes source (real or computed), for region reprojection.
func (f *Frame) CoordinateSystem() loader.CoordinateSystem {
	_, stokes := f.CurrentChannel()
	f.mu.Lock()
	defer f.mu.Unlock()
	src := loader.StokesSource{}
	if IsComputed(stokes) {
		src = loader.StokesSource{Computed: true, ComputedIdx: stokes}
	}
	return f.ld.GetCoordinateSystem(src)
}

// ReadCurrentChannel returns a fresh copy of the current (z, stokes)
// plane, reloading the channel cache if necessary.
func (f *Frame) ReadCurrentChannel() ([]float32, error) {
	z, stokes := f.CurrentChannel()
	if !f.reloadChannel(z, stokes) {
		return nil, errNotConnected()
	}
	data, _, _ := f.channelCache.Snapshot()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

// CurrentChannel returns the Frame's current (z, stokes).
func (f *Frame) CurrentChannel() (z, stokes int) {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.z, f.stokes
}

// SetImageChannels validates and updates (z, stokes). On any actual
// change it invalidates the channel and tile caches and reloads the
// channel for loaders that keep one resident; a computed Stokes source
// always forces a reload since its pixels are synthesized on the fly.
func (f *Frame) SetImageChannels(z, stokes int) (bool, error) {
	if z < 0 || z >= f.shape.Depth {
		return false, errs.New(errs.OutOfRangeError, "z out of range")
	}
	if !IsComputed(stokes) && (stokes < 0 || stokes >= f.shape.NumStokes) {
		return false, errs.New(errs.OutOfRangeError, "stokes out of range")
	}

	f.stateMu.Lock()
	changed := z != f.z || stokes != f.stokes
	if !changed {
		f.stateMu.Unlock()
		return false, nil
	}
	f.z, f.stokes = z, stokes
	f.stateMu.Unlock()

	f.channelCache.InvalidateChannelImageCache()
	tilesX := ceilDiv(f.shape.Width, f.cfg.TileSize)
	tilesY := ceilDiv(f.shape.Height, f.cfg.TileSize)
	f.tileCache.Reset(z, realStokesOr(stokes), tilesX, tilesY, f.cfg.MaxTileCapacity)

	f.mu.Lock()
	useTiles := f.ld.TileCacheAvailable()
	f.mu.Unlock()
	if IsComputed(stokes) || !useTiles {
		f.reloadChannel(z, stokes)
	}
	return true, nil
}

// realStokesOr maps a computed stokes sentinel to 0 for tile cache
// keying purposes (the tile cache is never authoritative for computed
// Stokes; see reloadChannel and FillRasterTileData).
func realStokesOr(stokes int) int {
	if IsComputed(stokes) {
		return 0
	}
	return stokes
}

// SetCursor updates the per-Frame cursor, returning whether it changed.
// A changed cursor cancels any in-flight cursor spectral profile that
// snapshot the old position.
func (f *Frame) SetCursor(x, y int) bool {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	if f.cursor.X == x && f.cursor.Y == y {
		return false
	}
	f.cursor = Cursor{X: x, Y: y}
	return true
}

// CurrentCursor returns the current cursor position.
func (f *Frame) CurrentCursor() Cursor {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.cursor
}

// reloadChannel fills the channel cache for (z, stokes) under the image
// mutex, fabricating computed-Stokes pixels via fillComputedPlane (and
// CombineStokes) when stokes names a derived product.
func (f *Frame) reloadChannel(z, stokes int) bool {
	return f.channelCache.UpdateChannelImageCache(z, realStokesOr(stokes), func(buf []float32) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if IsComputed(stokes) {
			return f.fillComputedPlane(buf, z, stokes)
		}
		return f.ld.GetSlice(context.Background(), buf, loader.Slicer{
			XMin: 0, XMax: f.shape.Width, YMin: 0, YMax: f.shape.Height, Z: z, Stokes: stokes,
		})
	})
}

// fillComputedPlane synthesizes one of the five derived Stokes planes by
// reading the required base planes (I/Q/U/V) and combining them per-pixel
// via CombineStokes.
func (f *Frame) fillComputedPlane(buf []float32, z, computed int) error {
	n := f.shape.Width * f.shape.Height
	base := func(stokesIdx int) ([]float32, error) {
		plane := make([]float32, n)
		err := f.ld.GetSlice(context.Background(), plane, loader.Slicer{
			XMin: 0, XMax: f.shape.Width, YMin: 0, YMax: f.shape.Height, Z: z, Stokes: stokesIdx,
		})
		return plane, err
	}
	inputs, err := GetComputedStokesInputs(computed, base)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		iv, qv, uv, vv := inputs.at(i)
		buf[i] = CombineStokes(computed, iv, qv, uv, vv)
	}
	return nil
}
