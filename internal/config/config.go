// Package config holds the tunable constants shared by the frame, region
// handler and cache packages. Values match the defaults of the CARTA
// backend this core reimplements.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// TileSize is the fixed tile edge length (pixels) used for raster tile
// addressing, contour chunking and vector field tiling.
const TileSize = 256

// MaxTileCapacity bounds the per-Frame tile cache LRU size regardless of
// image dimensions.
const MaxTileCapacity = 4096

// InitDeltaZ is the starting channel-count step for adaptive spectral
// chunking (cursor and region spectral profiles).
const InitDeltaZ = 4

// TargetDeltaTime is the wall-clock target for one adaptive chunking slice,
// used to retarget delta_z after the first slice.
const TargetDeltaTime = 50 * time.Millisecond

// TargetPartialCursorTime is the minimum interval between partial cursor
// spectral profile callbacks.
const TargetPartialCursorTime = 250 * time.Millisecond

// TargetPartialRegionTime is the minimum interval between partial region
// spectral profile callbacks.
const TargetPartialRegionTime = 500 * time.Millisecond

// HighCompressionQuality is the ZFP precision used when a requested lower
// precision would otherwise over-compress (see kernel.CompressTile).
const HighCompressionQuality = 11

// GlobalSmoothBufferCap is the byte cap for the smoothing scratch buffer,
// carried in Constants. No kernel reads it; GaussianSmooth's scratch
// allocation is not bounded by it.
const GlobalSmoothBufferCap = 200 * 1024 * 1024

// ChannelSpillCapacity bounds how many evicted channel planes a Frame's
// ChannelCache keeps compressed on disk for a quick channel-back-and-forth.
// Zero disables spilling.
const ChannelSpillCapacity = 4

// ChannelSpillDir is where spilled channel planes are written, under the
// OS temp directory so they are cleaned up on reboot even if Close is
// skipped on a crash.
var ChannelSpillDir = filepath.Join(os.TempDir(), "carta-compute-spill")

// Constants bundles the above as a value so call sites that want to
// override them for tests don't need package-level variables.
type Constants struct {
	TileSize                int
	MaxTileCapacity         int
	InitDeltaZ              int
	TargetDeltaTime         time.Duration
	TargetPartialCursorTime time.Duration
	TargetPartialRegionTime time.Duration
	HighCompressionQuality  int
	GlobalSmoothBufferCap   int64
	ChannelSpillCapacity    int
	ChannelSpillDir         string
}

// Default returns the Constants matching the package-level defaults above.
func Default() Constants {
	return Constants{
		TileSize:                TileSize,
		MaxTileCapacity:         MaxTileCapacity,
		InitDeltaZ:              InitDeltaZ,
		TargetDeltaTime:         TargetDeltaTime,
		TargetPartialCursorTime: TargetPartialCursorTime,
		TargetPartialRegionTime: TargetPartialRegionTime,
		HighCompressionQuality:  HighCompressionQuality,
		GlobalSmoothBufferCap:   GlobalSmoothBufferCap,
		ChannelSpillCapacity:    ChannelSpillCapacity,
		ChannelSpillDir:         ChannelSpillDir,
	}
}

// Load overlays environment variables (CARTA_TILE_SIZE, CARTA_MAX_TILE_CAPACITY,
// CARTA_INIT_DELTA_Z) on top of Default(), for deployments that need to tune
// memory/latency trade-offs without a rebuild.
func Load() Constants {
	c := Default()
	if v, ok := envInt("CARTA_TILE_SIZE"); ok {
		c.TileSize = v
	}
	if v, ok := envInt("CARTA_MAX_TILE_CAPACITY"); ok {
		c.MaxTileCapacity = v
	}
	if v, ok := envInt("CARTA_INIT_DELTA_Z"); ok {
		c.InitDeltaZ = v
	}
	return c
}

func envInt(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}
