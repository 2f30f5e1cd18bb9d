package frame

import (
	"context"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/kernel"
	"github.com/pspoerri/carta-compute/internal/loader"
)

// CompressionMode selects how FillRasterTileData packs pixel data.
type CompressionMode int

const (
	CompressionNone CompressionMode = iota
	CompressionZFP
)

// TileResult is FillRasterTileData's output: either a raw float32 buffer
// or a ZFP-style compressed buffer plus its NaN run-length encoding.
type TileResult struct {
	Width, Height int
	Raw           []float32 // set iff Compression == CompressionNone
	Compressed    []byte    // set iff Compression == CompressionZFP
	NanEncodings  []int32
	Compression   CompressionMode
	UsedQuality   int
}

// GetRasterData reads bounds from the current channel at the given mip
// decimation into buf, using the loader's mipmap dataset when available,
// else a block-mean (or nearest-neighbor, if meanFilter is false)
// down-sample of the channel cache. Output size is
// ceil((xmax-xmin)/mip) x ceil((ymax-ymin)/mip).
func (f *Frame) GetRasterData(buf []float32, bounds loader.Slicer, mip int, meanFilter bool) error {
	if mip <= 0 {
		return errs.New(errs.OutOfRangeError, "mip must be positive")
	}
	if bounds.XMin < 0 || bounds.YMin < 0 || bounds.XMax > f.shape.Width || bounds.YMax > f.shape.Height {
		return errs.New(errs.OutOfRangeError, "bounds exceed image")
	}

	z, stokes := f.CurrentChannel()
	f.mu.Lock()
	hasMip := f.ld.HasMip(mip)
	f.mu.Unlock()
	if hasMip {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.ld.GetDownsampledRasterData(context.Background(), buf, z, stokes, bounds, mip)
	}

	data, key, valid := f.channelCache.Snapshot()
	if !valid || key.Z != z || key.Stokes != realStokesOr(stokes) {
		if !f.reloadChannel(z, stokes) {
			return errs.New(errs.InternalError, "channel reload failed")
		}
		data, _, _ = f.channelCache.Snapshot()
	}

	sw, sh := bounds.Width(), bounds.Height()
	if meanFilter {
		kernel.BlockSmooth(data, f.shape.Width, bounds.XMin, bounds.YMin, sw, sh, mip, buf)
	} else {
		kernel.NearestNeighbor(data, f.shape.Width, bounds.XMin, bounds.YMin, sw, sh, mip, buf)
	}
	return nil
}

// FillRasterTileData implements the tile pipeline: bails out if (z,
// stokes) moved since the request was issued; otherwise prefers a loader
// mipmap, then the tile cache (when the loader works in tiles and the
// channel cache is not already resident), then a channel-cache
// down-sample; finally packs the tile raw or ZFP-compressed.
func (f *Frame) FillRasterTileData(tileX, tileY, mip, z, stokes int, compression CompressionMode, quality int) (TileResult, bool, error) {
	curZ, curStokes := f.CurrentChannel()
	if curZ != z || curStokes != stokes {
		return TileResult{}, false, nil
	}

	tileSize := f.cfg.TileSize
	xmin := tileX * tileSize * mip
	ymin := tileY * tileSize * mip
	xmax := xmin + tileSize*mip
	ymax := ymin + tileSize*mip
	if xmax > f.shape.Width {
		xmax = f.shape.Width
	}
	if ymax > f.shape.Height {
		ymax = f.shape.Height
	}
	if xmin >= xmax || ymin >= ymax {
		return TileResult{}, false, errs.New(errs.OutOfRangeError, "tile outside image")
	}
	bounds := loader.Slicer{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}

	dw, dh := ceilDiv(bounds.Width(), mip), ceilDiv(bounds.Height(), mip)
	pixels := make([]float32, dw*dh)

	f.mu.Lock()
	hasMip := f.ld.HasMip(mip)
	tileCacheAvail := f.ld.TileCacheAvailable()
	f.mu.Unlock()

	_, _, channelValid := f.channelCache.Snapshot()

	switch {
	case hasMip:
		f.mu.Lock()
		err := f.ld.GetDownsampledRasterData(context.Background(), pixels, z, stokes, bounds, mip)
		f.mu.Unlock()
		if err != nil {
			return TileResult{}, false, err
		}
	case tileCacheAvail && !channelValid:
		if err := f.readThroughTileCache(pixels, tileX, tileY, bounds, mip, z, stokes); err != nil {
			return TileResult{}, false, err
		}
	default:
		if err := f.GetRasterData(pixels, bounds, mip, true); err != nil {
			return TileResult{}, false, err
		}
	}

	result := TileResult{Width: dw, Height: dh, Compression: compression}
	if compression == CompressionNone {
		result.Raw = pixels
		return result, true, nil
	}

	result.NanEncodings = kernel.EncodeNaNs(pixels)
	buf, used := kernel.CompressTile(pixels, quality)
	result.Compressed = buf
	result.UsedQuality = used
	return result, true, nil
}

// readThroughTileCache serves one tile-grid-aligned tile. Only mip=1
// tiles go through the per-Frame tile cache (reading through the loader
// on a miss); a mip>1 tile is read from the loader and block-averaged
// without touching the cache.
func (f *Frame) readThroughTileCache(dst []float32, tileX, tileY int, bounds loader.Slicer, mip, z, stokes int) error {
	if mip == 1 {
		if cached, ok := f.tileCache.Get(tileX, tileY); ok {
			copy(dst, cached)
			return nil
		}
	}
	buf := make([]float32, bounds.Width()*bounds.Height())
	f.mu.Lock()
	err := f.ld.GetSlice(context.Background(), buf, loader.Slicer{
		XMin: bounds.XMin, XMax: bounds.XMax, YMin: bounds.YMin, YMax: bounds.YMax, Z: z, Stokes: stokes,
	})
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if mip == 1 {
		f.tileCache.Put(tileX, tileY, buf)
		copy(dst, buf)
	} else {
		kernel.BlockSmooth(buf, bounds.Width(), 0, 0, bounds.Width(), bounds.Height(), mip, dst)
	}
	return nil
}
