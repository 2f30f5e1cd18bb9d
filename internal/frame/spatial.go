package frame

import (
	"context"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/loader"
)

// SpatialAxis selects the row (X) or column (Y) the profile runs along.
type SpatialAxis int

const (
	SpatialAxisX SpatialAxis = iota
	SpatialAxisY
)

// SpatialProfileConfig mirrors one entry of FillSpatialProfileData's
// per-config request: which Stokes coordinate, which axis, and the pixel
// range plus mip to sample.
type SpatialProfileConfig struct {
	Stokes     int
	Axis       SpatialAxis
	Start, End int
	Mip        int
}

// SpatialProfile is one extracted row/column, already decimated if the
// client requested it and no native mipmap satisfied the request.
type SpatialProfile struct {
	Values []float32
	Start  int
	Mip    int
}

// FillSpatialProfileData extracts one profile per config through the
// fastest available path: a loader mipmap (mip>=2), the tile cache (for
// the current Stokes, stitching across tile boundaries), the channel
// cache (current Stokes), or a fresh slice (other/computed Stokes).
// Decimation to (min,max) pairs is applied afterward when requested and
// no native mipmap existed.
func (f *Frame) FillSpatialProfileData(cursor Cursor, configs []SpatialProfileConfig, decimate bool) ([]SpatialProfile, error) {
	z, curStokes := f.CurrentChannel()
	out := make([]SpatialProfile, len(configs))

	for i, cfg := range configs {
		prof, nativeMip, err := f.extractSpatialProfile(z, curStokes, cursor, cfg)
		if err != nil {
			return nil, err
		}
		if decimate && !nativeMip && cfg.Mip >= 2 {
			prof.Values = decimateMinMax(prof.Values, cfg.Mip)
		}
		out[i] = prof
	}
	return out, nil
}

func (f *Frame) extractSpatialProfile(z, curStokes int, cursor Cursor, cfg SpatialProfileConfig) (SpatialProfile, bool, error) {
	if cfg.Mip >= 2 {
		f.mu.Lock()
		hasMip := f.ld.HasMip(cfg.Mip)
		f.mu.Unlock()
		if hasMip {
			values, err := f.spatialFromMip(z, cfg)
			return SpatialProfile{Values: values, Start: cfg.Start, Mip: cfg.Mip}, true, err
		}
	}

	if cfg.Stokes == curStokes {
		f.mu.Lock()
		tileCacheAvail := f.ld.TileCacheAvailable()
		f.mu.Unlock()
		_, _, channelValid := f.channelCache.Snapshot()
		if tileCacheAvail && !channelValid {
			values, err := f.spatialFromTileCache(cursor, cfg)
			return SpatialProfile{Values: values, Start: cfg.Start, Mip: cfg.Mip}, false, err
		}
		if !f.reloadChannel(z, curStokes) {
			return SpatialProfile{}, false, errNotConnected()
		}
		values := f.spatialFromChannelCache(cfg)
		return SpatialProfile{Values: values, Start: cfg.Start, Mip: cfg.Mip}, false, nil
	}

	values, err := f.spatialFromFreshSlice(z, cfg)
	return SpatialProfile{Values: values, Start: cfg.Start, Mip: cfg.Mip}, false, err
}

func (f *Frame) spatialFromMip(z int, cfg SpatialProfileConfig) ([]float32, error) {
	n := cfg.End - cfg.Start
	if n <= 0 {
		return nil, errs.New(errs.OutOfRangeError, "empty profile range")
	}
	buf := make([]float32, n)
	var bounds loader.Slicer
	if cfg.Axis == SpatialAxisX {
		bounds = loader.Slicer{XMin: cfg.Start, XMax: cfg.End, YMin: 0, YMax: 1}
	} else {
		bounds = loader.Slicer{XMin: 0, XMax: 1, YMin: cfg.Start, YMax: cfg.End}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.ld.GetDownsampledRasterData(context.Background(), buf, z, cfg.Stokes, bounds, cfg.Mip)
	return buf, err
}

func (f *Frame) spatialFromChannelCache(cfg SpatialProfileConfig) []float32 {
	data, _, _ := f.channelCache.Snapshot()
	n := cfg.End - cfg.Start
	out := make([]float32, n)
	w := f.shape.Width
	if cfg.Axis == SpatialAxisX {
		row := cfg.Start
		copy(out, data[row*w+cfg.Start:row*w+cfg.End])
	} else {
		col := cfg.Start
		for i := 0; i < n; i++ {
			out[i] = data[(cfg.Start+i)*w+col]
		}
	}
	return out
}

// spatialFromTileCache stitches the requested row/column across tile
// boundaries, reading each tile through the cache (miss => loader read).
// The Frame's cursor is re-checked after each tile: once it has moved out
// of the tile row (X axis) or tile column (Y axis) it was in when the
// stitch began, the stitch aborts with ComputationCancelled. The check is
// best-effort; a move during a tile read is seen only after that tile.
func (f *Frame) spatialFromTileCache(cursor Cursor, cfg SpatialProfileConfig) ([]float32, error) {
	n := cfg.End - cfg.Start
	out := make([]float32, n)
	tileSize := f.cfg.TileSize
	z, stokes := f.CurrentChannel()
	startCur := f.CurrentCursor()

	for i := 0; i < n; {
		var tx, ty int
		if cfg.Axis == SpatialAxisX {
			tx, ty = (cfg.Start+i)/tileSize, cursor.Y/tileSize
		} else {
			tx, ty = cursor.X/tileSize, (cfg.Start+i)/tileSize
		}
		tile, ok := f.tileCache.Get(tx, ty)
		if !ok {
			buf := make([]float32, tileSize*tileSize)
			xmin, ymin := tx*tileSize, ty*tileSize
			xmax, ymax := minInt(xmin+tileSize, f.shape.Width), minInt(ymin+tileSize, f.shape.Height)
			f.mu.Lock()
			err := f.ld.GetSlice(context.Background(), buf, loader.Slicer{XMin: xmin, XMax: xmax, YMin: ymin, YMax: ymax, Z: z, Stokes: stokes})
			f.mu.Unlock()
			if err != nil {
				return nil, err
			}
			f.tileCache.Put(tx, ty, buf)
			tile = buf
		}

		localOffset := (cfg.Start + i) % tileSize
		remaining := tileSize - localOffset
		if remaining > n-i {
			remaining = n - i
		}
		var localIdx func(j int) int
		if cfg.Axis == SpatialAxisX {
			localIdx = func(j int) int { return (cursor.Y % tileSize) * tileSize + localOffset + j }
		} else {
			localIdx = func(j int) int { return (localOffset+j)*tileSize + cursor.X%tileSize }
		}
		for j := 0; j < remaining && localIdx(j) < len(tile); j++ {
			out[i+j] = tile[localIdx(j)]
		}
		i += remaining
		now := f.CurrentCursor()
		if (cfg.Axis == SpatialAxisX && now.Y/tileSize != startCur.Y/tileSize) ||
			(cfg.Axis == SpatialAxisY && now.X/tileSize != startCur.X/tileSize) {
			return nil, errs.New(errs.ComputationCancelled, "cursor moved out of the tile row/column")
		}
	}
	return out, nil
}

func (f *Frame) spatialFromFreshSlice(z int, cfg SpatialProfileConfig) ([]float32, error) {
	n := cfg.End - cfg.Start
	out := make([]float32, n)
	var bounds loader.Slicer
	if cfg.Axis == SpatialAxisX {
		bounds = loader.Slicer{XMin: cfg.Start, XMax: cfg.End, YMin: 0, YMax: 1, Z: z, Stokes: cfg.Stokes}
	} else {
		bounds = loader.Slicer{XMin: 0, XMax: 1, YMin: cfg.Start, YMax: cfg.End, Z: z, Stokes: cfg.Stokes}
	}
	if IsComputed(cfg.Stokes) {
		fetch := func(stokesIdx int) ([]float32, error) {
			plane := make([]float32, n)
			s := bounds
			s.Stokes = stokesIdx
			f.mu.Lock()
			err := f.ld.GetSlice(context.Background(), plane, s)
			f.mu.Unlock()
			return plane, err
		}
		in, err := GetComputedStokesInputs(cfg.Stokes, fetch)
		if err != nil {
			return nil, err
		}
		for i := range out {
			ival, qval, uval, vval := in.at(i)
			out[i] = CombineStokes(cfg.Stokes, ival, qval, uval, vval)
		}
		return out, nil
	}
	f.mu.Lock()
	err := f.ld.GetSlice(context.Background(), out, bounds)
	f.mu.Unlock()
	return out, err
}

// decimateMinMax replaces each pair of output cells by (min, max) of the
// underlying 2*mip cells, preserving original order.
func decimateMinMax(values []float32, mip int) []float32 {
	step := 2 * mip
	if step <= 0 {
		return values
	}
	n := ceilDiv(len(values), step) * 2
	out := make([]float32, 0, n)
	for i := 0; i < len(values); i += step {
		end := i + step
		if end > len(values) {
			end = len(values)
		}
		min, max := values[i], values[i]
		for _, v := range values[i:end] {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		out = append(out, min, max)
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
