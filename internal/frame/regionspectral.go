package frame

import (
	"context"
	"time"

	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/stats"
)

// RegionSpectralResult is the per-stat-type spectral vector produced by
// GetRegionSpectralData, one len-Depth slice per requested stat.
type RegionSpectralResult struct {
	Values map[stats.StatType][]float64
}

// GetRegionSpectralData computes requiredStats over the masked region
// (originX, originY, width, height, mask) at every channel of stokes,
// preferring the loader's native swizzled region-spectral path when
// available, else chunking the z range adaptively (same delta_z
// retargeting as the cursor spectral profile) and reducing each channel's
// masked pixels via stats.RegionStats. progress is called with
// (channels done, total channels) as chunks complete.
func (f *Frame) GetRegionSpectralData(ctx context.Context, originX, originY, width, height int, mask []bool, stokes int, requiredStats []stats.StatType, progress func(done, total int)) (RegionSpectralResult, error) {
	f.mu.Lock()
	caps := f.ld.Capabilities()
	f.mu.Unlock()

	if !IsComputed(stokes) && caps.Has(loader.CapRegionSpectralData) {
		f.mu.Lock()
		res, err := f.ld.GetRegionSpectralData(ctx, mask, originX, originY, width, height, stokes, progress)
		f.mu.Unlock()
		if err != nil {
			return RegionSpectralResult{}, err
		}
		return RegionSpectralResult{Values: res.Values}, nil
	}

	depth := f.shape.Depth
	out := make(map[stats.StatType][]float64, len(requiredStats))
	for _, t := range requiredStats {
		out[t] = make([]float64, depth)
	}

	deltaZ := f.cfg.InitDeltaZ
	if deltaZ < 1 {
		deltaZ = 1
	}
	firstStep := true

	z := 0
	for z < depth {
		if ctx.Err() != nil || !f.Connected() {
			break
		}
		end := z + deltaZ
		if end > depth {
			end = depth
		}

		start := time.Now()
		for zz := z; zz < end; zz++ {
			plane, err := f.readMaskedPlane(zz, stokes, originX, originY, width, height, mask)
			if err != nil {
				return RegionSpectralResult{}, err
			}
			result := stats.RegionStats(plane, width, height, requiredStats, stats.RegionStatsConfig{
				BlcX: originX, BlcY: originY, BeamAreaPixels: mathNaN(),
			})
			for _, t := range requiredStats {
				out[t][zz] = result[t]
			}
		}
		elapsed := time.Since(start)

		if firstStep && elapsed > 0 {
			scaled := float64(deltaZ) * float64(f.cfg.TargetDeltaTime) / float64(elapsed)
			deltaZ = int(scaled)
			if deltaZ < 1 {
				deltaZ = 1
			}
			if deltaZ > depth {
				deltaZ = depth
			}
			firstStep = false
		}

		z = end
		if progress != nil {
			progress(z, depth)
		}
	}

	return RegionSpectralResult{Values: out}, nil
}

// readMaskedPlane reads the bounding box (originX, originY, width,
// height) of channel (z, stokes) and sets every pixel outside mask to
// NaN, so stats.RegionStats' NaN-skip logic restricts the
// reduction to the region.
func (f *Frame) readMaskedPlane(z, stokes, originX, originY, width, height int, mask []bool) ([]float32, error) {
	plane := make([]float32, width*height)
	bounds := loader.Slicer{XMin: originX, XMax: originX + width, YMin: originY, YMax: originY + height, Z: z, Stokes: stokes}

	if IsComputed(stokes) {
		fetch := func(stokesIdx int) ([]float32, error) {
			buf := make([]float32, width*height)
			s := bounds
			s.Stokes = stokesIdx
			f.mu.Lock()
			err := f.ld.GetSlice(context.Background(), buf, s)
			f.mu.Unlock()
			return buf, err
		}
		in, err := GetComputedStokesInputs(stokes, fetch)
		if err != nil {
			return nil, err
		}
		for i := range plane {
			iv, qv, uv, vv := in.at(i)
			plane[i] = CombineStokes(stokes, iv, qv, uv, vv)
		}
	} else {
		f.mu.Lock()
		err := f.ld.GetSlice(context.Background(), plane, bounds)
		f.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	for i := range plane {
		if !mask[i] {
			plane[i] = float32(mathNaN())
		}
	}
	return plane, nil
}
