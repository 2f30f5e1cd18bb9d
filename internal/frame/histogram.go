package frame

import (
	"github.com/pspoerri/carta-compute/internal/stats"
)

// FillHistogram resolves the histogram submessage for the current (z,
// stokes): first from the loader's precomputed per-plane histogram (only
// usable when it matches cfg.NumBins or cfg.NumBins is AUTO), else from a
// local cache keyed by (z, stokes, num_bins, bounds); on a miss, basic
// stats are computed once and the histogram is built from fixed-width
// bins, both being cached for the next call.
func (f *Frame) FillHistogram(cfg stats.HistogramConfig) (stats.HistogramResult, error) {
	z, stokes := f.CurrentChannel()

	if !IsComputed(stokes) {
		f.mu.Lock()
		imgStats, ok := f.ld.GetImageStats(z, stokes)
		f.mu.Unlock()
		if ok && imgStats.Histogram != nil {
			h := *imgStats.Histogram
			if cfg.NumBins == stats.AutoBins || cfg.NumBins == h.NumBins {
				return h, nil
			}
		}
	}

	key := histKey{z: z, stokes: stokes, numBins: cfg.NumBins, fixedMin: cfg.Min, fixedMax: cfg.Max, fixedBounds: cfg.FixedBounds}
	f.histMu.Lock()
	if cached, ok := f.histCache[key]; ok {
		f.histMu.Unlock()
		return cached, nil
	}
	f.histMu.Unlock()

	basic, err := f.basicStatsFor(z, stokes)
	if err != nil {
		return stats.HistogramResult{}, err
	}
	data, _, _ := f.channelCache.Snapshot()
	result := stats.Histogram(data, basic, cfg, f.shape.Width, f.shape.Height)

	f.histMu.Lock()
	f.histCache[key] = result
	f.histMu.Unlock()
	return result, nil
}

// basicStatsFor returns BasicStats for (z, stokes), preferring a local
// cache keyed by (z, stokes) over recomputing from the channel cache.
func (f *Frame) basicStatsFor(z, stokes int) (stats.BasicStats, error) {
	key := statsKey{z: z, stokes: stokes}
	f.statsMu.Lock()
	if cached, ok := f.statsCache[key]; ok {
		f.statsMu.Unlock()
		return cached, nil
	}
	f.statsMu.Unlock()

	if !f.reloadChannel(z, stokes) {
		return stats.BasicStats{}, errNotConnected()
	}
	data, _, _ := f.channelCache.Snapshot()
	basic := stats.Calc(data)

	f.statsMu.Lock()
	f.statsCache[key] = basic
	f.statsMu.Unlock()
	return basic, nil
}

// FillRegionStatsData computes statistics for the cursor-scoped
// (whole-image) region: loader stats when available, else a fresh
// channel-cache reduction via the statistics kernels. The reduction is
// recomputed on every call; its result is not cached.
func (f *Frame) FillRegionStatsData(statTypes []stats.StatType) (map[stats.StatType]float64, error) {
	z, stokes := f.CurrentChannel()

	if !IsComputed(stokes) {
		f.mu.Lock()
		imgStats, ok := f.ld.GetImageStats(z, stokes)
		f.mu.Unlock()
		if ok {
			return basicToRegionStats(imgStats.Basic, statTypes), nil
		}
	}

	if !f.reloadChannel(z, stokes) {
		return nil, errNotConnected()
	}
	data, _, _ := f.channelCache.Snapshot()
	return stats.RegionStats(data, f.shape.Width, f.shape.Height, statTypes, stats.RegionStatsConfig{
		BeamAreaPixels: mathNaN(),
	}), nil
}

func basicToRegionStats(b stats.BasicStats, types []stats.StatType) map[stats.StatType]float64 {
	out := make(map[stats.StatType]float64, len(types))
	for _, t := range types {
		switch t {
		case stats.StatNumPixels:
			out[t] = float64(b.CountNonNaN)
		case stats.StatSum:
			out[t] = b.Sum
		case stats.StatSumSq:
			out[t] = b.SumSq
		case stats.StatMean:
			out[t] = b.Mean
		case stats.StatSigma:
			out[t] = b.Sigma
		case stats.StatMin:
			out[t] = float64(b.Min)
		case stats.StatMax:
			out[t] = float64(b.Max)
		}
	}
	return out
}
