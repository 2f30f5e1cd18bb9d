package stats

import "math"

// AutoBins is the sentinel NumBins value meaning "derive num_bins from the
// region/image dimensions": max(2, ceil(sqrt(width*height))).
const AutoBins = 0

// HistogramConfig configures a histogram computation.
type HistogramConfig struct {
	NumBins     int     // AutoBins (0) to derive from width*height
	FixedBounds bool    // true if Min/Max below should be used instead of stats' min/max
	Min, Max    float64
}

// ResolveNumBins applies the AUTO rule: max(2, ceil(sqrt(width*height))).
func ResolveNumBins(cfg HistogramConfig, width, height int) int {
	if cfg.NumBins != AutoBins {
		return cfg.NumBins
	}
	n := int(math.Ceil(math.Sqrt(float64(width) * float64(height))))
	if n < 2 {
		n = 2
	}
	return n
}

// HistogramResult is the data-model entity: num_bins, bin_width,
// first_bin_center, bin_counts, mean, sigma. sum(bin_counts) <= count_non_nan
// (values outside [min,max] are dropped; a value exactly at the upper
// bound is counted in the last bin).
type HistogramResult struct {
	NumBins        int
	BinWidth       float64
	FirstBinCenter float64
	BinCounts      []int64
	Mean           float64
	Sigma          float64
}

// Histogram bins data into cfg.NumBins (or AUTO) fixed-width bins spanning
// [min, max] taken from basic (or cfg's fixed bounds). NaN/Inf values are
// skipped, matching BasicStats' count_non_nan semantics.
func Histogram(data []float32, basic BasicStats, cfg HistogramConfig, width, height int) HistogramResult {
	numBins := ResolveNumBins(cfg, width, height)

	min, max := float64(basic.Min), float64(basic.Max)
	if cfg.FixedBounds {
		min, max = cfg.Min, cfg.Max
	}

	result := HistogramResult{
		NumBins:   numBins,
		BinCounts: make([]int64, numBins),
		Mean:      basic.Mean,
		Sigma:     basic.Sigma,
	}

	if basic.CountNonNaN == 0 || max <= min {
		// Empty or constant-at-a-point region: CARTA's convention is a
		// single populated bin at the value, zero width elsewhere.
		if basic.CountNonNaN > 0 && max == min {
			result.BinWidth = 0
			result.FirstBinCenter = min
			result.BinCounts[0] = basic.CountNonNaN
		}
		return result
	}

	binWidth := (max - min) / float64(numBins)
	result.BinWidth = binWidth
	result.FirstBinCenter = min + binWidth/2

	for _, v := range data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		if f < min || f > max {
			continue
		}
		bin := int((f - min) / binWidth)
		if bin >= numBins {
			bin = numBins - 1
		}
		if bin < 0 {
			bin = 0
		}
		result.BinCounts[bin]++
	}
	return result
}
