package stats

import "math"

// StatType enumerates the per-region statistics CARTA's StatsCalculator
// can compute, mirroring CARTA::StatsType.
type StatType int

const (
	StatNumPixels StatType = iota
	StatSum
	StatFluxDensity
	StatMean
	StatRMS
	StatSigma
	StatSumSq
	StatMin
	StatMax
	StatBlc
	StatTrc
	StatMinPos
	StatMaxPos
	StatExtrema
)

// RegionStatsConfig carries the extra inputs RegionStats needs beyond the
// pixel data itself: the region's bounding box (for Blc/Trc/MinPos/MaxPos)
// and the beam area in pixels (for flux density; NaN if unknown, which
// makes FluxDensity NaN too, matching the original's per-stat NaN
// substitution on calculation failure).
type RegionStatsConfig struct {
	BlcX, BlcY     int
	BeamAreaPixels float64 // NaN if no beam info
}

// RegionStats computes the requested stat types over data (row-major,
// width x height), returning one value per requested type. A stat whose
// prerequisite is unavailable (e.g. FluxDensity with no beam) is NaN, and
// NumPixels == 0 forces every value stat (Sum, FluxDensity, Mean, RMS,
// Sigma, SumSq, Min, Max, Extrema) to NaN rather than 0, as
// StatsCalculator.cc's post-hoc zero->NaN substitution does; the position
// stats (Blc, Trc, MinPos, MaxPos) are not NaN-substituted.
func RegionStats(data []float32, width, height int, requested []StatType, cfg RegionStatsConfig) map[StatType]float64 {
	basic := Calc(data)
	out := make(map[StatType]float64, len(requested))

	zeroIsNaN := basic.CountNonNaN == 0

	for _, t := range requested {
		switch t {
		case StatNumPixels:
			out[t] = float64(basic.CountNonNaN)
		case StatSum:
			out[t] = naNIf(zeroIsNaN, basic.Sum)
		case StatFluxDensity:
			if zeroIsNaN || math.IsNaN(cfg.BeamAreaPixels) || cfg.BeamAreaPixels <= 0 {
				out[t] = math.NaN()
			} else {
				out[t] = basic.Sum / cfg.BeamAreaPixels
			}
		case StatMean:
			out[t] = basic.Mean
		case StatRMS:
			if zeroIsNaN {
				out[t] = math.NaN()
			} else {
				out[t] = math.Sqrt(basic.SumSq / float64(basic.CountNonNaN))
			}
		case StatSigma:
			out[t] = basic.Sigma
		case StatSumSq:
			out[t] = naNIf(zeroIsNaN, basic.SumSq)
		case StatMin:
			out[t] = float64(basic.Min)
		case StatMax:
			out[t] = float64(basic.Max)
		case StatBlc:
			out[t] = float64(cfg.BlcX) // X coordinate only; BlcY is not reported
		case StatTrc:
			out[t] = float64(cfg.BlcX + width - 1)
		case StatMinPos, StatMaxPos:
			pos := findExtremePos(data, width, height, t == StatMaxPos)
			out[t] = float64(pos)
		case StatExtrema:
			out[t] = math.Max(math.Abs(float64(basic.Min)), math.Abs(float64(basic.Max)))
		}
	}
	return out
}

func naNIf(isZero bool, v float64) float64 {
	if isZero {
		return math.NaN()
	}
	return v
}

// findExtremePos returns the flat index of the minimum (or maximum, if max
// is true) finite value in data, or -1 if every value is NaN/Inf.
func findExtremePos(data []float32, width, height int, max bool) int {
	best := -1
	var bestVal float64
	for i, v := range data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		if best == -1 || (max && f > bestVal) || (!max && f < bestVal) {
			best = i
			bestVal = f
		}
	}
	return best
}
