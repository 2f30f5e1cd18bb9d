// Package stats implements the statistics and histogram kernels: parallel
// min/max/sum/sum-of-squares/mean/sigma/RMS/flux over contiguous arrays,
// fixed-width binning histograms, and per-region statistics.
package stats

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BasicStats is the compact stats tuple of the data model: count, min,
// max, sum, sum of squares, mean, sigma. Count is the number of non-NaN,
// non-infinite samples; if count is 0, min/max/mean/sigma are NaN.
type BasicStats struct {
	CountNonNaN int64
	Min         float32
	Max         float32
	Sum         float64
	SumSq       float64
	Mean        float64
	Sigma       float64
}

// Calc computes BasicStats over data, ignoring NaN and infinite values.
// For large arrays the reduction is fanned out across GOMAXPROCS workers,
// each folding a contiguous chunk, then joined — the errgroup-based
// replacement for the teacher's TBB blocked_range parallel reduce.
func Calc(data []float32) BasicStats {
	if len(data) == 0 {
		return join(nil)
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > len(data) {
		workers = 1
	}
	if workers < 1 {
		workers = 1
	}
	chunk := (len(data) + workers - 1) / workers

	partials := make([]BasicStats, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		start := w * chunk
		end := start + chunk
		if start >= len(data) {
			continue
		}
		if end > len(data) {
			end = len(data)
		}
		g.Go(func() error {
			partials[w] = reduce(data[start:end])
			return nil
		})
	}
	_ = g.Wait()

	return join(partials)
}

func reduce(data []float32) BasicStats {
	s := emptyStats()
	for _, v := range data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		s.CountNonNaN++
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		s.Sum += f
		s.SumSq += f * f
	}
	return s
}

func join(parts []BasicStats) BasicStats {
	out := emptyStats()
	for _, p := range parts {
		if p.CountNonNaN == 0 {
			continue
		}
		if out.CountNonNaN == 0 || p.Min < out.Min {
			out.Min = p.Min
		}
		if out.CountNonNaN == 0 || p.Max > out.Max {
			out.Max = p.Max
		}
		out.Sum += p.Sum
		out.SumSq += p.SumSq
		out.CountNonNaN += p.CountNonNaN
	}
	if out.CountNonNaN > 0 {
		n := float64(out.CountNonNaN)
		out.Mean = out.Sum / n
		variance := out.SumSq/n - out.Mean*out.Mean
		if variance < 0 {
			variance = 0
		}
		out.Sigma = math.Sqrt(variance)
	} else {
		out.Min = float32(math.NaN())
		out.Max = float32(math.NaN())
		out.Mean = math.NaN()
		out.Sigma = math.NaN()
	}
	return out
}

func emptyStats() BasicStats {
	return BasicStats{
		Min: float32(math.Inf(1)),
		Max: float32(math.Inf(-1)),
	}
}
