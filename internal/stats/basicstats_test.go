package stats

import (
	"math"
	"testing"
)

func TestCalcEmpty(t *testing.T) {
	s := Calc(nil)
	if s.CountNonNaN != 0 || !math.IsNaN(float64(s.Min)) || !math.IsNaN(s.Mean) {
		t.Fatalf("empty stats should have count 0 and NaN min/mean, got %+v", s)
	}
}

func TestCalcBasic(t *testing.T) {
	data := []float32{1, 2, 3, float32(math.NaN()), float32(math.Inf(1))}
	s := Calc(data)
	if s.CountNonNaN != 3 {
		t.Fatalf("want count 3, got %d", s.CountNonNaN)
	}
	if s.Min != 1 || s.Max != 3 {
		t.Fatalf("want min=1 max=3, got min=%v max=%v", s.Min, s.Max)
	}
	if math.Abs(s.Mean-2) > 1e-9 {
		t.Fatalf("want mean=2, got %v", s.Mean)
	}
}

func TestHistogramS4Scenario(t *testing.T) {
	data := []float32{1.0, 2.0, float32(math.NaN()), float32(math.Inf(1))}
	basic := Calc(data)
	res := Histogram(data, basic, HistogramConfig{NumBins: 2}, 2, 2)
	if basic.CountNonNaN != 2 {
		t.Fatalf("want count_non_nan=2, got %d", basic.CountNonNaN)
	}
	if res.BinWidth != 0.5 {
		t.Fatalf("want bin_width=0.5, got %v", res.BinWidth)
	}
	if res.BinCounts[0] != 1 || res.BinCounts[1] != 1 {
		t.Fatalf("want bins=[1,1], got %v", res.BinCounts)
	}
}

func TestHistogramConstantArray(t *testing.T) {
	data := make([]float32, 16)
	for i := range data {
		data[i] = 5.0
	}
	basic := Calc(data)
	res := Histogram(data, basic, HistogramConfig{NumBins: 4}, 4, 4)
	if res.BinCounts[0] != int64(len(data)) {
		t.Fatalf("want a single populated bin with count %d, got %v", len(data), res.BinCounts)
	}
	if res.Mean != 5 || res.Sigma != 0 {
		t.Fatalf("want mean=5 sigma=0, got mean=%v sigma=%v", res.Mean, res.Sigma)
	}
}

func TestResolveNumBinsAuto(t *testing.T) {
	n := ResolveNumBins(HistogramConfig{NumBins: AutoBins}, 10, 10)
	if n != 10 {
		t.Fatalf("sqrt(100)=10, got %d", n)
	}
	n2 := ResolveNumBins(HistogramConfig{NumBins: AutoBins}, 1, 1)
	if n2 != 2 {
		t.Fatalf("want floor at 2, got %d", n2)
	}
}

func TestRegionStatsZeroPixelsIsNaN(t *testing.T) {
	data := []float32{float32(math.NaN()), float32(math.NaN())}
	res := RegionStats(data, 2, 1, []StatType{StatNumPixels, StatSum, StatMean}, RegionStatsConfig{BeamAreaPixels: math.NaN()})
	if res[StatNumPixels] != 0 {
		t.Fatalf("want 0 pixels, got %v", res[StatNumPixels])
	}
	if !math.IsNaN(res[StatSum]) {
		t.Fatalf("want NaN sum when count is 0, got %v", res[StatSum])
	}
}
