package kernel

import (
	"math"
	"testing"
)

func TestCompressDecompressRoundTripHighPrecision(t *testing.T) {
	tile := make([]float32, 64)
	for i := range tile {
		tile[i] = float32(i) * 0.25
	}
	buf, used := CompressTile(tile, 32)
	if used != 32 {
		t.Fatalf("expected no precision substitution at max precision, got %d", used)
	}
	got := DecompressTile(buf, len(tile))
	for i := range tile {
		if math.Abs(float64(got[i]-tile[i])) > 1e-3 {
			t.Fatalf("cell %d: want %v got %v", i, tile[i], got[i])
		}
	}
}

func TestEncodeNaNsRoundTrip(t *testing.T) {
	tile := []float32{1, 2, float32(math.NaN()), float32(math.NaN()), 5}
	runs := EncodeNaNs(tile)
	mask := DecodeNaNs(runs, len(tile))
	want := []bool{false, false, true, true, false}
	for i := range want {
		if mask[i] != want[i] {
			t.Fatalf("cell %d: want %v got %v", i, want[i], mask[i])
		}
	}
}

func TestApplyNaNMask(t *testing.T) {
	tile := []float32{1, 0, 3}
	ApplyNaNMask(tile, []bool{false, true, false})
	if !math.IsNaN(float64(tile[1])) {
		t.Fatalf("expected NaN restored at index 1")
	}
}
