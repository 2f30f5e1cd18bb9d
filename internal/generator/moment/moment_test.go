package moment

import (
	"context"
	"math"
	"testing"
)

func TestComputeMom0Mom1(t *testing.T) {
	width, height, depth := 2, 1, 3
	planes := [][]float32{
		{1, 0},
		{2, 0},
		{3, 0},
	}
	fetch := func(ctx context.Context, z int) ([]float32, error) { return planes[z], nil }

	results, err := Compute(context.Background(), fetch, Request{
		Width: width, Height: height, ZStart: 0, ZEnd: depth,
		SpectralValues: []float64{0, 1, 2},
		Moments:        []Type{MOM0, MOM1, MOM2},
	}, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d", len(results))
	}

	mom0 := results[0].Map.At(0, 0)
	if mom0 != 6 {
		t.Fatalf("want MOM0 sum 6, got %v", mom0)
	}
	mom1 := results[1].Map.At(0, 0)
	want := (1*0 + 2*1 + 3*2) / 6.0
	if math.Abs(mom1-want) > 1e-9 {
		t.Fatalf("want MOM1 %v, got %v", want, mom1)
	}

	zeroIntensityMom1 := results[1].Map.At(0, 1)
	if !math.IsNaN(zeroIntensityMom1) {
		t.Fatalf("want NaN MOM1 when every sample is exactly zero intensity, got %v", zeroIntensityMom1)
	}
}

func TestComputeRejectsEmptyRange(t *testing.T) {
	fetch := func(ctx context.Context, z int) ([]float32, error) { return nil, nil }
	_, err := Compute(context.Background(), fetch, Request{Width: 1, Height: 1, ZStart: 2, ZEnd: 2}, nil)
	if err == nil {
		t.Fatalf("expected error for empty spectral range")
	}
}
