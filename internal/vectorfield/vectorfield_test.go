package vectorfield

import (
	"context"
	"math"
	"testing"

	"github.com/pspoerri/carta-compute/internal/config"
	"github.com/pspoerri/carta-compute/internal/frame"
	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/loader/memraster"
)

func newIQUFrame(t *testing.T, w, h int) *frame.Frame {
	t.Helper()
	shape := loader.Shape{Width: w, Height: h, Depth: 1, NumStokes: 4, HasStokes: true}
	i := make([]float32, w*h)
	q := make([]float32, w*h)
	u := make([]float32, w*h)
	v := make([]float32, w*h)
	for idx := range i {
		i[idx] = 10
		q[idx] = 3
		u[idx] = 4
	}
	ld := memraster.New(shape, [][]float32{i, q, u, v}, nil)
	fr, err := frame.New(1, ld, config.Default(), nil)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return fr
}

func TestComputePixelMatchesPlainFormula(t *testing.T) {
	pi, pa := computePixel(3, 4, nil, 0, Settings{Threshold: 0})
	if math.Abs(pi-5) > 1e-9 {
		t.Fatalf("pi = %v, want 5", pi)
	}
	wantPA := 0.5 * math.Atan2(4, 3)
	if math.Abs(pa-wantPA) > 1e-9 {
		t.Fatalf("pa = %v, want %v", pa, wantPA)
	}
}

func TestComputePixelThresholdProducesNaN(t *testing.T) {
	pi, pa := computePixel(3, 4, nil, 0, Settings{Threshold: 10})
	if !math.IsNaN(pi) || !math.IsNaN(pa) {
		t.Fatalf("expected NaN pi/pa below threshold, got %v %v", pi, pa)
	}
}

func TestComputeTilesCachesOnIdenticalSettings(t *testing.T) {
	fr := newIQUFrame(t, 16, 16)
	var c Cache
	settings := Settings{Mip: 1, Quality: 11}

	tiles1, err := c.Compute(context.Background(), fr, settings, 0, nil)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(tiles1) == 0 {
		t.Fatalf("expected at least one tile")
	}
	for _, v := range tiles1[0].IntensityRaw {
		if math.Abs(float64(v)-5) > 1e-6 {
			t.Fatalf("pi = %v, want 5", v)
		}
	}

	tiles2, err := c.Compute(context.Background(), fr, settings, 0, func(done, total int) {
		t.Fatalf("progress should not be invoked on a cache hit")
	})
	if err != nil {
		t.Fatalf("Compute (cached): %v", err)
	}
	if &tiles1[0] != &tiles2[0] {
		t.Fatalf("expected the cached slice to be returned unchanged")
	}
}

func TestComputeTilesRecomputesOnSettingsChange(t *testing.T) {
	fr := newIQUFrame(t, 16, 16)
	var c Cache
	if _, err := c.Compute(context.Background(), fr, Settings{Mip: 1}, 0, nil); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	called := false
	if _, err := c.Compute(context.Background(), fr, Settings{Mip: 2}, 0, func(done, total int) { called = true }); err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !called {
		t.Fatalf("expected progress to fire after settings changed")
	}
}
