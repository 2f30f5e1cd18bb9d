package kernel

import (
	"math"
	"testing"
)

func TestBlockSmoothShape(t *testing.T) {
	sw, sh := 10, 10
	src := make([]float32, sw*sh)
	for i := range src {
		src[i] = float32(i)
	}
	for mip := 1; mip <= 4; mip++ {
		dw, dh := ceilDiv(sw, mip), ceilDiv(sh, mip)
		dst := make([]float32, dw*dh)
		gotW, gotH := BlockSmooth(src, sw, 0, 0, sw, sh, mip, dst)
		if gotW != dw || gotH != dh {
			t.Fatalf("mip=%d: got (%d,%d) want (%d,%d)", mip, gotW, gotH, dw, dh)
		}
	}
}

func TestBlockSmoothAllNaNBlock(t *testing.T) {
	sw, sh := 4, 4
	src := make([]float32, sw*sh)
	for i := range src {
		src[i] = float32(math.NaN())
	}
	dst := make([]float32, 4)
	BlockSmooth(src, sw, 0, 0, sw, sh, 2, dst)
	for i, v := range dst {
		if !math.IsNaN(float64(v)) {
			t.Fatalf("cell %d: want NaN, got %v", i, v)
		}
	}
}

func TestBlockSmoothIdentityAtMip1(t *testing.T) {
	sw, sh := 5, 3
	src := make([]float32, sw*sh)
	for i := range src {
		src[i] = float32(i) * 1.5
	}
	dst := make([]float32, sw*sh)
	dw, dh := BlockSmooth(src, sw, 0, 0, sw, sh, 1, dst)
	if dw != sw || dh != sh {
		t.Fatalf("mip=1 should preserve shape, got (%d,%d)", dw, dh)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("cell %d: want %v got %v", i, src[i], dst[i])
		}
	}
}

func TestNearestNeighborPreservesNaN(t *testing.T) {
	sw, sh := 4, 4
	src := make([]float32, sw*sh)
	src[0] = float32(math.NaN())
	dst := make([]float32, 4)
	NearestNeighbor(src, sw, 0, 0, sw, sh, 2, dst)
	if !math.IsNaN(float64(dst[0])) {
		t.Fatalf("expected NaN preserved at (0,0) mapping to src[0]")
	}
}

func TestIsUniform(t *testing.T) {
	data := []float32{1, 1, 1, float32(math.NaN()), 1}
	v, ok := IsUniform(data)
	if !ok || v != 1 {
		t.Fatalf("want uniform=1, got %v ok=%v", v, ok)
	}
	data2 := []float32{1, 2}
	if _, ok := IsUniform(data2); ok {
		t.Fatalf("want non-uniform")
	}
}
