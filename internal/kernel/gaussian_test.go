package kernel

import (
	"math"
	"testing"
)

func TestGaussianSmoothShape(t *testing.T) {
	sw, sh := 20, 20
	src := make([]float32, sw*sh)
	for i := range src {
		src[i] = 1.0
	}
	factor := 3
	dst, dw, dh := GaussianSmooth(src, sw, sh, factor)
	halfWidth := factor - 1
	if dw != sw-2*halfWidth || dh != sh-2*halfWidth {
		t.Fatalf("got (%d,%d) want (%d,%d)", dw, dh, sw-2*halfWidth, sh-2*halfWidth)
	}
	for _, v := range dst {
		if math.Abs(float64(v)-1.0) > 1e-4 {
			t.Fatalf("constant input should stay constant, got %v", v)
		}
	}
}

func TestGaussianSmoothAllNaN(t *testing.T) {
	sw, sh := 10, 10
	src := make([]float32, sw*sh)
	for i := range src {
		src[i] = float32(math.NaN())
	}
	dst, _, _ := GaussianSmooth(src, sw, sh, 2)
	for _, v := range dst {
		if !math.IsNaN(float64(v)) {
			t.Fatalf("all-NaN input should stay NaN, got %v", v)
		}
	}
}
