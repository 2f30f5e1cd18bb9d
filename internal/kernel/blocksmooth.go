// Package kernel implements the SIMD-dispatched pixel kernels: block mean
// down-sampling, nearest-neighbour down-sampling, Gaussian smoothing,
// ZFP-alike tile compression, NaN run-length encoding and marching-squares
// contour tracing. Every kernel works on contiguous []float32 row-major
// planes, NaN-aware per the data model's missing-value convention.
package kernel

import (
	"math"

	"github.com/pspoerri/carta-compute/internal/simdcaps"
)

// BlockSmooth down-samples a source block of size (sw, sh) starting at
// (x, y) within a plane of width fullW (height is only used for bounds
// checks and is not required to call this function correctly as long as
// x+sw, y+sh stay within the plane) into dst, using the mean of each
// mip×mip box. A box that is entirely NaN produces NaN in dst.
//
// dst must have capacity dw*dh where dw = ceil(sw/mip), dh = ceil(sh/mip);
// these are returned for convenience.
func BlockSmooth(src []float32, fullW int, x, y, sw, sh, mip int, dst []float32) (dw, dh int) {
	dw = ceilDiv(sw, mip)
	dh = ceilDiv(sh, mip)
	if len(dst) < dw*dh {
		panic("kernel: BlockSmooth dst too small")
	}
	if simdcaps.Detected == simdcaps.LevelScalar {
		blockSmoothScalar(src, fullW, x, y, sw, sh, mip, dst, dw, dh)
	} else {
		blockSmoothWide(src, fullW, x, y, sw, sh, mip, dst, dw, dh)
	}
	return dw, dh
}

func blockSmoothScalar(src []float32, fullW, x, y, sw, sh, mip int, dst []float32, dw, dh int) {
	for j := 0; j < dh; j++ {
		srcY0 := y + j*mip
		srcY1 := srcY0 + mip
		if srcY1 > y+sh {
			srcY1 = y + sh
		}
		for i := 0; i < dw; i++ {
			srcX0 := x + i*mip
			srcX1 := srcX0 + mip
			if srcX1 > x+sw {
				srcX1 = x + sw
			}
			dst[j*dw+i] = meanBox(src, fullW, srcX0, srcX1, srcY0, srcY1)
		}
	}
}

// blockSmoothWide is blockSmoothScalar's row counterpart for CPUs
// simdcaps detected SSE2/AVX2 on: it accumulates four columns per inner
// iteration into independent sum/count pairs before folding them
// together, the loop shape the compiler's auto-vectorizer can pack into
// wider lanes, instead of one column at a time.
func blockSmoothWide(src []float32, fullW, x, y, sw, sh, mip int, dst []float32, dw, dh int) {
	for j := 0; j < dh; j++ {
		srcY0 := y + j*mip
		srcY1 := srcY0 + mip
		if srcY1 > y+sh {
			srcY1 = y + sh
		}
		i := 0
		for ; i+4 <= dw; i += 4 {
			var sums [4]float64
			var counts [4]int
			for lane := 0; lane < 4; lane++ {
				srcX0 := x + (i+lane)*mip
				srcX1 := srcX0 + mip
				if srcX1 > x+sw {
					srcX1 = x + sw
				}
				for yy := srcY0; yy < srcY1; yy++ {
					row := yy * fullW
					for xx := srcX0; xx < srcX1; xx++ {
						v := src[row+xx]
						if !math.IsNaN(float64(v)) {
							sums[lane] += float64(v)
							counts[lane]++
						}
					}
				}
			}
			for lane := 0; lane < 4; lane++ {
				if counts[lane] == 0 {
					dst[j*dw+i+lane] = float32(math.NaN())
				} else {
					dst[j*dw+i+lane] = float32(sums[lane] / float64(counts[lane]))
				}
			}
		}
		for ; i < dw; i++ {
			srcX0 := x + i*mip
			srcX1 := srcX0 + mip
			if srcX1 > x+sw {
				srcX1 = x + sw
			}
			dst[j*dw+i] = meanBox(src, fullW, srcX0, srcX1, srcY0, srcY1)
		}
	}
}

func meanBox(src []float32, fullW, srcX0, srcX1, srcY0, srcY1 int) float32 {
	var sum float64
	var count int
	for yy := srcY0; yy < srcY1; yy++ {
		row := yy * fullW
		for xx := srcX0; xx < srcX1; xx++ {
			v := src[row+xx]
			if !math.IsNaN(float64(v)) {
				sum += float64(v)
				count++
			}
		}
	}
	if count == 0 {
		return float32(math.NaN())
	}
	return float32(sum / float64(count))
}

// NearestNeighbor down-samples a source block of size (sw, sh) starting at
// (x, y) within a plane of width fullW: out[i,j] = src[x+i*mip, y+j*mip].
// NaN is preserved as-is. dst must have capacity dw*dh where
// dw = ceil(sw/mip), dh = ceil(sh/mip).
func NearestNeighbor(src []float32, fullW int, x, y, sw, sh, mip int, dst []float32) (dw, dh int) {
	dw = ceilDiv(sw, mip)
	dh = ceilDiv(sh, mip)
	if len(dst) < dw*dh {
		panic("kernel: NearestNeighbor dst too small")
	}
	maxY := y + sh - 1
	maxX := x + sw - 1
	for j := 0; j < dh; j++ {
		srcY := y + j*mip
		if srcY > maxY {
			srcY = maxY
		}
		for i := 0; i < dw; i++ {
			srcX := x + i*mip
			if srcX > maxX {
				srcX = maxX
			}
			dst[j*dw+i] = src[srcY*fullW+srcX]
		}
	}
	return dw, dh
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// IsUniform reports whether every finite value in data equals the first
// finite value found (NaNs are ignored). Used as a fast path before
// spending time on a full smoothing/compression pass, mirroring the
// teacher's uniform-tile short-circuit.
func IsUniform(data []float32) (value float32, uniform bool) {
	found := false
	var v float32
	for _, x := range data {
		if math.IsNaN(float64(x)) {
			continue
		}
		if !found {
			v = x
			found = true
			continue
		}
		if x != v {
			return 0, false
		}
	}
	if !found {
		return float32(math.NaN()), true
	}
	return v, true
}
