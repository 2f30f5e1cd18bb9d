package kernel

import "math"

// GaussianKernel1D builds a normalized discrete Gaussian kernel whose
// half-width is factor-1 (so the full kernel has 2*(factor-1)+1 taps),
// with sigma chosen as half the half-width (a standard choice that keeps
// the kernel's effective support close to its half-width).
func GaussianKernel1D(factor int) []float64 {
	halfWidth := factor - 1
	if halfWidth < 0 {
		halfWidth = 0
	}
	n := 2*halfWidth + 1
	kernel := make([]float64, n)
	sigma := math.Max(float64(halfWidth)/2, 1e-6)
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(i - halfWidth)
		w := math.Exp(-(d * d) / (2 * sigma * sigma))
		kernel[i] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// GaussianSmooth applies a separable Gaussian blur to a source plane of
// size (sw, sh), writing the valid inner region to dst: dw = sw-2*halfWidth,
// dh = sh-2*halfWidth where halfWidth = factor-1. Taps whose weight mass is
// entirely over NaN/±Inf produce NaN; otherwise the remaining weights are
// renormalized over the finite taps (so a partially-missing neighborhood
// still yields a usable value, matching the data model's "missing is
// ignored, not zero" NaN policy).
func GaussianSmooth(src []float32, sw, sh, factor int) (dst []float32, dw, dh int) {
	halfWidth := factor - 1
	if halfWidth < 0 {
		halfWidth = 0
	}
	dw = sw - 2*halfWidth
	dh = sh - 2*halfWidth
	if dw <= 0 || dh <= 0 {
		return nil, 0, 0
	}
	kernel := GaussianKernel1D(factor)

	// Horizontal pass: full height, reduced width.
	horiz := make([]float32, sh*dw)
	for y := 0; y < sh; y++ {
		row := y * sw
		out := y * dw
		for x := 0; x < dw; x++ {
			horiz[out+x] = convolve1D(src, row+x, 1, kernel, halfWidth)
		}
	}

	// Vertical pass: reduced width, reduced height.
	dst = make([]float32, dw*dh)
	for y := 0; y < dh; y++ {
		out := y * dw
		for x := 0; x < dw; x++ {
			dst[out+x] = convolve1D(horiz, (y+halfWidth)*dw+x, dw, kernel, halfWidth)
		}
	}
	return dst, dw, dh
}

// convolve1D applies kernel (length 2*halfWidth+1) centered at base with
// stride step, ignoring non-finite taps and renormalizing over the
// finite ones. Returns NaN if every tap is non-finite.
func convolve1D(data []float32, base, step int, kernel []float64, halfWidth int) float32 {
	var sum, weight float64
	for i, w := range kernel {
		idx := base + (i-halfWidth)*step
		v := float64(data[idx])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v * w
		weight += w
	}
	if weight == 0 {
		return float32(math.NaN())
	}
	return float32(sum / weight)
}
