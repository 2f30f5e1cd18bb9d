// Package moment computes MOM0/MOM1/MOM2 maps over a spectral range,
// driven by RegionHandler.CalculateMoments per spec.md §4.5.
package moment

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pspoerri/carta-compute/internal/errs"
)

// Type enumerates the supported moment products: MOM0 is integrated
// intensity, MOM1 is the intensity-weighted mean spectral coordinate
// (velocity/frequency/channel), MOM2 is the intensity-weighted spectral
// dispersion (square root of the second central moment).
type Type int

const (
	MOM0 Type = iota
	MOM1
	MOM2
)

// Request configures one CalculateMoments call.
type Request struct {
	Width, Height  int
	ZStart, ZEnd   int       // inclusive-exclusive spectral range [ZStart, ZEnd)
	SpectralValues []float64 // world-coordinate value per absolute channel index, len >= ZEnd
	Moments        []Type
	Mask           []bool // optional, len Width*Height; nil means every pixel included
}

// FetchPlane returns the (masked-out pixels may be left as-is; Compute
// re-masks) row-major Width*Height plane at absolute channel z.
type FetchPlane func(ctx context.Context, z int) ([]float32, error)

// Result is one computed moment map, stored as a gonum matrix so the
// accumulation (and the caller's downstream use, e.g. a fitter reading
// it back) can use gonum's linear-algebra primitives rather than a bare
// slice.
type Result struct {
	Type Type
	Map  *mat.Dense // Height x Width, NaN where NumPixels==0 for that column
}

// Progress is called with (channels processed, total channels) as the
// single required accumulation pass proceeds.
type Progress func(done, total int)

// Compute accumulates sum(I), sum(I*v) and sum(I*v^2) per pixel over
// [ZStart, ZEnd) in one pass (skipping NaN/Inf and masked-out pixels),
// then derives every requested moment from those three accumulators:
// MOM0 = sum(I); MOM1 = sum(I*v)/sum(I); MOM2 = sqrt(sum(I*v^2)/sum(I) -
// MOM1^2). A pixel with no valid channel is NaN in every moment. A pixel
// with valid channels whose sum(I) is 0 has MOM0 = 0, and its MOM1/MOM2
// are the result of dividing by that zero.
func Compute(ctx context.Context, fetch FetchPlane, req Request, progress Progress) ([]Result, error) {
	if req.ZEnd <= req.ZStart {
		return nil, errs.New(errs.OutOfRangeError, "empty spectral range")
	}
	n := req.Width * req.Height
	s0 := make([]float64, n)
	s1 := make([]float64, n)
	s2 := make([]float64, n)
	count := make([]int, n)

	total := req.ZEnd - req.ZStart
	for z := req.ZStart; z < req.ZEnd; z++ {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.ComputationCancelled, "moment computation cancelled", ctx.Err())
		}
		plane, err := fetch(ctx, z)
		if err != nil {
			return nil, err
		}
		v := req.SpectralValues[z]
		for i := 0; i < n; i++ {
			if req.Mask != nil && !req.Mask[i] {
				continue
			}
			val := float64(plane[i])
			if math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
			s0[i] += val
			s1[i] += val * v
			s2[i] += val * v * v
			count[i]++
		}
		if progress != nil {
			progress(z-req.ZStart+1, total)
		}
	}

	out := make([]Result, len(req.Moments))
	for mi, mt := range req.Moments {
		m := mat.NewDense(req.Height, req.Width, nil)
		for i := 0; i < n; i++ {
			row, col := i/req.Width, i%req.Width
			if count[i] == 0 {
				m.Set(row, col, math.NaN())
				continue
			}
			switch mt {
			case MOM0:
				m.Set(row, col, s0[i])
			case MOM1:
				m.Set(row, col, s1[i]/s0[i])
			case MOM2:
				mean := s1[i] / s0[i]
				variance := s2[i]/s0[i] - mean*mean
				if variance < 0 {
					variance = 0
				}
				m.Set(row, col, math.Sqrt(variance))
			}
		}
		out[mi] = Result{Type: mt, Map: m}
	}
	return out, nil
}

// Flatten returns m's contents as a row-major []float32 plane, the shape
// memraster.New's planes parameter expects.
func Flatten(m *mat.Dense) []float32 {
	r, c := m.Dims()
	out := make([]float32, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = float32(m.At(i, j))
		}
	}
	return out
}
