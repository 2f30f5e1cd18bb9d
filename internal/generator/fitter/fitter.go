// Package fitter implements a 2D Gaussian component image fit over a
// region, grounded on original_source/src/ImageGenerators/ImageFitter.h's
// "fit requested components, return convolved components plus a residual
// image" shape, reimplemented with gonum's optimize package rather than
// casacore's Fit2D.
package fitter

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/pspoerri/carta-compute/internal/errs"
)

// sqrt8ln2 converts a Gaussian FWHM to its standard deviation: fwhm =
// sigma * sqrt(8*ln2).
const sqrt8ln2 = 2.3548200450309493

// Component is one fitted (or estimated) 2D Gaussian: peak amplitude,
// pixel-space center, full width at half maximum along its major/minor
// axes, and position angle (degrees, measured from the X axis toward Y).
type Component struct {
	Amplitude        float64
	CenterX, CenterY float64
	FWHMMajor        float64
	FWHMMinor        float64
	PositionAngleDeg float64
}

// Request configures one FitImage call: the masked pixel data (row-major
// width x height, NaN outside the region), initial component estimates,
// and whether a constant zero-level offset should also be fit.
type Request struct {
	Data              []float32
	Width, Height     int
	Estimates         []Component
	FitZeroLevel      bool
	ZeroLevelEstimate float64
}

// Result is FitImage's output: the converged components (or the best
// attempt if Converged is false), the fitted zero level (0 if not
// requested), the residual image (same shape as Data), and whether the
// optimizer reported convergence.
type Result struct {
	Components []Component
	ZeroLevel  float64
	Residual   []float32
	Converged  bool
}

func gaussianValue(x, y float64, c Component) float64 {
	theta := c.PositionAngleDeg * math.Pi / 180
	sigmaX := c.FWHMMajor / sqrt8ln2
	sigmaY := c.FWHMMinor / sqrt8ln2
	if sigmaX <= 0 {
		sigmaX = 1e-6
	}
	if sigmaY <= 0 {
		sigmaY = 1e-6
	}
	cosT, sinT := math.Cos(theta), math.Sin(theta)
	a := cosT*cosT/(2*sigmaX*sigmaX) + sinT*sinT/(2*sigmaY*sigmaY)
	b := -math.Sin(2*theta)/(4*sigmaX*sigmaX) + math.Sin(2*theta)/(4*sigmaY*sigmaY)
	c2 := sinT*sinT/(2*sigmaX*sigmaX) + cosT*cosT/(2*sigmaY*sigmaY)
	dx, dy := x-c.CenterX, y-c.CenterY
	return c.Amplitude * math.Exp(-(a*dx*dx + 2*b*dx*dy + c2*dy*dy))
}

// paramsPerComponent is the flattened parameter count per Component:
// amplitude, centerX, centerY, fwhmMajor, fwhmMinor, positionAngleDeg.
const paramsPerComponent = 6

func pack(components []Component, zeroLevel float64, fitZero bool) []float64 {
	n := len(components) * paramsPerComponent
	if fitZero {
		n++
	}
	out := make([]float64, n)
	for i, c := range components {
		base := i * paramsPerComponent
		out[base+0] = c.Amplitude
		out[base+1] = c.CenterX
		out[base+2] = c.CenterY
		out[base+3] = c.FWHMMajor
		out[base+4] = c.FWHMMinor
		out[base+5] = c.PositionAngleDeg
	}
	if fitZero {
		out[len(out)-1] = zeroLevel
	}
	return out
}

func unpack(x []float64, numComponents int, fitZero bool) ([]Component, float64) {
	out := make([]Component, numComponents)
	for i := range out {
		base := i * paramsPerComponent
		out[i] = Component{
			Amplitude: x[base+0], CenterX: x[base+1], CenterY: x[base+2],
			FWHMMajor: x[base+3], FWHMMinor: x[base+4], PositionAngleDeg: x[base+5],
		}
	}
	zero := 0.0
	if fitZero {
		zero = x[len(x)-1]
	}
	return out, zero
}

// FitImage fits req.Estimates' components (plus, optionally, a constant
// zero level) to req.Data by minimizing the sum of squared residuals via
// Nelder-Mead simplex search, returning the fitted components, zero
// level and residual image.
func FitImage(req Request) (Result, error) {
	if len(req.Estimates) == 0 {
		return Result{}, errs.New(errs.OutOfRangeError, "at least one component estimate is required")
	}
	n := len(req.Estimates)

	residual := func(params []float64) []float64 {
		comps, zero := unpack(params, n, req.FitZeroLevel)
		res := make([]float64, 0, len(req.Data))
		for y := 0; y < req.Height; y++ {
			for x := 0; x < req.Width; x++ {
				v := float64(req.Data[y*req.Width+x])
				if math.IsNaN(v) {
					continue
				}
				model := zero
				for _, c := range comps {
					model += gaussianValue(float64(x), float64(y), c)
				}
				res = append(res, v-model)
			}
		}
		return res
	}

	sse := func(params []float64) float64 {
		res := residual(params)
		sum := 0.0
		for _, r := range res {
			sum += r * r
		}
		return sum
	}

	x0 := pack(req.Estimates, req.ZeroLevelEstimate, req.FitZeroLevel)
	problem := optimize.Problem{Func: sse}

	result, err := optimize.Minimize(problem, x0, &optimize.Settings{MajorIterations: 2000}, &optimize.NelderMead{})
	if err != nil {
		return Result{}, errs.Internal("gaussian fit failed", err)
	}

	comps, zero := unpack(result.X, n, req.FitZeroLevel)
	residualImage := make([]float32, len(req.Data))
	for y := 0; y < req.Height; y++ {
		for x := 0; x < req.Width; x++ {
			idx := y*req.Width + x
			v := req.Data[idx]
			if math.IsNaN(float64(v)) {
				residualImage[idx] = float32(math.NaN())
				continue
			}
			model := zero
			for _, c := range comps {
				model += gaussianValue(float64(x), float64(y), c)
			}
			residualImage[idx] = v - float32(model)
		}
	}

	return Result{
		Components: comps,
		ZeroLevel:  zero,
		Residual:   residualImage,
		Converged:  result.Status == optimize.Success,
	}, nil
}
