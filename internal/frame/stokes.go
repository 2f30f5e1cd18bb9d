package frame

import (
	"math"

	"github.com/pspoerri/carta-compute/internal/errs"
)

// Real Stokes plane indices, in the standard IQUV ordering radio-astronomy
// cubes use for their Stokes axis.
const (
	StokesI = 0
	StokesQ = 1
	StokesU = 2
	StokesV = 3
)

// stokesInputs holds the subset of I/Q/U/V base planes a computed Stokes
// product needs, one float32 slice per plane (nil when not required).
type stokesInputs struct {
	i, q, u, v []float32
}

func (s stokesInputs) at(idx int) (i, q, u, v float64) {
	get := func(plane []float32) float64 {
		if plane == nil {
			return math.NaN()
		}
		return float64(plane[idx])
	}
	return get(s.i), get(s.q), get(s.u), get(s.v)
}

// requiredBases reports which of I/Q/U/V a computed Stokes product needs.
func requiredBases(computed int) (needI, needQ, needU, needV bool) {
	switch computed {
	case ComputedPtotal:
		return false, true, true, true
	case ComputedPFtotal:
		return true, true, true, true
	case ComputedPlinear:
		return false, true, true, false
	case ComputedPFlinear:
		return true, true, true, false
	case ComputedPangle:
		return false, true, true, false
	default:
		return false, false, false, false
	}
}

// GetComputedStokesInputs fetches exactly the base planes computed needs
// via fetch(stokesIdx), matching GetComputedStokesProfiles's "calls fetch
// for each required base plane" contract.
func GetComputedStokesInputs(computed int, fetch func(stokesIdx int) ([]float32, error)) (stokesInputs, error) {
	needI, needQ, needU, needV := requiredBases(computed)
	if !needI && !needQ && !needU && !needV {
		return stokesInputs{}, errs.New(errs.UnsupportedOperation, "not a computed Stokes index")
	}
	var in stokesInputs
	var err error
	if needI {
		if in.i, err = fetch(StokesI); err != nil {
			return stokesInputs{}, err
		}
	}
	if needQ {
		if in.q, err = fetch(StokesQ); err != nil {
			return stokesInputs{}, err
		}
	}
	if needU {
		if in.u, err = fetch(StokesU); err != nil {
			return stokesInputs{}, err
		}
	}
	if needV {
		if in.v, err = fetch(StokesV); err != nil {
			return stokesInputs{}, err
		}
	}
	return in, nil
}

// CombineStokes evaluates one computed Stokes product at a single pixel
// from its I/Q/U/V components. Any NaN operand yields NaN, per spec.
func CombineStokes(computed int, i, q, u, v float64) float32 {
	switch computed {
	case ComputedPtotal:
		return float32(math.Sqrt(q*q + u*u + v*v))
	case ComputedPFtotal:
		ptotal := math.Sqrt(q*q + u*u + v*v)
		return float32(100 * ptotal / i)
	case ComputedPlinear:
		return float32(math.Sqrt(q*q + u*u))
	case ComputedPFlinear:
		plinear := math.Sqrt(q*q + u*u)
		return float32(100 * plinear / i)
	case ComputedPangle:
		return float32(0.5 * math.Atan2(u, q) * 180 / math.Pi)
	default:
		return float32(math.NaN())
	}
}

// GetComputedStokesProfiles evaluates a computed Stokes product over an
// entire 1D profile (e.g. a spectral profile's per-channel base values),
// calling fetch once per required base plane to obtain len(out)-matching
// slices, then combining element-wise.
func GetComputedStokesProfiles(computed int, out []float64, fetch func(stokesIdx int) ([]float64, error)) error {
	needI, needQ, needU, needV := requiredBases(computed)
	var i, q, u, v []float64
	var err error
	if needI {
		if i, err = fetch(StokesI); err != nil {
			return err
		}
	}
	if needQ {
		if q, err = fetch(StokesQ); err != nil {
			return err
		}
	}
	if needU {
		if u, err = fetch(StokesU); err != nil {
			return err
		}
	}
	if needV {
		if v, err = fetch(StokesV); err != nil {
			return err
		}
	}
	at := func(s []float64, idx int) float64 {
		if s == nil {
			return math.NaN()
		}
		return s[idx]
	}
	for idx := range out {
		out[idx] = float64(CombineStokes(computed, at(i, idx), at(q, idx), at(u, idx), at(v, idx)))
	}
	return nil
}
