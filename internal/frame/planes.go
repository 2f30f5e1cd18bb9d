package frame

import (
	"context"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/loader"
)

// PlaneAt reads the full row-major Width*Height plane at an arbitrary
// (z, stokes), bypassing the channel cache (which only ever holds the
// current channel); used by the moment/PV/fitter generators, which walk
// an entire spectral range rather than the Frame's current view.
func (f *Frame) PlaneAt(ctx context.Context, z, stokes int) ([]float32, error) {
	if z < 0 || z >= f.shape.Depth {
		return nil, errs.New(errs.OutOfRangeError, "z out of range")
	}
	buf := make([]float32, f.shape.Width*f.shape.Height)
	f.mu.Lock()
	defer f.mu.Unlock()
	if IsComputed(stokes) {
		return buf, f.fillComputedPlane(buf, z, stokes)
	}
	err := f.ld.GetSlice(ctx, buf, loader.Slicer{
		XMin: 0, XMax: f.shape.Width, YMin: 0, YMax: f.shape.Height, Z: z, Stokes: stokes,
	})
	return buf, err
}
