package frame

import (
	"github.com/pspoerri/carta-compute/internal/kernel"
)

// SmoothingMode selects the grid ContourImage traces.
type SmoothingMode int

const (
	SmoothNone SmoothingMode = iota
	SmoothGaussian
	SmoothBlockAverage
)

// ContourSettings mirrors the data model's ContourSettings entity.
type ContourSettings struct {
	Levels           []float64
	Mode             SmoothingMode
	SmoothingFactor  int
	DecimationFactor int
	ChunkSize        int
}

// ContourImage always reloads the channel cache for the current (z,
// stokes), then traces each requested level over either the raw grid,
// a Gaussian-smoothed grid, or a block-averaged (mip = smoothing_factor)
// grid, streaming vertex chunks to partial as they fill. scale/offset
// correct contour coordinates back to source pixel space when the traced
// grid was down-sampled or lost a halo to smoothing.
func (f *Frame) ContourImage(settings ContourSettings, partial func(kernel.ContourChunk)) error {
	z, stokes := f.CurrentChannel()
	if !f.reloadChannel(z, stokes) {
		return errNotConnected()
	}
	data, _, _ := f.channelCache.Snapshot()
	w, h := f.shape.Width, f.shape.Height

	chunkSize := settings.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 1024
	}

	switch settings.Mode {
	case SmoothNone:
		kernel.TraceContours(data, w, h, 1, 0, 0, settings.Levels, chunkSize, partial)
	case SmoothGaussian:
		factor := settings.SmoothingFactor
		if factor < 1 {
			factor = 1
		}
		smoothed, dw, dh := kernel.GaussianSmooth(data, w, h, factor)
		halfWidth := (len(kernel.GaussianKernel1D(factor)) - 1) / 2
		kernel.TraceContours(smoothed, dw, dh, 1, float64(halfWidth), float64(halfWidth), settings.Levels, chunkSize, partial)
	case SmoothBlockAverage:
		mip := settings.SmoothingFactor
		if mip < 1 {
			mip = 1
		}
		dw, dh := ceilDiv(w, mip), ceilDiv(h, mip)
		buf := make([]float32, dw*dh)
		if err := f.GetRasterData(buf, fullBounds(w, h), mip, true); err != nil {
			return err
		}
		kernel.TraceContours(buf, dw, dh, float64(mip), 0, 0, settings.Levels, chunkSize, partial)
	}
	return nil
}
