// Package memraster implements an in-memory loader.Loader over a
// []float32 plane stack, used by tests and by the moment/PV/fit
// generators to hand their synthesized output back to a Frame under a
// synthetic file id (per spec.md §2's "emit results as in-memory images").
package memraster

import (
	"context"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/loader"
)

// Loader wraps a stack of float32 planes, one per (z, stokes) pair, laid
// out as planes[z*numStokes+stokes][y*width+x].
type Loader struct {
	shape  loader.Shape
	planes [][]float32
	csys   loader.CoordinateSystem
}

// New constructs a memraster Loader. planes must have
// shape.Depth*shape.NumStokes entries (1*1 for a plain 2D image), each of
// length shape.Width*shape.Height.
func New(shape loader.Shape, planes [][]float32, csys loader.CoordinateSystem) *Loader {
	if csys == nil {
		csys = IdentityCoordinateSystem{}
	}
	return &Loader{shape: shape, planes: planes, csys: csys}
}

func (l *Loader) OpenFile(hdu int) error { return nil }

func (l *Loader) FindCoordinateAxes() (loader.Shape, int, int, string) {
	spectral, stokesAxis := -1, -1
	if l.shape.HasSpectral {
		spectral = 2
	}
	if l.shape.HasStokes {
		stokesAxis = 3
	}
	return l.shape, spectral, stokesAxis, ""
}

func (l *Loader) GetCoordinateSystem(loader.StokesSource) loader.CoordinateSystem { return l.csys }

func (l *Loader) planeIndex(z, stokes int) int {
	depth := l.shape.Depth
	if depth < 1 {
		depth = 1
	}
	return z*max(l.shape.NumStokes, 1) + stokes
}

func (l *Loader) GetSlice(ctx context.Context, buf []float32, s loader.Slicer) error {
	idx := l.planeIndex(s.Z, s.Stokes)
	if idx < 0 || idx >= len(l.planes) {
		return errs.New(errs.OutOfRangeError, "z/stokes out of range")
	}
	if s.XMin < 0 || s.YMin < 0 || s.XMax > l.shape.Width || s.YMax > l.shape.Height {
		return errs.New(errs.OutOfRangeError, "slice bounds exceed image")
	}
	plane := l.planes[idx]
	w := s.Width()
	out := 0
	for y := s.YMin; y < s.YMax; y++ {
		row := y * l.shape.Width
		copy(buf[out:out+w], plane[row+s.XMin:row+s.XMax])
		out += w
	}
	return nil
}

func (l *Loader) Capabilities() loader.Capabilities { return 0 }
func (l *Loader) HasMip(mip int) bool               { return false }

func (l *Loader) GetDownsampledRasterData(ctx context.Context, buf []float32, z, stokes int, bounds loader.Slicer, mip int) error {
	return errs.New(errs.UnsupportedOperation, "memraster has no mipmaps")
}

func (l *Loader) TileCacheAvailable() bool { return false }

func (l *Loader) GetCursorSpectralData(ctx context.Context, buf []float32, stokes, x, xcount, y, ycount int) error {
	return errs.New(errs.UnsupportedOperation, "memraster has no swizzled cursor data")
}

func (l *Loader) GetRegionSpectralData(ctx context.Context, mask []bool, originX, originY, width, height int, stokes int, progress func(done, total int)) (loader.RegionSpectralResult, error) {
	return loader.RegionSpectralResult{}, errs.New(errs.UnsupportedOperation, "memraster has no swizzled region data")
}

func (l *Loader) GetImageStats(z, stokes int) (loader.ImageStats, bool) { return loader.ImageStats{}, false }
func (l *Loader) CloseImageIfUpdated() error                            { return nil }
func (l *Loader) Close() error                                         { return nil }

// IdentityCoordinateSystem is a trivial CoordinateSystem where pixel ==
// world (CRPIX 1 and CRVAL 0 in the 1-based FITS convention, scale 1),
// used when no WCS metadata applies.
type IdentityCoordinateSystem struct{}

func (IdentityCoordinateSystem) PixelToWorld(axis int, pixel float64) float64 { return pixel }
func (IdentityCoordinateSystem) CDelt(axis int) float64                       { return 1 }
func (IdentityCoordinateSystem) CRPix(axis int) float64                       { return 1 }
func (IdentityCoordinateSystem) CRVal(axis int) float64                       { return 0 }
func (IdentityCoordinateSystem) AxisUnit(axis int) string                     { return "" }

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
