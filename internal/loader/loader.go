// Package loader defines the capability interface Frame consumes to read
// pixel data, coordinate metadata and precomputed statistics from an
// on-disk image, independent of its underlying format (FITS, HDF5-IDIA,
// CASA-paged, MIRIAD). Native-library-backed formats implement this
// interface externally to this core; this package also ships two
// concrete, dependency-free adapters (fits and memraster) used by tests
// and by the derived-image generators.
package loader

import (
	"context"

	"github.com/pspoerri/carta-compute/internal/stats"
)

// AxisRole names the role of one image axis.
type AxisRole int

const (
	AxisX AxisRole = iota
	AxisY
	AxisZ
	AxisStokes
)

// Shape is the ordered tuple of axis lengths with named roles. Exactly one
// X and one Y axis are required; Z and Stokes are optional. Width/Height
// must both be > 0 for a valid image.
type Shape struct {
	Width, Height int
	Depth         int // spectral axis length; 1 if absent
	NumStokes     int // polarization axis length; 1 if absent
	HasSpectral   bool
	HasStokes     bool
}

// NDim returns the image dimensionality (2, 3 or 4), per the data model's
// ImageShape invariant.
func (s Shape) NDim() int {
	n := 2
	if s.HasSpectral {
		n++
	}
	if s.HasStokes {
		n++
	}
	return n
}

// Valid reports whether the shape satisfies the data model invariant:
// exactly one X, one Y, optional Z and Stokes, 2-4 dimensions total.
func (s Shape) Valid() bool {
	return s.Width > 0 && s.Height > 0 && s.NDim() >= 2 && s.NDim() <= 4
}

// Slicer describes a hyper-rectangular read request: an inclusive pixel
// bounding box in x/y plus a single z and stokes index.
type Slicer struct {
	XMin, XMax int // [XMin, XMax)
	YMin, YMax int // [YMin, YMax)
	Z, Stokes  int
}

// Width and Height return the slicer's pixel extent.
func (s Slicer) Width() int  { return s.XMax - s.XMin }
func (s Slicer) Height() int { return s.YMax - s.YMin }

// CoordinateSystem exposes pixel<->world conversions. Implementations
// wrap whatever WCS library the format adapter uses; the core only needs
// linear pixel<->world conversion for axis metadata attached to profiles.
type CoordinateSystem interface {
	// PixelToWorld converts a pixel coordinate on the given axis index to
	// a world-coordinate value (e.g. frequency, velocity, arcsec offset).
	PixelToWorld(axis int, pixel float64) float64
	// CDelt returns the pixel-to-world scale for the given axis.
	CDelt(axis int) float64
	// CRPix and CRVal return the reference pixel and its world value.
	CRPix(axis int) float64
	CRVal(axis int) float64
	// AxisUnit returns the physical unit of the given axis (e.g. "Hz", "deg").
	AxisUnit(axis int) string
}

// StokesSource selects either the original image or a synthetic
// computed-Stokes sub-image derived from combining real Stokes planes.
type StokesSource struct {
	Computed    bool
	ComputedIdx int // one of the ComputedStokes* constants when Computed
	ZFrom, ZTo  int
}

// ImageStats bundles a format's precomputed per-plane statistics and
// histogram, when the format carries them (e.g. CASA image tables).
type ImageStats struct {
	Basic     stats.BasicStats
	Histogram *stats.HistogramResult // nil if not precomputed
}

// Capabilities is a bitmask of optional loader features, resolving
// spec.md's Open Question about UseRegionSpectralData vs
// UseLoaderSpectralData: this core keeps exactly one predicate,
// CapRegionSpectralData.
type Capabilities uint32

const (
	CapMip Capabilities = 1 << iota
	CapTileCache
	CapCursorSpectralData
	CapRegionSpectralData
	CapImageStats
)

func (c Capabilities) Has(cap Capabilities) bool { return c&cap != 0 }

// Loader is the uniform slicer/statistics interface a Frame drives. All
// methods must be safe to call only while the caller holds the owning
// Frame's image mutex (the underlying libraries are not reentrant for a
// single file handle).
type Loader interface {
	// OpenFile is idempotent; hdu selects a sub-image for multi-HDU
	// formats (FITS extensions). Returns errs.UnsupportedOperation if hdu
	// is not valid for this format.
	OpenFile(hdu int) error

	// FindCoordinateAxes reports the image shape and the (0-based) index
	// of the spectral and Stokes axes within the on-disk axis ordering,
	// or -1 if absent.
	FindCoordinateAxes() (shape Shape, spectralAxis, stokesAxis int, message string)

	// GetCoordinateSystem returns the world coordinate system appropriate
	// for the given Stokes source (original or computed sub-image).
	GetCoordinateSystem(src StokesSource) CoordinateSystem

	// GetSlice reads the hyper-rectangle described by slicer into buf,
	// which must have capacity slicer.Width()*slicer.Height(). Returns
	// errs.OutOfRangeError if slicer exceeds the image, errs.FileAccessError
	// wrapped as InternalError on I/O failure.
	GetSlice(ctx context.Context, buf []float32, slicer Slicer) error

	// Capabilities reports which optional fast paths this loader supports.
	Capabilities() Capabilities

	// HasMip reports whether the format stores a precomputed decimated
	// copy at the given mip factor.
	HasMip(mip int) bool

	// GetDownsampledRasterData reads a mip-decimated region directly from
	// a stored mipmap dataset, when HasMip(mip) is true.
	GetDownsampledRasterData(ctx context.Context, buf []float32, z, stokes int, bounds Slicer, mip int) error

	// TileCacheAvailable reports whether the loader natively works in
	// tiles (chunked on-disk layout) such that reading through a tile
	// cache is preferable to a full-plane read.
	TileCacheAvailable() bool

	// GetCursorSpectralData reads an xcount*ycount*depth block around
	// (x,y) from a swizzled per-cursor spectral dataset, when
	// CapCursorSpectralData is set.
	GetCursorSpectralData(ctx context.Context, buf []float32, stokes, x, xcount, y, ycount int) error

	// GetRegionSpectralData streams the per-channel statistics of a mask
	// region directly from a swizzled spectral dataset, when
	// CapRegionSpectralData is set. progress is called with (done, total)
	// counts as chunks complete.
	GetRegionSpectralData(ctx context.Context, mask []bool, originX, originY, width, height int, stokes int, progress func(done, total int)) (RegionSpectralResult, error)

	// GetImageStats returns precomputed per-plane statistics, when
	// CapImageStats is set and the format carries them for (z, stokes).
	GetImageStats(z, stokes int) (ImageStats, bool)

	// CloseImageIfUpdated advisably drops and reopens the file if its
	// mtime changed since OpenFile; a no-op is a valid implementation.
	CloseImageIfUpdated() error

	// Close releases any underlying file handle.
	Close() error
}

// RegionSpectralResult is the per-channel statistics vector produced by
// GetRegionSpectralData, one entry per required stat type, each a
// len-Depth slice.
type RegionSpectralResult struct {
	Values map[stats.StatType][]float64
}
