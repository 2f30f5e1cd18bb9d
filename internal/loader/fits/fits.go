// Package fits implements loader.Loader over a single-HDU FITS primary
// array: NAXIS/NAXISn/BITPIX/CRPIX/CRVAL/CDELT/CTYPE cards parsed from
// 80-byte ASCII header cards packed into 2880-byte blocks, per the FITS
// standard. The file is memory-mapped via internal/cog's mmap helpers, so
// pixel slices are read with zero extra copies beyond the byte-swap and
// BSCALE/BZERO rescale pass.
package fits

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pspoerri/carta-compute/internal/cog"
	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/loader"
)

const (
	blockSize    = 2880
	headerCardSz = 80
)

// header holds the parsed cards of one HDU, keyed by FITS keyword.
type header struct {
	strings map[string]string
	floats  map[string]float64
	ints    map[string]int64
	bools   map[string]bool
	end     bool
}

func newHeader() header {
	return header{
		strings: make(map[string]string),
		floats:  make(map[string]float64),
		ints:    make(map[string]int64),
		bools:   make(map[string]bool),
	}
}

func (h header) str(key, def string) string {
	if v, ok := h.strings[key]; ok {
		return v
	}
	return def
}

func (h header) float(key string, def float64) float64 {
	if v, ok := h.floats[key]; ok {
		return v
	}
	return def
}

func (h header) int(key string, def int64) int64 {
	if v, ok := h.ints[key]; ok {
		return v
	}
	return def
}

// parseHeader reads consecutive 80-byte cards from r until END, advancing
// to the next 2880-byte boundary once found.
func parseHeader(data []byte, offset int) (header, int, error) {
	h := newHeader()
	pos := offset
	for {
		if pos+blockSize > len(data) {
			return h, pos, errs.New(errs.FileOpenError, "truncated FITS header")
		}
		block := data[pos : pos+blockSize]
		pos += blockSize
		for i := 0; i < blockSize; i += headerCardSz {
			card := string(block[i : i+headerCardSz])
			if strings.HasPrefix(card, "END") && strings.TrimSpace(card[3:]) == "" {
				h.end = true
				return h, pos, nil
			}
			parseCard(card, &h)
		}
		if h.end {
			return h, pos, nil
		}
	}
}

// parseCard decodes one 80-byte "KEYWORD = VALUE / COMMENT" card. Keywords
// with no '=' (COMMENT, HISTORY, blank) are ignored; this loader only needs
// the axis and WCS metadata Frame consumes.
func parseCard(card string, h *header) {
	if len(card) < 9 || card[8] != '=' {
		return
	}
	key := strings.TrimSpace(card[:8])
	rest := card[9:]
	if slash := strings.Index(rest, " / "); slash >= 0 {
		rest = rest[:slash]
	}
	val := strings.TrimSpace(rest)
	if val == "" {
		return
	}
	switch {
	case strings.HasPrefix(val, "'"):
		h.strings[key] = strings.TrimSpace(strings.Trim(val, "'"))
	case val == "T":
		h.bools[key] = true
	case val == "F":
		h.bools[key] = false
	default:
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			h.ints[key] = n
			h.floats[key] = float64(n)
			return
		}
		if f, err := strconv.ParseFloat(strings.Replace(val, "D", "E", 1), 64); err == nil {
			h.floats[key] = f
		}
	}
}

// axisCoords is a linear pixel<->world conversion for one FITS axis.
type axisCoords struct {
	crpix, crval, cdelt float64
	unit                string
}

func (a axisCoords) pixelToWorld(pixel float64) float64 {
	return a.crval + (pixel-(a.crpix-1))*a.cdelt
}

// coordSys implements loader.CoordinateSystem over the primary HDU's
// CRPIXn/CRVALn/CDELTn/CUNITn cards, 1-indexed per the FITS convention.
type coordSys struct {
	axes []axisCoords
}

func (c coordSys) PixelToWorld(axis int, pixel float64) float64 {
	if axis < 0 || axis >= len(c.axes) {
		return pixel
	}
	return c.axes[axis].pixelToWorld(pixel)
}
func (c coordSys) CDelt(axis int) float64 {
	if axis < 0 || axis >= len(c.axes) {
		return 1
	}
	return c.axes[axis].cdelt
}
func (c coordSys) CRPix(axis int) float64 {
	if axis < 0 || axis >= len(c.axes) {
		return 0
	}
	return c.axes[axis].crpix
}
func (c coordSys) CRVal(axis int) float64 {
	if axis < 0 || axis >= len(c.axes) {
		return 0
	}
	return c.axes[axis].crval
}
func (c coordSys) AxisUnit(axis int) string {
	if axis < 0 || axis >= len(c.axes) {
		return ""
	}
	return c.axes[axis].unit
}

// Loader is a read-only loader.Loader over one memory-mapped FITS primary
// HDU. It has no tile cache, mipmap, swizzled-spectral, or precomputed
// stats fast path: GetSlice always reads straight from the mapped bytes.
type Loader struct {
	path    string
	data    []byte
	dataOff int
	bitpix  int64
	bzero   float64
	bscale  float64
	shape   loader.Shape
	spectralAxis, stokesAxis int
	csys    coordSys
}

// Open memory-maps path and parses its primary HDU header. The data unit
// is located but not copied; GetSlice reads directly from the mapping.
func Open(path string) (*Loader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.FileOpenError, "opening FITS file", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errs.Wrap(errs.FileOpenError, "stat FITS file", err)
	}
	if fi.Size() == 0 {
		return nil, errs.New(errs.FileOpenError, "empty FITS file")
	}

	data, err := cog.MmapFile(f.Fd(), int(fi.Size()))
	if err != nil {
		return nil, errs.Wrap(errs.FileOpenError, "mmap FITS file", err)
	}

	h, dataOff, err := parseHeader(data, 0)
	if err != nil {
		cog.MunmapFile(data)
		return nil, err
	}
	if h.str("SIMPLE", "") != "T" && !h.bools["SIMPLE"] {
		cog.MunmapFile(data)
		return nil, errs.New(errs.FileOpenError, "missing SIMPLE=T primary header")
	}

	naxis := int(h.int("NAXIS", 0))
	if naxis < 2 || naxis > 4 {
		cog.MunmapFile(data)
		return nil, errs.New(errs.InvalidShape, fmt.Sprintf("unsupported NAXIS=%d", naxis))
	}

	dims := make([]int, naxis)
	for i := 0; i < naxis; i++ {
		dims[i] = int(h.int(fmt.Sprintf("NAXIS%d", i+1), 0))
	}

	shape := loader.Shape{Width: dims[0], Height: dims[1], Depth: 1, NumStokes: 1}
	spectralAxis, stokesAxis := -1, -1
	for i := 2; i < naxis; i++ {
		ctype := h.str(fmt.Sprintf("CTYPE%d", i+1), "")
		switch {
		case strings.HasPrefix(ctype, "FREQ") || strings.HasPrefix(ctype, "VELO") || strings.HasPrefix(ctype, "VRAD"):
			spectralAxis = i
			shape.Depth = dims[i]
			shape.HasSpectral = true
		case strings.HasPrefix(ctype, "STOKES"):
			stokesAxis = i
			shape.NumStokes = dims[i]
			shape.HasStokes = true
		default:
			if spectralAxis < 0 {
				spectralAxis = i
				shape.Depth = dims[i]
				shape.HasSpectral = true
			}
		}
	}
	if !shape.Valid() {
		cog.MunmapFile(data)
		return nil, errs.New(errs.InvalidShape, "FITS axes do not form a valid image shape")
	}

	axes := make([]axisCoords, naxis)
	for i := 0; i < naxis; i++ {
		axes[i] = axisCoords{
			crpix: h.float(fmt.Sprintf("CRPIX%d", i+1), 1),
			crval: h.float(fmt.Sprintf("CRVAL%d", i+1), 0),
			cdelt: h.float(fmt.Sprintf("CDELT%d", i+1), 1),
			unit:  h.str(fmt.Sprintf("CUNIT%d", i+1), ""),
		}
	}

	if remainder := dataOff % blockSize; remainder != 0 {
		dataOff += blockSize - remainder
	}

	return &Loader{
		path:         path,
		data:         data,
		dataOff:      dataOff,
		bitpix:       h.int("BITPIX", -32),
		bzero:        h.float("BZERO", 0),
		bscale:       h.float("BSCALE", 1),
		shape:        shape,
		spectralAxis: spectralAxis,
		stokesAxis:   stokesAxis,
		csys:         coordSys{axes: axes},
	}, nil
}

func (l *Loader) OpenFile(hdu int) error {
	if hdu != 0 {
		return errs.New(errs.UnsupportedOperation, "multi-HDU FITS not supported")
	}
	return nil
}

func (l *Loader) FindCoordinateAxes() (loader.Shape, int, int, string) {
	return l.shape, l.spectralAxis, l.stokesAxis, ""
}

func (l *Loader) GetCoordinateSystem(loader.StokesSource) loader.CoordinateSystem { return l.csys }

// bytesPerPixel returns the storage width implied by BITPIX.
func (l *Loader) bytesPerPixel() int {
	n := l.bitpix
	if n < 0 {
		n = -n
	}
	return int(n) / 8
}

func (l *Loader) planeByteOffset(z, stokes int) int {
	depth := l.shape.Depth
	if depth < 1 {
		depth = 1
	}
	planeIdx := z
	if l.shape.HasStokes {
		planeIdx = stokes*depth + z
	}
	planeBytes := l.shape.Width * l.shape.Height * l.bytesPerPixel()
	return l.dataOff + planeIdx*planeBytes
}

// decodePixel converts one big-endian FITS sample at byte offset off to a
// physical float32 value, applying BSCALE/BZERO per the FITS standard.
func (l *Loader) decodePixel(off int) float32 {
	var raw float64
	switch l.bitpix {
	case 8:
		raw = float64(l.data[off])
	case 16:
		raw = float64(int16(binary.BigEndian.Uint16(l.data[off:])))
	case 32:
		raw = float64(int32(binary.BigEndian.Uint32(l.data[off:])))
	case 64:
		raw = float64(int64(binary.BigEndian.Uint64(l.data[off:])))
	case -32:
		bits := binary.BigEndian.Uint32(l.data[off:])
		f := math.Float32frombits(bits)
		if l.bscale == 1 && l.bzero == 0 {
			return f
		}
		raw = float64(f)
	case -64:
		bits := binary.BigEndian.Uint64(l.data[off:])
		raw = math.Float64frombits(bits)
	default:
		return float32(math.NaN())
	}
	return float32(l.bzero + l.bscale*raw)
}

// GetSlice reads the requested hyper-rectangle straight out of the mapped
// file, row by row, decoding each sample in place.
func (l *Loader) GetSlice(ctx context.Context, buf []float32, s loader.Slicer) error {
	if s.XMin < 0 || s.YMin < 0 || s.XMax > l.shape.Width || s.YMax > l.shape.Height {
		return errs.New(errs.OutOfRangeError, "slice bounds exceed image")
	}
	if s.Z < 0 || s.Z >= l.shape.Depth || s.Stokes < 0 || s.Stokes >= l.shape.NumStokes {
		return errs.New(errs.OutOfRangeError, "z/stokes out of range")
	}
	bpp := l.bytesPerPixel()
	planeOff := l.planeByteOffset(s.Z, s.Stokes)
	rowStride := l.shape.Width * bpp
	out := 0
	for y := s.YMin; y < s.YMax; y++ {
		if ctx.Err() != nil {
			return errs.Wrap(errs.ComputationCancelled, "GetSlice cancelled", ctx.Err())
		}
		rowOff := planeOff + y*rowStride + s.XMin*bpp
		for x := 0; x < s.Width(); x++ {
			buf[out] = l.decodePixel(rowOff + x*bpp)
			out++
		}
	}
	return nil
}

func (l *Loader) Capabilities() loader.Capabilities { return 0 }
func (l *Loader) HasMip(mip int) bool               { return false }

func (l *Loader) GetDownsampledRasterData(ctx context.Context, buf []float32, z, stokes int, bounds loader.Slicer, mip int) error {
	return errs.New(errs.UnsupportedOperation, "FITS loader has no stored mipmaps")
}

func (l *Loader) TileCacheAvailable() bool { return false }

func (l *Loader) GetCursorSpectralData(ctx context.Context, buf []float32, stokes, x, xcount, y, ycount int) error {
	return errs.New(errs.UnsupportedOperation, "FITS loader has no swizzled cursor data")
}

func (l *Loader) GetRegionSpectralData(ctx context.Context, mask []bool, originX, originY, width, height int, stokes int, progress func(done, total int)) (loader.RegionSpectralResult, error) {
	return loader.RegionSpectralResult{}, errs.New(errs.UnsupportedOperation, "FITS loader has no swizzled region data")
}

func (l *Loader) GetImageStats(z, stokes int) (loader.ImageStats, bool) {
	return loader.ImageStats{}, false
}

// CloseImageIfUpdated is a no-op; reloading a changed file requires a
// fresh Open, not an in-place remap.
func (l *Loader) CloseImageIfUpdated() error { return nil }

func (l *Loader) Close() error {
	if l.data == nil {
		return nil
	}
	err := cog.MunmapFile(l.data)
	l.data = nil
	return err
}
