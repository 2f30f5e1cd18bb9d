package fits

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/loader"
)

// writeCard writes one left-padded, right-blank-padded 80 byte card.
func writeCard(b *strings.Builder, s string) {
	if len(s) > headerCardSz {
		s = s[:headerCardSz]
	}
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", headerCardSz-len(s)))
}

func buildFITS(t *testing.T, width, height int, data []int16) string {
	t.Helper()
	var hb strings.Builder
	writeCard(&hb, "SIMPLE  =                    T")
	writeCard(&hb, "BITPIX  =                   16")
	writeCard(&hb, "NAXIS   =                    2")
	writeCard(&hb, "NAXIS1  =                  "+itoa(width))
	writeCard(&hb, "NAXIS2  =                  "+itoa(height))
	writeCard(&hb, "CRPIX1  =                  1.0")
	writeCard(&hb, "CRVAL1  =                  0.0")
	writeCard(&hb, "CDELT1  =                  1.0")
	writeCard(&hb, "BZERO   =                  0.0")
	writeCard(&hb, "BSCALE  =                  1.0")
	writeCard(&hb, "END")
	header := hb.String()
	for len(header)%blockSize != 0 {
		header += strings.Repeat(" ", blockSize-len(header)%blockSize)
	}

	buf := make([]byte, len(data)*2)
	for i, v := range data {
		binary.BigEndian.PutUint16(buf[i*2:], uint16(v))
	}
	for len(buf)%blockSize != 0 {
		buf = append(buf, 0)
	}

	path := filepath.Join(t.TempDir(), "test.fits")
	if err := os.WriteFile(path, append([]byte(header), buf...), 0o644); err != nil {
		t.Fatalf("write fits fixture: %v", err)
	}
	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestOpenAndGetSlice(t *testing.T) {
	path := buildFITS(t, 3, 2, []int16{1, 2, 3, 4, 5, 6})
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	shape, spectral, stokes, _ := l.FindCoordinateAxes()
	if shape.Width != 3 || shape.Height != 2 {
		t.Fatalf("want 3x2, got %dx%d", shape.Width, shape.Height)
	}
	if spectral != -1 || stokes != -1 {
		t.Fatalf("2D image should have no spectral/stokes axis")
	}

	buf := make([]float32, 6)
	s := loader.Slicer{XMin: 0, XMax: 3, YMin: 0, YMax: 2, Z: 0, Stokes: 0}
	if err := l.GetSlice(context.Background(), buf, s); err != nil {
		t.Fatalf("GetSlice: %v", err)
	}
	want := []float32{1, 2, 3, 4, 5, 6}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("pixel %d: want %v got %v", i, want[i], buf[i])
		}
	}
}

func TestGetSliceOutOfRange(t *testing.T) {
	path := buildFITS(t, 2, 2, []int16{1, 2, 3, 4})
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	buf := make([]float32, 9)
	s := loader.Slicer{XMin: 0, XMax: 3, YMin: 0, YMax: 3, Z: 0, Stokes: 0}
	err = l.GetSlice(context.Background(), buf, s)
	if kind, ok := errs.KindOf(err); !ok || kind != errs.OutOfRangeError {
		t.Fatalf("want OutOfRangeError, got %v", err)
	}
}

func TestDecodePixelBigEndianInt16(t *testing.T) {
	l := &Loader{bitpix: 16, bzero: 32768, bscale: 1, data: make([]byte, 2)}
	raw := int16(-1000)
	binary.BigEndian.PutUint16(l.data, uint16(raw))
	if v := l.decodePixel(0); v != 32768-1000 {
		t.Fatalf("want %v, got %v", float32(32768-1000), v)
	}
}

func TestDecodePixelFloat32NaN(t *testing.T) {
	l := &Loader{bitpix: -32, bzero: 0, bscale: 1, data: make([]byte, 4)}
	binary.BigEndian.PutUint32(l.data, math.Float32bits(float32(math.NaN())))
	if v := l.decodePixel(0); !math.IsNaN(float64(v)) {
		t.Fatalf("want NaN, got %v", v)
	}
}
