package kernel

import (
	"encoding/binary"
	"math"

	"github.com/pspoerri/carta-compute/internal/config"
)

// CompressTile lossily compresses a finite-mask float32 tile at the
// requested ZFP-alike precision. Precision controls the number of
// significant mantissa bits retained per value (1-32); higher precision
// means less compression. NaNs must already be replaced by 0 in tile
// (the caller attaches a separate NaN run-length mask, see EncodeNaNs).
//
// When precision < config.HighCompressionQuality and the achieved ratio
// exceeds 20x, the tile is re-compressed at HighCompressionQuality; if that
// still yields more than 10x compression the high-quality buffer is
// returned instead and usedPrecision reflects the substitution.
func CompressTile(tile []float32, precision int) (buf []byte, usedPrecision int) {
	buf = encodeAtPrecision(tile, precision)
	ratio := float64(len(tile)*4) / float64(len(buf))
	if precision < config.HighCompressionQuality && ratio > 20 {
		hq := encodeAtPrecision(tile, config.HighCompressionQuality)
		hqRatio := float64(len(tile)*4) / float64(len(hq))
		if hqRatio > 10 {
			return hq, config.HighCompressionQuality
		}
	}
	return buf, precision
}

// encodeAtPrecision quantizes each value to `precision` significant bits
// of its float32 representation (truncating the low mantissa bits to 0),
// then packs the result with a simple fixed-width bit-pack, approximating
// a ZFP-style lossy fixed-precision codec without requiring the native
// ZFP library.
func encodeAtPrecision(tile []float32, precision int) []byte {
	if precision < 1 {
		precision = 1
	}
	if precision > 32 {
		precision = 32
	}
	mask := uint32(0xFFFFFFFF) << uint(32-precision)
	buf := make([]byte, 4+len(tile)*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(precision))
	for i, v := range tile {
		bits := math.Float32bits(v) & mask
		binary.LittleEndian.PutUint32(buf[4+i*4:8+i*4], bits)
	}
	return compressZeros(buf)
}

// compressZeros run-length encodes the zero low-order bytes produced by
// truncating mantissa bits at low precision, which is where the actual
// size reduction comes from (this is the "lossy fixed-point + entropy
// coding" shape ZFP itself uses, simplified to byte-level RLE here).
func compressZeros(buf []byte) []byte {
	out := make([]byte, 0, len(buf))
	i := 0
	for i < len(buf) {
		if buf[i] == 0 {
			j := i
			for j < len(buf) && buf[j] == 0 && j-i < 0xFFFF {
				j++
			}
			out = append(out, 0, byte((j-i)>>8), byte(j-i))
			i = j
		} else {
			out = append(out, 1, buf[i])
			i++
		}
	}
	return out
}

// DecompressTile reverses CompressTile's encoding back to a float32 tile
// of the given length.
func DecompressTile(buf []byte, n int) []float32 {
	raw := decompressZeros(buf)
	tile := make([]float32, n)
	for i := 0; i < n && 4+i*4+4 <= len(raw); i++ {
		bits := binary.LittleEndian.Uint32(raw[4+i*4 : 8+i*4])
		tile[i] = math.Float32frombits(bits)
	}
	return tile
}

func decompressZeros(buf []byte) []byte {
	out := make([]byte, 0, len(buf)*2)
	i := 0
	for i < len(buf) {
		tag := buf[i]
		if tag == 0 {
			run := int(buf[i+1])<<8 | int(buf[i+2])
			for k := 0; k < run; k++ {
				out = append(out, 0)
			}
			i += 3
		} else {
			out = append(out, buf[i+1])
			i += 2
		}
	}
	return out
}
