package cache

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// SpillStore holds zstd-compressed whole-plane snapshots on disk, keyed by
// ChannelKey, so a ChannelCache that evicts a (z,stokes) plane to switch
// channels can restore it on a quick back-and-forth without re-reading the
// loader. It is a coarse LRU by entry count, not by byte size: each plane
// is one fixed-size buffer, so entry count already bounds memory pressure
// on the backing directory.
type SpillStore struct {
	mu       sync.Mutex
	dir      string
	capacity int
	order    []ChannelKey
	paths    map[ChannelKey]string
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// NewSpillStore creates a spill area under dir (created if absent) holding
// at most capacity compressed planes. A zero capacity disables spilling:
// Put becomes a no-op and Get always misses.
func NewSpillStore(dir string, capacity int) (*SpillStore, error) {
	if capacity <= 0 {
		return &SpillStore{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &SpillStore{
		dir:      dir,
		capacity: capacity,
		paths:    make(map[ChannelKey]string),
		enc:      enc,
		dec:      dec,
	}, nil
}

func (s *SpillStore) pathFor(key ChannelKey) string {
	return filepath.Join(s.dir, "plane-"+itoa(key.Z)+"-"+itoa(key.Stokes)+".zst")
}

func itoa(v int) string {
	neg := v < 0
	if neg {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Put compresses data and writes it to disk under key, evicting the least
// recently used spilled entry if at capacity. A write failure is swallowed: the spill is
// a latency optimization, not a correctness requirement, so callers don't
// need to handle its errors.
func (s *SpillStore) Put(key ChannelKey, data []float32) {
	if s.capacity <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.paths[key]; exists {
		return
	}
	for len(s.paths) >= s.capacity && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if p, ok := s.paths[oldest]; ok {
			os.Remove(p)
			delete(s.paths, oldest)
		}
	}

	path := s.pathFor(key)
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()

	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	compressed := s.enc.EncodeAll(raw, nil)
	if _, err := f.Write(compressed); err != nil {
		os.Remove(path)
		return
	}
	s.paths[key] = path
	s.order = append(s.order, key)
}

// Get decompresses the plane for key into dst, which must have length equal
// to the width*height the plane was spilled with. Reports false on a miss
// or any I/O/format error, in which case the caller should fall back to its
// normal load path.
func (s *SpillStore) Get(key ChannelKey, dst []float32) bool {
	if s.capacity <= 0 {
		return false
	}
	s.mu.Lock()
	path, ok := s.paths[key]
	if ok {
		for i, k := range s.order {
			if k == key {
				s.order = append(append(s.order[:i], s.order[i+1:]...), key)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	compressed, err := io.ReadAll(f)
	if err != nil {
		return false
	}
	raw, err := s.dec.DecodeAll(compressed, make([]byte, 0, 4*len(dst)))
	if err != nil || len(raw) != 4*len(dst) {
		return false
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return true
}

// Close releases the zstd encoder/decoder and removes every spilled file.
func (s *SpillStore) Close() {
	if s.capacity <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.paths {
		os.Remove(p)
	}
	if s.enc != nil {
		s.enc.Close()
	}
	if s.dec != nil {
		s.dec.Close()
	}
}
