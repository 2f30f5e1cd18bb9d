package frame

import (
	"context"
	"time"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/loader"
)

// SpectralProfileConfig mirrors one entry of FillSpectralProfileData's
// request: "z" means the raw cube value at the current Stokes; any other
// coordinate names a (possibly computed) Stokes index whose profile is
// fixed once extracted and skipped on subsequent stokes changes.
type SpectralProfileConfig struct {
	IsZCoordinate bool
	Stokes        int
}

// SpectralProfilePartial is one partial (or final) callback payload for
// one config's spectral profile.
type SpectralProfilePartial struct {
	ConfigIndex int
	Values      []float32 // values for channels [0, len) filled so far
	Progress    float64   // in [0,1]; 1.0 marks completion
}

// FillSpectralProfileData streams the cursor's spectral profile for each
// config, adaptively sizing the z-chunk read to keep each slice near
// config.TargetDeltaTime, and emitting partial callbacks no more often
// than TargetPartialCursorTime. An image with no spectral axis is
// rejected with UnsupportedOperation. The cursor is snapshotted once and
// re-checked before and after every inner step's read: a moved cursor,
// a disconnected Frame or a cancelled ctx stops the stream with no further
// callback at all, not even for the step in progress.
func (f *Frame) FillSpectralProfileData(ctx context.Context, configs []SpectralProfileConfig, stokesChanged bool, cb func(SpectralProfilePartial)) error {
	if !f.shape.HasSpectral {
		return errs.New(errs.UnsupportedOperation, "image has no spectral axis")
	}
	snapshot := f.CurrentCursor()
	depth := f.shape.Depth

	for idx, cfg := range configs {
		if !cfg.IsZCoordinate && stokesChanged {
			continue
		}
		if err := f.runSpectralProfile(ctx, idx, cfg, snapshot, depth, cb); err != nil {
			return err
		}
	}
	return nil
}

func (f *Frame) runSpectralProfile(ctx context.Context, idx int, cfg SpectralProfileConfig, snapshot Cursor, depth int, cb func(SpectralProfilePartial)) error {
	_, curStokes := f.CurrentChannel()
	stokes := curStokes
	if !cfg.IsZCoordinate {
		stokes = cfg.Stokes
	}

	out := make([]float32, depth)
	deltaZ := f.cfg.InitDeltaZ
	if deltaZ < 1 {
		deltaZ = 1
	}
	lastSend := time.Now()
	firstStep := true

	z := 0
	for z < depth {
		if !f.Connected() || f.CurrentCursor() != snapshot || ctx.Err() != nil {
			return nil
		}

		end := z + deltaZ
		if end > depth {
			end = depth
		}

		start := time.Now()
		if err := f.readSpectralRange(z, end, snapshot, stokes, out[z:end]); err != nil {
			return err
		}
		elapsed := time.Since(start)
		if !f.Connected() || f.CurrentCursor() != snapshot || ctx.Err() != nil {
			return nil
		}

		if firstStep && elapsed > 0 {
			scaled := float64(deltaZ) * float64(f.cfg.TargetDeltaTime) / float64(elapsed)
			deltaZ = int(scaled)
			if deltaZ < 1 {
				deltaZ = 1
			}
			if deltaZ > depth {
				deltaZ = depth
			}
			firstStep = false
		}

		z = end
		progress := float64(z) / float64(depth)
		if z >= depth {
			progress = 1.0
		}
		if z >= depth || time.Since(lastSend) >= f.cfg.TargetPartialCursorTime {
			cb(SpectralProfilePartial{ConfigIndex: idx, Values: append([]float32(nil), out[:z]...), Progress: progress})
			lastSend = time.Now()
		}
	}
	return nil
}

// readSpectralRange fills out with the cursor's value at each channel in
// [zStart, zEnd), preferring the loader's swizzled cursor spectral data,
// else reading per-channel slices.
func (f *Frame) readSpectralRange(zStart, zEnd int, cursor Cursor, stokes int, out []float32) error {
	if IsComputed(stokes) {
		tmp := make([]float64, zEnd-zStart)
		err := GetComputedStokesProfiles(stokes, tmp, func(baseStokes int) ([]float64, error) {
			buf := make([]float32, zEnd-zStart)
			if err := f.readRealSpectralRange(zStart, zEnd, cursor, baseStokes, buf); err != nil {
				return nil, err
			}
			return float32ToFloat64(buf), nil
		})
		if err != nil {
			return err
		}
		for i, v := range tmp {
			out[i] = float32(v)
		}
		return nil
	}
	return f.readRealSpectralRange(zStart, zEnd, cursor, stokes, out)
}

func (f *Frame) readRealSpectralRange(zStart, zEnd int, cursor Cursor, stokes int, out []float32) error {
	f.mu.Lock()
	caps := f.ld.Capabilities()
	f.mu.Unlock()
	if caps.Has(loader.CapCursorSpectralData) {
		full := make([]float32, f.shape.Depth)
		f.mu.Lock()
		err := f.ld.GetCursorSpectralData(context.Background(), full, stokes, cursor.X, 1, cursor.Y, 1)
		f.mu.Unlock()
		if err == nil {
			copy(out, full[zStart:zEnd])
		}
		return err
	}
	for i := range out {
		z := zStart + i
		buf := out[i : i+1]
		f.mu.Lock()
		err := f.ld.GetSlice(context.Background(), buf, loader.Slicer{
			XMin: cursor.X, XMax: cursor.X + 1, YMin: cursor.Y, YMax: cursor.Y + 1, Z: z, Stokes: stokes,
		})
		f.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func float32ToFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
