package frame

import (
	"context"
	"testing"

	"github.com/pspoerri/carta-compute/internal/config"
	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/loader/memraster"
	"github.com/pspoerri/carta-compute/internal/stats"
)

func newTestFrame(t *testing.T, w, h, depth int) *Frame {
	t.Helper()
	shape := loader.Shape{Width: w, Height: h, Depth: depth, NumStokes: 1, HasSpectral: depth > 1}
	planes := make([][]float32, depth)
	for z := 0; z < depth; z++ {
		plane := make([]float32, w*h)
		for i := range plane {
			plane[i] = float32(z*w*h + i)
		}
		planes[z] = plane
	}
	ld := memraster.New(shape, planes, nil)
	f, err := New(1, ld, config.Default(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestSetImageChannelsValidatesRange(t *testing.T) {
	f := newTestFrame(t, 4, 4, 2)
	if _, err := f.SetImageChannels(5, 0); err == nil {
		t.Fatalf("expected out-of-range error")
	}
	changed, err := f.SetImageChannels(1, 0)
	if err != nil || !changed {
		t.Fatalf("expected a valid channel change, got changed=%v err=%v", changed, err)
	}
	changed, err = f.SetImageChannels(1, 0)
	if err != nil || changed {
		t.Fatalf("re-setting the same channel should report no change")
	}
}

func TestSetCursorChangeDetection(t *testing.T) {
	f := newTestFrame(t, 4, 4, 1)
	if !f.SetCursor(1, 1) {
		t.Fatalf("first cursor set should report changed")
	}
	if f.SetCursor(1, 1) {
		t.Fatalf("same cursor should report unchanged")
	}
}

func TestGetRasterDataShape(t *testing.T) {
	f := newTestFrame(t, 8, 8, 1)
	buf := make([]float32, 16)
	err := f.GetRasterData(buf, loader.Slicer{XMin: 0, XMax: 8, YMin: 0, YMax: 8}, 2, true)
	if err != nil {
		t.Fatalf("GetRasterData: %v", err)
	}
}

func TestFillHistogramAutoBins(t *testing.T) {
	f := newTestFrame(t, 4, 4, 1)
	result, err := f.FillHistogram(stats.HistogramConfig{NumBins: stats.AutoBins})
	if err != nil {
		t.Fatalf("FillHistogram: %v", err)
	}
	if result.NumBins < 2 {
		t.Fatalf("want at least 2 bins, got %d", result.NumBins)
	}
}

func TestFillSpectralProfileDataCompletes(t *testing.T) {
	f := newTestFrame(t, 4, 4, 10)
	f.SetCursor(1, 1)
	var final SpectralProfilePartial
	err := f.FillSpectralProfileData(context.Background(), []SpectralProfileConfig{{IsZCoordinate: true}}, false, func(p SpectralProfilePartial) {
		final = p
	})
	if err != nil {
		t.Fatalf("FillSpectralProfileData: %v", err)
	}
	if final.Progress != 1.0 {
		t.Fatalf("want completed profile with progress 1.0, got %+v", final)
	}
	if len(final.Values) != 10 {
		t.Fatalf("want 10 channel values, got %d", len(final.Values))
	}
}

// TestFillSpectralProfileDataStopsSilentlyOnCursorMove mirrors the
// "cursor moves mid-profile" scenario: once the first chunk has run and
// the cursor is moved, no further callback should fire for that config.
func TestFillSpectralProfileDataStopsSilentlyOnCursorMove(t *testing.T) {
	f := newTestFrame(t, 4, 4, 64)
	f.cfg.InitDeltaZ = 1
	f.cfg.TargetPartialCursorTime = 0
	f.SetCursor(1, 1)

	callbacks := 0
	err := f.FillSpectralProfileData(context.Background(), []SpectralProfileConfig{{IsZCoordinate: true}}, false, func(p SpectralProfilePartial) {
		callbacks++
		if callbacks == 1 {
			f.SetCursor(2, 2)
		}
	})
	if err != nil {
		t.Fatalf("FillSpectralProfileData: %v", err)
	}
	if callbacks != 1 {
		t.Fatalf("want exactly 1 callback before the cursor move silently stops the stream, got %d", callbacks)
	}
}

func TestFillRegionStatsData(t *testing.T) {
	f := newTestFrame(t, 4, 4, 1)
	got, err := f.FillRegionStatsData([]stats.StatType{stats.StatMean, stats.StatNumPixels})
	if err != nil {
		t.Fatalf("FillRegionStatsData: %v", err)
	}
	if got[stats.StatNumPixels] != 16 {
		t.Fatalf("want 16 pixels, got %v", got[stats.StatNumPixels])
	}
}
