package regionhandler

import (
	"context"
	"testing"

	"github.com/pspoerri/carta-compute/internal/config"
	"github.com/pspoerri/carta-compute/internal/frame"
	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/loader/memraster"
	"github.com/pspoerri/carta-compute/internal/region"
	"github.com/pspoerri/carta-compute/internal/stats"
)

func newTestFrame(t *testing.T, w, h, depth int) *frame.Frame {
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
	f, err := frame.New(1, ld, config.Default(), nil)
	if err != nil {
		t.Fatalf("frame.New: %v", err)
	}
	return f
}

func rectState(x, y, w, h float64) region.State {
	return region.State{
		Type:          region.Rectangle,
		ControlPoints: []region.Point2D{{X: x, Y: y}, {X: w, Y: h}},
	}
}

func TestSetRegionAssignsAndUpdates(t *testing.T) {
	h := New()
	id, created := h.SetRegion(0, rectState(4, 4, 2, 2), region.Style{})
	if !created || id != 1 {
		t.Fatalf("want new region id 1, got id=%d created=%v", id, created)
	}
	_, changed := h.SetRegion(id, rectState(4, 4, 2, 2), region.Style{})
	if changed {
		t.Fatalf("re-setting identical state should report unchanged")
	}
	_, changed = h.SetRegion(id, rectState(5, 5, 2, 2), region.Style{})
	if !changed {
		t.Fatalf("moved region should report changed")
	}
}

func TestHistogramRequirementsRejectNonClosedRegion(t *testing.T) {
	h := New()
	id, _ := h.SetRegion(0, region.State{Type: region.Line, ControlPoints: []region.Point2D{{X: 0, Y: 0}, {X: 1, Y: 1}}}, region.Style{})
	if err := h.SetHistogramRequirements(id, 1, []stats.HistogramConfig{{}}); err == nil {
		t.Fatalf("expected rejection of histogram requirements on a line region")
	}
}

func TestFillRegionHistogramData(t *testing.T) {
	h := New()
	f := newTestFrame(t, 8, 8, 1)
	id, _ := h.SetRegion(0, rectState(4, 4, 4, 4), region.Style{})
	if err := h.SetHistogramRequirements(id, 1, []stats.HistogramConfig{{NumBins: stats.AutoBins}}); err != nil {
		t.Fatalf("SetHistogramRequirements: %v", err)
	}
	results, err := h.FillRegionHistogramData(id, 1, f, memraster.IdentityCoordinateSystem{})
	if err != nil {
		t.Fatalf("FillRegionHistogramData: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("want 1 histogram result, got %d", len(results))
	}
}

func TestFillRegionStatsData(t *testing.T) {
	h := New()
	f := newTestFrame(t, 8, 8, 1)
	id, _ := h.SetRegion(0, rectState(4, 4, 4, 4), region.Style{})
	if err := h.SetStatsRequirements(id, 1, []stats.StatType{stats.StatNumPixels}); err != nil {
		t.Fatalf("SetStatsRequirements: %v", err)
	}
	got, err := h.FillRegionStatsData(id, 1, f, memraster.IdentityCoordinateSystem{})
	if err != nil {
		t.Fatalf("FillRegionStatsData: %v", err)
	}
	if got[stats.StatNumPixels] != 16 {
		t.Fatalf("want 16 masked pixels, got %v", got[stats.StatNumPixels])
	}
}

func TestFillSpectralProfileDataOverRegion(t *testing.T) {
	h := New()
	f := newTestFrame(t, 4, 4, 5)
	id, _ := h.SetRegion(0, rectState(1, 1, 2, 2), region.Style{})
	if err := h.SetSpectralRequirements(id, 1, []frame.SpectralProfileConfig{{IsZCoordinate: true}}); err != nil {
		t.Fatalf("SetSpectralRequirements: %v", err)
	}
	var finalProgress float64
	var values map[stats.StatType][]float64
	err := h.FillSpectralProfileData(context.Background(), id, 1, f, memraster.IdentityCoordinateSystem{}, []stats.StatType{stats.StatMean}, func(idx int, v map[stats.StatType][]float64, progress float64) {
		finalProgress = progress
		if v != nil {
			values = v
		}
	})
	if err != nil {
		t.Fatalf("FillSpectralProfileData: %v", err)
	}
	if finalProgress != 1.0 {
		t.Fatalf("want final progress 1.0, got %v", finalProgress)
	}
	if len(values[stats.StatMean]) != 5 {
		t.Fatalf("want 5 channel means, got %d", len(values[stats.StatMean]))
	}
}

func TestRemoveRegionClearsRequirements(t *testing.T) {
	h := New()
	f := newTestFrame(t, 8, 8, 1)
	id, _ := h.SetRegion(0, rectState(4, 4, 4, 4), region.Style{})
	h.SetHistogramRequirements(id, 1, []stats.HistogramConfig{{}})
	h.RemoveRegion(id)
	if _, ok := h.Region(id); ok {
		t.Fatalf("region should be gone after RemoveRegion")
	}
	if _, err := h.FillRegionHistogramData(id, 1, f, memraster.IdentityCoordinateSystem{}); err == nil {
		t.Fatalf("expected error after requirements cleared")
	}
}
