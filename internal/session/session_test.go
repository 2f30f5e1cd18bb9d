package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pspoerri/carta-compute/internal/config"
	"github.com/pspoerri/carta-compute/internal/generator/moment"
	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/loader/memraster"
	"github.com/pspoerri/carta-compute/internal/region"
	"github.com/pspoerri/carta-compute/internal/wire"
)

func newSessionFrame(w, h, depth int) loader.Loader {
	shape := loader.Shape{Width: w, Height: h, Depth: depth, NumStokes: 1, HasSpectral: depth > 1}
	planes := make([][]float32, depth)
	for z := 0; z < depth; z++ {
		plane := make([]float32, w*h)
		for i := range plane {
			plane[i] = float32(z + 1)
		}
		planes[z] = plane
	}
	return memraster.New(shape, planes, nil)
}

func TestOpenCloseFile(t *testing.T) {
	s := New(config.Default(), nil)
	if err := s.OpenFile(1, newSessionFrame(8, 8, 4)); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := s.frameOrErr(1); err != nil {
		t.Fatalf("expected file 1 open: %v", err)
	}
	s.CloseFile(1)
	if _, err := s.frameOrErr(1); err == nil {
		t.Fatalf("expected file 1 to be closed")
	}
}

func TestSetImageChannelsAndCursor(t *testing.T) {
	s := New(config.Default(), nil)
	if err := s.OpenFile(1, newSessionFrame(8, 8, 4)); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	ok, err := s.SetImageChannels(wire.SetImageChannelsRequest{FileID: 1, Z: 2, Stokes: 0})
	if err != nil || !ok {
		t.Fatalf("SetImageChannels: ok=%v err=%v", ok, err)
	}
	if ok, err := s.SetCursor(wire.SetCursorRequest{FileID: 1, X: 3, Y: 4}); err != nil || !ok {
		t.Fatalf("SetCursor: ok=%v err=%v", ok, err)
	}
}

func TestSetRegionRoundTrip(t *testing.T) {
	s := New(config.Default(), nil)
	state := region.State{
		Type:          region.Rectangle,
		ControlPoints: []region.Point2D{{X: 4, Y: 4}, {X: 2, Y: 2}},
	}
	id, created := s.SetRegion(wire.SetRegionRequest{RegionID: 0, State: state, Style: region.Style{}})
	if !created || id != 1 {
		t.Fatalf("want new region id 1, got id=%d created=%v", id, created)
	}
	s.RemoveRegion(wire.RemoveRegionRequest{RegionID: id})
}

func TestImportExportRegionRoundTrip(t *testing.T) {
	s := New(config.Default(), nil)
	ack, err := s.ImportRegion(wire.ImportRegionRequest{
		FileID:   1,
		Format:   "ds9",
		Contents: "image\nbox(10,20,5,8,0)\npoint(1,2)\n",
	})
	require.NoError(t, err, "ImportRegion")
	require.True(t, ack.Success, "unexpected import ack: %+v", ack)
	require.Len(t, ack.RegionIDs, 2, "unexpected import ack: %+v", ack)

	exported, err := s.ExportRegion(wire.ExportRegionRequest{RegionIDs: ack.RegionIDs, Format: "crtf"})
	require.NoError(t, err, "ExportRegion")
	require.True(t, exported.Success, "unexpected export ack: %+v", exported)
	require.NotEmpty(t, exported.Contents)
}

func TestCalculateMomentsAdoptsGeneratedImage(t *testing.T) {
	s := New(config.Default(), nil)
	if err := s.OpenFile(1, newSessionFrame(4, 4, 5)); err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	req := wire.MomentRequest{
		FileID:         1,
		RegionID:       0,
		Stokes:         0,
		ZStart:         0,
		ZEnd:           4,
		SpectralValues: []float64{0, 1, 2, 3, 4},
		Moments:        []moment.Type{moment.MOM0},
	}
	resp, err := s.CalculateMoments(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("CalculateMoments: %v", err)
	}
	if !resp.Success || len(resp.Images) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	generatedID := resp.Images[0].FileID
	if _, err := s.frameOrErr(generatedID); err != nil {
		t.Fatalf("expected generated image %d adopted as a Frame: %v", generatedID, err)
	}
}
