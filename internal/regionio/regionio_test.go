package regionio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pspoerri/carta-compute/internal/region"
)

func TestCrtfRoundTripBoxAndCircle(t *testing.T) {
	var exp CRTF
	box := region.Properties{
		State: region.State{Type: region.Rectangle, ControlPoints: []region.Point2D{{X: 10, Y: 20}, {X: 5, Y: 8}}},
		Style: region.Style{Color: "red"},
	}
	circle := region.Properties{
		State: region.State{Type: region.Ellipse, ControlPoints: []region.Point2D{{X: 1, Y: 2}, {X: 3, Y: 3}}},
	}
	require.NoError(t, exp.AddExportRegion(box), "AddExportRegion(box)")
	require.NoError(t, exp.AddExportRegion(circle), "AddExportRegion(circle)")
	contents, err := exp.Export()
	require.NoError(t, err, "Export")

	var imp CRTF
	got, err := imp.Import(contents)
	require.NoError(t, err, "Import")
	require.Lenf(t, got, 2, "contents: %q", contents)

	assert.Equal(t, region.Rectangle, got[0].State.Type)
	assert.True(t, got[0].State.Equal(box.State), "box round-trip mismatch: got %+v want %+v", got[0].State, box.State)
	assert.Equal(t, "red", got[0].Style.Color, "box color lost")

	assert.Equal(t, region.Ellipse, got[1].State.Type)
	assert.True(t, got[1].State.Equal(circle.State), "circle round-trip mismatch: got %+v want %+v", got[1].State, circle.State)
}

func TestDs9RoundTripPolygonAndPoint(t *testing.T) {
	var exp DS9
	poly := region.Properties{
		State: region.State{Type: region.Polygon, ControlPoints: []region.Point2D{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}}},
	}
	pt := region.Properties{
		State: region.State{Type: region.Point, ControlPoints: []region.Point2D{{X: 7, Y: 9}}},
		Style: region.Style{Name: "source1"},
	}
	require.NoError(t, exp.AddExportRegion(poly), "AddExportRegion(poly)")
	require.NoError(t, exp.AddExportRegion(pt), "AddExportRegion(point)")
	contents, err := exp.Export()
	require.NoError(t, err, "Export")

	var imp DS9
	got, err := imp.Import(contents)
	require.NoError(t, err, "Import")
	require.Lenf(t, got, 2, "contents: %q", contents)

	assert.True(t, got[0].State.Equal(poly.State), "polygon round-trip mismatch: got %+v want %+v", got[0].State, poly.State)
	assert.True(t, got[1].State.Equal(pt.State), "point round-trip mismatch: got %+v", got[1].State)
	assert.Equal(t, "source1", got[1].Style.Name)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, _, ok := New("shapefile")
	assert.False(t, ok, "expected unknown format to be rejected")

	imp, exp, ok := New("crtf")
	require.True(t, ok, "expected crtf format to be recognized")
	assert.NotNil(t, imp)
	assert.NotNil(t, exp)
}
