package pv

import (
	"context"
	"testing"
	"time"

	"github.com/pspoerri/carta-compute/internal/region"
)

func TestBuildBoxesHorizontalLineMatchesScenario(t *testing.T) {
	line := Line{Points: []region.Point2D{{X: 10, Y: 50}, {X: 110, Y: 50}}, WidthPixels: 1}
	boxes, strategy := BuildBoxes(line, 1.0)
	if strategy != FixedPixelSpacing {
		t.Fatalf("want fixed-pixel spacing for a linear horizontal line, got %v", strategy)
	}
	if len(boxes) != 101 {
		t.Fatalf("want 101 boxes for a 100px line (S6), got %d", len(boxes))
	}
	if boxes[0].Center.X != 10 || boxes[0].Center.Y != 50 {
		t.Fatalf("want first box centered at (10,50), got %+v", boxes[0].Center)
	}
	if boxes[len(boxes)-1].Center.X != 110 {
		t.Fatalf("want last box centered at x=110, got %+v", boxes[len(boxes)-1].Center)
	}
}

func TestBuildProfilesProducesScenarioShape(t *testing.T) {
	line := Line{Points: []region.Point2D{{X: 10, Y: 50}, {X: 110, Y: 50}}, WidthPixels: 1}
	boxes, _ := BuildBoxes(line, 1.0)

	width, height, depth := 200, 100, 25
	fetch := func(ctx context.Context, z int) ([]float32, error) {
		plane := make([]float32, width*height)
		for i := range plane {
			plane[i] = float32(z)
		}
		return plane, nil
	}

	matrix, err := BuildProfiles(context.Background(), fetch, boxes, width, height, 0, depth, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("BuildProfiles: %v", err)
	}
	rows, cols := matrix.Dims()
	if rows != 101 || cols != 25 {
		t.Fatalf("want 101x25 matrix (S6), got %dx%d", rows, cols)
	}
	if matrix.At(0, 3) != 3 {
		t.Fatalf("want uniform-plane mean to equal the plane's constant value, got %v", matrix.At(0, 3))
	}
}

func TestChooseOffsetUnitBoundaries(t *testing.T) {
	cases := []struct {
		arcsec float64
		want   OffsetUnit
	}{
		{0.001, UnitMas},
		{1.0, UnitArcsec},
		{150, UnitArcmin},
		{10000, UnitDeg},
	}
	for _, c := range cases {
		unit, _ := ChooseOffsetUnit(c.arcsec)
		if unit != c.want {
			t.Fatalf("ChooseOffsetUnit(%v): want %v, got %v", c.arcsec, c.want, unit)
		}
	}
}

func TestImageReverseTransposes(t *testing.T) {
	line := Line{Points: []region.Point2D{{X: 0, Y: 0}, {X: 2, Y: 0}}, WidthPixels: 1}
	boxes, _ := BuildBoxes(line, 1.0)
	fetch := func(ctx context.Context, z int) ([]float32, error) { return make([]float32, 9), nil }
	matrix, err := BuildProfiles(context.Background(), fetch, boxes, 3, 3, 0, 4, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("BuildProfiles: %v", err)
	}
	r, c := matrix.Dims()
	out := Image(matrix, true)
	or, oc := out.Dims()
	if or != c || oc != r {
		t.Fatalf("reverse image should transpose dims: want %dx%d, got %dx%d", c, r, or, oc)
	}
}
