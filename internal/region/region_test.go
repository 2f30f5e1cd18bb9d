package region

import (
	"testing"

	"github.com/pspoerri/carta-compute/internal/loader"
	"github.com/pspoerri/carta-compute/internal/loader/memraster"
)

func TestStateEqualRotationTolerance(t *testing.T) {
	a := State{ReferenceFileID: 1, Type: Rectangle, ControlPoints: []Point2D{{1, 1}, {2, 2}}, RotationDeg: 45}
	b := a
	b.RotationDeg = 45 + 1e-12
	if !a.Equal(b) {
		t.Fatalf("rotation within tolerance should compare equal")
	}
	b.RotationDeg = 45 + 1e-6
	if a.Equal(b) {
		t.Fatalf("rotation beyond tolerance should not compare equal")
	}
}

func TestSetStateBumpsGeneration(t *testing.T) {
	s := State{Type: Point, ControlPoints: []Point2D{{0, 0}}}
	r := NewRegion(s, Style{})
	if changed := r.SetState(s); changed {
		t.Fatalf("identical state should not change")
	}
	if r.Generation != 0 {
		t.Fatalf("generation should stay 0")
	}
	s2 := s
	s2.ControlPoints = []Point2D{{1, 1}}
	if changed := r.SetState(s2); !changed {
		t.Fatalf("different control points should change")
	}
	if r.Generation != 1 {
		t.Fatalf("generation should bump to 1, got %d", r.Generation)
	}
}

func TestTypeIsClosed(t *testing.T) {
	for _, typ := range []Type{Rectangle, Ellipse, Polygon} {
		if !typ.IsClosed() {
			t.Fatalf("%v should be closed", typ)
		}
	}
	for _, typ := range []Type{Point, Line, Polyline} {
		if typ.IsClosed() {
			t.Fatalf("%v should not be closed", typ)
		}
	}
}

func TestApplyToShapeAnnotationReturnsNil(t *testing.T) {
	s := State{Type: AnnotationText, ControlPoints: []Point2D{{5, 5}}}
	csys := memraster.IdentityCoordinateSystem{}
	got := ApplyToShape(s, csys, csys, loader.Shape{Width: 10, Height: 10})
	if got != nil {
		t.Fatalf("annotation-only region should not apply")
	}
}

func TestApplyToShapeRectangleUnrotated(t *testing.T) {
	s := State{Type: Rectangle, ControlPoints: []Point2D{{5, 5}, {4, 2}}}
	csys := memraster.IdentityCoordinateSystem{}
	lat := ApplyToShape(s, csys, csys, loader.Shape{Width: 10, Height: 10})
	if lat == nil {
		t.Fatalf("rectangle should produce a lattice")
	}
	if !lat.At(5, 5) {
		t.Fatalf("center should be inside")
	}
	if lat.At(0, 0) {
		t.Fatalf("(0,0) should be outside a 4x2 box centered at (5,5)")
	}
}

func TestApplyToShapeOutsideImageReturnsNil(t *testing.T) {
	s := State{Type: Point, ControlPoints: []Point2D{{100, 100}}}
	csys := memraster.IdentityCoordinateSystem{}
	got := ApplyToShape(s, csys, csys, loader.Shape{Width: 10, Height: 10})
	if got != nil {
		t.Fatalf("point outside target image should not apply")
	}
}

func TestPolygonLatticeContainsCenter(t *testing.T) {
	pts := []Point2D{{2, 2}, {8, 2}, {8, 8}, {2, 8}}
	s := State{Type: Polygon, ControlPoints: pts}
	csys := memraster.IdentityCoordinateSystem{}
	lat := ApplyToShape(s, csys, csys, loader.Shape{Width: 10, Height: 10})
	if lat == nil || !lat.At(5, 5) {
		t.Fatalf("square polygon should contain its center")
	}
	if lat.At(0, 0) {
		t.Fatalf("corner outside the polygon should not be set")
	}
}
