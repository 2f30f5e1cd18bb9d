// Package region implements RegionState/RegionProperties, reference-file
// geometry, and lattice-mask application to a target file's pixel grid
// (spec.md's "Region" data type and the RegionHandler.ApplyRegionToFile
// semantics), independent of any particular open Frame.
package region

import "math"

// Type enumerates the region shapes a RegionState can hold. Annotation
// variants collapse to a handful of kinds that never participate in pixel
// statistics, matching RegionHandler::IsAnnotation's "true if line or
// polyline-like and presentational only" grouping.
type Type int

const (
	Point Type = iota
	Line
	Polyline
	Rectangle
	Ellipse
	Polygon
	AnnotationText
	AnnotationCompass
	AnnotationRuler
)

// IsClosed reports whether the type encloses an area (Rectangle, Ellipse,
// Polygon). Point, Line, Polyline and the annotation kinds are not closed:
// RegionHandler::IsClosedRegion excludes exactly LINE, POLYLINE and POINT.
func (t Type) IsClosed() bool {
	switch t {
	case Rectangle, Ellipse, Polygon:
		return true
	default:
		return false
	}
}

// IsLineLike reports whether the type is Line or Polyline, used for line
// spatial profile dispatch (fixed-pixel vs fixed-angular spacing).
func (t Type) IsLineLike() bool {
	return t == Line || t == Polyline
}

// IsAnnotationOnly reports whether the type never produces pixel data:
// ApplyRegionToFile returns null for these even when they fall inside the
// target image.
func (t Type) IsAnnotationOnly() bool {
	switch t {
	case AnnotationText, AnnotationCompass, AnnotationRuler:
		return true
	default:
		return false
	}
}

// Point2D is one control point in reference-file pixel coordinates.
type Point2D struct {
	X, Y float64
}

// rotationTolerance is the equality tolerance applied to RegionState
// rotation, resolving spec.md's Open Question about the source's
// float-exact rotation comparison producing cache misses across
// mathematically-identical but bit-different client values.
const rotationTolerance = 1e-9

// State is RegionState: a region's geometry, independent of any Frame.
// Two States compare equal (via Equal) iff every field matches, with
// rotation compared to rotationTolerance degrees.
type State struct {
	ReferenceFileID int
	Type            Type
	ControlPoints   []Point2D
	RotationDeg     float64
}

// Equal reports field-wise equality, with rotation compared within
// rotationTolerance degrees rather than float-exact.
func (s State) Equal(o State) bool {
	if s.ReferenceFileID != o.ReferenceFileID || s.Type != o.Type {
		return false
	}
	if math.Abs(s.RotationDeg-o.RotationDeg) > rotationTolerance {
		return false
	}
	if len(s.ControlPoints) != len(o.ControlPoints) {
		return false
	}
	for i := range s.ControlPoints {
		if s.ControlPoints[i] != o.ControlPoints[i] {
			return false
		}
	}
	return true
}

// Style is purely presentational and never affects geometry: color, line
// width, dash pattern, font, point shape.
type Style struct {
	Color       string
	LineWidth   float64
	DashLength  float64
	Font        string
	FontSize    float64
	PointShape  string
	Name        string
}

// Properties pairs a State with its Style, the unit RegionHandler hands
// back to clients on SetRegion/ImportRegion.
type Properties struct {
	State State
	Style Style
}

// Region is the handler-owned, mutable wrapper around a State: it tracks
// generation (bumped on every state change, for cache invalidation) and
// whether background tasks are still referencing it.
type Region struct {
	State      State
	Style      Style
	Generation uint64

	activeTasks int
}

// NewRegion constructs a Region at generation 0.
func NewRegion(state State, style Style) *Region {
	return &Region{State: state, Style: style}
}

// SetState replaces the region's state, returning whether it actually
// changed (field-wise, rotation-tolerant). A changed state bumps
// Generation, which callers use to invalidate per-region result caches
// and mark spectral requirements "new".
func (r *Region) SetState(s State) (changed bool) {
	if r.State.Equal(s) {
		return false
	}
	r.State = s
	r.Generation++
	return true
}

// BeginTask marks one more background computation as referencing this
// region; EndTask releases it. WaitForTaskCancellation-style teardown
// (RegionHandler.RemoveRegion) should not erase a region while
// ActiveTasks() > 0.
func (r *Region) BeginTask() { r.activeTasks++ }
func (r *Region) EndTask() {
	if r.activeTasks > 0 {
		r.activeTasks--
	}
}
func (r *Region) ActiveTasks() int { return r.activeTasks }
