package region

import (
	"math"

	"github.com/pspoerri/carta-compute/internal/loader"
)

// Lattice is a 2D lattice region mask in a target file's pixel grid:
// a bounding box origin plus a row-major boolean mask of that box's
// extent, mirroring casacore::LCRegion's bounding-box-plus-mask shape.
// A nil *Lattice return from ApplyToShape means the region either lies
// entirely outside the target image or is annotation-only.
type Lattice struct {
	OriginX, OriginY int
	Width, Height    int
	Mask             []bool // len Width*Height, true where inside the region
}

// At reports whether pixel (x,y) in target-image pixel coordinates is
// inside the lattice region.
func (l *Lattice) At(x, y int) bool {
	lx, ly := x-l.OriginX, y-l.OriginY
	if lx < 0 || ly < 0 || lx >= l.Width || ly >= l.Height {
		return false
	}
	return l.Mask[ly*l.Width+lx]
}

// worldPoint converts a reference-pixel control point to world
// coordinates on the reference file's X/Y axes.
func worldPoint(cs loader.CoordinateSystem, p Point2D) (wx, wy float64) {
	return cs.PixelToWorld(0, p.X), cs.PixelToWorld(1, p.Y)
}

// pixelFromWorld inverts the linear PixelToWorld relation: pixel =
// (crpix-1) + (world-crval)/cdelt. Target loaders expose only the
// forward conversion, so the inverse is reconstructed from CRPix/CRVal/
// CDelt directly rather than by bisection.
func pixelFromWorld(cs loader.CoordinateSystem, axis int, world float64) float64 {
	cdelt := cs.CDelt(axis)
	if cdelt == 0 {
		cdelt = 1
	}
	return (cs.CRPix(axis) - 1) + (world-cs.CRVal(axis))/cdelt
}

// projectControlPoints converts a region's control points from the
// reference file's pixel grid to the target file's pixel grid via their
// respective coordinate systems' world coordinates. When refCsys and
// targetCsys are the same (or both identity), this is a no-op.
func projectControlPoints(pts []Point2D, refCsys, targetCsys loader.CoordinateSystem) []Point2D {
	out := make([]Point2D, len(pts))
	for i, p := range pts {
		wx, wy := worldPoint(refCsys, p)
		out[i] = Point2D{
			X: pixelFromWorld(targetCsys, 0, wx),
			Y: pixelFromWorld(targetCsys, 1, wy),
		}
	}
	return out
}

// ApplyToShape converts r's state into a target-image lattice mask,
// following RegionHandler::ApplyRegionToFile: returns nil when the type
// is annotation-only, when the region's control points don't resolve
// (empty), or when its bounding box does not intersect the target shape
// at all.
func ApplyToShape(s State, refCsys, targetCsys loader.CoordinateSystem, target loader.Shape) *Lattice {
	if s.Type.IsAnnotationOnly() || len(s.ControlPoints) == 0 {
		return nil
	}
	pts := projectControlPoints(s.ControlPoints, refCsys, targetCsys)

	switch s.Type {
	case Point:
		return pointLattice(pts[0], target)
	case Rectangle:
		return rectangleLattice(pts[0], pts[1], s.RotationDeg, target)
	case Ellipse:
		return ellipseLattice(pts[0], pts[1], s.RotationDeg, target)
	case Polygon:
		return polygonLattice(pts, target)
	case Line, Polyline:
		return polylineLattice(pts, target)
	default:
		return nil
	}
}

func clampBox(minX, minY, maxX, maxY int, target loader.Shape) (int, int, int, int, bool) {
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX > target.Width {
		maxX = target.Width
	}
	if maxY > target.Height {
		maxY = target.Height
	}
	if minX >= maxX || minY >= maxY {
		return 0, 0, 0, 0, false
	}
	return minX, minY, maxX, maxY, true
}

func pointLattice(p Point2D, target loader.Shape) *Lattice {
	x, y := int(math.Round(p.X)), int(math.Round(p.Y))
	if x < 0 || y < 0 || x >= target.Width || y >= target.Height {
		return nil
	}
	return &Lattice{OriginX: x, OriginY: y, Width: 1, Height: 1, Mask: []bool{true}}
}

// rectangleLattice builds a mask for a (possibly rotated) rectangle with
// center `center` and full width/height carried in `size` (matching the
// CARTA convention of control points [center, size]).
func rectangleLattice(center, size Point2D, rotationDeg float64, target loader.Shape) *Lattice {
	halfW, halfH := size.X/2, size.Y/2
	theta := rotationDeg * math.Pi / 180
	cosT, sinT := math.Cos(theta), math.Sin(theta)

	// Bounding box of the rotated rectangle's 4 corners.
	corners := rotatedCorners(center, halfW, halfH, cosT, sinT)
	minX, minY, maxX, maxY := boundingBox(corners)
	ox, oy, mx, my, ok := clampBox(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1, target)
	if !ok {
		return nil
	}
	w, h := mx-ox, my-oy
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px, py := float64(ox+x)+0.5, float64(oy+y)+0.5
			// rotate the point into the rectangle's local frame
			dx, dy := px-center.X, py-center.Y
			lx := dx*cosT + dy*sinT
			ly := -dx*sinT + dy*cosT
			if math.Abs(lx) <= halfW && math.Abs(ly) <= halfH {
				mask[y*w+x] = true
			}
		}
	}
	return &Lattice{OriginX: ox, OriginY: oy, Width: w, Height: h, Mask: mask}
}

func rotatedCorners(center Point2D, halfW, halfH, cosT, sinT float64) [4]Point2D {
	local := [4]Point2D{{-halfW, -halfH}, {halfW, -halfH}, {halfW, halfH}, {-halfW, halfH}}
	var out [4]Point2D
	for i, p := range local {
		out[i] = Point2D{
			X: center.X + p.X*cosT - p.Y*sinT,
			Y: center.Y + p.X*sinT + p.Y*cosT,
		}
	}
	return out
}

func boundingBox(pts [4]Point2D) (minX, minY, maxX, maxY float64) {
	minX, minY = pts[0].X, pts[0].Y
	maxX, maxY = pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return
}

// ellipseLattice builds a mask for a (possibly rotated) ellipse with
// center `center` and semi-axes carried in `semiAxes` (x=major, y=minor).
func ellipseLattice(center, semiAxes Point2D, rotationDeg float64, target loader.Shape) *Lattice {
	theta := rotationDeg * math.Pi / 180
	cosT, sinT := math.Cos(theta), math.Sin(theta)
	r := math.Max(semiAxes.X, semiAxes.Y)
	ox, oy, mx, my, ok := clampBox(
		int(math.Floor(center.X-r)), int(math.Floor(center.Y-r)),
		int(math.Ceil(center.X+r))+1, int(math.Ceil(center.Y+r))+1, target)
	if !ok {
		return nil
	}
	w, h := mx-ox, my-oy
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px, py := float64(ox+x)+0.5, float64(oy+y)+0.5
			dx, dy := px-center.X, py-center.Y
			lx := dx*cosT + dy*sinT
			ly := -dx*sinT + dy*cosT
			if semiAxes.X > 0 && semiAxes.Y > 0 {
				v := (lx*lx)/(semiAxes.X*semiAxes.X) + (ly*ly)/(semiAxes.Y*semiAxes.Y)
				if v <= 1 {
					mask[y*w+x] = true
				}
			}
		}
	}
	return &Lattice{OriginX: ox, OriginY: oy, Width: w, Height: h, Mask: mask}
}

// polygonLattice rasterizes an arbitrary simple polygon via even-odd
// ray casting, sampling at pixel centers.
func polygonLattice(pts []Point2D, target loader.Shape) *Lattice {
	if len(pts) < 3 {
		return nil
	}
	minX, minY, maxX, maxY := pts[0].X, pts[0].Y, pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	ox, oy, mx, my, ok := clampBox(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1, target)
	if !ok {
		return nil
	}
	w, h := mx-ox, my-oy
	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px, py := float64(ox+x)+0.5, float64(oy+y)+0.5
			if pointInPolygon(px, py, pts) {
				mask[y*w+x] = true
			}
		}
	}
	return &Lattice{OriginX: ox, OriginY: oy, Width: w, Height: h, Mask: mask}
}

func pointInPolygon(px, py float64, pts []Point2D) bool {
	inside := false
	n := len(pts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (a.Y > py) != (b.Y > py) {
			xIntersect := (b.X-a.X)*(py-a.Y)/(b.Y-a.Y) + a.X
			if px < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

// polylineLattice marks only the pixels a Line/Polyline passes through
// (used by spectral/stats requests made against a thin line region,
// which RegionHandler treats via per-segment sampling rather than area).
func polylineLattice(pts []Point2D, target loader.Shape) *Lattice {
	if len(pts) < 2 {
		return nil
	}
	minX, minY, maxX, maxY := pts[0].X, pts[0].Y, pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	ox, oy, mx, my, ok := clampBox(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1, target)
	if !ok {
		return nil
	}
	w, h := mx-ox, my-oy
	mask := make([]bool, w*h)
	for i := 0; i+1 < len(pts); i++ {
		rasterizeSegment(pts[i], pts[i+1], ox, oy, w, h, mask)
	}
	return &Lattice{OriginX: ox, OriginY: oy, Width: w, Height: h, Mask: mask}
}

// rasterizeSegment walks a line via Bresenham's algorithm, marking each
// touched cell of mask (w×h, origin ox,oy).
func rasterizeSegment(a, b Point2D, ox, oy, w, h int, mask []bool) {
	x0, y0 := int(math.Round(a.X))-ox, int(math.Round(a.Y))-oy
	x1, y1 := int(math.Round(b.X))-ox, int(math.Round(b.Y))-oy
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		if x0 >= 0 && y0 >= 0 && x0 < w && y0 < h {
			mask[y0*w+x0] = true
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
