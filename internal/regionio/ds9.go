package regionio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/region"
)

// DS9 implements Importer and Exporter for a pixel-coordinate subset of
// the DS9/funtools region format: one region per line,
// "type(cx,cy,...) # style=value ...". Supported shapes: point, line,
// box, circle, ellipse, polygon. A leading "image" or "physical"
// coordinate-system keyword line is accepted and ignored — this package
// only ever deals in image pixel coordinates. Grounded on
// Ds9ImportExport.h's per-shape ProcessFileLines dispatch, not its
// coordinate-frame conversion machinery.
type DS9 struct {
	lines []string
}

func (d *DS9) Import(contents string) ([]region.Properties, error) {
	var out []region.Properties
	var errLines []string
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lower := strings.ToLower(line)
		if lower == "image" || lower == "physical" || lower == "fk5" || lower == "global" || strings.HasPrefix(lower, "global ") {
			continue
		}
		props, err := parseDs9Line(line)
		if err != nil {
			errLines = append(errLines, fmt.Sprintf("%q: %v", line, err))
			continue
		}
		out = append(out, props)
	}
	if len(errLines) > 0 {
		return out, errs.New(errs.UnsupportedOperation, "could not parse: "+strings.Join(errLines, "; "))
	}
	return out, nil
}

func parseDs9Line(line string) (region.Properties, error) {
	body, comment, _ := strings.Cut(line, "#")
	body = strings.TrimSpace(body)
	name, rest, ok := strings.Cut(body, "(")
	if !ok {
		return region.Properties{}, fmt.Errorf("missing parameter list")
	}
	name = strings.ToLower(strings.TrimSpace(name))
	rest = strings.TrimSuffix(strings.TrimSpace(rest), ")")
	fields := strings.Split(rest, ",")
	nums := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return region.Properties{}, fmt.Errorf("bad numeric field %q: %w", f, err)
		}
		nums[i] = v
	}

	var state region.State
	switch name {
	case "point":
		if len(nums) < 2 {
			return region.Properties{}, fmt.Errorf("point wants 2 fields")
		}
		state = region.State{Type: region.Point, ControlPoints: []region.Point2D{{X: nums[0], Y: nums[1]}}}
	case "line":
		if len(nums) < 4 {
			return region.Properties{}, fmt.Errorf("line wants 4 fields")
		}
		state = region.State{Type: region.Line, ControlPoints: []region.Point2D{{X: nums[0], Y: nums[1]}, {X: nums[2], Y: nums[3]}}}
	case "circle":
		if len(nums) < 3 {
			return region.Properties{}, fmt.Errorf("circle wants 3 fields")
		}
		state = region.State{Type: region.Ellipse, ControlPoints: []region.Point2D{{X: nums[0], Y: nums[1]}, {X: nums[2], Y: nums[2]}}}
	case "ellipse":
		if len(nums) < 4 {
			return region.Properties{}, fmt.Errorf("ellipse wants 4 fields")
		}
		rot := 0.0
		if len(nums) >= 5 {
			rot = nums[4]
		}
		state = region.State{Type: region.Ellipse, ControlPoints: []region.Point2D{{X: nums[0], Y: nums[1]}, {X: nums[2], Y: nums[3]}}, RotationDeg: rot}
	case "box":
		if len(nums) < 4 {
			return region.Properties{}, fmt.Errorf("box wants 4 fields")
		}
		rot := 0.0
		if len(nums) >= 5 {
			rot = nums[4]
		}
		state = region.State{Type: region.Rectangle, ControlPoints: []region.Point2D{{X: nums[0], Y: nums[1]}, {X: nums[2], Y: nums[3]}}, RotationDeg: rot}
	case "polygon":
		if len(nums) < 6 || len(nums)%2 != 0 {
			return region.Properties{}, fmt.Errorf("polygon wants an even number of fields, at least 6")
		}
		pts := make([]region.Point2D, len(nums)/2)
		for i := range pts {
			pts[i] = region.Point2D{X: nums[2*i], Y: nums[2*i+1]}
		}
		state = region.State{Type: region.Polygon, ControlPoints: pts}
	default:
		return region.Properties{}, fmt.Errorf("unsupported region type %q", name)
	}

	return region.Properties{State: state, Style: parseDs9Style(comment)}, nil
}

func parseDs9Style(comment string) region.Style {
	var style region.Style
	for _, tok := range strings.Fields(comment) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		v = strings.Trim(v, `"{}`)
		switch k {
		case "color":
			style.Color = v
		case "width":
			style.LineWidth, _ = strconv.ParseFloat(v, 64)
		case "font":
			style.Font = v
		case "text":
			style.Name = v
		case "point":
			style.PointShape = v
		}
	}
	return style
}

func (d *DS9) AddExportRegion(props region.Properties) error {
	line, err := ds9LineFor(props)
	if err != nil {
		return err
	}
	d.lines = append(d.lines, line)
	return nil
}

func (d *DS9) Export() (string, error) {
	var b strings.Builder
	b.WriteString("# Region file format: DS9\nimage\n")
	for _, line := range d.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func ds9LineFor(props region.Properties) (string, error) {
	s := props.State
	pts := s.ControlPoints
	var body string
	switch s.Type {
	case region.Point:
		if len(pts) != 1 {
			return "", fmt.Errorf("point region wants one control point")
		}
		body = fmt.Sprintf("point(%s)", num2(pts[0]))
	case region.Line, region.Polyline:
		if len(pts) < 2 {
			return "", fmt.Errorf("line region wants at least two control points")
		}
		body = fmt.Sprintf("line(%s,%s)", num2(pts[0]), num2(pts[1]))
	case region.Polygon:
		parts := make([]string, len(pts))
		for i, p := range pts {
			parts[i] = num2(p)
		}
		body = fmt.Sprintf("polygon(%s)", strings.Join(parts, ","))
	case region.Rectangle:
		if len(pts) != 2 {
			return "", fmt.Errorf("box region wants center + size")
		}
		body = fmt.Sprintf("box(%s,%s,%.6g)", num2(pts[0]), num2(pts[1]), s.RotationDeg)
	case region.Ellipse:
		if len(pts) != 2 {
			return "", fmt.Errorf("ellipse region wants center + axes")
		}
		if pts[1].X == pts[1].Y {
			body = fmt.Sprintf("circle(%g,%g,%.6g)", pts[0].X, pts[0].Y, pts[1].X)
			break
		}
		body = fmt.Sprintf("ellipse(%s,%s,%.6g)", num2(pts[0]), num2(pts[1]), s.RotationDeg)
	default:
		return "", fmt.Errorf("unsupported region type for DS9 export")
	}
	if style := ds9StyleComment(props.Style); style != "" {
		body += " # " + style
	}
	return body, nil
}

func num2(p region.Point2D) string {
	return fmt.Sprintf("%.6g,%.6g", p.X, p.Y)
}

func ds9StyleComment(style region.Style) string {
	var parts []string
	if style.Color != "" {
		parts = append(parts, fmt.Sprintf("color=%s", style.Color))
	}
	if style.LineWidth != 0 {
		parts = append(parts, fmt.Sprintf("width=%g", style.LineWidth))
	}
	if style.Name != "" {
		parts = append(parts, fmt.Sprintf("text={%s}", style.Name))
	}
	return strings.Join(parts, " ")
}
