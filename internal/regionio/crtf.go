package regionio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pspoerri/carta-compute/internal/errs"
	"github.com/pspoerri/carta-compute/internal/region"
)

// CRTF implements Importer and Exporter for a pixel-coordinate subset of
// the CASA Region Text Format: one region per line, "type [[cx pix, cy
// pix], ...] # style=value ...". Supported types: symbol (point), line,
// poly, box/rotbox, circle, ellipse/rotbox with rotation. Grounded on
// CrtfImportExport.cc's per-type line dispatch (region name prefix
// switch), not its casacore unit/frame handling.
type CRTF struct {
	lines []string
}

const crtfHeader = "#CRTF"

func (c *CRTF) Import(contents string) ([]region.Properties, error) {
	var out []region.Properties
	var errLines []string
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		props, err := parseCrtfLine(line)
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

func parseCrtfLine(line string) (region.Properties, error) {
	body, comment, _ := strings.Cut(line, "#")
	body = strings.TrimSpace(body)
	name, rest, ok := strings.Cut(body, "[")
	if !ok {
		return region.Properties{}, fmt.Errorf("missing control point list")
	}
	name = strings.TrimSpace(name)
	rest = "[" + rest
	groups, err := splitBracketGroups(rest)
	if err != nil {
		return region.Properties{}, err
	}

	var typ region.Type
	switch name {
	case "symbol":
		typ = region.Point
	case "line":
		typ = region.Line
	case "poly":
		typ = region.Polygon
	case "box", "rotbox", "centerbox":
		typ = region.Rectangle
	case "circle", "ellipse":
		typ = region.Ellipse
	default:
		return region.Properties{}, fmt.Errorf("unsupported region type %q", name)
	}

	var pts []region.Point2D
	var rotation float64
	switch typ {
	case region.Polygon, region.Line:
		for _, g := range groups {
			p, err := parsePixelPair(g)
			if err != nil {
				return region.Properties{}, err
			}
			pts = append(pts, p)
		}
	case region.Ellipse:
		if name == "circle" {
			if len(groups) != 2 {
				return region.Properties{}, fmt.Errorf("circle wants [center],[radius]")
			}
			center, err := parsePixelPair(groups[0])
			if err != nil {
				return region.Properties{}, err
			}
			r, err := parsePixelScalar(groups[1])
			if err != nil {
				return region.Properties{}, err
			}
			pts = []region.Point2D{center, {X: r, Y: r}}
			break
		}
		if len(groups) < 2 {
			return region.Properties{}, fmt.Errorf("ellipse wants [center],[axes]")
		}
		center, err := parsePixelPair(groups[0])
		if err != nil {
			return region.Properties{}, err
		}
		axes, err := parsePixelPair(groups[1])
		if err != nil {
			return region.Properties{}, err
		}
		pts = []region.Point2D{center, axes}
		if len(groups) >= 3 {
			rotation, _ = parseDegScalar(groups[2])
		}
	case region.Rectangle:
		if len(groups) < 2 {
			return region.Properties{}, fmt.Errorf("box wants [center],[size]")
		}
		center, err := parsePixelPair(groups[0])
		if err != nil {
			return region.Properties{}, err
		}
		size, err := parsePixelPair(groups[1])
		if err != nil {
			return region.Properties{}, err
		}
		pts = []region.Point2D{center, size}
		if len(groups) >= 3 {
			rotation, _ = parseDegScalar(groups[2])
		}
	case region.Point:
		if len(groups) != 1 {
			return region.Properties{}, fmt.Errorf("symbol wants a single control point")
		}
		p, err := parsePixelPair(groups[0])
		if err != nil {
			return region.Properties{}, err
		}
		pts = []region.Point2D{p}
	}

	state := region.State{Type: typ, ControlPoints: pts, RotationDeg: rotation}
	style := parseCrtfStyle(comment)
	return region.Properties{State: state, Style: style}, nil
}

func parseCrtfStyle(comment string) region.Style {
	var style region.Style
	for _, tok := range strings.Fields(comment) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		v = strings.Trim(v, `"`)
		switch k {
		case "color":
			style.Color = v
		case "width":
			style.LineWidth, _ = strconv.ParseFloat(v, 64)
		case "dash":
			style.DashLength, _ = strconv.ParseFloat(v, 64)
		case "font":
			style.Font = v
		case "fontsize":
			style.FontSize, _ = strconv.ParseFloat(v, 64)
		case "symsize":
			style.PointShape = v
		case "label":
			style.Name = v
		}
	}
	return style
}

// splitBracketGroups splits "[[a, b], [c, d], e]" into its top-level
// bracketed/bare comma-separated groups: "[a, b]", "[c, d]", "e".
func splitBracketGroups(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	var groups []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets")
			}
		case ',':
			if depth == 0 {
				groups = append(groups, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	groups = append(groups, strings.TrimSpace(s[start:]))
	return groups, nil
}

func parsePixelPair(group string) (region.Point2D, error) {
	group = strings.TrimPrefix(strings.TrimSpace(group), "[")
	group = strings.TrimSuffix(group, "]")
	parts := strings.Split(group, ",")
	if len(parts) != 2 {
		return region.Point2D{}, fmt.Errorf("want a [x, y] pair, got %q", group)
	}
	x, err := parsePixelScalar(parts[0])
	if err != nil {
		return region.Point2D{}, err
	}
	y, err := parsePixelScalar(parts[1])
	if err != nil {
		return region.Point2D{}, err
	}
	return region.Point2D{X: x, Y: y}, nil
}

func parsePixelScalar(tok string) (float64, error) {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimSuffix(tok, "pix")
	tok = strings.TrimSpace(tok)
	return strconv.ParseFloat(tok, 64)
}

func parseDegScalar(tok string) (float64, error) {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimSuffix(tok, "deg")
	tok = strings.TrimSpace(tok)
	return strconv.ParseFloat(tok, 64)
}

func (c *CRTF) AddExportRegion(props region.Properties) error {
	line, err := crtfLineFor(props)
	if err != nil {
		return err
	}
	c.lines = append(c.lines, line)
	return nil
}

func (c *CRTF) Export() (string, error) {
	var b strings.Builder
	b.WriteString(crtfHeader + "\n")
	for _, line := range c.lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func crtfLineFor(props region.Properties) (string, error) {
	s := props.State
	pts := s.ControlPoints
	var body string
	switch s.Type {
	case region.Point:
		if len(pts) != 1 {
			return "", fmt.Errorf("point region wants one control point")
		}
		body = fmt.Sprintf("symbol [[%s]]", pixPair(pts[0]))
	case region.Line, region.Polyline:
		groups := make([]string, len(pts))
		for i, p := range pts {
			groups[i] = "[" + pixPair(p) + "]"
		}
		body = fmt.Sprintf("line [%s]", strings.Join(groups, ", "))
	case region.Polygon:
		groups := make([]string, len(pts))
		for i, p := range pts {
			groups[i] = "[" + pixPair(p) + "]"
		}
		body = fmt.Sprintf("poly [%s]", strings.Join(groups, ", "))
	case region.Rectangle:
		if len(pts) != 2 {
			return "", fmt.Errorf("box region wants center + size")
		}
		name := "box"
		if s.RotationDeg != 0 {
			name = "rotbox"
		}
		body = fmt.Sprintf("%s [[%s], [%s]%s]", name, pixPair(pts[0]), pixPair(pts[1]), rotationSuffix(s.RotationDeg))
	case region.Ellipse:
		if len(pts) != 2 {
			return "", fmt.Errorf("ellipse region wants center + axes")
		}
		if pts[1].X == pts[1].Y {
			body = fmt.Sprintf("circle [[%s], %.6gpix]", pixPair(pts[0]), pts[1].X)
			break
		}
		body = fmt.Sprintf("ellipse [[%s], [%s]%s]", pixPair(pts[0]), pixPair(pts[1]), rotationSuffix(s.RotationDeg))
	default:
		return "", fmt.Errorf("unsupported region type for CRTF export")
	}
	if style := crtfStyleComment(props.Style); style != "" {
		body += " # " + style
	}
	return body, nil
}

func rotationSuffix(rotDeg float64) string {
	if rotDeg == 0 {
		return ""
	}
	return fmt.Sprintf(", %.6gdeg", rotDeg)
}

func pixPair(p region.Point2D) string {
	return fmt.Sprintf("%.6gpix, %.6gpix", p.X, p.Y)
}

func crtfStyleComment(style region.Style) string {
	var parts []string
	if style.Color != "" {
		parts = append(parts, fmt.Sprintf("color=%s", style.Color))
	}
	if style.LineWidth != 0 {
		parts = append(parts, fmt.Sprintf("width=%g", style.LineWidth))
	}
	if style.Name != "" {
		parts = append(parts, fmt.Sprintf("label=%q", style.Name))
	}
	return strings.Join(parts, " ")
}
