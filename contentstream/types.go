package contentstream

// TextRenderMode matches PDF text rendering modes set via Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// LineCap represents the line cap style (J operator).
type LineCap int

const (
	LineCapButt LineCap = iota
	LineCapRound
	LineCapSquare
)

// LineJoin represents the line join style (j operator).
type LineJoin int

const (
	LineJoinMiter LineJoin = iota
	LineJoinRound
	LineJoinBevel
)

// Path describes a graphics path made of subpaths.
type Path struct {
	Subpaths []Subpath
}

// Subpath is a run of segments started by a move.
type Subpath struct {
	Points []PathPoint
	Closed bool
}

// PathPoint is a segment end point. Curves carry both control points.
type PathPoint struct {
	X, Y                 float64
	Type                 PathPointType
	Control1X, Control1Y float64
	Control2X, Control2Y float64
}

type PathPointType int

const (
	PathMoveTo PathPointType = iota
	PathLineTo
	PathCurveTo
)

// kappa places Bezier control points for a quarter ellipse.
const kappa = 0.5522847498

// Ellipse approximates the ellipse inscribed in the box with four curves.
func Ellipse(x, y, w, h float64) *Path {
	rx, ry := w/2, h/2
	cx, cy := x+rx, y+ry
	ox, oy := rx*kappa, ry*kappa
	return &Path{Subpaths: []Subpath{{
		Closed: true,
		Points: []PathPoint{
			{X: cx + rx, Y: cy, Type: PathMoveTo},
			{X: cx, Y: cy + ry, Type: PathCurveTo, Control1X: cx + rx, Control1Y: cy + oy, Control2X: cx + ox, Control2Y: cy + ry},
			{X: cx - rx, Y: cy, Type: PathCurveTo, Control1X: cx - ox, Control1Y: cy + ry, Control2X: cx - rx, Control2Y: cy + oy},
			{X: cx, Y: cy - ry, Type: PathCurveTo, Control1X: cx - rx, Control1Y: cy - oy, Control2X: cx - ox, Control2Y: cy - ry},
			{X: cx + rx, Y: cy, Type: PathCurveTo, Control1X: cx + ox, Control1Y: cy - ry, Control2X: cx + rx, Control2Y: cy - oy},
		},
	}}}
}

// Operations emits the construction operators for the path.
func (p *Path) Operations() []Operation {
	var ops []Operation
	for _, sp := range p.Subpaths {
		for _, pt := range sp.Points {
			switch pt.Type {
			case PathMoveTo:
				ops = append(ops, Op("m", Nums(pt.X, pt.Y)...))
			case PathLineTo:
				ops = append(ops, Op("l", Nums(pt.X, pt.Y)...))
			case PathCurveTo:
				ops = append(ops, Op("c", Nums(pt.Control1X, pt.Control1Y, pt.Control2X, pt.Control2Y, pt.X, pt.Y)...))
			}
		}
		if sp.Closed {
			ops = append(ops, Op("h"))
		}
	}
	return ops
}
