package builder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/pdfstudio/contentstream"
	"github.com/wudi/pdfstudio/coords"
	"github.com/wudi/pdfstudio/fonts"
	"github.com/wudi/pdfstudio/ir/raw"
)

// Resource categories understood by ResourceSink.
const (
	CategoryFont      = "Font"
	CategoryXObject   = "XObject"
	CategoryExtGState = "ExtGState"
)

// ResourceSink is where a canvas registers the objects its operators name.
// AddResource calls build only when no object with the same key exists yet,
// and returns the resource name to use in the content stream.
type ResourceSink interface {
	fonts.ObjectAdder
	AddResource(category, key string, build func() (raw.Object, error)) (string, error)
}

// Canvas accumulates drawing operators for one page. Methods chain; the first
// failure is kept and reported by Err.
type Canvas interface {
	DrawText(text string, x, y float64, opts TextOptions) Canvas
	DrawRectangle(x, y, width, height float64, opts RectOptions) Canvas
	DrawEllipse(x, y, width, height float64, opts PathOptions) Canvas
	DrawLine(x1, y1, x2, y2 float64, opts LineOptions) Canvas
	DrawPath(path *contentstream.Path, opts PathOptions) Canvas
	DrawImage(img *Image, x, y, width, height float64, opts ImageOptions) Canvas
	Operations() []contentstream.Operation
	Bytes() []byte
	Err() error
}

// Align positions each text line relative to x.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

// TextOptions configures text drawing.
type TextOptions struct {
	Font       string // standard font name; empty selects Helvetica
	FontSize   float64
	Color      Color
	Align      Align
	Opacity    float64 // 0 means opaque
	Rotation   float64 // degrees, counter-clockwise about (x, y)
	RenderMode contentstream.TextRenderMode
	// Leading is the line distance as a multiple of FontSize; zero means 1.2.
	Leading float64
}

// PathOptions configures path drawing.
type PathOptions struct {
	StrokeColor Color
	FillColor   Color
	LineWidth   float64
	LineCap     contentstream.LineCap
	LineJoin    contentstream.LineJoin
	DashPattern []float64
	DashPhase   float64
	Fill        bool
	Stroke      bool
	Opacity     float64
}

// RectOptions configures rectangle drawing (defaults to stroke if neither fill nor stroke is set).
type RectOptions = PathOptions

// LineOptions configures line drawing.
type LineOptions struct {
	StrokeColor Color
	LineWidth   float64
	LineCap     contentstream.LineCap
	DashPattern []float64
	DashPhase   float64
	Opacity     float64
}

// ImageOptions configures image drawing.
type ImageOptions struct {
	Interpolate bool
	Opacity     float64
}

// Color is an RGB color with components in [0,1].
type Color struct {
	R, G, B float64
}

var (
	Black  = Color{}
	White  = Color{R: 1, G: 1, B: 1}
	Red    = Color{R: 1}
	Yellow = Color{R: 1, G: 1}
	Gray   = Color{R: 0.5, G: 0.5, B: 0.5}
)

var ErrInvalidColor = errors.New("invalid color")

// ParseHexColor accepts "#RRGGBB" and "#RGB", with or without the hash.
func ParseHexColor(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	var rgb [3]float64
	for i := 0; i < 3; i++ {
		hi, ok1 := hexNibble(h[2*i])
		lo, ok2 := hexNibble(h[2*i+1])
		if !ok1 || !ok2 {
			return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
		}
		rgb[i] = float64(hi<<4|lo) / 255
	}
	return Color{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

type canvas struct {
	sink ResourceSink
	ops  []contentstream.Operation
	err  error
}

// NewCanvas starts an empty operator list drawing into sink's resources.
func NewCanvas(sink ResourceSink) Canvas { return &canvas{sink: sink} }

func (c *canvas) Operations() []contentstream.Operation { return c.ops }
func (c *canvas) Bytes() []byte                          { return contentstream.Encode(c.ops) }
func (c *canvas) Err() error                             { return c.err }

func (c *canvas) fail(err error) Canvas {
	if c.err == nil {
		c.err = err
	}
	return c
}

func (c *canvas) emit(op string, operands ...raw.Object) {
	c.ops = append(c.ops, contentstream.Op(op, operands...))
}

// MeasureText returns the width of the widest line of text as DrawText would
// draw it.
func MeasureText(text, font string, size float64) (float64, error) {
	face, err := fonts.Select(font, text)
	if err != nil {
		return 0, err
	}
	widest := 0.0
	for _, line := range strings.Split(text, "\n") {
		if w := face.Width(line, size); w > widest {
			widest = w
		}
	}
	return widest, nil
}

func (c *canvas) DrawText(text string, x, y float64, opts TextOptions) Canvas {
	if c.err != nil {
		return c
	}
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}
	face, err := fonts.Select(opts.Font, text)
	if err != nil {
		return c.fail(err)
	}
	fontName, err := c.sink.AddResource(CategoryFont, face.CacheKey(), func() (raw.Object, error) {
		return face.Object(c.sink)
	})
	if err != nil {
		return c.fail(err)
	}
	leading := opts.Leading
	if leading <= 0 {
		leading = 1.2
	}

	c.emit("q")
	if err := c.applyOpacity(opts.Opacity); err != nil {
		return c.fail(err)
	}
	m := coords.Translate(x, y)
	if opts.Rotation != 0 {
		m = coords.RotateDegrees(opts.Rotation).Multiply(m)
	}
	if m != coords.Identity() {
		c.emit("cm", contentstream.Nums(m[:]...)...)
	}
	c.emit("BT")
	c.emit("Tf", raw.NameLiteral(fontName), raw.NumberFloat(size))
	if opts.RenderMode != contentstream.TextFill {
		c.emit("Tr", raw.NumberInt(int64(opts.RenderMode)))
	}
	c.emit("rg", colorOperands(opts.Color)...)
	if isStrokeMode(opts.RenderMode) {
		c.emit("RG", colorOperands(opts.Color)...)
	}
	for i, line := range strings.Split(text, "\n") {
		dx := 0.0
		switch opts.Align {
		case AlignCenter:
			dx = -face.Width(line, size) / 2
		case AlignRight:
			dx = -face.Width(line, size)
		}
		c.emit("Tm", contentstream.Nums(1, 0, 0, 1, dx, -float64(i)*size*leading)...)
		c.emit("Tj", raw.Str(face.Encode(line)))
	}
	c.emit("ET")
	c.emit("Q")
	return c
}

func (c *canvas) DrawRectangle(x, y, width, height float64, opts RectOptions) Canvas {
	if !opts.Stroke && !opts.Fill {
		opts.Stroke = true
	}
	return c.DrawPath(&contentstream.Path{Subpaths: []contentstream.Subpath{{
		Closed: true,
		Points: []contentstream.PathPoint{
			{X: x, Y: y, Type: contentstream.PathMoveTo},
			{X: x + width, Y: y, Type: contentstream.PathLineTo},
			{X: x + width, Y: y + height, Type: contentstream.PathLineTo},
			{X: x, Y: y + height, Type: contentstream.PathLineTo},
		},
	}}}, opts)
}

func (c *canvas) DrawEllipse(x, y, width, height float64, opts PathOptions) Canvas {
	if !opts.Stroke && !opts.Fill {
		opts.Stroke = true
	}
	return c.DrawPath(contentstream.Ellipse(x, y, width, height), opts)
}

func (c *canvas) DrawLine(x1, y1, x2, y2 float64, opts LineOptions) Canvas {
	return c.DrawPath(&contentstream.Path{Subpaths: []contentstream.Subpath{{
		Points: []contentstream.PathPoint{
			{X: x1, Y: y1, Type: contentstream.PathMoveTo},
			{X: x2, Y: y2, Type: contentstream.PathLineTo},
		},
	}}}, PathOptions{
		StrokeColor: opts.StrokeColor,
		LineWidth:   opts.LineWidth,
		LineCap:     opts.LineCap,
		DashPattern: opts.DashPattern,
		DashPhase:   opts.DashPhase,
		Stroke:      true,
		Opacity:     opts.Opacity,
	})
}

func (c *canvas) DrawPath(path *contentstream.Path, opts PathOptions) Canvas {
	if c.err != nil || path == nil {
		return c
	}
	c.emit("q")
	if err := c.applyOpacity(opts.Opacity); err != nil {
		return c.fail(err)
	}
	c.applyPathState(opts)
	c.ops = append(c.ops, path.Operations()...)
	c.emit(paintOperator(opts.Fill, opts.Stroke))
	c.emit("Q")
	return c
}

func (c *canvas) DrawImage(img *Image, x, y, width, height float64, opts ImageOptions) Canvas {
	if c.err != nil || img == nil {
		return c
	}
	name, err := c.sink.AddResource(CategoryXObject, img.CacheKey(), func() (raw.Object, error) {
		return img.Object(c.sink, opts.Interpolate), nil
	})
	if err != nil {
		return c.fail(err)
	}
	w, h := width, height
	if w == 0 {
		w = float64(img.Width)
	}
	if h == 0 {
		h = float64(img.Height)
	}
	c.emit("q")
	if err := c.applyOpacity(opts.Opacity); err != nil {
		return c.fail(err)
	}
	c.emit("cm", contentstream.Nums(w, 0, 0, h, x, y)...)
	c.emit("Do", raw.NameLiteral(name))
	c.emit("Q")
	return c
}

// applyOpacity selects a constant-alpha graphics state for values in (0,1).
func (c *canvas) applyOpacity(alpha float64) error {
	if alpha <= 0 || alpha >= 1 {
		return nil
	}
	key := fmt.Sprintf("gs:alpha:%.4f", alpha)
	name, err := c.sink.AddResource(CategoryExtGState, key, func() (raw.Object, error) {
		d := raw.Dict()
		d.Put("Type", raw.NameLiteral("ExtGState"))
		d.Put("ca", raw.NumberFloat(alpha))
		d.Put("CA", raw.NumberFloat(alpha))
		return d, nil
	})
	if err != nil {
		return err
	}
	c.emit("gs", raw.NameLiteral(name))
	return nil
}

func (c *canvas) applyPathState(opts PathOptions) {
	if opts.Fill {
		c.emit("rg", colorOperands(opts.FillColor)...)
	}
	if opts.Stroke {
		c.emit("RG", colorOperands(opts.StrokeColor)...)
		if opts.LineWidth > 0 {
			c.emit("w", raw.NumberFloat(opts.LineWidth))
		}
		if opts.LineCap != 0 {
			c.emit("J", raw.NumberInt(int64(opts.LineCap)))
		}
		if opts.LineJoin != 0 {
			c.emit("j", raw.NumberInt(int64(opts.LineJoin)))
		}
		if len(opts.DashPattern) > 0 {
			c.emit("d", raw.NewArray(contentstream.Nums(opts.DashPattern...)...), raw.NumberFloat(opts.DashPhase))
		}
	}
}

func colorOperands(c Color) []raw.Object {
	return contentstream.Nums(c.R, c.G, c.B)
}

func paintOperator(fill, stroke bool) string {
	switch {
	case fill && stroke:
		return "B"
	case fill:
		return "f"
	default:
		return "S"
	}
}

func isStrokeMode(mode contentstream.TextRenderMode) bool {
	return mode == contentstream.TextStroke ||
		mode == contentstream.TextFillStroke ||
		mode == contentstream.TextStrokeClip ||
		mode == contentstream.TextFillStrokeClip
}
