// Package placement draws user content onto existing pages: text, images,
// shapes, markup bars, signatures, watermarks and page numbers.
//
// Every item is positioned in page space relative to the lower-left corner
// of the page's visible box. Drawing goes through builder.Canvas and is
// appended to the page as a new content stream, so existing page content is
// never rewritten. FromImages starts a fresh document from rasters instead.
package placement

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfstudio/builder"
	"github.com/wudi/pdfstudio/coords"
	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/observability"
)

// MaxImagePixels is the largest raster, in pixels, embedded without
// downscaling.
const MaxImagePixels = 4096 * 4096

// Color is an RGB color with components in [0,1].
type Color = builder.Color

// Align positions text relative to its x coordinate.
type Align = builder.Align

const (
	AlignLeft   = builder.AlignLeft
	AlignCenter = builder.AlignCenter
	AlignRight  = builder.AlignRight
)

// ParseHexColor accepts "#RRGGBB" and "#RGB".
func ParseHexColor(s string) (Color, error) { return builder.ParseHexColor(s) }

// UnsupportedImageFormatError is returned when image bytes decode as neither
// the declared format nor the fallback.
type UnsupportedImageFormatError struct {
	Format string
	Err    error
}

func (e *UnsupportedImageFormatError) Error() string {
	return fmt.Sprintf("unsupported image format %q: %v", e.Format, e.Err)
}

func (e *UnsupportedImageFormatError) Unwrap() error { return e.Err }

var (
	ErrEmptyText = errors.New("text is empty")
	ErrNilItem   = errors.New("placement item is nil")
)

// Item is one drawable placement. The concrete types in this package are the
// only implementations.
type Item interface {
	kind() string
}

// Place draws item on the page at pageIndex and returns doc, which is
// modified in place.
func Place(ctx context.Context, doc *document.Document, pageIndex int, item Item) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNilItem
	}
	page, err := doc.Page(pageIndex)
	if err != nil {
		return nil, err
	}
	if err := placeOnPage(page, pageIndex, doc.PageCount(), item); err != nil {
		return nil, fmt.Errorf("place %s on page %d: %w", item.kind(), pageIndex+1, err)
	}
	doc.Logger().Debug("placed item", observability.String("kind", item.kind()), observability.Int("page", pageIndex))
	return doc, nil
}

func placeOnPage(page *document.Page, index, total int, item Item) error {
	box := page.Box()
	c := builder.NewCanvas(page)
	var err error
	switch it := item.(type) {
	case Text:
		err = it.draw(c, box)
	case Image:
		err = it.draw(c, box)
	case Shape:
		it.draw(c, box)
	case Highlight:
		it.draw(c, box)
	case Underline:
		it.draw(c, box)
	case Strikethrough:
		it.draw(c, box)
	case Signature:
		err = it.draw(c, box)
	case Watermark:
		err = it.draw(c, box)
	case PageNumbers:
		err = it.draw(c, box, index, total)
	default:
		return fmt.Errorf("unknown placement item %T", item)
	}
	if err != nil {
		return err
	}
	if err := c.Err(); err != nil {
		return err
	}
	page.AppendContent(c.Bytes())
	return nil
}

// DefaultSize returns the width and height used for an item placed without
// an explicit size.
func DefaultSize(item Item) (float64, float64) {
	switch item.(type) {
	case Image:
		return 200, 200
	case Shape:
		return 150, 100
	case Highlight, Underline, Strikethrough:
		return 200, 20
	case Signature:
		return 200, 100
	}
	return 0, 0
}

// DefaultTextPosition is where text goes when the caller gives no position.
func DefaultTextPosition(pageHeight float64) (float64, float64) {
	return 50, pageHeight - 100
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func colorOr(c *Color, def Color) Color {
	if c == nil {
		return def
	}
	return *c
}

// Text is a run of text; "\n" starts a new line.
type Text struct {
	Content  string
	X, Y     float64 // baseline of the first line
	Font     string  // standard font name, Helvetica when empty
	Size     float64 // default 12
	Color    *Color  // default black
	Align    Align
	Opacity  float64
	Rotation float64 // degrees counter-clockwise
}

func (Text) kind() string { return "text" }

func (t Text) draw(c builder.Canvas, box coords.Rect) error {
	if t.Content == "" {
		return ErrEmptyText
	}
	c.DrawText(t.Content, box.X+t.X, box.Y+t.Y, builder.TextOptions{
		Font:     t.Font,
		FontSize: orDefault(t.Size, 12),
		Color:    colorOr(t.Color, builder.Black),
		Align:    t.Align,
		Opacity:  t.Opacity,
		Rotation: t.Rotation,
	})
	return nil
}

// Image places a PNG or JPEG raster with its lower-left corner at X, Y.
type Image struct {
	Data          []byte
	Format        string // "png" or "jpeg"; the other decoder is tried too
	X, Y          float64
	Width, Height float64 // default 200x200
}

func (Image) kind() string { return "image" }

func (im Image) draw(c builder.Canvas, box coords.Rect) error {
	img, err := decodeImage(im.Data, im.Format)
	if err != nil {
		return err
	}
	dw, dh := DefaultSize(im)
	c.DrawImage(img, box.X+im.X, box.Y+im.Y, orDefault(im.Width, dw), orDefault(im.Height, dh), builder.ImageOptions{})
	return nil
}

func decodeImage(data []byte, format string) (*builder.Image, error) {
	img, err := builder.ImageFromBytes(data, format, MaxImagePixels)
	if err != nil {
		return nil, &UnsupportedImageFormatError{Format: format, Err: err}
	}
	return img, nil
}

// ShapeKind selects the outline a Shape draws.
type ShapeKind int

const (
	Rectangle ShapeKind = iota
	Circle
	Line
)

func (k ShapeKind) String() string {
	switch k {
	case Rectangle:
		return "rectangle"
	case Circle:
		return "circle"
	case Line:
		return "line"
	}
	return fmt.Sprintf("ShapeKind(%d)", int(k))
}

// Shape draws a rectangle, an ellipse inscribed in the box, or a line. A line
// runs along the bottom edge of the box, or corner to corner when Diagonal
// is set.
type Shape struct {
	Kind          ShapeKind
	X, Y          float64
	Width, Height float64 // default 150x100
	Stroke        *Color  // default black
	Fill          *Color  // nil leaves the shape unfilled
	BorderWidth   float64 // default 2
	Diagonal      bool
}

func (Shape) kind() string { return "shape" }

func (s Shape) draw(c builder.Canvas, box coords.Rect) {
	dw, dh := DefaultSize(s)
	x, y := box.X+s.X, box.Y+s.Y
	w, h := orDefault(s.Width, dw), orDefault(s.Height, dh)
	opts := builder.PathOptions{
		StrokeColor: colorOr(s.Stroke, builder.Black),
		LineWidth:   orDefault(s.BorderWidth, 2),
		Stroke:      true,
	}
	if s.Fill != nil {
		opts.Fill = true
		opts.FillColor = *s.Fill
	}
	switch s.Kind {
	case Circle:
		c.DrawEllipse(x, y, w, h, opts)
	case Line:
		x2, y2 := x+w, y
		if s.Diagonal {
			y2 = y + h
		}
		c.DrawLine(x, y, x2, y2, builder.LineOptions{StrokeColor: opts.StrokeColor, LineWidth: opts.LineWidth})
	default:
		c.DrawRectangle(x, y, w, h, opts)
	}
}

// Highlight is a translucent filled box.
type Highlight struct {
	X, Y          float64
	Width, Height float64 // default 200x20
	Color         *Color  // default yellow
	Opacity       float64 // default 0.4
}

func (Highlight) kind() string { return "highlight" }

func (hl Highlight) draw(c builder.Canvas, box coords.Rect) {
	dw, dh := DefaultSize(hl)
	c.DrawRectangle(box.X+hl.X, box.Y+hl.Y, orDefault(hl.Width, dw), orDefault(hl.Height, dh), builder.RectOptions{
		FillColor: colorOr(hl.Color, builder.Yellow),
		Fill:      true,
		Opacity:   orDefault(hl.Opacity, 0.4),
	})
}

// Underline is a solid bar along the bottom edge of its box.
type Underline struct {
	X, Y          float64
	Width, Height float64 // default 200x20
	Color         *Color  // default black
	Thickness     float64 // default 2
}

func (Underline) kind() string { return "underline" }

func (u Underline) draw(c builder.Canvas, box coords.Rect) {
	dw, _ := DefaultSize(u)
	drawBar(c, box.X+u.X, box.Y+u.Y, orDefault(u.Width, dw), orDefault(u.Thickness, 2), colorOr(u.Color, builder.Black))
}

// Strikethrough is a solid bar through the vertical middle of its box.
type Strikethrough struct {
	X, Y          float64
	Width, Height float64 // default 200x20
	Color         *Color  // default red
	Thickness     float64 // default 2
}

func (Strikethrough) kind() string { return "strikethrough" }

func (s Strikethrough) draw(c builder.Canvas, box coords.Rect) {
	dw, dh := DefaultSize(s)
	t := orDefault(s.Thickness, 2)
	mid := s.Y + orDefault(s.Height, dh)/2
	drawBar(c, box.X+s.X, box.Y+mid-t/2, orDefault(s.Width, dw), t, colorOr(s.Color, builder.Red))
}

func drawBar(c builder.Canvas, x, y, w, t float64, color Color) {
	c.DrawRectangle(x, y, w, t, builder.RectOptions{FillColor: color, Fill: true})
}

// SignatureCaption is printed under a signature image.
type SignatureCaption struct {
	SignerName string
	Date       string
}

// Signature places a finished signature raster, optionally captioned.
type Signature struct {
	Data          []byte
	Format        string
	X, Y          float64
	Width, Height float64 // default 200x100
	Caption       *SignatureCaption
}

func (Signature) kind() string { return "signature" }

func (s Signature) draw(c builder.Canvas, box coords.Rect) error {
	dw, dh := DefaultSize(s)
	img := Image{Data: s.Data, Format: s.Format, X: s.X, Y: s.Y, Width: orDefault(s.Width, dw), Height: orDefault(s.Height, dh)}
	if err := img.draw(c, box); err != nil {
		return err
	}
	if s.Caption == nil {
		return nil
	}
	x, y := box.X+s.X, box.Y+s.Y
	if s.Caption.SignerName != "" {
		c.DrawText("Signed by: "+s.Caption.SignerName, x, y-15, builder.TextOptions{FontSize: 10})
	}
	if s.Caption.Date != "" {
		c.DrawText("Date: "+s.Caption.Date, x, y-30, builder.TextOptions{FontSize: 8})
	}
	return nil
}
