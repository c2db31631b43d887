package placement

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wudi/pdfstudio/builder"
	"github.com/wudi/pdfstudio/coords"
	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/observability"
)

// Watermark is text stamped across the centre of a page.
type Watermark struct {
	Text     string
	Font     string
	Size     float64  // default 48
	Color    *Color   // default 50% gray
	Opacity  float64  // default 0.3
	Rotation *float64 // degrees, default -45
}

func (Watermark) kind() string { return "watermark" }

func (w Watermark) draw(c builder.Canvas, box coords.Rect) error {
	if w.Text == "" {
		return ErrEmptyText
	}
	rotation := -45.0
	if w.Rotation != nil {
		rotation = *w.Rotation
	}
	c.DrawText(w.Text, box.X+box.W/2, box.Y+box.H/2, builder.TextOptions{
		Font:     w.Font,
		FontSize: orDefault(w.Size, 48),
		Color:    colorOr(w.Color, builder.Gray),
		Align:    builder.AlignCenter,
		Opacity:  orDefault(w.Opacity, 0.3),
		Rotation: rotation,
	})
	return nil
}

// NumberFormat selects the page number label.
type NumberFormat int

const (
	FormatPageNOfTotal NumberFormat = iota // "Page 3 of 10"
	FormatNumber                           // "3"
	FormatPageN                            // "Page 3"
)

// FormatPageNumber renders the label for page n of total.
func FormatPageNumber(f NumberFormat, n, total int) string {
	switch f {
	case FormatNumber:
		return strconv.Itoa(n)
	case FormatPageN:
		return fmt.Sprintf("Page %d", n)
	default:
		return fmt.Sprintf("Page %d of %d", n, total)
	}
}

// Position is one of the six page number anchors.
type Position int

const (
	BottomCenter Position = iota
	BottomLeft
	BottomRight
	TopLeft
	TopCenter
	TopRight
)

var positionNames = map[string]Position{
	"bottom-center": BottomCenter,
	"bottom-left":   BottomLeft,
	"bottom-right":  BottomRight,
	"top-left":      TopLeft,
	"top-center":    TopCenter,
	"top-right":     TopRight,
}

// ParsePosition reads names such as "top-left" or "bottom-center".
func ParsePosition(s string) (Position, error) {
	p, ok := positionNames[s]
	if !ok {
		return 0, fmt.Errorf("unknown position %q", s)
	}
	return p, nil
}

// PageNumbers labels a page with its number. StartAt is the number given to
// the first page of the document.
type PageNumbers struct {
	Format   NumberFormat
	Position Position
	Margin   float64 // default 30
	Size     float64 // default 10
	StartAt  int     // default 1
	Font     string
	Color    *Color
}

func (PageNumbers) kind() string { return "page numbers" }

func (pn PageNumbers) draw(c builder.Canvas, box coords.Rect, index, total int) error {
	start := pn.StartAt
	if start == 0 {
		start = 1
	}
	size := orDefault(pn.Size, 10)
	margin := orDefault(pn.Margin, 30)
	label := FormatPageNumber(pn.Format, start+index, total)

	x, y, align := box.X+margin, box.Y+margin-size, builder.AlignLeft
	switch pn.Position {
	case TopLeft, TopCenter, TopRight:
		y = box.Y + box.H - margin
	}
	switch pn.Position {
	case BottomCenter, TopCenter:
		x, align = box.X+box.W/2, builder.AlignCenter
	case BottomRight, TopRight:
		x, align = box.X+box.W-margin, builder.AlignRight
	}
	c.DrawText(label, x, y, builder.TextOptions{
		Font:     pn.Font,
		FontSize: size,
		Color:    colorOr(pn.Color, builder.Black),
		Align:    align,
	})
	return nil
}

// ApplyWatermark stamps w on every page of doc.
func ApplyWatermark(ctx context.Context, doc *document.Document, w Watermark) (*document.Document, error) {
	return applyAll(ctx, doc, w)
}

// ApplyPageNumbers labels every page of doc.
func ApplyPageNumbers(ctx context.Context, doc *document.Document, pn PageNumbers) (*document.Document, error) {
	return applyAll(ctx, doc, pn)
}

func applyAll(ctx context.Context, doc *document.Document, item Item) (*document.Document, error) {
	for i := 0; i < doc.PageCount(); i++ {
		if _, err := Place(ctx, doc, i, item); err != nil {
			return nil, err
		}
	}
	doc.Logger().Info("stamped pages", observability.String("kind", item.kind()), observability.Int("pages", doc.PageCount()))
	return doc, nil
}
