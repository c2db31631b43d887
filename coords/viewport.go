package coords

// Viewport relates a rendered page preview (origin top-left, y down) to the
// page's user space (origin bottom-left, y up).
//
// Zero preview dimensions are treated as 1 so the mapping never divides by
// zero; the same applies to zero page dimensions for the inverse direction.
type Viewport struct {
	ViewW, ViewH float64
	PageW, PageH float64
}

// Rect is an axis-aligned box in page space, anchored at its lower-left corner.
type Rect struct {
	X, Y, W, H float64
}

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// ScaleX is the number of page units per preview unit horizontally.
func (v Viewport) ScaleX() float64 { return v.PageW / nonZero(v.ViewW) }

// ScaleY is the number of page units per preview unit vertically.
func (v Viewport) ScaleY() float64 { return v.PageH / nonZero(v.ViewH) }

// ViewToDoc maps a preview point to page space.
func (v Viewport) ViewToDoc(vx, vy float64) (float64, float64) {
	return vx * v.ScaleX(), v.PageH - vy*v.ScaleY()
}

// DocToView maps a page point to the preview.
func (v Viewport) DocToView(dx, dy float64) (float64, float64) {
	sx := nonZero(v.ViewW) / nonZero(v.PageW)
	sy := nonZero(v.ViewH) / nonZero(v.PageH)
	return dx * sx, (v.PageH - dy) * sy
}

// DocSizeToView scales a page-space extent to the preview without flipping.
func (v Viewport) DocSizeToView(dw, dh float64) (float64, float64) {
	return dw * nonZero(v.ViewW) / nonZero(v.PageW), dh * nonZero(v.ViewH) / nonZero(v.PageH)
}

// ViewSizeToDoc scales a preview extent to page space without flipping.
func (v Viewport) ViewSizeToDoc(vw, vh float64) (float64, float64) {
	return vw * v.ScaleX(), vh * v.ScaleY()
}

// ViewRectToDoc converts a dragged preview box to page space. The box is
// normalised first, so a drag in any direction gives the same result; the
// returned rectangle is anchored at the box's bottom-left corner.
func (v Viewport) ViewRectToDoc(x0, y0, x1, y1 float64) Rect {
	left, right := x0, x1
	if right < left {
		left, right = right, left
	}
	top, bottom := y0, y1
	if bottom < top {
		top, bottom = bottom, top
	}
	dx, dy := v.ViewToDoc(left, bottom)
	w, h := v.ViewSizeToDoc(right-left, bottom-top)
	return Rect{X: dx, Y: dy, W: w, H: h}
}

// Matrix returns the affine transform equivalent to ViewToDoc.
func (v Viewport) Matrix() Matrix {
	return Scale(v.ScaleX(), -v.ScaleY()).Multiply(Translate(0, v.PageH))
}
