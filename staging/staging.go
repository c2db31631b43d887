// Package staging holds a pending placement in memory while the user
// positions it on a page preview, and commits it through the placement
// engine only on an explicit confirm.
//
// Tap-to-place tools (text, image, shape, signature) move through
// Idle -> ToolSelected -> AwaitingPlacement -> Staged -> Committed|Cancelled
// and back to Idle. Markup tools (highlight, underline, strikethrough) are
// placed with one drag gesture that commits on release.
package staging

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/wudi/pdfstudio/builder"
	"github.com/wudi/pdfstudio/coords"
	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/observability"
	"github.com/wudi/pdfstudio/placement"
)

type State int

const (
	Idle State = iota
	ToolSelected
	AwaitingPlacement
	Staged
	Committed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ToolSelected:
		return "ToolSelected"
	case AwaitingPlacement:
		return "AwaitingPlacement"
	case Staged:
		return "Staged"
	case Committed:
		return "Committed"
	case Cancelled:
		return "Cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Tool int

const (
	ToolNone Tool = iota
	ToolText
	ToolImage
	ToolShape
	ToolSignature
	ToolHighlight
	ToolUnderline
	ToolStrikethrough
)

func (t Tool) String() string {
	switch t {
	case ToolNone:
		return "none"
	case ToolText:
		return "text"
	case ToolImage:
		return "image"
	case ToolShape:
		return "shape"
	case ToolSignature:
		return "signature"
	case ToolHighlight:
		return "highlight"
	case ToolUnderline:
		return "underline"
	case ToolStrikethrough:
		return "strikethrough"
	}
	return fmt.Sprintf("Tool(%d)", int(t))
}

// DragBox reports whether the tool is placed with a single drag gesture.
func (t Tool) DragBox() bool {
	return t == ToolHighlight || t == ToolUnderline || t == ToolStrikethrough
}

// TransitionError is returned when an event is not valid in the current
// state. The session is left unchanged.
type TransitionError struct {
	From  State
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("staging: %s not allowed in state %s", e.Event, e.From)
}

var ErrPayloadMismatch = errors.New("payload does not match tool")

type point struct{ x, y float64 }

// Session is one editing session over a document. It is not safe for
// concurrent use.
type Session struct {
	ID string

	doc          *document.Document
	page         int
	viewW, viewH float64
	logger       observability.Logger

	state   State
	tool    Tool
	payload placement.Item

	// anchor is the staged item's lower-left corner in page space.
	anchor        point
	width, height float64

	dragFrom, dragTo point
	dragging         bool
}

// NewSession starts an idle session on the first page of doc, previewed at
// viewW x viewH.
func NewSession(doc *document.Document, viewW, viewH float64) *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		doc:    doc,
		viewW:  viewW,
		viewH:  viewH,
		logger: doc.Logger().With(observability.String("session", id)),
	}
}

func (s *Session) State() State                 { return s.state }
func (s *Session) Tool() Tool                   { return s.tool }
func (s *Session) Document() *document.Document { return s.doc }
func (s *Session) Page() int                    { return s.page }

// Viewport maps between the preview and the current page.
func (s *Session) Viewport() coords.Viewport {
	p, err := s.doc.Page(s.page)
	if err != nil {
		return coords.Viewport{ViewW: s.viewW, ViewH: s.viewH}
	}
	return p.Viewport(s.viewW, s.viewH)
}

// SetViewSize records a new preview size. A staged item keeps its page
// position.
func (s *Session) SetViewSize(w, h float64) {
	s.viewW, s.viewH = w, h
}

// SetPage switches the page being edited. It is rejected while an item is
// staged or a drag is in progress.
func (s *Session) SetPage(i int) error {
	if s.state == Staged || s.dragging {
		return &TransitionError{From: s.state, Event: "set page"}
	}
	if _, err := s.doc.Page(i); err != nil {
		return err
	}
	s.page = i
	return nil
}

func (s *Session) transition(to State, event string) {
	s.logger.Debug("staging transition",
		observability.String("event", event),
		observability.String("from", s.state.String()),
		observability.String("to", to.String()))
	s.state = to
}

// SelectTool picks the tool and its payload template. Tap-to-place tools
// then wait for a position; drag-box tools wait for DragStart. The payload
// may be nil for drag-box tools.
func (s *Session) SelectTool(tool Tool, payload placement.Item) error {
	switch s.state {
	case Idle, ToolSelected, AwaitingPlacement:
	default:
		return &TransitionError{From: s.state, Event: "select tool"}
	}
	if err := checkPayload(tool, payload); err != nil {
		return err
	}
	s.tool, s.payload, s.dragging = tool, payload, false
	s.transition(ToolSelected, "select tool")
	if !tool.DragBox() {
		s.transition(AwaitingPlacement, "await placement")
	}
	return nil
}

func checkPayload(tool Tool, payload placement.Item) error {
	ok := false
	switch payload.(type) {
	case placement.Text:
		ok = tool == ToolText
	case placement.Image:
		ok = tool == ToolImage
	case placement.Shape:
		ok = tool == ToolShape
	case placement.Signature:
		ok = tool == ToolSignature
	case placement.Highlight:
		ok = tool == ToolHighlight
	case placement.Underline:
		ok = tool == ToolUnderline
	case placement.Strikethrough:
		ok = tool == ToolStrikethrough
	case nil:
		ok = tool.DragBox()
	}
	if !ok {
		return fmt.Errorf("%w: %s with %T", ErrPayloadMismatch, tool, payload)
	}
	return nil
}

// BeginPlacement stages the selected item with its lower-left corner at a
// page position, or centred on the page when at is nil.
func (s *Session) BeginPlacement(at *coords.Point) error {
	if s.state != AwaitingPlacement {
		return &TransitionError{From: s.state, Event: "begin placement"}
	}
	w, h, err := itemSize(s.payload)
	if err != nil {
		return err
	}
	s.width, s.height = w, h
	if at != nil {
		s.anchor = point{at.X, at.Y}
	} else {
		v := s.Viewport()
		s.anchor = point{(v.PageW - w) / 2, (v.PageH - h) / 2}
	}
	s.transition(Staged, "begin placement")
	return nil
}

// Tap stages the selected item with the top-left corner of its preview at
// the tapped preview point.
func (s *Session) Tap(vx, vy float64) error {
	if s.state != AwaitingPlacement {
		return &TransitionError{From: s.state, Event: "tap"}
	}
	w, h, err := itemSize(s.payload)
	if err != nil {
		return err
	}
	s.width, s.height = w, h
	s.moveTo(vx, vy)
	s.transition(Staged, "tap")
	return nil
}

// Drag moves the staged item so the top-left corner of its preview is at
// (vx, vy). The document is not touched.
func (s *Session) Drag(vx, vy float64) error {
	if s.state != Staged {
		return &TransitionError{From: s.state, Event: "drag"}
	}
	s.moveTo(vx, vy)
	return nil
}

func (s *Session) moveTo(vx, vy float64) {
	x, top := s.Viewport().ViewToDoc(vx, vy)
	s.anchor = point{x, top - s.height}
}

// Staged returns the pending item positioned where it would be committed.
func (s *Session) Staged() (placement.Item, bool) {
	if s.state != Staged {
		return nil, false
	}
	return positioned(s.payload, s.anchor.x, s.anchor.y, s.width, s.height), true
}

// PreviewRect is the staged item's box in preview coordinates, top-left
// anchored.
func (s *Session) PreviewRect() (coords.Rect, bool) {
	if s.state != Staged {
		return coords.Rect{}, false
	}
	v := s.Viewport()
	x, y := v.DocToView(s.anchor.x, s.anchor.y+s.height)
	w, h := v.DocSizeToView(s.width, s.height)
	return coords.Rect{X: x, Y: y, W: w, H: h}, true
}

// Confirm writes the staged item into the document and returns to Idle. If
// placement fails the item stays staged.
func (s *Session) Confirm(ctx context.Context) error {
	item, ok := s.Staged()
	if !ok {
		return &TransitionError{From: s.state, Event: "confirm"}
	}
	if _, err := placement.Place(ctx, s.doc, s.page, item); err != nil {
		return err
	}
	s.finish(Committed, "confirm")
	return nil
}

// Cancel discards the selection or the staged item without touching the
// document.
func (s *Session) Cancel() error {
	if s.state == Idle {
		return &TransitionError{From: s.state, Event: "cancel"}
	}
	s.finish(Cancelled, "cancel")
	return nil
}

func (s *Session) finish(outcome State, event string) {
	s.transition(outcome, event)
	s.tool, s.payload, s.dragging = ToolNone, nil, false
	s.transition(Idle, "reset")
}

// DragStart begins a drag-box gesture for a markup tool.
func (s *Session) DragStart(vx, vy float64) error {
	if s.state != ToolSelected || !s.tool.DragBox() {
		return &TransitionError{From: s.state, Event: "drag start"}
	}
	s.dragFrom, s.dragTo, s.dragging = point{vx, vy}, point{vx, vy}, true
	s.transition(AwaitingPlacement, "drag start")
	return nil
}

// DragMove extends the drag box.
func (s *Session) DragMove(vx, vy float64) error {
	if !s.dragging {
		return &TransitionError{From: s.state, Event: "drag move"}
	}
	s.dragTo = point{vx, vy}
	return nil
}

// DragEnd finishes the gesture and commits the box straight through the
// placement engine.
func (s *Session) DragEnd(ctx context.Context, vx, vy float64) error {
	if !s.dragging {
		return &TransitionError{From: s.state, Event: "drag end"}
	}
	s.dragTo = point{vx, vy}
	item := s.dragBoxItem()
	if _, err := placement.Place(ctx, s.doc, s.page, item); err != nil {
		s.dragging = false
		s.transition(ToolSelected, "drag failed")
		return err
	}
	s.finish(Committed, "drag end")
	return nil
}

// dragBoxItem converts the finished gesture into a placement. The box is at
// least one unit wide; underline and strikethrough bars are two preview
// pixels thick, and never thinner than two units.
func (s *Session) dragBoxItem() placement.Item {
	v := s.Viewport()
	r := v.ViewRectToDoc(s.dragFrom.x, s.dragFrom.y, s.dragTo.x, s.dragTo.y)
	w := math.Max(1, r.W)
	h := math.Max(1, r.H)
	bar := math.Max(2, 2*v.ScaleY())
	switch s.tool {
	case ToolUnderline:
		u, _ := s.payload.(placement.Underline)
		u.X, u.Y, u.Width, u.Height, u.Thickness = r.X, r.Y, w, h, bar
		return u
	case ToolStrikethrough:
		st, _ := s.payload.(placement.Strikethrough)
		st.X, st.Y, st.Width, st.Height, st.Thickness = r.X, r.Y, w, h, bar
		return st
	default:
		hl, _ := s.payload.(placement.Highlight)
		hl.X, hl.Y, hl.Width, hl.Height = r.X, r.Y, w, h
		return hl
	}
}

// textLeading matches the line distance placement draws text with.
const textLeading = 1.2

func textSize(t placement.Text) float64 {
	if t.Size <= 0 {
		return 12
	}
	return t.Size
}

// itemSize is the page-space extent used to preview an item.
func itemSize(item placement.Item) (float64, float64, error) {
	switch it := item.(type) {
	case placement.Text:
		size := textSize(it)
		w, err := builder.MeasureText(it.Content, it.Font, size)
		if err != nil {
			return 0, 0, err
		}
		lines := float64(strings.Count(it.Content, "\n"))
		return w, size * (1 + textLeading*lines), nil
	case placement.Image:
		return sized(item, it.Width, it.Height)
	case placement.Shape:
		return sized(item, it.Width, it.Height)
	case placement.Signature:
		return sized(item, it.Width, it.Height)
	}
	w, h := placement.DefaultSize(item)
	return w, h, nil
}

func sized(item placement.Item, w, h float64) (float64, float64, error) {
	dw, dh := placement.DefaultSize(item)
	if w <= 0 {
		w = dw
	}
	if h <= 0 {
		h = dh
	}
	return w, h, nil
}

// positioned returns a copy of item moved to (x, y). Sizes resolved for
// the preview are written back so the committed item matches it.
func positioned(item placement.Item, x, y, w, h float64) placement.Item {
	switch it := item.(type) {
	case placement.Text:
		// x, y is the box's lower-left corner; text is drawn from the
		// first baseline at its alignment anchor.
		switch it.Align {
		case placement.AlignCenter:
			x += w / 2
		case placement.AlignRight:
			x += w
		}
		it.X, it.Y = x, y+h-textSize(it)
		return it
	case placement.Image:
		it.X, it.Y, it.Width, it.Height = x, y, w, h
		return it
	case placement.Shape:
		it.X, it.Y, it.Width, it.Height = x, y, w, h
		return it
	case placement.Signature:
		it.X, it.Y, it.Width, it.Height = x, y, w, h
		return it
	}
	return item
}
