package contentstream

import (
	"errors"
	"math"

	"github.com/wudi/pdfstudio/coords"
	"github.com/wudi/pdfstudio/ir/raw"
)

type Processor interface {
	Process(ops []Operation, state *GraphicsState) error
	RegisterHandler(op string, h OperatorHandler)
}

type OperatorHandler interface {
	Handle(state *GraphicsState, operands []raw.Object) error
}

// HandlerFunc adapts a function to OperatorHandler.
type HandlerFunc func(state *GraphicsState, operands []raw.Object) error

func (f HandlerFunc) Handle(state *GraphicsState, operands []raw.Object) error {
	return f(state, operands)
}

type GraphicsState struct {
	CTM       coords.Matrix
	LineWidth float64
	stack     []GraphicsState
}

// NewGraphicsState starts at the identity transform.
func NewGraphicsState() *GraphicsState {
	return &GraphicsState{CTM: coords.Identity(), LineWidth: 1}
}

func (gs *GraphicsState) Save() {
	clone := *gs
	clone.stack = nil
	gs.stack = append(gs.stack, clone)
}

func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	stack := gs.stack[:n-1]
	*gs = gs.stack[n-1]
	gs.stack = stack
	return nil
}

// Depth is the number of unmatched saves.
func (gs *GraphicsState) Depth() int { return len(gs.stack) }

type simpleProcessor struct{ handlers map[string]OperatorHandler }

// NewProcessor tracks q, Q, cm and w itself and hands every other operator to
// registered handlers.
func NewProcessor() Processor {
	return &simpleProcessor{handlers: make(map[string]OperatorHandler)}
}

func (p *simpleProcessor) RegisterHandler(op string, h OperatorHandler) { p.handlers[op] = h }

func (p *simpleProcessor) Process(ops []Operation, state *GraphicsState) error {
	for _, op := range ops {
		switch op.Operator {
		case "q":
			state.Save()
		case "Q":
			if err := state.Restore(); err != nil {
				return err
			}
		case "cm":
			if m, ok := matrixOperands(op.Operands); ok {
				state.CTM = m.Multiply(state.CTM)
			}
		case "w":
			if len(op.Operands) == 1 {
				if v, ok := raw.Float(op.Operands[0]); ok {
					state.LineWidth = v
				}
			}
		}
		if h, ok := p.handlers[op.Operator]; ok {
			if err := h.Handle(state, op.Operands); err != nil {
				return err
			}
		}
	}
	return nil
}

func matrixOperands(operands []raw.Object) (coords.Matrix, bool) {
	var m coords.Matrix
	if len(operands) != 6 {
		return m, false
	}
	for i, o := range operands {
		v, ok := raw.Float(o)
		if !ok {
			return m, false
		}
		m[i] = v
	}
	return m, true
}

// Mark is the page-space footprint of a painting operator.
type Mark struct {
	Operator string
	Name     string // XObject or font resource, when the operator names one
	Box      coords.Rect
}

// Trace runs ops and reports the page-space boxes of rectangles, XObjects and
// text origins.
func Trace(ops []Operation) ([]Mark, error) {
	var marks []Mark
	var textMatrix coords.Matrix
	var font string
	p := NewProcessor()
	p.RegisterHandler("re", HandlerFunc(func(gs *GraphicsState, operands []raw.Object) error {
		if len(operands) != 4 {
			return nil
		}
		vals := make([]float64, 4)
		for i, o := range operands {
			vals[i], _ = raw.Float(o)
		}
		marks = append(marks, Mark{Operator: "re", Box: bounds(gs.CTM, vals[0], vals[1], vals[2], vals[3])})
		return nil
	}))
	p.RegisterHandler("Do", HandlerFunc(func(gs *GraphicsState, operands []raw.Object) error {
		name := ""
		if len(operands) == 1 {
			if n, ok := operands[0].(raw.NameObj); ok {
				name = n.Val
			}
		}
		marks = append(marks, Mark{Operator: "Do", Name: name, Box: bounds(gs.CTM, 0, 0, 1, 1)})
		return nil
	}))
	p.RegisterHandler("BT", HandlerFunc(func(*GraphicsState, []raw.Object) error {
		textMatrix = coords.Identity()
		return nil
	}))
	p.RegisterHandler("Tf", HandlerFunc(func(_ *GraphicsState, operands []raw.Object) error {
		if len(operands) == 2 {
			if n, ok := operands[0].(raw.NameObj); ok {
				font = n.Val
			}
		}
		return nil
	}))
	p.RegisterHandler("Tm", HandlerFunc(func(_ *GraphicsState, operands []raw.Object) error {
		if m, ok := matrixOperands(operands); ok {
			textMatrix = m
		}
		return nil
	}))
	p.RegisterHandler("Td", HandlerFunc(func(_ *GraphicsState, operands []raw.Object) error {
		if len(operands) == 2 {
			tx, _ := raw.Float(operands[0])
			ty, _ := raw.Float(operands[1])
			textMatrix = coords.Translate(tx, ty).Multiply(textMatrix)
		}
		return nil
	}))
	showText := HandlerFunc(func(gs *GraphicsState, _ []raw.Object) error {
		origin := gs.CTM.Transform(textMatrix.Transform(coords.Point{}))
		marks = append(marks, Mark{Operator: "Tj", Name: font, Box: coords.Rect{X: origin.X, Y: origin.Y}})
		return nil
	})
	p.RegisterHandler("Tj", showText)
	p.RegisterHandler("TJ", showText)
	err := p.Process(ops, NewGraphicsState())
	return marks, err
}

func bounds(m coords.Matrix, x, y, w, h float64) coords.Rect {
	pts := []coords.Point{
		m.Transform(coords.Point{X: x, Y: y}),
		m.Transform(coords.Point{X: x + w, Y: y}),
		m.Transform(coords.Point{X: x, Y: y + h}),
		m.Transform(coords.Point{X: x + w, Y: y + h}),
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return coords.Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}
