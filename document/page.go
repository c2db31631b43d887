package document

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/wudi/pdfstudio/coords"
	"github.com/wudi/pdfstudio/filters"
	"github.com/wudi/pdfstudio/ir/raw"
)

// Page is one page of a Document. Inherited attributes are already copied
// onto the page dictionary, so every accessor reads the page alone.
type Page struct {
	doc  *Document
	ref  raw.ObjectRef
	dict *raw.DictObj
	// wrapped is set once the original content is isolated in q/Q.
	wrapped bool
}

// Document is the owner of the page.
func (p *Page) Document() *Document { return p.doc }

// Ref is the page object's reference inside its document.
func (p *Page) Ref() raw.ObjectRef { return p.ref }

// Box is the visible area: the CropBox when present, otherwise the MediaBox,
// normalised so that W and H are positive.
func (p *Page) Box() coords.Rect {
	if r, ok := p.rect("CropBox"); ok {
		return r
	}
	if r, ok := p.rect("MediaBox"); ok {
		return r
	}
	return coords.Rect{W: DefaultPageWidth, H: DefaultPageHeight}
}

// MediaBox is the page's media box without cropping applied.
func (p *Page) MediaBox() coords.Rect {
	if r, ok := p.rect("MediaBox"); ok {
		return r
	}
	return coords.Rect{W: DefaultPageWidth, H: DefaultPageHeight}
}

func (p *Page) rect(key string) (coords.Rect, bool) {
	arr, ok := p.doc.raw.Resolve(p.dict.KV[key]).(*raw.ArrayObj)
	if !ok || arr.Len() != 4 {
		return coords.Rect{}, false
	}
	var v [4]float64
	for i, item := range arr.Items {
		f, ok := raw.Float(p.doc.raw.Resolve(item))
		if !ok {
			return coords.Rect{}, false
		}
		v[i] = f
	}
	r := coords.Rect{
		X: math.Min(v[0], v[2]),
		Y: math.Min(v[1], v[3]),
		W: math.Abs(v[2] - v[0]),
		H: math.Abs(v[3] - v[1]),
	}
	if r.W == 0 || r.H == 0 {
		return coords.Rect{}, false
	}
	return r, true
}

// Size returns the width and height of the visible box in points, before
// rotation is applied.
func (p *Page) Size() (width, height float64) {
	b := p.Box()
	return b.W, b.H
}

// Rotation is the page's /Rotate normalised into [0, 360).
func (p *Page) Rotation() int {
	v, _ := p.dict.IntValue("Rotate")
	return NormalizeRotation(int(v))
}

// SetRotation sets the absolute rotation. Angles must be multiples of 90 and
// are stored normalised.
func (p *Page) SetRotation(angle int) error {
	if angle%90 != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRotation, angle)
	}
	norm := NormalizeRotation(angle)
	if norm == 0 {
		p.dict.Delete("Rotate")
		return nil
	}
	p.dict.Put("Rotate", raw.NumberInt(int64(norm)))
	return nil
}

// NormalizeRotation maps any angle into [0, 360).
func NormalizeRotation(angle int) int {
	return ((angle % 360) + 360) % 360
}

// AddObject stores obj in the owning document.
func (p *Page) AddObject(obj raw.Object) raw.RefObj { return p.doc.AddObject(obj) }

var resourcePrefix = map[string]string{
	"Font":      "F",
	"XObject":   "Im",
	"ExtGState": "GS",
}

// AddResource registers a resource under category and returns its name in
// this page's resource dictionary. Objects are shared across pages by key;
// build runs only the first time a key is seen in the document.
func (p *Page) AddResource(category, key string, build func() (raw.Object, error)) (string, error) {
	ref, ok := p.doc.resources[key]
	if ok {
		if _, live := p.doc.raw.Objects[ref]; !live {
			ok = false
		}
	}
	if !ok {
		obj, err := build()
		if err != nil {
			return "", err
		}
		ref = p.doc.AddObject(obj).R
		p.doc.resources[key] = ref
	}

	cat := p.ownCategory(category)
	for _, name := range cat.SortedKeys() {
		if r, isRef := cat.KV[name].(raw.RefObj); isRef && r.R == ref {
			return name, nil
		}
	}
	prefix, known := resourcePrefix[category]
	if !known {
		prefix = "R"
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		if _, taken := cat.Lookup(name); !taken {
			cat.Put(name, raw.RefObj{R: ref})
			return name, nil
		}
	}
}

// ownCategory returns a resource category dictionary owned by this page,
// copying shared dictionaries before they are modified.
func (p *Page) ownCategory(category string) *raw.DictObj {
	res, ok := p.dict.KV["Resources"].(*raw.DictObj)
	if !ok {
		shared, _ := p.doc.raw.Resolve(p.dict.KV["Resources"]).(*raw.DictObj)
		if shared != nil {
			res = raw.Clone(shared).(*raw.DictObj)
		} else {
			res = raw.Dict()
		}
		p.dict.Put("Resources", res)
	}
	cat, ok := res.KV[category].(*raw.DictObj)
	if !ok {
		shared, _ := p.doc.raw.Resolve(res.KV[category]).(*raw.DictObj)
		if shared != nil {
			cat = raw.Clone(shared).(*raw.DictObj)
		} else {
			cat = raw.Dict()
		}
		res.Put(category, cat)
	}
	return cat
}

// Contents returns the page's content stream references in drawing order.
func (p *Page) Contents() []raw.ObjectRef {
	var out []raw.ObjectRef
	switch v := p.dict.KV["Contents"].(type) {
	case raw.RefObj:
		if arr, ok := p.doc.raw.Resolve(v).(*raw.ArrayObj); ok {
			for _, item := range arr.Items {
				if r, ok := item.(raw.RefObj); ok {
					out = append(out, r.R)
				}
			}
			return out
		}
		out = append(out, v.R)
	case *raw.ArrayObj:
		for _, item := range v.Items {
			if r, ok := item.(raw.RefObj); ok {
				out = append(out, r.R)
			}
		}
	}
	return out
}

// ContentBytes returns the page's decoded content streams joined by
// newlines.
func (p *Page) ContentBytes(ctx context.Context) ([]byte, error) {
	pipeline := filters.Default(filters.Limits{})
	var buf bytes.Buffer
	for _, ref := range p.Contents() {
		stream, ok := p.doc.raw.Objects[ref].(*raw.StreamObj)
		if !ok {
			continue
		}
		names, params := filters.ExtractFilters(stream.Dict)
		data, err := pipeline.Decode(ctx, stream.Data, names, params)
		if err != nil {
			return nil, fmt.Errorf("content %s: %w", ref, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ResourceNames lists the names in one resource category, sorted.
func (p *Page) ResourceNames(category string) []string {
	res, _ := p.doc.raw.Resolve(p.dict.KV["Resources"]).(*raw.DictObj)
	if res == nil {
		return nil
	}
	cat, _ := p.doc.raw.Resolve(res.KV[category]).(*raw.DictObj)
	if cat == nil {
		return nil
	}
	return cat.SortedKeys()
}

// ResourceRef resolves a named resource of this page to its object.
func (p *Page) ResourceRef(category, name string) (raw.ObjectRef, bool) {
	res, _ := p.doc.raw.Resolve(p.dict.KV["Resources"]).(*raw.DictObj)
	if res == nil {
		return raw.ObjectRef{}, false
	}
	cat, _ := p.doc.raw.Resolve(res.KV[category]).(*raw.DictObj)
	if cat == nil {
		return raw.ObjectRef{}, false
	}
	ref, ok := cat.KV[name].(raw.RefObj)
	return ref.R, ok
}

// AppendContent draws data on top of the existing content. The first call
// wraps the existing streams in q/Q so their graphics state cannot leak into
// the appended operators.
func (p *Page) AppendContent(data []byte) {
	refs := p.Contents()
	if len(refs) > 0 && !p.wrapped {
		open := p.doc.AddObject(raw.NewStream(raw.Dict(), []byte("q\n"))).R
		closing := p.doc.AddObject(raw.NewStream(raw.Dict(), []byte("\nQ\n"))).R
		refs = append(append([]raw.ObjectRef{open}, refs...), closing)
	}
	p.wrapped = true
	refs = append(refs, p.doc.AddObject(raw.NewStream(raw.Dict(), data)).R)
	if len(refs) == 1 {
		p.dict.Put("Contents", raw.RefObj{R: refs[0]})
		return
	}
	items := make([]raw.Object, len(refs))
	for i, r := range refs {
		items[i] = raw.RefObj{R: r}
	}
	p.dict.Put("Contents", raw.NewArray(items...))
}

// Viewport returns the mapper between a preview of viewW x viewH pixels and
// this page's visible box.
func (p *Page) Viewport(viewW, viewH float64) coords.Viewport {
	w, h := p.Size()
	return coords.Viewport{ViewW: viewW, ViewH: viewH, PageW: w, PageH: h}
}
