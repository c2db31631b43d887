package document

import (
	"fmt"

	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/observability"
)

// AddBlankPage appends an empty page of the given size in points.
func (d *Document) AddBlankPage(width, height float64) *Page {
	dict := raw.Dict()
	dict.Put("Type", raw.NameLiteral("Page"))
	dict.Put("Parent", raw.RefObj{R: d.pagesRef})
	dict.Put("MediaBox", rectArray(0, 0, width, height))
	dict.Put("Resources", raw.Dict())
	ref := d.AddObject(dict).R
	p := &Page{doc: d, ref: ref, dict: dict}
	d.pages = append(d.pages, p)
	d.syncTree()
	return p
}

// ImportPages appends copies of src's pages at the given 0-based indices, in
// the given order. Objects reachable from the pages are copied once per call
// and shared between the copies; every index, repeated or not, yields a
// distinct page object. src is not modified.
func (d *Document) ImportPages(src *Document, indices []int) ([]*Page, error) {
	for _, i := range indices {
		if i < 0 || i >= len(src.pages) {
			return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, i, len(src.pages))
		}
	}
	im := &importer{
		dst:     d,
		src:     src,
		memo:    make(map[raw.ObjectRef]raw.ObjectRef),
		srcPage: make(map[raw.ObjectRef]bool, len(src.pages)),
		current: make(map[raw.ObjectRef]raw.ObjectRef),
	}
	for _, p := range src.pages {
		im.srcPage[p.ref] = true
	}
	added := make([]*Page, 0, len(indices))
	for _, i := range indices {
		sp := src.pages[i]
		ref := d.reserve()
		im.current[sp.ref] = ref
		dict := raw.Dict()
		for _, key := range sp.dict.SortedKeys() {
			if key == "Parent" {
				continue
			}
			dict.Put(key, im.copy(sp.dict.KV[key]))
		}
		dict.Put("Parent", raw.RefObj{R: d.pagesRef})
		d.raw.Objects[ref] = dict
		added = append(added, &Page{doc: d, ref: ref, dict: dict, wrapped: sp.wrapped})
	}
	if src.raw.Version > d.raw.Version {
		d.raw.Version = src.raw.Version
	}
	d.pages = append(d.pages, added...)
	d.syncTree()
	d.logger.Debug("pages imported", observability.Int("count", len(added)), observability.Int("objects", len(im.memo)))
	return added, nil
}

type importer struct {
	dst, src *Document
	memo     map[raw.ObjectRef]raw.ObjectRef
	srcPage  map[raw.ObjectRef]bool
	// current maps a source page to its most recent copy, so annotation /P
	// entries point at the copy being built.
	current map[raw.ObjectRef]raw.ObjectRef
}

func (im *importer) copy(o raw.Object) raw.Object {
	switch v := o.(type) {
	case raw.RefObj:
		if im.srcPage[v.R] {
			if ref, ok := im.current[v.R]; ok {
				return raw.RefObj{R: ref}
			}
			return raw.NullObj{}
		}
		if ref, ok := im.memo[v.R]; ok {
			return raw.RefObj{R: ref}
		}
		target, ok := im.src.raw.Objects[v.R]
		if !ok {
			return raw.NullObj{}
		}
		ref := im.dst.reserve()
		im.memo[v.R] = ref
		im.dst.raw.Objects[ref] = im.copy(target)
		return raw.RefObj{R: ref}
	case *raw.DictObj:
		out := raw.Dict()
		for k, item := range v.KV {
			out.KV[k] = im.copy(item)
		}
		return out
	case *raw.ArrayObj:
		out := raw.NewArray()
		out.Items = make([]raw.Object, len(v.Items))
		for i, item := range v.Items {
			out.Items[i] = im.copy(item)
		}
		return out
	case *raw.StreamObj:
		dict, _ := im.copy(v.Dict).(*raw.DictObj)
		return raw.NewStream(dict, append([]byte(nil), v.Data...))
	default:
		return raw.Clone(o)
	}
}

// SetPages replaces the page order. Every page must belong to d and appear
// at most once; pages left out are dropped from the tree.
func (d *Document) SetPages(pages []*Page) error {
	seen := make(map[*Page]bool, len(pages))
	for _, p := range pages {
		if p.doc != d {
			return ErrForeignPage
		}
		if seen[p] {
			return fmt.Errorf("%w: %s", ErrDuplicatePage, p.ref)
		}
		seen[p] = true
	}
	d.pages = append([]*Page(nil), pages...)
	d.syncTree()
	return nil
}

// RemovePage drops the page at 0-based index i from the page tree.
func (d *Document) RemovePage(i int) error {
	if i < 0 || i >= len(d.pages) {
		return fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, i, len(d.pages))
	}
	d.pages = append(d.pages[:i:i], d.pages[i+1:]...)
	d.syncTree()
	return nil
}
