// Package document is the handle layer over the raw object model: it loads
// bytes into an ordered page list, lets callers edit pages in place and
// serializes the result deterministically.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/observability"
	"github.com/wudi/pdfstudio/parser"
	"github.com/wudi/pdfstudio/recovery"
	"github.com/wudi/pdfstudio/security"
	"github.com/wudi/pdfstudio/writer"
)

// US Letter, used when a page carries no MediaBox anywhere in its tree.
const (
	DefaultPageWidth  = 612.0
	DefaultPageHeight = 792.0
)

// CorruptDocumentError reports input that could not be opened as a document.
type CorruptDocumentError struct {
	Lenient bool
	Err     error
}

func (e *CorruptDocumentError) Error() string {
	mode := "strict"
	if e.Lenient {
		mode = "lenient"
	}
	return fmt.Sprintf("corrupt document (%s parse): %v", mode, e.Err)
}

func (e *CorruptDocumentError) Unwrap() error { return e.Err }

var (
	ErrNoPageTree      = errors.New("catalog has no page tree")
	ErrPageTreeCycle   = errors.New("page tree contains a cycle")
	ErrPageOutOfRange  = errors.New("page index out of range")
	ErrForeignPage     = errors.New("page belongs to another document")
	ErrDuplicatePage   = errors.New("page listed twice")
	ErrInvalidRotation = errors.New("rotation must be a multiple of 90")
)

// Document is a loaded or newly created PDF. It is not safe for concurrent
// use; callers serialize access to one handle.
type Document struct {
	raw        *raw.Document
	pages      []*Page
	pagesRef   raw.ObjectRef
	protection *writer.Encryption
	logger     observability.Logger
	warnings   []error
	// resources maps a resource cache key to the object holding it.
	resources map[string]raw.ObjectRef
	nextNum   int
}

type loadOptions struct {
	lenient  bool
	password string
	logger   observability.Logger
	limits   security.Limits
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

// WithLenient tolerates structural damage: the cross-reference table is
// rebuilt by scanning, unparseable objects are dropped and a broken page tree
// is rebuilt from page objects. Dropped objects are reported by Warnings.
func WithLenient() LoadOption { return func(o *loadOptions) { o.lenient = true } }

// WithPassword supplies the user or owner password of an encrypted file.
func WithPassword(pw string) LoadOption { return func(o *loadOptions) { o.password = pw } }

func WithLogger(l observability.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = l }
}

func WithLimits(l security.Limits) LoadOption { return func(o *loadOptions) { o.limits = l } }

// Load parses data strictly unless WithLenient is given. Every failure is a
// *CorruptDocumentError; a wrong password wraps security.ErrInvalidPassword.
func Load(ctx context.Context, data []byte, opts ...LoadOption) (*Document, error) {
	o := loadOptions{limits: security.DefaultLimits()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = observability.OrNop(o.logger)

	cfg := parser.Config{Limits: o.limits, Password: o.password, Logger: o.logger}
	if o.lenient {
		cfg.Recovery = recovery.NewLenientStrategy()
	}
	rawDoc, err := parser.NewDocumentParser(cfg).Parse(ctx, data)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &CorruptDocumentError{Lenient: o.lenient, Err: err}
	}
	d, err := fromRaw(rawDoc, o.lenient, o.logger)
	if err != nil {
		return nil, &CorruptDocumentError{Lenient: o.lenient, Err: err}
	}
	if rawDoc.Encrypted {
		if o.password != "" {
			d.protection = &writer.Encryption{UserPassword: o.password}
		} else {
			o.logger.Info("encrypted input opened without password; output will be unencrypted")
		}
	}
	o.logger.Debug("document loaded", observability.Int("pages", len(d.pages)), observability.Int("objects", len(rawDoc.Objects)))
	return d, nil
}

// New returns an empty document with a catalog and an empty page tree.
func New() *Document {
	rd := raw.NewDocument()
	pagesRef := raw.ObjectRef{Num: 2}
	pages := raw.Dict()
	pages.Put("Type", raw.NameLiteral("Pages"))
	pages.Put("Kids", raw.NewArray())
	pages.Put("Count", raw.NumberInt(0))
	catalog := raw.Dict()
	catalog.Put("Type", raw.NameLiteral("Catalog"))
	catalog.Put("Pages", raw.RefObj{R: pagesRef})
	rd.Objects[raw.ObjectRef{Num: 1}] = catalog
	rd.Objects[pagesRef] = pages
	rd.Trailer.Put("Root", raw.Ref(1, 0))
	return &Document{
		raw:       rd,
		pagesRef:  pagesRef,
		logger:    observability.NopLogger{},
		resources: make(map[string]raw.ObjectRef),
		nextNum:   3,
	}
}

func fromRaw(rd *raw.Document, lenient bool, logger observability.Logger) (*Document, error) {
	d := &Document{
		raw:       rd,
		logger:    logger,
		warnings:  append([]error(nil), rd.Warnings...),
		resources: make(map[string]raw.ObjectRef),
		nextNum:   rd.MaxObjectNumber() + 1,
	}
	root, _ := rd.Trailer.Lookup("Root")
	catalog, _ := rd.Resolve(root).(*raw.DictObj)
	if catalog == nil {
		return nil, parser.ErrNoCatalog
	}

	leaves, err := d.flattenTree(catalog)
	if err != nil {
		if !lenient {
			return nil, err
		}
		logger.Warn("page tree unusable, rebuilding from page objects", observability.Error("error", err))
		d.warnings = append(d.warnings, fmt.Errorf("page tree rebuilt: %w", err))
		leaves = d.scanPages()
	}

	pagesRef, isRef := catalog.KV["Pages"].(raw.RefObj)
	if !isRef {
		pagesRef = d.AddObject(raw.Dict())
		catalog.Put("Pages", pagesRef)
	} else if _, ok := rd.Objects[pagesRef.R].(*raw.DictObj); !ok {
		rd.Objects[pagesRef.R] = raw.Dict()
	}
	d.pagesRef = pagesRef.R
	pagesNode := rd.Objects[d.pagesRef].(*raw.DictObj)
	pagesNode.Put("Type", raw.NameLiteral("Pages"))
	pagesNode.Delete("Parent")
	for _, leaf := range leaves {
		leaf.dict.Put("Parent", raw.RefObj{R: d.pagesRef})
		d.pages = append(d.pages, &Page{doc: d, ref: leaf.ref, dict: leaf.dict})
	}
	d.syncTree()
	return d, nil
}

type leaf struct {
	ref  raw.ObjectRef
	dict *raw.DictObj
}

var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// flattenTree walks the page tree in order and copies inherited attributes
// onto every leaf, so leaves can later hang directly off the root node.
func (d *Document) flattenTree(catalog *raw.DictObj) ([]leaf, error) {
	pagesObj, ok := catalog.Lookup("Pages")
	if !ok {
		return nil, ErrNoPageTree
	}
	ref, isRef := pagesObj.(raw.RefObj)
	node, isDict := d.raw.Resolve(pagesObj).(*raw.DictObj)
	if !isRef || !isDict {
		return nil, ErrNoPageTree
	}
	if typ, _ := node.NameValue("Type"); typ == "Page" {
		return nil, ErrNoPageTree
	}
	var out []leaf
	visited := make(map[raw.ObjectRef]bool)
	if err := d.walk(ref.R, node, map[string]raw.Object{}, visited, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Document) walk(ref raw.ObjectRef, node *raw.DictObj, inherited map[string]raw.Object, visited map[raw.ObjectRef]bool, out *[]leaf) error {
	if visited[ref] {
		return fmt.Errorf("%w at %s", ErrPageTreeCycle, ref)
	}
	visited[ref] = true

	if typ, _ := node.NameValue("Type"); typ == "Page" || (typ == "" && !hasKids(node)) {
		for _, key := range inheritable {
			if _, own := node.Lookup(key); own {
				continue
			}
			if v, ok := inherited[key]; ok {
				node.Put(key, raw.Clone(v))
			}
		}
		if _, ok := node.Lookup("MediaBox"); !ok {
			node.Put("MediaBox", rectArray(0, 0, DefaultPageWidth, DefaultPageHeight))
		}
		node.Put("Type", raw.NameLiteral("Page"))
		*out = append(*out, leaf{ref: ref, dict: node})
		return nil
	}

	next := make(map[string]raw.Object, len(inherited))
	for k, v := range inherited {
		next[k] = v
	}
	for _, key := range inheritable {
		if v, ok := node.Lookup(key); ok {
			next[key] = v
		}
	}
	kids, ok := d.raw.Resolve(node.KV["Kids"]).(*raw.ArrayObj)
	if !ok {
		return fmt.Errorf("pages node %s: /Kids is not an array", ref)
	}
	for _, kid := range kids.Items {
		kidRef, isRef := kid.(raw.RefObj)
		if !isRef {
			return fmt.Errorf("pages node %s: direct kid", ref)
		}
		kidDict, isDict := d.raw.Resolve(kid).(*raw.DictObj)
		if !isDict {
			return fmt.Errorf("pages node %s: kid %s is not a dictionary", ref, kidRef.R)
		}
		if err := d.walk(kidRef.R, kidDict, next, visited, out); err != nil {
			return err
		}
	}
	return nil
}

func hasKids(d *raw.DictObj) bool {
	_, ok := d.Lookup("Kids")
	return ok
}

// scanPages collects /Type /Page objects in object number order.
func (d *Document) scanPages() []leaf {
	var out []leaf
	for _, ref := range d.raw.SortedRefs() {
		dict, ok := d.raw.Objects[ref].(*raw.DictObj)
		if !ok {
			continue
		}
		if typ, _ := dict.NameValue("Type"); typ != "Page" {
			continue
		}
		d.inheritFromParents(dict)
		if _, ok := dict.Lookup("MediaBox"); !ok {
			dict.Put("MediaBox", rectArray(0, 0, DefaultPageWidth, DefaultPageHeight))
		}
		out = append(out, leaf{ref: ref, dict: dict})
	}
	return out
}

// inheritFromParents copies inheritable attributes found along the /Parent
// chain. Used when the tree itself cannot be walked.
func (d *Document) inheritFromParents(dict *raw.DictObj) {
	node := dict
	for depth := 0; depth < 32; depth++ {
		parent, ok := d.raw.Resolve(node.KV["Parent"]).(*raw.DictObj)
		if !ok || parent == dict {
			return
		}
		for _, key := range inheritable {
			if _, own := dict.Lookup(key); own {
				continue
			}
			if v, ok := parent.Lookup(key); ok {
				dict.Put(key, raw.Clone(v))
			}
		}
		node = parent
	}
}

// syncTree rewrites the root pages node so its Kids match the page list.
func (d *Document) syncTree() {
	root := d.raw.Objects[d.pagesRef].(*raw.DictObj)
	kids := make([]raw.Object, len(d.pages))
	for i, p := range d.pages {
		kids[i] = raw.RefObj{R: p.ref}
	}
	root.Put("Kids", raw.NewArray(kids...))
	root.Put("Count", raw.NumberInt(int64(len(d.pages))))
}

func rectArray(llx, lly, urx, ury float64) *raw.ArrayObj {
	return raw.NewArray(raw.NumberFloat(llx), raw.NumberFloat(lly), raw.NumberFloat(urx), raw.NumberFloat(ury))
}

// AddObject stores obj under a fresh object number.
func (d *Document) AddObject(obj raw.Object) raw.RefObj {
	ref := raw.ObjectRef{Num: d.nextNum}
	d.nextNum++
	d.raw.Objects[ref] = obj
	return raw.RefObj{R: ref}
}

func (d *Document) reserve() raw.ObjectRef {
	ref := raw.ObjectRef{Num: d.nextNum}
	d.nextNum++
	return ref
}

// EditObjects hands the object table to fn for object-level rewrites such
// as stream deduplication. fn may change objects in place and delete objects
// nothing refers to; page dictionaries must be edited in place, never
// replaced.
func (d *Document) EditObjects(fn func(objects *raw.Document) error) error {
	return fn(d.raw)
}

// Warnings lists problems tolerated while loading leniently.
func (d *Document) Warnings() []error { return append([]error(nil), d.warnings...) }

// Logger is the logger the document was loaded with.
func (d *Document) Logger() observability.Logger { return d.logger }

// SetLogger replaces the document's logger; nil discards.
func (d *Document) SetLogger(l observability.Logger) { d.logger = observability.OrNop(l) }

func (d *Document) Pages() []*Page { return append([]*Page(nil), d.pages...) }

func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the page at 0-based index i.
func (d *Document) Page(i int) (*Page, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, i, len(d.pages))
	}
	return d.pages[i], nil
}

// Version is the header version the document will be written with.
func (d *Document) Version() string { return d.raw.Version }

// Protected reports whether Save will encrypt the output.
func (d *Document) Protected() bool { return d.protection != nil }

// Clone returns an independent deep copy. Pages of the copy are distinct
// handles belonging to the copy.
func (d *Document) Clone() *Document {
	rd := raw.NewDocument()
	rd.Version = d.raw.Version
	rd.Encrypted = d.raw.Encrypted
	for ref, obj := range d.raw.Objects {
		rd.Objects[ref] = raw.Clone(obj)
	}
	rd.Trailer = raw.Clone(d.raw.Trailer).(*raw.DictObj)
	c := &Document{
		raw:       rd,
		pagesRef:  d.pagesRef,
		logger:    d.logger,
		warnings:  append([]error(nil), d.warnings...),
		resources: make(map[string]raw.ObjectRef, len(d.resources)),
		nextNum:   d.nextNum,
	}
	if d.protection != nil {
		p := *d.protection
		c.protection = &p
	}
	for k, v := range d.resources {
		c.resources[k] = v
	}
	for _, p := range d.pages {
		c.pages = append(c.pages, &Page{doc: c, ref: p.ref, dict: rd.Objects[p.ref].(*raw.DictObj), wrapped: p.wrapped})
	}
	return c
}
