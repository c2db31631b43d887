package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/wudi/pdfstudio/filters"
	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/observability"
	"github.com/wudi/pdfstudio/recovery"
	"github.com/wudi/pdfstudio/security"
	"github.com/wudi/pdfstudio/xref"
)

// Config controls high-level PDF parsing (xref resolution + object loading).
// A nil Recovery parses strictly: the first defect aborts the parse.
type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	Password string
	Logger   observability.Logger
}

var (
	ErrNotPDF    = errors.New("missing %PDF header")
	ErrNoCatalog = errors.New("document catalog not found")
)

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Limits.MaxIndirectDepth == 0 {
		cfg.Limits = security.DefaultLimits()
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &DocumentParser{cfg: cfg}
}

// Parse decodes the object table. Returned objects are decrypted; object
// streams, xref streams and the encryption dictionary are consumed and do not
// appear in Objects.
func (p *DocumentParser) Parse(ctx context.Context, data []byte) (*raw.Document, error) {
	version, ok := detectHeaderVersion(data)
	if !ok {
		if err := p.defect(ErrNotPDF, recovery.Location{Component: "header"}); err != nil {
			return nil, err
		}
		version = "1.7"
	}

	resolver := xref.NewResolver(xref.ResolverConfig{MaxXRefDepth: p.cfg.Limits.MaxXRefDepth, Recovery: p.cfg.Recovery})
	table, err := resolver.Resolve(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if resolver.Repaired() {
		p.cfg.Logger.Warn("cross-reference table rebuilt by scanning", observability.Int("objects", len(table.Objects())))
	}
	trailer := raw.Clone(table.Trailer()).(*raw.DictObj)

	plain, err := (&ObjectLoaderBuilder{}).WithData(data).WithXRef(table).WithLimits(p.cfg.Limits).Build()
	if err != nil {
		return nil, err
	}
	sec, encRef, err := p.selectSecurity(ctx, plain, trailer)
	if err != nil {
		return nil, err
	}
	loader, err := (&ObjectLoaderBuilder{}).WithData(data).WithXRef(table).WithLimits(p.cfg.Limits).WithSecurity(sec).Build()
	if err != nil {
		return nil, err
	}

	doc := raw.NewDocument()
	doc.Version = version
	doc.Encrypted = sec.IsEncrypted()
	for _, num := range table.Objects() {
		if num == 0 || (encRef != nil && num == encRef.Num) {
			continue
		}
		gen := 0
		if _, g, ok := table.Lookup(num); ok {
			gen = g
		}
		ref := raw.ObjectRef{Num: num, Gen: gen}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if derr := p.defect(fmt.Errorf("load object %d: %w", num, err), recovery.Location{ObjectNum: num, ObjectGen: gen, Component: "loader"}); derr != nil {
				return nil, derr
			}
			doc.Warnings = append(doc.Warnings, fmt.Errorf("object %s dropped: %w", ref, err))
			p.cfg.Logger.Warn("dropping unparseable object", observability.Int("object", num), observability.Error("error", err))
			continue
		}
		doc.Objects[ref] = obj
	}
	if resolver.Repaired() {
		p.recoverPackedObjects(ctx, doc)
	}
	dropStructural(doc)

	doc.Trailer = raw.Dict()
	for _, key := range []string{"Root", "Info", "ID"} {
		if v, ok := trailer.Lookup(key); ok {
			doc.Trailer.Put(key, v)
		}
	}
	if err := p.ensureCatalog(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// defect routes a structural problem through the recovery strategy. A nil
// return means the problem is tolerated.
func (p *DocumentParser) defect(err error, loc recovery.Location) error {
	if p.cfg.Recovery == nil {
		return err
	}
	if p.cfg.Recovery.OnError(nil, err, loc) == recovery.ActionFail {
		return err
	}
	return nil
}

func (p *DocumentParser) selectSecurity(ctx context.Context, loader ObjectLoader, trailer *raw.DictObj) (security.Handler, *raw.ObjectRef, error) {
	encObj, ok := trailer.Lookup("Encrypt")
	if !ok {
		return security.NoopHandler(), nil, nil
	}
	var encRef *raw.ObjectRef
	if ref, ok := encObj.(raw.RefObj); ok {
		r := ref.R
		encRef = &r
		obj, err := loader.Load(ctx, ref.R)
		if err != nil {
			return nil, nil, fmt.Errorf("load encryption dictionary: %w", err)
		}
		encObj = obj
	}
	encDict, ok := encObj.(*raw.DictObj)
	if !ok {
		return nil, nil, errors.New("encryption dictionary is not a dictionary")
	}
	h, err := (&security.HandlerBuilder{}).WithEncryptDict(encDict).WithFileID(fileIDFromTrailer(trailer)).Build()
	if err != nil {
		return nil, nil, fmt.Errorf("security setup: %w", err)
	}
	if err := h.Authenticate(p.cfg.Password); err != nil {
		return nil, nil, fmt.Errorf("security setup: %w", err)
	}
	return h, encRef, nil
}

func fileIDFromTrailer(trailer *raw.DictObj) []byte {
	idObj, ok := trailer.Lookup("ID")
	if !ok {
		return nil
	}
	arr, ok := idObj.(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.Items[0].(raw.String); ok {
		return s.Value()
	}
	return nil
}

// recoverPackedObjects adds objects found only inside object streams, which a
// byte scan cannot see.
func (p *DocumentParser) recoverPackedObjects(ctx context.Context, doc *raw.Document) {
	pipeline := filters.Default(filters.Limits{MaxDecompressedSize: p.cfg.Limits.MaxDecompressedSize})
	for _, ref := range doc.SortedRefs() {
		st, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok {
			continue
		}
		if typ, _ := st.Dict.NameValue("Type"); typ != "ObjStm" {
			continue
		}
		objs, err := ParseObjectStream(ctx, pipeline, st)
		if err != nil {
			doc.Warnings = append(doc.Warnings, fmt.Errorf("object stream %s unreadable: %w", ref, err))
			continue
		}
		for num, obj := range objs {
			packed := raw.ObjectRef{Num: num}
			if _, exists := doc.Objects[packed]; !exists {
				doc.Objects[packed] = obj
			}
		}
	}
}

func dropStructural(doc *raw.Document) {
	for ref, obj := range doc.Objects {
		st, ok := obj.(*raw.StreamObj)
		if !ok {
			continue
		}
		if typ, _ := st.Dict.NameValue("Type"); typ == "ObjStm" || typ == "XRef" {
			delete(doc.Objects, ref)
		}
	}
}

// ensureCatalog checks /Root, falling back to the last /Type /Catalog object
// when recovery is enabled.
func (p *DocumentParser) ensureCatalog(doc *raw.Document) error {
	if root, ok := doc.Trailer.Lookup("Root"); ok {
		if _, isDict := doc.Resolve(root).(*raw.DictObj); isDict {
			return nil
		}
	}
	if err := p.defect(ErrNoCatalog, recovery.Location{Component: "catalog"}); err != nil {
		return err
	}
	var found *raw.ObjectRef
	for _, ref := range doc.SortedRefs() {
		if d, ok := doc.Objects[ref].(*raw.DictObj); ok {
			if typ, _ := d.NameValue("Type"); typ == "Catalog" {
				r := ref
				found = &r
			}
		}
	}
	if found == nil {
		return ErrNoCatalog
	}
	p.cfg.Logger.Warn("catalog recovered by type scan", observability.Int("object", found.Num))
	doc.Trailer.Put("Root", raw.RefObj{R: *found})
	return nil
}

var headerRE = regexp.MustCompile(`%PDF-(\d\.\d)`)

func detectHeaderVersion(data []byte) (string, bool) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return "", false
	}
	m := headerRE.FindSubmatch(head)
	if m == nil {
		return "1.7", true
	}
	return string(m[1]), true
}
