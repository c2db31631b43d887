package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfstudio/filters"
	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/scanner"
	"github.com/wudi/pdfstudio/security"
	"github.com/wudi/pdfstudio/xref"
)

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	data      []byte
	xrefTable xref.Table
	security  security.Handler
	limits    security.Limits
}

func (b *ObjectLoaderBuilder) WithXRef(table xref.Table) *ObjectLoaderBuilder {
	b.xrefTable = table
	return b
}
func (b *ObjectLoaderBuilder) WithData(data []byte) *ObjectLoaderBuilder {
	b.data = data
	return b
}
func (b *ObjectLoaderBuilder) WithSecurity(h security.Handler) *ObjectLoaderBuilder {
	b.security = h
	return b
}
func (b *ObjectLoaderBuilder) WithLimits(l security.Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.data == nil || b.xrefTable == nil {
		return nil, errors.New("data and xrefTable required")
	}
	sec := b.security
	if sec == nil {
		sec = security.NoopHandler()
	}
	limits := b.limits
	if limits.MaxIndirectDepth == 0 {
		limits = security.DefaultLimits()
	}
	return &objectLoader{
		data:      b.data,
		xrefTable: b.xrefTable,
		security:  sec,
		limits:    limits,
		pipeline:  filters.Default(filters.Limits{MaxDecompressedSize: limits.MaxDecompressedSize}),
		objstm:    make(map[int]map[int]raw.Object),
		loading:   make(map[int]bool),
	}, nil
}

type objectLoader struct {
	data      []byte
	xrefTable xref.Table
	security  security.Handler
	limits    security.Limits
	pipeline  *filters.Pipeline
	objstm    map[int]map[int]raw.Object
	// loading guards against /Length or object-stream cycles
	loading map[int]bool
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.loading[ref.Num] {
		return nil, fmt.Errorf("object %s refers to itself while loading", ref)
	}
	if len(o.loading) >= o.limits.MaxIndirectDepth {
		return nil, errors.New("max indirect depth exceeded")
	}
	o.loading[ref.Num] = true
	defer delete(o.loading, ref.Num)

	if stmNum, idx, ok := o.xrefTable.ObjStream(ref.Num); ok {
		return o.loadFromObjectStream(ctx, stmNum, idx, ref.Num)
	}
	off, gen, ok := o.xrefTable.Lookup(ref.Num)
	if !ok {
		return nil, fmt.Errorf("object %s not in xref", ref)
	}
	if off < 0 || off >= int64(len(o.data)) {
		return nil, fmt.Errorf("object %s offset %d out of range", ref, off)
	}
	s := scanner.New(o.data, scanner.Config{
		MaxStringLength: o.limits.MaxStringLength,
		MaxStreamLength: o.limits.MaxStreamLength,
		MaxArrayDepth:   o.limits.MaxNesting,
		MaxDictDepth:    o.limits.MaxNesting,
	})
	if err := s.Seek(off); err != nil {
		return nil, err
	}
	rd := scanner.NewObjectReader(s)
	rd.ResolveLength = func(l raw.Object) (int64, bool) {
		lref, ok := l.(raw.RefObj)
		if !ok {
			return 0, false
		}
		obj, err := o.Load(ctx, lref.R)
		if err != nil {
			return 0, false
		}
		n, ok := obj.(raw.NumberObj)
		return n.Int(), ok
	}
	got, obj, err := rd.ReadIndirect()
	if err != nil {
		return nil, err
	}
	if got.Num != ref.Num || got.Gen != gen {
		return nil, fmt.Errorf("xref points object %d at %d but found %s", ref.Num, off, got)
	}
	return o.decryptObject(got, obj)
}

// loadFromObjectStream parses (and caches) every object packed in an ObjStm.
func (o *objectLoader) loadFromObjectStream(ctx context.Context, stmNum, idx, objNum int) (raw.Object, error) {
	objs, ok := o.objstm[stmNum]
	if !ok {
		var err error
		objs, err = o.parseObjectStream(ctx, stmNum)
		if err != nil {
			return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
		}
		o.objstm[stmNum] = objs
	}
	obj, ok := objs[objNum]
	if !ok {
		return nil, fmt.Errorf("object %d missing from object stream %d (index %d)", objNum, stmNum, idx)
	}
	return obj, nil
}

func (o *objectLoader) parseObjectStream(ctx context.Context, stmNum int) (map[int]raw.Object, error) {
	_, gen, _ := o.xrefTable.Lookup(stmNum)
	obj, err := o.Load(ctx, raw.ObjectRef{Num: stmNum, Gen: gen})
	if err != nil {
		return nil, err
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, errors.New("not a stream")
	}
	return ParseObjectStream(ctx, o.pipeline, stream)
}

// ParseObjectStream decodes an ObjStm and returns its objects by number.
func ParseObjectStream(ctx context.Context, pipeline *filters.Pipeline, stream *raw.StreamObj) (map[int]raw.Object, error) {
	n, _ := stream.Dict.IntValue("N")
	first, _ := stream.Dict.IntValue("First")
	names, params := filters.ExtractFilters(stream.Dict)
	data, err := pipeline.Decode(ctx, stream.Data, names, params)
	if err != nil {
		return nil, err
	}
	if first < 0 || first > int64(len(data)) {
		return nil, fmt.Errorf("/First %d out of range", first)
	}
	s := scanner.New(data, scanner.Config{})
	type slot struct {
		num int
		off int64
	}
	slots := make([]slot, 0, n)
	for i := int64(0); i < n; i++ {
		numTok, err1 := s.Next()
		offTok, err2 := s.Next()
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("object stream header: %w", err)
		}
		if numTok.Type != scanner.TokenNumber || offTok.Type != scanner.TokenNumber {
			return nil, errors.New("object stream header is not numeric")
		}
		slots = append(slots, slot{num: int(numTok.Int), off: offTok.Int})
	}
	out := make(map[int]raw.Object, len(slots))
	rd := scanner.NewObjectReader(s)
	for _, sl := range slots {
		if err := rd.Seek(first + sl.off); err != nil {
			return nil, err
		}
		obj, err := rd.Read()
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", sl.num, err)
		}
		out[sl.num] = obj
	}
	return out, nil
}

func (o *objectLoader) decryptObject(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	if !o.security.IsEncrypted() {
		return obj, nil
	}
	if st, ok := obj.(*raw.StreamObj); ok {
		if typ, _ := st.Dict.NameValue("Type"); typ == "XRef" {
			return obj, nil
		}
	}
	return decryptValue(o.security, ref, obj)
}

func decryptValue(h security.Handler, ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		out, err := h.Decrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.Str(out), nil
	case raw.HexStringObj:
		out, err := h.Decrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.HexStr(out), nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			dec, err := decryptValue(h, ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *raw.DictObj:
		for k, item := range v.KV {
			dec, err := decryptValue(h, ref, item)
			if err != nil {
				return nil, err
			}
			v.KV[k] = dec
		}
		return v, nil
	case *raw.StreamObj:
		if _, err := decryptValue(h, ref, v.Dict); err != nil {
			return nil, err
		}
		out, err := h.Decrypt(ref.Num, ref.Gen, v.Data, security.DataClassStream)
		if err != nil {
			return nil, err
		}
		v.Data = out
		return v, nil
	}
	return obj, nil
}
