package writer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/pdfstudio/filters"
	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/security"
)

const (
	PDF17 = "1.7"
	// objects packed per object stream in compact mode
	objStmCapacity = 100
)

type Config struct {
	// Version overrides the header version; empty keeps the document's.
	Version string
	// Compress applies FlateDecode to streams that carry no filter.
	Compress bool
	// ObjectStreams packs non-stream objects into object streams and writes a
	// cross-reference stream instead of a classic table.
	ObjectStreams bool
	Encryption    *Encryption
}

// Encryption requests Standard AES-128 protection of the output. An empty
// OwnerPassword reuses UserPassword.
type Encryption struct {
	UserPassword  string
	OwnerPassword string
}

type Writer interface {
	Write(ctx context.Context, doc *raw.Document, cfg Config) ([]byte, error)
}

var ErrNoRoot = errors.New("document has no /Root")

type impl struct{}

// New returns a deterministic serializer: equal documents and configs always
// yield identical bytes.
func New() Writer { return impl{} }

type pending struct {
	ref raw.ObjectRef
	obj raw.Object
}

func (impl) Write(ctx context.Context, doc *raw.Document, cfg Config) ([]byte, error) {
	rootObj, ok := doc.Trailer.Lookup("Root")
	if !ok {
		return nil, ErrNoRoot
	}
	version := cfg.Version
	if version == "" {
		version = doc.Version
	}
	if version == "" {
		version = PDF17
	}
	if cfg.ObjectStreams && version < "1.5" {
		version = "1.5"
	}
	if cfg.Encryption != nil && version < "1.6" {
		version = "1.6"
	}

	rn := newRenumberer(doc)
	root := rn.rewrite(rootObj)
	var info raw.Object
	if infoObj, ok := doc.Trailer.Lookup("Info"); ok {
		if _, isDict := doc.Resolve(infoObj).(*raw.DictObj); isDict {
			info = rn.rewrite(infoObj)
		}
	}
	if err := rn.drain(ctx); err != nil {
		return nil, err
	}
	objs := rn.out

	if cfg.Compress {
		for i := range objs {
			if st, ok := objs[i].obj.(*raw.StreamObj); ok {
				if err := compressStream(st); err != nil {
					return nil, fmt.Errorf("compress object %d: %w", objs[i].ref.Num, err)
				}
			}
		}
	}

	id := fileID(version, objs)
	idArr := raw.NewArray(raw.HexStr(id), raw.HexStr(id))

	var handler security.Handler = security.NoopHandler()
	var encRef *raw.ObjectRef
	nextNum := len(objs) + 1
	var encObj raw.Object
	if cfg.Encryption != nil {
		setup, err := security.BuildStandardEncryption(cfg.Encryption.UserPassword, cfg.Encryption.OwnerPassword, security.AllPermissions(), id, id)
		if err != nil {
			return nil, err
		}
		handler = setup.Handler
		r := raw.ObjectRef{Num: nextNum}
		encRef = &r
		encObj = setup.Dict
		nextNum++
	}

	trailer := raw.Dict()
	trailer.Put("Root", root)
	if info != nil {
		trailer.Put("Info", info)
	}
	trailer.Put("ID", idArr)
	if encRef != nil {
		trailer.Put("Encrypt", raw.RefObj{R: *encRef})
	}

	w := &output{}
	w.buf.WriteString("%PDF-" + version + "\n%\xE2\xE3\xCF\xD3\n")

	if !cfg.ObjectStreams {
		offsets := make(map[int]int64, nextNum)
		for _, p := range objs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			obj, err := encryptObject(p.obj, p.ref, handler)
			if err != nil {
				return nil, fmt.Errorf("encrypt object %d: %w", p.ref.Num, err)
			}
			offsets[p.ref.Num] = w.writeObject(p.ref, obj)
		}
		if encRef != nil {
			offsets[encRef.Num] = w.writeObject(*encRef, encObj)
		}
		xrefOff := int64(w.buf.Len())
		w.buf.WriteString(fmt.Sprintf("xref\n0 %d\n", nextNum))
		w.buf.WriteString("0000000000 65535 f \n")
		for n := 1; n < nextNum; n++ {
			w.buf.WriteString(fmt.Sprintf("%010d 00000 n \n", offsets[n]))
		}
		trailer.Put("Size", raw.NumberInt(int64(nextNum)))
		w.buf.WriteString("trailer\n")
		w.buf.Write(serializePrimitive(trailer))
		w.buf.WriteString(fmt.Sprintf("\nstartxref\n%d\n%%%%EOF\n", xrefOff))
		return w.buf.Bytes(), nil
	}

	return w.writeCompact(ctx, objs, handler, encRef, encObj, trailer, nextNum)
}

type xrefEntry struct {
	typ    int
	field2 int64
	field3 int
}

// writeCompact emits object streams and a cross-reference stream.
func (w *output) writeCompact(ctx context.Context, objs []pending, handler security.Handler, encRef *raw.ObjectRef, encObj raw.Object, trailer *raw.DictObj, nextNum int) ([]byte, error) {
	entries := map[int]xrefEntry{0: {typ: 0, field2: 0, field3: 65535}}
	var packable []pending
	for _, p := range objs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, isStream := p.obj.(*raw.StreamObj); isStream {
			obj, err := encryptObject(p.obj, p.ref, handler)
			if err != nil {
				return nil, fmt.Errorf("encrypt object %d: %w", p.ref.Num, err)
			}
			entries[p.ref.Num] = xrefEntry{typ: 1, field2: w.writeObject(p.ref, obj)}
			continue
		}
		packable = append(packable, p)
	}
	if encRef != nil {
		entries[encRef.Num] = xrefEntry{typ: 1, field2: w.writeObject(*encRef, encObj)}
	}

	for start := 0; start < len(packable); start += objStmCapacity {
		end := start + objStmCapacity
		if end > len(packable) {
			end = len(packable)
		}
		chunk := packable[start:end]
		stmRef := raw.ObjectRef{Num: nextNum}
		nextNum++
		var header, body bytes.Buffer
		for i, p := range chunk {
			if i > 0 {
				header.WriteByte(' ')
				body.WriteByte('\n')
			}
			fmt.Fprintf(&header, "%d %d", p.ref.Num, body.Len())
			body.Write(serializePrimitive(p.obj))
			entries[p.ref.Num] = xrefEntry{typ: 2, field2: int64(stmRef.Num), field3: i}
		}
		header.WriteByte('\n')
		first := header.Len()
		header.Write(body.Bytes())
		packed, err := filters.EncodeFlate(header.Bytes())
		if err != nil {
			return nil, err
		}
		dict := raw.Dict()
		dict.Put("Type", raw.NameLiteral("ObjStm"))
		dict.Put("N", raw.NumberInt(int64(len(chunk))))
		dict.Put("First", raw.NumberInt(int64(first)))
		dict.Put("Filter", raw.NameLiteral("FlateDecode"))
		obj, err := encryptObject(raw.NewStream(dict, packed), stmRef, handler)
		if err != nil {
			return nil, err
		}
		entries[stmRef.Num] = xrefEntry{typ: 1, field2: w.writeObject(stmRef, obj)}
	}

	xrefRef := raw.ObjectRef{Num: nextNum}
	size := nextNum + 1
	xrefOff := int64(w.buf.Len())
	entries[xrefRef.Num] = xrefEntry{typ: 1, field2: xrefOff}
	var rows []byte
	for n := 0; n < size; n++ {
		e := entries[n]
		rows = appendXRefStreamEntry(rows, e.typ, e.field2, e.field3)
	}
	packed, err := filters.EncodeFlate(rows)
	if err != nil {
		return nil, err
	}
	dict := raw.Clone(trailer).(*raw.DictObj)
	dict.Put("Type", raw.NameLiteral("XRef"))
	dict.Put("Size", raw.NumberInt(int64(size)))
	dict.Put("W", raw.NewArray(raw.NumberInt(1), raw.NumberInt(4), raw.NumberInt(2)))
	dict.Put("Filter", raw.NameLiteral("FlateDecode"))
	w.writeObject(xrefRef, raw.NewStream(dict, packed))
	w.buf.WriteString(fmt.Sprintf("startxref\n%d\n%%%%EOF\n", xrefOff))
	return w.buf.Bytes(), nil
}

type output struct {
	buf bytes.Buffer
}

func (w *output) writeObject(ref raw.ObjectRef, obj raw.Object) int64 {
	off := int64(w.buf.Len())
	if st, ok := obj.(*raw.StreamObj); ok {
		st.Dict.Put("Length", raw.NumberInt(int64(len(st.Data))))
	}
	fmt.Fprintf(&w.buf, "%d %d obj\n", ref.Num, ref.Gen)
	w.buf.Write(serializePrimitive(obj))
	w.buf.WriteString("\nendobj\n")
	return off
}

func appendXRefStreamEntry(buf []byte, typ int, field2 int64, field3 int) []byte {
	buf = append(buf, byte(typ))
	offset := uint32(field2)
	buf = append(buf, byte(offset>>24), byte(offset>>16), byte(offset>>8), byte(offset))
	buf = append(buf, byte(field3>>8), byte(field3))
	return buf
}

func compressStream(st *raw.StreamObj) error {
	if _, filtered := st.Dict.Lookup("Filter"); filtered || len(st.Data) == 0 {
		return nil
	}
	packed, err := filters.EncodeFlate(st.Data)
	if err != nil {
		return err
	}
	if len(packed) >= len(st.Data) {
		return nil
	}
	st.Data = packed
	st.Dict.Put("Filter", raw.NameLiteral("FlateDecode"))
	st.Dict.Delete("DecodeParms")
	return nil
}

// fileID hashes the serialized object bodies, so the identifier changes
// whenever content does and never otherwise.
func fileID(version string, objs []pending) []byte {
	h := sha256.New()
	h.Write([]byte(version))
	for _, p := range objs {
		fmt.Fprintf(h, "%d:", p.ref.Num)
		h.Write(serializePrimitive(p.obj))
	}
	return h.Sum(nil)[:16]
}

func encryptObject(obj raw.Object, ref raw.ObjectRef, handler security.Handler) (raw.Object, error) {
	if !handler.IsEncrypted() {
		return obj, nil
	}
	switch v := obj.(type) {
	case raw.StringObj:
		out, err := handler.Encrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		return raw.Str(out), err
	case raw.HexStringObj:
		out, err := handler.Encrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		return raw.HexStr(out), err
	case *raw.ArrayObj:
		arr := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, item := range v.Items {
			enc, err := encryptObject(item, ref, handler)
			if err != nil {
				return nil, err
			}
			arr.Items[i] = enc
		}
		return arr, nil
	case *raw.DictObj:
		dict := &raw.DictObj{KV: make(map[string]raw.Object, len(v.KV))}
		for _, k := range v.SortedKeys() {
			enc, err := encryptObject(v.KV[k], ref, handler)
			if err != nil {
				return nil, err
			}
			dict.KV[k] = enc
		}
		return dict, nil
	case *raw.StreamObj:
		d, err := encryptObject(v.Dict, ref, handler)
		if err != nil {
			return nil, err
		}
		data, err := handler.Encrypt(ref.Num, ref.Gen, v.Data, security.DataClassStream)
		if err != nil {
			return nil, err
		}
		return &raw.StreamObj{Dict: d.(*raw.DictObj), Data: data}, nil
	}
	return obj, nil
}

// renumberer copies every object reachable from the roots, assigning numbers
// 1..n in depth-first order with dictionary keys visited in sorted order.
type renumberer struct {
	doc    *raw.Document
	newNum map[raw.ObjectRef]int
	queue  []raw.ObjectRef
	out    []pending
}

func newRenumberer(doc *raw.Document) *renumberer {
	return &renumberer{doc: doc, newNum: make(map[raw.ObjectRef]int)}
}

// rewrite deep-copies o with references mapped to output numbers. Targets are
// queued for drain.
func (r *renumberer) rewrite(o raw.Object) raw.Object {
	switch v := o.(type) {
	case raw.RefObj:
		target, ok := r.doc.Objects[v.R]
		if !ok {
			return raw.NullObj{}
		}
		if _, isNull := target.(raw.NullObj); isNull {
			return raw.NullObj{}
		}
		n, seen := r.newNum[v.R]
		if !seen {
			n = len(r.newNum) + 1
			r.newNum[v.R] = n
			r.queue = append(r.queue, v.R)
		}
		return raw.Ref(n, 0)
	case *raw.DictObj:
		out := &raw.DictObj{KV: make(map[string]raw.Object, len(v.KV))}
		for _, k := range v.SortedKeys() {
			item := r.rewrite(v.KV[k])
			if _, isNull := item.(raw.NullObj); isNull {
				continue
			}
			out.KV[k] = item
		}
		return out
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, item := range v.Items {
			out.Items[i] = r.rewrite(item)
		}
		return out
	case *raw.StreamObj:
		d, _ := r.rewrite(v.Dict).(*raw.DictObj)
		return &raw.StreamObj{Dict: d, Data: append([]byte(nil), v.Data...)}
	}
	return raw.Clone(o)
}

func (r *renumberer) drain(ctx context.Context) error {
	for len(r.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		ref := r.queue[0]
		r.queue = r.queue[1:]
		n := r.newNum[ref]
		r.out = append(r.out, pending{ref: raw.ObjectRef{Num: n}, obj: r.rewrite(r.doc.Objects[ref])})
	}
	sort.Slice(r.out, func(i, j int) bool { return r.out[i].ref.Num < r.out[j].ref.Num })
	return nil
}
