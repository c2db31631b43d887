package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wudi/pdfstudio/filters"
	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/recovery"
	"github.com/wudi/pdfstudio/scanner"
)

// Table maps object numbers to their location in the file.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	// ObjStream reports objects stored compressed inside an object stream.
	ObjStream(objNum int) (streamNum int, index int, found bool)
	Objects() []int
	Type() string
	Trailer() *raw.DictObj
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
	// Repaired reports whether the last Resolve fell back to a full scan.
	Repaired() bool
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
}

var ErrNoStartXRef = errors.New("startxref not found")

// NewResolver returns a resolver for classic tables, xref streams, hybrid
// files and incremental updates.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 64
	}
	return &resolver{cfg: cfg}
}

type resolver struct {
	cfg      ResolverConfig
	repaired bool
}

func (r *resolver) Repaired() bool { return r.repaired }

func (r *resolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	r.repaired = false
	t, err := r.resolveChain(ctx, data)
	if err == nil {
		return t, nil
	}
	if r.cfg.Recovery == nil {
		return nil, err
	}
	if r.cfg.Recovery.OnError(nil, err, recovery.Location{Component: "xref"}) == recovery.ActionFail {
		return nil, err
	}
	r.repaired = true
	return repair(ctx, data)
}

func (r *resolver) resolveChain(ctx context.Context, data []byte) (Table, error) {
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	out := &table{entries: make(map[int]entry)}
	visited := make(map[int64]bool)
	queue := []int64{start}
	for depth := 0; len(queue) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("xref chain deeper than %d sections", r.cfg.MaxXRefDepth)
		}
		off := queue[0]
		queue = queue[1:]
		if visited[off] {
			continue
		}
		visited[off] = true
		if off <= 0 || off >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset out of range: %d", off)
		}
		section, kind, err := readSection(ctx, data, off)
		if err != nil {
			return nil, err
		}
		if out.kind == "" {
			out.kind = kind
		}
		// entries from newer sections win
		for num, e := range section.entries {
			if _, seen := out.entries[num]; !seen {
				out.entries[num] = e
			}
		}
		if out.trailer == nil {
			out.trailer = section.trailer
		} else {
			for _, k := range section.trailer.SortedKeys() {
				if _, ok := out.trailer.Lookup(k); !ok && k != "Prev" && k != "XRefStm" {
					v, _ := section.trailer.Lookup(k)
					out.trailer.Put(k, v)
				}
			}
		}
		if stm, ok := section.trailer.IntValue("XRefStm"); ok {
			queue = append([]int64{stm}, queue...)
		}
		if prev, ok := section.trailer.IntValue("Prev"); ok {
			queue = append(queue, prev)
		}
	}
	if out.trailer == nil {
		return nil, errors.New("trailer not found")
	}
	if _, ok := out.trailer.Lookup("Root"); !ok {
		return nil, errors.New("trailer has no /Root")
	}
	if size, ok := out.trailer.IntValue("Size"); ok {
		for num := range out.entries {
			if int64(num) >= size {
				return nil, fmt.Errorf("xref entry %d beyond /Size %d", num, size)
			}
		}
	}
	out.trailer.Delete("Prev")
	out.trailer.Delete("XRefStm")
	return out, nil
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, ErrNoStartXRef
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, errors.New("startxref has no offset")
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	return off, nil
}

func readSection(ctx context.Context, data []byte, off int64) (*table, string, error) {
	s := scanner.New(data, scanner.Config{})
	if err := s.Seek(off); err != nil {
		return nil, "", err
	}
	rd := scanner.NewObjectReader(s)
	tok, err := s.Next()
	if err != nil {
		return nil, "", fmt.Errorf("xref at %d: %w", off, err)
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		t, err := readClassic(rd)
		return t, "table", err
	}
	if err := rd.Seek(off); err != nil {
		return nil, "", err
	}
	_, obj, err := rd.ReadIndirect()
	if err != nil {
		return nil, "", fmt.Errorf("xref stream at %d: %w", off, err)
	}
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, "", fmt.Errorf("no xref table or stream at offset %d", off)
	}
	if typ, _ := stream.Dict.NameValue("Type"); typ != "XRef" {
		return nil, "", fmt.Errorf("object at %d is not an xref stream", off)
	}
	t, err := readStream(ctx, stream)
	return t, "xref-stream", err
}

func readClassic(rd *scanner.ObjectReader) (*table, error) {
	t := &table{entries: make(map[int]entry)}
	for {
		tok, err := rd.S.Next()
		if err != nil {
			return nil, fmt.Errorf("xref table: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := rd.Read()
			if err != nil {
				return nil, fmt.Errorf("trailer: %w", err)
			}
			dict, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			t.trailer = dict
			return t, nil
		}
		countTok, err := rd.S.Next()
		if err != nil || tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("invalid xref subsection header at %d", tok.Pos)
		}
		first, count := int(tok.Int), int(countTok.Int)
		for i := 0; i < count; i++ {
			offTok, err1 := rd.S.Next()
			genTok, err2 := rd.S.Next()
			kindTok, err3 := rd.S.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("xref entry %d: %w", first+i, err)
			}
			if offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || kindTok.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("invalid xref entry %d at %d", first+i, offTok.Pos)
			}
			if kindTok.Str != "n" {
				continue
			}
			t.entries[first+i] = entry{offset: offTok.Int, gen: int(genTok.Int)}
		}
	}
}

func readStream(ctx context.Context, stream *raw.StreamObj) (*table, error) {
	names, params := filters.ExtractFilters(stream.Dict)
	data, err := filters.Default(filters.Limits{}).Decode(ctx, stream.Data, names, params)
	if err != nil {
		return nil, fmt.Errorf("decode xref stream: %w", err)
	}
	wObj, _ := stream.Dict.Lookup("W")
	wArr, ok := wObj.(*raw.ArrayObj)
	if !ok || wArr.Len() != 3 {
		return nil, errors.New("xref stream /W missing")
	}
	var w [3]int
	for i := range w {
		n, _ := raw.Float(wArr.Items[i])
		w[i] = int(n)
		if w[i] < 0 || w[i] > 8 {
			return nil, fmt.Errorf("xref stream /W[%d]=%d out of range", i, w[i])
		}
	}
	size, _ := stream.Dict.IntValue("Size")
	index := []int64{0, size}
	if idxObj, ok := stream.Dict.Lookup("Index"); ok {
		if arr, ok := idxObj.(*raw.ArrayObj); ok {
			index = index[:0]
			for _, it := range arr.Items {
				n, _ := raw.Float(it)
				index = append(index, int64(n))
			}
		}
	}
	rowLen := w[0] + w[1] + w[2]
	t := &table{entries: make(map[int]entry), trailer: raw.Clone(stream.Dict).(*raw.DictObj)}
	for _, k := range []string{"Length", "Filter", "DecodeParms", "W", "Index", "Type"} {
		t.trailer.Delete(k)
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		first, count := int(index[i]), int(index[i+1])
		for j := 0; j < count; j++ {
			if pos+rowLen > len(data) {
				return t, nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			kind := int64(1)
			if w[0] > 0 {
				kind = field(row[:w[0]])
			}
			f2 := field(row[w[0] : w[0]+w[1]])
			f3 := field(row[w[0]+w[1]:])
			switch kind {
			case 1:
				t.entries[first+j] = entry{offset: f2, gen: int(f3)}
			case 2:
				t.entries[first+j] = entry{inStream: true, streamNum: int(f2), index: int(f3)}
			}
		}
	}
	return t, nil
}

func field(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

type entry struct {
	offset    int64
	gen       int
	inStream  bool
	streamNum int
	index     int
}

type table struct {
	entries map[int]entry
	trailer *raw.DictObj
	kind    string
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.inStream {
		return 0, 0, false
	}
	return e.offset, e.gen, true
}

func (t *table) ObjStream(objNum int) (int, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || !e.inStream {
		return 0, 0, false
	}
	return e.streamNum, e.index, true
}

func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func (t *table) Type() string          { return t.kind }
func (t *table) Trailer() *raw.DictObj { return t.trailer }
