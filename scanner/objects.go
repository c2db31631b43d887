package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfstudio/ir/raw"
)

// ErrUnexpectedToken is returned when the token stream does not form an object.
var ErrUnexpectedToken = errors.New("unexpected token")

// ObjectReader assembles raw objects from the token stream, with one token of
// lookahead.
type ObjectReader struct {
	S Scanner
	// ResolveLength turns an indirect /Length into a byte count. Direct integer
	// lengths never reach it.
	ResolveLength func(raw.Object) (int64, bool)

	pending *Token
}

func NewObjectReader(s Scanner) *ObjectReader { return &ObjectReader{S: s} }

func (r *ObjectReader) next() (Token, error) {
	if r.pending != nil {
		tok := *r.pending
		r.pending = nil
		return tok, nil
	}
	return r.S.Next()
}

func (r *ObjectReader) unread(tok Token) { r.pending = &tok }

// Seek repositions the underlying scanner and drops any lookahead.
func (r *ObjectReader) Seek(off int64) error {
	r.pending = nil
	return r.S.Seek(off)
}

// Read parses one direct object.
func (r *ObjectReader) Read() (raw.Object, error) {
	tok, err := r.next()
	if err != nil {
		return nil, err
	}
	return r.fromToken(tok)
}

func (r *ObjectReader) fromToken(tok Token) (raw.Object, error) {
	switch tok.Type {
	case TokenName:
		return raw.NameLiteral(tok.Str), nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenString:
		if tok.Hex {
			return raw.HexStr(tok.Bytes), nil
		}
		return raw.Str(tok.Bytes), nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.Ref(int(tok.Int), int(tok.Gen)), nil
	case TokenArray:
		return r.readArray()
	case TokenDict:
		return r.readDict()
	}
	return nil, fmt.Errorf("%w %s at %d", ErrUnexpectedToken, tok, tok.Pos)
}

func (r *ObjectReader) readArray() (raw.Object, error) {
	arr := raw.NewArray()
	for {
		tok, err := r.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("array: %w", io.ErrUnexpectedEOF)
			}
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		item, err := r.fromToken(tok)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func (r *ObjectReader) readDict() (raw.Object, error) {
	dict := raw.Dict()
	for {
		tok, err := r.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("dictionary: %w", io.ErrUnexpectedEOF)
			}
			return nil, err
		}
		if tok.Type == TokenKeyword && tok.Str == ">>" {
			return dict, nil
		}
		if tok.Type != TokenName {
			return nil, fmt.Errorf("dictionary key: %w %s at %d", ErrUnexpectedToken, tok, tok.Pos)
		}
		val, err := r.Read()
		if err != nil {
			return nil, fmt.Errorf("dictionary value /%s: %w", tok.Str, err)
		}
		// a null value is equivalent to an absent key
		if _, isNull := val.(raw.NullObj); isNull {
			continue
		}
		dict.Put(tok.Str, val)
	}
}

// ReadIndirect parses "num gen obj <object> [stream] endobj" at the current
// position. A missing endobj is tolerated when the next token starts another
// object or the trailer.
func (r *ObjectReader) ReadIndirect() (raw.ObjectRef, raw.Object, error) {
	var ref raw.ObjectRef
	numTok, err := r.next()
	if err != nil {
		return ref, nil, err
	}
	genTok, err := r.next()
	if err != nil {
		return ref, nil, err
	}
	objTok, err := r.next()
	if err != nil {
		return ref, nil, err
	}
	if numTok.Type != TokenNumber || !numTok.IsInt || genTok.Type != TokenNumber || !genTok.IsInt ||
		objTok.Type != TokenKeyword || objTok.Str != "obj" {
		return ref, nil, fmt.Errorf("%w: expected object header at %d", ErrUnexpectedToken, numTok.Pos)
	}
	ref = raw.ObjectRef{Num: int(numTok.Int), Gen: int(genTok.Int)}

	obj, err := r.Read()
	if err != nil {
		return ref, nil, fmt.Errorf("object %s: %w", ref, err)
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		r.S.SetNextStreamLength(r.lengthHint(dict))
		tok, err := r.next()
		if err == nil && tok.Type == TokenStream {
			obj = raw.NewStream(dict, tok.Bytes)
			if tok, err = r.next(); err == nil && !(tok.Type == TokenKeyword && tok.Str == "endstream") {
				r.unread(tok)
			}
		} else if err == nil {
			r.unread(tok)
		}
		r.S.SetNextStreamLength(-1)
	}
	tok, err := r.next()
	if err == nil && !(tok.Type == TokenKeyword && tok.Str == "endobj") {
		r.unread(tok)
	}
	return ref, obj, nil
}

func (r *ObjectReader) lengthHint(dict *raw.DictObj) int64 {
	l, ok := dict.Lookup("Length")
	if !ok {
		return -1
	}
	switch v := l.(type) {
	case raw.NumberObj:
		return v.Int()
	case raw.RefObj:
		if r.ResolveLength != nil {
			if n, ok := r.ResolveLength(v); ok {
				return n
			}
		}
	}
	return -1
}
