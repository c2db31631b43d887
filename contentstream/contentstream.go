package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/scanner"
	"github.com/wudi/pdfstudio/writer"
)

// Operation is one operator with its operands, in stream order.
type Operation struct {
	Operator string
	Operands []raw.Object
}

// Op builds an operation from numbers, names and other raw operands.
func Op(operator string, operands ...raw.Object) Operation {
	return Operation{Operator: operator, Operands: operands}
}

// Nums converts floats to number operands.
func Nums(vals ...float64) []raw.Object {
	out := make([]raw.Object, len(vals))
	for i, v := range vals {
		out[i] = raw.NumberFloat(v)
	}
	return out
}

// Encode serializes operations, one per line.
func Encode(ops []Operation) []byte {
	var b bytes.Buffer
	for _, op := range ops {
		for _, operand := range op.Operands {
			if img, ok := operand.(*raw.StreamObj); ok && op.Operator == "EI" {
				b.Write(writer.Serialize(img.Dict))
				b.WriteString(" ID\n")
				b.Write(img.Data)
				b.WriteByte('\n')
				continue
			}
			b.Write(writer.Serialize(operand))
			b.WriteByte(' ')
		}
		b.WriteString(op.Operator)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

var ErrDanglingOperands = errors.New("operands without operator")

// Parse splits a content stream into operations. Inline images are returned
// as a single "EI" operation whose operand is a stream.
func Parse(data []byte) ([]Operation, error) {
	s := scanner.New(data, scanner.Config{})
	r := scanner.NewObjectReader(s)
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ops, err
		}
		switch tok.Type {
		case scanner.TokenKeyword:
			if tok.Str == "BI" {
				img, err := readInlineImage(data, s, r)
				if err != nil {
					return ops, err
				}
				ops = append(ops, Operation{Operator: "EI", Operands: []raw.Object{img}})
				operands = nil
				continue
			}
			ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
			operands = nil
		case scanner.TokenArray:
			// hand the opening bracket back to the reader
			if err := r.Seek(tok.Pos); err != nil {
				return ops, err
			}
			obj, err := r.Read()
			if err != nil {
				return ops, err
			}
			operands = append(operands, obj)
		case scanner.TokenDict:
			if err := r.Seek(tok.Pos); err != nil {
				return ops, err
			}
			obj, err := r.Read()
			if err != nil {
				return ops, err
			}
			operands = append(operands, obj)
		case scanner.TokenName:
			operands = append(operands, raw.NameLiteral(tok.Str))
		case scanner.TokenNumber:
			if tok.IsInt {
				operands = append(operands, raw.NumberInt(tok.Int))
			} else {
				operands = append(operands, raw.NumberFloat(tok.Float))
			}
		case scanner.TokenString:
			if tok.Hex {
				operands = append(operands, raw.HexStr(tok.Bytes))
			} else {
				operands = append(operands, raw.Str(tok.Bytes))
			}
		case scanner.TokenBoolean:
			operands = append(operands, raw.Bool(tok.Bool))
		case scanner.TokenNull:
			operands = append(operands, raw.NullObj{})
		case scanner.TokenRef:
			// "n g R" never appears in content; keep the numbers
			operands = append(operands, raw.NumberInt(tok.Int), raw.NumberInt(tok.Gen))
			ops = append(ops, Operation{Operator: "R", Operands: operands})
			operands = nil
		}
	}
	if len(operands) > 0 {
		return ops, fmt.Errorf("%w: %d", ErrDanglingOperands, len(operands))
	}
	return ops, nil
}

func readInlineImage(data []byte, s scanner.Scanner, r *scanner.ObjectReader) (raw.Object, error) {
	dict := raw.Dict()
	for {
		tok, err := s.Next()
		if err != nil {
			return nil, fmt.Errorf("inline image: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "ID" {
			break
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("inline image key at %d: %w", tok.Pos, scanner.ErrUnexpectedToken)
		}
		val, err := r.Read()
		if err != nil {
			return nil, fmt.Errorf("inline image /%s: %w", tok.Str, err)
		}
		dict.Put(tok.Str, val)
	}
	start := s.Position() + 1
	if start > int64(len(data)) {
		return nil, fmt.Errorf("inline image: %w", io.ErrUnexpectedEOF)
	}
	end := bytes.Index(data[start:], []byte("EI"))
	for end >= 0 {
		after := start + int64(end) + 2
		if after >= int64(len(data)) || isSpace(data[after]) {
			break
		}
		next := bytes.Index(data[after:], []byte("EI"))
		if next < 0 {
			end = -1
			break
		}
		end = int(after-start) + next
	}
	if end < 0 {
		return nil, fmt.Errorf("inline image: missing EI")
	}
	payload := bytes.TrimRight(data[start:start+int64(end)], " \r\n\t")
	if err := s.Seek(start + int64(end) + 2); err != nil {
		return nil, err
	}
	return raw.NewStream(dict, append([]byte(nil), payload...)), nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\n', '\r', '\t', '\f', 0:
		return true
	}
	return false
}
