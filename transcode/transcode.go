// Package transcode converts binary buffers to and from base64 text with a
// table-driven codec that needs no host encoder.
package transcode

import (
	"fmt"
	"io"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const pad = '='

const invalid = 0xFF

var decodeMap = func() [256]byte {
	var m [256]byte
	for i := range m {
		m[i] = invalid
	}
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = byte(i)
	}
	return m
}()

// FormatError reports malformed base64 text. Offset is the byte offset of
// the offending character in the input.
type FormatError struct {
	Offset int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("transcode: malformed base64 at offset %d: %s", e.Offset, e.Reason)
}

// EncodedLen is the text length for n input bytes, padding included.
func EncodedLen(n int) int { return (n + 2) / 3 * 4 }

// Encode returns the padded base64 form of data.
func Encode(data []byte) string {
	out := make([]byte, EncodedLen(len(data)))
	encodeBlock(out, data)
	return string(out)
}

// encodeBlock writes the encoding of src into dst, which must hold
// EncodedLen(len(src)) bytes.
func encodeBlock(dst, src []byte) {
	di, si := 0, 0
	for n := len(src) / 3 * 3; si < n; si += 3 {
		v := uint(src[si])<<16 | uint(src[si+1])<<8 | uint(src[si+2])
		dst[di] = alphabet[v>>18&0x3F]
		dst[di+1] = alphabet[v>>12&0x3F]
		dst[di+2] = alphabet[v>>6&0x3F]
		dst[di+3] = alphabet[v&0x3F]
		di += 4
	}
	switch len(src) - si {
	case 1:
		v := uint(src[si]) << 16
		dst[di] = alphabet[v>>18&0x3F]
		dst[di+1] = alphabet[v>>12&0x3F]
		dst[di+2] = pad
		dst[di+3] = pad
	case 2:
		v := uint(src[si])<<16 | uint(src[si+1])<<8
		dst[di] = alphabet[v>>18&0x3F]
		dst[di+1] = alphabet[v>>12&0x3F]
		dst[di+2] = alphabet[v>>6&0x3F]
		dst[di+3] = pad
	}
}

// Decode parses padded base64 text. Anything other than well-formed quartets
// from the standard alphabet fails with *FormatError.
func Decode(text string) ([]byte, error) {
	if len(text)%4 != 0 {
		return nil, &FormatError{Offset: int64(len(text)), Reason: fmt.Sprintf("length %d is not a multiple of 4", len(text))}
	}
	out := make([]byte, 0, len(text)/4*3)
	for i := 0; i < len(text); i += 4 {
		var err error
		out, err = decodeQuartet(out, text[i:i+4], int64(i), i+4 == len(text))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// decodeQuartet appends the bytes of one four-character group. Padding is
// only legal in the final group.
func decodeQuartet(out []byte, q string, offset int64, final bool) ([]byte, error) {
	var vals [4]byte
	pads := 0
	for j := 0; j < 4; j++ {
		c := q[j]
		if c == pad {
			if !final || j < 2 {
				return nil, &FormatError{Offset: offset + int64(j), Reason: "unexpected padding"}
			}
			pads++
			continue
		}
		if pads > 0 {
			return nil, &FormatError{Offset: offset + int64(j), Reason: "data after padding"}
		}
		v := decodeMap[c]
		if v == invalid {
			return nil, &FormatError{Offset: offset + int64(j), Reason: fmt.Sprintf("invalid character %q", c)}
		}
		vals[j] = v
	}
	v := uint(vals[0])<<18 | uint(vals[1])<<12 | uint(vals[2])<<6 | uint(vals[3])
	switch pads {
	case 0:
		return append(out, byte(v>>16), byte(v>>8), byte(v)), nil
	case 1:
		if v&0xFF != 0 {
			return nil, &FormatError{Offset: offset + 2, Reason: "non-zero trailing bits"}
		}
		return append(out, byte(v>>16), byte(v>>8)), nil
	default:
		if v&0xFFFF != 0 {
			return nil, &FormatError{Offset: offset + 1, Reason: "non-zero trailing bits"}
		}
		return append(out, byte(v>>16)), nil
	}
}

type encoder struct {
	w     io.Writer
	buf   [3]byte
	nbuf  int
	out   [1024]byte
	err   error
	close bool
}

// NewEncoder returns a writer that base64-encodes everything written to it
// into w. Close flushes the final partial group with padding; it does not
// close w.
func NewEncoder(w io.Writer) io.WriteCloser { return &encoder{w: w} }

func (e *encoder) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	if e.close {
		return 0, fmt.Errorf("transcode: write after close")
	}
	n := 0
	if e.nbuf > 0 {
		for len(p) > 0 && e.nbuf < 3 {
			e.buf[e.nbuf] = p[0]
			e.nbuf++
			p = p[1:]
			n++
		}
		if e.nbuf < 3 {
			return n, nil
		}
		encodeBlock(e.out[:4], e.buf[:])
		if _, e.err = e.w.Write(e.out[:4]); e.err != nil {
			return n, e.err
		}
		e.nbuf = 0
	}
	for len(p) >= 3 {
		chunk := len(e.out) / 4 * 3
		if chunk > len(p) {
			chunk = len(p) / 3 * 3
		}
		encodeBlock(e.out[:chunk/3*4], p[:chunk])
		if _, e.err = e.w.Write(e.out[:chunk/3*4]); e.err != nil {
			return n, e.err
		}
		n += chunk
		p = p[chunk:]
	}
	copy(e.buf[:], p)
	e.nbuf = len(p)
	n += len(p)
	return n, nil
}

func (e *encoder) Close() error {
	if e.close {
		return e.err
	}
	e.close = true
	if e.err == nil && e.nbuf > 0 {
		encodeBlock(e.out[:4], e.buf[:e.nbuf])
		_, e.err = e.w.Write(e.out[:4])
		e.nbuf = 0
	}
	return e.err
}

// DecodeReader decodes base64 text streamed from r. Line breaks between
// quartets are ignored so wrapped text is accepted.
func DecodeReader(r io.Reader) ([]byte, error) {
	var out []byte
	var q [4]byte
	nq := 0
	var offset, qStart int64
	var buf [4096]byte
	done := false
	for {
		n, err := r.Read(buf[:])
		for _, c := range buf[:n] {
			pos := offset
			offset++
			if c == '\n' || c == '\r' {
				continue
			}
			if done {
				return nil, &FormatError{Offset: pos, Reason: "data after padding"}
			}
			if nq == 0 {
				qStart = pos
			}
			q[nq] = c
			nq++
			if nq == 4 {
				final := q[3] == pad
				var derr error
				out, derr = decodeQuartet(out, string(q[:]), qStart, final)
				if derr != nil {
					return nil, derr
				}
				done = final
				nq = 0
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if nq != 0 {
		return nil, &FormatError{Offset: offset, Reason: "truncated final group"}
	}
	return out, nil
}
