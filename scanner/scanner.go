package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/wudi/pdfstudio/recovery"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenStream                   // 'stream' keyword, Bytes holds the payload
	TokenKeyword                  // other keywords (obj, endobj, endstream, >>, ], etc.)
)

// Token is a lexical PDF token. Only the fields relevant to Type are set.
type Token struct {
	Type  TokenType
	Str   string // names and keywords
	Bytes []byte // strings and stream payloads
	Hex   bool
	Int   int64 // integers; object number for refs
	Gen   int64 // generation for refs
	Float float64
	IsInt bool
	Bool  bool
	Pos   int64
}

// Num returns the numeric value regardless of integer or real form.
func (t Token) Num() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

func (t Token) String() string {
	switch t.Type {
	case TokenName:
		return "/" + t.Str
	case TokenNumber:
		if t.IsInt {
			return strconv.FormatInt(t.Int, 10)
		}
		return strconv.FormatFloat(t.Float, 'f', -1, 64)
	case TokenRef:
		return fmt.Sprintf("%d %d R", t.Int, t.Gen)
	case TokenString:
		return fmt.Sprintf("(%q)", t.Bytes)
	case TokenDict:
		return "<<"
	case TokenArray:
		return "["
	case TokenStream:
		return fmt.Sprintf("stream[%d]", len(t.Bytes))
	case TokenBoolean:
		return strconv.FormatBool(t.Bool)
	case TokenNull:
		return "null"
	}
	return t.Str
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	SetNextStreamLength(n int64)
	SetRecoveryLocation(loc recovery.Location)
}

type Config struct {
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	Recovery        recovery.Strategy
}

var (
	ErrUnterminatedString = errors.New("unterminated string")
	ErrStreamTooLarge     = errors.New("stream exceeds limit")
	ErrMissingEndstream   = errors.New("endstream not found")
)

type pdfScanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
}

// New returns a scanner over an in-memory PDF buffer.
func New(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek %d out of range", offset)
	}
	s.pos = offset
	s.arrayDepth, s.dictDepth = 0, 0
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '{', '}', ')':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	return s.scanKeyword()
}

func (s *pdfScanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var buf bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			buf.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		buf.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: buf.String(), Pos: start}, nil
}

// scanLiteralString follows PDF 7.3.4.2: balanced parentheses, backslash escapes,
// octal codes and line continuations.
func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	depth := 1
	var buf bytes.Buffer
	for s.pos < int64(len(s.data)) {
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("string at %d exceeds %d bytes", start, s.cfg.MaxStringLength)
		}
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
			}
			buf.WriteByte(c)
		case '\r':
			// bare CR and CRLF both read as LF
			if s.peek(0) == '\n' {
				s.pos++
			}
			buf.WriteByte('\n')
		case '\\':
			if s.pos >= int64(len(s.data)) {
				break
			}
			e := s.data[s.pos]
			s.pos++
			switch {
			case e >= '0' && e <= '7':
				v := int(e - '0')
				for i := 0; i < 2 && s.pos < int64(len(s.data)); i++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					v = v*8 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(v))
			case e == '\r':
				if s.peek(0) == '\n' {
					s.pos++
				}
			case e == '\n':
			default:
				buf.WriteByte(translateEscape(e))
			}
		default:
			buf.WriteByte(c)
		}
	}
	if err := s.recover(ErrUnterminatedString, "string"); err != nil {
		return Token{}, err
	}
	return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var out []byte
	var hi byte
	half := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if half {
				out = append(out, hi<<4)
			}
			return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			if err := s.recover(fmt.Errorf("invalid hex digit %q at %d", c, s.pos-1), "hexstring"); err != nil {
				return Token{}, err
			}
			continue
		}
		if half {
			out = append(out, hi<<4|fromHex(c))
		} else {
			hi = fromHex(c)
		}
		half = !half
	}
	if err := s.recover(ErrUnterminatedString, "hexstring"); err != nil {
		return Token{}, err
	}
	return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		// stray byte that is neither token nor delimiter
		s.pos++
	}
	word := string(s.data[start:s.pos])
	switch word {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: word == "true", Str: word, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: word, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	}
	return Token{Type: TokenKeyword, Str: word, Pos: start}, nil
}

var endstreamKW = []byte("endstream")

// scanStream reads the payload after the 'stream' keyword. A usable /Length hint
// wins; otherwise the payload ends at the next endstream keyword.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	length := s.nextStreamLen
	s.nextStreamLen = -1
	if s.peek(0) == '\r' {
		s.pos++
	}
	if s.peek(0) == '\n' {
		s.pos++
	}
	dataStart := s.pos
	size := int64(len(s.data))
	if length >= 0 && dataStart+length <= size && endstreamFollows(s.data, dataStart+length) {
		if s.cfg.MaxStreamLength > 0 && length > s.cfg.MaxStreamLength {
			return Token{}, ErrStreamTooLarge
		}
		s.pos = dataStart + length
		return Token{Type: TokenStream, Bytes: s.data[dataStart : dataStart+length], Pos: start}, nil
	}
	if length >= 0 {
		if err := s.recover(fmt.Errorf("stream /Length %d does not match data", length), "stream"); err != nil {
			return Token{}, err
		}
	}
	idx := bytes.Index(s.data[dataStart:], endstreamKW)
	if idx < 0 {
		if err := s.recover(ErrMissingEndstream, "stream"); err != nil {
			return Token{}, err
		}
		// truncated file: the payload runs to EOF
		idx = len(s.data) - int(dataStart)
	}
	end := dataStart + int64(idx)
	if end > dataStart && s.data[end-1] == '\n' {
		end--
		if end > dataStart && s.data[end-1] == '\r' {
			end--
		}
	} else if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, ErrStreamTooLarge
	}
	s.pos = end
	return Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start}, nil
}

func endstreamFollows(data []byte, at int64) bool {
	for at < int64(len(data)) && isWhitespace(data[at]) {
		at++
	}
	return bytes.HasPrefix(data[at:], endstreamKW)
}

// scanNumberOrRef reads a number and looks ahead for the 'G R' tail of an
// indirect reference.
func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	tok, ok := s.scanNumber()
	if !ok {
		return s.scanKeyword()
	}
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}
	save := s.pos
	s.skipWSAndComments()
	if s.pos < int64(len(s.data)) && s.data[s.pos] >= '0' && s.data[s.pos] <= '9' {
		gen, ok := s.scanNumber()
		if ok && gen.IsInt {
			s.skipWSAndComments()
			if s.peek(0) == 'R' && (s.pos+1 >= int64(len(s.data)) || isWhitespace(s.peek(1)) || isDelimiter(s.peek(1))) {
				s.pos++
				return Token{Type: TokenRef, Int: tok.Int, Gen: gen.Int, Pos: start}, nil
			}
		}
	}
	s.pos = save
	return tok, nil
}

func (s *pdfScanner) scanNumber() (Token, bool) {
	start := s.pos
	end := start
	dot := false
	for end < int64(len(s.data)) {
		c := s.data[end]
		if c == '.' {
			dot = true
		} else if !(c >= '0' && c <= '9') && !((c == '+' || c == '-') && end == start) {
			break
		}
		end++
	}
	text := string(s.data[start:end])
	if text == "" || text == "+" || text == "-" || text == "." {
		return Token{}, false
	}
	s.pos = end
	if !dot {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start}, true
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// forms like "--5" or "1.2.3" read as zero, as most readers do
		f = 0
	}
	return Token{Type: TokenNumber, Float: f, Pos: start}, true
}

func (s *pdfScanner) recover(err error, where string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	loc := s.recLoc
	loc.ByteOffset = s.pos
	if loc.Component != "" {
		loc.Component += "->"
	}
	loc.Component += "scanner:" + where
	switch s.cfg.Recovery.OnError(nil, err, loc) {
	case recovery.ActionFix, recovery.ActionSkip:
		return nil
	default:
		return err
	}
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	switch {
	case tok.Type == TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, errors.New("array depth exceeded")
		}
	case tok.Type == TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, errors.New("dictionary depth exceeded")
		}
	case tok.Str == "]" && s.arrayDepth > 0:
		s.arrayDepth--
	case tok.Str == ">>" && s.dictDepth > 0:
		s.dictDepth--
	}
	return tok, nil
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isWhitespace(c byte) bool {
	return c == 0 || c == '\t' || c == '\n' || c == '\f' || c == '\r' || c == ' '
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}
