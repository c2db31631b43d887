package scanner

import (
	"errors"
	"strings"
	"testing"

	"github.com/wudi/pdfstudio/recovery"
)

func tokens(t *testing.T, s Scanner, n int) []Token {
	t.Helper()
	out := make([]Token, 0, n)
	for i := 0; i < n; i++ {
		tok, err := s.Next()
		if err != nil {
			t.Fatalf("token %d: %v", i, err)
		}
		out = append(out, tok)
	}
	return out
}

func TestObjectHeaderAndDictionary(t *testing.T) {
	s := New([]byte("%PDF-1.7\n4 0 obj\n<< /Type /Page /Rotate 90 /Box [0 0 612 792] /Flag true /Gone null >>\nendobj"), Config{})
	want := []struct {
		typ TokenType
		str string
		num int64
	}{
		{TokenNumber, "", 4},
		{TokenNumber, "", 0},
		{TokenKeyword, "obj", 0},
		{TokenDict, "", 0},
		{TokenName, "Type", 0},
		{TokenName, "Page", 0},
		{TokenName, "Rotate", 0},
		{TokenNumber, "", 90},
		{TokenName, "Box", 0},
		{TokenArray, "", 0},
		{TokenNumber, "", 0},
		{TokenNumber, "", 0},
		{TokenNumber, "", 612},
		{TokenNumber, "", 792},
		{TokenKeyword, "]", 0},
		{TokenName, "Flag", 0},
		{TokenBoolean, "", 0},
		{TokenName, "Gone", 0},
		{TokenNull, "", 0},
	}
	for i, tok := range tokens(t, s, len(want)) {
		w := want[i]
		if tok.Type != w.typ || tok.Str != w.str && w.str != "" || w.typ == TokenNumber && (!tok.IsInt || tok.Int != w.num) {
			t.Fatalf("token %d: got %+v, want %+v", i, tok, w)
		}
	}
}

func TestSingleTokens(t *testing.T) {
	cases := []struct {
		name  string
		input string
		typ   TokenType
		want  string
	}{
		{"name escapes", "/Page#20Label#23", TokenName, "Page Label#"},
		{"literal escapes", "(Hi\\n\\050\\051\\t)", TokenString, "Hi\n()\t"},
		{"line continuation", "(Signed\\\r\nby)", TokenString, "Signedby"},
		{"odd hex digits", "<48656c6c6f3>", TokenString, "Hello0"},
		{"utf16 hex", "<FEFF00E9>", TokenString, "\xfe\xff\x00\xe9"},
		{"stream fallback", "stream\nabc\r\nendstream\n", TokenStream, "abc"},
		{"stream cr endings", "stream\rdata\rendstream\r", TokenStream, "data"},
	}
	for _, c := range cases {
		tok := tokens(t, New([]byte(c.input), Config{}), 1)[0]
		got := tok.Str
		if tok.Type == TokenString || tok.Type == TokenStream {
			got = string(tok.Bytes)
		}
		if tok.Type != c.typ || got != c.want {
			t.Errorf("%s: got %v %q, want %v %q", c.name, tok.Type, got, c.typ, c.want)
		}
	}
}

func TestReferences(t *testing.T) {
	tok := tokens(t, New([]byte("12 5 R %comment\n"), Config{}), 1)[0]
	if tok.Type != TokenRef || tok.Int != 12 || tok.Gen != 5 {
		t.Fatalf("reference: %+v", tok)
	}
}

func TestRealNumbers(t *testing.T) {
	s := New([]byte("-3.5 .25 +7 0.5"), Config{})
	for i, want := range []float64{-3.5, 0.25, 7, 0.5} {
		if tok := tokens(t, s, 1)[0]; tok.Type != TokenNumber || tok.Num() != want {
			t.Fatalf("number %d: got %+v, want %v", i, tok, want)
		}
	}
}

func TestStreamWithDeclaredLength(t *testing.T) {
	s := New([]byte("stream\r\nq 1 0 0 1 0 0 cm Q\r\nendstream"), Config{})
	s.SetNextStreamLength(18)
	tok := tokens(t, s, 1)[0]
	if tok.Type != TokenStream || string(tok.Bytes) != "q 1 0 0 1 0 0 cm Q" {
		t.Fatalf("stream: %+v", tok)
	}
}

func TestScanErrors(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		cfg    Config
		length int64
		is     error
		msg    string
	}{
		{name: "string limit", input: "(abcdef)", cfg: Config{MaxStringLength: 3}, msg: "exceeds 3 bytes"},
		{name: "missing endstream", input: "stream\nabc", is: ErrMissingEndstream},
		{name: "stream limit", input: "stream\nabcdef\nendstream", cfg: Config{MaxStreamLength: 3}, length: 6, is: ErrStreamTooLarge},
		{name: "unterminated string", input: "(abc", is: ErrUnterminatedString},
		{name: "dict depth", input: "<< /A << /B << >> >> >>", cfg: Config{MaxDictDepth: 2}, msg: "dictionary depth exceeded"},
	}
	for _, c := range cases {
		s := New([]byte(c.input), c.cfg)
		if c.length > 0 {
			s.SetNextStreamLength(c.length)
		}
		var err error
		for err == nil {
			_, err = s.Next()
		}
		if c.is != nil && !errors.Is(err, c.is) || c.msg != "" && !strings.Contains(err.Error(), c.msg) {
			t.Errorf("%s: got %v", c.name, err)
		}
	}
}

type fixRecovery struct{}

func (fixRecovery) OnError(ctx recovery.Context, err error, loc recovery.Location) recovery.Action {
	return recovery.ActionFix
}

func TestRecoveryFixesTruncation(t *testing.T) {
	cases := []struct {
		input  string
		length int64
		want   string
	}{
		{"(abc", 0, "abc"},
		{"<4142", 0, "AB"},
		{"stream\nabc", 5, "abc"},
	}
	for _, c := range cases {
		s := New([]byte(c.input), Config{Recovery: fixRecovery{}})
		if c.length > 0 {
			s.SetNextStreamLength(c.length)
		}
		tok, err := s.Next()
		if err != nil {
			t.Fatalf("%q: recovery did not continue: %v", c.input, err)
		}
		if string(tok.Bytes) != c.want {
			t.Fatalf("%q: got %q, want %q", c.input, tok.Bytes, c.want)
		}
	}
}

type recordRecovery struct {
	loc recovery.Location
}

func (r *recordRecovery) OnError(ctx recovery.Context, err error, loc recovery.Location) recovery.Action {
	r.loc = loc
	return recovery.ActionWarn
}

func TestRecoveryLocationNamesObject(t *testing.T) {
	rec := &recordRecovery{}
	s := New([]byte("<abc"), Config{Recovery: rec})
	s.SetRecoveryLocation(recovery.Location{ObjectNum: 5, ObjectGen: 2, Component: "parser"})
	if _, err := s.Next(); err == nil {
		t.Fatalf("expected unterminated hex string error")
	}
	if rec.loc.ObjectNum != 5 || rec.loc.ObjectGen != 2 || !strings.Contains(rec.loc.Component, "scanner:hex") {
		t.Fatalf("recovery location %+v", rec.loc)
	}
}
