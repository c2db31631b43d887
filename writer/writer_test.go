package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/parser"
	"github.com/wudi/pdfstudio/security"
)

func sampleDocument() *raw.Document {
	doc := raw.NewDocument()
	catalog := raw.Dict()
	catalog.Put("Type", raw.NameLiteral("Catalog"))
	catalog.Put("Pages", raw.Ref(5, 0))
	pages := raw.Dict()
	pages.Put("Type", raw.NameLiteral("Pages"))
	pages.Put("Kids", raw.NewArray(raw.Ref(9, 0)))
	pages.Put("Count", raw.NumberInt(1))
	page := raw.Dict()
	page.Put("Type", raw.NameLiteral("Page"))
	page.Put("Parent", raw.Ref(5, 0))
	page.Put("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(612), raw.NumberInt(792)))
	page.Put("Contents", raw.Ref(12, 0))
	content := raw.NewStream(raw.Dict(), []byte("BT /F1 12 Tf 72 720 Td (Hello, world) Tj ET"))
	info := raw.Dict()
	info.Put("Title", raw.Str([]byte("Sample (draft)")))

	doc.Objects[raw.ObjectRef{Num: 1}] = catalog
	doc.Objects[raw.ObjectRef{Num: 5}] = pages
	doc.Objects[raw.ObjectRef{Num: 9}] = page
	doc.Objects[raw.ObjectRef{Num: 12}] = content
	doc.Objects[raw.ObjectRef{Num: 40}] = raw.Dict() // unreachable
	doc.Objects[raw.ObjectRef{Num: 41}] = info
	doc.Trailer.Put("Root", raw.Ref(1, 0))
	doc.Trailer.Put("Info", raw.Ref(41, 0))
	return doc
}

func pageContent(t *testing.T, doc *raw.Document) []byte {
	t.Helper()
	catalog, _ := doc.Resolve(doc.Trailer.KV["Root"]).(*raw.DictObj)
	pages, _ := doc.Resolve(catalog.KV["Pages"]).(*raw.DictObj)
	kids, _ := pages.KV["Kids"].(*raw.ArrayObj)
	if kids == nil || kids.Len() != 1 {
		t.Fatalf("unexpected kids: %v", pages.KV["Kids"])
	}
	page, _ := doc.Resolve(kids.Items[0]).(*raw.DictObj)
	st, ok := doc.Resolve(page.KV["Contents"]).(*raw.StreamObj)
	if !ok {
		t.Fatalf("contents missing")
	}
	return st.Data
}

func TestWriteIsDeterministic(t *testing.T) {
	doc := sampleDocument()
	w := New()
	a, err := w.Write(context.Background(), doc, Config{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := w.Write(context.Background(), doc, Config{})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("output differs between writes")
	}
	if !bytes.HasPrefix(a, []byte("%PDF-1.7\n")) {
		t.Fatalf("unexpected header %q", a[:9])
	}
	if !bytes.HasSuffix(a, []byte("%%EOF\n")) {
		t.Fatalf("missing EOF marker")
	}
}

func TestWriteDoesNotMutateDocument(t *testing.T) {
	doc := sampleDocument()
	if _, err := New().Write(context.Background(), doc, Config{Compress: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	st := doc.Objects[raw.ObjectRef{Num: 12}].(*raw.StreamObj)
	if _, ok := st.Dict.Lookup("Filter"); ok {
		t.Fatalf("source stream was modified")
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 40}]; !ok {
		t.Fatalf("source object table was modified")
	}
}

func TestWriteRenumbersReachableObjects(t *testing.T) {
	out, err := New().Write(context.Background(), sampleDocument(), Config{})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	// catalog, pages, page, content, info
	if len(doc.Objects) != 5 {
		t.Fatalf("expected 5 reachable objects, got %d", len(doc.Objects))
	}
	if root := doc.Trailer.KV["Root"].(raw.RefObj); root.R.Num != 1 {
		t.Fatalf("catalog should be object 1, got %s", root.R)
	}
	if got := pageContent(t, doc); string(got) != "BT /F1 12 Tf 72 720 Td (Hello, world) Tj ET" {
		t.Fatalf("content mismatch: %q", got)
	}
	info := doc.Resolve(doc.Trailer.KV["Info"]).(*raw.DictObj)
	if title := info.KV["Title"].(raw.StringObj); string(title.Bytes) != "Sample (draft)" {
		t.Fatalf("title mismatch: %q", title.Bytes)
	}
}

func TestWriteCompactRoundTrip(t *testing.T) {
	out, err := New().Write(context.Background(), sampleDocument(), Config{ObjectStreams: true, Compress: true})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	var major, minor int
	if _, err := fmt.Sscanf(string(out[:8]), "%%PDF-%d.%d", &major, &minor); err != nil {
		t.Fatalf("header %q: %v", out[:8], err)
	}
	if major < 1 || (major == 1 && minor < 5) {
		t.Fatalf("compact output needs at least 1.5, got %q", out[:8])
	}
	if bytes.Contains(out, []byte("\nxref\n")) {
		t.Fatalf("compact output should use a cross-reference stream")
	}
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if got := pageContent(t, doc); !bytes.Contains(got, []byte("Hello, world")) {
		t.Fatalf("content mismatch: %q", got)
	}
}

func TestWriteEncryptedRequiresPassword(t *testing.T) {
	cfg := Config{Encryption: &Encryption{UserPassword: "secret"}}
	out, err := New().Write(context.Background(), sampleDocument(), cfg)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if !bytes.Contains(out, []byte("/Encrypt")) {
		t.Fatalf("trailer lacks /Encrypt")
	}
	if bytes.Contains(out, []byte("Hello, world")) {
		t.Fatalf("content stream left in clear text")
	}
	if _, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), out); !errors.Is(err, security.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword without password, got %v", err)
	}
	doc, err := parser.NewDocumentParser(parser.Config{Password: "secret"}).Parse(context.Background(), out)
	if err != nil {
		t.Fatalf("reparse with password: %v", err)
	}
	if got := pageContent(t, doc); string(got) != "BT /F1 12 Tf 72 720 Td (Hello, world) Tj ET" {
		t.Fatalf("decrypted content mismatch: %q", got)
	}
	again, _ := New().Write(context.Background(), sampleDocument(), cfg)
	if !bytes.Equal(out, again) {
		t.Fatalf("encrypted output is not deterministic")
	}
}

func TestWriteWithoutRoot(t *testing.T) {
	if _, err := New().Write(context.Background(), raw.NewDocument(), Config{}); !errors.Is(err, ErrNoRoot) {
		t.Fatalf("expected ErrNoRoot, got %v", err)
	}
}

func TestFormatReal(t *testing.T) {
	cases := map[float64]string{
		0:          "0",
		-0.00001:   "0",
		1.5:        "1.5",
		612:        "612",
		0.333333:   "0.3333",
		-45.25:     "-45.25",
		1e7 + 0.25: "10000000.25",
	}
	for in, want := range cases {
		if got := formatReal(in); got != want {
			t.Errorf("formatReal(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestNameLiteralEscaping(t *testing.T) {
	cases := map[string]string{
		"Type":        "/Type",
		"A B":         "/A#20B",
		"Sharp#1":     "/Sharp#231",
		"Paren(x)":    "/Paren#28x#29",
		"Caf\xc3\xa9": "/Caf#C3#A9",
	}
	for in, want := range cases {
		if got := pdfNameLiteral(in); got != want {
			t.Errorf("pdfNameLiteral(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeLiteralString(t *testing.T) {
	got := string(escapeLiteralString([]byte("a(b)\\c\n\x01")))
	if want := `(a\(b\)\\c\n\001)`; got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
