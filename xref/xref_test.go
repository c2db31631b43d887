package xref_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/xref"
)

func buildSimplePDF() ([]byte, map[int]int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	offsets := make(map[int]int64)

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")

	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 3\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 2; i++ {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", offsets[i]))
	}
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n")
	buf.WriteString(fmt.Sprintf("%d\n", xrefOffset))
	buf.WriteString("%%EOF\n")

	return buf.Bytes(), offsets
}

func TestResolverParsesXRefTable(t *testing.T) {
	pdf, offsets := buildSimplePDF()
	resolver := xref.NewResolver(xref.ResolverConfig{})
	table, err := resolver.Resolve(context.Background(), pdf)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for obj, off := range offsets {
		gotOff, gen, ok := table.Lookup(obj)
		if !ok {
			t.Fatalf("missing object %d", obj)
		}
		if gotOff != off || gen != 0 {
			t.Fatalf("object %d: expected (%d,0), got (%d,%d)", obj, off, gotOff, gen)
		}
	}
}

func savedDocument(t *testing.T, compact bool) []byte {
	t.Helper()
	doc := document.New()
	for i := 0; i < 3; i++ {
		doc.AddBlankPage(612, 792).AppendContent([]byte(fmt.Sprintf("BT /F1 12 Tf (page %d) Tj ET", i+1)))
	}
	data, err := doc.Save(context.Background(), document.SaveOptions{Compact: compact})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return data
}

func TestResolverReadsClassicOutput(t *testing.T) {
	data := savedDocument(t, false)
	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), data)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if table.Type() != "table" {
		t.Fatalf("expected classic table, got %s", table.Type())
	}
	if len(table.Objects()) == 0 {
		t.Fatalf("no objects")
	}
	for _, num := range table.Objects() {
		off, _, ok := table.Lookup(num)
		if !ok {
			t.Fatalf("object %d not found", num)
		}
		if !bytes.HasPrefix(data[off:], []byte(fmt.Sprintf("%d 0 obj", num))) {
			t.Fatalf("object %d offset %d points at %q", num, off, data[off:min(len(data), int(off)+12)])
		}
	}
}

func TestResolverReadsCompactOutput(t *testing.T) {
	data := savedDocument(t, true)
	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), data)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if table.Type() != "xref-stream" {
		t.Fatalf("expected xref-stream table, got %s", table.Type())
	}
	packed := 0
	for _, num := range table.Objects() {
		if _, _, ok := table.ObjStream(num); ok {
			packed++
		}
	}
	if packed == 0 {
		t.Fatalf("no objects inside object streams")
	}
	if _, ok := table.Trailer().Lookup("Root"); !ok {
		t.Fatalf("trailer lost /Root")
	}
	if _, ok := table.Trailer().Lookup("W"); ok {
		t.Fatalf("stream-only keys leaked into trailer")
	}
}

func TestResolverErrorsOnInvalidSize(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	objOff := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	xrefOff := buf.Len()
	fmt.Fprintf(buf, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", objOff)
	buf.WriteString("trailer\n<< /Size 1 /Root 1 0 R >>\nstartxref\n")
	fmt.Fprintf(buf, "%d\n%%%%EOF\n", xrefOff)

	resolver := xref.NewResolver(xref.ResolverConfig{})
	if _, err := resolver.Resolve(context.Background(), buf.Bytes()); err == nil {
		t.Fatalf("expected size validation error")
	}
}

func TestResolverIncrementalUpdateOverridesOffsets(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")
	oldOff := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /V 1 >>\nendobj\n")
	x1 := buf.Len()
	fmt.Fprintf(buf, "xref\n0 2\n0000000000 65535 f \n%010d 00000 n \n", oldOff)
	fmt.Fprintf(buf, "trailer\n<< /Size 2 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", x1)
	newOff := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /V 2 >>\nendobj\n")
	x2 := buf.Len()
	fmt.Fprintf(buf, "xref\n1 1\n%010d 00000 n \n", newOff)
	fmt.Fprintf(buf, "trailer\n<< /Size 2 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", x1, x2)

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if off, _, _ := table.Lookup(1); off != int64(newOff) {
		t.Fatalf("expected newest offset %d, got %d", newOff, off)
	}
}
