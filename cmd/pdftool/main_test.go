package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wudi/pdfstudio/document"
)

func writePDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	doc := document.New()
	for i := 0; i < pages; i++ {
		doc.AddBlankPage(612, 792)
	}
	data, err := doc.Save(context.Background(), document.SaveOptions{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

// pdftool runs the command and returns the exit code with the trimmed
// stdout lines.
func pdftool(t *testing.T, args ...string) (int, []string, string) {
	t.Helper()
	t.Setenv("PDFSTUDIO_REDIS_ADDR", "")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return code, nil, stderr.String()
	}
	return code, strings.Split(out, "\n"), stderr.String()
}

func loadOutput(t *testing.T, path string) *document.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	doc, err := document.Load(context.Background(), data)
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	return doc
}

func TestMergeWritesTimestampedOutput(t *testing.T) {
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", 2)
	b := writePDF(t, dir, "b.pdf", 3)
	code, out, stderr := pdftool(t, "-out", dir, "merge", "-name", "combined", a, b)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if len(out) != 1 || !strings.HasPrefix(filepath.Base(out[0]), "combined_") || !strings.HasSuffix(out[0], ".pdf") {
		t.Fatalf("output %v", out)
	}
	if n := loadOutput(t, out[0]).PageCount(); n != 5 {
		t.Fatalf("merged %d pages", n)
	}
}

func TestSplitEvery(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, "book.pdf", 5)
	code, out, stderr := pdftool(t, "-out", dir, "split", "-every", "2", in)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if len(out) != 3 {
		t.Fatalf("outputs %v", out)
	}
	for i, want := range []int{2, 2, 1} {
		if n := loadOutput(t, out[i]).PageCount(); n != want {
			t.Fatalf("part %d has %d pages, want %d", i+1, n, want)
		}
	}
}

func TestPlacementCommands(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, "form.pdf", 2)
	for _, args := range [][]string{
		{"watermark", "-text", "DRAFT", in},
		{"pagenumbers", "-format", "number", "-position", "top-right", in},
		{"text", "-page", "2", "-text", "Approved", "-color", "#cc0000", in},
		{"rotate", "-angle", "90", "-pages", "1", in},
	} {
		code, out, stderr := pdftool(t, append([]string{"-out", dir}, args...)...)
		if code != 0 {
			t.Fatalf("%s: exit %d: %s", args[0], code, stderr)
		}
		doc := loadOutput(t, out[0])
		if doc.PageCount() != 2 {
			t.Fatalf("%s: %d pages", args[0], doc.PageCount())
		}
		if args[0] == "rotate" {
			if p, _ := doc.Page(0); p.Rotation() != 90 {
				t.Fatalf("rotation %d", p.Rotation())
			}
		}
	}
}

func TestConvertImages(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 120, 80))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	pic := filepath.Join(dir, "scan.png")
	if err := os.WriteFile(pic, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, out, stderr := pdftool(t, "-out", dir, "convert", pic, pic)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if len(out) != 1 || !strings.HasPrefix(filepath.Base(out[0]), "converted_") {
		t.Fatalf("output %v", out)
	}
	doc := loadOutput(t, out[0])
	if doc.PageCount() != 2 {
		t.Fatalf("converted %d pages", doc.PageCount())
	}
	p, err := doc.Page(1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if w, h := p.Size(); w != 120 || h != 80 {
		t.Fatalf("page size %vx%v", w, h)
	}
	if code, _, _ := pdftool(t, "-out", dir, "convert"); code != 2 {
		t.Fatalf("convert without inputs exited %d", code)
	}
}

func TestProtectRequiresPassword(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, "secret.pdf", 1)
	code, out, stderr := pdftool(t, "-out", dir, "protect", "-new-password", "s3cret", in)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	data, err := os.ReadFile(out[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := document.Load(context.Background(), data); err == nil {
		t.Fatalf("protected output opened without password")
	}
	if _, err := document.Load(context.Background(), data, document.WithPassword("s3cret")); err != nil {
		t.Fatalf("load with password: %v", err)
	}
	if code, _, _ := pdftool(t, "-out", dir, "-password", "s3cret", "info", out[0]); code != 0 {
		t.Fatalf("info on protected output exited %d", code)
	}
}

func TestEncodeDecode(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, "doc.pdf", 1)
	code, out, stderr := pdftool(t, "encode", in)
	if code != 0 || len(out) != 1 {
		t.Fatalf("encode exit %d: %s", code, stderr)
	}
	text := filepath.Join(dir, "doc.b64")
	if err := os.WriteFile(text, []byte(out[0]+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	code, out, stderr = pdftool(t, "-out", dir, "decode", text)
	if code != 0 {
		t.Fatalf("decode exit %d: %s", code, stderr)
	}
	original, _ := os.ReadFile(in)
	decoded, _ := os.ReadFile(out[0])
	if !bytes.Equal(original, decoded) {
		t.Fatalf("decoded bytes differ from the original")
	}

	bad := filepath.Join(dir, "bad.b64")
	os.WriteFile(bad, []byte("not*base64"), 0o644)
	if code, _, stderr := pdftool(t, "-out", dir, "decode", bad); code != 1 || !strings.Contains(stderr, "decode failed:") {
		t.Fatalf("bad input: exit %d, %s", code, stderr)
	}
}

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, "three.pdf", 3)
	cases := []struct {
		args []string
		code int
		msg  string
	}{
		{nil, 2, "usage:"},
		{[]string{"frobnicate"}, 2, "unknown command"},
		{[]string{"extract", in}, 2, "-pages is required"},
		{[]string{"split", in}, 2, "exactly one of"},
		{[]string{"merge", in}, 2, "at least 2"},
		{[]string{"-out", dir, "extract", "-pages", "9", in}, 1, "extract failed:"},
		{[]string{"-out", dir, "delete", "-pages", "1-3", in}, 1, "delete failed:"},
		{[]string{"info", filepath.Join(dir, "missing.pdf")}, 1, "info failed:"},
	}
	for _, c := range cases {
		code, _, stderr := pdftool(t, c.args...)
		if code != c.code || !strings.Contains(stderr, c.msg) {
			t.Errorf("%v: exit %d, stderr %q; want %d with %q", c.args, code, stderr, c.code, c.msg)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("failed commands left %d files", len(entries))
	}
}
