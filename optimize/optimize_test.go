package optimize

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/ir/raw"
)

func reload(t *testing.T, doc *document.Document, opts document.SaveOptions) *document.Document {
	t.Helper()
	data, err := doc.Save(context.Background(), opts)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	back, err := document.Load(context.Background(), data)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return back
}

func TestCombineDuplicateStreams(t *testing.T) {
	doc := document.New()
	content := []byte("0 0 m 100 100 l S")
	for i := 0; i < 3; i++ {
		doc.AddBlankPage(200, 200).AppendContent(content)
	}
	report, err := New(Config{CombineDuplicateStreams: true}).Optimize(context.Background(), doc)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if report.StreamsCombined != 2 {
		t.Fatalf("combined %d streams, want 2", report.StreamsCombined)
	}
	pages := doc.Pages()
	first := pages[0].Contents()
	for _, p := range pages[1:] {
		if got := p.Contents(); len(got) != 1 || got[0] != first[0] {
			t.Fatalf("page content %v, want %v", got, first)
		}
	}

	back := reload(t, doc, document.SaveOptions{Compact: true})
	if back.PageCount() != 3 {
		t.Fatalf("pages after reload: %d", back.PageCount())
	}
	data, err := back.Pages()[2].ContentBytes(context.Background())
	if err != nil || !bytes.Contains(data, content) {
		t.Fatalf("content after reload %q, %v", data, err)
	}
}

func TestCombineKeepsDistinctStreams(t *testing.T) {
	doc := document.New()
	doc.AddBlankPage(200, 200).AppendContent([]byte("1 0 0 rg 0 0 10 10 re f"))
	doc.AddBlankPage(200, 200).AppendContent([]byte("0 1 0 rg 0 0 10 10 re f"))
	report, err := New(Config{CombineDuplicateStreams: true}).Optimize(context.Background(), doc)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if report.StreamsCombined != 0 {
		t.Fatalf("distinct streams combined")
	}
}

func TestCompressStreams(t *testing.T) {
	doc := document.New()
	content := []byte(strings.Repeat("10 10 m 190 190 l S\n", 200))
	doc.AddBlankPage(200, 200).AppendContent(content)
	report, err := New(Config{CompressStreams: true}).Optimize(context.Background(), doc)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if report.StreamsCompressed != 1 {
		t.Fatalf("compressed %d streams", report.StreamsCompressed)
	}
	err = doc.EditObjects(func(objects *raw.Document) error {
		stream := objects.Objects[doc.Pages()[0].Contents()[0]].(*raw.StreamObj)
		if f, _ := stream.Dict.NameValue("Filter"); f != "FlateDecode" || len(stream.Data) >= len(content) {
			t.Fatalf("stream not compressed: filter %q, %d bytes", f, len(stream.Data))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	data, err := reload(t, doc, document.SaveOptions{}).Pages()[0].ContentBytes(context.Background())
	if err != nil || !bytes.Equal(bytes.TrimSpace(data), bytes.TrimSpace(content)) {
		t.Fatalf("content changed by compression: %v", err)
	}

	again, err := New(Config{CompressStreams: true}).Optimize(context.Background(), doc)
	if err != nil || again.StreamsCompressed != 0 {
		t.Fatalf("second pass compressed %d streams, %v", again.StreamsCompressed, err)
	}
}
