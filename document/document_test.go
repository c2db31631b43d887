package document

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wudi/pdfstudio/internal/pdftest"
	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/security"
)

// nestedTree has two intermediate nodes; the second page inherits its
// MediaBox, Rotate and Resources from its parent.
func nestedTree() []byte {
	return pdftest.Build(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 3 /MediaBox [0 0 612 792] >>",
		"<< /Type /Pages /Parent 2 0 R /Kids [5 0 R] /Count 1 /Rotate 90 /Resources << /Font << /F1 7 0 R >> >> >>",
		"<< /Type /Pages /Parent 2 0 R /Kids [6 0 R 8 0 R] /Count 2 /MediaBox [0 0 595 842] >>",
		"<< /Type /Page /Parent 3 0 R /Contents 9 0 R >>",
		"<< /Type /Page /Parent 4 0 R /CropBox [10 10 310 410] >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		"<< /Type /Page /Parent 4 0 R /Rotate -90 >>",
		pdftest.Stream("", "0 0 m 10 10 l S"),
	)
}

func mustLoad(t *testing.T, data []byte, opts ...LoadOption) *Document {
	t.Helper()
	doc, err := Load(context.Background(), data, opts...)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return doc
}

func mustSave(t *testing.T, doc *Document, opts SaveOptions) []byte {
	t.Helper()
	out, err := doc.Save(context.Background(), opts)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	return out
}

func TestLoadFlattensInheritedAttributes(t *testing.T) {
	doc := mustLoad(t, nestedTree())
	if doc.PageCount() != 3 {
		t.Fatalf("pages = %d, want 3", doc.PageCount())
	}
	want := []struct {
		w, h float64
		rot  int
	}{{612, 792, 90}, {300, 400, 0}, {595, 842, 270}}
	for i, p := range doc.Pages() {
		w, h := p.Size()
		if w != want[i].w || h != want[i].h || p.Rotation() != want[i].rot {
			t.Fatalf("page %d = %vx%v rot %d, want %+v", i, w, h, p.Rotation(), want[i])
		}
	}
	if b := doc.Pages()[1].Box(); b.X != 10 || b.Y != 10 {
		t.Fatalf("crop box origin = %+v", b)
	}
	p0 := doc.Pages()[0]
	if _, ok := p0.dict.KV["Resources"]; !ok {
		t.Fatalf("inherited resources not copied onto the page")
	}
	if parent := p0.dict.KV["Parent"].(raw.RefObj); parent.R != doc.pagesRef {
		t.Fatalf("page parent = %v, want root %v", parent.R, doc.pagesRef)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, err := Load(context.Background(), []byte("definitely not a pdf"))
	var cerr *CorruptDocumentError
	if !errors.As(err, &cerr) || cerr.Lenient {
		t.Fatalf("expected strict CorruptDocumentError, got %v", err)
	}
}

func TestLoadStrictFailsOnMissingXRefLenientRecovers(t *testing.T) {
	data := pdftest.WithoutXRef(nestedTree())
	if _, err := Load(context.Background(), data); err == nil {
		t.Fatalf("strict load should fail without a cross-reference table")
	}
	doc := mustLoad(t, data, WithLenient())
	if doc.PageCount() != 3 {
		t.Fatalf("lenient load found %d pages", doc.PageCount())
	}
}

func TestLenientRebuildsBrokenPageTree(t *testing.T) {
	data := pdftest.Build(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids 9 0 R /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 100 200] >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 300 400] >>",
	)
	var cerr *CorruptDocumentError
	if _, err := Load(context.Background(), data); !errors.As(err, &cerr) {
		t.Fatalf("strict load should reject a broken tree, got %v", err)
	}
	doc := mustLoad(t, data, WithLenient())
	if doc.PageCount() != 2 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	if w, _ := doc.Pages()[1].Size(); w != 300 {
		t.Fatalf("pages out of object order")
	}
	if len(doc.Warnings()) == 0 {
		t.Fatalf("rebuild should be reported as a warning")
	}
}

func TestPageTreeCycleIsCorrupt(t *testing.T) {
	data := pdftest.Build(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Pages /Parent 2 0 R /Kids [2 0 R] /Count 1 >>",
	)
	_, err := Load(context.Background(), data)
	if !errors.Is(err, ErrPageTreeCycle) {
		t.Fatalf("expected ErrPageTreeCycle, got %v", err)
	}
}

func TestSaveIsDeterministicAndReloads(t *testing.T) {
	doc := mustLoad(t, nestedTree())
	for _, opts := range []SaveOptions{{}, {Compact: true}, {CompressStreams: true}} {
		a := mustSave(t, doc, opts)
		b := mustSave(t, doc, opts)
		if !bytes.Equal(a, b) {
			t.Fatalf("%+v: saves differ", opts)
		}
		back := mustLoad(t, a)
		if back.PageCount() != 3 || back.Pages()[0].Rotation() != 90 {
			t.Fatalf("%+v: reloaded document differs", opts)
		}
	}
	if doc.PageCount() != 3 || len(doc.Pages()[0].Contents()) != 1 {
		t.Fatalf("save mutated the document")
	}
}

func TestNewDocumentBlankPages(t *testing.T) {
	doc := New()
	doc.AddBlankPage(200, 100)
	doc.AddBlankPage(612, 792)
	back := mustLoad(t, mustSave(t, doc, SaveOptions{}))
	if back.PageCount() != 2 {
		t.Fatalf("pages = %d", back.PageCount())
	}
	if w, h := back.Pages()[0].Size(); w != 200 || h != 100 {
		t.Fatalf("first page %vx%v", w, h)
	}
}

func TestImportPagesDuplicatesShareResources(t *testing.T) {
	src := mustLoad(t, nestedTree())
	dst := New()
	added, err := dst.ImportPages(src, []int{0, 0, 2})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(added) != 3 || dst.PageCount() != 3 {
		t.Fatalf("imported %d pages", dst.PageCount())
	}
	if added[0].ref == added[1].ref {
		t.Fatalf("duplicates must be distinct page objects")
	}
	font := func(p *Page) raw.Object {
		res := p.dict.KV["Resources"].(*raw.DictObj)
		return res.KV["Font"].(*raw.DictObj).KV["F1"]
	}
	if font(added[0]) != font(added[1]) {
		t.Fatalf("duplicates should share the font object")
	}
	if err := added[1].SetRotation(180); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if added[0].Rotation() != 90 || src.Pages()[0].Rotation() != 90 {
		t.Fatalf("rotation leaked between copies")
	}
	if _, err := dst.ImportPages(src, []int{3}); !errors.Is(err, ErrPageOutOfRange) {
		t.Fatalf("expected ErrPageOutOfRange, got %v", err)
	}
}

func TestSetPagesAndRemovePage(t *testing.T) {
	doc := mustLoad(t, nestedTree())
	pages := doc.Pages()
	if err := doc.SetPages([]*Page{pages[2], pages[0]}); err != nil {
		t.Fatalf("set pages: %v", err)
	}
	if doc.PageCount() != 2 || doc.Pages()[0] != pages[2] {
		t.Fatalf("unexpected order")
	}
	if err := doc.SetPages([]*Page{pages[0], pages[0]}); !errors.Is(err, ErrDuplicatePage) {
		t.Fatalf("expected ErrDuplicatePage, got %v", err)
	}
	other := New()
	foreign := other.AddBlankPage(10, 10)
	if err := doc.SetPages([]*Page{foreign}); !errors.Is(err, ErrForeignPage) {
		t.Fatalf("expected ErrForeignPage, got %v", err)
	}
	if err := doc.RemovePage(0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := doc.RemovePage(5); !errors.Is(err, ErrPageOutOfRange) {
		t.Fatalf("expected ErrPageOutOfRange, got %v", err)
	}
	back := mustLoad(t, mustSave(t, doc, SaveOptions{}))
	if back.PageCount() != 1 || back.Pages()[0].Rotation() != 90 {
		t.Fatalf("reloaded pages = %d", back.PageCount())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	doc := mustLoad(t, nestedTree())
	c := doc.Clone()
	if err := c.RemovePage(0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := c.Pages()[0].SetRotation(90); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if doc.PageCount() != 3 || doc.Pages()[1].Rotation() != 0 {
		t.Fatalf("clone shares state with the original")
	}
}

func TestRotationValidation(t *testing.T) {
	p := New().AddBlankPage(100, 100)
	if err := p.SetRotation(45); !errors.Is(err, ErrInvalidRotation) {
		t.Fatalf("expected ErrInvalidRotation, got %v", err)
	}
	if err := p.SetRotation(-90); err != nil || p.Rotation() != 270 {
		t.Fatalf("rotation = %d (%v)", p.Rotation(), err)
	}
	if err := p.SetRotation(720); err != nil || p.Rotation() != 0 {
		t.Fatalf("rotation = %d (%v)", p.Rotation(), err)
	}
}

func TestAppendContentWrapsOnce(t *testing.T) {
	doc := mustLoad(t, nestedTree())
	p := doc.Pages()[0]
	p.AppendContent([]byte("1 0 0 RG"))
	p.AppendContent([]byte("0 1 0 RG"))
	refs := p.Contents()
	if len(refs) != 5 {
		t.Fatalf("content streams = %d, want 5", len(refs))
	}
	first := doc.raw.Objects[refs[0]].(*raw.StreamObj)
	third := doc.raw.Objects[refs[2]].(*raw.StreamObj)
	if string(first.Data) != "q\n" || !strings.Contains(string(third.Data), "Q") {
		t.Fatalf("original content not isolated")
	}
	blank := doc.AddBlankPage(10, 10)
	blank.AppendContent([]byte("0 g"))
	if len(blank.Contents()) != 1 {
		t.Fatalf("empty page should not be wrapped")
	}
	if _, ok := blank.dict.KV["Contents"].(raw.RefObj); !ok {
		t.Fatalf("single stream should be a direct reference, got %T", blank.dict.KV["Contents"])
	}
	blank.AppendContent([]byte("1 g"))
	if arr, ok := blank.dict.KV["Contents"].(*raw.ArrayObj); !ok || len(arr.Items) != 2 {
		t.Fatalf("second stream should switch to an array, got %v", blank.dict.KV["Contents"])
	}
}

func TestAddResourceReusesNamesAndObjects(t *testing.T) {
	doc := mustLoad(t, nestedTree())
	calls := 0
	build := func() (raw.Object, error) {
		calls++
		return raw.Dict(), nil
	}
	p0, p1 := doc.Pages()[0], doc.Pages()[1]
	n1, _ := p0.AddResource("Font", "font:test", build)
	n2, _ := p0.AddResource("Font", "font:test", build)
	n3, _ := p1.AddResource("Font", "font:test", build)
	if calls != 1 {
		t.Fatalf("build ran %d times", calls)
	}
	if n1 != "F2" || n2 != n1 || n3 != "F1" {
		t.Fatalf("names = %s %s %s", n1, n2, n3)
	}
	if _, err := p0.AddResource("XObject", "img:x", func() (raw.Object, error) { return nil, errors.New("boom") }); err == nil {
		t.Fatalf("build error should propagate")
	}
}

func TestProtectRequiresPassword(t *testing.T) {
	doc := mustLoad(t, nestedTree())
	if err := doc.Protect("", ProtectOptions{}); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
	if err := doc.Protect("s3cret", ProtectOptions{}); err != nil {
		t.Fatalf("protect: %v", err)
	}
	out := mustSave(t, doc, SaveOptions{})
	if !bytes.Contains(out, []byte("/Encrypt")) {
		t.Fatalf("protected output has no /Encrypt")
	}
	_, err := Load(context.Background(), out)
	var cerr *CorruptDocumentError
	if !errors.As(err, &cerr) || !errors.Is(err, security.ErrInvalidPassword) {
		t.Fatalf("expected password failure, got %v", err)
	}
	back := mustLoad(t, out, WithPassword("s3cret"))
	if back.PageCount() != 3 || !back.Protected() {
		t.Fatalf("reloaded protected document lost pages or protection")
	}
	again := mustSave(t, back, SaveOptions{})
	if _, err := Load(context.Background(), again); !errors.Is(err, security.ErrInvalidPassword) {
		t.Fatalf("resaved document should stay protected, got %v", err)
	}
}

func TestInfoRoundTrip(t *testing.T) {
	doc := New()
	doc.AddBlankPage(100, 100)
	when := time.Date(2024, 3, 9, 14, 5, 6, 0, time.FixedZone("", 2*3600))
	doc.SetInfo(Info{Title: "Résumé", Author: "Ada", CreationDate: when})
	back := mustLoad(t, mustSave(t, doc, SaveOptions{}))
	info := back.Info()
	if info.Title != "Résumé" || info.Author != "Ada" {
		t.Fatalf("info = %+v", info)
	}
	if !info.CreationDate.Equal(when) {
		t.Fatalf("creation date = %v, want %v", info.CreationDate, when)
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"D:2023":                  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		"D:20230405":              time.Date(2023, 4, 5, 0, 0, 0, 0, time.UTC),
		"D:20230405101112Z":       time.Date(2023, 4, 5, 10, 11, 12, 0, time.UTC),
		"D:20230405101112-05'30'": time.Date(2023, 4, 5, 15, 41, 12, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseDate(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%s = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseDate("D:20x"); err == nil {
		t.Fatalf("expected error for malformed date")
	}
	if s := FormatDate(time.Date(2023, 4, 5, 10, 11, 12, 0, time.UTC)); s != "D:20230405101112Z" {
		t.Fatalf("format = %s", s)
	}
}

func TestRepairFallsBackToLenient(t *testing.T) {
	data := pdftest.WithoutXRef(nestedTree())
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	doc, report, err := Repair(context.Background(), data, RepairOptions{Producer: "pdfstudio", Now: func() time.Time { return fixed }})
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Method != RepairLenient || len(report.Attempts) != 1 {
		t.Fatalf("report = %+v", report)
	}
	info := doc.Info()
	if info.Producer != "pdfstudio" || !info.ModDate.Equal(fixed) {
		t.Fatalf("metadata not normalised: %+v", info)
	}
}

func TestRepairGivesUpOnGarbage(t *testing.T) {
	_, report, err := Repair(context.Background(), []byte("garbage"), RepairOptions{})
	var cerr *CorruptDocumentError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CorruptDocumentError, got %v", err)
	}
	if len(report.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(report.Attempts))
	}
}
