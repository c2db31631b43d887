package fonts

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfstudio/ir/raw"
)

var ErrUnknownFont = errors.New("unknown font")

// ObjectAdder stores an object as a new indirect object and returns its
// reference. Streams must always go through it.
type ObjectAdder interface {
	AddObject(obj raw.Object) raw.RefObj
}

// Face is a font that can draw and measure text with identical metrics.
type Face interface {
	Name() string
	CanEncode(text string) bool
	// Encode returns the string operand for a show-text operator.
	Encode(text string) []byte
	Width(text string, size float64) float64
	Object(add ObjectAdder) (raw.Object, error)
	CacheKey() string
}

// Select returns the named standard font when it can encode text, and the
// embedded fallback face otherwise.
func Select(name, text string) (Face, error) {
	std, err := Standard(name)
	if err != nil {
		return nil, err
	}
	if std.CanEncode(strings.ReplaceAll(text, "\n", "")) {
		return std, nil
	}
	return Fallback()
}

// TrueTypeFace embeds a TrueType program as a Type0 font with Identity-H
// encoding. Codes are glyph ids.
type TrueTypeFace struct {
	name       string
	data       []byte
	font       *sfnt.Font
	unitsPerEm sfnt.Units
	widths     []int
	toUnicode  map[sfnt.GlyphIndex]rune
	ascent     float64
	descent    float64
	bbox       [4]float64
	italic     float64
	mu         sync.Mutex
	buf        sfnt.Buffer
}

var (
	fallbackOnce sync.Once
	fallbackFace *TrueTypeFace
	fallbackErr  error
)

// Fallback returns the embedded Go Regular face, parsed once.
func Fallback() (*TrueTypeFace, error) {
	fallbackOnce.Do(func() {
		fallbackFace, fallbackErr = LoadTrueType("GoRegular", goregular.TTF)
	})
	return fallbackFace, fallbackErr
}

// LoadTrueType parses a TrueType font and extracts the metrics needed to
// embed it.
func LoadTrueType(name string, data []byte) (*TrueTypeFace, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("truetype font data is empty")
	}
	font, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse truetype: %w", err)
	}
	unitsPerEm := font.UnitsPerEm()
	if unitsPerEm == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	f := &TrueTypeFace{data: data, font: font, unitsPerEm: unitsPerEm}
	ppem := fixed.Int26_6(unitsPerEm << 6)

	f.name = strings.TrimSpace(name)
	if ps, _ := font.Name(&f.buf, sfnt.NameIDPostScript); len(ps) > 0 {
		f.name = ps
	}
	if f.name == "" {
		f.name = "CustomTT"
	}

	f.widths = glyphWidths(font, &f.buf, unitsPerEm, ppem)
	metrics, _ := font.Metrics(&f.buf, ppem, xfont.HintingNone)
	bounds, _ := font.Bounds(&f.buf, ppem, xfont.HintingNone)
	f.ascent = scaleFixed(metrics.Ascent, unitsPerEm)
	f.descent = -scaleFixed(metrics.Descent, unitsPerEm)
	f.bbox = [4]float64{
		scaleFixed(bounds.Min.X, unitsPerEm),
		-scaleFixed(bounds.Max.Y, unitsPerEm),
		scaleFixed(bounds.Max.X, unitsPerEm),
		-scaleFixed(bounds.Min.Y, unitsPerEm),
	}
	if post := font.PostTable(); post != nil {
		f.italic = post.ItalicAngle
	}
	f.toUnicode = make(map[sfnt.GlyphIndex]rune)
	for r := rune(0x20); r < 0x3000; r++ {
		gid, err := font.GlyphIndex(&f.buf, r)
		if err != nil || gid == 0 {
			continue
		}
		if _, seen := f.toUnicode[gid]; !seen {
			f.toUnicode[gid] = r
		}
	}
	return f, nil
}

func (f *TrueTypeFace) Name() string     { return f.name }
func (f *TrueTypeFace) CacheKey() string { return "font:tt:" + f.name }

// CanEncode reports whether every rune maps to a glyph.
func (f *TrueTypeFace) CanEncode(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range text {
		gid, err := f.font.GlyphIndex(&f.buf, r)
		if err != nil || gid == 0 {
			return false
		}
	}
	return true
}

// Glyphs maps text to glyph ids. Shaping is used when the text needs it;
// otherwise glyphs come straight from the cmap.
func (f *TrueTypeFace) Glyphs(text string) []sfnt.GlyphIndex {
	runes := []rune(text)
	if needsShaping(runes) {
		if shaped, err := ShapeText(text, f.data); err == nil && len(shaped) > 0 {
			out := make([]sfnt.GlyphIndex, len(shaped))
			for i, g := range shaped {
				out[i] = sfnt.GlyphIndex(g.ID)
			}
			return out
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sfnt.GlyphIndex, 0, len(runes))
	for _, r := range runes {
		gid, err := f.font.GlyphIndex(&f.buf, r)
		if err != nil {
			gid = 0
		}
		out = append(out, gid)
	}
	return out
}

func (f *TrueTypeFace) Encode(text string) []byte {
	glyphs := f.Glyphs(text)
	out := make([]byte, 0, 2*len(glyphs))
	for _, g := range glyphs {
		out = append(out, byte(g>>8), byte(g))
	}
	return out
}

// Width sums the advances written to /W, so it matches what a viewer draws.
func (f *TrueTypeFace) Width(text string, size float64) float64 {
	total := 0
	for _, g := range f.Glyphs(text) {
		if int(g) < len(f.widths) {
			total += f.widths[g]
		}
	}
	return float64(total) * size / 1000
}

// Object builds the Type0 font with its CIDFontType2 descendant, descriptor,
// embedded program and ToUnicode map.
func (f *TrueTypeFace) Object(add ObjectAdder) (raw.Object, error) {
	fontFile := raw.Dict()
	fontFile.Put("Length1", raw.NumberInt(int64(len(f.data))))
	fileRef := add.AddObject(raw.NewStream(fontFile, append([]byte(nil), f.data...)))

	descriptor := raw.Dict()
	descriptor.Put("Type", raw.NameLiteral("FontDescriptor"))
	descriptor.Put("FontName", raw.NameLiteral(f.name))
	descriptor.Put("Flags", raw.NumberInt(32))
	descriptor.Put("ItalicAngle", raw.NumberFloat(f.italic))
	descriptor.Put("Ascent", raw.NumberFloat(math.Round(f.ascent)))
	descriptor.Put("Descent", raw.NumberFloat(math.Round(f.descent)))
	descriptor.Put("CapHeight", raw.NumberFloat(math.Round(f.ascent)))
	descriptor.Put("StemV", raw.NumberInt(80))
	descriptor.Put("FontBBox", raw.NewArray(
		raw.NumberFloat(math.Round(f.bbox[0])), raw.NumberFloat(math.Round(f.bbox[1])),
		raw.NumberFloat(math.Round(f.bbox[2])), raw.NumberFloat(math.Round(f.bbox[3])),
	))
	descriptor.Put("FontFile2", fileRef)
	descRef := add.AddObject(descriptor)

	w := raw.NewArray()
	for _, width := range f.widths {
		w.Append(raw.NumberInt(int64(width)))
	}
	cid := raw.Dict()
	cid.Put("Type", raw.NameLiteral("Font"))
	cid.Put("Subtype", raw.NameLiteral("CIDFontType2"))
	cid.Put("BaseFont", raw.NameLiteral(f.name))
	sysInfo := raw.Dict()
	sysInfo.Put("Registry", raw.Str([]byte("Adobe")))
	sysInfo.Put("Ordering", raw.Str([]byte("Identity")))
	sysInfo.Put("Supplement", raw.NumberInt(0))
	cid.Put("CIDSystemInfo", sysInfo)
	cid.Put("FontDescriptor", descRef)
	cid.Put("CIDToGIDMap", raw.NameLiteral("Identity"))
	if len(f.widths) > 0 {
		cid.Put("DW", raw.NumberInt(int64(f.widths[0])))
	}
	cid.Put("W", raw.NewArray(raw.NumberInt(0), w))
	cidRef := add.AddObject(cid)

	toUnicode := add.AddObject(raw.NewStream(raw.Dict(), f.toUnicodeCMap()))

	font := raw.Dict()
	font.Put("Type", raw.NameLiteral("Font"))
	font.Put("Subtype", raw.NameLiteral("Type0"))
	font.Put("BaseFont", raw.NameLiteral(f.name))
	font.Put("Encoding", raw.NameLiteral("Identity-H"))
	font.Put("DescendantFonts", raw.NewArray(cidRef))
	font.Put("ToUnicode", toUnicode)
	return font, nil
}

func (f *TrueTypeFace) toUnicodeCMap() []byte {
	gids := make([]int, 0, len(f.toUnicode))
	for g := range f.toUnicode {
		gids = append(gids, int(g))
	}
	sort.Ints(gids)

	var b bytes.Buffer
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for start := 0; start < len(gids); start += 100 {
		end := start + 100
		if end > len(gids) {
			end = len(gids)
		}
		fmt.Fprintf(&b, "%d beginbfchar\n", end-start)
		for _, g := range gids[start:end] {
			fmt.Fprintf(&b, "<%04X> <%s>\n", g, utf16Hex(f.toUnicode[sfnt.GlyphIndex(g)]))
		}
		b.WriteString("endbfchar\n")
	}
	b.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return b.Bytes()
}

func utf16Hex(r rune) string {
	if r < 0x10000 {
		return fmt.Sprintf("%04X", r)
	}
	r -= 0x10000
	return fmt.Sprintf("%04X%04X", 0xD800+(r>>10), 0xDC00+(r&0x3FF))
}

func glyphWidths(font *sfnt.Font, buf *sfnt.Buffer, unitsPerEm sfnt.Units, ppem fixed.Int26_6) []int {
	glyphs := font.NumGlyphs()
	widths := make([]int, glyphs)
	for i := 0; i < glyphs; i++ {
		adv, err := font.GlyphAdvance(buf, sfnt.GlyphIndex(i), ppem, xfont.HintingNone)
		if err != nil {
			continue
		}
		widths[i] = int(math.Round(scaleFixed(adv, unitsPerEm)))
	}
	return widths
}

func scaleFixed(val fixed.Int26_6, unitsPerEm sfnt.Units) float64 {
	return float64(val) * 1000.0 / (64.0 * float64(unitsPerEm))
}
