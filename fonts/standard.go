package fonts

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfstudio/ir/raw"
)

// Standard font names accepted by Standard.
const (
	Helvetica     = "Helvetica"
	HelveticaBold = "Helvetica-Bold"
	TimesRoman    = "Times-Roman"
	TimesBold     = "Times-Bold"
	Courier       = "Courier"
	CourierBold   = "Courier-Bold"
)

// Advance widths for codes 32..126, in 1/1000 em.
var asciiWidths = map[string][95]int{
	Helvetica: {
		278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
		556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
		1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
		667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
		333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
		556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
	},
	HelveticaBold: {
		278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
		556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
		975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
		667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
		333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
		611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
	},
	TimesRoman: {
		250, 333, 408, 500, 500, 833, 778, 180, 333, 333, 500, 564, 250, 333, 250, 278,
		500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 278, 278, 564, 564, 564, 444,
		921, 722, 667, 667, 722, 611, 556, 722, 722, 333, 389, 722, 611, 889, 722, 722,
		556, 722, 667, 556, 611, 722, 722, 944, 722, 722, 611, 333, 278, 333, 469, 500,
		333, 444, 500, 444, 500, 444, 333, 500, 500, 278, 278, 500, 278, 778, 500, 500,
		500, 500, 333, 389, 278, 500, 500, 722, 500, 500, 444, 480, 200, 480, 541,
	},
	TimesBold: {
		250, 333, 555, 500, 500, 1000, 833, 278, 333, 333, 500, 570, 250, 333, 250, 278,
		500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 333, 333, 570, 570, 570, 500,
		930, 722, 667, 722, 722, 667, 611, 778, 778, 389, 500, 778, 667, 944, 722, 778,
		611, 778, 722, 556, 667, 722, 722, 1000, 722, 722, 667, 333, 278, 333, 581, 500,
		333, 500, 556, 444, 556, 444, 333, 500, 556, 278, 333, 556, 278, 833, 556, 500,
		556, 556, 444, 389, 333, 556, 500, 722, 500, 500, 444, 394, 220, 394, 520,
	},
}

// punctuation outside ASCII, measured like a close ASCII relative or by em fraction
var extendedWidths = map[rune]int{
	'–': -1, // en dash: digit width
	'—': 1000,
	'…': 1000,
	'‰': 1000,
	'™': 1000,
	'€': -1,
	'©': 737,
	'®': 737,
	'•': 350,
	'°': 400,
	'¼': 834,
	'½': 834,
	'¾': 834,
	'Æ': 1000,
	'Œ': 1000,
}

var asciiLookalike = map[rune]rune{
	'‘': ',', '’': ',', '‚': ',',
	'“': '"', '”': '"', '„': '"',
	'‹': '-', '›': '-', '«': '?', '»': '?',
	'\u00a0': ' ', '\u00ad': '-', '·': '.', '×': '+', '÷': '+',
	'±': '+', '¬': '+', '¦': '|', '¢': '$', '£': '$',
	'¥': '$', '§': '$', '¶': '$', '¤': '$', 'µ': 'u',
	'ß': 'h', 'æ': 'm', 'œ': 'm', 'ø': 'o', 'Ø': 'O',
	'ð': 'o', 'Ð': 'D', 'þ': 'p', 'Þ': 'P', 'ƒ': '$',
	'¡': '!', '¿': '?', 'ª': 'o', 'º': 'o', '¹': '1',
	'²': '1', '³': '1', '†': '$', '‡': '$', 'ˆ': '^',
	'˜': '~', '¨': '`', '¯': '`', '´': '`', '¸': '`',
	'Š': 'S', 'š': 's', 'Ž': 'Z', 'ž': 'z', 'Ÿ': 'Y',
}

// StandardFont is one of the non-embedded base fonts, encoded with
// WinAnsiEncoding.
type StandardFont struct {
	name   string
	widths [95]int
	mono   bool
}

// Standard looks up a base font by name. The zero name selects Helvetica.
func Standard(name string) (*StandardFont, error) {
	if name == "" {
		name = Helvetica
	}
	switch name {
	case Courier, CourierBold:
		return &StandardFont{name: name, mono: true}, nil
	}
	w, ok := asciiWidths[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFont, name)
	}
	return &StandardFont{name: name, widths: w}, nil
}

func (f *StandardFont) Name() string { return f.name }

// CanEncode reports whether every rune of text exists in WinAnsiEncoding.
func (f *StandardFont) CanEncode(text string) bool {
	for _, r := range text {
		if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
			return false
		}
	}
	return true
}

// Encode maps text to WinAnsi codes. Runes outside the encoding become '?'.
func (f *StandardFont) Encode(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// Width measures text at the given size in user space units.
func (f *StandardFont) Width(text string, size float64) float64 {
	total := 0
	for _, r := range text {
		total += f.runeWidth(r)
	}
	return float64(total) * size / 1000
}

func (f *StandardFont) runeWidth(r rune) int {
	if f.mono {
		return 600
	}
	if r >= 32 && r <= 126 {
		return f.widths[r-32]
	}
	if w, ok := extendedWidths[r]; ok {
		if w < 0 {
			return f.widths['0'-32]
		}
		return w
	}
	if alike, ok := asciiLookalike[r]; ok {
		return f.widths[alike-32]
	}
	// accented Latin letters take the width of their base letter
	if base := []rune(norm.NFD.String(string(r))); len(base) > 0 && base[0] >= 32 && base[0] <= 126 {
		return f.widths[base[0]-32]
	}
	if unicode.IsSpace(r) {
		return f.widths[0]
	}
	return f.widths['n'-32]
}

// Object returns the font dictionary.
func (f *StandardFont) Object(ObjectAdder) (raw.Object, error) {
	d := raw.Dict()
	d.Put("Type", raw.NameLiteral("Font"))
	d.Put("Subtype", raw.NameLiteral("Type1"))
	d.Put("BaseFont", raw.NameLiteral(f.name))
	d.Put("Encoding", raw.NameLiteral("WinAnsiEncoding"))
	return d, nil
}

// CacheKey identifies the font dictionary for reuse within a document.
func (f *StandardFont) CacheKey() string { return "font:" + strings.ToLower(f.name) }
