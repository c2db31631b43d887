package document

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/wudi/pdfstudio/ir/raw"
)

// Info is the document information dictionary.
type Info struct {
	Title        string
	Author       string
	Subject      string
	Keywords     string
	Creator      string
	Producer     string
	CreationDate time.Time
	ModDate      time.Time
}

var infoText = []struct {
	key string
	get func(*Info) *string
}{
	{"Title", func(i *Info) *string { return &i.Title }},
	{"Author", func(i *Info) *string { return &i.Author }},
	{"Subject", func(i *Info) *string { return &i.Subject }},
	{"Keywords", func(i *Info) *string { return &i.Keywords }},
	{"Creator", func(i *Info) *string { return &i.Creator }},
	{"Producer", func(i *Info) *string { return &i.Producer }},
}

// Info reads the trailer's information dictionary. Missing entries are zero.
func (d *Document) Info() Info {
	var info Info
	dict, ok := d.raw.Resolve(d.raw.Trailer.KV["Info"]).(*raw.DictObj)
	if !ok {
		return info
	}
	for _, f := range infoText {
		if s, ok := d.textString(dict.KV[f.key]); ok {
			*f.get(&info) = s
		}
	}
	if s, ok := d.textString(dict.KV["CreationDate"]); ok {
		info.CreationDate, _ = ParseDate(s)
	}
	if s, ok := d.textString(dict.KV["ModDate"]); ok {
		info.ModDate, _ = ParseDate(s)
	}
	return info
}

// SetInfo replaces the information dictionary. Empty strings and zero times
// are omitted.
func (d *Document) SetInfo(info Info) {
	dict := raw.Dict()
	for _, f := range infoText {
		if s := *f.get(&info); s != "" {
			dict.Put(f.key, EncodeTextString(s))
		}
	}
	if !info.CreationDate.IsZero() {
		dict.Put("CreationDate", raw.Str([]byte(FormatDate(info.CreationDate))))
	}
	if !info.ModDate.IsZero() {
		dict.Put("ModDate", raw.Str([]byte(FormatDate(info.ModDate))))
	}
	if ref, ok := d.raw.Trailer.KV["Info"].(raw.RefObj); ok {
		if _, live := d.raw.Objects[ref.R]; live {
			d.raw.Objects[ref.R] = dict
			return
		}
	}
	d.raw.Trailer.Put("Info", d.AddObject(dict))
}

func (d *Document) textString(o raw.Object) (string, bool) {
	switch v := d.raw.Resolve(o).(type) {
	case raw.StringObj:
		return DecodeTextString(v.Bytes), true
	case raw.HexStringObj:
		return DecodeTextString(v.Bytes), true
	}
	return "", false
}

var utf16BOM = []byte{0xFE, 0xFF}

// EncodeTextString encodes s as a PDF text string: plain bytes for ASCII,
// UTF-16BE with a byte order mark otherwise.
func EncodeTextString(s string) raw.Object {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return raw.Str([]byte(s))
	}
	b, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return raw.Str([]byte(s))
	}
	return raw.HexStr(b)
}

// DecodeTextString reverses EncodeTextString. Strings without a byte order
// mark are read as Latin-1, which matches PDFDocEncoding for printable text.
func DecodeTextString(b []byte) string {
	if bytes.HasPrefix(b, utf16BOM) {
		if s, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b); err == nil {
			return string(s)
		}
	}
	if s, err := charmap.ISO8859_1.NewDecoder().Bytes(b); err == nil {
		return string(s)
	}
	return string(b)
}

// FormatDate renders t in PDF date syntax, D:YYYYMMDDHHmmSS followed by the
// UTC offset.
func FormatDate(t time.Time) string {
	_, offset := t.Zone()
	if offset == 0 {
		return t.Format("D:20060102150405") + "Z"
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s%c%02d'%02d'", t.Format("D:20060102150405"), sign, offset/3600, offset%3600/60)
}

// ParseDate accepts PDF dates with any trailing fields omitted.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	digits := 0
	for digits < len(s) && digits < 14 && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits < 4 || digits%2 != 0 {
		return time.Time{}, fmt.Errorf("invalid pdf date %q", s)
	}
	// pad month and day with 01, the rest with 00
	full := s[:digits] + "0101000000"[digits-4:]
	t, err := time.Parse("20060102150405", full)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid pdf date %q: %w", s, err)
	}
	rest := s[digits:]
	if rest == "" || rest[0] == 'Z' {
		return t, nil
	}
	if rest[0] != '+' && rest[0] != '-' {
		return time.Time{}, fmt.Errorf("invalid pdf date offset %q", rest)
	}
	parts := strings.FieldsFunc(rest[1:], func(r rune) bool { return r == '\'' })
	hours, minutes := 0, 0
	if len(parts) > 0 {
		if hours, err = strconv.Atoi(parts[0]); err != nil {
			return time.Time{}, fmt.Errorf("invalid pdf date offset %q", rest)
		}
	}
	if len(parts) > 1 {
		if minutes, err = strconv.Atoi(parts[1]); err != nil {
			return time.Time{}, fmt.Errorf("invalid pdf date offset %q", rest)
		}
	}
	offset := hours*3600 + minutes*60
	if rest[0] == '-' {
		offset = -offset
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.FixedZone("", offset)), nil
}
