package builder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/wudi/pdfstudio/contentstream"
	"github.com/wudi/pdfstudio/ir/raw"
)

type fakeSink struct {
	objects   []raw.Object
	resources map[string]string
	builds    int
}

func newFakeSink() *fakeSink { return &fakeSink{resources: make(map[string]string)} }

func (s *fakeSink) AddObject(obj raw.Object) raw.RefObj {
	s.objects = append(s.objects, obj)
	return raw.Ref(len(s.objects), 0)
}

func (s *fakeSink) AddResource(category, key string, build func() (raw.Object, error)) (string, error) {
	if name, ok := s.resources[key]; ok {
		return name, nil
	}
	obj, err := build()
	if err != nil {
		return "", err
	}
	s.builds++
	s.AddObject(obj)
	name := category[:1] + string(rune('0'+len(s.resources)))
	s.resources[key] = name
	return name, nil
}

func operators(ops []contentstream.Operation) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Operator
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDrawTextOperators(t *testing.T) {
	sink := newFakeSink()
	c := NewCanvas(sink).DrawText("Hello", 10, 20, TextOptions{FontSize: 16, Color: Color{R: 0.1, G: 0.2, B: 0.3}})
	if err := c.Err(); err != nil {
		t.Fatalf("draw text: %v", err)
	}
	want := []string{"q", "cm", "BT", "Tf", "rg", "Tm", "Tj", "ET", "Q"}
	if got := operators(c.Operations()); !equalStrings(got, want) {
		t.Fatalf("operators = %v, want %v", got, want)
	}
	ops := c.Operations()
	if x, _ := raw.Float(ops[1].Operands[4]); x != 10 {
		t.Fatalf("cm translate x = %v", x)
	}
	if name := ops[3].Operands[0].(raw.NameObj); name.Val != "F0" {
		t.Fatalf("font resource = %s", name.Val)
	}
	if s := ops[6].Operands[0].(raw.StringObj); string(s.Bytes) != "Hello" {
		t.Fatalf("Tj operand = %q", s.Bytes)
	}
	if !bytes.Contains(c.Bytes(), []byte("(Hello) Tj")) {
		t.Fatalf("encoded stream missing text:\n%s", c.Bytes())
	}
}

func TestDrawTextReusesFontAndOpacity(t *testing.T) {
	sink := newFakeSink()
	c := NewCanvas(sink).
		DrawText("a", 0, 0, TextOptions{Opacity: 0.3}).
		DrawText("b", 0, 10, TextOptions{Opacity: 0.3})
	if err := c.Err(); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if sink.builds != 2 {
		t.Fatalf("expected one font and one graphics state, built %d", sink.builds)
	}
	gs := sink.objects[1].(*raw.DictObj)
	if ca, _ := raw.Float(gs.KV["ca"]); ca != 0.3 {
		t.Fatalf("fill alpha = %v", ca)
	}
}

func TestDrawTextMultilineAlign(t *testing.T) {
	sink := newFakeSink()
	c := NewCanvas(sink).DrawText("ab\nabcd", 100, 100, TextOptions{FontSize: 10, Align: AlignRight})
	var tms [][]raw.Object
	for _, op := range c.Operations() {
		if op.Operator == "Tm" {
			tms = append(tms, op.Operands)
		}
	}
	if len(tms) != 2 {
		t.Fatalf("expected two lines, got %d", len(tms))
	}
	w, err := MeasureText("abcd", "", 10)
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	dx, _ := raw.Float(tms[1][4])
	dy, _ := raw.Float(tms[1][5])
	if math.Abs(dx+w) > 1e-9 || math.Abs(dy+12) > 1e-9 {
		t.Fatalf("second line at (%v,%v), want (%v,-12)", dx, dy, -w)
	}
}

func TestDrawTextRotation(t *testing.T) {
	c := NewCanvas(newFakeSink()).DrawText("x", 5, 7, TextOptions{Rotation: 90})
	cm := c.Operations()[1]
	var m [6]float64
	for i, o := range cm.Operands {
		m[i], _ = raw.Float(o)
	}
	if m != [6]float64{0, 1, -1, 0, 5, 7} {
		t.Fatalf("rotation matrix = %v", m)
	}
}

func TestDrawTextUnknownFont(t *testing.T) {
	c := NewCanvas(newFakeSink()).DrawText("x", 0, 0, TextOptions{Font: "Comic"}).DrawRectangle(0, 0, 1, 1, RectOptions{})
	if c.Err() == nil {
		t.Fatalf("expected unknown font error")
	}
	if len(c.Operations()) != 0 {
		t.Fatalf("canvas should stop after the first error")
	}
}

func TestDrawRectanglePaint(t *testing.T) {
	cases := []struct {
		opts RectOptions
		op   string
	}{
		{RectOptions{}, "S"},
		{RectOptions{Fill: true}, "f"},
		{RectOptions{Fill: true, Stroke: true, LineWidth: 2}, "B"},
	}
	for _, tc := range cases {
		ops := NewCanvas(newFakeSink()).DrawRectangle(1, 2, 3, 4, tc.opts).Operations()
		if got := ops[len(ops)-2].Operator; got != tc.op {
			t.Fatalf("paint operator = %s, want %s", got, tc.op)
		}
	}
}

func TestDrawLineDash(t *testing.T) {
	ops := NewCanvas(newFakeSink()).DrawLine(0, 0, 10, 0, LineOptions{LineWidth: 2, DashPattern: []float64{3, 1}}).Operations()
	want := []string{"q", "RG", "w", "d", "m", "l", "S", "Q"}
	if got := operators(ops); !equalStrings(got, want) {
		t.Fatalf("operators = %v, want %v", got, want)
	}
}

func TestDrawEllipse(t *testing.T) {
	ops := NewCanvas(newFakeSink()).DrawEllipse(0, 0, 40, 20, PathOptions{Fill: true, FillColor: Red}).Operations()
	want := []string{"q", "rg", "m", "c", "c", "c", "c", "h", "f", "Q"}
	if got := operators(ops); !equalStrings(got, want) {
		t.Fatalf("operators = %v, want %v", got, want)
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#FF8000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.R != 1 || c.G != float64(0x80)/255 || c.B != 0 {
		t.Fatalf("color = %+v", c)
	}
	if short, _ := ParseHexColor("0f0"); short != (Color{G: 1}) {
		t.Fatalf("short form = %+v", short)
	}
	for _, bad := range []string{"", "#12", "#GG0000", "#1234567"} {
		if _, err := ParseHexColor(bad); !errors.Is(err, ErrInvalidColor) {
			t.Fatalf("%q: expected ErrInvalidColor, got %v", bad, err)
		}
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestImageFromBytesPNGAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	src.SetNRGBA(1, 1, color.NRGBA{B: 255, A: 128})
	img, err := ImageFromBytes(encodePNG(t, src), "jpeg", 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.DCT || img.Width != 2 || len(img.Data) != 12 {
		t.Fatalf("unexpected image %+v", img)
	}
	if img.Alpha == nil || img.Alpha[3] != 128 {
		t.Fatalf("soft mask missing: %v", img.Alpha)
	}

	sink := newFakeSink()
	xobj := img.Object(sink, false).(*raw.StreamObj)
	if _, ok := xobj.Dict.KV["SMask"].(raw.RefObj); !ok {
		t.Fatalf("SMask not referenced")
	}
	if len(sink.objects) != 1 {
		t.Fatalf("expected the mask as a separate object")
	}
}

func TestImageFromBytesJPEGPassthrough(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 4))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	img, err := ImageFromBytes(buf.Bytes(), "png", 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !img.DCT || !bytes.Equal(img.Data, buf.Bytes()) || img.Width != 8 || img.Height != 4 {
		t.Fatalf("jpeg should pass through, got %+v", img)
	}
	xobj := img.Object(newFakeSink(), true).(*raw.StreamObj)
	if f, _ := xobj.Dict.NameValue("Filter"); f != "DCTDecode" {
		t.Fatalf("filter = %s", f)
	}
}

func TestImageFromBytesDownscale(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	img, err := ImageFromBytes(encodePNG(t, src), "png", 1250)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Width != 50 || img.Height != 25 {
		t.Fatalf("downscaled to %dx%d", img.Width, img.Height)
	}
}

func TestImageFromBytesRejectsGarbage(t *testing.T) {
	if _, err := ImageFromBytes([]byte("not an image"), "png", 0); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

// pngHeader is a PNG signature and IHDR chunk declaring w x h RGB pixels,
// with no image data after it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 2
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestImageFromBytesRejectsHugeHeader(t *testing.T) {
	_, err := ImageFromBytes(pngHeader(60000, 60000), "png", 0)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	// a header within the limit reaches the decoder and fails there
	_, err = ImageFromBytes(pngHeader(10, 10), "png", 0)
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage for truncated data, got %v", err)
	}
}

func TestDrawImageReusesXObject(t *testing.T) {
	img := FromImage(image.NewGray(image.Rect(0, 0, 3, 3)))
	sink := newFakeSink()
	c := NewCanvas(sink).
		DrawImage(img, 10, 10, 30, 30, ImageOptions{}).
		DrawImage(img, 50, 10, 0, 0, ImageOptions{})
	if sink.builds != 1 {
		t.Fatalf("image built %d times", sink.builds)
	}
	var cms []float64
	for _, op := range c.Operations() {
		if op.Operator == "cm" {
			w, _ := raw.Float(op.Operands[0])
			cms = append(cms, w)
		}
	}
	if len(cms) != 2 || cms[0] != 30 || cms[1] != 3 {
		t.Fatalf("image widths = %v", cms)
	}
}
