package contentstream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/wudi/pdfstudio/ir/raw"
)

func TestParseOperators(t *testing.T) {
	src := []byte("q 1 0 0 1 50 60 cm /Im1 Do Q\nBT /F1 12 Tf 10 20 Td (Hi \\(there\\)) Tj [(A) -120 (B)] TJ ET\n/GS1 gs /P <</MCID 3>> BDC EMC")
	ops, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	want := []string{"q", "cm", "Do", "Q", "BT", "Tf", "Td", "Tj", "TJ", "ET", "gs", "BDC", "EMC"}
	if len(names) != len(want) {
		t.Fatalf("operators = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("operator %d = %s, want %s", i, names[i], want[i])
		}
	}
	if s := ops[7].Operands[0].(raw.StringObj); string(s.Bytes) != "Hi (there)" {
		t.Fatalf("Tj operand = %q", s.Bytes)
	}
	if arr := ops[8].Operands[0].(*raw.ArrayObj); arr.Len() != 3 {
		t.Fatalf("TJ array has %d items", arr.Len())
	}
	if d := ops[11].Operands[1].(*raw.DictObj); d.Len() != 1 {
		t.Fatalf("BDC properties lost")
	}
}

func TestParseInlineImage(t *testing.T) {
	src := []byte("q 10 0 0 10 0 0 cm BI /W 2 /H 1 /CS /G /BPC 8 ID \x00\xff EI Q")
	ops, err := Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(ops) != 4 || ops[2].Operator != "EI" {
		t.Fatalf("unexpected ops %+v", ops)
	}
	img := ops[2].Operands[0].(*raw.StreamObj)
	if !bytes.Equal(img.Data, []byte{0x00, 0xff}) {
		t.Fatalf("inline data = % X", img.Data)
	}
	if w, _ := img.Dict.IntValue("W"); w != 2 {
		t.Fatalf("inline dict lost /W")
	}
}

func TestParseDanglingOperands(t *testing.T) {
	if _, err := Parse([]byte("1 0 0 RG 5")); !errors.Is(err, ErrDanglingOperands) {
		t.Fatalf("expected ErrDanglingOperands, got %v", err)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	ops := []Operation{
		Op("q"),
		Op("rg", Nums(1, 0.5, 0)...),
		Op("re", Nums(10, 20, 30.25, 40)...),
		Op("f"),
		Op("Q"),
		Op("Tj", raw.Str([]byte("a(b)"))),
	}
	data := Encode(ops)
	if !bytes.Contains(data, []byte("10 20 30.25 40 re\n")) {
		t.Fatalf("unexpected encoding:\n%s", data)
	}
	back, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(back) != len(ops) {
		t.Fatalf("got %d ops back, want %d", len(back), len(ops))
	}
	if s := back[5].Operands[0].(raw.StringObj); string(s.Bytes) != "a(b)" {
		t.Fatalf("string operand = %q", s.Bytes)
	}
}

func TestTraceAppliesCTM(t *testing.T) {
	ops, err := Parse([]byte("q 200 0 0 100 50 60 cm /Im0 Do Q q 2 0 0 2 0 0 cm 5 5 10 10 re f Q BT 1 0 0 1 72 700 Tm (x) Tj ET"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	marks, err := Trace(ops)
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if len(marks) != 3 {
		t.Fatalf("expected 3 marks, got %+v", marks)
	}
	if b := marks[0].Box; marks[0].Name != "Im0" || b.X != 50 || b.Y != 60 || b.W != 200 || b.H != 100 {
		t.Fatalf("image mark %+v", marks[0])
	}
	if b := marks[1].Box; b.X != 10 || b.Y != 10 || b.W != 20 || b.H != 20 {
		t.Fatalf("rectangle mark %+v", marks[1])
	}
	if b := marks[2].Box; b.X != 72 || b.Y != 700 {
		t.Fatalf("text origin %+v", marks[2])
	}
}

func TestRestoreWithoutSaveFails(t *testing.T) {
	if _, err := Trace([]Operation{Op("Q")}); err == nil {
		t.Fatalf("expected unbalanced Q to fail")
	}
}

func TestEllipsePath(t *testing.T) {
	ops := Ellipse(0, 0, 100, 50).Operations()
	if len(ops) != 6 || ops[0].Operator != "m" || ops[5].Operator != "h" {
		t.Fatalf("unexpected ellipse ops %+v", ops)
	}
	if x, _ := raw.Float(ops[0].Operands[0]); x != 100 {
		t.Fatalf("ellipse should start at the right edge, got %v", x)
	}
}
