package parser

import (
	"context"
	"fmt"
	"testing"

	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/xref"
)

func TestObjectLoaderResolvesIndirectLength(t *testing.T) {
	src := "%PDF-1.7\n" +
		"1 0 obj\n<< /Length 2 0 R >>\nstream\nhello endstream inside\nendstream\nendobj\n" +
		"2 0 obj\n22\nendobj\n"
	off2 := len("%PDF-1.7\n" + "1 0 obj\n<< /Length 2 0 R >>\nstream\nhello endstream inside\nendstream\nendobj\n")
	xrefOff := len(src)
	src += "xref\n0 3\n0000000000 65535 f \n0000000009 00000 n \n" + fmt.Sprintf("%010d", off2) + " 00000 n \n" +
		"trailer\n<< /Size 3 /Root 2 0 R >>\nstartxref\n" + fmt.Sprint(xrefOff) + "\n%%EOF\n"

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("resolve xref: %v", err)
	}
	loader, err := (&ObjectLoaderBuilder{}).WithData([]byte(src)).WithXRef(table).Build()
	if err != nil {
		t.Fatalf("build loader: %v", err)
	}
	obj, err := loader.Load(context.Background(), raw.ObjectRef{Num: 1})
	if err != nil {
		t.Fatalf("load object: %v", err)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok || string(st.Data) != "hello endstream inside" {
		t.Fatalf("unexpected stream %#v", obj)
	}
}
