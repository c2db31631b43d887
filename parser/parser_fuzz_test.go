package parser

import (
	"context"
	"testing"

	"github.com/wudi/pdfstudio/recovery"
)

func FuzzDocumentParser(f *testing.F) {
	f.Add([]byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n..."))

	f.Fuzz(func(t *testing.T, data []byte) {
		p := NewDocumentParser(Config{Recovery: recovery.NewLenientStrategy()})
		_, _ = p.Parse(context.Background(), data)
	})
}
