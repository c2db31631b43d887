// Package pdftest builds small PDF files byte by byte for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

// Build writes objects as "n 0 obj" bodies numbered from 1, followed by a
// classic cross-reference table whose trailer points /Root at object 1.
func Build(objects ...string) []byte {
	return BuildWithTrailer("", objects...)
}

// BuildWithTrailer is Build with extra trailer entries, e.g. "/Info 5 0 R".
func BuildWithTrailer(extra string, objects ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xE2\xE3\xCF\xD3\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R %s>>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, extra, xref)
	return buf.Bytes()
}

// Stream formats a stream object body with a correct /Length.
func Stream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

// WithoutXRef strips everything from the last "xref" keyword on, leaving the
// objects and an end-of-file marker, as a truncated download would.
func WithoutXRef(data []byte) []byte {
	i := bytes.LastIndex(data, []byte("\nxref\n"))
	if i < 0 {
		return data
	}
	out := append([]byte(nil), data[:i+1]...)
	return append(out, "%%EOF\n"...)
}
