package transcode

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestRoundTripAllPaddingCases(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n <= 130; n++ {
		data := make([]byte, n)
		rng.Read(data)
		text := Encode(data)
		if len(text) != EncodedLen(n) {
			t.Fatalf("len %d: encoded length %d, want %d", n, len(text), EncodedLen(n))
		}
		back, err := Decode(text)
		if err != nil {
			t.Fatalf("len %d: decode: %v", n, err)
		}
		if !bytes.Equal(back, data) {
			t.Fatalf("len %d: round trip mismatch", n)
		}
	}
}

func TestKnownVectors(t *testing.T) {
	vectors := map[string]string{
		"":         "",
		"f":        "Zg==",
		"fo":       "Zm8=",
		"foo":      "Zm9v",
		"foob":     "Zm9vYg==",
		"fooba":    "Zm9vYmE=",
		"foobar":   "Zm9vYmFy",
		"\xff\xfe": "//4=",
	}
	for in, want := range vectors {
		if got := Encode([]byte(in)); got != want {
			t.Fatalf("Encode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		in     string
		offset int64
	}{
		{"Zm9", 3},
		{"Zm9v!A==", 4},
		{"Zg==Zm8=", 2},
		{"Z===", 1},
		{"Zm=v", 3},
		{"Zh==", 1},
		{"Zm9=", 2},
	}
	for _, tc := range cases {
		_, err := Decode(tc.in)
		var ferr *FormatError
		if !errors.As(err, &ferr) {
			t.Fatalf("%q: expected FormatError, got %v", tc.in, err)
		}
		if ferr.Offset != tc.offset {
			t.Fatalf("%q: offset %d, want %d (%s)", tc.in, ferr.Offset, tc.offset, ferr.Reason)
		}
	}
}

func TestStreamingEncoderMatchesEncode(t *testing.T) {
	data := make([]byte, 5000)
	rand.New(rand.NewSource(3)).Read(data)
	for _, step := range []int{1, 2, 5, 767, 1024, 5000} {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		for i := 0; i < len(data); i += step {
			end := i + step
			if end > len(data) {
				end = len(data)
			}
			if _, err := enc.Write(data[i:end]); err != nil {
				t.Fatalf("step %d: write: %v", step, err)
			}
		}
		if err := enc.Close(); err != nil {
			t.Fatalf("step %d: close: %v", step, err)
		}
		if buf.String() != Encode(data) {
			t.Fatalf("step %d: streaming output differs", step)
		}
	}
}

func TestDecodeReaderAcceptsWrappedText(t *testing.T) {
	data := []byte(strings.Repeat("pdfstudio", 40))
	text := Encode(data)
	var wrapped strings.Builder
	for i := 0; i < len(text); i += 76 {
		end := i + 76
		if end > len(text) {
			end = len(text)
		}
		wrapped.WriteString(text[i:end])
		wrapped.WriteString("\r\n")
	}
	got, err := DecodeReader(strings.NewReader(wrapped.String()))
	if err != nil {
		t.Fatalf("decode reader: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("decoded data differs")
	}
}

func TestDecodeReaderRejectsTruncation(t *testing.T) {
	var ferr *FormatError
	if _, err := DecodeReader(strings.NewReader("Zm9vYg")); !errors.As(err, &ferr) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if _, err := DecodeReader(strings.NewReader("Zg==Zg==")); !errors.As(err, &ferr) {
		t.Fatalf("expected FormatError for data after padding, got %v", err)
	}
}
