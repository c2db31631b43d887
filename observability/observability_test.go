package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNopLoggerWith(t *testing.T) {
	var l Logger = NopLogger{}
	l = l.With(String("k", "v"))
	l.Warn("ignored", Int("n", 1))
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Fatalf("OrNop(nil) should return NopLogger")
	}
}

func TestLogrusAdapterWritesFields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	l := NewLogrus(base).With(String("op", "merge"))
	l.Warn("dropped index", Int("index", 7), Float("scale", 0.5), Error("err", errors.New("boom")))

	out := buf.String()
	for _, want := range []string{"level=warning", "op=merge", "index=7", "scale=0.5", "err=boom", "dropped index"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
