package recovery_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wudi/pdfstudio/recovery"
)

var errBroken = errors.New("broken")

func TestStrictStrategyFails(t *testing.T) {
	s := recovery.NewStrictStrategy()
	if got := s.OnError(context.Background(), errBroken, recovery.Location{Component: "xref"}); got != recovery.ActionFail {
		t.Fatalf("strict strategy returned %v", got)
	}
}

func TestLenientStrategyRecordsDefects(t *testing.T) {
	s := recovery.NewLenientStrategy()
	var seen []recovery.Location
	s.OnDefect = func(err error, loc recovery.Location) { seen = append(seen, loc) }

	obj := recovery.Location{Component: "loader", ObjectNum: 4, ByteOffset: 215}
	if got := s.OnError(context.Background(), errBroken, obj); got != recovery.ActionSkip {
		t.Fatalf("unparseable object: got %v, want skip", got)
	}
	xref := recovery.Location{Component: "xref", ByteOffset: 290}
	if got := s.OnError(context.Background(), errBroken, xref); got != recovery.ActionFix {
		t.Fatalf("xref defect: got %v, want fix", got)
	}

	if len(s.Errors) != 2 || len(seen) != 2 {
		t.Fatalf("recorded %d errors, observed %d", len(s.Errors), len(seen))
	}
	if !errors.Is(s.Errors[0], errBroken) || !strings.Contains(s.Errors[0].Error(), "loader obj 4 0 @215") {
		t.Fatalf("first error %v", s.Errors[0])
	}
	if !strings.Contains(s.Errors[1].Error(), "xref @290") {
		t.Fatalf("second error %v", s.Errors[1])
	}
}
