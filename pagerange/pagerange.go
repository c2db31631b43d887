// Package pagerange parses user page lists such as "1,3-5" and converts the
// 1-based numbers users type into 0-based page indices.
package pagerange

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive span of 1-based page numbers.
type Range struct {
	Start, End int
}

func (r Range) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Valid reports whether 1 <= Start <= End <= pageCount.
func (r Range) Valid(pageCount int) bool {
	return r.Start >= 1 && r.Start <= r.End && r.End <= pageCount
}

// Len is the number of pages in the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Indices lists the range as 0-based page indices.
func (r Range) Indices() []int {
	out := make([]int, 0, r.Len())
	for n := r.Start; n <= r.End; n++ {
		out = append(out, ToIndex(n))
	}
	return out
}

// ToIndex converts a 1-based page number to a 0-based index.
func ToIndex(pageNumber int) int { return pageNumber - 1 }

// ToNumber converts a 0-based index to a 1-based page number.
func ToNumber(index int) int { return index + 1 }

// SyntaxError reports a token that is neither a number nor a dash range.
type SyntaxError struct {
	Token  string
	Offset int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid page token %q at offset %d", e.Token, e.Offset)
}

// ParseRanges reads comma-separated tokens, "5" or "3-7", without checking
// them against a page count. Whitespace around tokens and dashes is ignored.
// A blank expression selects nothing; an empty token between commas is a
// syntax error.
func ParseRanges(expr string) ([]Range, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	var out []Range
	offset := 0
	for _, tok := range strings.Split(expr, ",") {
		start := offset
		offset += len(tok) + 1
		trimmed := strings.TrimSpace(tok)
		if trimmed == "" {
			return nil, &SyntaxError{Token: tok, Offset: start}
		}
		r, ok := parseToken(trimmed)
		if !ok {
			return nil, &SyntaxError{Token: trimmed, Offset: start + strings.Index(tok, trimmed)}
		}
		out = append(out, r)
	}
	return out, nil
}

func parseToken(tok string) (Range, bool) {
	lo, hi, isRange := strings.Cut(tok, "-")
	a, ok := parseNumber(lo)
	if !ok {
		return Range{}, false
	}
	if !isRange {
		return Range{Start: a, End: a}, true
	}
	b, ok := parseNumber(hi)
	if !ok {
		return Range{}, false
	}
	return Range{Start: a, End: b}, true
}

func parseNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Parse expands expr into 1-based page numbers in the order written.
// Numbers outside [1, pageCount] are dropped, ranges are clamped to the
// document, reversed ranges count down and repeated pages keep their first
// position.
func Parse(expr string, pageCount int) ([]int, error) {
	ranges, err := ParseRanges(expr)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	var out []int
	add := func(n int) {
		if n < 1 || n > pageCount || seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
	}
	for _, r := range ranges {
		lo, hi, step := r.Start, r.End, 1
		if lo > hi {
			step = -1
		}
		if max(lo, hi) < 1 || min(lo, hi) > pageCount {
			continue
		}
		lo, hi = clamp(lo, pageCount), clamp(hi, pageCount)
		for n := lo; ; n += step {
			add(n)
			if n == hi {
				break
			}
		}
	}
	return out, nil
}

func clamp(n, pageCount int) int {
	if n < 1 {
		return 1
	}
	if n > pageCount {
		return pageCount
	}
	return n
}
