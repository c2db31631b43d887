package xref

import (
	"context"
	"errors"
	"io"

	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/scanner"
)

// repair scans the entire file for "<num> <gen> obj" headers and trailer
// dictionaries. Later definitions of the same object win, as they would in an
// incremental update.
func repair(ctx context.Context, data []byte) (Table, error) {
	s := scanner.New(data, scanner.Config{})
	rd := scanner.NewObjectReader(s)
	entries := make(map[int]entry)
	var lastTrailer *raw.DictObj
	// sliding window over the last two tokens
	var prev2, prev1 scanner.Token
	have := 0

	for i := 0; ; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tok, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// skip the offending byte and keep scanning
			if serr := s.Seek(s.Position() + 1); serr != nil {
				break
			}
			have = 0
			continue
		}
		switch {
		case tok.Type == scanner.TokenKeyword && tok.Str == "obj" && have >= 2 &&
			prev2.Type == scanner.TokenNumber && prev2.IsInt && prev2.Int > 0 &&
			prev1.Type == scanner.TokenNumber && prev1.IsInt && prev1.Int >= 0:
			entries[int(prev2.Int)] = entry{offset: prev2.Pos, gen: int(prev1.Int)}
			have = 0
			continue
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			obj, err := rd.Read()
			if err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					lastTrailer = dict
				}
			}
			have = 0
			continue
		}
		prev2, prev1 = prev1, tok
		if have < 2 {
			have++
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}
	if lastTrailer == nil {
		lastTrailer = raw.Dict()
	}
	lastTrailer.Delete("Prev")
	lastTrailer.Delete("XRefStm")
	max := 0
	for n := range entries {
		if n > max {
			max = n
		}
	}
	lastTrailer.Put("Size", raw.NumberInt(int64(max+1)))
	return &table{entries: entries, trailer: lastTrailer, kind: "repaired"}, nil
}
