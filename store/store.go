// Package store persists finished documents under fresh, timestamped names.
//
// Names follow <base>_<yyyyMMdd-HHmmss.SSS>.pdf. A store never overwrites an
// existing entry: when two outputs land on the same millisecond the later one
// gets a -2, -3, ... suffix.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("store: not found")

// Store saves document bytes and hands back the id they can be read with.
type Store interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
}

const timestampLayout = "20060102-150405.000"

// OutputName is the stored name for base at t. Any directory and ".pdf"
// extension on base are dropped.
func OutputName(base string, t time.Time) string {
	return stem(base) + "_" + t.Format(timestampLayout) + ".pdf"
}

// candidate returns the n-th name tried for base at t, counting from 1.
func candidate(base string, t time.Time, n int) string {
	name := OutputName(base, t)
	if n <= 1 {
		return name
	}
	return strings.TrimSuffix(name, ".pdf") + "-" + strconv.Itoa(n) + ".pdf"
}

func stem(base string) string {
	base = filepath.Base(base)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".pdf") {
		base = base[:len(base)-len(ext)]
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "document"
	}
	return base
}

func now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock()
}

// maxAttempts bounds the suffix search.
const maxAttempts = 1000
