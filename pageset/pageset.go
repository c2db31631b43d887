// Package pageset implements page-level set operations: merge, split,
// extract, reorder, delete and rotate. Operations that change the page list
// return new documents and leave their inputs untouched; rotation edits
// pages in place.
package pageset

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/observability"
	"github.com/wudi/pdfstudio/pagerange"
)

var (
	ErrEmptyInput   = errors.New("no input documents")
	ErrEmptyResult  = errors.New("operation would leave no pages")
	ErrInvalidAngle = errors.New("rotation angle must be a multiple of 90")
	ErrInvalidChunk = errors.New("chunk size must be positive")
)

// EmptyInputError is returned when an operation gets nothing to work on.
type EmptyInputError struct{ Op string }

func (e *EmptyInputError) Error() string        { return e.Op + ": " + ErrEmptyInput.Error() }
func (e *EmptyInputError) Is(target error) bool { return target == ErrEmptyInput }

// EmptyResultError is returned instead of producing a document without pages.
type EmptyResultError struct{ Op string }

func (e *EmptyResultError) Error() string        { return e.Op + ": " + ErrEmptyResult.Error() }
func (e *EmptyResultError) Is(target error) bool { return target == ErrEmptyResult }

// InvalidRangeError identifies a page range, in 1-based page numbers, that
// does not fit the document.
type InvalidRangeError struct {
	Range     pagerange.Range
	PageCount int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("page range %s outside 1-%d", e.Range, e.PageCount)
}

// SplitError collects the ranges a split could not produce. The documents
// for the other ranges are still returned next to it.
type SplitError struct {
	Errs      []error
	Succeeded int
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("split: %d of %d ranges failed: %v", len(e.Errs), len(e.Errs)+e.Succeeded, errors.Join(e.Errs...))
}

func (e *SplitError) Unwrap() []error { return e.Errs }

// derive starts an empty document carrying src's metadata and logger.
func derive(src *document.Document) *document.Document {
	out := document.New()
	out.SetLogger(src.Logger())
	if info := src.Info(); info != (document.Info{}) {
		out.SetInfo(info)
	}
	return out
}

func extract(ctx context.Context, src *document.Document, indices []int) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := derive(src)
	if _, err := out.ImportPages(src, indices); err != nil {
		return nil, err
	}
	return out, nil
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Merge concatenates the pages of docs in order into a new document.
func Merge(ctx context.Context, docs []*document.Document) (*document.Document, error) {
	if len(docs) == 0 {
		return nil, &EmptyInputError{Op: "merge"}
	}
	out := derive(docs[0])
	for i, src := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := out.ImportPages(src, allIndices(src.PageCount())); err != nil {
			return nil, fmt.Errorf("merge input %d: %w", i, err)
		}
	}
	out.Logger().Debug("merged documents", observability.Int("inputs", len(docs)), observability.Int("pages", out.PageCount()))
	return out, nil
}

// Split produces one document per valid range, in request order. Invalid
// ranges are reported together in a *SplitError returned alongside the
// documents that were produced.
func Split(ctx context.Context, doc *document.Document, ranges []pagerange.Range) ([]*document.Document, error) {
	if len(ranges) == 0 {
		return nil, &EmptyInputError{Op: "split"}
	}
	var outputs []*document.Document
	var errs []error
	for _, r := range ranges {
		if !r.Valid(doc.PageCount()) {
			errs = append(errs, &InvalidRangeError{Range: r, PageCount: doc.PageCount()})
			continue
		}
		out, err := extract(ctx, doc, r.Indices())
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return outputs, ctxErr
			}
			errs = append(errs, fmt.Errorf("range %s: %w", r, err))
			continue
		}
		outputs = append(outputs, out)
	}
	if len(errs) > 0 {
		doc.Logger().Warn("split partially failed", observability.Int("failed", len(errs)), observability.Int("succeeded", len(outputs)))
		return outputs, &SplitError{Errs: errs, Succeeded: len(outputs)}
	}
	return outputs, nil
}

// SplitEvery cuts doc into consecutive chunks of n pages; the last chunk may
// be shorter.
func SplitEvery(ctx context.Context, doc *document.Document, n int) ([]*document.Document, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunk, n)
	}
	var ranges []pagerange.Range
	for start := 1; start <= doc.PageCount(); start += n {
		ranges = append(ranges, pagerange.Range{Start: start, End: min(start+n-1, doc.PageCount())})
	}
	if len(ranges) == 0 {
		return nil, &EmptyInputError{Op: "split"}
	}
	return Split(ctx, doc, ranges)
}

// SplitString splits by a range list such as "1-3,4-6".
func SplitString(ctx context.Context, doc *document.Document, expr string) ([]*document.Document, error) {
	ranges, err := pagerange.ParseRanges(expr)
	if err != nil {
		return nil, err
	}
	return Split(ctx, doc, ranges)
}

// Extract copies the given 1-based pages into a new document in the order
// given. Repeated numbers yield repeated pages. If any number is out of
// range nothing is produced and every bad number is reported.
func Extract(ctx context.Context, doc *document.Document, pageNumbers []int) (*document.Document, error) {
	if len(pageNumbers) == 0 {
		return nil, &EmptyResultError{Op: "extract"}
	}
	var errs []error
	indices := make([]int, 0, len(pageNumbers))
	for _, n := range pageNumbers {
		if n < 1 || n > doc.PageCount() {
			errs = append(errs, &InvalidRangeError{Range: pagerange.Range{Start: n, End: n}, PageCount: doc.PageCount()})
			continue
		}
		indices = append(indices, pagerange.ToIndex(n))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return extract(ctx, doc, indices)
}

// ExtractString extracts pages named by a page list such as "5,1-3". Numbers
// outside the document are dropped by the parser.
func ExtractString(ctx context.Context, doc *document.Document, expr string) (*document.Document, error) {
	numbers, err := pagerange.Parse(expr, doc.PageCount())
	if err != nil {
		return nil, err
	}
	return Extract(ctx, doc, numbers)
}

// Reorder builds a document whose pages are doc's pages at the given 0-based
// indices. Out-of-range and repeated indices are dropped with a warning,
// so a permutation of a subset is accepted.
func Reorder(ctx context.Context, doc *document.Document, permutation []int) (*document.Document, error) {
	seen := make(map[int]bool, len(permutation))
	kept := make([]int, 0, len(permutation))
	for _, i := range permutation {
		switch {
		case i < 0 || i >= doc.PageCount():
			doc.Logger().Warn("reorder: dropping out-of-range index", observability.Int("index", i), observability.Int("pages", doc.PageCount()))
		case seen[i]:
			doc.Logger().Warn("reorder: dropping repeated index", observability.Int("index", i))
		default:
			seen[i] = true
			kept = append(kept, i)
		}
	}
	if len(kept) == 0 {
		return nil, &EmptyResultError{Op: "reorder"}
	}
	return extract(ctx, doc, kept)
}

// DeletePages returns a copy of doc without the pages at the given 0-based
// indices. Indices are de-duplicated and removed from the highest down.
func DeletePages(ctx context.Context, doc *document.Document, indices []int) (*document.Document, error) {
	unique := make(map[int]bool, len(indices))
	var errs []error
	for _, i := range indices {
		if i < 0 || i >= doc.PageCount() {
			n := pagerange.ToNumber(i)
			errs = append(errs, &InvalidRangeError{Range: pagerange.Range{Start: n, End: n}, PageCount: doc.PageCount()})
			continue
		}
		unique[i] = true
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(unique) >= doc.PageCount() {
		return nil, &EmptyResultError{Op: "delete"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order := make([]int, 0, len(unique))
	for i := range unique {
		order = append(order, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(order)))
	out := doc.Clone()
	for _, i := range order {
		if err := out.RemovePage(i); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Rotate sets the absolute rotation of the page at index.
func Rotate(doc *document.Document, index, angle int) error {
	if angle%90 != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAngle, angle)
	}
	p, err := doc.Page(index)
	if err != nil {
		return err
	}
	return p.SetRotation(angle)
}

// RotateBy turns the page at index by delta degrees from its current
// rotation.
func RotateBy(doc *document.Document, index, delta int) error {
	if delta%90 != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAngle, delta)
	}
	p, err := doc.Page(index)
	if err != nil {
		return err
	}
	return p.SetRotation(p.Rotation() + delta)
}

// RotateAll sets every page to the same absolute rotation.
func RotateAll(doc *document.Document, angle int) error {
	for i := 0; i < doc.PageCount(); i++ {
		if err := Rotate(doc, i, angle); err != nil {
			return err
		}
	}
	return nil
}

// RotateAllBy turns every page by delta degrees.
func RotateAllBy(doc *document.Document, delta int) error {
	for i := 0; i < doc.PageCount(); i++ {
		if err := RotateBy(doc, i, delta); err != nil {
			return err
		}
	}
	return nil
}
