package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/pagerange"
	"github.com/wudi/pdfstudio/pageset"
)

func runMerge(a *app, args []string) error {
	fs := a.flags("merge")
	name := fs.String("name", "merged", "Base name of the output")
	if err := a.parse(fs, args, 2, -1); err != nil {
		return err
	}
	docs := make([]*document.Document, 0, fs.NArg())
	for _, path := range fs.Args() {
		doc, err := a.load(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	out, err := pageset.Merge(a.ctx, docs)
	if err != nil {
		return err
	}
	return a.save(*name, out, document.SaveOptions{})
}

func runSplit(a *app, args []string) error {
	fs := a.flags("split")
	ranges := fs.String("ranges", "", "Comma separated page ranges, one output each")
	every := fs.Int("every", 0, "Split into chunks of n pages")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	if (*ranges == "") == (*every == 0) {
		return usagef("exactly one of -ranges and -every is required")
	}
	in := fs.Arg(0)
	doc, err := a.load(in)
	if err != nil {
		return err
	}
	var parts []*document.Document
	if *every > 0 {
		parts, err = pageset.SplitEvery(a.ctx, doc, *every)
	} else {
		parts, err = pageset.SplitString(a.ctx, doc, *ranges)
	}
	// Parts that were produced are written even when some ranges failed.
	base := stem(in)
	for i, part := range parts {
		if serr := a.save(fmt.Sprintf("%s_part%d", base, i+1), part, document.SaveOptions{}); serr != nil {
			return serr
		}
	}
	return err
}

func runExtract(a *app, args []string) error {
	fs := a.flags("extract")
	pages := fs.String("pages", "", "Pages to copy, e.g. 5,1-3")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	if *pages == "" {
		return usagef("-pages is required")
	}
	doc, err := a.load(fs.Arg(0))
	if err != nil {
		return err
	}
	out, err := pageset.ExtractString(a.ctx, doc, *pages)
	if err != nil {
		return err
	}
	return a.save(stem(fs.Arg(0))+"_extracted", out, document.SaveOptions{})
}

func runReorder(a *app, args []string) error {
	fs := a.flags("reorder")
	order := fs.String("order", "", "New page order as 1-based page numbers, e.g. 3,1,2")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	numbers, err := parseNumbers(*order)
	if err != nil {
		return err
	}
	doc, err := a.load(fs.Arg(0))
	if err != nil {
		return err
	}
	indices := make([]int, len(numbers))
	for i, n := range numbers {
		indices[i] = pagerange.ToIndex(n)
	}
	out, err := pageset.Reorder(a.ctx, doc, indices)
	if err != nil {
		return err
	}
	return a.save(stem(fs.Arg(0))+"_reordered", out, document.SaveOptions{})
}

func runDelete(a *app, args []string) error {
	fs := a.flags("delete")
	pages := fs.String("pages", "", "Pages to remove, e.g. 2,4-6")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	if *pages == "" {
		return usagef("-pages is required")
	}
	doc, err := a.load(fs.Arg(0))
	if err != nil {
		return err
	}
	numbers, err := pagerange.Parse(*pages, doc.PageCount())
	if err != nil {
		return err
	}
	indices := make([]int, len(numbers))
	for i, n := range numbers {
		indices[i] = pagerange.ToIndex(n)
	}
	out, err := pageset.DeletePages(a.ctx, doc, indices)
	if err != nil {
		return err
	}
	return a.save(stem(fs.Arg(0))+"_trimmed", out, document.SaveOptions{})
}

func runRotate(a *app, args []string) error {
	fs := a.flags("rotate")
	angle := fs.Int("angle", 90, "Rotation in degrees, a multiple of 90")
	pages := fs.String("pages", "", "Pages to rotate, all when empty")
	relative := fs.Bool("relative", false, "Add to the current rotation instead of replacing it")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	doc, err := a.load(fs.Arg(0))
	if err != nil {
		return err
	}
	numbers, err := selectPages(*pages, doc.PageCount())
	if err != nil {
		return err
	}
	for _, n := range numbers {
		if *relative {
			err = pageset.RotateBy(doc, pagerange.ToIndex(n), *angle)
		} else {
			err = pageset.Rotate(doc, pagerange.ToIndex(n), *angle)
		}
		if err != nil {
			return err
		}
	}
	return a.save(stem(fs.Arg(0))+"_rotated", doc, document.SaveOptions{})
}

// selectPages parses a page list, or returns every page when expr is empty.
func selectPages(expr string, pageCount int) ([]int, error) {
	if expr == "" {
		all := make([]int, pageCount)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}
	return pagerange.Parse(expr, pageCount)
}

// parseNumbers reads a comma separated list of integers.
func parseNumbers(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, usagef("page list is required")
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, usagef("bad page number %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
