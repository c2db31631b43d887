package main

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/pagerange"
	"github.com/wudi/pdfstudio/placement"
)

var numberFormats = map[string]placement.NumberFormat{
	"page-n-of-total": placement.FormatPageNOfTotal,
	"number":          placement.FormatNumber,
	"page-n":          placement.FormatPageN,
}

// colorFlag is an optional "#RRGGBB" flag value.
type colorFlag struct{ c *placement.Color }

func (f *colorFlag) String() string { return "" }

func (f *colorFlag) Set(s string) error {
	c, err := placement.ParseHexColor(s)
	if err != nil {
		return err
	}
	f.c = &c
	return nil
}

// optionalFloat records whether the flag was given at all.
type optionalFloat struct{ v *float64 }

func (f *optionalFloat) String() string { return "" }

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.v = &v
	return nil
}

// placeOne loads the input, places item on one page and saves the result.
func (a *app) placeOne(in string, page int, suffix string, item placement.Item) error {
	doc, err := a.load(in)
	if err != nil {
		return err
	}
	if _, err := placement.Place(a.ctx, doc, pagerange.ToIndex(page), item); err != nil {
		return err
	}
	return a.save(stem(in)+suffix, doc, document.SaveOptions{})
}

func runWatermark(a *app, args []string) error {
	fs := a.flags("watermark")
	text := fs.String("text", "", "Watermark text")
	size := fs.Float64("size", 48, "Font size")
	opacity := fs.Float64("opacity", 0.3, "Opacity in (0,1]")
	font := fs.String("font", "", "Standard font name")
	var rotation optionalFloat
	var color colorFlag
	fs.Var(&rotation, "rotation", "Rotation in degrees (default -45)")
	fs.Var(&color, "color", "Text color as #RRGGBB (default gray)")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	if *text == "" {
		return usagef("-text is required")
	}
	doc, err := a.load(fs.Arg(0))
	if err != nil {
		return err
	}
	w := placement.Watermark{Text: *text, Font: *font, Size: *size, Opacity: *opacity, Color: color.c, Rotation: rotation.v}
	if _, err := placement.ApplyWatermark(a.ctx, doc, w); err != nil {
		return err
	}
	return a.save(stem(fs.Arg(0))+"_watermarked", doc, document.SaveOptions{})
}

func runPageNumbers(a *app, args []string) error {
	fs := a.flags("pagenumbers")
	format := fs.String("format", "page-n-of-total", "Label format: page-n-of-total, number or page-n")
	position := fs.String("position", "bottom-center", "Anchor such as bottom-center or top-right")
	start := fs.Int("start", 1, "Number of the first page")
	size := fs.Float64("size", 10, "Font size")
	margin := fs.Float64("margin", 30, "Distance from the page edges")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	f, ok := numberFormats[*format]
	if !ok {
		return usagef("unknown format %q", *format)
	}
	pos, err := placement.ParsePosition(*position)
	if err != nil {
		return usagef("%v", err)
	}
	doc, err := a.load(fs.Arg(0))
	if err != nil {
		return err
	}
	pn := placement.PageNumbers{Format: f, Position: pos, StartAt: *start, Size: *size, Margin: *margin}
	if _, err := placement.ApplyPageNumbers(a.ctx, doc, pn); err != nil {
		return err
	}
	return a.save(stem(fs.Arg(0))+"_numbered", doc, document.SaveOptions{})
}

func runText(a *app, args []string) error {
	fs := a.flags("text")
	page := fs.Int("page", 1, "Page number")
	content := fs.String("text", "", "Text to add; \\n starts a new line")
	var x, y optionalFloat
	fs.Var(&x, "x", "X of the baseline start (default 50)")
	fs.Var(&y, "y", "Y of the first baseline (default 100 below the top)")
	size := fs.Float64("size", 12, "Font size")
	font := fs.String("font", "", "Standard font name")
	rotation := fs.Float64("rotation", 0, "Rotation in degrees")
	var color colorFlag
	fs.Var(&color, "color", "Text color as #RRGGBB")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	if *content == "" {
		return usagef("-text is required")
	}
	doc, err := a.load(fs.Arg(0))
	if err != nil {
		return err
	}
	p, err := doc.Page(pagerange.ToIndex(*page))
	if err != nil {
		return err
	}
	_, h := p.Size()
	tx, ty := placement.DefaultTextPosition(h)
	if x.v != nil {
		tx = *x.v
	}
	if y.v != nil {
		ty = *y.v
	}
	item := placement.Text{Content: strings.ReplaceAll(*content, `\n`, "\n"), X: tx, Y: ty, Font: *font, Size: *size, Color: color.c, Rotation: *rotation}
	if _, err := placement.Place(a.ctx, doc, pagerange.ToIndex(*page), item); err != nil {
		return err
	}
	return a.save(stem(fs.Arg(0))+"_edited", doc, document.SaveOptions{})
}

func imageFlags(fs *flag.FlagSet) (page *int, path *string, x, y, w, h *float64) {
	page = fs.Int("page", 1, "Page number")
	path = fs.String("image", "", "PNG or JPEG file")
	x = fs.Float64("x", 50, "X of the lower-left corner")
	y = fs.Float64("y", 50, "Y of the lower-left corner")
	w = fs.Float64("width", 0, "Width, default for the item when 0")
	h = fs.Float64("height", 0, "Height, default for the item when 0")
	return
}

func runImage(a *app, args []string) error {
	fs := a.flags("image")
	page, path, x, y, w, h := imageFlags(fs)
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	data, format, err := readImage(*path)
	if err != nil {
		return err
	}
	item := placement.Image{Data: data, Format: format, X: *x, Y: *y, Width: *w, Height: *h}
	return a.placeOne(fs.Arg(0), *page, "_edited", item)
}

func runSign(a *app, args []string) error {
	fs := a.flags("sign")
	page, path, x, y, w, h := imageFlags(fs)
	signer := fs.String("name", "", "Signer name printed under the signature")
	date := fs.String("date", "", "Date printed under the signature")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	data, format, err := readImage(*path)
	if err != nil {
		return err
	}
	item := placement.Signature{Data: data, Format: format, X: *x, Y: *y, Width: *w, Height: *h}
	if *signer != "" || *date != "" {
		item.Caption = &placement.SignatureCaption{SignerName: *signer, Date: *date}
	}
	return a.placeOne(fs.Arg(0), *page, "_signed", item)
}

func runConvert(a *app, args []string) error {
	fs := a.flags("convert")
	name := fs.String("name", "converted", "Base name of the output")
	if err := a.parse(fs, args, 1, -1); err != nil {
		return err
	}
	sources := make([]placement.ImageSource, 0, fs.NArg())
	for _, path := range fs.Args() {
		data, format, err := readImage(path)
		if err != nil {
			return err
		}
		sources = append(sources, placement.ImageSource{Data: data, Format: format})
	}
	doc, err := placement.FromImages(a.ctx, sources, a.logger)
	if err != nil {
		return err
	}
	return a.save(*name, doc, document.SaveOptions{})
}

func readImage(path string) ([]byte, string, error) {
	if path == "" {
		return nil, "", usagef("-image is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	format := "png"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		format = "jpeg"
	}
	return data, format, nil
}
