package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/observability"
	"github.com/wudi/pdfstudio/optimize"
	"github.com/wudi/pdfstudio/transcode"
)

func runProtect(a *app, args []string) error {
	fs := a.flags("protect")
	password := fs.String("new-password", "", "Password required to open the output")
	owner := fs.String("owner-password", "", "Owner password, the user password when empty")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	if *password == "" {
		return usagef("-new-password is required")
	}
	doc, err := a.load(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := doc.Protect(*password, document.ProtectOptions{OwnerPassword: *owner}); err != nil {
		return err
	}
	return a.save(stem(fs.Arg(0))+"_protected", doc, document.SaveOptions{})
}

func runCompress(a *app, args []string) error {
	fs := a.flags("compress")
	quality := fs.Int("quality", 0, "JPEG quality 1-100 for recompressed images, 0 keeps image encoding")
	maxPixels := fs.Int("max-pixels", 0, "Downscale images with more pixels, 0 disables")
	ppi := fs.Float64("ppi", 0, "Downscale images drawn above this resolution, 0 disables")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	if *quality < 0 || *quality > 100 {
		return usagef("-quality must be within 0-100")
	}
	in := fs.Arg(0)
	info, err := os.Stat(in)
	if err != nil {
		return err
	}
	doc, err := a.load(in)
	if err != nil {
		return err
	}
	report, err := optimize.New(optimize.Config{
		CombineDuplicateStreams: true,
		CompressStreams:         true,
		ImageQuality:            *quality,
		ImageMaxPixels:          *maxPixels,
		ImageUpperPPI:           *ppi,
	}).Optimize(a.ctx, doc)
	if err != nil {
		return err
	}
	data, err := doc.Save(a.ctx, document.SaveOptions{Compact: true, CompressStreams: true})
	if err != nil {
		return err
	}
	a.logger.Info("compressed",
		observability.Int64("before", info.Size()),
		observability.Int("after", len(data)),
		observability.Int("streams_combined", report.StreamsCombined),
		observability.Int("images_recompressed", report.ImagesRecompressed),
	)
	return a.put(stem(in)+"_compressed", data)
}

func runRepair(a *app, args []string) error {
	fs := a.flags("repair")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	doc, report, err := document.Repair(a.ctx, data, document.RepairOptions{
		Password: a.password,
		Logger:   a.logger,
		Producer: "pdftool",
	})
	if err != nil {
		return err
	}
	for _, w := range report.Warnings {
		a.logger.Warn("repair", observability.Error("warning", w))
	}
	a.logger.Info("repaired", observability.String("method", report.Method), observability.Int("pages", doc.PageCount()))
	return a.save(stem(fs.Arg(0))+"_repaired", doc, document.SaveOptions{})
}

func runInfo(a *app, args []string) error {
	fs := a.flags("info")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	doc, err := a.load(fs.Arg(0))
	if err != nil {
		return err
	}
	info := doc.Info()
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%s\n", doc.Version())
	fmt.Fprintf(tw, "Pages:\t%d\n", doc.PageCount())
	fmt.Fprintf(tw, "Encrypted:\t%t\n", doc.Protected())
	for _, f := range []struct{ k, v string }{
		{"Title", info.Title},
		{"Author", info.Author},
		{"Subject", info.Subject},
		{"Keywords", info.Keywords},
		{"Creator", info.Creator},
		{"Producer", info.Producer},
	} {
		if f.v != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", f.k, f.v)
		}
	}
	if !info.CreationDate.IsZero() {
		fmt.Fprintf(tw, "Created:\t%s\n", info.CreationDate.Format(time.RFC3339))
	}
	if !info.ModDate.IsZero() {
		fmt.Fprintf(tw, "Modified:\t%s\n", info.ModDate.Format(time.RFC3339))
	}
	for i, p := range doc.Pages() {
		w, h := p.Size()
		fmt.Fprintf(tw, "Page %d:\t%.2f x %.2f pt, rotation %d\n", i+1, w, h, p.Rotation())
	}
	for _, w := range doc.Warnings() {
		fmt.Fprintf(tw, "Warning:\t%v\n", w)
	}
	return tw.Flush()
}

// runEncode prints the base64 text of a file.
func runEncode(a *app, args []string) error {
	fs := a.flags("encode")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := transcode.NewEncoder(a.stdout)
	if _, err := io.Copy(enc, f); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout)
	return err
}

// runDecode turns base64 text back into a document. The result must load.
func runDecode(a *app, args []string) error {
	fs := a.flags("decode")
	name := fs.String("name", "", "Base name of the output, the input name when empty")
	if err := a.parse(fs, args, 1, 1); err != nil {
		return err
	}
	text, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	data, err := transcode.DecodeReader(bytes.NewReader(bytes.TrimSpace(text)))
	if err != nil {
		return err
	}
	if _, err := document.Load(a.ctx, data, document.WithLogger(a.logger), document.WithPassword(a.password)); err != nil {
		return err
	}
	base := *name
	if base == "" {
		base = stem(fs.Arg(0))
	}
	return a.put(base, data)
}
