package placement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/observability"
)

var ErrNoImages = errors.New("no images to convert")

// ImageSource is one PNG or JPEG raster for FromImages. Format is a hint;
// the other decoder is tried when it fails.
type ImageSource struct {
	Data   []byte
	Format string
}

// FromImages builds a new document with one page per image. Each page is
// the image's pixel size in points and the image fills it.
func FromImages(ctx context.Context, images []ImageSource, logger observability.Logger) (*document.Document, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	doc := document.New()
	doc.SetLogger(logger)
	for i, src := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(src.Data))
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, &UnsupportedImageFormatError{Format: src.Format, Err: err})
		}
		w, h := float64(cfg.Width), float64(cfg.Height)
		doc.AddBlankPage(w, h)
		item := Image{Data: src.Data, Format: src.Format, Width: w, Height: h}
		if _, err := Place(ctx, doc, i, item); err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
	}
	doc.Logger().Info("converted images", observability.Int("pages", doc.PageCount()))
	return doc, nil
}
