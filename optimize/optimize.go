// Package optimize shrinks documents before they are saved: identical
// streams are merged, unfiltered streams are Flate compressed and large
// images are downscaled and re-encoded as JPEG.
package optimize

import (
	"context"
	"fmt"

	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/observability"
)

type Config struct {
	CombineDuplicateStreams bool
	CompressStreams         bool
	ImageQuality            int     // JPEG quality 1-100, 0 leaves image encoding alone
	ImageMaxPixels          int     // images with more pixels are downscaled, 0 disables
	ImageUpperPPI           float64 // downscale images drawn at a higher resolution, 0 disables
}

// Report counts what an Optimize call changed.
type Report struct {
	StreamsCombined    int
	StreamsCompressed  int
	ImagesRecompressed int
}

type Optimizer struct {
	config Config
}

func New(config Config) *Optimizer {
	return &Optimizer{config: config}
}

// Optimize rewrites doc in place. Callers usually save the result with
// document.SaveOptions{Compact: true}.
func (o *Optimizer) Optimize(ctx context.Context, doc *document.Document) (Report, error) {
	var report Report
	var usage map[raw.ObjectRef]imageUsage
	if o.config.ImageUpperPPI > 0 {
		usage = collectImageUsage(ctx, doc)
	}
	err := doc.EditObjects(func(objects *raw.Document) error {
		if o.config.ImageQuality > 0 || o.config.ImageMaxPixels > 0 || o.config.ImageUpperPPI > 0 {
			n, err := o.optimizeImages(ctx, objects, usage)
			if err != nil {
				return fmt.Errorf("failed to optimize images: %w", err)
			}
			report.ImagesRecompressed = n
		}
		if o.config.CombineDuplicateStreams {
			n, err := combineDuplicateStreams(ctx, objects)
			if err != nil {
				return fmt.Errorf("failed to combine duplicate streams: %w", err)
			}
			report.StreamsCombined = n
		}
		if o.config.CompressStreams {
			n, err := compressStreams(ctx, objects)
			if err != nil {
				return fmt.Errorf("failed to compress streams: %w", err)
			}
			report.StreamsCompressed = n
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	doc.Logger().Info("optimized document",
		observability.Int("streams_combined", report.StreamsCombined),
		observability.Int("streams_compressed", report.StreamsCompressed),
		observability.Int("images_recompressed", report.ImagesRecompressed))
	return report, nil
}
