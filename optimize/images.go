package optimize

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"math"

	"github.com/wudi/pdfstudio/builder"
	"github.com/wudi/pdfstudio/contentstream"
	"github.com/wudi/pdfstudio/document"
	"github.com/wudi/pdfstudio/filters"
	"github.com/wudi/pdfstudio/ir/raw"
)

const defaultQuality = 75

type imageUsage struct {
	maxWidth  float64 // in points
	maxHeight float64 // in points
}

// collectImageUsage records the largest size each image XObject is drawn at.
// Pages whose content cannot be read are skipped.
func collectImageUsage(ctx context.Context, doc *document.Document) map[raw.ObjectRef]imageUsage {
	usage := make(map[raw.ObjectRef]imageUsage)
	for _, page := range doc.Pages() {
		data, err := page.ContentBytes(ctx)
		if err != nil {
			continue
		}
		ops, err := contentstream.Parse(data)
		if err != nil {
			continue
		}
		marks, err := contentstream.Trace(ops)
		if err != nil {
			continue
		}
		for _, m := range marks {
			if m.Operator != "Do" {
				continue
			}
			ref, ok := page.ResourceRef(builder.CategoryXObject, m.Name)
			if !ok {
				continue
			}
			curr := usage[ref]
			curr.maxWidth = math.Max(curr.maxWidth, m.Box.W)
			curr.maxHeight = math.Max(curr.maxHeight, m.Box.H)
			usage[ref] = curr
		}
	}
	return usage
}

func (o *Optimizer) optimizeImages(ctx context.Context, doc *raw.Document, usage map[raw.ObjectRef]imageUsage) (int, error) {
	masks := softMasks(doc)
	changed := 0
	for _, ref := range doc.SortedRefs() {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		stream, ok := doc.Objects[ref].(*raw.StreamObj)
		if !ok || masks[ref] {
			continue
		}
		if sub, _ := stream.Dict.NameValue("Subtype"); sub != "Image" {
			continue
		}
		if o.processImage(ctx, doc, stream, usage[ref]) {
			changed++
		}
	}
	return changed, nil
}

// softMasks lists streams used as another image's SMask. Masks are not
// recompressed: JPEG artefacts show up as halos around transparent edges.
func softMasks(doc *raw.Document) map[raw.ObjectRef]bool {
	out := make(map[raw.ObjectRef]bool)
	for _, obj := range doc.Objects {
		if s, ok := obj.(*raw.StreamObj); ok {
			if r, ok := s.Dict.KV["SMask"].(raw.RefObj); ok {
				out[r.R] = true
			}
		}
	}
	return out
}

// processImage re-encodes one image XObject and reports whether it was
// replaced.
func (o *Optimizer) processImage(ctx context.Context, doc *raw.Document, stream *raw.StreamObj, use imageUsage) bool {
	if mask, ok := stream.Dict.KV["ImageMask"].(raw.BoolObj); ok && mask.V {
		return false
	}
	if _, ok := stream.Dict.KV["Decode"]; ok {
		return false
	}
	width, _ := stream.Dict.IntValue("Width")
	height, _ := stream.Dict.IntValue("Height")
	if width <= 0 || height <= 0 {
		return false
	}

	limit := o.config.ImageMaxPixels
	if o.config.ImageUpperPPI > 0 && use.maxWidth > 0 && use.maxHeight > 0 {
		// PPI = pixels / (points / 72)
		maxW := o.config.ImageUpperPPI * use.maxWidth / 72.0
		maxH := o.config.ImageUpperPPI * use.maxHeight / 72.0
		if float64(width) > maxW*1.2 || float64(height) > maxH*1.2 {
			scale := math.Min(maxW/float64(width), maxH/float64(height))
			target := int(float64(width)*scale) * int(float64(height)*scale)
			if limit == 0 || target < limit {
				limit = max(target, 1)
			}
		}
	}
	needsResize := limit > 0 && int(width*height) > limit

	names, _ := filters.ExtractFilters(stream.Dict)
	isJPEG := len(names) == 1 && names[0] == "DCTDecode"
	if !needsResize && (o.config.ImageQuality == 0 || isJPEG && o.config.ImageQuality >= defaultQuality) {
		return false
	}

	img, err := toImage(ctx, doc, stream, int(width), int(height))
	if err != nil || img == nil {
		return false
	}
	if needsResize {
		img = builder.Downscale(img, limit)
	}
	quality := o.config.ImageQuality
	if quality == 0 {
		quality = defaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return false
	}
	if !needsResize && buf.Len() >= len(stream.Data) {
		return false
	}

	stream.Data = buf.Bytes()
	stream.Dict.Put("Filter", raw.NameLiteral("DCTDecode"))
	stream.Dict.Put("Length", raw.NumberInt(int64(buf.Len())))
	stream.Dict.Put("BitsPerComponent", raw.NumberInt(8))
	stream.Dict.Put("Width", raw.NumberInt(int64(img.Bounds().Dx())))
	stream.Dict.Put("Height", raw.NumberInt(int64(img.Bounds().Dy())))
	stream.Dict.Delete("DecodeParms")
	if isGray(img) {
		stream.Dict.Put("ColorSpace", raw.NameLiteral("DeviceGray"))
	} else {
		stream.Dict.Put("ColorSpace", raw.NameLiteral("DeviceRGB"))
	}
	return true
}

func toImage(ctx context.Context, doc *raw.Document, stream *raw.StreamObj, width, height int) (image.Image, error) {
	names, params := filters.ExtractFilters(stream.Dict)
	if len(names) == 1 && names[0] == "DCTDecode" {
		return jpeg.Decode(bytes.NewReader(stream.Data))
	}
	if bpc, _ := stream.Dict.IntValue("BitsPerComponent"); bpc != 8 {
		return nil, nil
	}
	data, err := filters.Default(filters.Limits{}).Decode(ctx, stream.Data, names, params)
	if err != nil {
		return nil, err
	}
	cs, _ := doc.Resolve(stream.Dict.KV["ColorSpace"]).(raw.NameObj)

	switch cs.Val {
	case "DeviceGray":
		if len(data) < width*height {
			return nil, nil
		}
		return &image.Gray{
			Pix:    data[:width*height],
			Stride: width,
			Rect:   image.Rect(0, 0, width, height),
		}, nil
	case "DeviceRGB":
		if len(data) < width*height*3 {
			return nil, nil
		}
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		for i, j := 0, 0; i < width*height; i, j = i+1, j+3 {
			copy(img.Pix[i*4:i*4+3], data[j:j+3])
			img.Pix[i*4+3] = 255
		}
		return img, nil
	case "DeviceCMYK":
		if len(data) < width*height*4 {
			return nil, nil
		}
		img := image.NewCMYK(image.Rect(0, 0, width, height))
		copy(img.Pix, data)
		return img, nil
	}
	return nil, nil
}

func isGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	return false
}
