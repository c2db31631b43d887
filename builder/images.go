package builder

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"github.com/wudi/pdfstudio/filters"
	"github.com/wudi/pdfstudio/fonts"
	"github.com/wudi/pdfstudio/ir/raw"
	"github.com/wudi/pdfstudio/security"
)

var (
	ErrUnsupportedImage = errors.New("unsupported image data")
	ErrImageTooLarge    = errors.New("image dimensions exceed decode limit")
)

// Image is a raster ready to become an image XObject. JPEG sources that need
// no resampling keep their original bytes.
type Image struct {
	Width, Height int
	// Components is 3 for RGB and 1 for gray.
	Components int
	Data       []byte // raw samples, or the JPEG file when DCT is set
	DCT        bool
	Alpha      []byte // 8-bit soft mask, nil when opaque
	key        string
}

// ImageFromBytes decodes PNG or JPEG data. format is a hint ("png", "jpeg",
// "jpg"); the other decoder is tried when the hinted one fails. Images larger
// than maxPixels are downscaled to fit; zero disables the limit. Headers
// declaring more than security.Limits.MaxImagePixels are rejected before
// any pixel memory is allocated.
func ImageFromBytes(data []byte, format string, maxPixels int) (*Image, error) {
	decoders := []string{"png", "jpeg"}
	if f := strings.ToLower(format); f == "jpeg" || f == "jpg" {
		decoders = []string{"jpeg", "png"}
	}
	limit := security.DefaultLimits().MaxImagePixels
	var firstErr error
	for _, kind := range decoders {
		decodeConfig, decode := png.DecodeConfig, png.Decode
		if kind == "jpeg" {
			decodeConfig, decode = jpeg.DecodeConfig, jpeg.Decode
		}
		cfg, err := decodeConfig(bytes.NewReader(data))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if int64(cfg.Width)*int64(cfg.Height) > limit {
			return nil, fmt.Errorf("%w: %s %dx%d", ErrImageTooLarge, kind, cfg.Width, cfg.Height)
		}
		img, err := decode(bytes.NewReader(data))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sum := sha256.Sum256(data)
		key := "img:" + hex.EncodeToString(sum[:])
		scaled := Downscale(img, maxPixels)
		if kind == "jpeg" && scaled == img && jpegPassthrough(img) {
			b := img.Bounds()
			return &Image{
				Width:      b.Dx(),
				Height:     b.Dy(),
				Components: jpegComponents(img),
				Data:       append([]byte(nil), data...),
				DCT:        true,
				key:        key,
			}, nil
		}
		out := FromImage(scaled)
		out.key = key
		return out, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, firstErr)
}

// jpegPassthrough reports whether the decoded JPEG can be embedded as-is.
// CMYK needs conversion because inverted Adobe files render wrong under DCT.
func jpegPassthrough(img image.Image) bool {
	switch img.(type) {
	case *image.YCbCr, *image.Gray:
		return true
	}
	return false
}

func jpegComponents(img image.Image) int {
	if _, ok := img.(*image.Gray); ok {
		return 1
	}
	return 3
}

// Downscale resamples img with Catmull-Rom so it has at most maxPixels
// pixels, keeping the aspect ratio. Smaller images are returned unchanged.
func Downscale(img image.Image, maxPixels int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxPixels <= 0 || w*h <= maxPixels {
		return img
	}
	ratio := float64(maxPixels) / float64(w*h)
	nw, nh := int(float64(w)*math.Sqrt(ratio)), int(float64(h)*math.Sqrt(ratio))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// FromImage converts any decoded image to RGB samples plus a soft mask when
// some pixel is not fully opaque.
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba, ok := src.(*image.NRGBA)
	if !ok || nrgba.Bounds().Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)
	}

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := nrgba.NRGBAAt(x, y)
			pixels = append(pixels, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A < 255 {
				hasAlpha = true
			}
		}
	}
	img := &Image{Width: w, Height: h, Components: 3, Data: pixels}
	if hasAlpha {
		img.Alpha = alpha
	}
	return img
}

// CacheKey identifies the image source for resource reuse.
func (img *Image) CacheKey() string {
	if img.key != "" {
		return img.key
	}
	sum := sha256.New()
	fmt.Fprintf(sum, "%dx%dx%d:", img.Width, img.Height, img.Components)
	sum.Write(img.Data)
	sum.Write(img.Alpha)
	return "img:" + hex.EncodeToString(sum.Sum(nil))
}

// Object builds the image XObject stream. The soft mask, when present, is
// added through add as its own object.
func (img *Image) Object(add fonts.ObjectAdder, interpolate bool) raw.Object {
	d := raw.Dict()
	d.Put("Type", raw.NameLiteral("XObject"))
	d.Put("Subtype", raw.NameLiteral("Image"))
	d.Put("Width", raw.NumberInt(int64(img.Width)))
	d.Put("Height", raw.NumberInt(int64(img.Height)))
	d.Put("BitsPerComponent", raw.NumberInt(8))
	d.Put("ColorSpace", raw.NameLiteral(colorSpaceName(img.Components)))
	if interpolate {
		d.Put("Interpolate", raw.Bool(true))
	}
	data := img.Data
	if img.DCT {
		d.Put("Filter", raw.NameLiteral("DCTDecode"))
	} else if packed, err := filters.EncodeFlate(img.Data); err == nil {
		d.Put("Filter", raw.NameLiteral("FlateDecode"))
		data = packed
	}
	if img.Alpha != nil {
		mask := raw.Dict()
		mask.Put("Type", raw.NameLiteral("XObject"))
		mask.Put("Subtype", raw.NameLiteral("Image"))
		mask.Put("Width", raw.NumberInt(int64(img.Width)))
		mask.Put("Height", raw.NumberInt(int64(img.Height)))
		mask.Put("BitsPerComponent", raw.NumberInt(8))
		mask.Put("ColorSpace", raw.NameLiteral("DeviceGray"))
		alpha := img.Alpha
		if packed, err := filters.EncodeFlate(alpha); err == nil {
			mask.Put("Filter", raw.NameLiteral("FlateDecode"))
			alpha = packed
		}
		d.Put("SMask", add.AddObject(raw.NewStream(mask, alpha)))
	}
	return raw.NewStream(d, data)
}

func colorSpaceName(components int) string {
	if components == 1 {
		return "DeviceGray"
	}
	return "DeviceRGB"
}
