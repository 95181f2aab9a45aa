// Package imageproc implements the image pipeline (spec §4.C): decode,
// bound, resize, dither-quantize, and encode a fetched image into an
// EBDImage, under a shared request budget. CPU-bound stages are meant to
// run on the orchestrator's worker pool, never on the I/O loop (spec §5).
//
// Grounded on the teacher's pkg/raster/paletted.go worker-pool renderer:
// its per-item pipeline, generalized from "one IR frame -> one paletted
// image" to "one fetched image -> one EBDImage". This package runs one
// image at a time; the bounded worker pool lives in internal/orchestrator.
package imageproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/mrmarble/xiinoproxy/internal/budget"
	"github.com/mrmarble/xiinoproxy/internal/device"
	"github.com/mrmarble/xiinoproxy/internal/ebd"
)

// Result is what a successful Transcode call hands back to the HTML
// transcoder: the encoded bitmap plus the attribute values it should
// splice onto the rewritten <IMG> tag.
type Result struct {
	Image            *ebd.Image
	EBDWidth         int
	EBDHeight        int
	SerializedSource string
}

// Processor runs the image pipeline against a fixed configuration and SVG
// rasterizer collaborator.
type Processor struct {
	cfg        Config
	rasterizer SVGRasterizer
}

// New creates a Processor. A nil rasterizer uses DefaultSVGRasterizer.
func New(cfg Config, rasterizer SVGRasterizer) *Processor {
	if rasterizer == nil {
		rasterizer = DefaultSVGRasterizer()
	}
	return &Processor{cfg: cfg, rasterizer: rasterizer}
}

// Transcode runs the full pipeline: admission, decode, bounds check,
// resize, dither/quantize, encode, and budget accounting.
func (p *Processor) Transcode(ctx context.Context, raw []byte, contentType string, dev device.Profile, b *budget.Budget) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProcTimeout)
	defer cancel()

	isSVG := strings.Contains(contentType, "svg")

	// 1. Admission.
	if isSVG {
		if int64(len(raw)) > p.cfg.MaxSVGSize {
			return nil, fmt.Errorf("%w: svg %d bytes exceeds IMAGE_MAX_SVG_SIZE", ErrTooLarge, len(raw))
		}
	} else if int64(len(raw)) > p.cfg.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds IMAGE_MAX_SIZE", ErrTooLarge, len(raw))
	}

	var decoded image.Image
	var err error

	if isSVG {
		decoded, err = p.decodeSVG(ctx, raw)
	} else {
		decoded, err = p.decodeRaster(raw, contentType)
	}
	if err != nil {
		return nil, err
	}

	pal := dev.Palette()

	var resized *image.RGBA
	var targetW, targetH int
	if isSVG {
		// SVG was already rasterized directly at the final resolution
		// (spec §4.C step 2: "rasterize at final resolution ... to avoid
		// blowups"), so there is nothing left to resize.
		rgba, ok := decoded.(*image.RGBA)
		if !ok {
			rgba = toRGBA(decoded)
		}
		resized = rgba
		b2 := decoded.Bounds()
		targetW, targetH = b2.Dx(), b2.Dy()
	} else {
		// 3. Bounds check (raster path only - SVG never decodes to a
		// full-resolution raster buffer).
		db := decoded.Bounds()
		srcW, srcH := db.Dx(), db.Dy()
		if int64(srcW)*int64(srcH) > p.cfg.MaxPixels || srcW > p.cfg.MaxDimension || srcH > p.cfg.MaxDimension {
			return nil, fmt.Errorf("%w: decoded %dx%d exceeds caps", ErrTooLarge, srcW, srcH)
		}

		// 4. Resize.
		resized, targetW, targetH = resize(decoded, p.cfg.DitherPriority)
	}

	// 5. Quantize & dither.
	indices := Quantize(resized, pal, p.cfg.DitherPriority)

	// 6. Encode.
	img, err := ebd.Encode(targetW, targetH, ebd.Depth(pal.Depth()), indices)
	if err != nil {
		return nil, err
	}

	// 7. Account.
	encodedSize := int64(len(img.Bytes))
	if !b.TryConsumeBytes(encodedSize) {
		return nil, fmt.Errorf("%w: image would exceed remaining page budget", ErrTooLarge)
	}
	if !b.ConsumeImage() {
		return nil, fmt.Errorf("%w: image count budget exhausted", ErrTooLarge)
	}

	return &Result{
		Image:            img,
		EBDWidth:         targetW,
		EBDHeight:        targetH,
		SerializedSource: ebd.Serialize(img),
	}, nil
}

func (p *Processor) decodeRaster(raw []byte, contentType string) (image.Image, error) {
	if strings.Contains(contentType, "webp") {
		img, err := webp.Decode(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: webp decode: %v", ErrUnsupportedFormat, err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, nil
}

func (p *Processor) decodeSVG(ctx context.Context, raw []byte) (image.Image, error) {
	notionalW, notionalH := svgDocumentSize(raw)
	targetW, targetH := xiinoTargetSize(notionalW, notionalH)

	rctx, cancel := context.WithTimeout(ctx, p.cfg.SVGTimeout)
	defer cancel()

	img, err := p.rasterizer.Rasterize(rctx, raw, targetW, targetH)
	if err != nil {
		if errors.Is(err, ErrTimeout) || rctx.Err() != nil {
			return nil, fmt.Errorf("%w: svg rasterize: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: svg rasterize: %v", ErrUnsupportedFormat, err)
	}
	return img, nil
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}
