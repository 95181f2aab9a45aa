package imageproc

import (
	"bytes"
	"context"
	"image"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// SVGRasterizer is the external SVG rendering collaborator (spec §1: "the
// SVG rasterizer is assumed external; their contracts are specified but
// not their implementation"). Rasterize must render directly at
// width x height - the caller always passes the already-computed
// post-resize target size, never the SVG's own notional size, to avoid
// the decompression-bomb style blowup described in spec scenario S4.
type SVGRasterizer interface {
	Rasterize(ctx context.Context, svgBytes []byte, width, height int) (image.Image, error)
}

// oksvgRasterizer adapts github.com/srwiley/oksvg + github.com/srwiley/rasterx
// to the SVGRasterizer interface.
type oksvgRasterizer struct{}

// DefaultSVGRasterizer returns the production SVGRasterizer.
func DefaultSVGRasterizer() SVGRasterizer { return oksvgRasterizer{} }

func (oksvgRasterizer) Rasterize(ctx context.Context, svgBytes []byte, width, height int) (image.Image, error) {
	type result struct {
		img image.Image
		err error
	}
	done := make(chan result, 1)

	go func() {
		icon, err := oksvg.ReadIconStream(bytes.NewReader(svgBytes))
		if err != nil {
			done <- result{nil, err}
			return
		}
		icon.SetTarget(0, 0, float64(width), float64(height))

		img := image.NewRGBA(image.Rect(0, 0, width, height))
		scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
		raster := rasterx.NewDasher(width, height, scanner)
		icon.Draw(raster, 1.0)

		done <- result{img, nil}
	}()

	select {
	case r := <-done:
		return r.img, r.err
	case <-ctx.Done():
		return nil, ErrTimeout
	}
}
