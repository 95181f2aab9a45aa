package imageproc

import (
	"image"
	"image/color"

	"github.com/mrmarble/xiinoproxy/internal/palette"
)

// bayer8x8 is the standard 8x8 ordered dithering threshold matrix,
// normalized to [0,1) by the caller.
var bayer8x8 = [8][8]int{
	{0, 32, 8, 40, 2, 34, 10, 42},
	{48, 16, 56, 24, 50, 18, 58, 26},
	{12, 44, 4, 36, 14, 46, 6, 38},
	{60, 28, 52, 20, 62, 30, 54, 22},
	{3, 35, 11, 43, 1, 33, 9, 41},
	{51, 19, 59, 27, 49, 17, 57, 25},
	{15, 47, 7, 39, 13, 45, 5, 37},
	{63, 31, 55, 23, 61, 29, 53, 21},
}

// Quantize reduces img to the given palette's indices using the
// configured dithering strategy, returning row-major palette indices.
func Quantize(img image.Image, pal *palette.Palette, priority DitherPriority) []uint8 {
	if priority == PriorityPerformance {
		return quantizeOrdered(img, pal)
	}
	return quantizeFloydSteinbergLAB(img, pal)
}

// quantizeFloydSteinbergLAB performs Floyd-Steinberg error diffusion in
// LAB space with serpentine (boustrophedon) traversal to reduce
// directional artifacts (spec §4.C step 5).
func quantizeFloydSteinbergLAB(img image.Image, pal *palette.Palette) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// Working buffer of LAB triples, one per pixel, mutated in place as
	// error diffuses forward.
	type lab struct{ l, a, bb float64 }
	buf := make([]lab, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			c := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: uint8(a >> 8)} //nolint:gosec
			l, aa, bb := palette.ToLab(c)
			buf[y*w+x] = lab{l, aa, bb}
		}
	}

	out := make([]uint8, w*h)

	for y := 0; y < h; y++ {
		leftToRight := y%2 == 0
		xs := make([]int, w)
		for i := range xs {
			if leftToRight {
				xs[i] = i
			} else {
				xs[i] = w - 1 - i
			}
		}

		for _, x := range xs {
			idx := y*w + x
			px := buf[idx]
			rgb := palette.FromLab(px.l, px.a, px.bb)
			nearest := pal.IndexOf(rgb)
			out[idx] = nearest

			nl, na, nb := palette.ToLab(pal.At(int(nearest)))
			errL := px.l - nl
			errA := px.a - na
			errB := px.bb - nb

			// Floyd-Steinberg kernel, mirrored when traversing
			// right-to-left so error still propagates "forward".
			type offset struct {
				dx     int
				weight float64
			}
			var neighbors []offset
			if leftToRight {
				neighbors = []offset{{1, 7.0 / 16}, {-1, 3.0 / 16}, {0, 5.0 / 16}, {1, 1.0 / 16}}
			} else {
				neighbors = []offset{{-1, 7.0 / 16}, {1, 3.0 / 16}, {0, 5.0 / 16}, {-1, 1.0 / 16}}
			}

			diffuse := func(dx, dy int, weight float64) {
				nx, ny := x+dx, y+dy
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					return
				}
				n := &buf[ny*w+nx]
				n.l += errL * weight
				n.a += errA * weight
				n.bb += errB * weight
			}

			// Same-row neighbor (index 0 of neighbors) plus next row.
			diffuse(neighbors[0].dx, 0, neighbors[0].weight)
			diffuse(neighbors[1].dx, 1, neighbors[1].weight)
			diffuse(neighbors[2].dx, 1, neighbors[2].weight)
			diffuse(neighbors[3].dx, 1, neighbors[3].weight)
		}
	}

	return out
}

// quantizeOrdered performs ordered 8x8 Bayer dithering: no error
// propagation, fully vectorizable, used in performance mode.
func quantizeOrdered(img image.Image, pal *palette.Palette) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			c := color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: uint8(a >> 8)} //nolint:gosec

			threshold := float64(bayer8x8[y%8][x%8])/64 - 0.5 // centered around 0
			const spread = 24.0                                // perturbation magnitude in 0-255 space
			jitter := threshold * spread

			jittered := color.RGBA{
				R: clampAdd(c.R, jitter),
				G: clampAdd(c.G, jitter),
				B: clampAdd(c.B, jitter),
				A: c.A,
			}
			out[y*w+x] = pal.IndexOf(jittered)
		}
	}
	return out
}

func clampAdd(v uint8, delta float64) uint8 {
	n := float64(v) + delta
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n) //nolint:gosec
}
