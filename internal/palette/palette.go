// Package palette provides the fixed Xiino color palettes and the LAB-space
// nearest-color lookup used to quantize images before EBDImage encoding.
package palette

import (
	"image/color"
	"math"
	"sync"
)

// Depth is the number of bits per pixel a palette's indices require.
type Depth uint8

const (
	Depth1 Depth = 1
	Depth2 Depth = 2
	Depth4 Depth = 4
	Depth8 Depth = 8
)

// Palette is a fixed, ordered sequence of colors. Entry order is wire-level
// meaningful: ordinal index is what gets packed into EBDImage bytes.
// Immutable once built.
type Palette struct {
	entries []color.RGBA
	depth   Depth
	lab     []labColor
	cube    []uint8 // 32x32x32 bucket -> nearest index, precomputed once
}

const cubeBits = 5 // 32 buckets per channel
const cubeSize = 1 << cubeBits

// labColor is a color in CIE L*a*b* space.
type labColor struct {
	l, a, b float64
}

// Len returns the number of entries in the palette.
func (p *Palette) Len() int { return len(p.entries) }

// Depth returns the bits-per-pixel this palette's indices require.
func (p *Palette) Depth() Depth { return p.depth }

// At returns the color at the given palette index.
func (p *Palette) At(index int) color.RGBA { return p.entries[index] }

// colorOnce/grayOnce/monoOnce guard the three process-wide palettes so
// each (and its 32x32x32 lookup cube) is built exactly once at first use
// and shared read-only afterwards (spec §5: "Palettes and LAB lookup
// cubes are process-wide, initialized once at startup, read-only
// afterwards; no synchronization needed").
var (
	colorOnce sync.Once
	colorP    *Palette
	grayOnce  sync.Once
	grayP     *Palette
	monoOnce  sync.Once
	monoP     *Palette
)

// ColorPalette returns the 256-entry "Palm web-safe" palette for
// color-capable devices, built once and cached.
func ColorPalette() *Palette {
	colorOnce.Do(func() { colorP = buildColorPalette() })
	return colorP
}

func buildColorPalette() *Palette {
	entries := make([]color.RGBA, 0, 256)

	// 16 standard low colors, matching common web-safe terminals.
	entries = append(entries,
		color.RGBA{0, 0, 0, 255}, color.RGBA{128, 0, 0, 255},
		color.RGBA{0, 128, 0, 255}, color.RGBA{128, 128, 0, 255},
		color.RGBA{0, 0, 128, 255}, color.RGBA{128, 0, 128, 255},
		color.RGBA{0, 128, 128, 255}, color.RGBA{192, 192, 192, 255},
		color.RGBA{128, 128, 128, 255}, color.RGBA{255, 0, 0, 255},
		color.RGBA{0, 255, 0, 255}, color.RGBA{255, 255, 0, 255},
		color.RGBA{0, 0, 255, 255}, color.RGBA{255, 0, 255, 255},
		color.RGBA{0, 255, 255, 255}, color.RGBA{255, 255, 255, 255},
	)

	// 16-231: 6x6x6 web-safe color cube.
	cubeValue := func(i int) uint8 {
		return uint8(i * 51) //nolint:gosec // i in [0,5], 51*5=255
	}
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				entries = append(entries, color.RGBA{
					R: cubeValue(r), G: cubeValue(g), B: cubeValue(b), A: 255,
				})
			}
		}
	}

	// 232-255: grayscale ramp.
	for i := 0; i < 24; i++ {
		gray := uint8(8 + i*10) //nolint:gosec // i in [0,23]
		entries = append(entries, color.RGBA{R: gray, G: gray, B: gray, A: 255})
	}

	return build(entries, Depth8)
}

// GrayscalePalette returns the 16-entry grayscale palette for 4-bit gray
// devices, built once and cached.
func GrayscalePalette() *Palette {
	grayOnce.Do(func() { grayP = buildGrayscalePalette() })
	return grayP
}

func buildGrayscalePalette() *Palette {
	entries := make([]color.RGBA, 16)
	for i := range entries {
		v := uint8(i * 17) //nolint:gosec // i in [0,15], 17*15=255
		entries[i] = color.RGBA{R: v, G: v, B: v, A: 255}
	}
	return build(entries, Depth4)
}

// MonochromePalette returns the 2-entry black/white palette for 1bpp
// devices, built once and cached.
func MonochromePalette() *Palette {
	monoOnce.Do(func() { monoP = buildMonochromePalette() })
	return monoP
}

func buildMonochromePalette() *Palette {
	entries := []color.RGBA{
		{0, 0, 0, 255},
		{255, 255, 255, 255},
	}
	return build(entries, Depth1)
}

func build(entries []color.RGBA, depth Depth) *Palette {
	p := &Palette{entries: entries, depth: depth}
	p.lab = make([]labColor, len(entries))
	for i, c := range entries {
		p.lab[i] = rgbToLab(c)
	}
	p.precomputeCube()
	return p
}

// precomputeCube fills a 32x32x32 lookup cube mapping quantized sRGB
// buckets to the nearest palette index, so per-pixel queries for colors
// that are not palette entries become a single bit-masked table read
// instead of a LAB conversion.
func (p *Palette) precomputeCube() {
	p.cube = make([]uint8, cubeSize*cubeSize*cubeSize)
	shift := 8 - cubeBits
	for ri := 0; ri < cubeSize; ri++ {
		for gi := 0; gi < cubeSize; gi++ {
			for bi := 0; bi < cubeSize; bi++ {
				c := color.RGBA{
					R: uint8(ri<<shift | ri>>(cubeBits-shift)), //nolint:gosec
					G: uint8(gi<<shift | gi>>(cubeBits-shift)), //nolint:gosec
					B: uint8(bi<<shift | bi>>(cubeBits-shift)), //nolint:gosec
					A: 255,
				}
				idx := ((ri<<cubeBits)+gi)<<cubeBits + bi
				p.cube[idx] = uint8(p.nearestSlow(c)) //nolint:gosec
			}
		}
	}
}

// IndexOf returns the palette index for rgb. A color equal to a palette
// entry (alpha ignored) maps to the lowest index holding that color. Any
// other color is looked up in the precomputed cube, which gives the entry
// nearest in LAB space to the representative color of rgb's 32-level
// bucket. Ties break toward the lower index.
func (p *Palette) IndexOf(rgb color.RGBA) uint8 {
	for i, c := range p.entries {
		if c.R == rgb.R && c.G == rgb.G && c.B == rgb.B {
			return uint8(i) //nolint:gosec // at most 256 entries
		}
	}
	shift := 8 - cubeBits
	ri := int(rgb.R) >> shift
	gi := int(rgb.G) >> shift
	bi := int(rgb.B) >> shift
	idx := ((ri<<cubeBits)+gi)<<cubeBits + bi
	return p.cube[idx]
}

// nearestSlow computes the true nearest palette index by exhaustive LAB
// distance, used only during cube precomputation.
func (p *Palette) nearestSlow(rgb color.RGBA) int {
	target := rgbToLab(rgb)
	best := 0
	bestDist := math.Inf(1)
	for i, lc := range p.lab {
		d := labDistance(target, lc)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// LabDistance returns the CIE76 Euclidean distance between two sRGB colors
// in LAB space, exposed for error-diffusion dithering which accumulates
// error in LAB components rather than RGB.
func LabDistance(a, b color.RGBA) float64 {
	return labDistance(rgbToLab(a), rgbToLab(b))
}

// ToLab converts an sRGB color to CIE L*a*b*, exposed so dithering can
// accumulate quantization error in LAB space.
func ToLab(c color.RGBA) (l, a, b float64) {
	lc := rgbToLab(c)
	return lc.l, lc.a, lc.b
}

// FromLab converts a LAB triple back to the nearest representable sRGB
// color, used to turn an error-adjusted LAB pixel back into RGB before
// palette lookup during dithering.
func FromLab(l, a, b float64) color.RGBA {
	return labToRGB(labColor{l, a, b})
}

func labDistance(a, b labColor) float64 {
	dl := a.l - b.l
	da := a.a - b.a
	db := a.b - b.b
	return math.Sqrt(dl*dl + da*da + db*db)
}

// rgbToLab converts sRGB (via linearization and D65 XYZ) to CIE L*a*b*.
func rgbToLab(c color.RGBA) labColor {
	r := linearize(float64(c.R) / 255)
	g := linearize(float64(c.G) / 255)
	b := linearize(float64(c.B) / 255)

	// sRGB -> XYZ (D65)
	x := r*0.4124564 + g*0.3575761 + b*0.1804375
	y := r*0.2126729 + g*0.7151522 + b*0.0721750
	z := r*0.0193339 + g*0.1191920 + b*0.9503041

	const (
		xn = 0.95047
		yn = 1.00000
		zn = 1.08883
	)

	fx := labF(x / xn)
	fy := labF(y / yn)
	fz := labF(z / zn)

	return labColor{
		l: 116*fy - 16,
		a: 500 * (fx - fy),
		b: 200 * (fy - fz),
	}
}

func labToRGB(lc labColor) color.RGBA {
	fy := (lc.l + 16) / 116
	fx := fy + lc.a/500
	fz := fy - lc.b/200

	const (
		xn = 0.95047
		yn = 1.00000
		zn = 1.08883
	)

	x := xn * labFInv(fx)
	y := yn * labFInv(fy)
	z := zn * labFInv(fz)

	r := x*3.2404542 + y*-1.5371385 + z*-0.4985314
	g := x*-0.9692660 + y*1.8760108 + z*0.0415560
	b := x*0.0556434 + y*-0.2040259 + z*1.0572252

	return color.RGBA{
		R: delinearizeClamp(r),
		G: delinearizeClamp(g),
		B: delinearizeClamp(b),
		A: 255,
	}
}

func linearize(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

func delinearize(v float64) float64 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func delinearizeClamp(v float64) uint8 {
	v = delinearize(v)
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(math.Round(v * 255)) //nolint:gosec
}

func labF(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return math.Cbrt(t)
	}
	return t/(3*delta*delta) + 4.0/29.0
}

func labFInv(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta {
		return t * t * t
	}
	return 3 * delta * delta * (t - 4.0/29.0)
}
