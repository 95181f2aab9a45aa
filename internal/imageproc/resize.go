package imageproc

import (
	"image"

	"golang.org/x/image/draw"
)

// xiinoTargetSize applies the Xiino scaling law (spec §4.C step 4):
// if the source is wider than 306px, downscale to a 153px-wide target;
// otherwise halve it (minimum 1px). Height scales by the same ratio.
func xiinoTargetSize(srcW, srcH int) (w, h int) {
	var targetW int
	if srcW > 306 {
		targetW = 153
	} else {
		targetW = srcW / 2
		if targetW < 1 {
			targetW = 1
		}
	}

	targetH := int(float64(srcH) * float64(targetW) / float64(srcW))
	if targetH < 1 {
		targetH = 1
	}
	return targetW, targetH
}

// resize scales src to the Xiino target size using the resampler matching
// the configured dither priority: CatmullRom (the closest ecosystem
// equivalent to Lanczos-3 available in golang.org/x/image/draw) for
// quality, BiLinear for performance.
func resize(src image.Image, priority DitherPriority) (*image.RGBA, int, int) {
	b := src.Bounds()
	targetW, targetH := xiinoTargetSize(b.Dx(), b.Dy())

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))

	scaler := draw.BiLinear
	if priority == PriorityQuality {
		scaler = draw.CatmullRom
	}
	scaler.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	return dst, targetW, targetH
}
