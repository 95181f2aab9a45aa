package imageproc

import (
	"regexp"
	"strconv"
)

var (
	svgWidthRe   = regexp.MustCompile(`(?i)<svg[^>]*\swidth="([0-9.]+)`)
	svgHeightRe  = regexp.MustCompile(`(?i)<svg[^>]*\sheight="([0-9.]+)`)
	svgViewBoxRe = regexp.MustCompile(`(?i)<svg[^>]*\sviewBox="[0-9.\s]+\s+[0-9.\s]+\s+([0-9.]+)\s+([0-9.]+)`)
)

// svgDocumentSize cheaply extracts the notional width/height an SVG
// document declares, without a full XML parse, so the Xiino scaling law
// can be applied before rasterization ever touches the (possibly
// adversarial) shape data inside the document. Falls back to a
// conservative default when neither width/height nor viewBox is present.
func svgDocumentSize(raw []byte) (w, h int) {
	const fallback = 306

	if m := svgWidthRe.FindSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(string(m[1]), 64); err == nil && v > 0 {
			w = int(v)
		}
	}
	if m := svgHeightRe.FindSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(string(m[1]), 64); err == nil && v > 0 {
			h = int(v)
		}
	}
	if w == 0 || h == 0 {
		if m := svgViewBoxRe.FindSubmatch(raw); m != nil {
			if vw, err := strconv.ParseFloat(string(m[1]), 64); err == nil && vw > 0 {
				w = int(vw)
			}
			if vh, err := strconv.ParseFloat(string(m[2]), 64); err == nil && vh > 0 {
				h = int(vh)
			}
		}
	}
	if w <= 0 {
		w = fallback
	}
	if h <= 0 {
		h = fallback
	}
	return w, h
}
