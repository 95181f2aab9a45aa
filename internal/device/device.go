// Package device derives an immutable per-request device profile from the
// client's user-agent or query parameters, and maps that profile to the
// palette it should render against. Adapted from the teacher's
// pkg/theme, which resolves a fixed Theme from one of a small set of
// named/validated sources the same way a device profile resolves from a
// small set of recognized Xiino variants.
package device

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mrmarble/xiinoproxy/internal/palette"
)

// ColorDepth names the device's display capability.
type ColorDepth int

const (
	Monochrome ColorDepth = iota
	Gray4
	Indexed8
)

// DefaultScreenWidth is the Xiino-downscaled default screen width in
// pixels (306px physical / 2).
const DefaultScreenWidth = 153

// DefaultMaxPageWeight is the default page weight cap in bytes when
// XIINOPROXY_MAX_PAGE_WEIGHT is not set.
const DefaultMaxPageWeight = 512 * 1024

// Profile is the immutable per-request device description.
type Profile struct {
	ScreenWidth   int
	ColorDepth    ColorDepth
	MaxPageWeight int
}

// Palette returns the color/grayscale/monochrome palette matching this
// profile's color depth.
func (p Profile) Palette() *palette.Palette {
	switch p.ColorDepth {
	case Indexed8:
		return palette.ColorPalette()
	case Gray4:
		return palette.GrayscalePalette()
	default:
		return palette.MonochromePalette()
	}
}

var xiinoUA = regexp.MustCompile(`(?i)xiino|palmscape`)

// FromRequest derives a Profile from a user-agent string and optional
// query parameters. Unrecognized or malformed values fall back to
// documented defaults, per spec §6's "invalid values fall back to
// documented defaults" parsing policy applied here to per-request
// detection rather than process config.
func FromRequest(userAgent string, query url.Values) Profile {
	p := Profile{
		ScreenWidth:   DefaultScreenWidth,
		ColorDepth:    Indexed8,
		MaxPageWeight: DefaultMaxPageWeight,
	}

	if w := query.Get("w"); w != "" {
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			p.ScreenWidth = n
		}
	}

	if depth := strings.ToLower(query.Get("depth")); depth != "" {
		switch depth {
		case "1", "mono", "monochrome":
			p.ColorDepth = Monochrome
		case "4", "gray", "grey", "gray4":
			p.ColorDepth = Gray4
		case "8", "color", "indexed8":
			p.ColorDepth = Indexed8
		}
	} else if !xiinoUA.MatchString(userAgent) {
		// No recognizable Xiino token and no explicit override: assume
		// the richest capability so local testing/tools get full color.
		p.ColorDepth = Indexed8
	}

	if strings.Contains(strings.ToLower(userAgent), "palmos 3") {
		// Palm OS 3.x devices in the field are monochrome-only.
		p.ColorDepth = Monochrome
	}

	return p
}
