package imageproc

import "time"

// DitherPriority selects the resampling/dithering trade-off (spec §4.C
// steps 4-5), analogous to IMAGE_DITHER_PRIORITY.
type DitherPriority int

const (
	// PriorityQuality uses Lanczos-equivalent (CatmullRom) resampling and
	// Floyd-Steinberg error diffusion in LAB space.
	PriorityQuality DitherPriority = iota
	// PriorityPerformance uses bilinear resampling and ordered 8x8 Bayer
	// dithering (no error propagation, fully vectorizable).
	PriorityPerformance
)

// Config holds the caps and mode switches that govern the image pipeline.
// The names in the field comments are the settings each field stands for;
// internal/config reads none of them, and cmd/xiinoproxy/serve uses
// DefaultConfig unchanged.
type Config struct {
	MaxSize       int64 // IMAGE_MAX_SIZE: input byte cap for raster images
	MaxSVGSize    int64 // IMAGE_MAX_SVG_SIZE: input byte cap for SVG
	MaxPixels     int64 // IMAGE_MAX_PIXELS: decoded width*height cap
	MaxDimension  int   // IMAGE_MAX_DIMENSION: decoded width or height cap
	SVGTimeout    time.Duration
	ProcTimeout   time.Duration // IMAGE_PROCESSING_TIMEOUT
	DitherPriority DitherPriority
}

// DefaultConfig returns the documented default caps.
func DefaultConfig() Config {
	return Config{
		MaxSize:        5 * 1024 * 1024,
		MaxSVGSize:     512 * 1024,
		MaxPixels:      20_000_000,
		MaxDimension:   8192,
		SVGTimeout:     2 * time.Second,
		ProcTimeout:    10 * time.Second,
		DitherPriority: PriorityQuality,
	}
}
