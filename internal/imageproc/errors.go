package imageproc

import "errors"

// ErrTooLarge is returned when input bytes, decoded pixel count, or
// dimensions exceed the configured caps (spec §4.C step 1/3).
var ErrTooLarge = errors.New("imageproc: image exceeds size/dimension caps")

// ErrTimeout is returned when SVG rasterization does not finish before its
// deadline (the SVG timeout, or the processing timeout if that ends
// first). Raster decoding, resizing and dithering do not check a deadline.
var ErrTimeout = errors.New("imageproc: image processing timed out")

// ErrUnsupportedFormat is returned when the content type/bytes don't match
// any registered decoder, or when the SVG rasterizer cannot read the
// document.
var ErrUnsupportedFormat = errors.New("imageproc: unsupported image format")
