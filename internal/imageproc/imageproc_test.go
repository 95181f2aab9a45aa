package imageproc

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"testing"
	"time"

	"github.com/mrmarble/xiinoproxy/internal/budget"
	"github.com/mrmarble/xiinoproxy/internal/device"
)

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255}) //nolint:gosec
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func testBudget() *budget.Budget {
	return budget.New(1<<20, 100, time.Now().Add(time.Minute))
}

// TestXiinoScalingLaw exercises spec scenario S1: a 600x400 source image
// should resize to 153x102 (width clamps to 153, height scales by ratio).
func TestXiinoScalingLaw(t *testing.T) {
	w, h := xiinoTargetSize(600, 400)
	if w != 153 {
		t.Errorf("width: got %d, want 153", w)
	}
	if h != 102 {
		t.Errorf("height: got %d, want 102", h)
	}
}

func TestXiinoScalingLawSmallImage(t *testing.T) {
	w, h := xiinoTargetSize(100, 50)
	if w != 50 || h != 25 {
		t.Errorf("got %dx%d, want 50x25", w, h)
	}
}

func TestXiinoScalingLawMinimumOnePixel(t *testing.T) {
	w, _ := xiinoTargetSize(1, 1)
	if w < 1 {
		t.Errorf("width must be at least 1, got %d", w)
	}
}

func TestTranscodeRasterProducesEBDWithAttrs(t *testing.T) {
	proc := New(DefaultConfig(), nil)
	raw := samplePNG(t, 600, 400)
	dev := device.FromRequest("Xiino/7.1", url.Values{})

	result, err := proc.Transcode(context.Background(), raw, "image/png", dev, testBudget())
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if result.EBDWidth != 153 || result.EBDHeight != 102 {
		t.Errorf("got %dx%d, want 153x102", result.EBDWidth, result.EBDHeight)
	}
	wantBPP := dev.Palette().Depth()
	if uint8(result.Image.Depth) != uint8(wantBPP) {
		t.Errorf("got depth %d, want %d", result.Image.Depth, wantBPP)
	}
}

func TestTranscodeRejectsOversizedInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSize = 10
	proc := New(cfg, nil)
	raw := samplePNG(t, 50, 50)
	dev := device.FromRequest("Xiino/7.1", url.Values{})

	_, err := proc.Transcode(context.Background(), raw, "image/png", dev, testBudget())
	if err == nil {
		t.Fatal("expected TooLarge error")
	}
}

func TestTranscodeRejectsOverBudget(t *testing.T) {
	proc := New(DefaultConfig(), nil)
	raw := samplePNG(t, 600, 400)
	dev := device.FromRequest("Xiino/7.1", url.Values{})

	tinyBudget := budget.New(1, 10, time.Now().Add(time.Minute))
	_, err := proc.Transcode(context.Background(), raw, "image/png", dev, tinyBudget)
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
}

type fakeRasterizer struct {
	img image.Image
	err error
}

func (f fakeRasterizer) Rasterize(_ context.Context, _ []byte, w, h int) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func TestTranscodeSVGUsesFinalResolutionTarget(t *testing.T) {
	proc := New(DefaultConfig(), fakeRasterizer{})
	svg := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="600" height="400"><rect width="1000000" height="1000000"/></svg>`)
	dev := device.FromRequest("Xiino/7.1", url.Values{})

	result, err := proc.Transcode(context.Background(), svg, "image/svg+xml", dev, testBudget())
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if result.EBDWidth != 153 || result.EBDHeight != 102 {
		t.Errorf("got %dx%d, want 153x102", result.EBDWidth, result.EBDHeight)
	}
}

// TestTranscodeSVGRejectsOversizedDocument covers scenario S4: a huge
// embedded shape must never blow up memory; the document byte-size cap
// catches it at admission regardless of what the shape data claims.
func TestTranscodeSVGRejectsOversizedDocument(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSVGSize = 16
	proc := New(cfg, fakeRasterizer{})
	svg := []byte(`<svg width="10" height="10"><rect width="999999999" height="999999999"/></svg>`)
	dev := device.FromRequest("Xiino/7.1", url.Values{})

	_, err := proc.Transcode(context.Background(), svg, "image/svg+xml", dev, testBudget())
	if err == nil {
		t.Fatal("expected TooLarge for oversized SVG document")
	}
}

func TestQuantizeProducesInPaletteIndices(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 10, A: 255}) //nolint:gosec
		}
	}
	dev := device.FromRequest("Xiino/7.1", url.Values{"depth": {"color"}})
	pal := dev.Palette()

	for _, priority := range []DitherPriority{PriorityQuality, PriorityPerformance} {
		indices := Quantize(img, pal, priority)
		if len(indices) != 16 {
			t.Fatalf("priority %d: expected 16 indices, got %d", priority, len(indices))
		}
		for _, idx := range indices {
			if int(idx) >= pal.Len() {
				t.Fatalf("priority %d: index %d out of palette range %d", priority, idx, pal.Len())
			}
		}
	}
}
