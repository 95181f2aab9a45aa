package ebd

import (
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestEncodeByteSizeInvariant(t *testing.T) {
	cases := []struct {
		w, h  int
		depth Depth
	}{
		{16, 16, Depth1},
		{17, 16, Depth1}, // non-byte-aligned width
		{10, 10, Depth4},
		{153, 102, Depth8},
		{1, 1, Depth8},
	}
	for _, c := range cases {
		indices := make([]uint8, c.w*c.h)
		img, err := Encode(c.w, c.h, c.depth, indices)
		if err != nil {
			t.Fatalf("Encode(%d,%d,%d): %v", c.w, c.h, c.depth, err)
		}
		want := ByteSize(c.w, c.h, c.depth)
		if len(img.Bytes) != want {
			t.Errorf("Encode(%d,%d,%d): got %d bytes, want %d", c.w, c.h, c.depth, len(img.Bytes), want)
		}
	}
}

func TestEncodeInvalidPixelIndex(t *testing.T) {
	indices := []uint8{0, 1, 2, 3} // 2 exceeds max for depth 1 (max=1)
	_, err := Encode(2, 2, Depth1, indices)
	if !errors.Is(err, ErrInvalidPixelIndex) {
		t.Fatalf("expected ErrInvalidPixelIndex, got %v", err)
	}
}

// TestRoundTrip is spec property P3: quantize -> encode -> decode recovers
// exact pixel indices for any in-palette image.
func TestRoundTrip(t *testing.T) {
	depths := []Depth{Depth1, Depth2, Depth4, Depth8}
	for _, depth := range depths {
		maxVal := uint8((1 << depth) - 1)
		w, h := 9, 5
		indices := make([]uint8, w*h)
		for i := range indices {
			indices[i] = uint8(i % (int(maxVal) + 1)) //nolint:gosec
		}

		img, err := Encode(w, h, depth, indices)
		if err != nil {
			t.Fatalf("depth %d: Encode: %v", depth, err)
		}

		got := Decode(img)
		for i := range indices {
			if got[i] != indices[i] {
				t.Fatalf("depth %d: round trip mismatch at %d: got %d, want %d", depth, i, got[i], indices[i])
			}
		}
	}
}

func TestEncodeDimensionMismatch(t *testing.T) {
	_, err := Encode(4, 4, Depth8, make([]uint8, 10))
	if err == nil {
		t.Fatal("expected error for mismatched index buffer length")
	}
}

func TestSerializeGolden(t *testing.T) {
	g := goldie.New(t)
	indices := make([]uint8, 4*4)
	for i := range indices {
		indices[i] = uint8(i % 16)
	}
	img, err := Encode(4, 4, Depth4, indices)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	payload := Serialize(img)
	g.Assert(t, "serialize_4x4_depth4", []byte(payload))
}

func TestSerializeHeaderLayout(t *testing.T) {
	img, err := Encode(2, 3, Depth8, make([]uint8, 6))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	payload := Serialize(img)
	// header is 5 bytes = 10 hex chars: depth(1) width(2 BE) height(2 BE)
	want := "08" + "0002" + "0003"
	if payload[:10] != want {
		t.Fatalf("header mismatch: got %s, want %s", payload[:10], want)
	}
}
