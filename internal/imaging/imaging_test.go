package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"
)

// noisePNG returns PNG bytes for a deterministic noisy image, which keeps
// JPEG output large enough for size-sensitive tests.
func noisePNG(t *testing.T, w, h int, alpha bool) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := uint8(255)
			if alpha {
				a = uint8(rng.Intn(256))
			}
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: a})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeReportsDimensionsAndMode(t *testing.T) {
	p := NewProcessor()

	img, err := p.Decode(noisePNG(t, 64, 32, false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Width != 64 || img.Height != 32 {
		t.Fatalf("dims = %dx%d, want 64x32", img.Width, img.Height)
	}
	if img.Mode != ModeRGB {
		t.Errorf("mode = %s, want %s", img.Mode, ModeRGB)
	}
	if img.Format != "png" {
		t.Errorf("format = %q, want png", img.Format)
	}

	withAlpha, err := p.Decode(noisePNG(t, 8, 8, true))
	if err != nil {
		t.Fatalf("Decode alpha: %v", err)
	}
	if withAlpha.Mode != ModeRGBA {
		t.Errorf("alpha mode = %s, want %s", withAlpha.Mode, ModeRGBA)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	p := NewProcessor()
	for _, data := range [][]byte{nil, {}, []byte("definitely not an image")} {
		if _, err := p.Decode(data); !errors.Is(err, ErrDecode) {
			t.Errorf("Decode(%q) err = %v, want ErrDecode", data, err)
		}
	}
}

func TestDecodeRejectsOversizedSource(t *testing.T) {
	p := &Processor{MaxPixels: 100}
	if _, err := p.Decode(noisePNG(t, 20, 20, false)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestResizeProducesExactDimensions(t *testing.T) {
	p := NewProcessor()
	src, err := p.Decode(noisePNG(t, 192, 108, false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	cases := []struct{ w, h int }{{80, 60}, {1, 1}, {400, 10}, {192, 108}}
	for _, tc := range cases {
		out, err := p.Resize(src, tc.w, tc.h)
		if err != nil {
			t.Fatalf("Resize(%d,%d): %v", tc.w, tc.h, err)
		}
		if out.Width != tc.w || out.Height != tc.h {
			t.Errorf("Resize(%d,%d) = %dx%d", tc.w, tc.h, out.Width, out.Height)
		}
		if out.Mode != ModeRGB {
			t.Errorf("Resize(%d,%d) mode = %s, want RGB", tc.w, tc.h, out.Mode)
		}
	}

	if _, err := p.Resize(src, 0, 10); err == nil {
		t.Error("expected error for zero width")
	}
}

func TestEncodeJPEGQualityAffectsSize(t *testing.T) {
	p := NewProcessor()
	src, err := p.Decode(noisePNG(t, 128, 128, false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	high, err := p.Encode(src, JPEG, 95)
	if err != nil {
		t.Fatalf("Encode q95: %v", err)
	}
	low, err := p.Encode(src, JPEG, 20)
	if err != nil {
		t.Fatalf("Encode q20: %v", err)
	}
	if len(low) >= len(high) {
		t.Errorf("q20 size %d should be smaller than q95 size %d", len(low), len(high))
	}
	if _, err := jpeg.Decode(bytes.NewReader(low)); err != nil {
		t.Errorf("output is not a valid JPEG: %v", err)
	}
}

func TestEncodePNGRoundTripsDimensions(t *testing.T) {
	p := NewProcessor()
	src, err := p.Decode(noisePNG(t, 30, 20, true))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	data, err := p.Encode(src, PNG, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != 30 || cfg.Height != 20 {
		t.Errorf("dims = %dx%d, want 30x20", cfg.Width, cfg.Height)
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	p := NewProcessor()
	src, err := p.Decode(noisePNG(t, 4, 4, false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := p.Encode(src, Format("tiff"), 90); !errors.Is(err, ErrEncode) {
		t.Fatalf("err = %v, want ErrEncode", err)
	}
}

func TestFlattenCompositesOntoWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 255, A: 255})
	img := wrap(src, "png")
	if img.Mode != ModeRGBA {
		t.Fatalf("mode = %s, want RGBA", img.Mode)
	}

	flat := Flatten(img)
	if flat.Mode != ModeRGB {
		t.Fatalf("flattened mode = %s, want RGB", flat.Mode)
	}
	r, g, b, a := flat.Pixels.At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 || a>>8 != 255 {
		t.Errorf("transparent pixel = (%d,%d,%d,%d), want white", r>>8, g>>8, b>>8, a>>8)
	}
	r, g, b, _ = flat.Pixels.At(1, 0).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("opaque pixel = (%d,%d,%d), want red", r>>8, g>>8, b>>8)
	}

	opaque := &Image{Mode: ModeRGB}
	if Flatten(opaque) != opaque {
		t.Error("Flatten should return images without alpha unchanged")
	}
}

func TestFormatExtension(t *testing.T) {
	if JPEG.Extension() != ".jpg" || PNG.Extension() != ".png" {
		t.Errorf("extensions = %q, %q", JPEG.Extension(), PNG.Extension())
	}
}
