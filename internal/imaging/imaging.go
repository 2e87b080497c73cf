// Package imaging decodes, resamples and re-encodes raster images.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Format is an output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// Extension returns the file extension (with dot) used for the format.
func (f Format) Extension() string {
	if f == JPEG {
		return ".jpg"
	}
	return ".png"
}

// Mode describes the color layout of a decoded image.
type Mode string

const (
	ModeRGB      Mode = "RGB"
	ModeRGBA     Mode = "RGBA"
	ModeGray     Mode = "L"
	ModeCMYK     Mode = "CMYK"
	ModePaletted Mode = "P"
)

// HasAlpha reports whether images in this mode carry transparency that an
// encoder without alpha support would have to drop.
func (m Mode) HasAlpha() bool { return m == ModeRGBA }

// DefaultMaxPixels bounds the decoded area (width*height) accepted by Decode.
const DefaultMaxPixels = 64 * 1000 * 1000

var (
	ErrDecode   = errors.New("decode image")
	ErrEncode   = errors.New("encode image")
	ErrTooLarge = errors.New("image too large")
)

// Image is a decoded pixel buffer plus the metadata the resizer needs.
type Image struct {
	Pixels image.Image
	Width  int
	Height int
	Mode   Mode
	// Format is the source encoding reported by the decoder ("png", "jpeg", ...).
	// Empty for images produced by Resize.
	Format string
}

// Codec is the set of image primitives the conversation core consumes.
type Codec interface {
	Decode(data []byte) (*Image, error)
	Resize(img *Image, width, height int) (*Image, error)
	Encode(img *Image, format Format, quality int) ([]byte, error)
}

// Processor is the default Codec built on the standard decoders and the
// Catmull-Rom resampler from golang.org/x/image/draw.
type Processor struct {
	// MaxPixels rejects sources larger than this many pixels. Zero means
	// DefaultMaxPixels; negative disables the check.
	MaxPixels int
}

// NewProcessor returns a Processor with default limits.
func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) maxPixels() int {
	if p == nil || p.MaxPixels == 0 {
		return DefaultMaxPixels
	}
	return p.MaxPixels
}

// Decode parses PNG, JPEG, GIF or WebP bytes.
func (p *Processor) Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty dimensions %dx%d", ErrDecode, cfg.Width, cfg.Height)
	}
	if limit := p.maxPixels(); limit > 0 && cfg.Width*cfg.Height > limit {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, limit)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return wrap(img, format), nil
}

// Resize resamples img to exactly width x height.
func (p *Processor) Resize(img *Image, width, height int) (*Image, error) {
	if img == nil || img.Pixels == nil {
		return nil, fmt.Errorf("resize: no source image")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("resize: invalid target %dx%d", width, height)
	}

	src := img.Pixels
	rect := image.Rect(0, 0, width, height)
	var dst draw.Image
	switch img.Mode {
	case ModeGray:
		dst = image.NewGray(rect)
	case ModeRGBA:
		dst = image.NewNRGBA(rect)
	default:
		dst = image.NewRGBA(rect)
	}
	draw.CatmullRom.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)

	out := wrap(dst, "")
	if img.Mode != ModeRGBA && out.Mode == ModeRGBA {
		// Resampling an opaque source never introduces transparency.
		out.Mode = ModeRGB
	}
	return out, nil
}

// Encode writes img in the requested format. quality applies to JPEG only
// and is clamped to 1..100. Images with alpha are flattened before JPEG
// encoding.
func (p *Processor) Encode(img *Image, format Format, quality int) ([]byte, error) {
	if img == nil || img.Pixels == nil {
		return nil, fmt.Errorf("%w: no image", ErrEncode)
	}

	var buf bytes.Buffer
	switch format {
	case PNG:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := enc.Encode(&buf, img.Pixels); err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrEncode, err)
		}
	case JPEG:
		if quality < 1 {
			quality = 1
		}
		if quality > 100 {
			quality = 100
		}
		flat := Flatten(img)
		if err := jpeg.Encode(&buf, flat.Pixels, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("%w: jpeg q=%d: %v", ErrEncode, quality, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrEncode, format)
	}
	return buf.Bytes(), nil
}

// Flatten returns img composited onto an opaque white background so that it
// can be encoded by formats without an alpha channel. Images without alpha
// are returned unchanged.
func Flatten(img *Image) *Image {
	if img == nil || !img.Mode.HasAlpha() {
		return img
	}
	if img.Pixels == nil {
		flat := *img
		flat.Mode = ModeRGB
		return &flat
	}

	b := img.Pixels.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img.Pixels, b.Min, draw.Over)
	return &Image{
		Pixels: dst,
		Width:  b.Dx(),
		Height: b.Dy(),
		Mode:   ModeRGB,
		Format: img.Format,
	}
}

func wrap(img image.Image, format string) *Image {
	b := img.Bounds()
	return &Image{
		Pixels: img,
		Width:  b.Dx(),
		Height: b.Dy(),
		Mode:   modeOf(img),
		Format: format,
	}
}

func modeOf(img image.Image) Mode {
	if o, ok := img.(interface{ Opaque() bool }); ok && !o.Opaque() {
		return ModeRGBA
	}
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return ModeGray
	case *image.CMYK:
		return ModeCMYK
	case *image.Paletted:
		return ModePaletted
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return ModeRGB
	}
	return ModeRGB
}
