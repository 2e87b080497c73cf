// Package preview shows resized images inline in terminals that speak an
// image protocol.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strings"

	"github.com/BourgeoisBear/rasterm"
	"github.com/samsaffron/sizesync/internal/imaging"
	"golang.org/x/image/draw"
)

// MaxWidth bounds the width of a preview in pixels.
const MaxWidth = 800

// Capability is the terminal's image rendering capability.
type Capability int

const (
	CapNone  Capability = iota // No image support
	CapKitty                   // Kitty graphics protocol
	CapITerm                   // iTerm2 inline images
	CapSixel                   // Sixel graphics
)

func (c Capability) String() string {
	switch c {
	case CapKitty:
		return "kitty"
	case CapITerm:
		return "iterm"
	case CapSixel:
		return "sixel"
	default:
		return "none"
	}
}

// Detect inspects the environment for a supported protocol.
// Detection order: Kitty -> iTerm -> Sixel -> None
func Detect() Capability {
	return detect(os.Getenv)
}

func detect(getenv func(string) string) Capability {
	termName := getenv("TERM")
	termProgram := getenv("TERM_PROGRAM")

	switch {
	case getenv("KITTY_WINDOW_ID") != "", strings.Contains(termName, "kitty"), termProgram == "ghostty":
		return CapKitty
	case termProgram == "iTerm.app", getenv("LC_TERMINAL") == "iTerm2", termProgram == "WezTerm":
		return CapITerm
	case strings.Contains(termName, "sixel"), strings.Contains(termName, "mlterm"):
		return CapSixel
	}
	return CapNone
}

// Render decodes data and writes it to w using capability c, scaled down to
// MaxWidth. CapNone writes nothing.
func Render(w io.Writer, data []byte, c Capability) error {
	if c == CapNone {
		return nil
	}

	proc := imaging.NewProcessor()
	img, err := proc.Decode(data)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	if img.Width > MaxWidth {
		h := max(1, img.Height*MaxWidth/img.Width)
		if img, err = proc.Resize(img, MaxWidth, h); err != nil {
			return fmt.Errorf("preview: %w", err)
		}
	}

	switch c {
	case CapKitty:
		return rasterm.KittyWriteImage(w, img.Pixels, rasterm.KittyImgOpts{})
	case CapITerm:
		return rasterm.ItermWriteImage(w, img.Pixels)
	case CapSixel:
		return rasterm.SixelWriteImage(w, palettize(img.Pixels))
	}
	return nil
}

// palettize maps img onto a 6x6x6 color cube plus 40 grays with
// Floyd-Steinberg dithering, as Sixel requires a paletted image.
func palettize(img image.Image) *image.Paletted {
	palette := make(color.Palette, 0, 256)
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				palette = append(palette, color.RGBA{R: uint8(r * 51), G: uint8(g * 51), B: uint8(b * 51), A: 255})
			}
		}
	}
	for i := 0; i < 40; i++ {
		gray := uint8(i * 255 / 39)
		palette = append(palette, color.RGBA{R: gray, G: gray, B: gray, A: 255})
	}

	bounds := img.Bounds()
	paletted := image.NewPaletted(bounds, palette)
	draw.FloydSteinberg.Draw(paletted, bounds, img, bounds.Min)
	return paletted
}
