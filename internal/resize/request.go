// Package resize holds the resize request model, the centimeter resolver and
// the size-targeting JPEG search.
package resize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInputFormat marks user text that could not be parsed for the
	// current mode. The conversation re-prompts on it.
	ErrInputFormat = errors.New("invalid input format")
	// ErrInvalidDimensions marks non-positive or out-of-range dimensions.
	ErrInvalidDimensions = fmt.Errorf("%w: invalid dimensions", ErrInputFormat)
	// ErrInvalidBudget marks a non-positive or overflowing size budget.
	ErrInvalidBudget = fmt.Errorf("%w: invalid size budget", ErrInputFormat)
)

// Mode selects how the target size is expressed.
type Mode int

const (
	ModePixels Mode = iota + 1
	ModeCentimeters
	ModeSizeBudget
)

var modeKeys = map[Mode]string{
	ModePixels:      "px",
	ModeCentimeters: "cm",
	ModeSizeBudget:  "kb",
}

func (m Mode) String() string {
	switch m {
	case ModePixels:
		return "pixels"
	case ModeCentimeters:
		return "centimeters"
	case ModeSizeBudget:
		return "size"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Key is the short identifier used for menu callbacks and CLI flags.
func (m Mode) Key() string { return modeKeys[m] }

// Modes lists the supported modes in menu order.
func Modes() []Mode {
	return []Mode{ModePixels, ModeCentimeters, ModeSizeBudget}
}

// ParseMode maps a menu key back to its Mode.
func ParseMode(key string) (Mode, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for m, k := range modeKeys {
		if k == key {
			return m, true
		}
	}
	return 0, false
}

// BytesPerKB converts the user-facing KB budget into bytes.
const BytesPerKB = 1024

// Request describes one resize operation.
type Request struct {
	Mode Mode
	// Width and Height are the target pixel dimensions. For centimeter
	// requests they hold the resolved values.
	Width  int
	Height int
	// WidthCM and HeightCM are the physical sizes for centimeter requests.
	WidthCM  float64
	HeightCM float64
	// TargetBytes is the byte budget for size requests.
	TargetBytes int
}

// ParsePixels parses "800 x 600" into a pixel request.
func ParsePixels(text string) (Request, error) {
	a, b, err := splitPair(text)
	if err != nil {
		return Request{}, err
	}
	w, errW := strconv.Atoi(a)
	h, errH := strconv.Atoi(b)
	if errW != nil || errH != nil {
		return Request{}, fmt.Errorf("%w: %q is not two whole numbers", ErrInputFormat, text)
	}
	if w <= 0 || h <= 0 {
		return Request{}, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, w, h)
	}
	return Request{Mode: ModePixels, Width: w, Height: h}, nil
}

// ParseCentimeters parses "10.5 x 15" and resolves it to pixels at DPI.
func ParseCentimeters(text string) (Request, error) {
	a, b, err := splitPair(text)
	if err != nil {
		return Request{}, err
	}
	wcm, errW := strconv.ParseFloat(a, 64)
	hcm, errH := strconv.ParseFloat(b, 64)
	if errW != nil || errH != nil {
		return Request{}, fmt.Errorf("%w: %q is not two numbers", ErrInputFormat, text)
	}
	w, h, err := ResolveCentimeters(wcm, hcm)
	if err != nil {
		return Request{}, err
	}
	return Request{Mode: ModeCentimeters, Width: w, Height: h, WidthCM: wcm, HeightCM: hcm}, nil
}

// ParseBudget parses a size budget in KB ("500" or "500 KB").
func ParseBudget(text string) (Request, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimSpace(strings.TrimSuffix(s, "kb"))
	kb, err := strconv.Atoi(s)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %q is not a whole number", ErrInputFormat, text)
	}
	if kb <= 0 || kb > math.MaxInt32/BytesPerKB {
		return Request{}, fmt.Errorf("%w: %d KB", ErrInvalidBudget, kb)
	}
	return Request{Mode: ModeSizeBudget, TargetBytes: kb * BytesPerKB}, nil
}

// Parse dispatches to the parser for mode.
func Parse(mode Mode, text string) (Request, error) {
	switch mode {
	case ModePixels:
		return ParsePixels(text)
	case ModeCentimeters:
		return ParseCentimeters(text)
	case ModeSizeBudget:
		return ParseBudget(text)
	}
	return Request{}, fmt.Errorf("%w: unknown mode %v", ErrInputFormat, mode)
}

// splitPair splits "w x h" on x, × or *.
func splitPair(text string) (string, string, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.NewReplacer("×", "x", "*", "x").Replace(s)
	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q is not width x height", ErrInputFormat, text)
	}
	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if a == "" || b == "" {
		return "", "", fmt.Errorf("%w: %q is not width x height", ErrInputFormat, text)
	}
	return a, b, nil
}
