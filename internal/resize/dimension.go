package resize

import (
	"fmt"
	"math"
)

// DPI is the fixed pixel density used to turn physical sizes into pixels.
const DPI = 96

const cmPerInch = 2.54

// CentimetersToPixels converts a physical length to pixels at DPI, rounding
// to the nearest pixel.
func CentimetersToPixels(cm float64) (int, error) {
	if math.IsNaN(cm) || math.IsInf(cm, 0) || cm <= 0 {
		return 0, fmt.Errorf("%w: %v cm", ErrInvalidDimensions, cm)
	}
	px := math.Round(cm / cmPerInch * DPI)
	if px < 1 {
		return 0, fmt.Errorf("%w: %v cm is smaller than one pixel", ErrInvalidDimensions, cm)
	}
	if px > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %v cm is too large", ErrInvalidDimensions, cm)
	}
	return int(px), nil
}

// ResolveCentimeters converts a width x height pair given in centimeters.
func ResolveCentimeters(widthCM, heightCM float64) (width, height int, err error) {
	if width, err = CentimetersToPixels(widthCM); err != nil {
		return 0, 0, err
	}
	if height, err = CentimetersToPixels(heightCM); err != nil {
		return 0, 0, err
	}
	return width, height, nil
}
