package conversation

import (
	"fmt"

	"github.com/samsaffron/sizesync/internal/imaging"
	"github.com/samsaffron/sizesync/internal/resize"
)

// User-visible texts.
const (
	msgSendImage     = "Please send me an image file."
	msgImageTooLarge = "That image is too large for me to process. Please send a smaller one."
	msgChooseMode    = "How would you like to resize this image?"
	msgInvalidOption = "Sorry, an invalid option was selected."
	msgStaleChoice   = "That menu is no longer active. Send a new image to start over."
	msgExpired       = "Your previous image expired. Please send it again."
	msgPixelPrompt   = "Please enter dimensions in pixels: width x height (e.g., 1920 x 1080)"
	msgCmPrompt      = "Please enter dimensions in cm: width x height (e.g., 10 x 15)"
	msgKbPrompt      = "Please enter target file size in KB (e.g., 500)"
	msgPixelFormat   = "Invalid format. Please use width x height, e.g., 800 x 600."
	msgCmFormat      = "Invalid format. Please use width x height, e.g., 10.5 x 15."
	msgKbFormat      = "Invalid format. Please enter a number, e.g., 500."
	msgProcessing    = "An unexpected error occurred while processing your image."
	msgCancelled     = "Operation cancelled."
	msgCaption       = "Here is your resized image."
)

// Choice is one entry of the mode menu.
type Choice struct {
	Key   string
	Label string
}

var modeLabels = map[resize.Mode]string{
	resize.ModePixels:      "Resize by Pixels (e.g., 800x600)",
	resize.ModeCentimeters: "Resize by Centimeters (e.g., 10x15)",
	resize.ModeSizeBudget:  "Resize by File Size (e.g., 500 KB)",
}

// ModeChoices returns the mode menu in display order.
func ModeChoices() []Choice {
	modes := resize.Modes()
	choices := make([]Choice, 0, len(modes))
	for _, m := range modes {
		choices = append(choices, Choice{Key: m.Key(), Label: modeLabels[m]})
	}
	return choices
}

func promptFor(m resize.Mode) string {
	switch m {
	case resize.ModePixels:
		return msgPixelPrompt
	case resize.ModeCentimeters:
		return msgCmPrompt
	default:
		return msgKbPrompt
	}
}

func formatErrorFor(m resize.Mode) string {
	switch m {
	case resize.ModePixels:
		return msgPixelFormat
	case resize.ModeCentimeters:
		return msgCmFormat
	default:
		return msgKbFormat
	}
}

func filenameFor(m resize.Mode) string {
	switch m {
	case resize.ModePixels:
		return "resized_pixels" + imaging.PNG.Extension()
	case resize.ModeCentimeters:
		return "resized_cm" + imaging.PNG.Extension()
	default:
		return "resized_kb" + imaging.JPEG.Extension()
	}
}

func unreachableText(targetBytes int) string {
	return fmt.Sprintf("Sorry, I couldn't resize the image to be under %d KB.", targetBytes/resize.BytesPerKB)
}

func statusText(req resize.Request, size int) string {
	switch req.Mode {
	case resize.ModePixels:
		return fmt.Sprintf("Resized to %dx%d pixels.", req.Width, req.Height)
	case resize.ModeCentimeters:
		return fmt.Sprintf("Converted %gx%g cm to %dx%d pixels and resized.", req.WidthCM, req.HeightCM, req.Width, req.Height)
	default:
		return fmt.Sprintf("Success! Resized to %d KB.", size/resize.BytesPerKB)
	}
}
