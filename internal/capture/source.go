package capture

import (
	"errors"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Captured images are bounded so a multi-monitor 5K desktop does not produce
// multi-megabyte uploads.
const (
	maxWidth  = 1920
	maxHeight = 1080
)

// ErrNoDisplay is returned when no capturable screen exists (e.g. a locked
// or headless session).
var ErrNoDisplay = errors.New("capture: no active display")

// DisplaySource grabs the primary display, cropped to at most 1920x1080.
type DisplaySource struct{}

// Grab implements Source.
func (DisplaySource) Grab() (image.Image, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, ErrNoDisplay
	}
	bounds := screenshot.GetDisplayBounds(0)
	if bounds.Dx() > maxWidth {
		bounds.Max.X = bounds.Min.X + maxWidth
	}
	if bounds.Dy() > maxHeight {
		bounds.Max.Y = bounds.Min.Y + maxHeight
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("capture display: %w", err)
	}
	return img, nil
}
