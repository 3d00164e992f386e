package v4l2

import (
	"time"

	"github.com/lanikai/alohacap/internal/logging"
)

var log = logging.DefaultLogger.WithTag("v4l2")

type Config struct {
	Width  int     // Width of one view in pixels
	Height int     // Height in pixels
	FPS    float64 // Requested frame rate, or 0 for the driver default

	// The camera delivers a stereo pair as a single frame twice as wide as
	// one view, left view first (e.g. ZED over UVC).
	SideBySide bool

	HFlip bool // Flip video horizontally
	VFlip bool // Flip video vertically

	// Number of kernel buffers to request. Zero means 4.
	Buffers int

	// How long Grab waits for a frame before failing. Zero means 2 seconds.
	Timeout time.Duration
}
