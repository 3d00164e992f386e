// Package device is the boundary to camera hardware and recorded camera
// containers. Everything above it sees a Device: something that can be told to
// grab a frame and then asked for that frame's images.
package device

import (
	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logging"
)

var log = logging.DefaultLogger.WithTag("device")

var (
	ErrNoDepth    = errors.New("device has no depth")
	ErrNoImage    = errors.New("no such image")
	ErrNotGrabbed = errors.New("no frame grabbed")
)

// A Device produces synchronized image sets. Grab captures the next set;
// Image and Depth copy parts of the most recent set into caller-owned buffers.
//
// Grab returns io.EOF when a finite device has nothing more to give. Any
// other error is a transient capture failure.
type Device interface {
	// Size returns the dimensions of every image the device produces.
	Size() (width, height int)

	// FPS returns the nominal frame rate, or zero if unknown.
	FPS() float64

	// NumImages returns the number of color views (1 for mono, 2 for stereo).
	NumImages() int

	HasDepth() bool

	// NumFrames returns the number of frames the device will produce, or zero
	// if unbounded.
	NumFrames() int

	Grab() error
	Image(index int, out *frame.Image) error
	Depth(out *frame.Image) error

	Close() error
}

// A Calibrator is a Device that knows its intrinsic calibration.
type Calibrator interface {
	Calibration() (Calibration, error)
}

// Descriptors returns the fields dev can supply, in dispatch order.
func Descriptors(dev Device) []frame.Descriptor {
	w, h := dev.Size()
	var out []frame.Descriptor
	for _, f := range frame.Fields {
		if Supports(dev, f) {
			out = append(out, frame.Descriptor{Name: f.Name(), Width: w, Height: h, Kind: f.Kind()})
		}
	}
	return out
}

// Supports reports whether dev can supply field f.
func Supports(dev Device, f frame.Field) bool {
	switch f {
	case frame.Left:
		return dev.NumImages() >= 1
	case frame.Right:
		return dev.NumImages() >= 2
	case frame.Depth:
		return dev.HasDepth()
	}
	return false
}

// Read copies field f of the most recent grab into out.
func Read(dev Device, f frame.Field, out *frame.Image) error {
	switch f {
	case frame.Left:
		return dev.Image(0, out)
	case frame.Right:
		return dev.Image(1, out)
	case frame.Depth:
		return dev.Depth(out)
	}
	return errors.Errorf("unknown field %v", f)
}
