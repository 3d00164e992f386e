// Package source provides the frames an acquisition run consumes: either live
// from a camera or replayed from an earlier compressed log.
package source

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/device"
	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logging"
	"github.com/lanikai/alohacap/internal/v4l2"
)

var log = logging.DefaultLogger.WithTag("source")

var (
	// ErrEndOfStream is returned by Grab once a finite source is exhausted.
	// It ends a run gracefully.
	ErrEndOfStream = errors.New("end of stream")

	// ErrUnsupported reports a requested field the source cannot provide.
	ErrUnsupported = errors.New("unsupported by source")
)

// PatternDevice names the synthetic camera in Options.Device.
const PatternDevice = "pattern"

// A Source is either a *LiveSource or a *RecordedSource.
//
// Grab advances to the next frame. It returns nil on success, ErrEndOfStream
// when there are no more frames, and any other error for a transient capture
// failure after which the caller may simply try again. Image and Depth copy
// parts of the current frame into caller-owned buffers.
type Source interface {
	// NumFrames returns the number of frames available, or 0 if unbounded.
	NumFrames() int

	// FPS returns the nominal frame rate, or 0 if unknown.
	FPS() float64

	HasDepth() bool
	NumImages() int
	Size() (width, height int)

	Grab() error
	Image(index int, out *frame.Image) error
	Depth(out *frame.Image) error

	Close() error

	// Describe returns a short human-readable summary.
	Describe() string

	source()
}

type Options struct {
	// LogInput replays a compressed log.
	LogInput string

	// ContainerInput replays a camera container.
	ContainerInput string

	// Device is a V4L2 device path or PatternDevice.
	Device string

	Resolution device.Resolution
	FPS        float64

	// SideBySide treats a V4L2 camera as a stereo pair packed into one
	// frame.
	SideBySide bool
}

// Open selects and opens a source: a recorded log if LogInput is set,
// otherwise a camera, which may itself be replaying a container.
func Open(opts Options) (Source, error) {
	if opts.LogInput != "" {
		if opts.ContainerInput != "" {
			return nil, errors.New("cannot read both a log and a container")
		}
		log.Info("Loading logger data from %s", opts.LogInput)
		return OpenRecorded(opts.LogInput)
	}

	var dev device.Device
	var name string
	var err error
	switch {
	case opts.ContainerInput != "":
		log.Info("Loading container %s", opts.ContainerInput)
		name = opts.ContainerInput
		dev, err = device.OpenPlayback(opts.ContainerInput)

	case opts.Device == PatternDevice:
		log.Info("Using synthetic %v pattern", opts.Resolution)
		name = PatternDevice
		dev = device.NewPattern(device.PatternOptions{
			Width:  opts.Resolution.Width,
			Height: opts.Resolution.Height,
			FPS:    opts.FPS,
			Stereo: true,
			Depth:  true,
		})

	default:
		log.Info("Using live camera %s", opts.Device)
		name = opts.Device
		dev, err = v4l2.Open(opts.Device, v4l2.Config{
			Width:      opts.Resolution.Width,
			Height:     opts.Resolution.Height,
			FPS:        opts.FPS,
			SideBySide: opts.SideBySide,
		})
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to open camera")
	}
	return NewLive(dev, name), nil
}

// CheckFields verifies that src can supply every field in fields.
func CheckFields(src Source, fields frame.FieldSet) error {
	if fields.Has(frame.Depth) && !src.HasDepth() {
		return errors.Wrapf(ErrUnsupported, "depth requested but %s has no depth data", src.Describe())
	}
	if fields.Has(frame.Right) && src.NumImages() < 2 {
		return errors.Wrapf(ErrUnsupported, "right image requested but %s has only one view", src.Describe())
	}
	return nil
}

// Read copies field f of the current frame into out.
func Read(src Source, f frame.Field, out *frame.Image) error {
	switch f {
	case frame.Left:
		return src.Image(0, out)
	case frame.Right:
		return src.Image(1, out)
	case frame.Depth:
		return src.Depth(out)
	}
	return errors.Errorf("unknown field %v", f)
}

func describe(kind, name string, src Source) string {
	w, h := src.Size()
	s := fmt.Sprintf("%s %s (%dx%d", kind, name, w, h)
	if src.NumImages() > 1 {
		s += " stereo"
	}
	if src.HasDepth() {
		s += " +depth"
	}
	if fps := src.FPS(); fps > 0 {
		s += fmt.Sprintf(" at %g FPS", fps)
	}
	if n := src.NumFrames(); n > 0 {
		s += fmt.Sprintf(", %d frames", n)
	}
	return s + ")"
}
