package device

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logfile"
)

// A Recorder captures frames straight from a device into a container, without
// the caller handling individual fields.
type Recorder interface {
	// Record grabs one frame and appends it to the container. It returns
	// io.EOF when the device is exhausted.
	Record() error

	// Recorded returns the frame most recently recorded, or nil.
	Recorded() *frame.Frame

	// StopRecording flushes and closes the container.
	StopRecording() error

	Path() string
}

// Recording writes every field a device supports to a container, one record
// per Record call. Writes block, so no frame the device grabbed is dropped.
type Recording struct {
	dev Device
	w   *logfile.Writer

	fields  []frame.Field
	handles []logfile.Handle
	images  []*frame.Image

	last    frame.Frame
	count   int
	stopped bool
}

// StartRecording creates the container at path and registers the device's
// fields. The device calibration, when known, is stored in the header.
func StartRecording(dev Device, path string, opts logfile.Options) (*Recording, error) {
	if c, ok := dev.(Calibrator); ok {
		if cal, err := c.Calibration(); err == nil {
			md := make(map[string]string, len(opts.Metadata)+1)
			for k, v := range opts.Metadata {
				md[k] = v
			}
			md[MetadataKey] = cal.String()
			opts.Metadata = md
		}
	}
	if opts.FPS == 0 {
		opts.FPS = dev.FPS()
	}

	rec := &Recording{dev: dev, w: logfile.NewWriter(opts)}
	for _, d := range Descriptors(dev) {
		h, err := rec.w.RegisterField(d.Name, d.Width, d.Height, d.Kind)
		if err != nil {
			return nil, err
		}
		f := fieldByName(d.Name)
		rec.fields = append(rec.fields, f)
		rec.handles = append(rec.handles, h)
		rec.images = append(rec.images, frame.NewImage(d.Width, d.Height, d.Kind))
	}
	if err := rec.w.Open(path); err != nil {
		return nil, err
	}
	return rec, nil
}

func fieldByName(name string) frame.Field {
	for _, f := range frame.Fields {
		if f.Name() == name {
			return f
		}
	}
	panic("unknown field " + name)
}

func (rec *Recording) Record() error {
	if rec.stopped {
		return errors.New("recording stopped")
	}
	if err := rec.dev.Grab(); err != nil {
		return err
	}

	rec.last.Reset(rec.count, time.Now())
	rec.w.NewFrame()
	for i, f := range rec.fields {
		img := rec.images[i]
		if err := Read(rec.dev, f, img); err != nil {
			return errors.Wrapf(err, "read %v", f)
		}
		if img.Empty() {
			continue
		}
		if err := rec.w.AddImage(rec.handles[i], img); err != nil {
			return err
		}
		rec.last.Set(f, img)
	}
	if err := rec.w.WriteFrame(true); err != nil {
		return err
	}
	rec.count++
	return nil
}

func (rec *Recording) Recorded() *frame.Frame {
	if rec.count == 0 {
		return nil
	}
	return &rec.last
}

func (rec *Recording) Path() string {
	return rec.w.Path()
}

// Count returns the number of frames recorded.
func (rec *Recording) Count() int {
	return rec.count
}

func (rec *Recording) Stats() logfile.Stats {
	return rec.w.Stats()
}

func (rec *Recording) StopRecording() error {
	if rec.stopped {
		return nil
	}
	rec.stopped = true
	return rec.w.Close()
}
