package device

import (
	"io"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logfile"
)

// Playback replays a camera container written by a Recording as though it
// were the camera itself.
type Playback struct {
	r *logfile.Reader

	width, height int
	handles       [len(frame.Fields)]logfile.Handle

	next    int
	current *logfile.Record
}

// OpenPlayback opens a container for replay. The container must have at least
// a left view; right and depth are optional, but every field must share the
// left view's size.
func OpenPlayback(path string) (*Playback, error) {
	r, err := logfile.OpenReader(path)
	if err != nil {
		return nil, err
	}

	p := &Playback{r: r}
	for i := range p.handles {
		p.handles[i] = -1
	}
	for _, f := range frame.Fields {
		h, d, ok := r.Field(f.Name())
		if !ok {
			continue
		}
		if d.Kind != f.Kind() {
			r.Close()
			return nil, errors.Errorf("%s: field %s is %v, expected %v", path, d.Name, d.Kind, f.Kind())
		}
		if f == frame.Left {
			p.width, p.height = d.Width, d.Height
		} else if d.Width != p.width || d.Height != p.height {
			r.Close()
			return nil, errors.Errorf("%s: field %s is %dx%d, left is %dx%d", path, d.Name, d.Width, d.Height, p.width, p.height)
		}
		p.handles[f] = h
	}
	if p.handles[frame.Left] < 0 {
		r.Close()
		return nil, errors.Errorf("%s: container has no left view", path)
	}

	log.Info("Playing %s: %dx%d, %d frames at %g FPS", path, p.width, p.height, r.NumFrames(), r.FPS())
	return p, nil
}

func (p *Playback) Size() (int, int) {
	return p.width, p.height
}

func (p *Playback) FPS() float64 {
	return p.r.FPS()
}

func (p *Playback) NumImages() int {
	if p.handles[frame.Right] >= 0 {
		return 2
	}
	return 1
}

func (p *Playback) HasDepth() bool {
	return p.handles[frame.Depth] >= 0
}

func (p *Playback) NumFrames() int {
	return p.r.NumFrames()
}

// Grab advances to the next recorded frame, returning io.EOF after the last.
func (p *Playback) Grab() error {
	rec, err := p.r.ReadFrame(p.next)
	if err == io.EOF {
		p.current = nil
		return io.EOF
	}
	// A damaged record is skipped like a dropped camera frame.
	p.next++
	if err != nil {
		p.current = nil
		return err
	}
	p.current = rec
	return nil
}

func (p *Playback) Image(index int, out *frame.Image) error {
	switch index {
	case 0:
		return p.read(frame.Left, out)
	case 1:
		return p.read(frame.Right, out)
	}
	return errors.Wrapf(ErrNoImage, "index %d", index)
}

func (p *Playback) Depth(out *frame.Image) error {
	if !p.HasDepth() {
		return ErrNoDepth
	}
	return p.read(frame.Depth, out)
}

func (p *Playback) read(f frame.Field, out *frame.Image) error {
	if p.current == nil {
		return ErrNotGrabbed
	}
	h := p.handles[f]
	if h < 0 {
		return errors.Wrapf(ErrNoImage, "%v", f)
	}
	data := p.current.Field(h)
	if data == nil {
		// Field absent from this record.
		out.Reset(0, 0, f.Kind())
		return nil
	}
	out.Reset(p.width, p.height, f.Kind())
	copy(out.Pix, data)
	return nil
}

// Calibration returns the calibration stored with the recording, if any.
func (p *Playback) Calibration() (Calibration, error) {
	s, ok := p.r.Metadata()[MetadataKey]
	if !ok {
		return Calibration{}, errors.New("container has no calibration")
	}
	return ParseCalibration(s)
}

func (p *Playback) Close() error {
	return p.r.Close()
}
