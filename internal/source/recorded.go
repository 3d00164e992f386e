package source

import (
	"io"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/device"
	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logfile"
)

// RecordedSource replays a compressed log. It is finite and seekable.
type RecordedSource struct {
	r *logfile.Reader

	width, height int
	handles       [len(frame.Fields)]logfile.Handle
	images        int

	pos     int
	current *logfile.Record
}

func OpenRecorded(path string) (*RecordedSource, error) {
	r, err := logfile.OpenReader(path)
	if err != nil {
		return nil, err
	}
	s, err := NewRecorded(r)
	if err != nil {
		r.Close()
		return nil, errors.Wrap(err, path)
	}
	return s, nil
}

// NewRecorded wraps an open log. The log must carry a left image; right and
// depth are used when present. The source takes ownership of r.
func NewRecorded(r *logfile.Reader) (*RecordedSource, error) {
	s := &RecordedSource{r: r}
	for i := range s.handles {
		s.handles[i] = -1
	}

	for _, f := range frame.Fields {
		h, d, ok := r.Field(f.Name())
		if !ok {
			continue
		}
		if d.Kind != f.Kind() {
			return nil, errors.Errorf("log field %s is %v, expected %v", d.Name, d.Kind, f.Kind())
		}
		if f == frame.Left {
			s.width, s.height = d.Width, d.Height
		} else if d.Width != s.width || d.Height != s.height {
			return nil, errors.Errorf("log field %s is %dx%d, left is %dx%d", d.Name, d.Width, d.Height, s.width, s.height)
		}
		s.handles[f] = h
	}
	if s.handles[frame.Left] < 0 {
		return nil, errors.New("log has no left image")
	}
	s.images = 1
	if s.handles[frame.Right] >= 0 {
		s.images = 2
	}
	return s, nil
}

func (*RecordedSource) source() {}

func (s *RecordedSource) NumFrames() int {
	return s.r.NumFrames()
}

func (s *RecordedSource) FPS() float64 {
	return s.r.FPS()
}

func (s *RecordedSource) HasDepth() bool {
	return s.handles[frame.Depth] >= 0
}

func (s *RecordedSource) NumImages() int {
	return s.images
}

func (s *RecordedSource) Size() (int, int) {
	return s.width, s.height
}

func (s *RecordedSource) Describe() string {
	return describe("log", s.r.Path(), s)
}

// Position returns the index of the next frame Grab will read.
func (s *RecordedSource) Position() int {
	return s.pos
}

// Seek positions the source so the next Grab reads frame n.
func (s *RecordedSource) Seek(n int) error {
	if n < 0 || n > s.NumFrames() {
		return errors.Errorf("seek to frame %d of %d", n, s.NumFrames())
	}
	s.pos = n
	s.current = nil
	return nil
}

func (s *RecordedSource) Grab() error {
	rec, err := s.r.ReadFrame(s.pos)
	if err == io.EOF {
		s.current = nil
		return ErrEndOfStream
	}
	s.pos++
	if err != nil {
		s.current = nil
		return err
	}
	s.current = rec
	return nil
}

func (s *RecordedSource) Image(index int, out *frame.Image) error {
	switch index {
	case 0:
		return s.read(frame.Left, out)
	case 1:
		return s.read(frame.Right, out)
	}
	return errors.Wrapf(device.ErrNoImage, "index %d", index)
}

func (s *RecordedSource) Depth(out *frame.Image) error {
	if !s.HasDepth() {
		return device.ErrNoDepth
	}
	return s.read(frame.Depth, out)
}

// read copies field f of the current record into out. A field missing from
// the record (dropped at write time) leaves out empty.
func (s *RecordedSource) read(f frame.Field, out *frame.Image) error {
	if s.current == nil {
		return device.ErrNotGrabbed
	}
	h := s.handles[f]
	if h < 0 {
		return errors.Wrapf(device.ErrNoImage, "%v", f)
	}
	data := s.current.Field(h)
	if data == nil {
		out.Reset(0, 0, f.Kind())
		return nil
	}
	out.Reset(s.width, s.height, f.Kind())
	copy(out.Pix, data)
	return nil
}

// Metadata returns the key/value pairs stored in the log header.
func (s *RecordedSource) Metadata() map[string]string {
	return s.r.Metadata()
}

func (s *RecordedSource) Close() error {
	return s.r.Close()
}
