package sink

import (
	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logfile"
)

// CompressedLog records frames to a log file. Its fields are registered when
// it is created and cannot change afterwards. Frames are submitted without
// blocking; when the compressor falls behind, Write returns
// logfile.ErrQueueFull and the frame is lost.
type CompressedLog struct {
	w       *logfile.Writer
	fields  []frame.Field
	handles [frame.NumFields]logfile.Handle
}

// NewCompressedLog registers every field in fields at width x height and
// opens path for writing.
func NewCompressedLog(path string, fields frame.FieldSet, width, height int, opts logfile.Options) (*CompressedLog, error) {
	s := &CompressedLog{w: logfile.NewWriter(opts)}
	for i := range s.handles {
		s.handles[i] = -1
	}
	for _, f := range fields.List() {
		h, err := s.w.RegisterField(f.Name(), width, height, f.Kind())
		if err != nil {
			return nil, errors.Wrapf(err, "register %v", f)
		}
		s.handles[f] = h
		s.fields = append(s.fields, f)
	}
	if err := s.w.Open(path); err != nil {
		return nil, err
	}
	log.Info("Recording to log %s (%v)", path, opts.Compression)
	return s, nil
}

func (*CompressedLog) sink() {}

func (*CompressedLog) Primary() bool { return true }

func (s *CompressedLog) Path() string {
	return s.w.Path()
}

func (s *CompressedLog) Bytes() int64 {
	return s.w.Stats().Bytes
}

func (s *CompressedLog) Stats() logfile.Stats {
	return s.w.Stats()
}

func (s *CompressedLog) RunID() string {
	return s.w.RunID().String()
}

// Write submits the registered fields present in f as one record.
func (s *CompressedLog) Write(f *frame.Frame) error {
	s.w.NewFrame()
	for _, field := range s.fields {
		img := f.Get(field)
		if img.Empty() {
			continue
		}
		if err := s.w.AddImage(s.handles[field], img); err != nil {
			return errors.Wrapf(err, "add %v", field)
		}
	}
	return s.w.WriteFrame(false)
}

func (s *CompressedLog) Close() error {
	return s.w.Close()
}
