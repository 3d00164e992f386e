package sink

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/lanikai/alohacap/internal/color"
	"github.com/lanikai/alohacap/internal/frame"
	"github.com/lanikai/alohacap/internal/logging"
)

// Format is an image file format.
type Format string

const (
	PNG  Format = "png"
	TIFF Format = "tiff"
	BMP  Format = "bmp"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case PNG, TIFF, BMP:
		return f, nil
	case "tif":
		return TIFF, nil
	}
	return "", errors.Errorf("unknown image format %q (want png, tiff or bmp)", s)
}

// Ext returns the file extension, without a dot.
func (f Format) Ext() string {
	return string(f)
}

// Depth in bmp files is scaled to 8 bits over this range, in metres.
const bmpDepthRange = 10

// ImageSequence writes every requested field of every frame to its own file,
// named <field>_<count>.<ext> with a six-digit count. A failed file is logged
// and skipped.
type ImageSequence struct {
	dir    string
	format Format
	fields frame.FieldSet

	files    int
	failures int
	skipped  int
	bytes    int64

	throttle *logging.Throttle
	gray     *image.Gray
}

// NewImageSequence writes into dir, which must already exist.
func NewImageSequence(dir string, format Format, fields frame.FieldSet) (*ImageSequence, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "image output")
	}
	if !st.IsDir() {
		return nil, errors.Errorf("image output %s is not a directory", dir)
	}
	if format == "" {
		format = PNG
	}
	log.Info("Recording to directory %s", dir)
	return &ImageSequence{
		dir:      dir,
		format:   format,
		fields:   fields,
		throttle: logging.NewThrottle(time.Second, 5),
	}, nil
}

func (*ImageSequence) sink() {}

func (*ImageSequence) Primary() bool { return true }

func (s *ImageSequence) Path() string {
	return s.dir
}

func (s *ImageSequence) Bytes() int64 {
	return s.bytes
}

// Files returns the number of files written.
func (s *ImageSequence) Files() int {
	return s.files
}

func (s *ImageSequence) Failures() int {
	return s.failures
}

// Skipped returns the number of requested fields that had no image to save.
func (s *ImageSequence) Skipped() int {
	return s.skipped
}

// Filename returns the name used for field f of frame seq.
func (s *ImageSequence) Filename(f frame.Field, seq int) string {
	return fmt.Sprintf("%s_%06d.%s", f.Name(), seq, s.format.Ext())
}

// Write saves each requested field present in f. Empty fields are counted and
// warned about but are not failures. It returns the number of fields that
// failed.
func (s *ImageSequence) Write(f *frame.Frame) int {
	failed := 0
	for _, field := range s.fields.List() {
		img := f.Get(field)
		if img.Empty() {
			s.skipped++
			s.throttle.Warn(log, "%s image is empty, not saving frame %d", field.Name(), f.Seq)
			continue
		}
		name := filepath.Join(s.dir, s.Filename(field, f.Seq))
		n, err := s.writeFile(name, img)
		if err != nil {
			failed++
			s.failures++
			s.throttle.Warn(log, "Failed to write %s: %v", name, err)
			continue
		}
		s.files++
		s.bytes += n
	}
	return failed
}

func (s *ImageSequence) writeFile(name string, img *frame.Image) (int64, error) {
	m, err := s.convert(img)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(name)
	if err != nil {
		return 0, err
	}
	cw := &countingWriter{w: file}
	bw := bufio.NewWriterSize(cw, 256*1024)

	switch s.format {
	case TIFF:
		err = tiff.Encode(bw, m, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case BMP:
		err = bmp.Encode(bw, m)
	default:
		err = (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(bw, m)
	}
	if err == nil {
		err = bw.Flush()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(name)
		return 0, err
	}
	return cw.n, nil
}

func (s *ImageSequence) convert(img *frame.Image) (image.Image, error) {
	if img.Kind == frame.Depth32F && s.format == BMP {
		if err := img.CheckSize(); err != nil {
			return nil, err
		}
		r := image.Rect(0, 0, img.Width, img.Height)
		if s.gray == nil || s.gray.Rect != r {
			s.gray = image.NewGray(r)
		}
		color.DepthToGray(s.gray.Pix, img.Pix, bmpDepthRange)
		return s.gray, nil
	}
	return img.ToImage()
}

func (s *ImageSequence) Close() error {
	log.Info("Wrote %d files to %s (%d failed, %d empty)", s.files, s.dir, s.failures, s.skipped)
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
