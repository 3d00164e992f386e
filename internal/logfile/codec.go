package logfile

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

// compressor is owned by a single goroutine; buffers are reused across calls.
type compressor struct {
	Compression

	scratch []byte
	out     bytes.Buffer
	zw      *zlib.Writer
}

func newCompressor(c Compression) (*compressor, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	comp := &compressor{Compression: c}
	if c.Codec == Zlib {
		zw, err := zlib.NewWriterLevel(&comp.out, c.Level)
		if err != nil {
			return nil, errors.Wrap(err, "zlib")
		}
		comp.zw = zw
	}
	return comp, nil
}

// compress returns the encoded payload, valid until the next call.
func (c *compressor) compress(p []byte) ([]byte, error) {
	switch c.Codec {
	case Snappy:
		need := snappy.MaxEncodedLen(len(p))
		if need < 0 {
			return nil, errors.Errorf("payload of %d bytes too large for snappy", len(p))
		}
		if cap(c.scratch) < need {
			c.scratch = make([]byte, need)
		}
		return snappy.Encode(c.scratch[:need], p), nil

	case Zlib:
		c.out.Reset()
		c.zw.Reset(&c.out)
		if _, err := c.zw.Write(p); err != nil {
			return nil, err
		}
		if err := c.zw.Close(); err != nil {
			return nil, err
		}
		return c.out.Bytes(), nil
	}
	return nil, errors.Errorf("unknown codec %d", c.Codec)
}

func decompress(codec Codec, dst, src []byte) ([]byte, error) {
	switch codec {
	case Snappy:
		n, err := snappy.DecodedLen(src)
		if err != nil {
			return nil, err
		}
		if n != len(dst) {
			return nil, errors.Errorf("snappy payload decodes to %d bytes, expected %d", n, len(dst))
		}
		return snappy.Decode(dst, src)

	case Zlib:
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		if _, err := io.ReadFull(zr, dst); err != nil {
			return nil, errors.Wrap(err, "zlib payload")
		}
		return dst, nil
	}
	return nil, errors.Errorf("unknown codec %d", codec)
}
