package packet

import (
	"math"

	"github.com/pkg/errors"
)

// ErrShortBuffer is reported by a Reader that ran past the end of its input.
var ErrShortBuffer = errors.New("short buffer")

// A Reader decodes big-endian values from a byte slice. Reads past the end
// return zero values and latch ErrShortBuffer, so a caller can decode a whole
// structure and check Err once.
type Reader struct {
	buffer []byte
	offset int
	err    error
}

func NewReader(buffer []byte) *Reader {
	return &Reader{buffer: buffer}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = errors.Wrapf(ErrShortBuffer, "%d bytes remaining at offset %d, %d needed", r.Remaining(), r.offset, n)
		return nil
	}
	v := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return v
}

func (r *Reader) ReadByte() (byte, error) {
	if v := r.take(1); v != nil {
		return v[0], nil
	}
	return 0, r.err
}

func (r *Reader) ReadUint8() uint8 {
	v, _ := r.ReadByte()
	return v
}

func (r *Reader) ReadUint16() uint16 {
	if v := r.take(2); v != nil {
		return networkOrder.Uint16(v)
	}
	return 0
}

func (r *Reader) ReadUint32() uint32 {
	if v := r.take(4); v != nil {
		return networkOrder.Uint32(v)
	}
	return 0
}

func (r *Reader) ReadUint64() uint64 {
	if v := r.take(8); v != nil {
		return networkOrder.Uint64(v)
	}
	return 0
}

func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadUint32())
}

// ReadSlice returns the next n bytes without copying.
func (r *Reader) ReadSlice(n int) []byte {
	return r.take(n)
}

func (r *Reader) ReadString8() string {
	n := r.ReadUint8()
	return string(r.take(int(n)))
}

func (r *Reader) ReadString16() string {
	n := r.ReadUint16()
	return string(r.take(int(n)))
}

func (r *Reader) Skip(n int) {
	r.take(n)
}

// Return the number of bytes left in the buffer.
func (r *Reader) Remaining() int {
	return len(r.buffer) - r.offset
}

func (r *Reader) Offset() int {
	return r.offset
}

// Err returns the first decoding error, if any.
func (r *Reader) Err() error {
	return r.err
}
