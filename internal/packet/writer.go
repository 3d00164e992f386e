// Package packet provides big-endian encoding helpers for the binary headers
// and records of the log container.
package packet

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

var networkOrder = binary.BigEndian

// A Writer appends big-endian values to a growable buffer.
type Writer struct {
	buffer []byte
}

func NewWriter(buffer []byte) *Writer {
	return &Writer{buffer[:0]}
}

func NewWriterSize(n int) *Writer {
	return NewWriter(make([]byte, 0, n))
}

func (w *Writer) WriteByte(v byte) error {
	w.buffer = append(w.buffer, v)
	return nil
}

func (w *Writer) WriteUint16(v uint16) {
	w.buffer = networkOrder.AppendUint16(w.buffer, v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.buffer = networkOrder.AppendUint32(w.buffer, v)
}

func (w *Writer) WriteUint64(v uint64) {
	w.buffer = networkOrder.AppendUint64(w.buffer, v)
}

func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteSlice(p []byte) {
	w.buffer = append(w.buffer, p...)
}

// WriteString8 writes s prefixed by its length as a single byte.
func (w *Writer) WriteString8(s string) error {
	if len(s) > math.MaxUint8 {
		return errors.Errorf("string of %d bytes too long for 8-bit length", len(s))
	}
	w.buffer = append(w.buffer, byte(len(s)))
	w.buffer = append(w.buffer, s...)
	return nil
}

// WriteString16 writes s prefixed by its length as a uint16.
func (w *Writer) WriteString16(s string) error {
	if len(s) > math.MaxUint16 {
		return errors.Errorf("string of %d bytes too long for 16-bit length", len(s))
	}
	w.WriteUint16(uint16(len(s)))
	w.buffer = append(w.buffer, s...)
	return nil
}

// PutUint32At overwrites four bytes previously written at offset.
func (w *Writer) PutUint32At(offset int, v uint32) {
	networkOrder.PutUint32(w.buffer[offset:], v)
}

// Return the number of bytes written so far.
func (w *Writer) Length() int {
	return len(w.buffer)
}

// Return a slice of the bytes written so far.
func (w *Writer) Bytes() []byte {
	return w.buffer
}

func (w *Writer) Reset() {
	w.buffer = w.buffer[:0]
}
