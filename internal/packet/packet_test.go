package packet

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLayout(t *testing.T) {
	w := NewWriterSize(4)
	w.WriteByte(0xab)
	w.WriteUint16(0x0102)
	w.WriteUint32(0x03040506)
	require.NoError(t, w.WriteString8("hi"))
	assert.Equal(t, []byte{0xab, 1, 2, 3, 4, 5, 6, 2, 'h', 'i'}, w.Bytes())
	assert.Equal(t, 10, w.Length())

	w.PutUint32At(3, 0xdeadbeef)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, w.Bytes()[3:7])

	w.Reset()
	assert.Equal(t, 0, w.Length())
}

func TestWriterStringTooLong(t *testing.T) {
	w := NewWriterSize(0)
	assert.Error(t, w.WriteString8(string(make([]byte, 256))))
	assert.NoError(t, w.WriteString16(string(make([]byte, 256))))
}

func TestReaderRoundTrip(t *testing.T) {
	w := NewWriterSize(64)
	w.WriteUint64(1 << 40)
	w.WriteFloat32(29.97)
	w.WriteString16("calibration")
	w.WriteSlice([]byte{7, 8, 9})

	r := NewReader(w.Bytes())
	assert.Equal(t, uint64(1<<40), r.ReadUint64())
	assert.Equal(t, float32(29.97), r.ReadFloat32())
	assert.Equal(t, "calibration", r.ReadString16())
	assert.Equal(t, []byte{7, 8, 9}, r.ReadSlice(3))
	assert.Equal(t, 0, r.Remaining())
	assert.NoError(t, r.Err())
}

func TestReaderShortBufferLatches(t *testing.T) {
	r := NewReader([]byte{0, 1, 2})
	assert.Equal(t, uint16(1), r.ReadUint16())
	assert.Equal(t, uint32(0), r.ReadUint32())
	assert.True(t, errors.Is(r.Err(), ErrShortBuffer))

	// Later reads keep failing even if they would fit.
	assert.Equal(t, uint8(0), r.ReadUint8())
	assert.Equal(t, 2, r.Offset())
}
