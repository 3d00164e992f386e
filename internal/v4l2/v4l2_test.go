//go:build linux
// +build linux

package v4l2

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacap/internal/device"
)

func TestStructSizes(t *testing.T) {
	assert.EqualValues(t, 104, unsafe.Sizeof(v4l2_capability{}))
	assert.EqualValues(t, 48, unsafe.Sizeof(v4l2_pix_format{}))
	assert.EqualValues(t, 20, unsafe.Sizeof(v4l2_requestbuffers{}))
	assert.EqualValues(t, 204, unsafe.Sizeof(v4l2_streamparm{}))
	assert.EqualValues(t, 8, unsafe.Sizeof(v4l2_control{}))

	if unsafe.Sizeof(uintptr(0)) == 8 {
		assert.EqualValues(t, 208, unsafe.Sizeof(v4l2_format{}))
		assert.EqualValues(t, 88, unsafe.Sizeof(v4l2_buffer{}))
		assert.EqualValues(t, 64, unsafe.Offsetof(v4l2_buffer{}.m))
	}
}

func TestRequestNumbers(t *testing.T) {
	if unsafe.Sizeof(uintptr(0)) != 8 {
		t.Skip("reference values are for 64-bit targets")
	}

	for name, tc := range map[string]struct{ got, want uintptr }{
		"QUERYCAP":  {VIDIOC_QUERYCAP, 0x80685600},
		"S_FMT":     {VIDIOC_S_FMT, 0xc0d05605},
		"REQBUFS":   {VIDIOC_REQBUFS, 0xc0145608},
		"QUERYBUF":  {VIDIOC_QUERYBUF, 0xc0585609},
		"QBUF":      {VIDIOC_QBUF, 0xc058560f},
		"DQBUF":     {VIDIOC_DQBUF, 0xc0585611},
		"STREAMON":  {VIDIOC_STREAMON, 0x40045612},
		"STREAMOFF": {VIDIOC_STREAMOFF, 0x40045613},
		"S_PARM":    {VIDIOC_S_PARM, 0xc0cc5616},
		"S_CTRL":    {VIDIOC_S_CTRL, 0xc008561c},
	} {
		assert.Equal(t, tc.want, tc.got, "VIDIOC_%s", name)
	}
}

func TestFourcc(t *testing.T) {
	assert.EqualValues(t, 0x56595559, V4L2_PIX_FMT_YUYV)
	assert.Equal(t, "MJPG", fourccString(V4L2_PIX_FMT_MJPEG))
	assert.Equal(t, "uvcvideo", cstring([]byte("uvcvideo\x00\x00junk")))
}

func TestBufferOffset(t *testing.T) {
	var b v4l2_buffer
	nativeEndian.PutUint32(b.m[:], 0x1000)
	assert.EqualValues(t, 0x1000, b.offset())
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open("/dev/does-not-exist", Config{Width: 640, Height: 480})
	require.Error(t, err)

	_, err = OpenCamera("/dev/null", Config{})
	assert.Error(t, err)
}

func TestCameraIsDevice(t *testing.T) {
	assert.Implements(t, (*device.Device)(nil), new(Camera))

	_, err := openVideoDevice("/dev/does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/does-not-exist")
}
