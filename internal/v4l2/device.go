//go:build linux
// +build linux

package v4l2

import (
	"io"
	"syscall"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var errTimeout = errors.New("timed out waiting for frame")

// A V4L2 character device.
type videoDevice struct {
	// Number of requested kernel driver buffers.
	numBuffers int

	// Device path, usually "/dev/video0".
	path string

	// File descriptor of v4l2 device.
	fd int

	// Memory-mapped buffers, indexed by driver buffer index.
	mmap [][]byte

	streaming bool
}

func openVideoDevice(path string) (*videoDevice, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	return &videoDevice{
		numBuffers: 4,
		path:       path,
		fd:         fd,
	}, nil
}

func (dev *videoDevice) Close() error {
	if err := dev.Stop(); err != nil {
		log.Warn("%s: %v", dev.path, err)
	}

	return unix.Close(dev.fd)
}

func (dev *videoDevice) ioctl(request uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(
			unix.SYS_IOCTL,
			uintptr(dev.fd),
			request,
			uintptr(arg),
		)
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		}
		return errno
	}
}

// Query driver and card names, and check the device can stream video.
func (dev *videoDevice) queryCapabilities() (driver, card string, err error) {
	var cp v4l2_capability
	if err = dev.ioctl(VIDIOC_QUERYCAP, unsafe.Pointer(&cp)); err != nil {
		return "", "", errors.Wrap(err, "VIDIOC_QUERYCAP")
	}

	caps := cp.capabilities
	if caps&V4L2_CAP_DEVICE_CAPS != 0 {
		caps = cp.device_caps
	}
	if caps&V4L2_CAP_VIDEO_CAPTURE == 0 {
		return "", "", errors.Errorf("%s is not a video capture device", dev.path)
	}
	if caps&V4L2_CAP_STREAMING == 0 {
		return "", "", errors.Errorf("%s does not support streaming i/o", dev.path)
	}
	return cstring(cp.driver[:]), cstring(cp.card[:]), nil
}

// Query buffer parameters.
func (dev *videoDevice) queryBuffer(n uint32) (length, offset uint32, err error) {
	qb := v4l2_buffer{
		index:  n,
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err = dev.ioctl(VIDIOC_QUERYBUF, unsafe.Pointer(&qb)); err != nil {
		return
	}

	return qb.length, qb.offset(), nil
}

// Request specified number of kernel buffers memory-mapped to user-space.
// Returns the number the driver actually allocated.
func (dev *videoDevice) requestBuffers(n int) (int, error) {
	rb := v4l2_requestbuffers{
		count:  uint32(n),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	err := dev.ioctl(VIDIOC_REQBUFS, unsafe.Pointer(&rb))
	return int(rb.count), err
}

func (dev *videoDevice) mapMemory() error {
	if dev.mmap != nil {
		panic("v4l2 device: memory already mapped")
	}

	n, err := dev.requestBuffers(dev.numBuffers)
	if err != nil {
		return errors.Wrap(err, "VIDIOC_REQBUFS")
	}
	if n < 1 {
		return errors.Errorf("%s: driver allocated no buffers", dev.path)
	}

	for i := 0; i < n; i++ {
		length, offset, err := dev.queryBuffer(uint32(i))
		if err != nil {
			return errors.Wrap(err, "VIDIOC_QUERYBUF")
		}

		buf, err := unix.Mmap(
			dev.fd,
			int64(offset),
			int(length),
			unix.PROT_READ|unix.PROT_WRITE,
			unix.MAP_SHARED,
		)
		if err != nil {
			return errors.Wrap(err, "mmap")
		}
		dev.mmap = append(dev.mmap, buf)
	}
	return nil
}

func (dev *videoDevice) unmapMemory() error {
	for _, buf := range dev.mmap {
		if err := unix.Munmap(buf); err != nil {
			return err
		}
	}
	dev.mmap = nil

	_, err := dev.requestBuffers(0)
	return err
}

func (dev *videoDevice) enqueue(index int) error {
	qbuf := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
		index:  uint32(index),
	}
	return dev.ioctl(VIDIOC_QBUF, unsafe.Pointer(&qbuf))
}

func (dev *videoDevice) dequeue() (index, n int, err error) {
	dqbuf := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	err = dev.ioctl(VIDIOC_DQBUF, unsafe.Pointer(&dqbuf))
	return int(dqbuf.index), int(dqbuf.bytesused), err
}

func (dev *videoDevice) enableStream() error {
	typ := int32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	return dev.ioctl(VIDIOC_STREAMON, unsafe.Pointer(&typ))
}

func (dev *videoDevice) disableStream() error {
	// Disable stream (dequeues any outstanding buffers as well)
	typ := int32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	return dev.ioctl(VIDIOC_STREAMOFF, unsafe.Pointer(&typ))
}

func (dev *videoDevice) setControl(id uint32, value int32) error {
	ctrl := v4l2_control{id: id, value: value}
	return dev.ioctl(VIDIOC_S_CTRL, unsafe.Pointer(&ctrl))
}

// SetPixelFormat requests a capture format. The driver may adjust the
// request; the format actually applied is returned.
func (dev *videoDevice) SetPixelFormat(width, height int, format uint32) (v4l2_pix_format, error) {
	f := v4l2_format{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE}
	*f.pix() = v4l2_pix_format{
		width:       uint32(width),
		height:      uint32(height),
		pixelformat: format,
		field:       V4L2_FIELD_NONE,
	}
	if err := dev.ioctl(VIDIOC_S_FMT, unsafe.Pointer(&f)); err != nil {
		return v4l2_pix_format{}, errors.Wrap(err, "VIDIOC_S_FMT")
	}
	return *f.pix(), nil
}

// SetFrameRate requests a frame interval of 1/fps. Returns the rate the
// driver settled on, which may differ.
func (dev *videoDevice) SetFrameRate(fps float64) (float64, error) {
	p := v4l2_streamparm{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE}
	if err := dev.ioctl(VIDIOC_G_PARM, unsafe.Pointer(&p)); err != nil {
		return 0, errors.Wrap(err, "VIDIOC_G_PARM")
	}
	cp := p.capture()
	if cp.capability&V4L2_CAP_TIMEPERFRAME == 0 {
		return 0, errors.Errorf("%s: frame rate not adjustable", dev.path)
	}

	cp.timeperframe = v4l2_fract{numerator: 1000, denominator: uint32(fps*1000 + 0.5)}
	if err := dev.ioctl(VIDIOC_S_PARM, unsafe.Pointer(&p)); err != nil {
		return 0, errors.Wrap(err, "VIDIOC_S_PARM")
	}
	if cp.timeperframe.numerator == 0 {
		return 0, nil
	}
	return float64(cp.timeperframe.denominator) / float64(cp.timeperframe.numerator), nil
}

// Start video capture.
func (dev *videoDevice) Start() error {
	if dev.streaming {
		return nil
	}
	if err := dev.mapMemory(); err != nil {
		return err
	}

	for i := range dev.mmap {
		if err := dev.enqueue(i); err != nil {
			return errors.Wrap(err, "VIDIOC_QBUF")
		}
	}

	if err := dev.enableStream(); err != nil {
		return errors.Wrap(err, "VIDIOC_STREAMON")
	}
	dev.streaming = true
	return nil
}

// Stop video capture.
func (dev *videoDevice) Stop() error {
	if !dev.streaming {
		return nil
	}
	dev.streaming = false

	// Disable stream (dequeues any outstanding buffers as well).
	if err := dev.disableStream(); err != nil {
		return errors.Wrap(err, "VIDIOC_STREAMOFF")
	}

	return dev.unmapMemory()
}

// wait blocks until a frame is ready or the timeout passes.
func (dev *videoDevice) wait(timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(dev.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return errTimeout
		}
		return nil
	}
}

// ReadFrame copies the next video frame from the device into out, growing it
// if needed. Blocks until data is available or the timeout passes.
func (dev *videoDevice) ReadFrame(out []byte, timeout time.Duration) ([]byte, error) {
	if !dev.streaming {
		panic("v4l2 device: illegal state, capture not started")
	}

	if err := dev.wait(timeout); err != nil {
		return out, err
	}

	index, n, err := dev.dequeue()
	if err != nil {
		if err == syscall.EINVAL {
			err = io.EOF
		}
		return out, err
	}

	// Copy out of the mapped buffer so it can be handed straight back.
	out = append(out[:0], dev.mmap[index][:n]...)

	return out, dev.enqueue(index)
}
