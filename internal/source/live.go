package source

import (
	"io"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/device"
	"github.com/lanikai/alohacap/internal/frame"
)

// LiveSource streams from a device. Capture failures are transient; only a
// finite device (container playback) reaches end of stream.
type LiveSource struct {
	dev  device.Device
	name string
}

func NewLive(dev device.Device, name string) *LiveSource {
	return &LiveSource{dev: dev, name: name}
}

func (*LiveSource) source() {}

// Device returns the underlying device, for container recording and
// calibration.
func (s *LiveSource) Device() device.Device {
	return s.dev
}

func (s *LiveSource) NumFrames() int {
	return s.dev.NumFrames()
}

func (s *LiveSource) FPS() float64 {
	return s.dev.FPS()
}

func (s *LiveSource) HasDepth() bool {
	return s.dev.HasDepth()
}

func (s *LiveSource) NumImages() int {
	return s.dev.NumImages()
}

func (s *LiveSource) Size() (int, int) {
	return s.dev.Size()
}

func (s *LiveSource) Describe() string {
	return describe("camera", s.name, s)
}

func (s *LiveSource) Depth(out *frame.Image) error {
	return s.dev.Depth(out)
}

func (s *LiveSource) Image(index int, out *frame.Image) error {
	return s.dev.Image(index, out)
}

func (s *LiveSource) Grab() error {
	err := s.dev.Grab()
	if errors.Cause(err) == io.EOF {
		return ErrEndOfStream
	}
	return err
}

// Calibration returns the device calibration, if the device has one.
func (s *LiveSource) Calibration() (device.Calibration, error) {
	c, ok := s.dev.(device.Calibrator)
	if !ok {
		return device.Calibration{}, errors.Errorf("%s has no calibration", s.name)
	}
	return c.Calibration()
}

// Playback reports whether the device is replaying a container.
func (s *LiveSource) Playback() bool {
	_, ok := s.dev.(*device.Playback)
	return ok
}

func (s *LiveSource) Close() error {
	return s.dev.Close()
}
