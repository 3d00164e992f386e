//go:build linux
// +build linux

package v4l2

import (
	"bytes"
	"image/jpeg"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/color"
	"github.com/lanikai/alohacap/internal/device"
	"github.com/lanikai/alohacap/internal/frame"
)

// Camera is a UVC webcam or stereo camera presented as a device.Device.
// Frames are captured as YUYV when the driver offers it, MJPEG otherwise, and
// converted to BGRA on demand.
type Camera struct {
	dev *videoDevice
	cfg Config

	format      uint32
	frameWidth  int // full captured width, both views when side by side
	frameHeight int
	stride      int
	fps         float64

	raw       []byte
	bgra      []byte
	views     [2][]byte
	grabbed   bool
	converted bool
}

// Open a V4L2 video device (usually /dev/video0).
func Open(path string, cfg Config) (device.Device, error) {
	return OpenCamera(path, cfg)
}

func OpenCamera(path string, cfg Config) (*Camera, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Errorf("invalid capture size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}

	dev, err := openVideoDevice(path)
	if err != nil {
		return nil, err
	}
	if cfg.Buffers > 0 {
		dev.numBuffers = cfg.Buffers
	}

	c := &Camera{dev: dev, cfg: cfg}
	if err := c.configure(); err != nil {
		dev.Close()
		return nil, errors.Wrap(err, path)
	}
	if err := dev.Start(); err != nil {
		dev.Close()
		return nil, errors.Wrap(err, path)
	}
	return c, nil
}

func (c *Camera) configure() error {
	driver, card, err := c.dev.queryCapabilities()
	if err != nil {
		return err
	}

	width := c.cfg.Width
	if c.cfg.SideBySide {
		width *= 2
	}

	var pix v4l2_pix_format
	for _, format := range []uint32{V4L2_PIX_FMT_YUYV, V4L2_PIX_FMT_MJPEG} {
		pix, err = c.dev.SetPixelFormat(width, c.cfg.Height, format)
		if err == nil && pix.pixelformat == format {
			break
		}
	}
	if err != nil {
		return err
	}
	switch pix.pixelformat {
	case V4L2_PIX_FMT_YUYV, V4L2_PIX_FMT_MJPEG:
	default:
		return errors.Errorf("driver offers neither YUYV nor MJPEG (got %08x)", pix.pixelformat)
	}

	if int(pix.width) != width || int(pix.height) != c.cfg.Height {
		log.Warn("%s: requested %dx%d, driver chose %dx%d", c.dev.path, width, c.cfg.Height, pix.width, pix.height)
		width = int(pix.width)
		c.cfg.Height = int(pix.height)
		c.cfg.Width = width
		if c.cfg.SideBySide {
			c.cfg.Width = width / 2
		}
	}
	c.format = pix.pixelformat
	c.frameWidth = width
	c.frameHeight = int(pix.height)
	c.stride = int(pix.bytesperline)
	if c.stride < 2*width {
		c.stride = 2 * width
	}

	if c.cfg.FPS > 0 {
		fps, err := c.dev.SetFrameRate(c.cfg.FPS)
		if err != nil {
			log.Warn("%s: %v", c.dev.path, err)
		} else if fps != c.cfg.FPS {
			log.Info("%s: requested %g FPS, driver chose %g", c.dev.path, c.cfg.FPS, fps)
		}
		c.fps = fps
	}

	if c.cfg.HFlip {
		if err := c.dev.setControl(V4L2_CID_HFLIP, 1); err != nil {
			log.Warn("%s: horizontal flip: %v", c.dev.path, err)
		}
	}
	if c.cfg.VFlip {
		if err := c.dev.setControl(V4L2_CID_VFLIP, 1); err != nil {
			log.Warn("%s: vertical flip: %v", c.dev.path, err)
		}
	}

	log.Info("Opened %s (%s, %s): %dx%d %s", c.dev.path, card, driver, width, c.frameHeight, fourccString(c.format))

	c.bgra = make([]byte, 4*c.frameWidth*c.frameHeight)
	if c.cfg.SideBySide {
		n := 4 * c.cfg.Width * c.frameHeight
		c.views = [2][]byte{make([]byte, n), make([]byte, n)}
	}
	return nil
}

func fourccString(f uint32) string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

func (c *Camera) Size() (int, int) {
	return c.cfg.Width, c.frameHeight
}

func (c *Camera) FPS() float64 {
	return c.fps
}

func (c *Camera) NumImages() int {
	if c.cfg.SideBySide {
		return 2
	}
	return 1
}

func (c *Camera) HasDepth() bool {
	return false
}

func (c *Camera) NumFrames() int {
	return 0
}

// Grab waits for the next frame from the driver.
func (c *Camera) Grab() error {
	raw, err := c.dev.ReadFrame(c.raw, c.cfg.Timeout)
	c.raw = raw
	c.converted = false
	if err != nil {
		c.grabbed = false
		return err
	}
	c.grabbed = true
	return nil
}

func (c *Camera) convert() error {
	if c.converted {
		return nil
	}

	switch c.format {
	case V4L2_PIX_FMT_YUYV:
		if err := color.YUYVToBGRA(c.bgra, c.raw, c.frameWidth, c.frameHeight, c.stride); err != nil {
			return err
		}
	case V4L2_PIX_FMT_MJPEG:
		img, err := jpeg.Decode(bytes.NewReader(c.raw))
		if err != nil {
			return errors.Wrap(err, "decode MJPEG frame")
		}
		if b := img.Bounds(); b.Dx() != c.frameWidth || b.Dy() != c.frameHeight {
			return errors.Errorf("MJPEG frame is %dx%d, expected %dx%d", b.Dx(), b.Dy(), c.frameWidth, c.frameHeight)
		}
		if err := color.ImageToBGRA(c.bgra, img); err != nil {
			return err
		}
	}

	if c.cfg.SideBySide {
		if err := color.SplitSideBySide(c.views[0], c.views[1], c.bgra, c.cfg.Width, c.frameHeight, 4); err != nil {
			return err
		}
	}
	c.converted = true
	return nil
}

func (c *Camera) Image(index int, out *frame.Image) error {
	if !c.grabbed {
		return device.ErrNotGrabbed
	}
	if index < 0 || index >= c.NumImages() {
		return errors.Wrapf(device.ErrNoImage, "index %d", index)
	}
	if err := c.convert(); err != nil {
		return err
	}

	out.Reset(c.cfg.Width, c.frameHeight, frame.BGRA8)
	if c.cfg.SideBySide {
		copy(out.Pix, c.views[index])
	} else {
		copy(out.Pix, c.bgra)
	}
	return nil
}

func (c *Camera) Depth(out *frame.Image) error {
	return device.ErrNoDepth
}

// Calibration returns nominal intrinsics. UVC exposes no factory
// calibration.
func (c *Camera) Calibration() (device.Calibration, error) {
	log.Warn("%s: no factory calibration over UVC, using nominal intrinsics", c.dev.path)
	return device.NominalCalibration(c.cfg.Width, c.frameHeight, c.cfg.SideBySide), nil
}

func (c *Camera) Close() error {
	return c.dev.Close()
}
