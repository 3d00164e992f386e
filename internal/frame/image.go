package frame

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/color"
)

// Kind describes the pixel layout of a payload.
type Kind uint8

const (
	// BGRA8 is 8-bit color, four bytes per pixel in B, G, R, A order.
	BGRA8 Kind = iota + 1

	// Depth32F is one little-endian float32 per pixel, in metres. Zero, NaN,
	// and infinities mean no measurement.
	Depth32F
)

func (k Kind) BytesPerPixel() int {
	switch k {
	case BGRA8, Depth32F:
		return 4
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case BGRA8:
		return "BGRA_8C"
	case Depth32F:
		return "DEPTH_32F"
	default:
		return "invalid"
	}
}

// Descriptor declares a field to a sink before the first frame is written.
type Descriptor struct {
	Name   string
	Width  int
	Height int
	Kind   Kind
}

// Size returns the payload size in bytes.
func (d Descriptor) Size() int {
	return d.Width * d.Height * d.Kind.BytesPerPixel()
}

func (d Descriptor) Validate() error {
	if d.Name == "" {
		return errors.New("field name is empty")
	}
	if len(d.Name) > 255 {
		return errors.Errorf("field name %.16q... too long", d.Name)
	}
	if d.Width <= 0 || d.Height <= 0 {
		return errors.Errorf("field %s: invalid dimensions %dx%d", d.Name, d.Width, d.Height)
	}
	if d.Kind.BytesPerPixel() == 0 {
		return errors.Errorf("field %s: invalid kind %d", d.Name, d.Kind)
	}
	return nil
}

// An Image is an owned pixel buffer. Pix is tightly packed, row-major, with no
// padding between rows.
type Image struct {
	Width  int
	Height int
	Kind   Kind
	Pix    []byte
}

func NewImage(width, height int, kind Kind) *Image {
	img := new(Image)
	img.Reset(width, height, kind)
	return img
}

// Reset resizes img, reusing the existing buffer when it is large enough.
// Pixel contents are unspecified afterwards.
func (img *Image) Reset(width, height int, kind Kind) {
	n := width * height * kind.BytesPerPixel()
	if cap(img.Pix) < n {
		img.Pix = make([]byte, n)
	}
	img.Pix = img.Pix[:n]
	img.Width = width
	img.Height = height
	img.Kind = kind
}

// Empty reports whether img holds no pixels.
func (img *Image) Empty() bool {
	return img == nil || img.Width == 0 || img.Height == 0 || len(img.Pix) == 0
}

func (img *Image) Size() int {
	return img.Width * img.Height * img.Kind.BytesPerPixel()
}

// CheckSize verifies that the buffer length matches the declared geometry.
func (img *Image) CheckSize() error {
	if want := img.Size(); len(img.Pix) != want {
		return errors.Errorf("%dx%d %v image has %d bytes, expected %d",
			img.Width, img.Height, img.Kind, len(img.Pix), want)
	}
	return nil
}

func (img *Image) Clone() *Image {
	if img == nil {
		return nil
	}
	c := *img
	c.Pix = append([]byte(nil), img.Pix...)
	return &c
}

// Descriptor describes img as a field called name.
func (img *Image) Descriptor(name string) Descriptor {
	return Descriptor{name, img.Width, img.Height, img.Kind}
}

// DepthAt returns the depth sample at (x, y) of a Depth32F image.
func (img *Image) DepthAt(x, y int) float32 {
	i := 4 * (y*img.Width + x)
	return math.Float32frombits(binary.LittleEndian.Uint32(img.Pix[i:]))
}

// SetDepth stores a depth sample at (x, y) of a Depth32F image.
func (img *Image) SetDepth(x, y int, metres float32) {
	i := 4 * (y*img.Width + x)
	binary.LittleEndian.PutUint32(img.Pix[i:], math.Float32bits(metres))
}

// ToImage converts img for use with the standard image encoders. Color images
// become *image.RGBA; depth becomes *image.Gray16 in millimetres, saturating
// at 65.535 m, with invalid samples as zero.
func (img *Image) ToImage() (image.Image, error) {
	if err := img.CheckSize(); err != nil {
		return nil, err
	}

	r := image.Rect(0, 0, img.Width, img.Height)
	switch img.Kind {
	case BGRA8:
		out := image.NewRGBA(r)
		color.SwapRB(out.Pix, img.Pix)
		return out, nil

	case Depth32F:
		out := image.NewGray16(r)
		for i := 0; i < img.Width*img.Height; i++ {
			d := math.Float32frombits(binary.LittleEndian.Uint32(img.Pix[4*i:]))
			mm := depthToMillimetres(d)
			out.Pix[2*i] = byte(mm >> 8)
			out.Pix[2*i+1] = byte(mm)
		}
		return out, nil
	}

	return nil, errors.Errorf("cannot convert %v image", img.Kind)
}

func depthToMillimetres(d float32) uint16 {
	if d <= 0 || math.IsNaN(float64(d)) || math.IsInf(float64(d), 0) {
		return 0
	}
	mm := float64(d) * 1000
	if mm >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(mm + 0.5)
}
