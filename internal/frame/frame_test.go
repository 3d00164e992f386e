package frame

import (
	"image"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldSet(t *testing.T) {
	s := NewFieldSet(Depth, Left)
	assert.True(t, s.Has(Left))
	assert.False(t, s.Has(Right))
	assert.True(t, s.Has(Depth))
	assert.Equal(t, []Field{Left, Depth}, s.List())

	assert.Equal(t, []Field{Left, Right, Depth}, s.With(Right).List())
	assert.Empty(t, FieldSet(0).List())
}

func TestFieldNames(t *testing.T) {
	assert.Equal(t, "left", Left.Name())
	assert.Equal(t, "right", Right.Name())
	assert.Equal(t, "depth", Depth.Name())
	assert.Equal(t, Depth32F, Depth.Kind())
	assert.Equal(t, BGRA8, Right.Kind())
}

func TestFrameSetGet(t *testing.T) {
	var f Frame
	f.Reset(7, time.Unix(10, 0))
	assert.False(t, f.Has(Left))

	img := NewImage(2, 2, BGRA8)
	f.Set(Left, img)
	assert.Same(t, img, f.Get(Left))
	assert.Nil(t, f.Get(Right))
	assert.Nil(t, f.Get(Field(42)))

	f.Reset(8, time.Unix(11, 0))
	assert.Equal(t, 8, f.Seq)
	assert.False(t, f.Has(Left))
}

func TestDescriptorValidate(t *testing.T) {
	assert.NoError(t, Descriptor{"left", 640, 480, BGRA8}.Validate())
	assert.Equal(t, 640*480*4, Descriptor{"left", 640, 480, BGRA8}.Size())

	assert.Error(t, Descriptor{"", 640, 480, BGRA8}.Validate())
	assert.Error(t, Descriptor{"left", 0, 480, BGRA8}.Validate())
	assert.Error(t, Descriptor{"left", 640, 480, Kind(9)}.Validate())
}

func TestImageResetReusesBuffer(t *testing.T) {
	img := NewImage(4, 4, BGRA8)
	p := &img.Pix[0]

	img.Reset(2, 2, Depth32F)
	assert.Len(t, img.Pix, 16)
	assert.Same(t, p, &img.Pix[0])
	assert.NoError(t, img.CheckSize())

	img.Pix = img.Pix[:3]
	assert.Error(t, img.CheckSize())
}

func TestImageClone(t *testing.T) {
	img := NewImage(1, 1, BGRA8)
	copy(img.Pix, []byte{1, 2, 3, 4})
	c := img.Clone()
	img.Pix[0] = 9
	assert.Equal(t, []byte{1, 2, 3, 4}, c.Pix)

	var nilImg *Image
	assert.Nil(t, nilImg.Clone())
	assert.True(t, nilImg.Empty())
}

func TestToImageColor(t *testing.T) {
	img := NewImage(1, 1, BGRA8)
	copy(img.Pix, []byte{10, 20, 30, 255})

	out, err := img.ToImage()
	require.NoError(t, err)
	rgba := out.(*image.RGBA)
	assert.Equal(t, []byte{30, 20, 10, 255}, rgba.Pix)
}

func TestToImageDepth(t *testing.T) {
	img := NewImage(4, 1, Depth32F)
	img.SetDepth(0, 0, 1.5)
	img.SetDepth(1, 0, float32(math.NaN()))
	img.SetDepth(2, 0, 100)
	img.SetDepth(3, 0, -1)
	assert.Equal(t, float32(1.5), img.DepthAt(0, 0))

	out, err := img.ToImage()
	require.NoError(t, err)
	g := out.(*image.Gray16)
	assert.Equal(t, uint16(1500), g.Gray16At(0, 0).Y)
	assert.Equal(t, uint16(0), g.Gray16At(1, 0).Y)
	assert.Equal(t, uint16(math.MaxUint16), g.Gray16At(2, 0).Y)
	assert.Equal(t, uint16(0), g.Gray16At(3, 0).Y)
}
