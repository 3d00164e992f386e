// Copyright 2019 Lanikai Labs. All rights reserved.

// Package color converts between the packed pixel layouts used by capture
// devices, sinks, and the standard image package.
package color

import (
	"encoding/binary"
	"image"
	stdcolor "image/color"
	"math"

	"github.com/pkg/errors"
)

// YUYVToBGRA converts YUYV (i.e. YUY2) packed 4:2:2 to BGRA. Each 4-byte YUYV
// group yields two pixels. srcStride is the length of a source row in bytes,
// which may exceed 2*width when the driver pads rows.
func YUYVToBGRA(dst, src []byte, width, height, srcStride int) error {
	if width%2 != 0 {
		return errors.Errorf("YUYV width must be even, got %d", width)
	}
	if len(dst) < 4*width*height {
		return errors.Errorf("destination too small: %d bytes for %dx%d", len(dst), width, height)
	}
	if srcStride < 2*width || len(src) < srcStride*(height-1)+2*width {
		return errors.Errorf("source too small: %d bytes for %dx%d stride %d", len(src), width, height, srcStride)
	}

	for y := 0; y < height; y++ {
		row := src[y*srcStride : y*srcStride+2*width]
		out := dst[4*width*y : 4*width*(y+1)]
		for i, o := 0, 0; i < len(row); i, o = i+4, o+8 {
			y0, u, y1, v := row[i], row[i+1], row[i+2], row[i+3]
			putBGRA(out[o:], y0, u, v)
			putBGRA(out[o+4:], y1, u, v)
		}
	}
	return nil
}

// BT.601 limited range, fixed point with 8 fractional bits.
func putBGRA(p []byte, y, u, v byte) {
	c := 298 * (int(y) - 16)
	d := int(u) - 128
	e := int(v) - 128

	p[0] = clamp((c + 516*d + 128) >> 8)
	p[1] = clamp((c - 100*d - 208*e + 128) >> 8)
	p[2] = clamp((c + 409*e + 128) >> 8)
	p[3] = 0xff
}

func clamp(x int) byte {
	if x < 0 {
		return 0
	}
	if x > 255 {
		return 255
	}
	return byte(x)
}

// SwapRB converts BGRA to RGBA, or RGBA to BGRA. dst and src may be the same
// slice.
func SwapRB(dst, src []byte) {
	for i := 0; i+3 < len(src) && i+3 < len(dst); i += 4 {
		b, g, r, a := src[i], src[i+1], src[i+2], src[i+3]
		dst[i], dst[i+1], dst[i+2], dst[i+3] = r, g, b, a
	}
}

// SplitSideBySide copies the left and right halves of a packed image that is
// 2*width pixels wide into separate buffers of width pixels each. bpp is the
// number of bytes per pixel.
func SplitSideBySide(left, right, src []byte, width, height, bpp int) error {
	row := width * bpp
	if len(src) < 2*row*height || len(left) < row*height || len(right) < row*height {
		return errors.Errorf("side-by-side buffers too small for %dx%d", width, height)
	}
	for y := 0; y < height; y++ {
		s := src[2*row*y:]
		copy(left[row*y:row*(y+1)], s[:row])
		copy(right[row*y:row*(y+1)], s[row:2*row])
	}
	return nil
}

// ImageToBGRA packs img into dst as BGRA. Decoded JPEG frames (*image.YCbCr)
// are converted directly; anything else goes through the color model.
func ImageToBGRA(dst []byte, img image.Image) error {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	if len(dst) < 4*w*h {
		return errors.Errorf("destination too small: %d bytes for %dx%d", len(dst), w, h)
	}

	if m, ok := img.(*image.YCbCr); ok {
		for y := 0; y < h; y++ {
			out := dst[4*w*y : 4*w*(y+1)]
			for x := 0; x < w; x++ {
				yi := m.YOffset(r.Min.X+x, r.Min.Y+y)
				ci := m.COffset(r.Min.X+x, r.Min.Y+y)
				cr, cg, cb := stdcolor.YCbCrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
				out[4*x], out[4*x+1], out[4*x+2], out[4*x+3] = cb, cg, cr, 0xff
			}
		}
		return nil
	}

	for y := 0; y < h; y++ {
		out := dst[4*w*y : 4*w*(y+1)]
		for x := 0; x < w; x++ {
			cr, cg, cb, ca := img.At(r.Min.X+x, r.Min.Y+y).RGBA()
			out[4*x], out[4*x+1], out[4*x+2], out[4*x+3] = byte(cb>>8), byte(cg>>8), byte(cr>>8), byte(ca>>8)
		}
	}
	return nil
}

// DepthToGray maps little-endian float32 depth samples to 8-bit gray, near
// is bright and far is dark. Samples at or beyond far, and invalid samples,
// become black.
func DepthToGray(dst, src []byte, far float32) {
	n := len(src) / 4
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		d := math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
		if !(d > 0) || d >= far || math.IsInf(float64(d), 0) {
			dst[i] = 0
			continue
		}
		dst[i] = byte(255 - int(254*d/far))
	}
}
