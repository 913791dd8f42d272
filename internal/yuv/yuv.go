// Package yuv rearranges raw camera frames into tightly packed I420, the
// layout hardware encoders take as YUV420Planar input.
//
// None of the conversions allocate; callers own both buffers and reuse them
// across frames.
package yuv

import (
	"github.com/pkg/errors"
)

// ChromaOrder is the order in which a source buffer stores its chroma planes
// (or, for semiplanar sources, the order within each interleaved pair).
type ChromaOrder int

const (
	// V before U, as in YV12 and NV21.
	VFirst ChromaOrder = iota

	// U before V. Some camera HALs label buffers YV12 but fill them this way.
	UFirst
)

func (o ChromaOrder) String() string {
	if o == UFirst {
		return "u-first"
	}
	return "v-first"
}

// ParseChromaOrder accepts "u-first" or "v-first".
func ParseChromaOrder(s string) (ChromaOrder, error) {
	switch s {
	case "v-first", "vu", "":
		return VFirst, nil
	case "u-first", "uv":
		return UFirst, nil
	}
	return VFirst, errors.Errorf("unknown chroma order %q", s)
}

// Align16 rounds n up to the next multiple of 16.
func Align16(n int) int {
	return (n + 15) &^ 15
}

// YV12Strides returns the luma and chroma row strides of a YV12 frame of the
// given width. Both are 16-byte aligned.
func YV12Strides(width int) (yStride, uvStride int) {
	yStride = Align16(width)
	uvStride = Align16(yStride / 2)
	return
}

// YV12Size returns the byte size of a YV12 frame including row padding.
func YV12Size(width, height int) int {
	yStride, uvStride := YV12Strides(width)
	return yStride*height + 2*uvStride*(height/2)
}

// I420Size returns the byte size of a tightly packed I420 frame.
func I420Size(width, height int) int {
	return width*height + 2*(width/2)*(height/2)
}

func checkDims(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	return nil
}

func checkLen(what string, have, need int) error {
	if have < need {
		return errors.Errorf("%s buffer too small: %d bytes, need %d", what, have, need)
	}
	return nil
}

// copyPlane copies rows of width bytes from a strided source into a tightly
// packed destination. Unpadded planes are copied in one block.
func copyPlane(dst, src []byte, width, height, srcStride int) {
	if srcStride == width {
		copy(dst[:width*height], src[:width*height])
		return
	}
	for row := 0; row < height; row++ {
		copy(dst[row*width:(row+1)*width], src[row*srcStride:row*srcStride+width])
	}
}

// YV12ToI420 converts a YV12 frame (16-aligned strides) into I420. order
// says which chroma plane the source stores first; the destination is always
// U then V. It returns the number of bytes written to dst.
func YV12ToI420(dst, src []byte, width, height int, order ChromaOrder) (int, error) {
	if err := checkDims(width, height); err != nil {
		return 0, err
	}
	if err := checkLen("source", len(src), YV12Size(width, height)); err != nil {
		return 0, err
	}
	n := I420Size(width, height)
	if err := checkLen("destination", len(dst), n); err != nil {
		return 0, err
	}

	yStride, uvStride := YV12Strides(width)
	cw, ch := width/2, height/2

	copyPlane(dst, src, width, height, yStride)

	first := src[yStride*height:]
	second := first[uvStride*ch:]
	u, v := second, first
	if order == UFirst {
		u, v = first, second
	}

	dstU := dst[width*height:]
	dstV := dstU[cw*ch:]
	copyPlane(dstU, u, cw, ch, uvStride)
	copyPlane(dstV, v, cw, ch, uvStride)
	return n, nil
}

// SemiplanarToI420 converts an NV21 (VFirst) or NV12 (UFirst) frame into I420.
func SemiplanarToI420(dst, src []byte, width, height int, order ChromaOrder) (int, error) {
	if err := checkDims(width, height); err != nil {
		return 0, err
	}
	n := I420Size(width, height)
	if err := checkLen("source", len(src), n); err != nil {
		return 0, err
	}
	if err := checkLen("destination", len(dst), n); err != nil {
		return 0, err
	}

	luma := width * height
	copy(dst[:luma], src[:luma])

	cw, ch := width/2, height/2
	dstU := dst[luma : luma+cw*ch]
	dstV := dst[luma+cw*ch : n]
	uOff, vOff := 1, 0
	if order == UFirst {
		uOff, vOff = 0, 1
	}
	// Interleaved rows are width bytes wide (rounded down to whole pairs).
	for row := 0; row < ch; row++ {
		line := src[luma+row*width:]
		for col := 0; col < cw; col++ {
			dstU[row*cw+col] = line[2*col+uOff]
			dstV[row*cw+col] = line[2*col+vOff]
		}
	}
	return n, nil
}
