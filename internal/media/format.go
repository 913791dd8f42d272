package media

import (
	"fmt"
	"strings"
)

// Encoding names a media encoding.
type Encoding string

const (
	H264    Encoding = "H264"
	VP8     Encoding = "VP8"
	H263P   Encoding = "H263-1998"
	YUV     Encoding = "YUV"
	SURFACE Encoding = "SURFACE"
)

// IsRaw reports whether the encoding carries uncompressed frames.
func (e Encoding) IsRaw() bool {
	return e == YUV || e == SURFACE
}

// PixelLayout describes how a raw frame is arranged in memory.
type PixelLayout int

const (
	LayoutUnspecified PixelLayout = iota

	// Three planes Y, U, V with tight strides.
	I420

	// Three planes Y, V, U. Strides are aligned to 16 bytes, so rows may
	// carry padding.
	YV12

	// Y plane followed by interleaved U/V.
	NV12

	// Y plane followed by interleaved V/U.
	NV21

	// Packed 4:2:2, Y0 U Y1 V per pixel pair.
	YUYV

	// Pixels live in a GPU surface, not in memory.
	Opaque
)

func (l PixelLayout) String() string {
	switch l {
	case I420:
		return "I420"
	case YV12:
		return "YV12"
	case NV12:
		return "NV12"
	case NV21:
		return "NV21"
	case YUYV:
		return "YUYV"
	case Opaque:
		return "opaque"
	default:
		return "unspecified"
	}
}

// Size is a frame resolution in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Format is an immutable media format description. Zero-valued fields act as
// wildcards when matching.
type Format struct {
	Encoding  Encoding
	Size      Size
	Layout    PixelLayout
	FrameRate float64

	// Encoding-specific parameters, e.g. "packetization-mode=1".
	Params string
}

// RawFormat describes uncompressed frames in memory.
func RawFormat(layout PixelLayout, size Size, frameRate float64) Format {
	return Format{Encoding: YUV, Size: size, Layout: layout, FrameRate: frameRate}
}

// SurfaceFormat describes frames delivered through a GPU surface.
func SurfaceFormat(size Size, frameRate float64) Format {
	return Format{Encoding: SURFACE, Size: size, Layout: Opaque, FrameRate: frameRate}
}

// VideoFormat describes a compressed video stream.
func VideoFormat(enc Encoding, size Size, frameRate float64, params string) Format {
	return Format{Encoding: enc, Size: size, FrameRate: frameRate, Params: params}
}

func (f Format) IsRaw() bool {
	return f.Encoding == YUV
}

func (f Format) IsSurface() bool {
	return f.Encoding == SURFACE
}

// WithSize returns a copy of f with a different resolution.
func (f Format) WithSize(size Size) Format {
	f.Size = size
	return f
}

// WithLayout returns a copy of f with a different pixel layout.
func (f Format) WithLayout(layout PixelLayout) Format {
	f.Layout = layout
	return f
}

// Matches reports whether f and other describe the same stream. Encodings must
// be equal; size, layout and parameters must agree where both sides set them.
func (f Format) Matches(other Format) bool {
	if f.Encoding != other.Encoding {
		return false
	}
	if !f.Size.IsZero() && !other.Size.IsZero() && f.Size != other.Size {
		return false
	}
	if f.Layout != LayoutUnspecified && other.Layout != LayoutUnspecified && f.Layout != other.Layout {
		return false
	}
	if f.Params != "" && other.Params != "" && f.Params != other.Params {
		return false
	}
	return true
}

// FrameSize returns the number of bytes one frame occupies in memory, or 0 for
// compressed or surface formats.
func (f Format) FrameSize() int {
	if !f.IsRaw() {
		return 0
	}
	w, h := f.Size.Width, f.Size.Height
	switch f.Layout {
	case YV12:
		yStride := align16(w)
		uvStride := align16(yStride / 2)
		return yStride*h + 2*uvStride*(h/2)
	case YUYV:
		return 2 * w * h
	case I420, NV12, NV21, LayoutUnspecified:
		return w*h + 2*((w/2)*(h/2))
	default:
		return 0
	}
}

func align16(n int) int {
	return (n + 15) &^ 15
}

func (f Format) String() string {
	var b strings.Builder
	b.WriteString(string(f.Encoding))
	if !f.Size.IsZero() {
		fmt.Fprintf(&b, " %s", f.Size)
	}
	if f.Layout != LayoutUnspecified {
		fmt.Fprintf(&b, " %s", f.Layout)
	}
	if f.FrameRate > 0 {
		fmt.Fprintf(&b, " @%gfps", f.FrameRate)
	}
	if f.Params != "" {
		fmt.Fprintf(&b, " [%s]", f.Params)
	}
	return b.String()
}
