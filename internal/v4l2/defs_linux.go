//go:build linux && (amd64 || arm64 || riscv64)

package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Kernel ABI from <linux/videodev2.h>, laid out for 64-bit platforms.

const (
	V4L2_BUF_TYPE_VIDEO_CAPTURE = 1
	V4L2_MEMORY_MMAP            = 1
	V4L2_FIELD_NONE             = 1

	V4L2_CAP_VIDEO_CAPTURE = 0x00000001
	V4L2_CAP_STREAMING     = 0x04000000
	V4L2_CAP_DEVICE_CAPS   = 0x80000000

	V4L2_FRMSIZE_TYPE_DISCRETE   = 1
	V4L2_FRMSIZE_TYPE_CONTINUOUS = 2
	V4L2_FRMSIZE_TYPE_STEPWISE   = 3

	V4L2_CID_HFLIP  = 0x00980914
	V4L2_CID_VFLIP  = 0x00980915
	V4L2_CID_ROTATE = 0x00980922
)

type v4l2_capability struct {
	driver       [16]byte
	card         [32]byte
	bus_info     [32]byte
	version      uint32
	capabilities uint32
	device_caps  uint32
	reserved     [3]uint32
}

type v4l2_fmtdesc struct {
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelformat uint32
	mbus_code   uint32
	reserved    [3]uint32
}

type v4l2_pix_format struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcr_enc    uint32
	quantization uint32
	xfer_func    uint32
}

type v4l2_format struct {
	typ uint32
	_   uint32

	// Union; the capture variant is a v4l2_pix_format.
	fmt [200]byte
}

func (f *v4l2_format) pix() *v4l2_pix_format {
	return (*v4l2_pix_format)(unsafe.Pointer(&f.fmt[0]))
}

type v4l2_requestbuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

type v4l2_timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

type v4l2_buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	_         uint32
	timestamp unix.Timeval
	timecode  v4l2_timecode
	sequence  uint32
	memory    uint32

	// Union; for MMAP buffers the first 4 bytes are the mapping offset.
	m uint64

	length    uint32
	reserved2 uint32
	request   uint32
	_         uint32
}

func (b *v4l2_buffer) offset() uint32 {
	return *(*uint32)(unsafe.Pointer(&b.m))
}

type v4l2_frmsize_discrete struct {
	width  uint32
	height uint32
}

type v4l2_frmsize_stepwise struct {
	min_width   uint32
	max_width   uint32
	step_width  uint32
	min_height  uint32
	max_height  uint32
	step_height uint32
}

type v4l2_frmsizeenum struct {
	index        uint32
	pixel_format uint32
	typ          uint32

	// Union of v4l2_frmsize_discrete and v4l2_frmsize_stepwise.
	size [6]uint32

	reserved [2]uint32
}

func (e *v4l2_frmsizeenum) discrete() v4l2_frmsize_discrete {
	return v4l2_frmsize_discrete{e.size[0], e.size[1]}
}

func (e *v4l2_frmsizeenum) stepwise() v4l2_frmsize_stepwise {
	return v4l2_frmsize_stepwise{e.size[0], e.size[1], e.size[2], e.size[3], e.size[4], e.size[5]}
}

type v4l2_control struct {
	id    uint32
	value int32
}

const (
	iocWrite = 1
	iocRead  = 2
)

const (
	VIDIOC_QUERYCAP        = iocRead<<30 | unsafe.Sizeof(v4l2_capability{})<<16 | 'V'<<8 | 0
	VIDIOC_ENUM_FMT        = (iocRead|iocWrite)<<30 | unsafe.Sizeof(v4l2_fmtdesc{})<<16 | 'V'<<8 | 2
	VIDIOC_S_FMT           = (iocRead|iocWrite)<<30 | unsafe.Sizeof(v4l2_format{})<<16 | 'V'<<8 | 5
	VIDIOC_REQBUFS         = (iocRead|iocWrite)<<30 | unsafe.Sizeof(v4l2_requestbuffers{})<<16 | 'V'<<8 | 8
	VIDIOC_QUERYBUF        = (iocRead|iocWrite)<<30 | unsafe.Sizeof(v4l2_buffer{})<<16 | 'V'<<8 | 9
	VIDIOC_QBUF            = (iocRead|iocWrite)<<30 | unsafe.Sizeof(v4l2_buffer{})<<16 | 'V'<<8 | 15
	VIDIOC_DQBUF           = (iocRead|iocWrite)<<30 | unsafe.Sizeof(v4l2_buffer{})<<16 | 'V'<<8 | 17
	VIDIOC_STREAMON        = iocWrite<<30 | unsafe.Sizeof(int32(0))<<16 | 'V'<<8 | 18
	VIDIOC_STREAMOFF       = iocWrite<<30 | unsafe.Sizeof(int32(0))<<16 | 'V'<<8 | 19
	VIDIOC_S_CTRL          = (iocRead|iocWrite)<<30 | unsafe.Sizeof(v4l2_control{})<<16 | 'V'<<8 | 28
	VIDIOC_ENUM_FRAMESIZES = (iocRead|iocWrite)<<30 | unsafe.Sizeof(v4l2_frmsizeenum{})<<16 | 'V'<<8 | 74
)
