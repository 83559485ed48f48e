//go:build linux
// +build linux

package v4l2

// Kernel ABI structures from include/uapi/linux/videodev2.h. Field order and
// padding must match the C layout on every supported architecture.

import (
	"bytes"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	V4L2_BUF_TYPE_VIDEO_CAPTURE = 1
	V4L2_MEMORY_MMAP            = 1
	V4L2_FIELD_ANY              = 0
	V4L2_TUNER_ANALOG_TV        = 2
)

type v4l2_capability struct { // size 104
	driver       [16]byte
	card         [32]byte
	bus_info     [32]byte
	version      uint32
	capabilities uint32
	device_caps  uint32
	reserved     [3]uint32
}

type v4l2_input struct { // size 80 (76 on 386)
	index        uint32
	name         [32]byte
	typ          uint32
	audioset     uint32
	tuner        uint32
	std          uint64
	status       uint32
	capabilities uint32
	reserved     [3]uint32
}

type v4l2_fract struct {
	numerator   uint32
	denominator uint32
}

type v4l2_standard struct { // size 72
	index       uint32
	id          uint64
	name        [24]byte
	frameperiod v4l2_fract
	framelines  uint32
	reserved    [4]uint32
}

type v4l2_fmtdesc struct { // size 64
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelformat uint32
	mbus_code   uint32
	reserved    [3]uint32
}

type v4l2_pix_format struct { // size 48
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

// The kernel union holds pointers in some members, so it is pointer aligned:
// 208 bytes on 64-bit, 204 on 32-bit.
type v4l2_format struct {
	typ uint32
	fmt struct {
		_   [0]uintptr
		pix v4l2_pix_format
		_   [200 - 48]byte
	}
}

type v4l2_captureparm struct { // size 40
	capability   uint32
	capturemode  uint32
	timeperframe v4l2_fract
	extendedmode uint32
	readbuffers  uint32
	reserved     [4]uint32
}

type v4l2_streamparm struct { // size 204
	typ  uint32
	parm struct {
		capture v4l2_captureparm
		_       [200 - 40]byte
	}
}

type v4l2_queryctrl struct { // size 68
	id            uint32
	typ           uint32
	name          [32]byte
	minimum       int32
	maximum       int32
	step          int32
	default_value int32
	flags         uint32
	reserved      [2]uint32
}

type v4l2_frequency struct { // size 44
	tuner     uint32
	typ       uint32
	frequency uint32
	reserved  [8]uint32
}

type v4l2_requestbuffers struct { // size 20
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

type v4l2_timecode struct { // size 16
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

// size 88 on 64-bit, 68 on 32-bit
type v4l2_buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	timestamp unix.Timeval
	timecode  v4l2_timecode
	sequence  uint32
	memory    uint32
	m         uintptr // union { offset; userptr; planes; fd }
	length    uint32
	reserved2 uint32
	request   uint32
}

// offset reads the 32-bit offset member of the m union, which always
// occupies the first four bytes regardless of byte order.
func (b *v4l2_buffer) offset() uint32 {
	return *(*uint32)(unsafe.Pointer(&b.m))
}

// Convert a fixed-size NUL-terminated C string.
func str(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
