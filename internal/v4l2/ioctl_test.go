//go:build linux && (amd64 || arm64)
// +build linux
// +build amd64 arm64

package v4l2

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// Reference values from <linux/videodev2.h> on a 64-bit kernel.
func TestRequestCodes64(t *testing.T) {
	assert.EqualValues(t, 0x80685600, VIDIOC_QUERYCAP)
	assert.EqualValues(t, 0xc0405602, VIDIOC_ENUM_FMT)
	assert.EqualValues(t, 0xc0d05605, VIDIOC_S_FMT)
	assert.EqualValues(t, 0xc0145608, VIDIOC_REQBUFS)
	assert.EqualValues(t, 0xc0585609, VIDIOC_QUERYBUF)
	assert.EqualValues(t, 0xc058560f, VIDIOC_QBUF)
	assert.EqualValues(t, 0xc0585611, VIDIOC_DQBUF)
	assert.EqualValues(t, 0x40045612, VIDIOC_STREAMON)
	assert.EqualValues(t, 0x40045613, VIDIOC_STREAMOFF)
	assert.EqualValues(t, 0xc0cc5615, VIDIOC_G_PARM)
	assert.EqualValues(t, 0x80085617, VIDIOC_G_STD)
	assert.EqualValues(t, 0x40085618, VIDIOC_S_STD)
	assert.EqualValues(t, 0xc0485619, VIDIOC_ENUMSTD)
	assert.EqualValues(t, 0xc050561a, VIDIOC_ENUMINPUT)
	assert.EqualValues(t, 0xc0445624, VIDIOC_QUERYCTRL)
	assert.EqualValues(t, 0x80045626, VIDIOC_G_INPUT)
	assert.EqualValues(t, 0xc0045627, VIDIOC_S_INPUT)
	assert.EqualValues(t, 0x402c5639, VIDIOC_S_FREQUENCY)
}

func TestStructLayout64(t *testing.T) {
	assert.EqualValues(t, 104, unsafe.Sizeof(v4l2_capability{}))
	assert.EqualValues(t, 80, unsafe.Sizeof(v4l2_input{}))
	assert.EqualValues(t, 72, unsafe.Sizeof(v4l2_standard{}))
	assert.EqualValues(t, 208, unsafe.Sizeof(v4l2_format{}))
	assert.EqualValues(t, 8, unsafe.Offsetof(v4l2_format{}.fmt))
	assert.EqualValues(t, 204, unsafe.Sizeof(v4l2_streamparm{}))
	assert.EqualValues(t, 88, unsafe.Sizeof(v4l2_buffer{}))
	assert.EqualValues(t, 64, unsafe.Offsetof(v4l2_buffer{}.m))
	assert.EqualValues(t, 72, unsafe.Offsetof(v4l2_buffer{}.length))
}

func TestBufferOffset(t *testing.T) {
	var b v4l2_buffer
	*(*uint32)(unsafe.Pointer(&b.m)) = 0x12345000
	assert.EqualValues(t, 0x12345000, b.offset())
}

func TestStr(t *testing.T) {
	assert.Equal(t, "uvcvideo", str([]byte{'u', 'v', 'c', 'v', 'i', 'd', 'e', 'o', 0, 'x'}))
	assert.Equal(t, "abc", str([]byte("abc")))
}
