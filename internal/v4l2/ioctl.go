//go:build linux
// +build linux

package v4l2

import "unsafe"

// Request codes follow the asm-generic encoding used by x86, arm and arm64.
// Architectures with a different layout (mips, powerpc, sparc) are not
// supported.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits
)

func ioc(dir, nr, size uintptr) uint {
	return uint(dir<<iocDirShift | 'V'<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift)
}

func ior(nr, size uintptr) uint  { return ioc(iocRead, nr, size) }
func iow(nr, size uintptr) uint  { return ioc(iocWrite, nr, size) }
func iowr(nr, size uintptr) uint { return ioc(iocRead|iocWrite, nr, size) }

var (
	sizeofInt   = unsafe.Sizeof(int32(0))
	sizeofStdID = unsafe.Sizeof(uint64(0))

	VIDIOC_QUERYCAP    = ior(0, unsafe.Sizeof(v4l2_capability{}))
	VIDIOC_ENUM_FMT    = iowr(2, unsafe.Sizeof(v4l2_fmtdesc{}))
	VIDIOC_G_FMT       = iowr(4, unsafe.Sizeof(v4l2_format{}))
	VIDIOC_S_FMT       = iowr(5, unsafe.Sizeof(v4l2_format{}))
	VIDIOC_REQBUFS     = iowr(8, unsafe.Sizeof(v4l2_requestbuffers{}))
	VIDIOC_QUERYBUF    = iowr(9, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_QBUF        = iowr(15, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_DQBUF       = iowr(17, unsafe.Sizeof(v4l2_buffer{}))
	VIDIOC_STREAMON    = iow(18, sizeofInt)
	VIDIOC_STREAMOFF   = iow(19, sizeofInt)
	VIDIOC_G_PARM      = iowr(21, unsafe.Sizeof(v4l2_streamparm{}))
	VIDIOC_G_STD       = ior(23, sizeofStdID)
	VIDIOC_S_STD       = iow(24, sizeofStdID)
	VIDIOC_ENUMSTD     = iowr(25, unsafe.Sizeof(v4l2_standard{}))
	VIDIOC_ENUMINPUT   = iowr(26, unsafe.Sizeof(v4l2_input{}))
	VIDIOC_QUERYCTRL   = iowr(36, unsafe.Sizeof(v4l2_queryctrl{}))
	VIDIOC_G_INPUT     = ior(38, sizeofInt)
	VIDIOC_S_INPUT     = iowr(39, sizeofInt)
	VIDIOC_S_FREQUENCY = iow(57, unsafe.Sizeof(v4l2_frequency{}))
)
