package v4l2

import "fmt"

// Capability flags reported by VIDIOC_QUERYCAP.
const (
	V4L2_CAP_VIDEO_CAPTURE = 0x00000001
	V4L2_CAP_TUNER         = 0x00010000
	V4L2_CAP_READWRITE     = 0x01000000
	V4L2_CAP_STREAMING     = 0x04000000
	V4L2_CAP_DEVICE_CAPS   = 0x80000000
)

// Control id ranges and flags.
const (
	V4L2_CID_BASE         = 0x00980900
	V4L2_CID_PRIVATE_BASE = 0x08000000

	V4L2_CTRL_FLAG_DISABLED = 0x0001
)

// ControlInactive marks a control slot the device does not implement.
const ControlInactive = ^uint32(0)

type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

func (c Capability) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", byte(c.Version>>16), byte(c.Version>>8), byte(c.Version))
}

// CanStream reports whether the device node supports video capture through
// the streaming (mmap) I/O method.
func (c Capability) CanStream() bool {
	caps := c.Capabilities
	if caps&V4L2_CAP_DEVICE_CAPS != 0 {
		caps = c.DeviceCaps
	}
	const want = V4L2_CAP_VIDEO_CAPTURE | V4L2_CAP_STREAMING
	return caps&want == want
}

// StdID is a bit set of analog video standards (v4l2_std_id).
type StdID uint64

type Input struct {
	Index  int
	Name   string
	Type   uint32
	Tuner  uint32
	Std    StdID
	Status uint32
}

type Fract struct {
	Numerator   uint32
	Denominator uint32
}

type Standard struct {
	Index       int
	ID          StdID
	Name        string
	FramePeriod Fract
	FrameLines  uint32
}

type FormatDesc struct {
	Index       int
	Flags       uint32
	Description string
	PixelFormat FourCC
}

type Control struct {
	ID      uint32
	Type    uint32
	Name    string
	Minimum int32
	Maximum int32
	Step    int32
	Default int32
	Flags   uint32
}

func (c Control) Active() bool {
	return c.ID != ControlInactive
}

// PixFormat is the single-planar image format negotiated with VIDIOC_S_FMT.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  FourCC
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
}

func (f PixFormat) String() string {
	return fmt.Sprintf("%s %dx%d stride=%d size=%d", f.PixelFormat, f.Width, f.Height, f.BytesPerLine, f.SizeImage)
}

type StreamParm struct {
	Capability   uint32
	CaptureMode  uint32
	TimePerFrame Fract
}

// Kernel-side geometry of one memory-mapped driver buffer.
type BufferInfo struct {
	Index  int
	Offset uint32
	Length uint32
}

// A dequeued buffer.
type Buffer struct {
	Index     int
	BytesUsed int
	Sequence  uint32
}
