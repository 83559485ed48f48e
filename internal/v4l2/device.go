//go:build linux
// +build linux

package v4l2

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/lanikai/alohacap/internal/logging"
)

var log = logging.DefaultLogger.WithTag("v4l2")

// A V4L2 character device, opened non-blocking so that VIDIOC_DQBUF reports
// EAGAIN instead of sleeping.
type Device struct {
	// Device path, usually "/dev/video0".
	path string

	// File descriptor of v4l2 device.
	fd int
}

func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	return &Device{
		path: path,
		fd:   fd,
	}, nil
}

func (dev *Device) Path() string {
	return dev.path
}

func (dev *Device) Close() error {
	if dev.fd < 0 {
		return nil
	}
	err := unix.Close(dev.fd)
	dev.fd = -1
	return errors.Wrapf(err, "close %s", dev.path)
}

func (dev *Device) ioctl(name string, request uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(
			unix.SYS_IOCTL,
			uintptr(dev.fd),
			uintptr(request),
			uintptr(arg),
		)
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		}
		return errors.Wrap(errno, name)
	}
}

// Enumeration ioctls answer EINVAL past the last index.
func endOfList(err error) error {
	if errors.Is(err, unix.EINVAL) {
		return ErrEndOfList
	}
	return err
}

func (dev *Device) Capability() (Capability, error) {
	var c v4l2_capability
	if err := dev.ioctl("VIDIOC_QUERYCAP", VIDIOC_QUERYCAP, unsafe.Pointer(&c)); err != nil {
		return Capability{}, err
	}
	return Capability{
		Driver:       str(c.driver[:]),
		Card:         str(c.card[:]),
		BusInfo:      str(c.bus_info[:]),
		Version:      c.version,
		Capabilities: c.capabilities,
		DeviceCaps:   c.device_caps,
	}, nil
}

func (dev *Device) EnumInput(index int) (Input, error) {
	in := v4l2_input{index: uint32(index)}
	if err := dev.ioctl("VIDIOC_ENUMINPUT", VIDIOC_ENUMINPUT, unsafe.Pointer(&in)); err != nil {
		return Input{}, endOfList(err)
	}
	return Input{
		Index:  index,
		Name:   str(in.name[:]),
		Type:   in.typ,
		Tuner:  in.tuner,
		Std:    StdID(in.std),
		Status: in.status,
	}, nil
}

func (dev *Device) Input() (int, error) {
	var index int32
	err := dev.ioctl("VIDIOC_G_INPUT", VIDIOC_G_INPUT, unsafe.Pointer(&index))
	return int(index), err
}

func (dev *Device) SetInput(index int) error {
	i := int32(index)
	return dev.ioctl("VIDIOC_S_INPUT", VIDIOC_S_INPUT, unsafe.Pointer(&i))
}

func (dev *Device) EnumStandard(index int) (Standard, error) {
	std := v4l2_standard{index: uint32(index)}
	if err := dev.ioctl("VIDIOC_ENUMSTD", VIDIOC_ENUMSTD, unsafe.Pointer(&std)); err != nil {
		return Standard{}, endOfList(err)
	}
	return Standard{
		Index: index,
		ID:    StdID(std.id),
		Name:  str(std.name[:]),
		FramePeriod: Fract{
			Numerator:   std.frameperiod.numerator,
			Denominator: std.frameperiod.denominator,
		},
		FrameLines: std.framelines,
	}, nil
}

func (dev *Device) Standard() (StdID, error) {
	var id uint64
	err := dev.ioctl("VIDIOC_G_STD", VIDIOC_G_STD, unsafe.Pointer(&id))
	return StdID(id), err
}

func (dev *Device) SetStandard(id StdID) error {
	v := uint64(id)
	return dev.ioctl("VIDIOC_S_STD", VIDIOC_S_STD, unsafe.Pointer(&v))
}

// Set the frequency of the first tuner, in units of 62.5 kHz.
func (dev *Device) SetFrequency(freq uint32) error {
	f := v4l2_frequency{
		tuner:     0,
		typ:       V4L2_TUNER_ANALOG_TV,
		frequency: freq,
	}
	return dev.ioctl("VIDIOC_S_FREQUENCY", VIDIOC_S_FREQUENCY, unsafe.Pointer(&f))
}

func (dev *Device) EnumFormat(index int) (FormatDesc, error) {
	fd := v4l2_fmtdesc{
		index: uint32(index),
		typ:   V4L2_BUF_TYPE_VIDEO_CAPTURE,
	}
	if err := dev.ioctl("VIDIOC_ENUM_FMT", VIDIOC_ENUM_FMT, unsafe.Pointer(&fd)); err != nil {
		return FormatDesc{}, endOfList(err)
	}
	return FormatDesc{
		Index:       index,
		Flags:       fd.flags,
		Description: str(fd.description[:]),
		PixelFormat: FourCC(fd.pixelformat),
	}, nil
}

func (dev *Device) StreamParm() (StreamParm, error) {
	p := v4l2_streamparm{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE}
	if err := dev.ioctl("VIDIOC_G_PARM", VIDIOC_G_PARM, unsafe.Pointer(&p)); err != nil {
		return StreamParm{}, err
	}
	c := p.parm.capture
	return StreamParm{
		Capability:  c.capability,
		CaptureMode: c.capturemode,
		TimePerFrame: Fract{
			Numerator:   c.timeperframe.numerator,
			Denominator: c.timeperframe.denominator,
		},
	}, nil
}

// QueryControl describes the control with the given id. Unknown ids report
// ErrEndOfList.
func (dev *Device) QueryControl(id uint32) (Control, error) {
	qc := v4l2_queryctrl{id: id}
	if err := dev.ioctl("VIDIOC_QUERYCTRL", VIDIOC_QUERYCTRL, unsafe.Pointer(&qc)); err != nil {
		return Control{}, endOfList(err)
	}
	return Control{
		ID:      qc.id,
		Type:    qc.typ,
		Name:    str(qc.name[:]),
		Minimum: qc.minimum,
		Maximum: qc.maximum,
		Step:    qc.step,
		Default: qc.default_value,
		Flags:   qc.flags,
	}, nil
}

// SetFormat submits a capture format and returns the format the driver
// actually applied, which may differ from the request.
func (dev *Device) SetFormat(want PixFormat) (PixFormat, error) {
	var f v4l2_format
	f.typ = V4L2_BUF_TYPE_VIDEO_CAPTURE
	f.fmt.pix = v4l2_pix_format{
		width:       want.Width,
		height:      want.Height,
		pixelformat: uint32(want.PixelFormat),
		field:       V4L2_FIELD_ANY,
	}
	if err := dev.ioctl("VIDIOC_S_FMT", VIDIOC_S_FMT, unsafe.Pointer(&f)); err != nil {
		return PixFormat{}, err
	}
	pix := f.fmt.pix
	return PixFormat{
		Width:        pix.width,
		Height:       pix.height,
		PixelFormat:  FourCC(pix.pixelformat),
		Field:        pix.field,
		BytesPerLine: pix.bytesperline,
		SizeImage:    pix.sizeimage,
	}, nil
}

// Request the specified number of kernel buffers memory-mapped to
// user-space. Returns the number actually granted, which may be lower.
// Requesting zero frees all buffers.
func (dev *Device) RequestBuffers(n int) (int, error) {
	rb := v4l2_requestbuffers{
		count:  uint32(n),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := dev.ioctl("VIDIOC_REQBUFS", VIDIOC_REQBUFS, unsafe.Pointer(&rb)); err != nil {
		return 0, err
	}
	return int(rb.count), nil
}

// Query buffer parameters.
func (dev *Device) QueryBuffer(index int) (BufferInfo, error) {
	qb := v4l2_buffer{
		index:  uint32(index),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := dev.ioctl("VIDIOC_QUERYBUF", VIDIOC_QUERYBUF, unsafe.Pointer(&qb)); err != nil {
		return BufferInfo{}, err
	}
	return BufferInfo{
		Index:  index,
		Offset: qb.offset(),
		Length: qb.length,
	}, nil
}

func (dev *Device) Map(info BufferInfo) ([]byte, error) {
	b, err := unix.Mmap(
		dev.fd,
		int64(info.Offset),
		int(info.Length),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	return b, errors.Wrapf(err, "mmap buffer %d", info.Index)
}

func (dev *Device) Unmap(b []byte) error {
	return errors.Wrap(unix.Munmap(b), "munmap")
}

// Enqueue buffer into device in-buffer queue.
func (dev *Device) Enqueue(index int) error {
	qbuf := v4l2_buffer{
		index:  uint32(index),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	return dev.ioctl("VIDIOC_QBUF", VIDIOC_QBUF, unsafe.Pointer(&qbuf))
}

// Dequeue a filled buffer from the device out-buffer queue. The driver picks
// the oldest filled buffer; index is only a hint, and the returned Buffer
// carries the index the driver actually handed back.
func (dev *Device) Dequeue(index int) (Buffer, error) {
	dqbuf := v4l2_buffer{
		index:  uint32(index),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := dev.ioctl("VIDIOC_DQBUF", VIDIOC_DQBUF, unsafe.Pointer(&dqbuf)); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return Buffer{}, ErrAgain
		}
		return Buffer{}, err
	}
	return Buffer{
		Index:     int(dqbuf.index),
		BytesUsed: int(dqbuf.bytesused),
		Sequence:  dqbuf.sequence,
	}, nil
}

func (dev *Device) StreamOn() error {
	typ := int32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	return dev.ioctl("VIDIOC_STREAMON", VIDIOC_STREAMON, unsafe.Pointer(&typ))
}

// Disable stream (dequeues any outstanding buffers as well).
func (dev *Device) StreamOff() error {
	typ := int32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	return dev.ioctl("VIDIOC_STREAMOFF", VIDIOC_STREAMOFF, unsafe.Pointer(&typ))
}

// Wait blocks until a filled buffer can be dequeued or the timeout expires.
// An interrupted wait returns nil; the following dequeue then reports
// ErrAgain.
func (dev *Device) Wait(timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(dev.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	switch {
	case err == unix.EINTR:
		log.Debug("%s: wait interrupted", dev.path)
		return nil
	case err != nil:
		return errors.Wrap(err, "poll")
	case n == 0:
		return ErrTimeout
	case fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0:
		return errors.Errorf("poll: device error (revents 0x%x)", fds[0].Revents)
	}
	return nil
}
