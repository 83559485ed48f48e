package capture

import (
	"time"

	"github.com/lanikai/alohacap/internal/v4l2"
)

// Device is the set of driver calls the engine makes against an open capture
// device. *v4l2.Device implements it.
type Device interface {
	Capability() (v4l2.Capability, error)

	EnumInput(index int) (v4l2.Input, error)
	Input() (int, error)
	SetInput(index int) error

	EnumStandard(index int) (v4l2.Standard, error)
	Standard() (v4l2.StdID, error)
	SetStandard(id v4l2.StdID) error

	SetFrequency(freq uint32) error

	EnumFormat(index int) (v4l2.FormatDesc, error)
	StreamParm() (v4l2.StreamParm, error)
	QueryControl(id uint32) (v4l2.Control, error)
	SetFormat(f v4l2.PixFormat) (v4l2.PixFormat, error)

	RequestBuffers(n int) (int, error)
	QueryBuffer(index int) (v4l2.BufferInfo, error)
	Map(info v4l2.BufferInfo) ([]byte, error)
	Unmap(b []byte) error
	Enqueue(index int) error
	Dequeue(index int) (v4l2.Buffer, error)

	StreamOn() error
	StreamOff() error
	Wait(timeout time.Duration) error

	Close() error
}

// Opener opens the device node at path.
type Opener func(path string) (Device, error)
