package capture

import (
	"iter"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/v4l2"
)

// Selection holds the driver selectors applied during negotiation. Negative
// means "first"; out-of-range values are clamped to the last entry.
type Selection struct {
	Input     int
	Standard  int
	Format    int
	Frequency int // 62.5 kHz units, zero or negative leaves the tuner alone
}

// Negotiated describes an open device: everything enumerated from the driver
// plus the selections actually in effect.
type Negotiated struct {
	Capability v4l2.Capability
	Inputs     []v4l2.Input
	Standards  []v4l2.Standard
	Formats    []v4l2.FormatDesc
	Controls   []v4l2.Control
	StreamParm v4l2.StreamParm

	// Active selections. Input and Standard are -1 when the device has none.
	Input    int
	Standard int
	Format   int

	StreamFormat v4l2.PixFormat
}

// ActiveControls returns the controls the device implements.
func (n *Negotiated) ActiveControls() []v4l2.Control {
	var ctrls []v4l2.Control
	for _, c := range n.Controls {
		if c.Active() {
			ctrls = append(ctrls, c)
		}
	}
	return ctrls
}

func (n *Negotiated) clone() *Negotiated {
	c := *n
	c.Inputs = append([]v4l2.Input(nil), n.Inputs...)
	c.Standards = append([]v4l2.Standard(nil), n.Standards...)
	c.Formats = append([]v4l2.FormatDesc(nil), n.Formats...)
	c.Controls = append([]v4l2.Control(nil), n.Controls...)
	return &c
}

// enumerate yields query(0), query(1), ... until the driver reports the end
// of the list, any other error, or limit entries.
func enumerate[T any](what string, limit int, query func(int) (T, error)) iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < limit; i++ {
			v, err := query(i)
			if err != nil {
				if !errors.Is(err, v4l2.ErrEndOfList) {
					log.Debug("enumerate %s %d: %v", what, i, err)
				}
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

func collect[T any](seq iter.Seq[T]) []T {
	var s []T
	for v := range seq {
		s = append(s, v)
	}
	return s
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// negotiate opens the device at path and configures it for capture at
// width x height. On failure the device is closed.
func negotiate(open Opener, path string, sel Selection, width, height int) (Device, *Negotiated, error) {
	dev, err := open(path)
	if err != nil {
		return nil, nil, openError(path, ErrCannotOpen, err)
	}
	n, err := configure(dev, path, sel, width, height)
	if err != nil {
		if cerr := dev.Close(); cerr != nil {
			log.Warn("%s: close: %v", path, cerr)
		}
		return nil, nil, err
	}
	return dev, n, nil
}

func configure(dev Device, path string, sel Selection, width, height int) (*Negotiated, error) {
	var err error
	n := &Negotiated{Input: -1, Standard: -1}

	n.Capability, err = dev.Capability()
	if err != nil {
		return nil, openError(path, ErrNotACaptureDevice, err)
	}
	if !n.Capability.CanStream() {
		return nil, openError(path, ErrNotACaptureDevice,
			errors.Errorf("capabilities 0x%08x", n.Capability.Capabilities))
	}
	log.Info("%s: %s (%s) driver %s %s", path, n.Capability.Card, n.Capability.BusInfo,
		n.Capability.Driver, n.Capability.VersionString())

	n.Inputs = collect(enumerate("input", maxInputs, dev.EnumInput))
	if len(n.Inputs) > 0 {
		want := clampIndex(sel.Input, len(n.Inputs))
		if err := dev.SetInput(want); err != nil {
			log.Warn("%s: select input %d: %v", path, want, err)
		}
		n.Input = want
		if cur, err := dev.Input(); err != nil {
			log.Warn("%s: read input: %v", path, err)
		} else {
			n.Input = cur
		}
		log.Debug("%s: input %d of %d", path, n.Input, len(n.Inputs))
	}

	n.Standards = collect(enumerate("standard", maxStandards, dev.EnumStandard))
	if len(n.Standards) > 0 {
		want := clampIndex(sel.Standard, len(n.Standards))
		if err := dev.SetStandard(n.Standards[want].ID); err != nil {
			log.Warn("%s: select standard %s: %v", path, n.Standards[want].Name, err)
		}
		n.Standard = want
		if id, err := dev.Standard(); err != nil {
			log.Warn("%s: read standard: %v", path, err)
		} else {
			n.Standard = standardIndex(n.Standards, id, want)
		}
		log.Debug("%s: standard %d of %d", path, n.Standard, len(n.Standards))
	}

	if sel.Frequency > 0 {
		if err := dev.SetFrequency(uint32(sel.Frequency)); err != nil {
			log.Warn("%s: set frequency %d: %v", path, sel.Frequency, err)
		}
	}

	n.Formats = collect(enumerate("format", maxFormats, dev.EnumFormat))
	if len(n.Formats) == 0 {
		return nil, openError(path, ErrNoFormats, nil)
	}

	if parm, err := dev.StreamParm(); err != nil {
		log.Debug("%s: stream parameters: %v", path, err)
	} else {
		n.StreamParm = parm
	}

	n.Controls = queryControls(dev)
	log.Debug("%s: %d active controls", path, len(n.ActiveControls()))

	n.Format = clampIndex(sel.Format, len(n.Formats))
	want := v4l2.PixFormat{
		Width:       uint32(width),
		Height:      uint32(height),
		PixelFormat: n.Formats[n.Format].PixelFormat,
	}
	got, err := dev.SetFormat(want)
	if err != nil {
		return nil, openError(path, ErrFormatRejected, err)
	}
	if got.PixelFormat != want.PixelFormat {
		return nil, openError(path, ErrFormatRejected,
			errors.Errorf("requested %s, driver chose %s", want.PixelFormat, got.PixelFormat))
	}
	n.StreamFormat = got
	log.Info("%s: format %s", path, got)

	return n, nil
}

// Index of the first standard whose id set covers id, or fallback.
func standardIndex(stds []v4l2.Standard, id v4l2.StdID, fallback int) int {
	for i, s := range stds {
		if s.ID == id {
			return i
		}
	}
	for i, s := range stds {
		if s.ID&id != 0 {
			return i
		}
	}
	return fallback
}

// queryControls describes the standard and vendor control ranges. Slots the
// device does not implement are marked inactive.
func queryControls(dev Device) []v4l2.Control {
	ctrls := make([]v4l2.Control, 0, 2*maxControls)
	for _, base := range []uint32{v4l2.V4L2_CID_BASE, v4l2.V4L2_CID_PRIVATE_BASE} {
		for i := uint32(0); i < maxControls; i++ {
			c, err := dev.QueryControl(base + i)
			if err != nil || c.Flags&v4l2.V4L2_CTRL_FLAG_DISABLED != 0 {
				c = v4l2.Control{ID: v4l2.ControlInactive}
			}
			ctrls = append(ctrls, c)
		}
	}
	return ctrls
}
