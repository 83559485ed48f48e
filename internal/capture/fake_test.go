package capture

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/alohacap/internal/v4l2"
)

// fakeDevice is a scripted capture device. Queued buffers belong to the
// driver; each frame signalled on the ready channel lets one of them be
// dequeued, the requested one if it is queued.
type fakeDevice struct {
	mu sync.Mutex

	// Script.
	caps         v4l2.Capability
	capErr       error
	inputs       []v4l2.Input
	standards    []v4l2.Standard
	formats      []v4l2.FormatDesc
	substitute   v4l2.FourCC // echoed instead of the requested format
	formatErr    error
	freqErr      error
	grant        int // buffers granted, 0 means as requested, negative means none
	reqErr       error
	mapErrAt     int // index of the buffer whose mapping fails, -1 for none
	queueErrAt   int // index of the buffer whose initial enqueue fails, -1 for none
	streamOnErr  error
	streamOffErr error
	stall        bool  // Wait times out
	dequeueErr   error // runtime dequeue failure
	enqueueErr   error // runtime enqueue failure

	// Driver state.
	input     int
	std       v4l2.StdID
	freq      uint32
	format    v4l2.PixFormat
	buffers   [][]byte
	queued    []int
	available int
	streaming bool
	closed    bool
	sequence  uint32
	lastOut   int // index of the buffer last handed to the caller, -1 for none

	// Counters.
	maps           int
	unmaps         int
	outstanding    int
	maxOutstanding int
	streamOffs     int
	violations     []string

	// Each receive by Wait makes one frame available.
	ready chan struct{}
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		caps: v4l2.Capability{
			Driver:       "fake",
			Card:         "Fake Capture",
			BusInfo:      "platform:fake",
			Version:      0x050a00,
			Capabilities: v4l2.V4L2_CAP_VIDEO_CAPTURE | v4l2.V4L2_CAP_STREAMING,
		},
		inputs: []v4l2.Input{
			{Index: 0, Name: "Composite"},
			{Index: 1, Name: "S-Video"},
		},
		standards: []v4l2.Standard{
			{Index: 0, ID: 0x000000ff, Name: "PAL"},
			{Index: 1, ID: 0x0000b000, Name: "NTSC"},
		},
		formats: []v4l2.FormatDesc{
			{Index: 0, Description: "Planar YUV 4:2:0", PixelFormat: v4l2.V4L2_PIX_FMT_YUV420},
			{Index: 1, Description: "YUYV 4:2:2", PixelFormat: v4l2.V4L2_PIX_FMT_YUYV},
			{Index: 2, Description: "24-bit RGB", PixelFormat: v4l2.V4L2_PIX_FMT_RGB24},
		},
		mapErrAt:   -1,
		queueErrAt: -1,
		lastOut:    -1,
		ready:      make(chan struct{}),
	}
}

func (d *fakeDevice) Capability() (v4l2.Capability, error) {
	return d.caps, d.capErr
}

func (d *fakeDevice) EnumInput(index int) (v4l2.Input, error) {
	if index >= len(d.inputs) {
		return v4l2.Input{}, v4l2.ErrEndOfList
	}
	return d.inputs[index], nil
}

func (d *fakeDevice) Input() (int, error) {
	return d.input, nil
}

func (d *fakeDevice) SetInput(index int) error {
	d.input = index
	return nil
}

func (d *fakeDevice) EnumStandard(index int) (v4l2.Standard, error) {
	if index >= len(d.standards) {
		return v4l2.Standard{}, v4l2.ErrEndOfList
	}
	return d.standards[index], nil
}

func (d *fakeDevice) Standard() (v4l2.StdID, error) {
	return d.std, nil
}

func (d *fakeDevice) SetStandard(id v4l2.StdID) error {
	d.std = id
	return nil
}

func (d *fakeDevice) SetFrequency(freq uint32) error {
	if d.freqErr != nil {
		return d.freqErr
	}
	d.freq = freq
	return nil
}

func (d *fakeDevice) EnumFormat(index int) (v4l2.FormatDesc, error) {
	if index >= len(d.formats) {
		return v4l2.FormatDesc{}, v4l2.ErrEndOfList
	}
	return d.formats[index], nil
}

func (d *fakeDevice) StreamParm() (v4l2.StreamParm, error) {
	return v4l2.StreamParm{TimePerFrame: v4l2.Fract{Numerator: 1, Denominator: 25}}, nil
}

func (d *fakeDevice) QueryControl(id uint32) (v4l2.Control, error) {
	switch id {
	case v4l2.V4L2_CID_BASE:
		return v4l2.Control{ID: id, Name: "Brightness", Maximum: 255, Step: 1, Default: 128}, nil
	case v4l2.V4L2_CID_BASE + 1:
		return v4l2.Control{ID: id, Name: "Contrast", Flags: v4l2.V4L2_CTRL_FLAG_DISABLED}, nil
	case v4l2.V4L2_CID_PRIVATE_BASE:
		return v4l2.Control{ID: id, Name: "Vendor Gain", Maximum: 15, Step: 1}, nil
	}
	return v4l2.Control{}, v4l2.ErrEndOfList
}

func (d *fakeDevice) SetFormat(f v4l2.PixFormat) (v4l2.PixFormat, error) {
	if d.formatErr != nil {
		return v4l2.PixFormat{}, d.formatErr
	}
	if d.substitute != 0 {
		f.PixelFormat = d.substitute
	}
	switch f.PixelFormat {
	case v4l2.V4L2_PIX_FMT_YUV420:
		f.BytesPerLine = f.Width
		f.SizeImage = f.Width * f.Height * 3 / 2
	case v4l2.V4L2_PIX_FMT_RGB24:
		f.BytesPerLine = f.Width * 3
		f.SizeImage = f.BytesPerLine * f.Height
	default:
		f.BytesPerLine = f.Width * 2
		f.SizeImage = f.BytesPerLine * f.Height
	}
	d.format = f
	return f, nil
}

func (d *fakeDevice) RequestBuffers(n int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n == 0 {
		d.buffers = nil
		d.queued = nil
		d.available = 0
		return 0, nil
	}
	if d.reqErr != nil {
		return 0, d.reqErr
	}
	if d.grant != 0 {
		n = max(d.grant, 0)
	}
	d.buffers = make([][]byte, n)
	for i := range d.buffers {
		d.buffers[i] = make([]byte, d.format.SizeImage)
	}
	return n, nil
}

func (d *fakeDevice) QueryBuffer(index int) (v4l2.BufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index >= len(d.buffers) {
		return v4l2.BufferInfo{}, errors.New("EINVAL")
	}
	return v4l2.BufferInfo{
		Index:  index,
		Offset: uint32(index) * 4096,
		Length: uint32(len(d.buffers[index])),
	}, nil
}

func (d *fakeDevice) Map(info v4l2.BufferInfo) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Index == d.mapErrAt {
		return nil, errors.New("ENOMEM")
	}
	d.maps++
	return d.buffers[info.Index], nil
}

func (d *fakeDevice) Unmap(b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unmaps++
	return nil
}

func (d *fakeDevice) Enqueue(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.streaming {
		if index == d.queueErrAt {
			return errors.New("EINVAL")
		}
		d.queued = append(d.queued, index)
		return nil
	}
	if d.enqueueErr != nil {
		return d.enqueueErr
	}
	if index != d.lastOut {
		d.violate("enqueue of buffer %d, caller holds %d", index, d.lastOut)
	}
	d.outstanding--
	d.queued = append(d.queued, index)
	return nil
}

func (d *fakeDevice) Dequeue(index int) (v4l2.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dequeueErr != nil {
		return v4l2.Buffer{}, d.dequeueErr
	}
	if d.available == 0 || len(d.queued) == 0 {
		return v4l2.Buffer{}, v4l2.ErrAgain
	}
	d.available--

	pos := 0
	for k, b := range d.queued {
		if b == index {
			pos = k
			break
		}
	}
	i := d.queued[pos]
	d.queued = append(d.queued[:pos], d.queued[pos+1:]...)
	if i == d.lastOut {
		d.violate("buffer %d dequeued twice in a row", i)
	}

	d.outstanding++
	if d.outstanding > d.maxOutstanding {
		d.maxOutstanding = d.outstanding
	}
	d.lastOut = i
	d.sequence++
	buf := d.buffers[i]
	for k := range buf {
		buf[k] = byte(d.sequence)
	}
	return v4l2.Buffer{Index: i, BytesUsed: len(buf), Sequence: d.sequence}, nil
}

func (d *fakeDevice) StreamOn() error {
	if d.streamOnErr != nil {
		return d.streamOnErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streaming = true
	return nil
}

func (d *fakeDevice) StreamOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.streamOffs++
	d.streaming = false
	return d.streamOffErr
}

// Wait returns once a frame is signalled on the ready channel. Without one it
// returns after a short while, as a poll interrupted by a signal would.
func (d *fakeDevice) Wait(timeout time.Duration) error {
	d.mu.Lock()
	stall := d.stall
	d.mu.Unlock()
	if stall {
		return v4l2.ErrTimeout
	}

	select {
	case <-d.ready:
		d.mu.Lock()
		d.available++
		d.mu.Unlock()
	case <-time.After(2 * time.Millisecond):
	}
	return nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) violate(format string, a ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, a...))
}

func (d *fakeDevice) set(f func(d *fakeDevice)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f(d)
}

// frame releases one hardware frame into the capture loop.
func (d *fakeDevice) frame(t *testing.T) {
	t.Helper()
	select {
	case d.ready <- struct{}{}:
	case <-time.After(time.Second):
		t.Fatal("capture loop is not waiting for frames")
	}
}

// fakeDriver opens a new fakeDevice for every open call.
type fakeDriver struct {
	mu      sync.Mutex
	openErr error
	script  func(d *fakeDevice)
	opened  []*fakeDevice
	calls   int
}

func (drv *fakeDriver) open(path string) (Device, error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	drv.calls++
	if drv.openErr != nil {
		return nil, drv.openErr
	}
	d := newFakeDevice()
	if drv.script != nil {
		drv.script(d)
	}
	drv.opened = append(drv.opened, d)
	return d, nil
}

func (drv *fakeDriver) openCalls() int {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return drv.calls
}

func (drv *fakeDriver) last() *fakeDevice {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if len(drv.opened) == 0 {
		return nil
	}
	return drv.opened[len(drv.opened)-1]
}

// mapBalance sums maps and unmaps over every device opened.
func (drv *fakeDriver) mapBalance() (maps, unmaps int) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	for _, d := range drv.opened {
		d.mu.Lock()
		maps += d.maps
		unmaps += d.unmaps
		d.mu.Unlock()
	}
	return
}

// newTestEngine returns an engine over a fresh fake driver. Paths must be
// unique per test so that metrics do not mix.
func newTestEngine(t *testing.T, path string, cfg Config) (*Engine, *fakeDriver) {
	t.Helper()
	drv := &fakeDriver{}
	cfg.Path = path
	cfg.Open = drv.open
	e := New(cfg)
	t.Cleanup(func() { e.Close() })
	return e, drv
}

// waitPublished blocks until the capture loop has published n frames.
func waitPublished(t *testing.T, e *Engine, n uint32) {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.slot.load().seq >= n
	}, time.Second, time.Millisecond)
}
