// Package capture streams frames from a Video4Linux2 capture device through a
// pair of memory-mapped driver buffers.
//
// An Engine negotiates the device (input, standard, pixel format, frame
// size), maps the driver buffers and runs a capture goroutine that keeps one
// buffer queued to hardware while the other holds the most recent frame. The
// consumer picks frames up with PollFrame at its own pace.
package capture

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/logging"
	"github.com/lanikai/alohacap/internal/v4l2"
)

var log = logging.DefaultLogger.WithTag("capture")

type State int

const (
	Closed State = iota
	Negotiating
	Streaming

	// Closed with no automatic open attempts left.
	ErrorBackoff
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Negotiating:
		return "negotiating"
	case Streaming:
		return "streaming"
	case ErrorBackoff:
		return "error-backoff"
	}
	return "unknown"
}

// A Frame is a completed capture buffer. Data aliases driver memory and is
// only valid until the next call into the Engine.
type Frame struct {
	Data   []byte
	Index  int
	Format v4l2.FourCC
	Width  int
	Height int
	Stride int

	// Frame sequence number assigned by the driver.
	Sequence uint32

	// Frames published by the capture loop since the device was opened,
	// counting this one. Gaps between polls mean skipped frames.
	Published uint32
}

// Engine controls one capture device. Open, close and reconfiguration calls
// are serialized by the engine; PollFrame may run concurrently with the
// capture goroutine.
type Engine struct {
	mu sync.Mutex

	open      Opener
	validator *Validator
	timeout   time.Duration
	maxTries  int
	metrics   *deviceMetrics

	path          string
	sel           Selection
	width, height int
	autoOpen      bool
	onlyNew       bool

	state   State
	retries int

	dev  Device
	neg  *Negotiated
	pool *bufferPool
	sess *session
	slot frameSlot
}

// New creates a closed engine. Nothing touches the device until Open or the
// first PollFrame.
func New(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		open:      cfg.Open,
		validator: NewValidator(cfg.LegalWidth, cfg.LegalHeight, cfg.MinWidth, cfg.MaxWidth, cfg.MinHeight, cfg.MaxHeight),
		timeout:   cfg.WaitTimeout,
		maxTries:  cfg.Retries,
		metrics:   metricsFor(cfg.Path),
		path:      cfg.Path,
		sel: Selection{
			Input:     cfg.Input,
			Standard:  cfg.Standard,
			Format:    cfg.Format,
			Frequency: cfg.Frequency,
		},
		autoOpen: !cfg.ManualOpen,
		onlyNew:  !cfg.RepeatFrames,
		retries:  cfg.Retries,
	}
	e.width, e.height = e.validator.Clamp(cfg.Width, cfg.Height)
	e.metrics.budget.Set(float64(e.retries))
	e.setState(Closed)
	return e
}

// Open closes any open device, then opens and starts streaming from path.
// Each failure consumes one retry; with none left Open returns
// ErrRetriesExhausted without touching the device.
func (e *Engine) Open(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reap()
	return e.openLocked(path)
}

// OpenManual is Open with a full retry budget.
func (e *Engine) OpenManual(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reap()
	e.resetRetries()
	return e.openLocked(path)
}

// Close stops streaming and releases the device.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reap()
	e.closeLocked()
	return nil
}

// CloseManual is Close, also restoring the retry budget.
func (e *Engine) CloseManual() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reap()
	e.resetRetries()
	e.closeLocked()
	return nil
}

// SelectInput reopens the device with input i.
func (e *Engine) SelectInput(i int) error {
	return e.reconfigure("input", func(n *Negotiated) error {
		if i < 0 || i >= len(n.Inputs) {
			return errors.Wrapf(ErrOutOfRange, "input %d", i)
		}
		e.sel.Input = i
		return nil
	})
}

// SelectStandard reopens the device with standard i.
func (e *Engine) SelectStandard(i int) error {
	return e.reconfigure("standard", func(n *Negotiated) error {
		if i < 0 || i >= len(n.Standards) {
			return errors.Wrapf(ErrOutOfRange, "standard %d", i)
		}
		e.sel.Standard = i
		return nil
	})
}

// SelectFormat reopens the device with pixel format i.
func (e *Engine) SelectFormat(i int) error {
	return e.reconfigure("format", func(n *Negotiated) error {
		if i < 0 || i >= len(n.Formats) {
			return errors.Wrapf(ErrOutOfRange, "format %d", i)
		}
		e.sel.Format = i
		return nil
	})
}

// SetDimensions reopens the device at the legal size closest to w x h.
func (e *Engine) SetDimensions(w, h int) error {
	return e.reconfigure("dimensions", func(*Negotiated) error {
		e.width, e.height = e.validator.Clamp(w, h)
		return nil
	})
}

// reconfigure validates and applies a change against the open device, then
// closes and reopens it.
func (e *Engine) reconfigure(what string, apply func(*Negotiated) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reap()

	if e.state != Streaming {
		return errors.Wrapf(ErrNotOpen, "set %s", what)
	}
	if err := apply(e.neg); err != nil {
		return err
	}
	log.Debug("%s: reopening for new %s", e.path, what)
	e.closeLocked()
	return e.openLocked(e.path)
}

// SetFrequency tunes the device to freq, in units of 62.5 kHz. Failure leaves
// the device streaming.
func (e *Engine) SetFrequency(freq int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reap()

	if e.state != Streaming {
		return errors.Wrap(ErrNotOpen, "set frequency")
	}
	e.sel.Frequency = freq
	if freq <= 0 {
		return nil
	}
	if err := e.dev.SetFrequency(uint32(freq)); err != nil {
		log.Warn("%s: set frequency %d: %v", e.path, freq, err)
		return errors.Wrapf(err, "set frequency %d", freq)
	}
	log.Info("%s: tuner frequency set to %.4f MHz", e.path, float64(freq)/16)
	return nil
}

func (e *Engine) SetFrequencyMHz(mhz float64) error {
	return e.SetFrequency(int(mhz * 16))
}

// PollFrame returns the latest captured frame. ok is false if no frame is
// available: the device is closed (and could not be opened automatically),
// nothing has been captured yet, or only new frames are wanted and the latest
// one was already returned.
func (e *Engine) PollFrame() (f Frame, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pollLocked()
}

// WithFrame polls like PollFrame and calls fn with the frame, if there is one.
// The frame's buffer stays mapped until fn returns, even if another goroutine
// closes the engine.
func (e *Engine) WithFrame(fn func(Frame) error) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withFrameLocked(true, fn)
}

// WithLatestFrame is WithFrame without consuming the frame: the latest frame
// is passed to fn even if already delivered, and stays new for PollFrame and
// WithFrame.
func (e *Engine) WithLatestFrame(fn func(Frame) error) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withFrameLocked(false, fn)
}

func (e *Engine) withFrameLocked(consume bool, fn func(Frame) error) (bool, error) {
	f, ok := e.frameLocked(consume)
	if !ok {
		return false, nil
	}
	return true, fn(f)
}

func (e *Engine) pollLocked() (Frame, bool) {
	return e.frameLocked(true)
}

func (e *Engine) frameLocked(consume bool) (Frame, bool) {
	e.reap()

	if e.state != Streaming {
		if !e.autoOpen {
			return Frame{}, false
		}
		log.Debug("%s: attempting automatic open", e.path)
		if err := e.openLocked(e.path); err != nil {
			log.Debug("%s: automatic open failed: %v", e.path, err)
			return Frame{}, false
		}
	}

	var v slotValue
	var ok bool
	if consume {
		v, ok = e.slot.take(e.onlyNew)
	} else {
		v, ok = e.slot.peek()
	}
	if !ok {
		return Frame{}, false
	}
	sf := e.neg.StreamFormat
	return Frame{
		Data:      e.pool.bytes(v.index, v.bytesUsed),
		Index:     v.index,
		Format:    sf.PixelFormat,
		Width:     int(sf.Width),
		Height:    int(sf.Height),
		Stride:    int(sf.BytesPerLine),
		Sequence:  e.pool.sequence(v.index),
		Published: v.seq,
	}, true
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reap()
	return e.state
}

func (e *Engine) RetriesLeft() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retries
}

// Negotiated returns a copy of the open device's configuration, or nil if
// closed.
func (e *Engine) Negotiated() *Negotiated {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reap()
	if e.neg == nil {
		return nil
	}
	return e.neg.clone()
}

// Path returns the device path last opened (or configured).
func (e *Engine) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

func (e *Engine) SetAutoOpen(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoOpen = on
}

func (e *Engine) SetOnlyNewFrames(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onlyNew = on
}

func (e *Engine) openLocked(path string) error {
	if e.state == Streaming {
		e.closeLocked()
	}
	if e.retries <= 0 {
		log.Warn("%s: retry count reached zero, open manually", path)
		e.setState(ErrorBackoff)
		return errors.Wrap(ErrRetriesExhausted, path)
	}

	e.path = path
	if path != e.metrics.device {
		e.metrics = metricsFor(path)
		e.metrics.budget.Set(float64(e.retries))
	}
	e.metrics.opens.Inc()
	e.setState(Negotiating)
	log.Info("opening %s", path)

	dev, neg, err := negotiate(e.open, path, e.sel, e.width, e.height)
	if err != nil {
		return e.failOpen(err)
	}

	pool, err := newBufferPool(dev, poolSize, e.metrics)
	if err != nil {
		e.closeDevice(dev)
		return e.failOpen(err)
	}

	e.slot.reset()
	sess, err := startSession(dev, pool, &e.slot, e.metrics, e.timeout)
	if err != nil {
		pool.release()
		e.closeDevice(dev)
		return e.failOpen(err)
	}

	e.dev, e.neg, e.pool, e.sess = dev, neg, pool, sess
	e.setState(Streaming)
	go e.watch(sess)
	log.Info("%s: streaming %s with %d buffers", path, neg.StreamFormat, pool.size())
	return nil
}

func (e *Engine) failOpen(err error) error {
	log.Error("%v", err)
	e.metrics.openFailed(err)
	e.consumeRetry()
	return err
}

// closeLocked joins the capture goroutine before releasing buffers and the
// device. It leaves the state Closed, or ErrorBackoff if no retries are left.
func (e *Engine) closeLocked() {
	if e.sess != nil {
		e.sess.stop()
		e.sess = nil
	}
	if e.pool != nil {
		e.pool.release()
		e.pool = nil
	}
	if e.dev != nil {
		e.closeDevice(e.dev)
		e.dev = nil
		log.Info("%s: closed", e.path)
	}
	e.neg = nil
	e.slot.reset()
	e.settle()
}

func (e *Engine) closeDevice(dev Device) {
	if err := dev.Close(); err != nil {
		log.Warn("%s: close: %v", e.path, err)
	}
}

// watch reaps s as soon as its capture goroutine exits, so that a dead
// session is torn down even if nobody calls into the engine.
func (e *Engine) watch(s *session) {
	<-s.done
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == s {
		e.reap()
	}
}

// reap performs an error close if the capture goroutine died.
func (e *Engine) reap() {
	if e.sess == nil {
		return
	}
	err := e.sess.failed()
	if err == nil {
		return
	}
	log.Warn("%s: closing after capture error: %v", e.path, err)
	e.metrics.sessionFailed(err)
	e.closeLocked()
	e.consumeRetry()
}

func (e *Engine) consumeRetry() {
	if e.retries > 0 {
		e.retries--
	}
	e.metrics.budget.Set(float64(e.retries))
	e.settle()
}

func (e *Engine) resetRetries() {
	e.retries = e.maxTries
	e.metrics.budget.Set(float64(e.retries))
	e.settle()
}

// settle picks the resting state of a closed engine.
func (e *Engine) settle() {
	switch {
	case e.sess != nil:
		e.setState(Streaming)
	case e.retries <= 0:
		e.setState(ErrorBackoff)
	default:
		e.setState(Closed)
	}
}

func (e *Engine) setState(s State) {
	e.state = s
	e.metrics.state.Set(float64(s))
}
