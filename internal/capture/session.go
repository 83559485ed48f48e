package capture

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/alohacap/internal/v4l2"
)

// A session is the capture goroutine of one open device. It keeps every
// buffer but the one being dequeued queued to the driver, and publishes each
// completed buffer to the frame slot.
type session struct {
	dev     Device
	pool    *bufferPool
	slot    *frameSlot
	metrics *deviceMetrics
	timeout time.Duration

	// Index of the buffer dequeued last; the next dequeue asks for the
	// following one.
	inflight int

	// Closed by stop() to request loop exit.
	quit chan struct{}

	// Closed when the loop has terminated and streaming is off.
	done chan struct{}

	// Receives the error that ended the loop, if any.
	fatal chan error
}

// startSession turns streaming on and starts the capture goroutine.
func startSession(dev Device, pool *bufferPool, slot *frameSlot, metrics *deviceMetrics, timeout time.Duration) (*session, error) {
	if err := dev.StreamOn(); err != nil {
		return nil, runtimeError(ErrStreamOnFailed, err)
	}

	s := &session{
		dev:     dev,
		pool:    pool,
		slot:    slot,
		metrics: metrics,
		timeout: timeout,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		fatal:   make(chan error, 1),
	}
	go s.run()
	return s, nil
}

func (s *session) run() {
	defer close(s.done)
	defer s.streamOff()

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		if err := s.step(); err != nil {
			select {
			case <-s.quit:
				log.Debug("capture loop stopping: %v", err)
			default:
				log.Error("capture loop: %v", err)
				s.fatal <- err
			}
			return
		}
	}
}

// step runs one iteration: wait, dequeue, requeue, publish.
func (s *session) step() error {
	if err := s.dev.Wait(s.timeout); err != nil {
		return runtimeError(ErrWaitTimeout, err)
	}

	next := (s.inflight + 1) % s.pool.size()
	buf, err := s.dev.Dequeue(next)
	if errors.Is(err, v4l2.ErrAgain) {
		s.metrics.retries.Inc()
		return nil
	}
	if err != nil {
		return runtimeError(ErrDequeueFailed, err)
	}
	if buf.Index < 0 || buf.Index >= s.pool.size() {
		return runtimeError(ErrDequeueFailed, errors.Errorf("buffer index %d out of range", buf.Index))
	}
	s.inflight = buf.Index

	if err := s.dev.Enqueue(buf.Index); err != nil {
		return runtimeError(ErrEnqueueFailed, err)
	}

	s.pool.setSequence(buf.Index, buf.Sequence)
	s.slot.publish(buf.Index, buf.BytesUsed)
	s.metrics.frames.Inc()
	log.Trace(2, "frame %d: buffer %d, %d bytes", buf.Sequence, buf.Index, buf.BytesUsed)
	return nil
}

func (s *session) streamOff() {
	if err := s.dev.StreamOff(); err != nil {
		log.Warn("%v", runtimeError(ErrStreamOffFailed, err))
	}
}

// stop asks the loop to exit at its next iteration boundary and waits for it.
func (s *session) stop() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	<-s.done
}

// failed returns the error that ended the loop, once.
func (s *session) failed() error {
	select {
	case err := <-s.fatal:
		return err
	default:
		return nil
	}
}
