package capture

import (
	"github.com/pkg/errors"
)

// Open failures.
var (
	ErrCannotOpen        = errors.New("cannot open device")
	ErrNotACaptureDevice = errors.New("not a streaming capture device")
	ErrNoFormats         = errors.New("no available formats")
	ErrFormatRejected    = errors.New("format rejected")
)

// Buffer pool failures.
var (
	ErrNoBuffers   = errors.New("no driver buffers")
	ErrMapFailed   = errors.New("buffer mapping failed")
	ErrQueueFailed = errors.New("buffer queueing failed")
)

// Capture session failures.
var (
	ErrWaitTimeout     = errors.New("wait for frame failed")
	ErrDequeueFailed   = errors.New("dequeue failed")
	ErrEnqueueFailed   = errors.New("enqueue failed")
	ErrStreamOnFailed  = errors.New("stream on failed")
	ErrStreamOffFailed = errors.New("stream off failed")
)

var (
	ErrRetriesExhausted = errors.New("retry count reached zero, open manually")
	ErrNotOpen          = errors.New("no device opened")
	ErrOutOfRange       = errors.New("out of range")

	errNotSupported = errors.New("Not supported")
)

// kindError pairs one of the sentinel kinds above with the driver error that
// caused it. errors.Is matches both.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Kind() error { return e.kind }

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

func (e *kindError) message() string {
	if e.cause == nil {
		return e.kind.Error()
	}
	return e.kind.Error() + ": " + e.cause.Error()
}

// OpenError reports a failed device open or negotiation.
type OpenError struct {
	Path string
	kindError
}

func (e *OpenError) Error() string {
	return "open " + e.Path + ": " + e.message()
}

func openError(path string, kind, cause error) error {
	return &OpenError{path, kindError{kind, cause}}
}

// MmapError reports a failed buffer pool initialization.
type MmapError struct {
	kindError
}

func (e *MmapError) Error() string {
	return "mmap: " + e.message()
}

func mmapError(kind, cause error) error {
	return &MmapError{kindError{kind, cause}}
}

// RuntimeError reports a failure of a running capture session.
type RuntimeError struct {
	kindError
}

func (e *RuntimeError) Error() string {
	return "capture: " + e.message()
}

func runtimeError(kind, cause error) error {
	return &RuntimeError{kindError{kind, cause}}
}

// Short label for an error, used in metrics.
func reason(err error) string {
	var k interface{ Kind() error }
	if errors.As(err, &k) {
		return k.Kind().Error()
	}
	if errors.Is(err, ErrRetriesExhausted) {
		return "retries exhausted"
	}
	return "other"
}
