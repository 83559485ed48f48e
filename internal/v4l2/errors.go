package v4l2

import "github.com/pkg/errors"

var (
	// Returned by the Enum* calls past the last valid index.
	ErrEndOfList = errors.New("end of list")

	// Returned by Dequeue when no buffer has been filled yet.
	ErrAgain = errors.New("no buffer ready")

	// Returned by Wait when the device did not become readable in time.
	ErrTimeout = errors.New("timed out waiting for device")
)
