package acquire

import "fmt"

// Common acquire engine errors.
var (
	// ErrMethodDied is returned when a method's pipe went dead mid-run.
	ErrMethodDied = fmt.Errorf("method has died unexpectedly")

	// ErrInvalidMessage is returned when a method sent a record the worker
	// cannot act on.
	ErrInvalidMessage = fmt.Errorf("invalid message from method")

	// ErrCapabilities is returned when the capabilities handshake failed.
	ErrCapabilities = fmt.Errorf("unable to process capabilities message")
)
