package method

import "fmt"

// Common method startup errors.
var (
	// ErrUnsupported is returned for schemes that are disabled by default
	// and need an explicit override to run.
	ErrUnsupported = fmt.Errorf("method is unsupported and disabled by default")

	// ErrDisabled is returned when the scheme is explicitly disabled via
	// configuration.
	ErrDisabled = fmt.Errorf("method is explicitly disabled via configuration")

	// ErrDriverNotFound is returned when the resolved method binary does not
	// exist.
	ErrDriverNotFound = fmt.Errorf("method driver could not be found")

	// ErrStartFailed is returned when the method process could not be
	// spawned.
	ErrStartFailed = fmt.Errorf("method did not start correctly")
)
