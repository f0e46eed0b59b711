package protocol

import "fmt"

// ErrInvalidStatusLine is returned when a record does not begin with a
// decimal status code.
var ErrInvalidStatusLine = fmt.Errorf("invalid status line")

// WrapInvalidStatusLine creates a wrapped error naming the offending line.
func WrapInvalidStatusLine(line string) error {
	return fmt.Errorf("%w: %q", ErrInvalidStatusLine, line)
}
