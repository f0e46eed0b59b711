package hashes

import "fmt"

// ErrFileOpen is returned when a file to be hashed cannot be opened.
var ErrFileOpen = fmt.Errorf("failed to open file for hashing")

// ErrFileRead is returned when reading a file during hashing fails.
var ErrFileRead = fmt.Errorf("failed to read file for hashing")

// WrapFileOpen wraps ErrFileOpen with the path and cause.
func WrapFileOpen(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrFileOpen, path, err)
}

// WrapFileRead wraps ErrFileRead with the path and cause.
func WrapFileRead(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrFileRead, path, err)
}
