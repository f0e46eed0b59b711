package acqconfig

import "fmt"

// Common configuration errors.
var (
	// ErrConfigRead is returned when the config file cannot be read.
	ErrConfigRead = fmt.Errorf("failed to read config file")

	// ErrConfigParse is returned when the config file cannot be parsed.
	ErrConfigParse = fmt.Errorf("failed to parse config file")
)
