package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors (fatal at construction time)
	ErrInvalidConfig = errors.New("invalid analysis configuration")

	// Source errors
	ErrUnsupportedFormat = errors.New("unsupported data format")
	ErrEmptySource       = errors.New("data source has no header row or records")
)

// NewConfigError reports an invalid configuration field
func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, reason)
}

// NewUnsupportedFormatError reports a file type no reader handles
func NewUnsupportedFormatError(path string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// IsConfigError reports whether err came from configuration validation
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}
