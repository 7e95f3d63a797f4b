package common

import (
	"errors"
	"fmt"
)

// FrameworkError signals a violated engine invariant. It is never retried.
type FrameworkError struct {
	Index   string
	Message string
}

// NewFrameworkError creates a FrameworkError for the given index.
func NewFrameworkError(index, format string, args ...any) *FrameworkError {
	return &FrameworkError{
		Index:   index,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *FrameworkError) Error() string {
	if e.Index == "" {
		return fmt.Sprintf("framework error: %s", e.Message)
	}

	return fmt.Sprintf("framework error in index %s: %s", e.Index, e.Message)
}

// IsFrameworkError reports whether err or any error it wraps is a FrameworkError.
func IsFrameworkError(err error) bool {
	var fe *FrameworkError
	return errors.As(err, &fe)
}
