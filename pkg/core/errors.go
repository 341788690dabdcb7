package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested memory was not found.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBackendUnavailable indicates that a storage tier failed or timed out.
	// It is logged and converted into a fallthrough, never returned.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrMalformedRecord indicates a stored entry that could not be decoded.
	ErrMalformedRecord = errors.New("malformed stored record")
)

// MemoryError wraps errors with operation context.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "NewClientFromConfig",
//	    Err: ErrInvalidConfig,
//	}
//	// Error() returns: "agentmem: NewClientFromConfig: invalid configuration"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
func (e *MemoryError) Error() string {
	return fmt.Sprintf("agentmem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}

// ValidationError reports a caller mistake detected at the API boundary.
//
// It is the only error the memory operations return.
type ValidationError struct {
	// Field is the offending parameter, e.g. "importance".
	Field string

	// Reason describes the violated constraint.
	Reason string
}

// Error returns a formatted error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("agentmem: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
