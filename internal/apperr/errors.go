// Package apperr defines the error kinds surfaced by imposition and cropping.
package apperr

import (
	"errors"
	"fmt"
)

// InvalidArgumentError reports malformed input to a core operation.
type InvalidArgumentError struct {
	Op     string
	Value  any
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument %v: %s", e.Op, e.Value, e.Reason)
}

// InvariantError reports an internal consistency check that failed. It always
// indicates a defect, never bad user input.
type InvariantError struct {
	Op     string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("internal error in %s: %s", e.Op, e.Reason)
}

// ResourceError wraps an I/O failure on a document path.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Invalid builds an InvalidArgumentError.
func Invalid(op string, value any, format string, args ...any) error {
	return &InvalidArgumentError{Op: op, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// Invariant builds an InvariantError.
func Invariant(op, format string, args ...any) error {
	return &InvariantError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// Resource wraps err as a ResourceError unless it is nil.
func Resource(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &ResourceError{Op: op, Path: path, Err: err}
}

func IsInvalidArgument(err error) bool {
	var e *InvalidArgumentError
	return errors.As(err, &e)
}

func IsInvariant(err error) bool {
	var e *InvariantError
	return errors.As(err, &e)
}

func IsResource(err error) bool {
	var e *ResourceError
	return errors.As(err, &e)
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsInvalidArgument(err):
		return 2
	case IsInvariant(err):
		return 3
	default:
		return 1
	}
}
