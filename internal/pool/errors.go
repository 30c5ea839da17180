package pool

import (
	"errors"
	"fmt"
)

// unhealthyError wraps a backend failure so it matches ErrBackendUnhealthy
// while keeping the original cause reachable.
type unhealthyError struct {
	err error
}

func (e *unhealthyError) Error() string {
	return fmt.Sprintf("%s: %v", ErrBackendUnhealthy, e.err)
}

func (e *unhealthyError) Unwrap() error { return e.err }

func (e *unhealthyError) Is(target error) bool { return target == ErrBackendUnhealthy }

// Unhealthy classifies err as a backend failure. nil stays nil.
func Unhealthy(err error) error {
	if err == nil || IsBackendError(err) {
		return err
	}
	return &unhealthyError{err: err}
}

// IsBackendError reports whether err is a backend failure.
func IsBackendError(err error) bool {
	return errors.Is(err, ErrBackendUnhealthy)
}
