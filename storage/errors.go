package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	ErrUnavailable = errors.New("storage: backend unavailable")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnavailable reports whether err means the backend could not be reached
// (including context expiry).
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// Unavailable wraps cause so that IsUnavailable(err) holds.
func Unavailable(backend string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", backend, ErrUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", backend, ErrUnavailable, cause)
}
