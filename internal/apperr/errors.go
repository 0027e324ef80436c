// Package apperr holds the error kinds shared by the store, the services and
// the transports. Callers wrap them with %w and match with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means there is no usable caller identity. It is
	// checked before any authorization decision.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden means the identity is known but the action is not allowed.
	ErrForbidden = errors.New("forbidden")

	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")

	// ErrPersistence marks a store failure. It is retryable from the
	// client's point of view.
	ErrPersistence = errors.New("persistence failure")

	// ErrDelivery is only ever logged; it never reaches the publisher.
	ErrDelivery = errors.New("delivery failure")
)

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

// Persistence classifies a store error. Errors that already carry a kind are
// returned as they are.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsKnown(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// IsKnown reports whether err carries one of the kinds above.
func IsKnown(err error) bool {
	for _, kind := range []error{
		ErrUnauthenticated, ErrForbidden, ErrNotFound, ErrValidation,
		ErrConflict, ErrPersistence, ErrDelivery,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
