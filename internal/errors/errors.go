package errors

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Sentinel errors surfaced to callers of the engine, registry and pipeline.
// Callers match them with errors.Is.
var (
	// ErrStoreUnavailable marks a transient infrastructure failure. No
	// automatic retry happens at this layer; retry is a caller action.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotAuthenticated is returned when an operation needs an actor
	// identity and no session is present.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
)

// Map converts repo/infra errors into the domain taxonomy.
// Keeps the engine and pipeline clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound

	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: request timed out", ErrStoreUnavailable)

	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: request was canceled", ErrStoreUnavailable)

	default:
		// fallback → keep the cause for debugging
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// InvalidArgument creates an input validation error.
// Use this in the engine for bad input before touching the store.
func InvalidArgument(msg string) error {
	return fmt.Errorf("invalid argument: %s", msg)
}
