package pubsub

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrBackendNil is returned when a Broker is created without a backend
	ErrBackendNil = errors.New("backend cannot be nil")

	// ErrJobNil is returned when subscribing a nil job
	ErrJobNil = errors.New("job cannot be nil")

	// ErrEmptyPattern is the cause of a PatternError for an empty pattern
	ErrEmptyPattern = errors.New("pattern cannot be empty")
)

// PatternError reports a topic pattern that failed to compile. It is returned
// from Subscribe and friends, never deferred to publish time.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid topic pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}
