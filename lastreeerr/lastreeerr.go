// Package lastreeerr draws the line between the two error classes this
// module distinguishes: recoverable conditions (returned and wrapped the
// ordinary Go way) and fatal ones (schema violations, buffer-pool
// exhaustion, I/O failure on a page this process must be able to read or
// write) that a caller should not attempt to paper over.
package lastreeerr

import (
	"errors"
	"fmt"
)

// FatalErr wraps a fatal condition. Callers can distinguish it from an
// ordinary recoverable error with errors.As, without parsing message
// text.
type FatalErr struct {
	Reason string
	Cause  error
}

func (e *FatalErr) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("fatal: %s", e.Reason)
	}
	return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Cause)
}

func (e *FatalErr) Unwrap() error { return e.Cause }

// Fatal builds a FatalErr. cause may be nil when the fatal condition is
// not itself triggered by an underlying error (e.g. buffer-pool
// exhaustion).
func Fatal(reason string, cause error) error {
	return &FatalErr{Reason: reason, Cause: cause}
}

// IsFatal reports whether err (or anything it wraps) is a FatalErr.
func IsFatal(err error) bool {
	var f *FatalErr
	return errors.As(err, &f)
}

// ErrNotFound is returned by Get-style lookups that find no tuple for the
// given key. It is always recoverable.
var ErrNotFound = errors.New("lastree: key not found")
