// Package errors holds the storage-level failure kinds of the
// reservation store. The service layer maps them onto the application
// error taxonomy; nothing below the service formats user-facing text.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrStaleVersion means a write used an outdated booking version;
	// the caller must re-read and retry with fresh data.
	ErrStaleVersion = errors.New("booking version is stale")

	// ErrTransientConflict means transactions raced on overlapping data
	// but no authoritative occupant exists; retrying may succeed.
	ErrTransientConflict = errors.New("transient storage conflict")
)

// AlreadyBookedError is the permanent conflict: the listed dates are
// claimed by another live booking, so the identical request will keep
// failing.
type AlreadyBookedError struct {
	Dates []time.Time
}

func (e *AlreadyBookedError) Error() string {
	if len(e.Dates) == 0 {
		return "booking dates are not available"
	}
	formatted := make([]string, len(e.Dates))
	for i, d := range e.Dates {
		formatted[i] = d.Format("2006-01-02")
	}
	return fmt.Sprintf("booking dates are not available: %s", strings.Join(formatted, ", "))
}

// IsAlreadyBooked unwraps err as an AlreadyBookedError.
func IsAlreadyBooked(err error) (*AlreadyBookedError, bool) {
	var abe *AlreadyBookedError
	if errors.As(err, &abe) {
		return abe, true
	}
	return nil, false
}
