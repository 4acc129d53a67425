package events

import "github.com/go-errors/errors"

// ErrInvalidEvent is the sentinel wrapped by every validation/decryption
// failure surfaced by this package: never retried, always surfaced to
// the caller.
var ErrInvalidEvent = errors.New("invalid event")

// InvalidEventError carries a human-readable reason alongside the
// ErrInvalidEvent sentinel so callers can both log the detail and test
// with errors.Is(err, ErrInvalidEvent).
type InvalidEventError struct {
	Reason string
	Cause  error
}

func newInvalidEvent(reason string) error {
	return &InvalidEventError{Reason: reason}
}

func wrapInvalidEvent(reason string, cause error) error {
	return &InvalidEventError{Reason: reason, Cause: cause}
}

func (e *InvalidEventError) Error() string {
	if e.Cause != nil {
		return "invalid event: " + e.Reason + ": " + e.Cause.Error()
	}
	return "invalid event: " + e.Reason
}

func (e *InvalidEventError) Unwrap() error {
	return ErrInvalidEvent
}
