package utils

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced by the QA gate service. Callers branch with errors.Is;
// the REST layer maps the four kinds to status codes.
var (
	// ErrorRecordNotFound: operation references a job/policy that does not exist.
	ErrorRecordNotFound = errors.New("record not found")

	// ErrorValidation: malformed or missing required input. Rejected before any
	// state mutation; the caller can correct and retry.
	ErrorValidation = errors.New("validation error")

	// ErrorInvalidState: operation not legal for the current ledger state
	// (e.g. force-release on an already-released entry).
	ErrorInvalidState = errors.New("invalid state")

	// ErrorUnavailable: storage/transport failure. Retryable with backoff; the
	// per-job critical section guarantees no partial effect was committed.
	ErrorUnavailable = errors.New("unavailable")
)

func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorValidation, fmt.Sprintf(format, args...))
}

func InvalidStateErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorInvalidState, fmt.Sprintf(format, args...))
}

func UnavailableError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrorUnavailable, err)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrorRecordNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrorValidation)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrorInvalidState)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrorUnavailable)
}
