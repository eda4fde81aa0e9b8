// Package fault defines the engine's client-facing error taxonomy.
//
// Conflict is deliberately absent: day-ownership conflicts are resolved
// silently by the ledger's uniqueness constraint, never raised as errors.
package fault

import (
	"errors"
	"fmt"
)

// ValidationError rejects malformed input synchronously (missing tenant,
// bad date filters, invalid ids). Surfaced as a client error, never retried.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err has a ValidationError in its chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError marks a lookup of an unknown series, dossier or attachment.
type NotFoundError struct {
	msg string
}

func (e *NotFoundError) Error() string { return e.msg }

// NotFoundf builds a NotFoundError with a formatted message.
func NotFoundf(format string, args ...any) error {
	return &NotFoundError{msg: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err has a NotFoundError in its chain.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
