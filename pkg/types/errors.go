package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the Console. REST handlers map these to
// HTTP statuses; the frame layer maps them to error envelopes.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidState   = errors.New("invalid state transition")
	ErrRateLimited    = errors.New("rate limited")
	ErrTooManyPoints  = errors.New("too many points")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrInternal       = errors.New("internal error")
)

// ValidationError carries one message per violated rule
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// NewValidationError builds a ValidationError from detail messages
func NewValidationError(details ...string) *ValidationError {
	return &ValidationError{Details: details}
}

// Validationf builds a single-detail ValidationError
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Details: []string{fmt.Sprintf(format, args...)}}
}

// IsValidation reports whether err is (or wraps) a ValidationError and
// returns it when so
func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
