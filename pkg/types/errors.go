package types

import (
	"errors"
	"fmt"
)

// Domain errors for type validation
var (
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidOutputFormat = errors.New("invalid output format")
	ErrEmptySourcePath     = errors.New("source path cannot be empty")
)

// ValidationError reports a value that failed domain validation.
// It is never retried.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("validation failed for %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("validation failed for %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
