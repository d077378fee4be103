package excelimport

import "errors"

// ValidationError is a file-level rejection: size, row or schema violations.
// It carries a human-readable reason and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidationError reports whether err is a file-level validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
