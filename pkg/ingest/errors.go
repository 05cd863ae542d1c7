package ingest

import (
	"errors"
	"fmt"
)

// ErrInvalidSample is the sentinel behind every validation failure.
var ErrInvalidSample = errors.New("ingest: invalid sample")

// ValidationError names the offending field of a rejected sample.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("ingest: invalid sample: %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrInvalidSample.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidSample
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
