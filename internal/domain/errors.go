package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrClaimNotFound = errors.New("claim not found")
var ErrPaymentCycleNotFound = errors.New("payment cycle not found")
var ErrMessageNotFound = errors.New("message not found")
var ErrVersionConflict = errors.New("version conflict on concurrent update")
var ErrDuplicateClaim = errors.New("a live claim already exists for this claimant")

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail for client errors. Validation
// errors are never retried.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransientError marks a failure as retry-eligible: the message that caused it
// stays queued and is re-attempted until the attempt budget runs out.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
