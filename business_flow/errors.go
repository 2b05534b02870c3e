// Package businessflow contains the use cases of the numbering service
package businessflow

import (
	"errors"
	"fmt"
)

// Error classes. Every business error wraps exactly one of them.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInfrastructure = errors.New("infrastructure failure")
	ErrValidation     = errors.New("validation failed")
)

// Business flow error constants
var (
	// Document type errors
	ErrDocumentTypeNotFound = fmt.Errorf("document type not found: %w", ErrNotFound)
	ErrDocumentTypeInactive = fmt.Errorf("document type is inactive: %w", ErrNotFound)

	// Allocation errors
	ErrGenerationExhausted = fmt.Errorf("number generation exhausted its attempts, retry later: %w", ErrConflict)

	// History errors
	ErrNumberLogNotFound = fmt.Errorf("history entry not found: %w", ErrNotFound)

	// Audit errors
	ErrAuditLogNotFound = fmt.Errorf("audit log not found: %w", ErrNotFound)

	// Input errors
	ErrInvalidYear             = fmt.Errorf("year is out of range: %w", ErrValidation)
	ErrInvalidNewNumber        = fmt.Errorf("new number must not be negative: %w", ErrValidation)
	ErrActorRequired           = fmt.Errorf("actor is required: %w", ErrValidation)
	ErrUnsupportedExportFormat = fmt.Errorf("unsupported export format: %w", ErrValidation)
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

// newInfrastructureError marks a storage failure so callers can tell it from a conflict
func newInfrastructureError(code, message string, err error) *BusinessError {
	return NewBusinessError(code, message, fmt.Errorf("%w: %w", ErrInfrastructure, err))
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsDocumentTypeNotFound(err error) bool {
	return errors.Is(err, ErrDocumentTypeNotFound)
}

func IsDocumentTypeInactive(err error) bool {
	return errors.Is(err, ErrDocumentTypeInactive)
}

func IsGenerationExhausted(err error) bool {
	return errors.Is(err, ErrGenerationExhausted)
}

func IsNumberLogNotFound(err error) bool {
	return errors.Is(err, ErrNumberLogNotFound)
}

func IsAuditLogNotFound(err error) bool {
	return errors.Is(err, ErrAuditLogNotFound)
}

// ErrorCode returns the code of the outermost BusinessError, or "" when there is none
func ErrorCode(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
