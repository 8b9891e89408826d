package domain

import "fmt"

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeForbidden  = "FORBIDDEN"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeStoreWrite = "STORE_WRITE_FAILED"
	ErrCodeLoadFailed = "LOAD_FAILED"
)

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(msg string) error {
	return &DomainError{
		Code:    ErrCodeForbidden,
		Message: msg,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// NewStoreWriteError wraps a failed store mutation
func NewStoreWriteError(err error) error {
	return &DomainError{
		Code:    ErrCodeStoreWrite,
		Message: "The change could not be saved",
		Err:     err,
	}
}

// NewLoadFailedError wraps a failed initial page load. This is the only
// error kind that blocks the whole view.
func NewLoadFailedError(err error) error {
	return &DomainError{
		Code:    ErrCodeLoadFailed,
		Message: "Failed to load leads",
		Err:     err,
	}
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return GetErrorCode(err) == ErrCodeNotFound
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return GetErrorCode(err) == ErrCodeValidation
}

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool {
	return GetErrorCode(err) == ErrCodeForbidden
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	return GetErrorCode(err) == ErrCodeConflict
}

// IsStoreWrite checks if the error is a failed store mutation
func IsStoreWrite(err error) bool {
	return GetErrorCode(err) == ErrCodeStoreWrite
}

// IsLoadFailed checks if the error is a blocking load failure
func IsLoadFailed(err error) bool {
	return GetErrorCode(err) == ErrCodeLoadFailed
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	if de, ok := err.(*DomainError); ok {
		return de.Code
	}
	return ErrCodeInternal
}
