package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeUnprocessable ErrorType = "unprocessable"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeExternal      ErrorType = "external"
)

// DomainError represents a structured error with additional context.
// Code narrows a Type to one specific failure; errors.Is against a
// sentinel with a Code matches only that failure.
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap returns a copy of e carrying cause. Sentinels stay untouched.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := &DomainError{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Err:     cause,
		Details: make(map[string]interface{}, len(e.Details)),
	}
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	return cp
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

func newCoded(errType ErrorType, code, message string) *DomainError {
	e := NewDomainError(errType, message, nil)
	e.Code = code
	return e
}

// Domain error variables

var (
	// Authentication failures. All of them surface as a generic 401.
	ErrInvalidCredentials = newCoded(ErrorTypeUnauthorized, "invalid_credentials", "invalid credentials")
	ErrInvalidToken       = newCoded(ErrorTypeUnauthorized, "invalid_token", "invalid authentication token")
	ErrTokenExpired       = newCoded(ErrorTypeUnauthorized, "token_expired", "authentication token expired")
	ErrSessionRevoked     = newCoded(ErrorTypeUnauthorized, "session_revoked", "session revoked")
	ErrSessionExpired     = newCoded(ErrorTypeUnauthorized, "session_expired", "session expired")
	ErrPrincipalNotFound  = newCoded(ErrorTypeUnauthorized, "principal_not_found", "principal not found")

	// Validation Errors
	ErrInvalidQualifiedName     = newCoded(ErrorTypeValidation, "invalid_qualified_name", "object name must be in the form dataset.table")
	ErrInvalidCredentialPayload = newCoded(ErrorTypeValidation, "invalid_credential_payload", "invalid warehouse credential payload")
	ErrMissingFieldName         = newCoded(ErrorTypeValidation, "missing_field_name", "every field requires a field_name")
	ErrMissingObjectName        = newCoded(ErrorTypeValidation, "missing_object_name", "object_name is required")

	// Not Found Errors
	ErrNotFoundOrForbidden = newCoded(ErrorTypeNotFound, "not_found_or_forbidden", "connection not found")
	ErrObjectNotFound      = newCoded(ErrorTypeNotFound, "object_not_found", "object not found in warehouse")

	// Conflict Errors
	ErrNameConflict   = newCoded(ErrorTypeConflict, "name_conflict", "a connection with this name already exists")
	ErrDuplicateEmail = newCoded(ErrorTypeConflict, "duplicate_email", "email already exists")

	// Unprocessable Errors
	ErrNoQueryGenerated = newCoded(ErrorTypeUnprocessable, "no_query_generated", "could not generate a query from the request")

	// Internal Errors
	ErrGenerationUnavailable = newCoded(ErrorTypeInternal, "generation_unavailable", "query generation is not configured")
	ErrGenerationFailed      = newCoded(ErrorTypeInternal, "generation_failed", "query generation failed")

	// External Errors
	ErrUpstream = newCoded(ErrorTypeExternal, "upstream", "warehouse request failed")
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsUnprocessableError checks if an error is an unprocessable error
func IsUnprocessableError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnprocessable
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsExternalError checks if an error is an external upstream error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorCode returns the Code of a domain error, or empty string
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external upstream error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// Validation builds a validation error with a client-facing message
func Validation(message string) error {
	return NewDomainError(ErrorTypeValidation, message, nil)
}
