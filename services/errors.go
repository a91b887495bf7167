package services

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeExternal     ErrorType = "external"
	ErrorTypeInternal     ErrorType = "internal"
)

// CodeServiceUnavailable is the provider error code reported when the identity
// provider could not be reached or answered without an API error.
const CodeServiceUnavailable = "ServiceUnavailable"

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
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
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
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

// Kind sentinels for errors.Is. They are never returned directly, so their
// Details stay empty.
var (
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "Token not valid!", nil)
)

// NewValidationError reports a missing or malformed request field
func NewValidationError(field, message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil).WithDetail("field", field)
}

// NewUnauthorizedError reports a rejected bearer token. The response message is
// fixed; the cause is only kept for logging.
func NewUnauthorizedError(err error) *DomainError {
	return NewDomainError(ErrorTypeUnauthorized, ErrInvalidToken.Message, err)
}

// WrapProviderError classifies a failure returned by the identity provider SDK.
// API errors keep the provider's code and message; anything else is reported as
// ServiceUnavailable.
func WrapProviderError(operation string, err error) *DomainError {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return NewDomainError(ErrorTypeExternal, apiErr.ErrorMessage(), err).
			WithDetail("code", apiErr.ErrorCode()).
			WithDetail("operation", operation)
	}
	return NewDomainError(ErrorTypeExternal, "identity provider unavailable", err).
		WithDetail("code", CodeServiceUnavailable).
		WithDetail("operation", operation)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsExternalError checks if an error is an identity provider error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
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

// GetErrorCode returns the provider error code carried by an external error
func GetErrorCode(err error) string {
	code, _ := GetErrorDetails(err)["code"].(string)
	return code
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
