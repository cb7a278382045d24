package model

import "fmt"

// Error codes returned by the API and carried by domain errors.
const (
	ErrCodeInvalidJSON   = "INVALID_JSON"
	ErrCodeMissingField  = "MISSING_FIELD"
	ErrCodeInvalidPhone  = "INVALID_PHONE"
	ErrCodeOrderNotFound = "ORDER_NOT_FOUND"
	ErrCodeOrderTaken    = "ORDER_TAKEN"
	ErrCodeOrderState    = "ORDER_INVALID_STATE"
	ErrCodeCourierBusy   = "COURIER_BUSY"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorised  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// DomainError is a business-rule failure with a stable code. Conflict
// errors are distinguished from validation errors so callers can give a
// specific reply ("order already taken") instead of a generic one.
type DomainError struct {
	Code     string
	Message  string
	Conflict bool
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a validation-class domain error.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewConflictError creates a conflict-class domain error.
func NewConflictError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, Conflict: true}
}

// MissingFieldError reports a confirm-time validation failure naming the
// exact missing field.
func MissingFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingField,
		Message: fmt.Sprintf("order is missing required field: %s", field),
	}
}

// Common domain errors.
var (
	ErrOrderNotFound = NewDomainError(ErrCodeOrderNotFound, "order not found")
	ErrOrderTaken    = NewConflictError(ErrCodeOrderTaken, "order already taken by another courier")
	ErrOrderState    = NewConflictError(ErrCodeOrderState, "order is not in a state that allows this operation")
	ErrCourierBusy   = NewConflictError(ErrCodeCourierBusy, "courier already holds an active order")
	ErrInvalidPhone  = NewDomainError(ErrCodeInvalidPhone, "phone number is not in a recognisable format")
)
