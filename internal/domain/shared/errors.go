package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DomainError so transport layers can map it
// to a response without string matching.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindForbidden         ErrorKind = "forbidden"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindMethodMismatch    ErrorKind = "method_mismatch"
	KindInvalidPayload    ErrorKind = "invalid_payload"
	KindPaymentTimeout    ErrorKind = "payment_timeout"
	KindPricingMismatch   ErrorKind = "pricing_mismatch"
)

// DomainError is a business-rule violation carrying a machine-readable kind.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return e.Message
}

// IsKind reports whether err is (or wraps) a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Kind == kind
}

// NewValidationError creates a validation error.
func NewValidationError(msg string) *DomainError {
	return &DomainError{Kind: KindValidation, Message: msg}
}

// NewUnauthorizedError creates an error for an actor that is neither party.
func NewUnauthorizedError(msg string) *DomainError {
	return &DomainError{Kind: KindUnauthorized, Message: msg}
}

// NewForbiddenError creates an error for a known actor acting in the wrong role.
func NewForbiddenError(msg string) *DomainError {
	return &DomainError{Kind: KindForbidden, Message: msg}
}

// NewNotFoundError creates a not-found error for the given entity and key.
func NewNotFoundError(entity, key string) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", entity, key)}
}

// NewConflictError creates a concurrent-modification conflict error.
func NewConflictError(msg string) *DomainError {
	return &DomainError{Kind: KindConflict, Message: msg}
}

// NewInvalidTransitionError creates an error for a from→to pair absent from the transition table.
func NewInvalidTransitionError(from, to string) *DomainError {
	return &DomainError{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("no transition from %s to %s", from, to),
	}
}

// NewMethodMismatchError creates an error for a DIRECT/DELIVERY guard failure.
func NewMethodMismatchError(msg string) *DomainError {
	return &DomainError{Kind: KindMethodMismatch, Message: msg}
}

// NewInvalidPayloadError creates an error for missing or empty required payload fields.
func NewInvalidPayloadError(msg string) *DomainError {
	return &DomainError{Kind: KindInvalidPayload, Message: msg}
}

// NewPaymentTimeoutError creates an error for a payment confirmation that did not arrive in time.
func NewPaymentTimeoutError(msg string) *DomainError {
	return &DomainError{Kind: KindPaymentTimeout, Message: msg}
}

// NewPricingMismatchError creates an error for a recomputed total that differs from the charged amount.
func NewPricingMismatchError(expected, actual int64) *DomainError {
	return &DomainError{
		Kind:    KindPricingMismatch,
		Message: fmt.Sprintf("recomputed total %d does not match charged amount %d", expected, actual),
	}
}
