// Package errors holds the domain error taxonomy shared by services and
// handlers. Services return these values (possibly wrapped); handlers turn
// them into HTTP responses without leaking upstream details.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError is an error with a stable code and the HTTP status it maps to.
type DomainError struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches on Code so wrapped copies carrying details still compare equal
// to the sentinel they were derived from.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of e carrying the given details.
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *DomainError) WithMessage(format string, args ...interface{}) *DomainError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// As extracts a *DomainError from err, if any.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

var (
	ErrInvalidRequest = &DomainError{
		Code:    "INVALID_REQUEST",
		Message: "invalid request",
		Status:  http.StatusBadRequest,
	}
	ErrUpstreamUnavailable = &DomainError{
		Code:    "UPSTREAM_UNAVAILABLE",
		Message: "payment processor unavailable, try again later",
		Status:  http.StatusBadGateway,
	}
	ErrConfigMissing = &DomainError{
		Code:    "CONFIG_MISSING",
		Message: "server configuration incomplete",
		Status:  http.StatusInternalServerError,
	}
	ErrInternal = &DomainError{
		Code:    "INTERNAL",
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
	}
)
