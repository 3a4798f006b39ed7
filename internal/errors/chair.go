package errors

import (
	"math"
	"net/http"
	"time"
)

var (
	ErrChairNotFound = &DomainError{
		Code:    "CHAIR_NOT_FOUND",
		Message: "chair not found",
		Status:  http.StatusNotFound,
	}
	ErrChairInactive = &DomainError{
		Code:    "CHAIR_INACTIVE",
		Message: "chair is inactive",
		Status:  http.StatusPreconditionFailed,
	}
	ErrChairBusy = &DomainError{
		Code:    "CHAIR_BUSY",
		Message: "chair is in use",
		Status:  http.StatusLocked,
	}
	ErrChairExists = &DomainError{
		Code:    "CHAIR_EXISTS",
		Message: "chair already registered",
		Status:  http.StatusConflict,
	}
	ErrDeviceUnreachable = &DomainError{
		Code:    "DEVICE_UNREACHABLE",
		Message: "device did not respond, check that it is online",
		Status:  http.StatusServiceUnavailable,
	}
	ErrDeviceAddressMissing = &DomainError{
		Code:    "DEVICE_ADDRESS_MISSING",
		Message: "chair has no network address configured",
		Status:  http.StatusPreconditionFailed,
	}
)

// Busy returns ErrChairBusy carrying the whole seconds left until the chair
// is free again.
func Busy(remaining time.Duration) *DomainError {
	seconds := int(math.Ceil(remaining.Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	return ErrChairBusy.
		WithMessage("chair is in use, available in %d seconds", seconds).
		WithDetails(map[string]interface{}{"retryAfterSeconds": seconds})
}

// RetryAfter reports the retry hint carried by a busy error.
func RetryAfter(err error) (int, bool) {
	de, ok := As(err)
	if !ok || de.Code != ErrChairBusy.Code || de.Details == nil {
		return 0, false
	}
	seconds, ok := de.Details["retryAfterSeconds"].(int)
	return seconds, ok
}
