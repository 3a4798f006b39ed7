package errors

import "net/http"

var (
	ErrPaymentNotFound = &DomainError{
		Code:    "PAYMENT_NOT_FOUND",
		Message: "payment not found",
		Status:  http.StatusNotFound,
	}
	ErrPaymentNotApproved = &DomainError{
		Code:    "PAYMENT_NOT_APPROVED",
		Message: "payment is not approved",
		Status:  http.StatusPreconditionFailed,
	}
	ErrAlreadyNotified = &DomainError{
		Code:    "ALREADY_NOTIFIED",
		Message: "device was already notified for this payment",
		Status:  http.StatusConflict,
	}
)
