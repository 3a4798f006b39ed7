package payment

import "errors"

// ErrMissingPaymentID is returned for processor payloads without an id.
var ErrMissingPaymentID = errors.New("processor payment has no id")
