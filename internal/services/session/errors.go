package session

import "errors"

// ErrSessionConflict means the chair was already running another session
// when the payment tried to open one. The payment stays unprocessed.
var ErrSessionConflict = errors.New("chair already has an active session")
