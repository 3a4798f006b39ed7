package repositories

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row. Services
	// translate it into the matching domain error.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate reports a unique-key conflict on insert.
	ErrDuplicate = errors.New("record already exists")
)
