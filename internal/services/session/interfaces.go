package session

import (
	"context"
	"time"

	"poltrona/internal/models"
)

// Service owns the per-chair NO_SESSION -> ACTIVE -> NO_SESSION cycle.
type Service interface {
	// Open starts the session funded by an approved payment. At most one
	// call per payment ever opens anything.
	Open(ctx context.Context, chairID, paymentID string) (OpenResult, error)
	// Expire closes the chair's session if its end has passed.
	Expire(ctx context.Context, chairID string) (bool, error)
	// ExpireDue closes every session whose end has passed and returns how
	// many it closed.
	ExpireDue(ctx context.Context) (int, error)
}

// OpenResult describes what Open did.
type OpenResult struct {
	Opened           bool
	AlreadyProcessed bool
	Chair            *models.Chair
	EndsAt           time.Time
}
