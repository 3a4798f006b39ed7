package repositories

import (
	"context"
	"time"

	"poltrona/internal/models"
)

// ChairCache is the read cache consulted for chair registry lookups.
// It is optional: repositories work without one.
type ChairCache interface {
	GetChair(ctx context.Context, chairID string) (*models.Chair, bool, error)
	CacheChair(ctx context.Context, chair *models.Chair) error
	InvalidateChair(ctx context.Context, chairID string) error
}

// Default cache expiration time
const DefaultExpiration = 10 * time.Minute
