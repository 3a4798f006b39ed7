package repositories

import (
	"context"
	"time"

	"poltrona/internal/models"

	"github.com/shopspring/decimal"
)

// ChairFilter narrows chair listings.
type ChairFilter struct {
	ActiveOnly bool
}

// ChairConfigUpdate carries the admin-editable fields. Nil fields are left
// untouched. Session and intent columns are not reachable from here.
type ChairConfigUpdate struct {
	Address          *string
	Price            *decimal.Decimal
	DurationSeconds  *int
	Location         *string
	Active           *bool
	PublicPaymentURL *string
}

// ChairRepository defines the chair registry and its pipeline-owned state.
type ChairRepository interface {
	// Registry
	FindByChairID(ctx context.Context, chairID string) (*models.Chair, error)
	GetConfig(ctx context.Context, chairID string) (*models.Chair, error)
	List(ctx context.Context, filter ChairFilter) ([]models.Chair, error)
	Create(ctx context.Context, chair *models.Chair) error
	UpdateConfig(ctx context.Context, chairID string, update ChairConfigUpdate) (*models.Chair, error)

	// Intent binding, keyed on the chair's intent sequence
	AttachIntent(ctx context.Context, chairID string, seq int64, intent models.ChairIntent) (bool, error)
	ReleaseIntent(ctx context.Context, chairID string, seq int64) (bool, error)

	// Session window
	OpenSession(ctx context.Context, chairID, paymentID string, startedAt, endsAt time.Time) (bool, error)
	ExpireSession(ctx context.Context, chairID string, now time.Time) (bool, error)
	ListExpiredSessions(ctx context.Context, now time.Time) ([]models.Chair, error)
}
