package chair

import (
	"context"

	"poltrona/internal/models"
	"poltrona/internal/repositories"

	"github.com/shopspring/decimal"
)

// Service is the admin side of the chair registry.
type Service interface {
	List(ctx context.Context, activeOnly bool) ([]models.Chair, error)
	Get(ctx context.Context, chairID string) (*models.Chair, error)
	Create(ctx context.Context, actor Actor, in CreateInput) (*models.Chair, error)
	Update(ctx context.Context, actor Actor, chairID string, update repositories.ChairConfigUpdate) (*models.Chair, error)
	Deactivate(ctx context.Context, actor Actor, chairID string) (*models.Chair, error)
	TestRelay(ctx context.Context, actor Actor, chairID string) error
}

// Relay fires a controller without a payment.
type Relay interface {
	Test(ctx context.Context, address string) error
}

// Actor identifies who performed an admin action.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

type CreateInput struct {
	ChairID          string
	Address          string
	Price            decimal.Decimal
	DurationSeconds  int
	Location         string
	Active           *bool
	PublicPaymentURL string
}
