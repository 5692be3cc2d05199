package payments_repo

import (
	"context"

	"claims/internal/domain"
)

type PaymentRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error)
	GetByRequestReference(ctx context.Context, querier domain.Querier, reference string) (*domain.Payment, error)
	ListForCycle(ctx context.Context, querier domain.Querier, paymentCycleID string) ([]domain.Payment, error)
}
