package cycles_repo

import (
	"context"
	"time"

	"claims/internal/domain"
)

type PaymentCycleRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, cycle *domain.PaymentCycle) error
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.PaymentCycle, error)
	// UpdateWithVersion persists the cycle only if its version is unchanged
	// since it was read, returning domain.ErrVersionConflict for a losing
	// concurrent writer.
	UpdateWithVersion(ctx context.Context, querier domain.Querier, cycle *domain.PaymentCycle) error
	// CyclesEndingBefore returns cycles whose end date is at or before the
	// cutoff and whose claim is still ACTIVE, excluding cycles that already
	// have a successor.
	CyclesEndingBefore(ctx context.Context, querier domain.Querier, cutoff time.Time) ([]domain.PaymentCycle, error)
	LatestForClaim(ctx context.Context, querier domain.Querier, claimID string) (*domain.PaymentCycle, error)
}
