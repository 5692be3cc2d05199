package claims_repo

import (
	"context"
	"time"

	"claims/internal/domain"
)

type ClaimRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, claim *domain.Claim) error
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Claim, error)
	Update(ctx context.Context, querier domain.Querier, claim *domain.Claim) error
	LiveClaimExistsForNino(ctx context.Context, querier domain.Querier, nino string) (bool, error)
	LiveClaimExistsForHousehold(ctx context.Context, querier domain.Querier, dwpHouseholdID, hmrcHouseholdID string) (bool, error)
	WithCardStatusOlderThan(ctx context.Context, querier domain.Querier, status domain.CardStatus, before time.Time) ([]domain.Claim, error)
}
