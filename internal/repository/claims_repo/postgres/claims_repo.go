package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"claims/internal/domain"
)

type ClaimRepository struct{}

func NewClaimRepository() *ClaimRepository {
	return &ClaimRepository{}
}

const claimColumns = `
	id, claimant, nino, claim_status, claim_status_timestamp,
	eligibility_status, eligibility_status_timestamp,
	card_status, card_status_timestamp, card_account_id,
	dwp_household_identifier, hmrc_household_identifier,
	eligibility_override, created_at, updated_at
`

func (r *ClaimRepository) CreateTx(ctx context.Context, querier domain.Querier, claim *domain.Claim) error {
	claimant, err := json.Marshal(claim.Claimant)
	if err != nil {
		return fmt.Errorf("failed to marshal claimant: %w", err)
	}

	query := `
		INSERT INTO claims (` + claimColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = querier.ExecContext(ctx, query,
		claim.ID,
		claimant,
		claim.Claimant.Nino,
		claim.ClaimStatus,
		claim.ClaimStatusTimestamp,
		claim.EligibilityStatus,
		claim.EligibilityStatusTimestamp,
		claim.CardStatus,
		claim.CardStatusTimestamp,
		claim.CardAccountID,
		claim.DwpHouseholdIdentifier,
		claim.HmrcHouseholdIdentifier,
		claim.EligibilityOverride,
		claim.CreatedAt,
		claim.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

func (r *ClaimRepository) GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE id = $1`
	claim, err := scanClaim(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrClaimNotFound
		}
		return nil, fmt.Errorf("failed to get claim %s: %w", id, err)
	}
	return claim, nil
}

func (r *ClaimRepository) Update(ctx context.Context, querier domain.Querier, claim *domain.Claim) error {
	claimant, err := json.Marshal(claim.Claimant)
	if err != nil {
		return fmt.Errorf("failed to marshal claimant: %w", err)
	}

	query := `
		UPDATE claims
		SET claimant = $1, nino = $2,
		    claim_status = $3, claim_status_timestamp = $4,
		    eligibility_status = $5, eligibility_status_timestamp = $6,
		    card_status = $7, card_status_timestamp = $8, card_account_id = $9,
		    dwp_household_identifier = $10, hmrc_household_identifier = $11,
		    eligibility_override = $12, updated_at = $13
		WHERE id = $14
	`
	res, err := querier.ExecContext(ctx, query,
		claimant,
		claim.Claimant.Nino,
		claim.ClaimStatus,
		claim.ClaimStatusTimestamp,
		claim.EligibilityStatus,
		claim.EligibilityStatusTimestamp,
		claim.CardStatus,
		claim.CardStatusTimestamp,
		claim.CardAccountID,
		claim.DwpHouseholdIdentifier,
		claim.HmrcHouseholdIdentifier,
		claim.EligibilityOverride,
		time.Now(),
		claim.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update claim %s: %w", claim.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for claim update: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrClaimNotFound
	}
	return nil
}

func (r *ClaimRepository) LiveClaimExistsForNino(ctx context.Context, querier domain.Querier, nino string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM claims
			WHERE nino = $1 AND claim_status = ANY($2)
		)
	`
	var exists bool
	err := querier.QueryRowContext(ctx, query, nino, pq.Array(domain.LiveClaimStatuses())).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check live claim for nino: %w", err)
	}
	return exists, nil
}

func (r *ClaimRepository) LiveClaimExistsForHousehold(ctx context.Context, querier domain.Querier, dwpHouseholdID, hmrcHouseholdID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM claims
			WHERE claim_status = ANY($1)
			  AND ((dwp_household_identifier <> '' AND dwp_household_identifier = $2)
			    OR (hmrc_household_identifier <> '' AND hmrc_household_identifier = $3))
		)
	`
	var exists bool
	err := querier.QueryRowContext(ctx, query, pq.Array(domain.LiveClaimStatuses()), dwpHouseholdID, hmrcHouseholdID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check live claim for household: %w", err)
	}
	return exists, nil
}

func (r *ClaimRepository) WithCardStatusOlderThan(ctx context.Context, querier domain.Querier, status domain.CardStatus, before time.Time) ([]domain.Claim, error) {
	query := `
		SELECT ` + claimColumns + `
		FROM claims
		WHERE card_status = $1 AND card_status_timestamp <= $2
		ORDER BY card_status_timestamp ASC
	`
	rows, err := querier.QueryContext(ctx, query, status, before)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims by card status: %w", err)
	}
	defer rows.Close()

	var claims []domain.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, *claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claims: %w", err)
	}
	return claims, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	claim := &domain.Claim{}
	var claimant []byte
	var nino string
	err := row.Scan(
		&claim.ID,
		&claimant,
		&nino,
		&claim.ClaimStatus,
		&claim.ClaimStatusTimestamp,
		&claim.EligibilityStatus,
		&claim.EligibilityStatusTimestamp,
		&claim.CardStatus,
		&claim.CardStatusTimestamp,
		&claim.CardAccountID,
		&claim.DwpHouseholdIdentifier,
		&claim.HmrcHouseholdIdentifier,
		&claim.EligibilityOverride,
		&claim.CreatedAt,
		&claim.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(claimant, &claim.Claimant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal claimant: %w", err)
	}
	return claim, nil
}
