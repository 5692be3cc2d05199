package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"claims/internal/domain"
)

type PaymentCycleRepository struct{}

func NewPaymentCycleRepository() *PaymentCycleRepository {
	return &PaymentCycleRepository{}
}

const cycleColumns = `
	id, claim_id, start_date, end_date, eligibility_status,
	expected_delivery_date, children_dates_of_birth, entitlement,
	total_entitlement_amount_in_pence, card_balance_in_pence,
	card_balance_timestamp, payment_status, version, created_at, updated_at
`

func (r *PaymentCycleRepository) CreateTx(ctx context.Context, querier domain.Querier, cycle *domain.PaymentCycle) error {
	childrenDOB, entitlement, err := marshalSnapshots(cycle)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payment_cycles (` + cycleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = querier.ExecContext(ctx, query,
		cycle.ID,
		cycle.ClaimID,
		cycle.StartDate,
		cycle.EndDate,
		cycle.EligibilityStatus,
		cycle.ExpectedDeliveryDate,
		childrenDOB,
		entitlement,
		cycle.TotalEntitlementAmountInPence,
		cycle.CardBalanceInPence,
		cycle.CardBalanceTimestamp,
		cycle.PaymentStatus,
		cycle.Version,
		cycle.CreatedAt,
		cycle.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment cycle: %w", err)
	}
	return nil
}

func (r *PaymentCycleRepository) GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.PaymentCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM payment_cycles WHERE id = $1`
	cycle, err := scanCycle(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPaymentCycleNotFound
		}
		return nil, fmt.Errorf("failed to get payment cycle %s: %w", id, err)
	}
	return cycle, nil
}

func (r *PaymentCycleRepository) UpdateWithVersion(ctx context.Context, querier domain.Querier, cycle *domain.PaymentCycle) error {
	childrenDOB, entitlement, err := marshalSnapshots(cycle)
	if err != nil {
		return err
	}

	query := `
		UPDATE payment_cycles
		SET eligibility_status = $1, expected_delivery_date = $2,
		    children_dates_of_birth = $3, entitlement = $4,
		    total_entitlement_amount_in_pence = $5, card_balance_in_pence = $6,
		    card_balance_timestamp = $7, payment_status = $8,
		    version = version + 1, updated_at = $9
		WHERE id = $10 AND version = $11
	`
	res, err := querier.ExecContext(ctx, query,
		cycle.EligibilityStatus,
		cycle.ExpectedDeliveryDate,
		childrenDOB,
		entitlement,
		cycle.TotalEntitlementAmountInPence,
		cycle.CardBalanceInPence,
		cycle.CardBalanceTimestamp,
		cycle.PaymentStatus,
		time.Now(),
		cycle.ID,
		cycle.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment cycle %s: %w", cycle.ID, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for cycle update: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrVersionConflict
	}
	cycle.Version++
	return nil
}

func (r *PaymentCycleRepository) CyclesEndingBefore(ctx context.Context, querier domain.Querier, cutoff time.Time) ([]domain.PaymentCycle, error) {
	query := `
		SELECT ` + cycleColumns + `
		FROM payment_cycles pc
		WHERE pc.end_date <= $1
		  AND EXISTS (
			SELECT 1 FROM claims c
			WHERE c.id = pc.claim_id AND c.claim_status IN ($2, $3)
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM payment_cycles next
			WHERE next.claim_id = pc.claim_id AND next.start_date >= pc.end_date
		  )
		ORDER BY pc.end_date ASC
	`
	// PENDING_EXPIRY claims keep renewing so a later re-evaluation can
	// recover them to ACTIVE or settle them as EXPIRED.
	rows, err := querier.QueryContext(ctx, query, cutoff, domain.ClaimStatusActive, domain.ClaimStatusPendingExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles ending before %s: %w", cutoff, err)
	}
	defer rows.Close()

	var cycles []domain.PaymentCycle
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment cycle: %w", err)
		}
		cycles = append(cycles, *cycle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment cycles: %w", err)
	}
	return cycles, nil
}

func (r *PaymentCycleRepository) LatestForClaim(ctx context.Context, querier domain.Querier, claimID string) (*domain.PaymentCycle, error) {
	query := `
		SELECT ` + cycleColumns + `
		FROM payment_cycles
		WHERE claim_id = $1
		ORDER BY start_date DESC
		LIMIT 1
	`
	cycle, err := scanCycle(querier.QueryRowContext(ctx, query, claimID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPaymentCycleNotFound
		}
		return nil, fmt.Errorf("failed to get latest cycle for claim %s: %w", claimID, err)
	}
	return cycle, nil
}

func marshalSnapshots(cycle *domain.PaymentCycle) ([]byte, []byte, error) {
	childrenDOB, err := json.Marshal(cycle.ChildrenDatesOfBirth)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal children dates of birth: %w", err)
	}
	var entitlement []byte
	if cycle.Entitlement != nil {
		entitlement, err = json.Marshal(cycle.Entitlement)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal entitlement snapshot: %w", err)
		}
	}
	return childrenDOB, entitlement, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCycle(row rowScanner) (*domain.PaymentCycle, error) {
	cycle := &domain.PaymentCycle{}
	var childrenDOB, entitlement []byte
	var expectedDeliveryDate, cardBalanceTimestamp sql.NullTime
	err := row.Scan(
		&cycle.ID,
		&cycle.ClaimID,
		&cycle.StartDate,
		&cycle.EndDate,
		&cycle.EligibilityStatus,
		&expectedDeliveryDate,
		&childrenDOB,
		&entitlement,
		&cycle.TotalEntitlementAmountInPence,
		&cycle.CardBalanceInPence,
		&cardBalanceTimestamp,
		&cycle.PaymentStatus,
		&cycle.Version,
		&cycle.CreatedAt,
		&cycle.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expectedDeliveryDate.Valid {
		cycle.ExpectedDeliveryDate = &expectedDeliveryDate.Time
	}
	if cardBalanceTimestamp.Valid {
		cycle.CardBalanceTimestamp = &cardBalanceTimestamp.Time
	}
	if len(childrenDOB) > 0 {
		if err := json.Unmarshal(childrenDOB, &cycle.ChildrenDatesOfBirth); err != nil {
			return nil, fmt.Errorf("failed to unmarshal children dates of birth: %w", err)
		}
	}
	if len(entitlement) > 0 {
		cycle.Entitlement = &domain.CycleEntitlement{}
		if err := json.Unmarshal(entitlement, cycle.Entitlement); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entitlement snapshot: %w", err)
		}
	}
	return cycle, nil
}
