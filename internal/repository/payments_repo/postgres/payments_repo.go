package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"claims/internal/domain"
)

type PaymentRepository struct{}

func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

const paymentColumns = `
	id, claim_id, payment_cycle_id, card_account_id, amount_in_pence,
	status, request_reference, provider_reference, failure_detail, created_at
`

func (r *PaymentRepository) CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := querier.ExecContext(ctx, query,
		payment.ID,
		payment.ClaimID,
		payment.PaymentCycleID,
		payment.CardAccountID,
		payment.AmountInPence,
		payment.Status,
		payment.RequestReference,
		payment.ProviderReference,
		payment.FailureDetail,
		payment.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("payment %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get payment %s: %w", id, err)
	}
	return payment, nil
}

func (r *PaymentRepository) GetByRequestReference(ctx context.Context, querier domain.Querier, reference string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE request_reference = $1 AND status = $2`
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, reference, domain.PaymentStatusSuccess))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get payment by reference %s: %w", reference, err)
	}
	return payment, nil
}

func (r *PaymentRepository) ListForCycle(ctx context.Context, querier domain.Querier, paymentCycleID string) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE payment_cycle_id = $1
		ORDER BY created_at ASC
	`
	rows, err := querier.QueryContext(ctx, query, paymentCycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for cycle %s: %w", paymentCycleID, err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	payment := &domain.Payment{}
	err := row.Scan(
		&payment.ID,
		&payment.ClaimID,
		&payment.PaymentCycleID,
		&payment.CardAccountID,
		&payment.AmountInPence,
		&payment.Status,
		&payment.RequestReference,
		&payment.ProviderReference,
		&payment.FailureDetail,
		&payment.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return payment, nil
}
