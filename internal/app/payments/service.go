package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claims/internal/domain"
	"claims/internal/messaging"
	"claims/internal/payment"
	"claims/internal/util"
)

type ClaimRepository interface {
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Claim, error)
}

type CycleRepository interface {
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.PaymentCycle, error)
	UpdateWithVersion(ctx context.Context, querier domain.Querier, cycle *domain.PaymentCycle) error
}

type PaymentRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error
	GetByRequestReference(ctx context.Context, querier domain.Querier, reference string) (*domain.Payment, error)
}

// CardProvider is the slice of the card/payment provider the service needs.
type CardProvider interface {
	GetBalance(ctx context.Context, cardAccountID string) (int, error)
	DepositFunds(ctx context.Context, cardAccountID string, amountInPence int, reference string) (string, error)
}

// Service makes payments onto claimants' cards. Every deposit carries a
// request reference that is stable across retries of the same message, and a
// successful deposit is recorded before anything else can enqueue a second
// attempt, so a payment can never be made twice for one logical attempt.
type Service struct {
	db          *sql.DB
	claimRepo   ClaimRepository
	cycleRepo   CycleRepository
	paymentRepo PaymentRepository
	provider    CardProvider
	calculator  *payment.Calculator
	queue       *messaging.Queue
	emailTmpl   string
	logger      *zap.Logger
}

func NewService(
	db *sql.DB,
	claimRepo ClaimRepository,
	cycleRepo CycleRepository,
	paymentRepo PaymentRepository,
	provider CardProvider,
	calculator *payment.Calculator,
	queue *messaging.Queue,
	emailTmpl string,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:          db,
		claimRepo:   claimRepo,
		cycleRepo:   cycleRepo,
		paymentRepo: paymentRepo,
		provider:    provider,
		calculator:  calculator,
		queue:       queue,
		emailTmpl:   emailTmpl,
		logger:      logger,
	}
}

// MakePayment pays the cycle's calculated amount onto the card.
// requestReference is the triggering message's id: retrying the message
// re-uses the reference, which the provider resolves to the original deposit.
func (s *Service) MakePayment(ctx context.Context, claimID, cycleID, cardAccountID, requestReference string) error {
	claim, err := s.claimRepo.GetByID(ctx, s.db, claimID)
	if err != nil {
		return err
	}
	cycle, err := s.cycleRepo.GetByID(ctx, s.db, cycleID)
	if err != nil {
		return err
	}

	switch cycle.PaymentStatus {
	case domain.PaymentCycleStatusFullPaymentMade,
		domain.PaymentCycleStatusPartialPaymentMade,
		domain.PaymentCycleStatusBalanceTooHigh:
		s.logger.Info("Payment cycle already settled, skipping",
			zap.String("cycle_id", cycleID),
			zap.String("payment_status", string(cycle.PaymentStatus)))
		return nil
	case domain.PaymentCycleStatusIneligible:
		s.logger.Info("Payment cycle is ineligible, skipping payment",
			zap.String("cycle_id", cycleID))
		return nil
	}

	if existing, err := s.paymentRepo.GetByRequestReference(ctx, s.db, requestReference); err == nil {
		s.logger.Info("Payment already recorded for this reference, skipping deposit",
			zap.String("payment_id", existing.ID),
			zap.String("request_reference", requestReference))
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	balance, err := s.provider.GetBalance(ctx, cardAccountID)
	if err != nil {
		return err
	}

	result := s.calculator.Calculate(cycle.TotalEntitlementAmountInPence, balance)
	if result.BalanceTooHigh {
		return s.settleBalanceTooHigh(ctx, claim, cycle, balance)
	}

	return s.deposit(ctx, claim, cycle, cardAccountID, requestReference, balance, result.AmountInPence)
}

// settleBalanceTooHigh completes the cycle without a deposit. This is an
// expected outcome: the card already holds the maximum allowed balance, so a
// "balance too high" report is raised instead of a payment.
func (s *Service) settleBalanceTooHigh(ctx context.Context, claim *domain.Claim, cycle *domain.PaymentCycle, balance int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for balance-too-high settlement: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if err := s.updateCycleWithRetry(ctx, tx, cycle, func(c *domain.PaymentCycle) {
		c.CardBalanceInPence = balance
		c.CardBalanceTimestamp = &now
		c.PaymentStatus = domain.PaymentCycleStatusBalanceTooHigh
	}); err != nil {
		return err
	}

	s.logger.Info("Card balance too high for payment",
		zap.String("claim_id", claim.ID),
		zap.String("cycle_id", cycle.ID),
		zap.Int("balance_in_pence", balance),
		zap.Int("entitlement_in_pence", cycle.TotalEntitlementAmountInPence))
	s.queue.EnqueueBestEffort(ctx, tx, domain.MessageTypeReportPayment, domain.ReportPaymentPayload{
		ClaimID:        claim.ID,
		PaymentCycleID: cycle.ID,
		Action:         "BALANCE_TOO_HIGH",
	})

	return tx.Commit()
}

func (s *Service) deposit(ctx context.Context, claim *domain.Claim, cycle *domain.PaymentCycle, cardAccountID, requestReference string, balance, amount int) error {
	providerRef, err := s.provider.DepositFunds(ctx, cardAccountID, amount, requestReference)
	if err != nil {
		s.recordFailedPayment(ctx, claim, cycle, cardAccountID, requestReference, amount, err)
		return err
	}

	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return fmt.Errorf("failed to begin transaction for payment record: %w", txErr)
	}
	defer tx.Rollback()

	now := time.Now()
	pmt := &domain.Payment{
		ID:                util.NewID(),
		ClaimID:           claim.ID,
		PaymentCycleID:    cycle.ID,
		CardAccountID:     cardAccountID,
		AmountInPence:     amount,
		Status:            domain.PaymentStatusSuccess,
		RequestReference:  requestReference,
		ProviderReference: providerRef,
		Timestamp:         now,
	}
	if err := s.paymentRepo.CreateTx(ctx, tx, pmt); err != nil {
		return err
	}

	status := domain.PaymentCycleStatusFullPaymentMade
	if amount < cycle.TotalEntitlementAmountInPence {
		status = domain.PaymentCycleStatusPartialPaymentMade
	}
	if err := s.updateCycleWithRetry(ctx, tx, cycle, func(c *domain.PaymentCycle) {
		c.CardBalanceInPence = balance
		c.CardBalanceTimestamp = &now
		c.PaymentStatus = status
	}); err != nil {
		return err
	}

	s.queue.EnqueueBestEffort(ctx, tx, domain.MessageTypeReportPayment, domain.ReportPaymentPayload{
		ClaimID:        claim.ID,
		PaymentCycleID: cycle.ID,
		PaymentID:      pmt.ID,
		Action:         "PAYMENT_MADE",
	})
	s.queue.EnqueueBestEffort(ctx, tx, domain.MessageTypeSendEmail, domain.NotificationPayload{
		ClaimID:    claim.ID,
		TemplateID: s.emailTmpl,
		Personalisation: map[string]string{
			"first_name":     claim.Claimant.FirstName,
			"payment_amount": fmt.Sprintf("%d", amount),
		},
	})

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment record: %w", err)
	}

	s.logger.Info("Payment made",
		zap.String("claim_id", claim.ID),
		zap.String("cycle_id", cycle.ID),
		zap.String("payment_id", pmt.ID),
		zap.Int("amount_in_pence", amount))
	return nil
}

// MakeAdditionalPregnancyPayment tops up a cycle that was already paid before
// the pregnancy was reported: the settled payment used the pre-pregnancy
// entitlement, so the pregnancy weeks' value is deposited separately.
func (s *Service) MakeAdditionalPregnancyPayment(ctx context.Context, claimID, cycleID, requestReference string) error {
	claim, err := s.claimRepo.GetByID(ctx, s.db, claimID)
	if err != nil {
		return err
	}
	cycle, err := s.cycleRepo.GetByID(ctx, s.db, cycleID)
	if err != nil {
		return err
	}
	if cycle.Entitlement == nil {
		return domain.NewValidationError("payment_cycle", "cycle has no entitlement snapshot for pregnancy top-up")
	}

	amount := 0
	for _, w := range cycle.Entitlement.WeeklyEntitlements {
		amount += w.PregnancyVouchers * w.SingleVoucherValueInPence
	}
	if amount == 0 {
		s.logger.Info("No pregnancy vouchers in cycle, skipping top-up",
			zap.String("cycle_id", cycleID))
		return nil
	}

	if existing, err := s.paymentRepo.GetByRequestReference(ctx, s.db, requestReference); err == nil {
		s.logger.Info("Pregnancy top-up already recorded, skipping",
			zap.String("payment_id", existing.ID))
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	providerRef, err := s.provider.DepositFunds(ctx, claim.CardAccountID, amount, requestReference)
	if err != nil {
		s.recordFailedPayment(ctx, claim, cycle, claim.CardAccountID, requestReference, amount, err)
		return err
	}

	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return fmt.Errorf("failed to begin transaction for pregnancy top-up: %w", txErr)
	}
	defer tx.Rollback()

	pmt := &domain.Payment{
		ID:                util.NewID(),
		ClaimID:           claim.ID,
		PaymentCycleID:    cycle.ID,
		CardAccountID:     claim.CardAccountID,
		AmountInPence:     amount,
		Status:            domain.PaymentStatusSuccess,
		RequestReference:  requestReference,
		ProviderReference: providerRef,
		Timestamp:         time.Now(),
	}
	if err := s.paymentRepo.CreateTx(ctx, tx, pmt); err != nil {
		return err
	}
	s.queue.EnqueueBestEffort(ctx, tx, domain.MessageTypeReportPayment, domain.ReportPaymentPayload{
		ClaimID:        claim.ID,
		PaymentCycleID: cycle.ID,
		PaymentID:      pmt.ID,
		Action:         "ADDITIONAL_PREGNANCY_PAYMENT_MADE",
	})

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pregnancy top-up: %w", err)
	}
	s.logger.Info("Additional pregnancy payment made",
		zap.String("claim_id", claim.ID),
		zap.String("payment_id", pmt.ID),
		zap.Int("amount_in_pence", amount))
	return nil
}

// recordFailedPayment keeps an immutable FAILURE record for the attempt. The
// failure itself is still surfaced so the message is retried.
func (s *Service) recordFailedPayment(ctx context.Context, claim *domain.Claim, cycle *domain.PaymentCycle, cardAccountID, requestReference string, amount int, cause error) {
	pmt := &domain.Payment{
		ID:               util.NewID(),
		ClaimID:          claim.ID,
		PaymentCycleID:   cycle.ID,
		CardAccountID:    cardAccountID,
		AmountInPence:    amount,
		Status:           domain.PaymentStatusFailure,
		RequestReference: requestReference,
		FailureDetail:    cause.Error(),
		Timestamp:        time.Now(),
	}
	if err := s.paymentRepo.CreateTx(ctx, s.db, pmt); err != nil {
		s.logger.Error("Failed to record failed payment attempt",
			zap.String("claim_id", claim.ID),
			zap.String("cycle_id", cycle.ID),
			zap.Error(err),
			zap.NamedError("cause", cause))
	}
}

const maxCycleUpdateRetries = 3

func (s *Service) updateCycleWithRetry(ctx context.Context, querier domain.Querier, cycle *domain.PaymentCycle, mutate func(*domain.PaymentCycle)) error {
	for attempt := 0; attempt < maxCycleUpdateRetries; attempt++ {
		mutate(cycle)
		err := s.cycleRepo.UpdateWithVersion(ctx, querier, cycle)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		s.logger.Warn("Payment cycle version conflict, reloading",
			zap.String("cycle_id", cycle.ID),
			zap.Int("attempt", attempt+1))
		fresh, loadErr := s.cycleRepo.GetByID(ctx, querier, cycle.ID)
		if loadErr != nil {
			return loadErr
		}
		*cycle = *fresh
	}
	return fmt.Errorf("payment cycle %s: %w after %d attempts", cycle.ID, domain.ErrVersionConflict, maxCycleUpdateRetries)
}
