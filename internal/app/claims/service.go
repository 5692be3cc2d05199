package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claims/internal/app/eligibility"
	"claims/internal/domain"
	"claims/internal/entitlement"
	"claims/internal/messaging"
	"claims/internal/util"
)

type ClaimRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, claim *domain.Claim) error
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Claim, error)
	Update(ctx context.Context, querier domain.Querier, claim *domain.Claim) error
	WithCardStatusOlderThan(ctx context.Context, querier domain.Querier, status domain.CardStatus, before time.Time) ([]domain.Claim, error)
}

type CycleRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, cycle *domain.PaymentCycle) error
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.PaymentCycle, error)
	UpdateWithVersion(ctx context.Context, querier domain.Querier, cycle *domain.PaymentCycle) error
	CyclesEndingBefore(ctx context.Context, querier domain.Querier, cutoff time.Time) ([]domain.PaymentCycle, error)
	LatestForClaim(ctx context.Context, querier domain.Querier, claimID string) (*domain.PaymentCycle, error)
}

type Evaluator interface {
	EvaluateNewClaimant(ctx context.Context, querier domain.Querier, claimant domain.Claimant, asOf time.Time) (*eligibility.Decision, error)
	EvaluateExistingClaim(ctx context.Context, claim *domain.Claim, cycleStart time.Time, previous domain.CycleEntitlement) (*eligibility.Decision, error)
}

type Config struct {
	CycleLength                    time.Duration
	PregnancyGracePeriod           time.Duration
	CardCancellationGracePeriod    time.Duration
	CardCancellationSettleDelay    time.Duration
	NewCardEmailTemplate           string
	CardCancellationLetterTemplate string
}

// Service drives claims through their lifecycle: creation, activation with a
// new card, cycle renewal, entitlement re-determination and card
// cancellation. The persistent store is the sole source of truth; every
// operation re-reads entities by id rather than trusting caller snapshots.
type Service struct {
	db         *sql.DB
	claimRepo  ClaimRepository
	cycleRepo  CycleRepository
	evaluator  Evaluator
	calculator *entitlement.Calculator
	queue      *messaging.Queue
	sm         *StateMachine
	cfg        Config
	logger     *zap.Logger
}

func NewService(
	db *sql.DB,
	claimRepo ClaimRepository,
	cycleRepo CycleRepository,
	evaluator Evaluator,
	calculator *entitlement.Calculator,
	queue *messaging.Queue,
	sm *StateMachine,
	cfg Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:         db,
		claimRepo:  claimRepo,
		cycleRepo:  cycleRepo,
		evaluator:  evaluator,
		calculator: calculator,
		queue:      queue,
		sm:         sm,
		cfg:        cfg,
		logger:     logger,
	}
}

// CreateClaim evaluates a new claimant and persists the resulting claim. An
// eligible decision leaves the claim in NEW and enqueues card provisioning;
// every other decision is terminal at creation. Failures are recorded on an
// ERROR-status claim and re-raised to the caller.
func (s *Service) CreateClaim(ctx context.Context, claimant domain.Claimant) (*domain.Claim, *eligibility.Decision, error) {
	decision, err := s.evaluator.EvaluateNewClaimant(ctx, s.db, claimant, time.Now())
	if err != nil {
		s.recordFailedClaim(ctx, claimant, err)
		return nil, nil, fmt.Errorf("failed to evaluate new claimant: %w", err)
	}

	claim := s.buildClaim(claimant, decision)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction for claim creation: %w", err)
	}
	defer tx.Rollback()

	if err := s.claimRepo.CreateTx(ctx, tx, claim); err != nil {
		return nil, nil, fmt.Errorf("failed to persist claim: %w", err)
	}

	s.queue.EnqueueBestEffort(ctx, tx, domain.MessageTypeReportClaim, domain.ReportClaimPayload{
		ClaimID: claim.ID,
		Action:  fmt.Sprintf("CLAIM_%s", claim.ClaimStatus),
	})
	if decision.IsEligible() {
		if err := s.queue.Enqueue(ctx, tx, domain.MessageTypeCreateNewCard, domain.CreateNewCardPayload{ClaimID: claim.ID}); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit claim creation: %w", err)
	}

	s.logger.Info("Claim created",
		zap.String("claim_id", claim.ID),
		zap.String("claim_status", string(claim.ClaimStatus)),
		zap.String("eligibility_status", string(claim.EligibilityStatus)))
	return claim, decision, nil
}

func (s *Service) buildClaim(claimant domain.Claimant, decision *eligibility.Decision) *domain.Claim {
	now := time.Now()

	// The verifier's view of the household's children is authoritative from
	// here on.
	if len(decision.ChildrenDatesOfBirth) > 0 {
		claimant.ChildrenDatesOfBirth = decision.ChildrenDatesOfBirth
	}

	var status domain.ClaimStatus
	switch decision.EligibilityStatus {
	case domain.EligibilityStatusEligible:
		status = domain.ClaimStatusNew
	case domain.EligibilityStatusError:
		status = domain.ClaimStatusError
	default:
		status = domain.ClaimStatusRejected
	}

	return &domain.Claim{
		ID:                         util.NewID(),
		Claimant:                   claimant,
		ClaimStatus:                status,
		ClaimStatusTimestamp:       now,
		EligibilityStatus:          decision.EligibilityStatus,
		EligibilityStatusTimestamp: now,
		DwpHouseholdIdentifier:     decision.DwpHouseholdIdentifier,
		HmrcHouseholdIdentifier:    decision.HmrcHouseholdIdentifier,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
}

// recordFailedClaim persists an ERROR claim carrying the failure detail so a
// failed creation is visible in the store, not just in logs.
func (s *Service) recordFailedClaim(ctx context.Context, claimant domain.Claimant, cause error) {
	now := time.Now()
	claim := &domain.Claim{
		ID:                         util.NewID(),
		Claimant:                   claimant,
		ClaimStatus:                domain.ClaimStatusError,
		ClaimStatusTimestamp:       now,
		EligibilityStatus:          domain.EligibilityStatusError,
		EligibilityStatusTimestamp: now,
		EligibilityOverride:        cause.Error(),
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	if err := s.claimRepo.CreateTx(ctx, s.db, claim); err != nil {
		s.logger.Error("Failed to record ERROR claim after creation failure",
			zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	s.logger.Error("Claim creation failed, recorded ERROR claim",
		zap.String("claim_id", claim.ID), zap.Error(cause))
}

// ActivateClaimWithCard stores the new card account, activates the claim and
// its card, creates the first payment cycle and enqueues the first payment.
// Re-running for an already active claim is a no-op so card-creation retries
// stay safe.
func (s *Service) ActivateClaimWithCard(ctx context.Context, claimID, cardAccountID string) error {
	claim, err := s.claimRepo.GetByID(ctx, s.db, claimID)
	if err != nil {
		return err
	}
	if claim.ClaimStatus == domain.ClaimStatusActive && claim.CardAccountID != "" {
		s.logger.Info("Claim already active with a card, skipping activation",
			zap.String("claim_id", claimID))
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for claim activation: %w", err)
	}
	defer tx.Rollback()

	claim.CardAccountID = cardAccountID
	claim.CardStatus = domain.CardStatusActive
	claim.CardStatusTimestamp = time.Now()
	if err := s.sm.TransitionClaim(ctx, tx, claim, domain.ClaimStatusActive); err != nil {
		return err
	}
	if err := s.claimRepo.Update(ctx, tx, claim); err != nil {
		return err
	}

	cycle, err := s.createFirstCycle(ctx, tx, claim)
	if err != nil {
		return err
	}

	if err := s.queue.Enqueue(ctx, tx, domain.MessageTypeMakePayment, domain.MakePaymentPayload{
		ClaimID:        claim.ID,
		PaymentCycleID: cycle.ID,
		CardAccountID:  cardAccountID,
	}); err != nil {
		return err
	}
	s.queue.EnqueueBestEffort(ctx, tx, domain.MessageTypeSendEmail, domain.NotificationPayload{
		ClaimID:    claim.ID,
		TemplateID: s.cfg.NewCardEmailTemplate,
		Personalisation: map[string]string{
			"first_name": claim.Claimant.FirstName,
		},
	})

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit claim activation: %w", err)
	}
	return nil
}

func (s *Service) createFirstCycle(ctx context.Context, querier domain.Querier, claim *domain.Claim) (*domain.PaymentCycle, error) {
	now := time.Now()
	ent := s.calculator.CalculateNewCycle(claim.Claimant.ExpectedDeliveryDate, claim.Claimant.ChildrenDatesOfBirth, now)

	cycle := &domain.PaymentCycle{
		ID:                            util.NewID(),
		ClaimID:                       claim.ID,
		StartDate:                     now,
		EndDate:                       now.Add(s.cfg.CycleLength),
		EligibilityStatus:             domain.EligibilityStatusEligible,
		ExpectedDeliveryDate:          claim.Claimant.ExpectedDeliveryDate,
		ChildrenDatesOfBirth:          claim.Claimant.ChildrenDatesOfBirth,
		Entitlement:                   &ent,
		TotalEntitlementAmountInPence: ent.TotalVoucherValueInPence(),
		PaymentStatus:                 domain.PaymentCycleStatusReadyForPayment,
		CreatedAt:                     now,
		UpdatedAt:                     now,
	}
	if err := s.cycleRepo.CreateTx(ctx, querier, cycle); err != nil {
		return nil, err
	}
	return cycle, nil
}

// CreateDueCycles is the payment-cycle scheduler job: every ACTIVE or
// PENDING_EXPIRY claim whose cycle has ended gets a successor cycle and a
// DETERMINE_ENTITLEMENT message. PENDING_EXPIRY claims must keep renewing or
// they could never recover nor expire. Failures are isolated per claim.
func (s *Service) CreateDueCycles(ctx context.Context) error {
	due, err := s.cycleRepo.CyclesEndingBefore(ctx, s.db, time.Now())
	if err != nil {
		return fmt.Errorf("failed to find due payment cycles: %w", err)
	}

	for _, prev := range due {
		if err := s.renewCycle(ctx, prev); err != nil {
			s.logger.Error("Failed to renew payment cycle",
				zap.String("claim_id", prev.ClaimID),
				zap.String("previous_cycle_id", prev.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Service) renewCycle(ctx context.Context, prev domain.PaymentCycle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for cycle renewal: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	next := &domain.PaymentCycle{
		ID:            util.NewID(),
		ClaimID:       prev.ClaimID,
		StartDate:     prev.EndDate,
		EndDate:       prev.EndDate.Add(s.cfg.CycleLength),
		PaymentStatus: domain.PaymentCycleStatusNew,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.cycleRepo.CreateTx(ctx, tx, next); err != nil {
		return err
	}

	if err := s.queue.Enqueue(ctx, tx, domain.MessageTypeDetermineEntitlement, domain.DetermineEntitlementPayload{
		ClaimID:                prev.ClaimID,
		CurrentPaymentCycleID:  next.ID,
		PreviousPaymentCycleID: prev.ID,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle renewal: %w", err)
	}
	s.logger.Info("Payment cycle renewed",
		zap.String("claim_id", prev.ClaimID),
		zap.String("cycle_id", next.ID))
	return nil
}

// DetermineEntitlement re-evaluates an existing claim for its renewed cycle:
// fresh verifier verdict, per-week entitlement with backdating, then the
// lifecycle rules of the state machine.
func (s *Service) DetermineEntitlement(ctx context.Context, claimID, currentCycleID, previousCycleID string) error {
	claim, err := s.claimRepo.GetByID(ctx, s.db, claimID)
	if err != nil {
		return err
	}
	if !claim.ClaimStatus.IsLive() {
		s.logger.Info("Skipping entitlement determination for non-live claim",
			zap.String("claim_id", claimID),
			zap.String("claim_status", string(claim.ClaimStatus)))
		return nil
	}

	current, err := s.cycleRepo.GetByID(ctx, s.db, currentCycleID)
	if err != nil {
		return err
	}
	previous, err := s.cycleRepo.GetByID(ctx, s.db, previousCycleID)
	if err != nil {
		return err
	}
	var previousEntitlement domain.CycleEntitlement
	if previous.Entitlement != nil {
		previousEntitlement = *previous.Entitlement
	}

	decision, err := s.evaluator.EvaluateExistingClaim(ctx, claim, current.StartDate, previousEntitlement)
	if err != nil {
		return err
	}
	if decision.EligibilityStatus == domain.EligibilityStatusError {
		// Park policy: hand this message to a human instead of deriving a
		// status from an error outcome.
		return domain.NewValidationError("verifier", "error outcome requires manual reprocessing")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for entitlement determination: %w", err)
	}
	defer tx.Rollback()

	if err := s.applyDecision(ctx, tx, claim, current, previous, decision); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entitlement determination: %w", err)
	}
	return nil
}

func (s *Service) applyDecision(ctx context.Context, querier domain.Querier, claim *domain.Claim, current, previous *domain.PaymentCycle, decision *eligibility.Decision) error {
	now := time.Now()
	claim.EligibilityStatus = decision.EligibilityStatus
	claim.EligibilityStatusTimestamp = now
	if len(decision.ChildrenDatesOfBirth) > 0 {
		claim.Claimant.ChildrenDatesOfBirth = decision.ChildrenDatesOfBirth
	}

	if decision.IsEligible() {
		return s.applyEligibleDecision(ctx, querier, claim, current, previous, decision)
	}
	return s.applyIneligibleDecision(ctx, querier, claim, current, previous, decision)
}

func (s *Service) applyEligibleDecision(ctx context.Context, querier domain.Querier, claim *domain.Claim, current, previous *domain.PaymentCycle, decision *eligibility.Decision) error {
	if claim.ClaimStatus == domain.ClaimStatusPendingExpiry {
		if err := s.sm.TransitionClaim(ctx, querier, claim, domain.ClaimStatusActive); err != nil {
			return err
		}
	}
	if err := s.claimRepo.Update(ctx, querier, claim); err != nil {
		return err
	}

	// A cycle the payments service already settled keeps its payment status:
	// re-running the determination must not trigger a second full payment.
	alreadyPaid := current.PaymentStatus == domain.PaymentCycleStatusFullPaymentMade ||
		current.PaymentStatus == domain.PaymentCycleStatusPartialPaymentMade

	update := func(cycle *domain.PaymentCycle) {
		cycle.EligibilityStatus = domain.EligibilityStatusEligible
		cycle.ExpectedDeliveryDate = claim.Claimant.ExpectedDeliveryDate
		cycle.ChildrenDatesOfBirth = claim.Claimant.ChildrenDatesOfBirth
		cycle.Entitlement = decision.Entitlement
		cycle.TotalEntitlementAmountInPence = decision.Entitlement.TotalVoucherValueInPence()
		if !alreadyPaid {
			cycle.PaymentStatus = domain.PaymentCycleStatusReadyForPayment
		}
	}
	if err := s.updateCycleWithRetry(ctx, querier, current, update); err != nil {
		return err
	}

	if !alreadyPaid {
		// The upcoming payment covers the whole entitlement, pregnancy weeks
		// included, and backdated vouchers cover earlier cycles; no top-up.
		return s.queue.Enqueue(ctx, querier, domain.MessageTypeMakePayment, domain.MakePaymentPayload{
			ClaimID:        claim.ID,
			PaymentCycleID: current.ID,
			CardAccountID:  claim.CardAccountID,
		})
	}

	// The cycle was paid before the pregnancy was reported, so that payment
	// missed the pregnancy weeks; a one-off top-up settles the difference.
	if newlyPregnant(previous, decision.Entitlement) {
		return s.queue.Enqueue(ctx, querier, domain.MessageTypeAdditionalPregnancyPayment, domain.AdditionalPregnancyPaymentPayload{
			ClaimID:        claim.ID,
			PaymentCycleID: current.ID,
		})
	}
	return nil
}

func (s *Service) applyIneligibleDecision(ctx context.Context, querier domain.Querier, claim *domain.Claim, current, previous *domain.PaymentCycle, decision *eligibility.Decision) error {
	now := time.Now()

	// Children aged out and no active pregnancy in the previous cycle means
	// the claim has naturally run its course: EXPIRED. A verifier-reported
	// loss of the qualifying benefit instead moves to PENDING_EXPIRY, which
	// can recover on the next re-evaluation; a PENDING_EXPIRY claim that
	// fails a second evaluation expires.
	expire := claim.ClaimStatus == domain.ClaimStatusPendingExpiry ||
		(decision.Reason == eligibility.ReasonZeroEntitlement &&
			!previous.HasChildrenOrPregnancy(s.cfg.PregnancyGracePeriod, now))

	if expire {
		if err := s.sm.TransitionClaim(ctx, querier, claim, domain.ClaimStatusExpired); err != nil {
			return err
		}
		if claim.CardStatus == domain.CardStatusActive {
			if err := s.sm.TransitionCard(ctx, querier, claim, domain.CardStatusPendingCancellation); err != nil {
				return err
			}
		}
	} else if claim.ClaimStatus == domain.ClaimStatusActive {
		if err := s.sm.TransitionClaim(ctx, querier, claim, domain.ClaimStatusPendingExpiry); err != nil {
			return err
		}
	}

	if err := s.claimRepo.Update(ctx, querier, claim); err != nil {
		return err
	}

	update := func(cycle *domain.PaymentCycle) {
		cycle.EligibilityStatus = decision.EligibilityStatus
		cycle.ExpectedDeliveryDate = claim.Claimant.ExpectedDeliveryDate
		cycle.ChildrenDatesOfBirth = claim.Claimant.ChildrenDatesOfBirth
		cycle.Entitlement = decision.Entitlement
		cycle.TotalEntitlementAmountInPence = 0
		cycle.PaymentStatus = domain.PaymentCycleStatusIneligible
	}
	return s.updateCycleWithRetry(ctx, querier, current, update)
}

// newlyPregnant reports a pregnancy that the previous cycle's snapshot did
// not cover; it triggers the one-off additional pregnancy payment.
func newlyPregnant(previous *domain.PaymentCycle, current *domain.CycleEntitlement) bool {
	if current == nil {
		return false
	}
	currentPregnancy := 0
	for _, w := range current.WeeklyEntitlements {
		currentPregnancy += w.PregnancyVouchers
	}
	if currentPregnancy == 0 {
		return false
	}
	if previous.Entitlement == nil {
		return true
	}
	for _, w := range previous.Entitlement.WeeklyEntitlements {
		if w.PregnancyVouchers > 0 {
			return false
		}
	}
	return true
}

const maxCycleUpdateRetries = 3

// updateCycleWithRetry applies mutate under optimistic concurrency: a losing
// writer reloads the cycle and retries, bounded.
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

// HandleCardCancellations is the card-cancellation scheduler job. Cards
// pending cancellation past the grace period are scheduled (with a letter to
// the claimant); scheduled cards past the settle delay are cancelled.
func (s *Service) HandleCardCancellations(ctx context.Context) error {
	now := time.Now()

	pending, err := s.claimRepo.WithCardStatusOlderThan(ctx, s.db, domain.CardStatusPendingCancellation, now.Add(-s.cfg.CardCancellationGracePeriod))
	if err != nil {
		return fmt.Errorf("failed to find cards pending cancellation: %w", err)
	}
	for i := range pending {
		claim := &pending[i]
		if err := s.scheduleCardCancellation(ctx, claim); err != nil {
			s.logger.Error("Failed to schedule card cancellation",
				zap.String("claim_id", claim.ID), zap.Error(err))
		}
	}

	scheduled, err := s.claimRepo.WithCardStatusOlderThan(ctx, s.db, domain.CardStatusScheduledForCancellation, now.Add(-s.cfg.CardCancellationSettleDelay))
	if err != nil {
		return fmt.Errorf("failed to find cards scheduled for cancellation: %w", err)
	}
	for i := range scheduled {
		claim := &scheduled[i]
		if err := s.cancelCard(ctx, claim); err != nil {
			s.logger.Error("Failed to cancel card",
				zap.String("claim_id", claim.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) scheduleCardCancellation(ctx context.Context, claim *domain.Claim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for card cancellation scheduling: %w", err)
	}
	defer tx.Rollback()

	if err := s.sm.TransitionCard(ctx, tx, claim, domain.CardStatusScheduledForCancellation); err != nil {
		return err
	}
	if err := s.claimRepo.Update(ctx, tx, claim); err != nil {
		return err
	}
	s.queue.EnqueueBestEffort(ctx, tx, domain.MessageTypeSendLetter, domain.NotificationPayload{
		ClaimID:    claim.ID,
		TemplateID: s.cfg.CardCancellationLetterTemplate,
		Personalisation: map[string]string{
			"first_name": claim.Claimant.FirstName,
		},
	})
	return tx.Commit()
}

func (s *Service) cancelCard(ctx context.Context, claim *domain.Claim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for card cancellation: %w", err)
	}
	defer tx.Rollback()

	if err := s.sm.TransitionCard(ctx, tx, claim, domain.CardStatusCancelled); err != nil {
		return err
	}
	if err := s.claimRepo.Update(ctx, tx, claim); err != nil {
		return err
	}
	return tx.Commit()
}
