package eligibility

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claims/internal/client/verifier"
	"claims/internal/config"
	"claims/internal/domain"
	"claims/internal/entitlement"
)

// DecisionReason records why an ineligible decision was derived, so the
// lifecycle state machine can tell "benefit lost" apart from "children aged
// out".
type DecisionReason string

const (
	ReasonConfirmed          DecisionReason = "CONFIRMED"
	ReasonIdentityNotMatched DecisionReason = "IDENTITY_NOT_MATCHED"
	ReasonNotConfirmed       DecisionReason = "NOT_CONFIRMED_BY_VERIFIER"
	ReasonDuplicateClaim     DecisionReason = "DUPLICATE_CLAIM"
	ReasonZeroEntitlement    DecisionReason = "NO_CHILDREN_OR_PREGNANCY"
	ReasonVerifierError      DecisionReason = "VERIFIER_ERROR"
)

// Decision is the outcome of evaluating a claimant against the external
// verifier and the entitlement calculation.
type Decision struct {
	EligibilityStatus       domain.EligibilityStatus
	Reason                  DecisionReason
	QualifyingBenefit       string
	ChildrenDatesOfBirth    []time.Time
	DwpHouseholdIdentifier  string
	HmrcHouseholdIdentifier string
	Entitlement             *domain.CycleEntitlement
}

func (d *Decision) IsEligible() bool {
	return d.EligibilityStatus == domain.EligibilityStatusEligible
}

type Verifier interface {
	Verify(ctx context.Context, req verifier.Request) (*verifier.Response, error)
}

// DuplicateChecker is the slice of the claim repository the duplicate-claim
// check needs.
type DuplicateChecker interface {
	LiveClaimExistsForNino(ctx context.Context, querier domain.Querier, nino string) (bool, error)
	LiveClaimExistsForHousehold(ctx context.Context, querier domain.Querier, dwpHouseholdID, hmrcHouseholdID string) (bool, error)
}

type Service struct {
	verifier    Verifier
	claims      DuplicateChecker
	calculator  *entitlement.Calculator
	errorPolicy config.VerifierErrorPolicy
	logger      *zap.Logger
}

func NewService(v Verifier, claims DuplicateChecker, calculator *entitlement.Calculator, errorPolicy config.VerifierErrorPolicy, logger *zap.Logger) *Service {
	return &Service{
		verifier:    v,
		claims:      claims,
		calculator:  calculator,
		errorPolicy: errorPolicy,
		logger:      logger,
	}
}

// EvaluateNewClaimant runs the full decision for a claim that does not exist
// yet: verifier call, duplicate-claim detection, entitlement computation.
// An "eligible" verdict for a claimant who already has a live claim is
// short-circuited to DUPLICATE before any entitlement is computed.
func (s *Service) EvaluateNewClaimant(ctx context.Context, querier domain.Querier, claimant domain.Claimant, asOf time.Time) (*Decision, error) {
	resp, err := s.callVerifier(ctx, claimant)
	if err != nil {
		return nil, err
	}

	decision, done := s.deriveBaseDecision(resp)
	if done {
		return decision, nil
	}

	duplicate, err := s.claims.LiveClaimExistsForNino(ctx, querier, claimant.Nino)
	if err != nil {
		return nil, fmt.Errorf("failed duplicate check for nino: %w", err)
	}
	if !duplicate && (resp.DwpHouseholdIdentifier != "" || resp.HmrcHouseholdIdentifier != "") {
		duplicate, err = s.claims.LiveClaimExistsForHousehold(ctx, querier, resp.DwpHouseholdIdentifier, resp.HmrcHouseholdIdentifier)
		if err != nil {
			return nil, fmt.Errorf("failed duplicate check for household: %w", err)
		}
	}
	if duplicate {
		s.logger.Info("Duplicate live claim detected, short-circuiting eligible verdict",
			zap.String("dwp_household", resp.DwpHouseholdIdentifier))
		decision.EligibilityStatus = domain.EligibilityStatusDuplicate
		decision.Reason = ReasonDuplicateClaim
		return decision, nil
	}

	ent := s.calculator.CalculateNewCycle(claimant.ExpectedDeliveryDate, resp.ChildrenDatesOfBirth, asOf)
	return s.finishDecision(decision, ent), nil
}

// EvaluateExistingClaim re-evaluates a claim at cycle renewal. The duplicate
// check is skipped: the claim under evaluation is the live claim. Entitlement
// is computed per week, with backdating against the previous cycle.
func (s *Service) EvaluateExistingClaim(ctx context.Context, claim *domain.Claim, cycleStart time.Time, previous domain.CycleEntitlement) (*Decision, error) {
	resp, err := s.callVerifier(ctx, claim.Claimant)
	if err != nil {
		return nil, err
	}

	decision, done := s.deriveBaseDecision(resp)
	if done {
		return decision, nil
	}

	ent := s.calculator.CalculateRenewedCycle(claim.Claimant.ExpectedDeliveryDate, resp.ChildrenDatesOfBirth, cycleStart, previous)
	return s.finishDecision(decision, ent), nil
}

func (s *Service) callVerifier(ctx context.Context, claimant domain.Claimant) (*verifier.Response, error) {
	return s.verifier.Verify(ctx, verifier.Request{
		FirstName:            claimant.FirstName,
		LastName:             claimant.LastName,
		Nino:                 claimant.Nino,
		DateOfBirth:          claimant.DateOfBirth,
		Address:              claimant.Address,
		ExpectedDeliveryDate: claimant.ExpectedDeliveryDate,
	})
}

// deriveBaseDecision maps the verifier outcome onto a decision. The second
// return value is true when the decision is final and entitlement computation
// must not run.
func (s *Service) deriveBaseDecision(resp *verifier.Response) (*Decision, bool) {
	decision := &Decision{
		QualifyingBenefit:       resp.QualifyingBenefit,
		ChildrenDatesOfBirth:    resp.ChildrenDatesOfBirth,
		DwpHouseholdIdentifier:  resp.DwpHouseholdIdentifier,
		HmrcHouseholdIdentifier: resp.HmrcHouseholdIdentifier,
	}

	if resp.IdentityOutcome != verifier.IdentityMatched {
		decision.EligibilityStatus = domain.EligibilityStatusNoMatch
		decision.Reason = ReasonIdentityNotMatched
		return decision, true
	}

	switch resp.EligibilityOutcome {
	case verifier.EligibilityConfirmed:
		decision.EligibilityStatus = domain.EligibilityStatusEligible
		decision.Reason = ReasonConfirmed
		return decision, false
	case verifier.EligibilityNotConfirmed:
		decision.EligibilityStatus = domain.EligibilityStatusIneligible
		decision.Reason = ReasonNotConfirmed
		return decision, true
	default:
		// Error outcomes are derived like business-ineligible verdicts under
		// the default policy; the park policy hands the claim back for manual
		// reprocessing instead.
		s.logger.Warn("Verifier returned error outcome",
			zap.String("outcome", string(resp.EligibilityOutcome)),
			zap.String("policy", string(s.errorPolicy)))
		if s.errorPolicy == config.VerifierErrorPark {
			decision.EligibilityStatus = domain.EligibilityStatusError
		} else {
			decision.EligibilityStatus = domain.EligibilityStatusIneligible
		}
		decision.Reason = ReasonVerifierError
		return decision, true
	}
}

// finishDecision attaches the computed entitlement, downgrading an eligible
// verdict with zero entitlement to INELIGIBLE.
func (s *Service) finishDecision(decision *Decision, ent domain.CycleEntitlement) *Decision {
	decision.Entitlement = &ent
	if decision.IsEligible() && ent.TotalVoucherCount() == 0 {
		decision.EligibilityStatus = domain.EligibilityStatusIneligible
		decision.Reason = ReasonZeroEntitlement
	}
	return decision
}
