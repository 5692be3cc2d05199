package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"claims/internal/client/verifier"
	"claims/internal/config"
	"claims/internal/domain"
	"claims/internal/entitlement"
)

type fakeVerifier struct {
	resp *verifier.Response
	err  error
}

func (f *fakeVerifier) Verify(context.Context, verifier.Request) (*verifier.Response, error) {
	return f.resp, f.err
}

type fakeDuplicateChecker struct {
	ninoDuplicate      bool
	householdDuplicate bool
	householdChecked   bool
}

func (f *fakeDuplicateChecker) LiveClaimExistsForNino(context.Context, domain.Querier, string) (bool, error) {
	return f.ninoDuplicate, nil
}

func (f *fakeDuplicateChecker) LiveClaimExistsForHousehold(context.Context, domain.Querier, string, string) (bool, error) {
	f.householdChecked = true
	return f.householdDuplicate, nil
}

func testCalculator() *entitlement.Calculator {
	return entitlement.NewCalculator(entitlement.Config{
		SingleVoucherValueInPence: 310,
		VouchersPerChildUnderOne:  2,
		VouchersPerChildOneToFour: 1,
		VouchersPerPregnancy:      1,
		PregnancyGracePeriodWeeks: 12,
		WeeksPerCycle:             4,
	})
}

func newService(v *fakeVerifier, dup *fakeDuplicateChecker, policy config.VerifierErrorPolicy) *Service {
	return NewService(v, dup, testCalculator(), policy, zap.NewNop())
}

func confirmedResponse(children ...time.Time) *verifier.Response {
	return &verifier.Response{
		IdentityOutcome:      verifier.IdentityMatched,
		EligibilityOutcome:   verifier.EligibilityConfirmed,
		QualifyingBenefit:    "UNIVERSAL_CREDIT",
		ChildrenDatesOfBirth: children,
	}
}

func TestEvaluateNewClaimant_Eligible(t *testing.T) {
	asOf := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	child := asOf.AddDate(0, -3, 0)
	svc := newService(&fakeVerifier{resp: confirmedResponse(child)}, &fakeDuplicateChecker{}, config.VerifierErrorTreatAsIneligible)

	decision, err := svc.EvaluateNewClaimant(context.Background(), nil, domain.Claimant{Nino: "QQ123456C"}, asOf)

	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityStatusEligible, decision.EligibilityStatus)
	assert.Equal(t, ReasonConfirmed, decision.Reason)
	require.NotNil(t, decision.Entitlement)
	assert.Equal(t, 8, decision.Entitlement.TotalVoucherCount())
}

func TestEvaluateNewClaimant_IdentityNotMatched(t *testing.T) {
	svc := newService(&fakeVerifier{resp: &verifier.Response{
		IdentityOutcome:    verifier.IdentityNotMatched,
		EligibilityOutcome: verifier.EligibilityConfirmed,
	}}, &fakeDuplicateChecker{}, config.VerifierErrorTreatAsIneligible)

	decision, err := svc.EvaluateNewClaimant(context.Background(), nil, domain.Claimant{}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityStatusNoMatch, decision.EligibilityStatus)
	assert.Equal(t, ReasonIdentityNotMatched, decision.Reason)
	assert.Nil(t, decision.Entitlement, "no entitlement is computed for an unmatched identity")
}

func TestEvaluateNewClaimant_NotConfirmed(t *testing.T) {
	svc := newService(&fakeVerifier{resp: &verifier.Response{
		IdentityOutcome:    verifier.IdentityMatched,
		EligibilityOutcome: verifier.EligibilityNotConfirmed,
	}}, &fakeDuplicateChecker{}, config.VerifierErrorTreatAsIneligible)

	decision, err := svc.EvaluateNewClaimant(context.Background(), nil, domain.Claimant{}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityStatusIneligible, decision.EligibilityStatus)
	assert.Equal(t, ReasonNotConfirmed, decision.Reason)
}

func TestEvaluateNewClaimant_DuplicateByNino(t *testing.T) {
	asOf := time.Now()
	svc := newService(
		&fakeVerifier{resp: confirmedResponse(asOf.AddDate(0, -3, 0))},
		&fakeDuplicateChecker{ninoDuplicate: true},
		config.VerifierErrorTreatAsIneligible,
	)

	decision, err := svc.EvaluateNewClaimant(context.Background(), nil, domain.Claimant{Nino: "QQ123456C"}, asOf)

	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityStatusDuplicate, decision.EligibilityStatus)
	assert.Equal(t, ReasonDuplicateClaim, decision.Reason)
	assert.Nil(t, decision.Entitlement, "an eligible verdict for a duplicate must not compute entitlement")
}

func TestEvaluateNewClaimant_DuplicateByHousehold(t *testing.T) {
	resp := confirmedResponse(time.Now().AddDate(0, -3, 0))
	resp.DwpHouseholdIdentifier = "dwp-42"
	dup := &fakeDuplicateChecker{householdDuplicate: true}
	svc := newService(&fakeVerifier{resp: resp}, dup, config.VerifierErrorTreatAsIneligible)

	decision, err := svc.EvaluateNewClaimant(context.Background(), nil, domain.Claimant{Nino: "QQ123456C"}, time.Now())

	require.NoError(t, err)
	assert.True(t, dup.householdChecked)
	assert.Equal(t, domain.EligibilityStatusDuplicate, decision.EligibilityStatus)
}

func TestEvaluateNewClaimant_ZeroEntitlementDowngradesToIneligible(t *testing.T) {
	// Confirmed benefit but no children and no pregnancy.
	svc := newService(&fakeVerifier{resp: confirmedResponse()}, &fakeDuplicateChecker{}, config.VerifierErrorTreatAsIneligible)

	decision, err := svc.EvaluateNewClaimant(context.Background(), nil, domain.Claimant{Nino: "QQ123456C"}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityStatusIneligible, decision.EligibilityStatus)
	assert.Equal(t, ReasonZeroEntitlement, decision.Reason)
	require.NotNil(t, decision.Entitlement)
	assert.Zero(t, decision.Entitlement.TotalVoucherCount())
}

func TestEvaluateNewClaimant_ErrorOutcomePolicies(t *testing.T) {
	errResp := &verifier.Response{
		IdentityOutcome:    verifier.IdentityMatched,
		EligibilityOutcome: verifier.EligibilityError,
	}

	t.Run("default policy treats error as ineligible", func(t *testing.T) {
		svc := newService(&fakeVerifier{resp: errResp}, &fakeDuplicateChecker{}, config.VerifierErrorTreatAsIneligible)
		decision, err := svc.EvaluateNewClaimant(context.Background(), nil, domain.Claimant{}, time.Now())
		require.NoError(t, err)
		assert.Equal(t, domain.EligibilityStatusIneligible, decision.EligibilityStatus)
		assert.Equal(t, ReasonVerifierError, decision.Reason)
	})

	t.Run("park policy surfaces an error status", func(t *testing.T) {
		svc := newService(&fakeVerifier{resp: errResp}, &fakeDuplicateChecker{}, config.VerifierErrorPark)
		decision, err := svc.EvaluateNewClaimant(context.Background(), nil, domain.Claimant{}, time.Now())
		require.NoError(t, err)
		assert.Equal(t, domain.EligibilityStatusError, decision.EligibilityStatus)
		assert.Equal(t, ReasonVerifierError, decision.Reason)
	})
}

func TestEvaluateNewClaimant_VerifierFailurePropagates(t *testing.T) {
	wantErr := domain.Transient(errors.New("verifier unreachable"))
	svc := newService(&fakeVerifier{err: wantErr}, &fakeDuplicateChecker{}, config.VerifierErrorTreatAsIneligible)

	decision, err := svc.EvaluateNewClaimant(context.Background(), nil, domain.Claimant{}, time.Now())

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
	assert.Nil(t, decision)
}

func TestEvaluateExistingClaim_SkipsDuplicateCheckAndBackdates(t *testing.T) {
	cycleStart := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	child := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	// Duplicate flags set: they must be ignored on renewal.
	dup := &fakeDuplicateChecker{ninoDuplicate: true, householdDuplicate: true}
	svc := newService(&fakeVerifier{resp: confirmedResponse(child)}, dup, config.VerifierErrorTreatAsIneligible)

	// Previous cycle granted nothing; the late-reported child is owed for it.
	previous := testCalculator().CalculateNewCycle(nil, nil, cycleStart.AddDate(0, 0, -28))

	claim := &domain.Claim{ID: "c1", Claimant: domain.Claimant{Nino: "QQ123456C"}}
	decision, err := svc.EvaluateExistingClaim(context.Background(), claim, cycleStart, previous)

	require.NoError(t, err)
	assert.Equal(t, domain.EligibilityStatusEligible, decision.EligibilityStatus)
	require.NotNil(t, decision.Entitlement)
	assert.Equal(t, 8, decision.Entitlement.BackdatedVouchers)
	assert.False(t, dup.householdChecked)
}
