package claims

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"claims/internal/app/eligibility"
	"claims/internal/domain"
	"claims/internal/messaging"
)

type fakeClaimStore struct {
	updated []domain.Claim
}

func (f *fakeClaimStore) CreateTx(context.Context, domain.Querier, *domain.Claim) error { return nil }

func (f *fakeClaimStore) GetByID(context.Context, domain.Querier, string) (*domain.Claim, error) {
	return nil, domain.ErrClaimNotFound
}

func (f *fakeClaimStore) Update(_ context.Context, _ domain.Querier, claim *domain.Claim) error {
	f.updated = append(f.updated, *claim)
	return nil
}

func (f *fakeClaimStore) WithCardStatusOlderThan(context.Context, domain.Querier, domain.CardStatus, time.Time) ([]domain.Claim, error) {
	return nil, nil
}

type fakeCycleStore struct {
	updates int
}

func (f *fakeCycleStore) CreateTx(context.Context, domain.Querier, *domain.PaymentCycle) error {
	return nil
}

func (f *fakeCycleStore) GetByID(context.Context, domain.Querier, string) (*domain.PaymentCycle, error) {
	return nil, domain.ErrPaymentCycleNotFound
}

func (f *fakeCycleStore) UpdateWithVersion(_ context.Context, _ domain.Querier, cycle *domain.PaymentCycle) error {
	f.updates++
	cycle.Version++
	return nil
}

func (f *fakeCycleStore) CyclesEndingBefore(context.Context, domain.Querier, time.Time) ([]domain.PaymentCycle, error) {
	return nil, nil
}

func (f *fakeCycleStore) LatestForClaim(context.Context, domain.Querier, string) (*domain.PaymentCycle, error) {
	return nil, domain.ErrPaymentCycleNotFound
}

func newDecisionTestService() (*Service, *fakeClaimStore, *fakeCycleStore, *fakeMessageRepo) {
	claimStore := &fakeClaimStore{}
	cycleStore := &fakeCycleStore{}
	msgRepo := &fakeMessageRepo{}
	queue := messaging.NewQueue(msgRepo, zap.NewNop())
	sm := NewStateMachine(queue, zap.NewNop())
	svc := NewService(nil, claimStore, cycleStore, nil, nil, queue, sm, Config{
		CycleLength:          4 * 7 * 24 * time.Hour,
		PregnancyGracePeriod: 12 * 7 * 24 * time.Hour,
	}, zap.NewNop())
	return svc, claimStore, cycleStore, msgRepo
}

func weeklyEntitlement(pregnancy, underOne, oneToFour int) *domain.CycleEntitlement {
	weeks := make([]domain.VoucherEntitlement, 4)
	for i := range weeks {
		weeks[i] = domain.VoucherEntitlement{
			PregnancyVouchers:         pregnancy,
			UnderOneVouchers:          underOne,
			OneToFourVouchers:         oneToFour,
			SingleVoucherValueInPence: 310,
		}
	}
	return &domain.CycleEntitlement{WeeklyEntitlements: weeks}
}

func messagesOfType(repo *fakeMessageRepo, msgType domain.MessageType) int {
	count := 0
	for _, m := range repo.created {
		if m.Type == msgType {
			count++
		}
	}
	return count
}

func TestApplyDecision_BenefitLostMovesActiveClaimToPendingExpiry(t *testing.T) {
	svc, claimStore, cycleStore, _ := newDecisionTestService()
	claim := &domain.Claim{ID: "c1", ClaimStatus: domain.ClaimStatusActive, CardStatus: domain.CardStatusActive}
	toddler := time.Now().AddDate(-2, 0, 0)
	previous := &domain.PaymentCycle{ID: "p1", ChildrenDatesOfBirth: []time.Time{toddler}, Entitlement: weeklyEntitlement(0, 0, 1)}
	current := &domain.PaymentCycle{ID: "p2", PaymentStatus: domain.PaymentCycleStatusNew}

	err := svc.applyDecision(context.Background(), nil, claim, current, previous, &eligibility.Decision{
		EligibilityStatus: domain.EligibilityStatusIneligible,
		Reason:            eligibility.ReasonNotConfirmed,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusPendingExpiry, claim.ClaimStatus)
	assert.Equal(t, domain.CardStatusActive, claim.CardStatus, "card must stay active while the claim can recover")
	assert.Equal(t, domain.PaymentCycleStatusIneligible, current.PaymentStatus)
	assert.Zero(t, current.TotalEntitlementAmountInPence)
	assert.Equal(t, 1, cycleStore.updates)
	require.Len(t, claimStore.updated, 1)
	assert.Equal(t, domain.ClaimStatusPendingExpiry, claimStore.updated[0].ClaimStatus)
}

func TestApplyDecision_AgedOutFamilyExpiresAndCancelsCard(t *testing.T) {
	svc, _, _, _ := newDecisionTestService()
	claim := &domain.Claim{ID: "c1", ClaimStatus: domain.ClaimStatusActive, CardStatus: domain.CardStatusActive}
	sixYearOld := time.Now().AddDate(-6, 0, 0)
	previous := &domain.PaymentCycle{ID: "p1", ChildrenDatesOfBirth: []time.Time{sixYearOld}}
	current := &domain.PaymentCycle{ID: "p2", PaymentStatus: domain.PaymentCycleStatusNew}

	err := svc.applyDecision(context.Background(), nil, claim, current, previous, &eligibility.Decision{
		EligibilityStatus: domain.EligibilityStatusIneligible,
		Reason:            eligibility.ReasonZeroEntitlement,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusExpired, claim.ClaimStatus)
	assert.Equal(t, domain.CardStatusPendingCancellation, claim.CardStatus)
	assert.Equal(t, domain.PaymentCycleStatusIneligible, current.PaymentStatus)
}

func TestApplyDecision_ZeroEntitlementWithChildStillUnderFourPendsNotExpires(t *testing.T) {
	svc, _, _, _ := newDecisionTestService()
	claim := &domain.Claim{ID: "c1", ClaimStatus: domain.ClaimStatusActive, CardStatus: domain.CardStatusActive}
	toddler := time.Now().AddDate(-2, 0, 0)
	previous := &domain.PaymentCycle{ID: "p1", ChildrenDatesOfBirth: []time.Time{toddler}}
	current := &domain.PaymentCycle{ID: "p2", PaymentStatus: domain.PaymentCycleStatusNew}

	err := svc.applyDecision(context.Background(), nil, claim, current, previous, &eligibility.Decision{
		EligibilityStatus: domain.EligibilityStatusIneligible,
		Reason:            eligibility.ReasonZeroEntitlement,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusPendingExpiry, claim.ClaimStatus)
	assert.Equal(t, domain.CardStatusActive, claim.CardStatus)
}

func TestApplyDecision_SecondFailedEvaluationExpiresPendingExpiryClaim(t *testing.T) {
	svc, _, _, _ := newDecisionTestService()
	claim := &domain.Claim{ID: "c1", ClaimStatus: domain.ClaimStatusPendingExpiry, CardStatus: domain.CardStatusActive}
	toddler := time.Now().AddDate(-2, 0, 0)
	previous := &domain.PaymentCycle{ID: "p1", ChildrenDatesOfBirth: []time.Time{toddler}}
	current := &domain.PaymentCycle{ID: "p2", PaymentStatus: domain.PaymentCycleStatusNew}

	err := svc.applyDecision(context.Background(), nil, claim, current, previous, &eligibility.Decision{
		EligibilityStatus: domain.EligibilityStatusIneligible,
		Reason:            eligibility.ReasonNotConfirmed,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusExpired, claim.ClaimStatus)
	assert.Equal(t, domain.CardStatusPendingCancellation, claim.CardStatus)
}

func TestApplyDecision_EligibleVerdictRecoversPendingExpiryClaim(t *testing.T) {
	svc, claimStore, _, msgRepo := newDecisionTestService()
	claim := &domain.Claim{ID: "c1", ClaimStatus: domain.ClaimStatusPendingExpiry, CardStatus: domain.CardStatusActive, CardAccountID: "card-1"}
	previous := &domain.PaymentCycle{ID: "p1", Entitlement: weeklyEntitlement(0, 0, 1)}
	current := &domain.PaymentCycle{ID: "p2", PaymentStatus: domain.PaymentCycleStatusNew}

	err := svc.applyDecision(context.Background(), nil, claim, current, previous, &eligibility.Decision{
		EligibilityStatus: domain.EligibilityStatusEligible,
		Reason:            eligibility.ReasonConfirmed,
		Entitlement:       weeklyEntitlement(0, 0, 1),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ClaimStatusActive, claim.ClaimStatus)
	assert.Equal(t, domain.PaymentCycleStatusReadyForPayment, current.PaymentStatus)
	assert.Equal(t, 4*310, current.TotalEntitlementAmountInPence)
	assert.Equal(t, 1, messagesOfType(msgRepo, domain.MessageTypeMakePayment))
	require.Len(t, claimStore.updated, 1)
	assert.Equal(t, domain.ClaimStatusActive, claimStore.updated[0].ClaimStatus)
}

func TestApplyDecision_UpcomingPaymentAlreadyCoversNewPregnancy(t *testing.T) {
	svc, _, _, msgRepo := newDecisionTestService()
	claim := &domain.Claim{ID: "c1", ClaimStatus: domain.ClaimStatusActive, CardStatus: domain.CardStatusActive, CardAccountID: "card-1"}
	previous := &domain.PaymentCycle{ID: "p1", Entitlement: weeklyEntitlement(0, 0, 1)}
	current := &domain.PaymentCycle{ID: "p2", PaymentStatus: domain.PaymentCycleStatusNew}

	err := svc.applyDecision(context.Background(), nil, claim, current, previous, &eligibility.Decision{
		EligibilityStatus: domain.EligibilityStatusEligible,
		Reason:            eligibility.ReasonConfirmed,
		Entitlement:       weeklyEntitlement(1, 0, 1),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCycleStatusReadyForPayment, current.PaymentStatus)
	assert.Equal(t, 1, messagesOfType(msgRepo, domain.MessageTypeMakePayment))
	assert.Zero(t, messagesOfType(msgRepo, domain.MessageTypeAdditionalPregnancyPayment),
		"the cycle's own payment already includes the pregnancy weeks")
}

func TestApplyDecision_PregnancyReportedAfterCyclePaidTriggersTopUp(t *testing.T) {
	svc, _, _, msgRepo := newDecisionTestService()
	claim := &domain.Claim{ID: "c1", ClaimStatus: domain.ClaimStatusActive, CardStatus: domain.CardStatusActive, CardAccountID: "card-1"}
	previous := &domain.PaymentCycle{ID: "p1", Entitlement: weeklyEntitlement(0, 0, 1)}
	current := &domain.PaymentCycle{ID: "p2", PaymentStatus: domain.PaymentCycleStatusFullPaymentMade}

	err := svc.applyDecision(context.Background(), nil, claim, current, previous, &eligibility.Decision{
		EligibilityStatus: domain.EligibilityStatusEligible,
		Reason:            eligibility.ReasonConfirmed,
		Entitlement:       weeklyEntitlement(1, 0, 1),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCycleStatusFullPaymentMade, current.PaymentStatus,
		"a settled cycle must not be reopened for payment")
	assert.Zero(t, messagesOfType(msgRepo, domain.MessageTypeMakePayment))
	assert.Equal(t, 1, messagesOfType(msgRepo, domain.MessageTypeAdditionalPregnancyPayment))
}
