package message

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"claims/internal/domain"
)

type fakePaymentService struct {
	claimID   string
	cycleID   string
	cardID    string
	reference string
	pregnancy bool
	err       error
}

func (f *fakePaymentService) MakePayment(_ context.Context, claimID, cycleID, cardAccountID, requestReference string) error {
	f.claimID, f.cycleID, f.cardID, f.reference = claimID, cycleID, cardAccountID, requestReference
	return f.err
}

func (f *fakePaymentService) MakeAdditionalPregnancyPayment(_ context.Context, claimID, cycleID, requestReference string) error {
	f.pregnancy = true
	f.claimID, f.cycleID, f.reference = claimID, cycleID, requestReference
	return f.err
}

func TestMakePaymentHandler_UsesMessageIDAsDepositReference(t *testing.T) {
	svc := &fakePaymentService{}
	h := NewMakePaymentHandler(svc, zap.NewNop())

	err := h.Handle(context.Background(), domain.Message{
		ID:      "msg-77",
		Type:    domain.MessageTypeMakePayment,
		Payload: []byte(`{"claimId":"c1","paymentCycleId":"pc1","cardAccountId":"card1"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "c1", svc.claimID)
	assert.Equal(t, "pc1", svc.cycleID)
	assert.Equal(t, "card1", svc.cardID)
	assert.Equal(t, "msg-77", svc.reference, "a retried message must re-use the same deposit reference")
}

func TestMakePaymentHandler_MissingFieldsPark(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"no claim id", `{"paymentCycleId":"pc1","cardAccountId":"card1"}`},
		{"no cycle id", `{"claimId":"c1","cardAccountId":"card1"}`},
		{"no card id", `{"claimId":"c1","paymentCycleId":"pc1"}`},
		{"malformed json", `{broken`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakePaymentService{}
			h := NewMakePaymentHandler(svc, zap.NewNop())

			err := h.Handle(context.Background(), domain.Message{ID: "m1", Payload: []byte(tt.payload)})

			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
			assert.Empty(t, svc.reference, "the service must not be called for an unusable payload")
		})
	}
}

func TestAdditionalPregnancyPaymentHandler(t *testing.T) {
	svc := &fakePaymentService{}
	h := NewAdditionalPregnancyPaymentHandler(svc, zap.NewNop())

	err := h.Handle(context.Background(), domain.Message{
		ID:      "msg-12",
		Type:    domain.MessageTypeAdditionalPregnancyPayment,
		Payload: []byte(`{"claimId":"c1","paymentCycleId":"pc1"}`),
	})

	require.NoError(t, err)
	assert.True(t, svc.pregnancy)
	assert.Equal(t, "msg-12", svc.reference)
}

func TestDetermineEntitlementHandler_PassesCycleIDs(t *testing.T) {
	var gotClaim, gotCurrent, gotPrevious string
	h := NewDetermineEntitlementHandler(entitlementServiceFunc(func(_ context.Context, claimID, currentCycleID, previousCycleID string) error {
		gotClaim, gotCurrent, gotPrevious = claimID, currentCycleID, previousCycleID
		return nil
	}), zap.NewNop())

	err := h.Handle(context.Background(), domain.Message{
		ID:      "m1",
		Type:    domain.MessageTypeDetermineEntitlement,
		Payload: []byte(`{"claimId":"c1","currentPaymentCycleId":"pc2","previousPaymentCycleId":"pc1"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "c1", gotClaim)
	assert.Equal(t, "pc2", gotCurrent)
	assert.Equal(t, "pc1", gotPrevious)
}

type entitlementServiceFunc func(ctx context.Context, claimID, currentCycleID, previousCycleID string) error

func (f entitlementServiceFunc) DetermineEntitlement(ctx context.Context, claimID, currentCycleID, previousCycleID string) error {
	return f(ctx, claimID, currentCycleID, previousCycleID)
}
