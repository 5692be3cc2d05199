package message

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"claims/internal/domain"
)

type fakeProducer struct {
	key   string
	value []byte
	err   error
	calls int
}

func (f *fakeProducer) Produce(_ context.Context, key string, value []byte) error {
	f.calls++
	f.key = key
	f.value = value
	return f.err
}

type fakePaymentLoader struct {
	payment *domain.Payment
	err     error
}

func (f *fakePaymentLoader) GetByID(context.Context, domain.Querier, string) (*domain.Payment, error) {
	return f.payment, f.err
}

func TestReportClaimHandler_PublishesLifecycleEvent(t *testing.T) {
	claim := &domain.Claim{
		ID:                "c1",
		ClaimStatus:       domain.ClaimStatusActive,
		EligibilityStatus: domain.EligibilityStatusEligible,
	}
	producer := &fakeProducer{}
	h := NewReportClaimHandler(nil, &fakeClaimLoader{claim: claim}, producer, zap.NewNop())

	err := h.Handle(context.Background(), domain.Message{
		ID:      "m1",
		Type:    domain.MessageTypeReportClaim,
		Payload: []byte(`{"claimId":"c1","action":"CLAIM_ACTIVE"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, "c1", producer.key)
	var event domain.ClaimReportedEvent
	require.NoError(t, json.Unmarshal(producer.value, &event))
	assert.Equal(t, "CLAIM_ACTIVE", event.Action)
	assert.Equal(t, "ACTIVE", event.ClaimStatus)
	assert.Equal(t, "ELIGIBLE", event.EligibilityStatus)
	assert.False(t, event.Timestamp.IsZero())
}

func TestReportPaymentHandler_IncludesPaymentDetail(t *testing.T) {
	producer := &fakeProducer{}
	loader := &fakePaymentLoader{payment: &domain.Payment{
		ID:            "p1",
		AmountInPence: 2480,
		Status:        domain.PaymentStatusSuccess,
	}}
	h := NewReportPaymentHandler(nil, loader, producer, zap.NewNop())

	err := h.Handle(context.Background(), domain.Message{
		ID:      "m1",
		Type:    domain.MessageTypeReportPayment,
		Payload: []byte(`{"claimId":"c1","paymentCycleId":"pc1","paymentId":"p1","action":"PAYMENT_MADE"}`),
	})

	require.NoError(t, err)
	var event domain.PaymentReportedEvent
	require.NoError(t, json.Unmarshal(producer.value, &event))
	assert.Equal(t, "p1", event.PaymentID)
	assert.Equal(t, 2480, event.AmountInPence)
	assert.Equal(t, "SUCCESS", event.Status)
}

func TestReportPaymentHandler_BalanceTooHighHasNoPaymentRecord(t *testing.T) {
	producer := &fakeProducer{}
	loader := &fakePaymentLoader{err: assert.AnError} // must not be consulted
	h := NewReportPaymentHandler(nil, loader, producer, zap.NewNop())

	err := h.Handle(context.Background(), domain.Message{
		ID:      "m1",
		Type:    domain.MessageTypeReportPayment,
		Payload: []byte(`{"claimId":"c1","paymentCycleId":"pc1","action":"BALANCE_TOO_HIGH"}`),
	})

	require.NoError(t, err)
	var event domain.PaymentReportedEvent
	require.NoError(t, json.Unmarshal(producer.value, &event))
	assert.Equal(t, "BALANCE_TOO_HIGH", event.Action)
	assert.Empty(t, event.PaymentID)
	assert.Zero(t, event.AmountInPence)
}

func TestReportHandlers_BrokerOutagePropagates(t *testing.T) {
	claim := &domain.Claim{ID: "c1"}
	producer := &fakeProducer{err: domain.Transient(assert.AnError)}
	h := NewReportClaimHandler(nil, &fakeClaimLoader{claim: claim}, producer, zap.NewNop())

	err := h.Handle(context.Background(), domain.Message{
		ID:      "m1",
		Payload: []byte(`{"claimId":"c1","action":"CLAIM_NEW"}`),
	})

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err), "a broker outage must leave the report queued")
}
