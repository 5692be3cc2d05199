package message

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"claims/internal/client/notify"
	"claims/internal/domain"
)

type fakeClaimLoader struct {
	claim *domain.Claim
	err   error
}

func (f *fakeClaimLoader) GetByID(context.Context, domain.Querier, string) (*domain.Claim, error) {
	return f.claim, f.err
}

type fakeSender struct {
	channel         notify.Channel
	templateID      string
	recipient       string
	personalisation map[string]string
	err             error
	calls           int
}

func (f *fakeSender) Send(_ context.Context, channel notify.Channel, templateID, recipient string, personalisation map[string]string) error {
	f.calls++
	f.channel = channel
	f.templateID = templateID
	f.recipient = recipient
	f.personalisation = personalisation
	return f.err
}

func notificationMessage(t *testing.T, payload domain.NotificationPayload) domain.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return domain.Message{ID: "m1", Type: domain.MessageTypeSendEmail, Payload: raw}
}

func TestNotificationHandler_SendsEmail(t *testing.T) {
	claim := &domain.Claim{ID: "c1", Claimant: domain.Claimant{EmailAddress: "sam@example.com"}}
	sender := &fakeSender{}
	h := NewNotificationHandler(nil, &fakeClaimLoader{claim: claim}, sender, notify.ChannelEmail, zap.NewNop())

	err := h.Handle(context.Background(), notificationMessage(t, domain.NotificationPayload{
		ClaimID:         "c1",
		TemplateID:      "new-card-email",
		Personalisation: map[string]string{"first_name": "Sam"},
	}))

	require.NoError(t, err)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, notify.ChannelEmail, sender.channel)
	assert.Equal(t, "new-card-email", sender.templateID)
	assert.Equal(t, "sam@example.com", sender.recipient)
	assert.Equal(t, "Sam", sender.personalisation["first_name"])
}

func TestNotificationHandler_LetterUsesPostalAddress(t *testing.T) {
	claim := &domain.Claim{ID: "c1", Claimant: domain.Claimant{
		Address: domain.Address{
			AddressLine1: "1 Test Lane",
			TownOrCity:   "Leeds",
			Postcode:     "LS1 1AA",
		},
	}}
	sender := &fakeSender{}
	h := NewNotificationHandler(nil, &fakeClaimLoader{claim: claim}, sender, notify.ChannelLetter, zap.NewNop())

	err := h.Handle(context.Background(), notificationMessage(t, domain.NotificationPayload{
		ClaimID:    "c1",
		TemplateID: "card-cancellation-letter",
	}))

	require.NoError(t, err)
	assert.Equal(t, "1 Test Lane, Leeds, LS1 1AA", sender.recipient)
}

func TestNotificationHandler_MissingRecipientParks(t *testing.T) {
	claim := &domain.Claim{ID: "c1"}
	sender := &fakeSender{}
	h := NewNotificationHandler(nil, &fakeClaimLoader{claim: claim}, sender, notify.ChannelEmail, zap.NewNop())

	err := h.Handle(context.Background(), notificationMessage(t, domain.NotificationPayload{
		ClaimID:    "c1",
		TemplateID: "new-card-email",
	}))

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err), "an undeliverable notification must be parked, not retried")
	assert.Zero(t, sender.calls)
}

func TestNotificationHandler_MalformedPayloadParks(t *testing.T) {
	h := NewNotificationHandler(nil, &fakeClaimLoader{}, &fakeSender{}, notify.ChannelEmail, zap.NewNop())

	err := h.Handle(context.Background(), domain.Message{ID: "m1", Payload: []byte("{broken")})

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestNotificationHandler_SenderFailurePropagates(t *testing.T) {
	claim := &domain.Claim{ID: "c1", Claimant: domain.Claimant{EmailAddress: "sam@example.com"}}
	sender := &fakeSender{err: domain.Transient(assert.AnError)}
	h := NewNotificationHandler(nil, &fakeClaimLoader{claim: claim}, sender, notify.ChannelEmail, zap.NewNop())

	err := h.Handle(context.Background(), notificationMessage(t, domain.NotificationPayload{
		ClaimID:    "c1",
		TemplateID: "new-card-email",
	}))

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err), "a sender outage must leave the message queued")
}
