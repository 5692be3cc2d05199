package message

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"claims/internal/client/notify"
	"claims/internal/domain"
)

// NotificationSender is the slice of the notification client this handler
// needs.
type NotificationSender interface {
	Send(ctx context.Context, channel notify.Channel, templateID, recipient string, personalisation map[string]string) error
}

// NotificationHandler sends one templated notification over its configured
// channel. One instance is registered per SEND_* message type.
type NotificationHandler struct {
	querier domain.Querier
	claims  ClaimLoader
	sender  NotificationSender
	channel notify.Channel
	logger  *zap.Logger
}

func NewNotificationHandler(
	querier domain.Querier,
	claims ClaimLoader,
	sender NotificationSender,
	channel notify.Channel,
	logger *zap.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		querier: querier,
		claims:  claims,
		sender:  sender,
		channel: channel,
		logger:  logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, msg domain.Message) error {
	var payload domain.NotificationPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return domain.NewValidationError("payload", "malformed notification payload: "+err.Error())
	}
	if payload.ClaimID == "" || payload.TemplateID == "" {
		return domain.NewValidationError("payload", "notification payload missing claim id or template id")
	}

	claim, err := h.claims.GetByID(ctx, h.querier, payload.ClaimID)
	if err != nil {
		return err
	}

	recipient, err := recipientFor(h.channel, claim)
	if err != nil {
		return err
	}

	if err := h.sender.Send(ctx, h.channel, payload.TemplateID, recipient, payload.Personalisation); err != nil {
		return err
	}
	h.logger.Info("Notification sent",
		zap.String("claim_id", claim.ID),
		zap.String("channel", string(h.channel)),
		zap.String("template_id", payload.TemplateID))
	return nil
}

// recipientFor resolves the claimant detail the channel delivers to. A claim
// without that detail can never be delivered, so the message is parked.
func recipientFor(channel notify.Channel, claim *domain.Claim) (string, error) {
	switch channel {
	case notify.ChannelEmail:
		if claim.Claimant.EmailAddress == "" {
			return "", domain.NewValidationError("email_address", "claimant has no email address")
		}
		return claim.Claimant.EmailAddress, nil
	case notify.ChannelText:
		if claim.Claimant.PhoneNumber == "" {
			return "", domain.NewValidationError("phone_number", "claimant has no phone number")
		}
		return claim.Claimant.PhoneNumber, nil
	case notify.ChannelLetter:
		return formatAddress(claim.Claimant.Address), nil
	default:
		return "", domain.NewValidationError("channel", "unknown notification channel "+string(channel))
	}
}

func formatAddress(a domain.Address) string {
	parts := []string{a.AddressLine1}
	if a.AddressLine2 != "" {
		parts = append(parts, a.AddressLine2)
	}
	parts = append(parts, a.TownOrCity, a.Postcode)
	return strings.Join(parts, ", ")
}
