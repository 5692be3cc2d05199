package message

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"claims/internal/domain"
)

// PaymentService is the slice of the payments service these handlers need.
type PaymentService interface {
	MakePayment(ctx context.Context, claimID, cycleID, cardAccountID, requestReference string) error
	MakeAdditionalPregnancyPayment(ctx context.Context, claimID, cycleID, requestReference string) error
}

// MakePaymentHandler pays a cycle's entitlement onto the claimant's card. The
// message id doubles as the provider deposit reference, so every retry of the
// same message resolves to the same deposit.
type MakePaymentHandler struct {
	service PaymentService
	logger  *zap.Logger
}

func NewMakePaymentHandler(service PaymentService, logger *zap.Logger) *MakePaymentHandler {
	return &MakePaymentHandler{service: service, logger: logger}
}

func (h *MakePaymentHandler) Handle(ctx context.Context, msg domain.Message) error {
	var payload domain.MakePaymentPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return domain.NewValidationError("payload", "malformed MAKE_PAYMENT payload: "+err.Error())
	}
	if payload.ClaimID == "" || payload.PaymentCycleID == "" || payload.CardAccountID == "" {
		return domain.NewValidationError("payload", "MAKE_PAYMENT payload missing claim, cycle or card id")
	}

	h.logger.Debug("Making payment",
		zap.String("message_id", msg.ID),
		zap.String("claim_id", payload.ClaimID),
		zap.String("cycle_id", payload.PaymentCycleID))
	return h.service.MakePayment(ctx, payload.ClaimID, payload.PaymentCycleID, payload.CardAccountID, msg.ID)
}

// AdditionalPregnancyPaymentHandler tops up a cycle whose claimant reported a
// pregnancy mid-cycle.
type AdditionalPregnancyPaymentHandler struct {
	service PaymentService
	logger  *zap.Logger
}

func NewAdditionalPregnancyPaymentHandler(service PaymentService, logger *zap.Logger) *AdditionalPregnancyPaymentHandler {
	return &AdditionalPregnancyPaymentHandler{service: service, logger: logger}
}

func (h *AdditionalPregnancyPaymentHandler) Handle(ctx context.Context, msg domain.Message) error {
	var payload domain.AdditionalPregnancyPaymentPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return domain.NewValidationError("payload", "malformed ADDITIONAL_PREGNANCY_PAYMENT payload: "+err.Error())
	}
	if payload.ClaimID == "" || payload.PaymentCycleID == "" {
		return domain.NewValidationError("payload", "ADDITIONAL_PREGNANCY_PAYMENT payload missing claim or cycle id")
	}

	h.logger.Debug("Making additional pregnancy payment",
		zap.String("message_id", msg.ID),
		zap.String("claim_id", payload.ClaimID))
	return h.service.MakeAdditionalPregnancyPayment(ctx, payload.ClaimID, payload.PaymentCycleID, msg.ID)
}
