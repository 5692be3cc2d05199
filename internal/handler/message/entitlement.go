package message

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"claims/internal/domain"
)

// EntitlementService is the slice of the claims service this handler needs.
type EntitlementService interface {
	DetermineEntitlement(ctx context.Context, claimID, currentCycleID, previousCycleID string) error
}

// DetermineEntitlementHandler re-evaluates a claim's eligibility and
// entitlement at the start of each payment cycle.
type DetermineEntitlementHandler struct {
	service EntitlementService
	logger  *zap.Logger
}

func NewDetermineEntitlementHandler(service EntitlementService, logger *zap.Logger) *DetermineEntitlementHandler {
	return &DetermineEntitlementHandler{service: service, logger: logger}
}

func (h *DetermineEntitlementHandler) Handle(ctx context.Context, msg domain.Message) error {
	var payload domain.DetermineEntitlementPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return domain.NewValidationError("payload", "malformed DETERMINE_ENTITLEMENT payload: "+err.Error())
	}
	if payload.ClaimID == "" || payload.CurrentPaymentCycleID == "" {
		return domain.NewValidationError("payload", "DETERMINE_ENTITLEMENT payload missing claim or cycle id")
	}

	h.logger.Debug("Determining entitlement",
		zap.String("message_id", msg.ID),
		zap.String("claim_id", payload.ClaimID))
	return h.service.DetermineEntitlement(ctx, payload.ClaimID, payload.CurrentPaymentCycleID, payload.PreviousPaymentCycleID)
}
