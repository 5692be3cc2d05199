package message

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claims/internal/domain"
)

// ReportProducer publishes report events to the analytics topic.
type ReportProducer interface {
	Produce(ctx context.Context, key string, value []byte) error
}

// PaymentLoader loads a payment record by id.
type PaymentLoader interface {
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error)
}

// ReportClaimHandler publishes a claim lifecycle event. The queued message
// makes the publish durable: a broker outage is retried from the queue instead
// of dropping the event.
type ReportClaimHandler struct {
	querier  domain.Querier
	claims   ClaimLoader
	producer ReportProducer
	logger   *zap.Logger
}

func NewReportClaimHandler(querier domain.Querier, claims ClaimLoader, producer ReportProducer, logger *zap.Logger) *ReportClaimHandler {
	return &ReportClaimHandler{querier: querier, claims: claims, producer: producer, logger: logger}
}

func (h *ReportClaimHandler) Handle(ctx context.Context, msg domain.Message) error {
	var payload domain.ReportClaimPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return domain.NewValidationError("payload", "malformed REPORT_CLAIM payload: "+err.Error())
	}
	if payload.ClaimID == "" {
		return domain.NewValidationError("payload", "REPORT_CLAIM payload missing claim id")
	}

	claim, err := h.claims.GetByID(ctx, h.querier, payload.ClaimID)
	if err != nil {
		return err
	}

	event := domain.ClaimReportedEvent{
		ClaimID:           claim.ID,
		Action:            payload.Action,
		ClaimStatus:       string(claim.ClaimStatus),
		EligibilityStatus: string(claim.EligibilityStatus),
		Timestamp:         time.Now(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal claim report event: %w", err)
	}
	return h.producer.Produce(ctx, claim.ID, body)
}

// ReportPaymentHandler publishes a payment event, including zero-amount
// balance-too-high outcomes that carry no payment record.
type ReportPaymentHandler struct {
	querier  domain.Querier
	payments PaymentLoader
	producer ReportProducer
	logger   *zap.Logger
}

func NewReportPaymentHandler(querier domain.Querier, payments PaymentLoader, producer ReportProducer, logger *zap.Logger) *ReportPaymentHandler {
	return &ReportPaymentHandler{querier: querier, payments: payments, producer: producer, logger: logger}
}

func (h *ReportPaymentHandler) Handle(ctx context.Context, msg domain.Message) error {
	var payload domain.ReportPaymentPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return domain.NewValidationError("payload", "malformed REPORT_PAYMENT payload: "+err.Error())
	}
	if payload.ClaimID == "" || payload.PaymentCycleID == "" {
		return domain.NewValidationError("payload", "REPORT_PAYMENT payload missing claim or cycle id")
	}

	event := domain.PaymentReportedEvent{
		ClaimID:        payload.ClaimID,
		PaymentCycleID: payload.PaymentCycleID,
		Action:         payload.Action,
		Timestamp:      time.Now(),
	}
	if payload.PaymentID != "" {
		pmt, err := h.payments.GetByID(ctx, h.querier, payload.PaymentID)
		if err != nil {
			return err
		}
		event.PaymentID = pmt.ID
		event.AmountInPence = pmt.AmountInPence
		event.Status = string(pmt.Status)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payment report event: %w", err)
	}
	return h.producer.Produce(ctx, payload.ClaimID, body)
}
