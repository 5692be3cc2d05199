package message

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"claims/internal/client/cardprovider"
	"claims/internal/domain"
)

// CardCreator is the slice of the card provider client this handler needs.
type CardCreator interface {
	CreateCard(ctx context.Context, req cardprovider.CreateCardRequest) (string, error)
}

// CardActivationService activates a claim once its card account exists.
type CardActivationService interface {
	ActivateClaimWithCard(ctx context.Context, claimID, cardAccountID string) error
}

// ClaimLoader loads a claim by id against the handler's own connection.
type ClaimLoader interface {
	GetByID(ctx context.Context, querier domain.Querier, id string) (*domain.Claim, error)
}

// CreateNewCardHandler requests a card account from the provider and activates
// the claim with it. If the claim already holds a card the handler is a no-op,
// which keeps the message safe to retry after a partial failure.
type CreateNewCardHandler struct {
	querier  domain.Querier
	claims   ClaimLoader
	provider CardCreator
	service  CardActivationService
	logger   *zap.Logger
}

func NewCreateNewCardHandler(
	querier domain.Querier,
	claims ClaimLoader,
	provider CardCreator,
	service CardActivationService,
	logger *zap.Logger,
) *CreateNewCardHandler {
	return &CreateNewCardHandler{
		querier:  querier,
		claims:   claims,
		provider: provider,
		service:  service,
		logger:   logger,
	}
}

func (h *CreateNewCardHandler) Handle(ctx context.Context, msg domain.Message) error {
	var payload domain.CreateNewCardPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return domain.NewValidationError("payload", "malformed CREATE_NEW_CARD payload: "+err.Error())
	}
	if payload.ClaimID == "" {
		return domain.NewValidationError("payload", "CREATE_NEW_CARD payload missing claim id")
	}

	claim, err := h.claims.GetByID(ctx, h.querier, payload.ClaimID)
	if err != nil {
		return err
	}

	cardAccountID := claim.CardAccountID
	if cardAccountID == "" {
		cardAccountID, err = h.provider.CreateCard(ctx, cardprovider.CreateCardRequest{
			ClaimID:      claim.ID,
			FirstName:    claim.Claimant.FirstName,
			LastName:     claim.Claimant.LastName,
			DateOfBirth:  claim.Claimant.DateOfBirth.Format("2006-01-02"),
			Address:      claim.Claimant.Address,
			EmailAddress: claim.Claimant.EmailAddress,
			PhoneNumber:  claim.Claimant.PhoneNumber,
		})
		if err != nil {
			return err
		}
		h.logger.Info("Card account created",
			zap.String("claim_id", claim.ID),
			zap.String("card_account_id", cardAccountID))
	} else {
		h.logger.Info("Claim already has a card account, resuming activation",
			zap.String("claim_id", claim.ID),
			zap.String("card_account_id", cardAccountID))
	}

	return h.service.ActivateClaimWithCard(ctx, claim.ID, cardAccountID)
}
