package claims

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claims/internal/domain"
	"claims/internal/messaging"
)

// StateMachine owns claim and card status transitions. Every transition is
// audited and reported; the audit and report are best-effort side effects and
// never block or roll back the transition itself. An unmapped transition is
// an invariant violation: it is surfaced with full context, never defaulted.
type StateMachine struct {
	queue  *messaging.Queue
	logger *zap.Logger
}

func NewStateMachine(queue *messaging.Queue, logger *zap.Logger) *StateMachine {
	return &StateMachine{queue: queue, logger: logger}
}

func claimTransitionValid(from, to domain.ClaimStatus) bool {
	switch from {
	case domain.ClaimStatusNew:
		return to == domain.ClaimStatusPending || to == domain.ClaimStatusActive ||
			to == domain.ClaimStatusRejected || to == domain.ClaimStatusError
	case domain.ClaimStatusPending:
		return to == domain.ClaimStatusActive || to == domain.ClaimStatusRejected ||
			to == domain.ClaimStatusError
	case domain.ClaimStatusActive:
		return to == domain.ClaimStatusPendingExpiry || to == domain.ClaimStatusExpired
	case domain.ClaimStatusPendingExpiry:
		return to == domain.ClaimStatusActive || to == domain.ClaimStatusExpired
	case domain.ClaimStatusExpired, domain.ClaimStatusRejected, domain.ClaimStatusError:
		return false
	default:
		return false
	}
}

func cardTransitionValid(from, to domain.CardStatus) bool {
	switch from {
	case domain.CardStatusActive:
		return to == domain.CardStatusPendingCancellation
	case domain.CardStatusPendingCancellation:
		return to == domain.CardStatusScheduledForCancellation
	case domain.CardStatusScheduledForCancellation:
		return to == domain.CardStatusCancelled
	case domain.CardStatusCancelled:
		return false
	default:
		return false
	}
}

// TransitionClaim moves the claim to the target status in memory. The caller
// persists the claim; transitioning to the current status is a no-op so
// retried messages stay safe.
func (m *StateMachine) TransitionClaim(ctx context.Context, querier domain.Querier, claim *domain.Claim, to domain.ClaimStatus) error {
	from := claim.ClaimStatus
	if from == to {
		return nil
	}
	if !claimTransitionValid(from, to) {
		return fmt.Errorf("invalid claim status transition %s -> %s for claim %s", from, to, claim.ID)
	}

	claim.ClaimStatus = to
	claim.ClaimStatusTimestamp = time.Now()

	m.logger.Info("Claim status transition",
		zap.String("claim_id", claim.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	m.queue.EnqueueBestEffort(ctx, querier, domain.MessageTypeReportClaim, domain.ReportClaimPayload{
		ClaimID: claim.ID,
		Action:  fmt.Sprintf("CLAIM_%s", to),
	})
	return nil
}

// TransitionCard moves the card sub-machine, decoupled from claim status.
func (m *StateMachine) TransitionCard(ctx context.Context, querier domain.Querier, claim *domain.Claim, to domain.CardStatus) error {
	from := claim.CardStatus
	if from == to {
		return nil
	}
	if !cardTransitionValid(from, to) {
		return fmt.Errorf("invalid card status transition %s -> %s for claim %s", from, to, claim.ID)
	}

	claim.CardStatus = to
	claim.CardStatusTimestamp = time.Now()

	m.logger.Info("Card status transition",
		zap.String("claim_id", claim.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	m.queue.EnqueueBestEffort(ctx, querier, domain.MessageTypeReportClaim, domain.ReportClaimPayload{
		ClaimID: claim.ID,
		Action:  fmt.Sprintf("CARD_%s", to),
	})
	return nil
}
