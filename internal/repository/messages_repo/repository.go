package messages_repo

import (
	"context"

	"claims/internal/domain"
)

type MessageRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, msg *domain.Message) error
	// OldestQueued returns up to limit QUEUED messages of the given type,
	// oldest first.
	OldestQueued(ctx context.Context, querier domain.Querier, msgType domain.MessageType, limit int) ([]domain.Message, error)
	// Delete removes a successfully processed message.
	Delete(ctx context.Context, querier domain.Querier, id string) error
	// RecordFailure increments the attempt counter and parks the message once
	// the counter reaches maxAttempts. The updated counter and status are
	// returned so the caller can escalate.
	RecordFailure(ctx context.Context, querier domain.Querier, id, lastError string, maxAttempts int) (attempts int, status domain.MessageStatus, err error)
	// Park takes a message out of the queue immediately, bypassing the
	// attempt budget. Used for validation failures, which are never retried.
	Park(ctx context.Context, querier domain.Querier, id, lastError string) error
}
