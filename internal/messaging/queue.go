package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claims/internal/domain"
	"claims/internal/util"
)

// MessageRepository is the slice of the message store the orchestrator needs.
type MessageRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, msg *domain.Message) error
	OldestQueued(ctx context.Context, querier domain.Querier, msgType domain.MessageType, limit int) ([]domain.Message, error)
	Delete(ctx context.Context, querier domain.Querier, id string) error
	RecordFailure(ctx context.Context, querier domain.Querier, id, lastError string, maxAttempts int) (int, domain.MessageStatus, error)
	Park(ctx context.Context, querier domain.Querier, id, lastError string) error
}

// Queue enqueues typed messages. Payloads hold entity identifiers only;
// handlers re-read entities fresh from the store.
type Queue struct {
	repo   MessageRepository
	logger *zap.Logger
}

func NewQueue(repo MessageRepository, logger *zap.Logger) *Queue {
	return &Queue{repo: repo, logger: logger}
}

func (q *Queue) Enqueue(ctx context.Context, querier domain.Querier, msgType domain.MessageType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}

	now := time.Now()
	msg := &domain.Message{
		ID:        util.NewID(),
		Type:      msgType,
		Payload:   body,
		Status:    domain.MessageStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.repo.CreateTx(ctx, querier, msg); err != nil {
		return fmt.Errorf("failed to enqueue %s message: %w", msgType, err)
	}
	q.logger.Debug("Message enqueued", zap.String("message_id", msg.ID), zap.String("type", string(msgType)))
	return nil
}

// EnqueueBestEffort enqueues and only logs on failure. Used for side effects
// (reporting, notifications) that must never block or roll back a primary
// state change.
func (q *Queue) EnqueueBestEffort(ctx context.Context, querier domain.Querier, msgType domain.MessageType, payload any) {
	if err := q.Enqueue(ctx, querier, msgType, payload); err != nil {
		q.logger.Error("Failed to enqueue best-effort message",
			zap.String("type", string(msgType)),
			zap.Error(err))
	}
}
