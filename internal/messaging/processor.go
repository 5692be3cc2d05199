package messaging

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"claims/internal/domain"
)

// Handler processes one message. Returning nil deletes the message; a
// transient error leaves it queued for retry; a validation error parks it.
type Handler interface {
	Handle(ctx context.Context, msg domain.Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg domain.Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg domain.Message) error {
	return f(ctx, msg)
}

// Processor drains the durable message queue one type at a time. Each call to
// ProcessBatch handles one batch of one type; messages are processed
// independently, so one failure never blocks its siblings.
type Processor struct {
	querier     domain.Querier
	repo        MessageRepository
	handlers    map[domain.MessageType]Handler
	batchSize   int
	maxAttempts int
	failures    atomic.Int64
	logger      *zap.Logger
}

func NewProcessor(querier domain.Querier, repo MessageRepository, batchSize, maxAttempts int, logger *zap.Logger) *Processor {
	return &Processor{
		querier:     querier,
		repo:        repo,
		handlers:    make(map[domain.MessageType]Handler),
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func (p *Processor) Register(msgType domain.MessageType, handler Handler) {
	p.handlers[msgType] = handler
}

// FailureCount returns the number of message handling failures seen so far.
func (p *Processor) FailureCount() int64 {
	return p.failures.Load()
}

func (p *Processor) ProcessBatch(ctx context.Context, msgType domain.MessageType) error {
	handler, ok := p.handlers[msgType]
	if !ok {
		return fmt.Errorf("no handler registered for message type %s", msgType)
	}

	messages, err := p.repo.OldestQueued(ctx, p.querier, msgType, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch %s batch: %w", msgType, err)
	}
	if len(messages) == 0 {
		return nil
	}

	p.logger.Info("Processing message batch",
		zap.String("type", string(msgType)),
		zap.Int("count", len(messages)))

	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.processOne(ctx, handler, msg)
	}
	return nil
}

func (p *Processor) processOne(ctx context.Context, handler Handler, msg domain.Message) {
	err := handler.Handle(ctx, msg)
	if err == nil {
		if delErr := p.repo.Delete(ctx, p.querier, msg.ID); delErr != nil {
			p.logger.Error("Failed to delete processed message",
				zap.String("message_id", msg.ID),
				zap.String("type", string(msg.Type)),
				zap.Error(delErr))
		}
		return
	}

	p.failures.Add(1)

	if domain.IsValidation(err) {
		p.logger.Error("Message failed validation, parking without retry",
			zap.String("message_id", msg.ID),
			zap.String("type", string(msg.Type)),
			zap.ByteString("payload", msg.Payload),
			zap.Error(err))
		if parkErr := p.repo.Park(ctx, p.querier, msg.ID, err.Error()); parkErr != nil {
			p.logger.Error("Failed to park message", zap.String("message_id", msg.ID), zap.Error(parkErr))
		}
		return
	}

	attempts, status, recErr := p.repo.RecordFailure(ctx, p.querier, msg.ID, err.Error(), p.maxAttempts)
	if recErr != nil {
		p.logger.Error("Failed to record message failure",
			zap.String("message_id", msg.ID),
			zap.Error(recErr))
		return
	}

	if status == domain.MessageStatusParked {
		// Escalation point: the attempt budget is exhausted and the message
		// needs a human.
		p.logger.Error("Message attempt budget exhausted, parked for escalation",
			zap.String("message_id", msg.ID),
			zap.String("type", string(msg.Type)),
			zap.Int("attempts", attempts),
			zap.ByteString("payload", msg.Payload),
			zap.Error(err))
		return
	}

	p.logger.Warn("Message handling failed, left queued for retry",
		zap.String("message_id", msg.ID),
		zap.String("type", string(msg.Type)),
		zap.Int("attempts", attempts),
		zap.Error(err))
}
