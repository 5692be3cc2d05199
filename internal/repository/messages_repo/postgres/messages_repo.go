package postgres

import (
	"context"
	"fmt"

	"claims/internal/domain"
)

type MessageRepository struct{}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{}
}

func (r *MessageRepository) CreateTx(ctx context.Context, querier domain.Querier, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, message_type, payload, status, attempt_count, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := querier.ExecContext(ctx, query,
		msg.ID,
		msg.Type,
		msg.Payload,
		msg.Status,
		msg.AttemptCount,
		msg.LastError,
		msg.CreatedAt,
		msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// OldestQueued reads a batch without row locks: the job lease in job_locks
// already guarantees a single processor per message type, and handlers commit
// their own transactions per message.
func (r *MessageRepository) OldestQueued(ctx context.Context, querier domain.Querier, msgType domain.MessageType, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, message_type, payload, status, attempt_count, last_error, created_at, updated_at
		FROM messages
		WHERE message_type = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	rows, err := querier.QueryContext(ctx, query, msgType, domain.MessageStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get queued messages of type %s: %w", msgType, err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg := domain.Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.Type,
			&msg.Payload,
			&msg.Status,
			&msg.AttemptCount,
			&msg.LastError,
			&msg.CreatedAt,
			&msg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

func (r *MessageRepository) Delete(ctx context.Context, querier domain.Querier, id string) error {
	res, err := querier.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for message delete: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) RecordFailure(ctx context.Context, querier domain.Querier, id, lastError string, maxAttempts int) (int, domain.MessageStatus, error) {
	query := `
		UPDATE messages
		SET attempt_count = attempt_count + 1,
		    last_error = $1,
		    status = CASE WHEN attempt_count + 1 >= $2 THEN $3 ELSE status END,
		    updated_at = NOW()
		WHERE id = $4
		RETURNING attempt_count, status
	`
	var attempts int
	var status domain.MessageStatus
	err := querier.QueryRowContext(ctx, query, lastError, maxAttempts, domain.MessageStatusParked, id).Scan(&attempts, &status)
	if err != nil {
		return 0, "", fmt.Errorf("failed to record message failure for %s: %w", id, err)
	}
	return attempts, status, nil
}

func (r *MessageRepository) Park(ctx context.Context, querier domain.Querier, id, lastError string) error {
	query := `
		UPDATE messages
		SET status = $1, attempt_count = attempt_count + 1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`
	if _, err := querier.ExecContext(ctx, query, domain.MessageStatusParked, lastError, id); err != nil {
		return fmt.Errorf("failed to park message %s: %w", id, err)
	}
	return nil
}
