package postgres

import (
	"context"
	"fmt"
	"time"

	"claims/internal/domain"
)

type LockRepository struct{}

func NewLockRepository() *LockRepository {
	return &LockRepository{}
}

// TryAcquire takes the lease if no live lease exists. locked_until is set to
// now+maxHold, so a holder that never releases is broken by force once
// maxHold has passed.
func (r *LockRepository) TryAcquire(ctx context.Context, querier domain.Querier, jobName string, maxHold time.Duration) (bool, error) {
	query := `
		INSERT INTO job_locks (job_name, locked_at, locked_until)
		VALUES ($1, NOW(), NOW() + make_interval(secs => $2))
		ON CONFLICT (job_name) DO UPDATE
		SET locked_at = EXCLUDED.locked_at, locked_until = EXCLUDED.locked_until
		WHERE job_locks.locked_until <= NOW()
	`
	res, err := querier.ExecContext(ctx, query, jobName, maxHold.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", jobName, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for lock acquire: %w", err)
	}
	return rowsAffected == 1, nil
}

// Release shortens the lease, but never below locked_at+minHold: a tick that
// finishes instantly still keeps siblings out for the minimum hold.
func (r *LockRepository) Release(ctx context.Context, querier domain.Querier, jobName string, minHold time.Duration) error {
	query := `
		UPDATE job_locks
		SET locked_until = GREATEST(NOW(), locked_at + make_interval(secs => $1))
		WHERE job_name = $2
	`
	if _, err := querier.ExecContext(ctx, query, minHold.Seconds(), jobName); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", jobName, err)
	}
	return nil
}
