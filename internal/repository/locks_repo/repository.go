package locks_repo

import (
	"context"
	"time"

	"claims/internal/domain"
)

// LockRepository is a lease-based mutual-exclusion lock shared through the
// store. A lock acquired for jobName stays held for at least minHold after
// release (overlapping ticks cannot double-process a batch) and is broken by
// force once maxHold has passed (a stuck holder cannot wedge the job).
type LockRepository interface {
	TryAcquire(ctx context.Context, querier domain.Querier, jobName string, maxHold time.Duration) (bool, error)
	Release(ctx context.Context, querier domain.Querier, jobName string, minHold time.Duration) error
}
