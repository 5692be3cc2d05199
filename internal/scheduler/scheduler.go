package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"claims/internal/domain"
)

// LockRepository is the lease lock guarding each job; see
// repository/locks_repo.
type LockRepository interface {
	TryAcquire(ctx context.Context, querier domain.Querier, jobName string, maxHold time.Duration) (bool, error)
	Release(ctx context.Context, querier domain.Querier, jobName string, minHold time.Duration) error
}

// Job is one periodic trigger: a tick fires Run under a distributed lock
// named after the job. MinHold keeps overlapping ticks (or a second instance)
// from double-processing a batch; MaxHold force-releases a stuck lock.
type Job struct {
	Name     string
	Interval time.Duration
	MinHold  time.Duration
	MaxHold  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job on its own ticker goroutine. Jobs tick
// independently and concurrently with respect to each other; a single job is
// serialized by its lock.
type Scheduler struct {
	querier domain.Querier
	locks   LockRepository
	jobs    []Job
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewScheduler(querier domain.Querier, locks LockRepository, logger *zap.Logger) *Scheduler {
	return &Scheduler{querier: querier, locks: locks, logger: logger}
}

func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches every job and returns. Jobs stop when ctx is cancelled;
// Wait blocks until they have all drained.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, job)
	}
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler job stopping", zap.String("job", job.Name))
			return
		case <-ticker.C:
			s.tick(ctx, job)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, job Job) {
	acquired, err := s.locks.TryAcquire(ctx, s.querier, job.Name, job.MaxHold)
	if err != nil {
		s.logger.Error("Failed to acquire job lock", zap.String("job", job.Name), zap.Error(err))
		return
	}
	if !acquired {
		s.logger.Debug("Job lock held elsewhere, skipping tick", zap.String("job", job.Name))
		return
	}
	defer func() {
		if err := s.locks.Release(ctx, s.querier, job.Name, job.MinHold); err != nil {
			s.logger.Error("Failed to release job lock", zap.String("job", job.Name), zap.Error(err))
		}
	}()

	// The run must finish inside the lease; a handler stuck past MaxHold
	// loses the lock to the next tick.
	runCtx, cancel := context.WithTimeout(ctx, job.MaxHold)
	defer cancel()

	if err := job.Run(runCtx); err != nil {
		s.logger.Error("Scheduler job run failed", zap.String("job", job.Name), zap.Error(err))
	}
}
