package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"claims/internal/domain"
)

type fakeLocks struct {
	mu       sync.Mutex
	grant    bool
	acquires int
	releases int
}

func (f *fakeLocks) TryAcquire(_ context.Context, _ domain.Querier, _ string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires++
	return f.grant, nil
}

func (f *fakeLocks) Release(_ context.Context, _ domain.Querier, _ string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeLocks) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires, f.releases
}

func TestScheduler_RunsJobUnderLock(t *testing.T) {
	locks := &fakeLocks{grant: true}
	s := NewScheduler(nil, locks, zap.NewNop())

	var runs atomic.Int32
	done := make(chan struct{})
	s.Add(Job{
		Name:     "test-job",
		Interval: 5 * time.Millisecond,
		MinHold:  time.Millisecond,
		MaxHold:  time.Second,
		Run: func(ctx context.Context) error {
			if runs.Add(1) == 3 {
				close(done)
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run three times in time")
	}
	cancel()
	s.Wait()

	acquires, releases := locks.counts()
	assert.GreaterOrEqual(t, int32(acquires), runs.Load())
	assert.Equal(t, acquires, releases, "every acquired lock must be released")
}

func TestScheduler_SkipsTickWhenLockHeldElsewhere(t *testing.T) {
	locks := &fakeLocks{grant: false}
	s := NewScheduler(nil, locks, zap.NewNop())

	var runs atomic.Int32
	s.Add(Job{
		Name:     "contended-job",
		Interval: 5 * time.Millisecond,
		MinHold:  time.Millisecond,
		MaxHold:  time.Second,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	s.Wait()

	assert.Zero(t, runs.Load(), "a held lock must skip the tick entirely")
	acquires, releases := locks.counts()
	assert.Positive(t, acquires)
	assert.Zero(t, releases, "an unacquired lock must not be released")
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	locks := &fakeLocks{grant: true}
	s := NewScheduler(nil, locks, zap.NewNop())
	s.Add(Job{
		Name:     "stopping-job",
		Interval: time.Millisecond,
		MinHold:  time.Millisecond,
		MaxHold:  time.Second,
		Run:      func(ctx context.Context) error { return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}

func TestScheduler_RunContextCarriesDeadline(t *testing.T) {
	locks := &fakeLocks{grant: true}
	s := NewScheduler(nil, locks, zap.NewNop())

	gotDeadline := make(chan bool, 1)
	s.Add(Job{
		Name:     "deadline-job",
		Interval: 5 * time.Millisecond,
		MinHold:  time.Millisecond,
		MaxHold:  250 * time.Millisecond,
		Run: func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			select {
			case gotDeadline <- ok:
			default:
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer func() {
		cancel()
		s.Wait()
	}()

	select {
	case ok := <-gotDeadline:
		require.True(t, ok, "job runs must be bounded by the lease")
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
}
