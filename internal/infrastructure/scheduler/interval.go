package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/gigisung0503/eios/internal/ports"
)

// Interval drives recurring jobs on a fixed interval. The job runs once
// immediately on Start, then after each full interval. Sleeps are broken
// into fixed check segments between which the stop channel and context are
// polled, so Stop is cooperative: an in-flight job always runs to
// completion, and jobs never overlap.
type Interval struct {
	interval   time.Duration
	checkEvery time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*Interval)(nil)

// New builds an interval scheduler. The stop flag is checked every minute
// while sleeping.
func New(interval time.Duration) *Interval {
	return &Interval{interval: interval, checkEvery: time.Minute}
}

// Start launches the job loop. Calling Start while running is a no-op.
func (s *Interval) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.done = done

	go func() {
		defer close(done)
		job(time.Now())
		for {
			if !s.sleep(ctx, stop) {
				return
			}
			job(time.Now())
		}
	}()

	return nil
}

// sleep waits one full interval in check segments. Returns false when the
// scheduler should shut down instead of firing again.
func (s *Interval) sleep(ctx context.Context, stop chan struct{}) bool {
	var slept time.Duration
	for slept < s.interval {
		segment := s.checkEvery
		if remaining := s.interval - slept; remaining < segment {
			segment = remaining
		}
		timer := time.NewTimer(segment)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-stop:
			timer.Stop()
			return false
		case <-timer.C:
		}
		slept += segment
	}
	return true
}

// Stop halts future runs and waits for any in-flight job to finish, or for
// the context to expire. Idempotent.
func (s *Interval) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the job loop is scheduled.
func (s *Interval) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
