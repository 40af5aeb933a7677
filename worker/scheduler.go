package worker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Mode selects how workers share the CPU.
type Mode string

const (
	// ModeThreaded runs every worker independently.
	ModeThreaded Mode = "threaded"
	// ModeCooperative lets one worker process at a time.
	ModeCooperative Mode = "cooperative"
)

// Scheduler gates task processing.
type Scheduler interface {
	Acquire(ctx context.Context) error
	Release()
}

// NewScheduler returns the scheduler for a mode. Threaded mode has none.
func NewScheduler(mode Mode) Scheduler {
	if mode == ModeCooperative {
		return &tokenScheduler{sem: semaphore.NewWeighted(1)}
	}

	return nil
}

// tokenScheduler is a single cooperative scheduling token.
type tokenScheduler struct {
	sem *semaphore.Weighted
}

func (s *tokenScheduler) Acquire(ctx context.Context) error { return s.sem.Acquire(ctx, 1) }

func (s *tokenScheduler) Release() { s.sem.Release(1) }
