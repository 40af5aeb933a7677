package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
)

// ErrNotStarted is returned by Stop before Start.
var ErrNotStarted = errors.New("worker pool not started")

// PoolOptions configures a Pool.
type PoolOptions struct {
	Mode Mode
	// WorkerOptions are applied to every worker.
	WorkerOptions []func(o *Options)
	Logger        logging.Logger
}

// Pool owns one worker per developer of the plan and routes tasks to the
// owner of their path.
type Pool struct {
	env     Env
	opts    PoolOptions
	workers []*Worker
	owners  map[string]string

	mu      sync.Mutex
	group   *errgroup.Group
	stopped bool
}

// NewPool creates the workers for every assignment of env.Plan.
func NewPool(env Env, optFns ...func(o *PoolOptions)) *Pool {
	opts := PoolOptions{
		Mode:   ModeThreaded,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	sched := NewScheduler(opts.Mode)

	p := &Pool{env: env, opts: opts, owners: env.Plan.Owners()}

	for _, a := range env.Plan.DevPlan {
		fns := append([]func(o *Options){func(o *Options) {
			o.Logger = opts.Logger
			o.Scheduler = sched
		}}, opts.WorkerOptions...)

		p.workers = append(p.workers, New(a.DeveloperID, a.FilePaths, env, fns...))
	}

	return p
}

// Workers returns the workers in plan order.
func (p *Pool) Workers() []*Worker {
	return append([]*Worker(nil), p.workers...)
}

// Owner returns the developer owning path.
func (p *Pool) Owner(path string) (string, bool) {
	id, ok := p.owners[path]
	return id, ok
}

// Start launches every worker on its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.group != nil {
		return
	}

	p.group = &errgroup.Group{}

	for _, w := range p.workers {
		p.group.Go(func() error {
			err := w.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				p.opts.Logger.Error("Worker stopped", "worker_id", w.ID(), "error", err.Error())
			}

			return err
		})
	}

	p.opts.Logger.Info("Worker pool started", "workers", len(p.workers), "mode", string(p.opts.Mode))
}

// Dispatch posts task to the topic of the owner of its path.
func (p *Pool) Dispatch(task core.Task) error {
	owner, ok := p.owners[task.Path]
	if !ok {
		return &core.PermissionError{Path: task.Path, Reason: "path has no owner"}
	}

	p.env.Bus.Emit(core.WorkerTopic(owner), task)

	return nil
}

// DispatchImplement posts one implement task per FileSpec and returns the
// number of dispatched tasks.
func (p *Pool) DispatchImplement(round int) (int, error) {
	n := 0

	for _, path := range p.env.Plan.SpecPaths() {
		if err := p.Dispatch(core.ImplementTask(path, round)); err != nil {
			return n, fmt.Errorf("dispatch %s: %w", path, err)
		}

		n++
	}

	return n, nil
}

// Stop sends an exit task to every worker and waits for them to return.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	group := p.group
	already := p.stopped
	p.stopped = true
	p.mu.Unlock()

	if group == nil {
		return ErrNotStarted
	}

	if !already {
		for _, w := range p.workers {
			p.env.Bus.Emit(w.Topic(), core.ExitTask())
		}
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()

	select {
	case err := <-done:
		p.opts.Logger.Info("Worker pool stopped")
		return err
	case <-ctx.Done():
		return fmt.Errorf("stop worker pool: %w", ctx.Err())
	}
}
