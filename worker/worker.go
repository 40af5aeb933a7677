package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/WhitenWhiten/CodeTeam/brief"
	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
	"github.com/WhitenWhiten/CodeTeam/repository"
)

// DefaultExcerptLimit bounds the failure excerpt embedded in fix prompts.
const DefaultExcerptLimit = 4000

// State is the lifecycle state of a worker.
type State int32

const (
	// StateIdle waits for the next task.
	StateIdle State = iota
	// StateProcessing handles an implement or fix task.
	StateProcessing
	// StateStopped has consumed an exit task or lost its context.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Env holds the collaborators shared by all workers of a run.
type Env struct {
	Plan      *core.DesignPlan
	Generator core.Generator
	Repo      *repository.Manager
	Briefs    core.BriefStore
	Bus       core.Bus
}

// Options configures a Worker.
type Options struct {
	// ExcerptLimit bounds the failure excerpt of fix prompts in bytes.
	ExcerptLimit int
	// Extractor derives briefs from generated source. Defaults to the
	// extractor for the plan language.
	Extractor brief.Extractor
	// Scheduler, when set, serializes processing across workers.
	Scheduler Scheduler
	Logger    logging.Logger
}

// Worker is one developer agent bound to a fixed set of files.
type Worker struct {
	id    string
	owned map[string]bool
	env   Env
	opts  Options
	state atomic.Int32
}

// New creates a worker owning the given paths.
func New(id string, owned []string, env Env, optFns ...func(o *Options)) *Worker {
	opts := Options{
		ExcerptLimit: DefaultExcerptLimit,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if opts.Extractor == nil {
		opts.Extractor = brief.ForLanguage(env.Plan.TechStack.Language)
	}

	set := make(map[string]bool, len(owned))
	for _, p := range owned {
		set[p] = true
	}

	return &Worker{id: id, owned: set, env: env, opts: opts}
}

// ID returns the developer id.
func (w *Worker) ID() string { return w.id }

// Topic returns the task topic the worker consumes.
func (w *Worker) Topic() string { return core.WorkerTopic(w.id) }

// Owns reports whether the worker owns path.
func (w *Worker) Owns(path string) bool { return w.owned[path] }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Run consumes tasks until an exit task arrives or ctx is done. It returns
// nil on exit and the context error otherwise.
func (w *Worker) Run(ctx context.Context) error {
	defer w.state.Store(int32(StateStopped))

	log := w.opts.Logger

	for {
		payload, err := w.env.Bus.Take(ctx, w.Topic(), 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return fmt.Errorf("worker %s: %w", w.id, err)
		}

		task, ok := payload.(core.Task)
		if !ok {
			log.Warn("Discarding unexpected payload", "worker_id", w.id, "type", fmt.Sprintf("%T", payload))
			continue
		}

		switch task.Kind {
		case core.TaskExit:
			log.Debug("Worker exiting", "worker_id", w.id)
			return nil
		case core.TaskImplement, core.TaskFix:
			c, err := w.runTask(ctx, task)
			w.env.Bus.Emit(core.TopicDone, c)

			if err != nil {
				return err
			}
		default:
			w.env.Bus.Emit(core.TopicDone, w.completion(task, fmt.Errorf("unknown task kind %s", task.Kind)))
		}
	}
}

// runTask processes one task under the scheduling token. The returned error
// is set only when the token could not be acquired because ctx ended.
func (w *Worker) runTask(ctx context.Context, task core.Task) (core.Completion, error) {
	if s := w.opts.Scheduler; s != nil {
		if err := s.Acquire(ctx); err != nil {
			return w.completion(task, err), err
		}

		defer s.Release()
	}

	w.state.Store(int32(StateProcessing))
	defer w.state.Store(int32(StateIdle))

	start := time.Now()
	err := w.Process(ctx, task)
	logging.Task(w.opts.Logger, w.id, task.Kind.String(), task.Path, time.Since(start), err)

	return w.completion(task, err), nil
}

func (w *Worker) completion(task core.Task, err error) core.Completion {
	return core.Completion{
		TaskID:   task.ID,
		WorkerID: w.id,
		Path:     task.Path,
		Kind:     task.Kind,
		Round:    task.Round,
		Err:      err,
	}
}

// Process implements or fixes the file named by task: it gathers the briefs
// of non-owned dependencies, generates the file, writes and commits it with
// an audit record, and publishes the new brief. A failed commit restores the
// previous content.
func (w *Worker) Process(ctx context.Context, task core.Task) error {
	if task.Path == "" {
		return errors.New("task without path")
	}

	spec, ok := w.env.Plan.Spec(task.Path)
	if !ok {
		return fmt.Errorf("no file spec for %s", task.Path)
	}

	deps, used := w.collectBriefs(spec)

	data := promptData{Spec: spec, Language: w.env.Plan.TechStack.Language, Briefs: deps}

	kind := core.ChangeCreate
	if w.env.Repo.Exists(task.Path) && !w.env.Repo.IsPlaceholder(task.Path) {
		kind = core.ChangeModify
	}

	if task.Kind == core.TaskFix && task.Diagnostic != nil {
		data.Diagnostic = task.Diagnostic
		data.Excerpt = truncate(task.Diagnostic.Excerpt, w.opts.ExcerptLimit)

		if kind == core.ChangeModify {
			current, err := w.env.Repo.Read(task.Path)
			if err != nil {
				return fmt.Errorf("read %s: %w", task.Path, err)
			}

			data.Current = current
		}
	}

	prompt, err := buildPrompt(data)
	if err != nil {
		return err
	}

	code, err := w.generate(ctx, prompt)
	if err != nil {
		return err
	}

	var prev *core.InterfaceBrief
	if kind == core.ChangeModify {
		if b, ok := w.env.Briefs.Get(task.Path); ok {
			prev = &b
		}
	}

	// Unparseable output is still committed; the last known brief stays
	// published.
	next, err := w.opts.Extractor.Extract(task.Path, code)
	if err != nil {
		w.opts.Logger.Warn("Brief extraction failed", "worker_id", w.id, "path", task.Path, "error", err.Error())

		next = brief.Empty(task.Path)
		if prev != nil {
			next = *prev
		}
	}

	rec, err := core.NewAuditRecord(task.Path, kind, rationale(task), used)
	if err != nil {
		return err
	}

	brief.Diff(prev, next, &rec)

	before, err := w.env.Repo.Read(task.Path)
	if err != nil && w.env.Repo.Exists(task.Path) {
		return fmt.Errorf("read %s: %w", task.Path, err)
	}

	if err := w.env.Repo.Write(task.Path, code, w.id); err != nil {
		return err
	}

	if _, err := w.env.Repo.Commit(ctx, task.Path, rec, w.id); err != nil {
		if rerr := w.env.Repo.Write(task.Path, before, w.id); rerr != nil {
			w.opts.Logger.Error("Restore after failed commit", "worker_id", w.id, "path", task.Path, "error", rerr.Error())
		}

		return fmt.Errorf("commit %s: %w", task.Path, err)
	}

	w.env.Briefs.Put(next)

	return nil
}

// generate releases the scheduling token for the duration of the call.
func (w *Worker) generate(ctx context.Context, prompt string) (string, error) {
	s := w.opts.Scheduler
	if s == nil {
		return w.env.Generator.GenerateText(ctx, prompt)
	}

	s.Release()
	code, genErr := w.env.Generator.GenerateText(ctx, prompt)

	// Reacquire even on failure; runTask releases on return.
	if err := s.Acquire(context.WithoutCancel(ctx)); err != nil {
		return "", err
	}

	return code, genErr
}

// collectBriefs returns the available briefs of dependencies owned by other
// workers. Missing briefs are skipped.
func (w *Worker) collectBriefs(spec core.FileSpec) ([]core.InterfaceBrief, []string) {
	var (
		briefs []core.InterfaceBrief
		used   = []string{}
	)

	for _, dep := range spec.Dependencies {
		if w.owned[dep] {
			continue
		}

		b, ok := w.env.Briefs.Get(dep)
		if !ok {
			w.opts.Logger.Debug("Dependency brief not available", "worker_id", w.id, "path", spec.Path, "dependency", dep)
			continue
		}

		briefs = append(briefs, b)
		used = append(used, dep)
	}

	return briefs, used
}

func rationale(task core.Task) string {
	if task.Kind == core.TaskFix {
		if task.Diagnostic != nil && task.Diagnostic.Message != "" {
			return "fix after test failure: " + task.Diagnostic.Message
		}

		return "fix after test failure"
	}

	return "initial implementation based on file spec"
}
