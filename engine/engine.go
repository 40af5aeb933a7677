package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/WhitenWhiten/CodeTeam/brief"
	"github.com/WhitenWhiten/CodeTeam/bus"
	"github.com/WhitenWhiten/CodeTeam/convergence"
	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/generation"
	"github.com/WhitenWhiten/CodeTeam/logging"
	"github.com/WhitenWhiten/CodeTeam/planning"
	"github.com/WhitenWhiten/CodeTeam/repository"
	"github.com/WhitenWhiten/CodeTeam/retrieval"
	"github.com/WhitenWhiten/CodeTeam/schema"
	"github.com/WhitenWhiten/CodeTeam/testexec"
	"github.com/WhitenWhiten/CodeTeam/worker"
)

// Config defines the tuning parameters of a run.
//
// Example:
//
//	cfg := engine.DefaultConfig
//	cfg.MaxRounds = 4
//	cfg.Mode = worker.ModeCooperative
type Config struct {
	// Architects is the number of default proposers. Ignored when
	// Options.Proposers is set.
	Architects int

	// PlanRetries is the number of extra attempts each proposer gets.
	PlanRetries int

	// MaxRounds bounds the number of fix rounds.
	MaxRounds int

	// RoundTimeout bounds the wait for the completions of one round,
	// including the initial implementation round.
	RoundTimeout time.Duration

	// ShutdownTimeout bounds the wait for workers to exit.
	ShutdownTimeout time.Duration

	// Mode selects the worker scheduling model and the matching bus.
	Mode worker.Mode

	// AllowedLanguages is the set of languages a plan may use.
	AllowedLanguages []string

	// TestCommand overrides the command derived from the plan.
	TestCommand string

	// LenientSelection falls back to the first candidate on an unusable
	// selector answer instead of failing the run.
	LenientSelection bool

	// Workspace is the directory run repositories are created under, one
	// subdirectory per run id.
	Workspace string

	// ExcerptLimit bounds the failure excerpt of fix prompts in bytes.
	ExcerptLimit int

	// MaxConcurrentRuns limits the runs executing at once. Zero means
	// unlimited.
	MaxConcurrentRuns int
}

// DefaultConfig provides the default run configuration.
var DefaultConfig = Config{
	Architects:        2,
	PlanRetries:       1,
	MaxRounds:         2,
	RoundTimeout:      10 * time.Minute,
	ShutdownTimeout:   30 * time.Second,
	Mode:              worker.ModeThreaded,
	AllowedLanguages:  []string{"python", "go"},
	Workspace:         "./workspace",
	ExcerptLimit:      worker.DefaultExcerptLimit,
	MaxConcurrentRuns: 1,
}

// HistoryFactory opens the commit history of a run repository rooted at root.
type HistoryFactory func(ctx context.Context, root string) (repository.History, error)

// MemoryHistory keeps the commit history in process memory.
func MemoryHistory() HistoryFactory {
	return func(context.Context, string) (repository.History, error) {
		return repository.NewMemoryHistory(), nil
	}
}

// SQLiteHistory keeps the commit history in a SQLite database inside the
// repository state directory.
func SQLiteHistory() HistoryFactory {
	return func(_ context.Context, root string) (repository.History, error) {
		return repository.OpenSQLiteHistory(HistoryDBPath(root))
	}
}

// GitHistory records the commit history in a git repository at the root.
func GitHistory() HistoryFactory {
	return func(ctx context.Context, root string) (repository.History, error) {
		return repository.NewGitHistory(ctx, root)
	}
}

// HistoryDBPath returns where SQLiteHistory stores the history of root.
func HistoryDBPath(root string) string {
	return filepath.Join(root, repository.StateDir, "history.db")
}

// Options configures an Engine using the functional options pattern.
//
// Example:
//
//	e := engine.New(func(o *engine.Options) {
//	    o.Generator = generation.New(model, nil)
//	    o.Runner = testexec.NewShellRunner()
//	    o.History = engine.SQLiteHistory()
//	})
type Options struct {
	// Config contains the run parameters. Defaults to DefaultConfig.
	Config Config

	// Generator is the generation boundary. Defaults to the deterministic
	// mock generator.
	Generator core.Generator

	// Runner is the test-execution boundary. Defaults to a shell runner.
	Runner core.TestRunner

	// Retriever enriches planning prompts. Defaults to no retrieval.
	Retriever core.Retriever

	// Proposers overrides the default architects.
	Proposers []planning.Proposer

	// History opens the commit history of each run. Defaults to memory.
	History HistoryFactory

	// Extractor overrides the brief extractor chosen from the plan language.
	Extractor brief.Extractor

	// Callbacks receives lifecycle callbacks.
	Callbacks *CallbackManager

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Engine runs the complete pipeline for a question: plan, select, init_repo,
// init_tests, implement, converge and shutdown.
//
// Every run gets its own repository under the workspace, its own bus and its
// own worker pool, so an Engine can serve several runs. Runs are bounded by
// MaxConcurrentRuns and can be cancelled by id with Stop.
type Engine struct {
	opts      Options
	validator *schema.Validator
	runs      *semaphore.Weighted

	mu     sync.RWMutex
	active map[string]context.CancelFunc
}

// New creates an Engine with defaults for every unset option.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Generator == nil {
		opts.Generator = generation.NewMock()
	}

	if opts.Runner == nil {
		opts.Runner = testexec.NewShellRunner(func(o *testexec.Options) { o.Logger = opts.Logger })
	}

	if opts.Retriever == nil {
		opts.Retriever = retrieval.Nop{}
	}

	if opts.History == nil {
		opts.History = MemoryHistory()
	}

	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	e := &Engine{
		opts: opts,
		validator: schema.New(func(o *schema.Options) {
			if len(opts.Config.AllowedLanguages) > 0 {
				o.AllowedLanguages = opts.Config.AllowedLanguages
			}
		}),
		active: make(map[string]context.CancelFunc),
	}

	if opts.Config.MaxConcurrentRuns > 0 {
		e.runs = semaphore.NewWeighted(int64(opts.Config.MaxConcurrentRuns))
	}

	return e
}

// Callbacks returns the callback registry.
func (e *Engine) Callbacks() *CallbackManager { return e.opts.Callbacks }

// Result describes a finished or aborted run.
type Result struct {
	RunID    string
	RepoRoot string
	Plan     *core.DesignPlan
	// Rationale is the selector's explanation for the chosen plan.
	Rationale string
	// Candidates counts the viable proposals.
	Candidates int
	// Tests lists the test files written by QA.
	Tests []string
	// FailedTasks counts implement and fix tasks that reported an error.
	FailedTasks int
	Outcome     *convergence.Outcome
	Commits     int
	Stages      map[Stage]time.Duration
	Duration    time.Duration
}

// Success reports whether the final test run passed.
func (r *Result) Success() bool { return r != nil && r.Outcome.Success() }

// Run executes the pipeline for question. On failure it returns the partial
// result together with a *StageError naming the aborted stage.
func (e *Engine) Run(ctx context.Context, question string) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("engine: question is empty")
	}

	if e.runs != nil {
		if err := e.runs.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer e.runs.Release(1)
	}

	runID := core.NewID()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.active[runID] = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.active, runID)
		e.mu.Unlock()
	}()

	log := e.opts.Logger
	if rl, ok := log.(*logging.RunLogger); ok {
		log = rl.WithRun(runID)
	}

	r := &run{
		e:        e,
		id:       runID,
		question: question,
		log:      log,
		res:      &Result{RunID: runID, Stages: make(map[Stage]time.Duration)},
	}

	start := time.Now()

	log.Info("Run started", "run_id", runID, "mode", string(e.opts.Config.Mode))

	err := r.execute(ctx)
	r.cleanup(ctx)

	r.res.Duration = time.Since(start)

	if err != nil {
		log.Error("Run failed", "run_id", runID, "error", err.Error(), "duration_ms", r.res.Duration.Milliseconds())
		return r.res, err
	}

	log.Info("Run finished", "run_id", runID, "success", r.res.Success(), "repo", r.res.RepoRoot,
		"commits", r.res.Commits, "duration_ms", r.res.Duration.Milliseconds())

	return r.res, nil
}

// Stop cancels an active run.
func (e *Engine) Stop(runID string) error {
	e.mu.RLock()
	cancel, ok := e.active[runID]
	e.mu.RUnlock()

	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the ids of the runs in progress, sorted.
func (e *Engine) ActiveRuns() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// run holds the state of one pipeline execution.
type run struct {
	e        *Engine
	id       string
	question string
	log      logging.Logger
	res      *Result

	candidates []*core.DesignPlan
	history    repository.History
	repo       *repository.Manager
	qa         *convergence.QA
	bus        core.Bus
	pool       *worker.Pool
	stopped    bool
}

func (r *run) execute(ctx context.Context) error {
	steps := []struct {
		stage Stage
		fn    func(ctx context.Context) error
	}{
		{StagePlan, r.plan},
		{StageSelect, r.choose},
		{StageInitRepo, r.initRepo},
		{StageInitTests, r.initTests},
		{StageImplement, r.implement},
		{StageConverge, r.converge},
		{StageShutdown, r.shutdown},
	}

	for _, step := range steps {
		if err := r.stage(ctx, step.stage, step.fn); err != nil {
			return err
		}
	}

	return nil
}

func (r *run) callbackContext(s Stage) *CallbackContext {
	cc := &CallbackContext{RunID: r.id, Stage: s, Plan: r.res.Plan, Metadata: map[string]any{}}
	if r.repo != nil {
		cc.RepoRoot = r.repo.Root()
	}

	return cc
}

func (r *run) stage(ctx context.Context, s Stage, fn func(ctx context.Context) error) error {
	callbacks := r.e.opts.Callbacks

	if err := callbacks.ExecuteCallbacks(ctx, CallbackBeforeStage, r.callbackContext(s)); err != nil {
		return r.fail(ctx, s, fmt.Errorf("before_stage callback: %w", err))
	}

	start := time.Now()
	err := fn(ctx)
	dur := time.Since(start)

	r.res.Stages[s] = dur
	logging.Stage(r.log, string(s), dur, err)

	if err != nil {
		return r.fail(ctx, s, err)
	}

	if err := callbacks.ExecuteCallbacks(ctx, CallbackAfterStage, r.callbackContext(s)); err != nil {
		return r.fail(ctx, s, fmt.Errorf("after_stage callback: %w", err))
	}

	return nil
}

func (r *run) fail(ctx context.Context, s Stage, err error) error {
	se := &StageError{Stage: s, RunID: r.id, Err: err}

	if r.repo != nil {
		se.RepoRoot = r.repo.Root()

		if commits, lerr := r.repo.Log(context.WithoutCancel(ctx)); lerr == nil {
			se.Commits = len(commits)
			r.res.Commits = len(commits)
		}
	}

	cc := r.callbackContext(s)
	cc.Err = se

	if cbErr := r.e.opts.Callbacks.ExecuteCallbacks(context.WithoutCancel(ctx), CallbackOnError, cc); cbErr != nil {
		r.log.Warn("on_error callback failed", "run_id", r.id, "error", cbErr.Error())
	}

	return se
}

func (r *run) plan(ctx context.Context) error {
	cfg := r.e.opts.Config

	proposers := r.e.opts.Proposers
	if len(proposers) == 0 {
		for i := 0; i < max(cfg.Architects, 1); i++ {
			proposers = append(proposers, planning.NewArchitect(fmt.Sprintf("Architect-%d", i+1), r.e.opts.Generator,
				func(o *planning.ArchitectOptions) {
					o.Languages = r.e.validator.AllowedLanguages()
					o.Retriever = r.e.opts.Retriever
					o.Logger = r.log
				}))
		}
	}

	pool := planning.NewPool(func(o *planning.PoolOptions) {
		o.Validator = r.e.validator
		o.Logger = r.log
	})

	plans, err := pool.Collect(ctx, r.question, proposers, cfg.PlanRetries)
	if err != nil {
		return err
	}

	r.candidates = plans
	r.res.Candidates = len(plans)

	return nil
}

func (r *run) choose(ctx context.Context) error {
	selector := planning.NewSelector(r.e.opts.Generator, func(o *planning.SelectorOptions) {
		o.Lenient = r.e.opts.Config.LenientSelection
		o.Languages = r.e.validator.AllowedLanguages()
		o.Retriever = r.e.opts.Retriever
		o.Logger = r.log
	})

	plan, rationale, err := selector.Choose(ctx, r.question, r.candidates)
	if err != nil {
		return err
	}

	r.res.Plan = plan
	r.res.Rationale = rationale

	return nil
}

func (r *run) initRepo(ctx context.Context) error {
	root, err := filepath.Abs(filepath.Join(r.e.opts.Config.Workspace, r.id))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	r.res.RepoRoot = root

	history, err := r.e.opts.History(ctx, root)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}

	r.history = history

	repo, err := repository.New(root, repository.PermissionsFromPlan(r.res.Plan), func(o *repository.Options) {
		o.Validator = r.e.validator
		o.History = history
		o.Logger = r.log
	})
	if err != nil {
		return err
	}

	r.repo = repo

	return repo.InitStructure(ctx, r.res.Plan.RepoStructure)
}

func (r *run) initTests(ctx context.Context) error {
	r.qa = convergence.NewQA(r.res.Plan, r.e.opts.Generator, r.repo, r.e.opts.Runner, func(o *convergence.QAOptions) {
		o.Command = r.e.opts.Config.TestCommand
		o.Logger = r.log
	})

	tests, err := r.qa.InitTests(ctx)
	r.res.Tests = tests

	return err
}

func (r *run) implement(ctx context.Context) error {
	cfg := r.e.opts.Config

	if cfg.Mode == worker.ModeCooperative {
		r.bus = bus.NewChannels()
	} else {
		r.bus = bus.NewMailbox()
	}

	extractor := r.e.opts.Extractor
	if extractor == nil {
		extractor = brief.ForLanguage(r.res.Plan.TechStack.Language)
	}

	env := worker.Env{
		Plan:      r.res.Plan,
		Generator: r.e.opts.Generator,
		Repo:      r.repo,
		Briefs:    brief.NewStore(),
		Bus:       r.bus,
	}

	r.pool = worker.NewPool(env, func(o *worker.PoolOptions) {
		o.Mode = cfg.Mode
		o.Logger = r.log
		o.WorkerOptions = append(o.WorkerOptions, func(o *worker.Options) {
			o.Extractor = extractor
			if cfg.ExcerptLimit > 0 {
				o.ExcerptLimit = cfg.ExcerptLimit
			}
		})
	})
	r.pool.Start(ctx)

	n, err := r.pool.DispatchImplement(0)
	if err != nil {
		return err
	}

	done, err := bus.NewBarrier(r.bus, func(o *bus.BarrierOptions) { o.Logger = r.log }).
		Await(ctx, 0, n, cfg.RoundTimeout)
	r.countFailed(done)

	return err
}

func (r *run) countFailed(done []core.Completion) {
	for _, c := range done {
		if c.Failed() {
			r.res.FailedTasks++
		}
	}
}

func (r *run) converge(ctx context.Context) error {
	cfg := r.e.opts.Config

	loop := convergence.NewLoop(r.qa, r.pool, r.bus, r.res.Plan.Owners(), func(o *convergence.LoopOptions) {
		o.MaxRounds = cfg.MaxRounds
		o.RoundTimeout = cfg.RoundTimeout
		o.Logger = r.log
		o.OnRound = func(report convergence.RoundReport) {
			r.countFailed(report.Completions)

			cc := r.callbackContext(StageConverge)
			cc.Round = &report

			if err := r.e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnRound, cc); err != nil {
				r.log.Warn("on_round callback failed", "run_id", r.id, "error", err.Error())
			}
		}
	})

	out, err := loop.Run(ctx)
	r.res.Outcome = out

	return err
}

func (r *run) shutdown(ctx context.Context) error {
	if err := r.stopPool(ctx); err != nil {
		return err
	}

	commits, err := r.repo.Log(ctx)
	if err != nil {
		return err
	}

	r.res.Commits = len(commits)

	return nil
}

func (r *run) stopPool(ctx context.Context) error {
	if r.pool == nil || r.stopped {
		return nil
	}

	r.stopped = true

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.e.opts.Config.ShutdownTimeout)
	defer cancel()

	return r.pool.Stop(ctx)
}

// cleanup releases what an aborted run left behind. It never fails the run.
func (r *run) cleanup(ctx context.Context) {
	if err := r.stopPool(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("Worker pool did not stop cleanly", "run_id", r.id, "error", err.Error())
	}

	if ch, ok := r.bus.(*bus.Channels); ok {
		_ = ch.Close()
	}

	if r.history != nil {
		if err := r.history.Close(); err != nil {
			r.log.Warn("Closing history failed", "run_id", r.id, "error", err.Error())
		}
	}
}
