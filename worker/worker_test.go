package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhitenWhiten/CodeTeam/brief"
	"github.com/WhitenWhiten/CodeTeam/bus"
	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/internal/testutil"
	"github.com/WhitenWhiten/CodeTeam/repository"
)

const utilsV1 = `def greet(name: str) -> str:
    return "Hello, " + name
`

const utilsV2 = `def greet(name: str) -> str:
    """Return a greeting message."""
    return f"Hello, {name}!"


def shout(name: str) -> str:
    return greet(name).upper()
`

const mainV1 = `from app.utils import greet


def main(name: str = "World") -> str:
    return greet(name)
`

func newEnv(t *testing.T, gen core.Generator, b core.Bus) Env {
	t.Helper()

	plan := testutil.GreetingPlan()

	repo, err := repository.New(t.TempDir(), repository.PermissionsFromPlan(plan))
	require.NoError(t, err)
	require.NoError(t, repo.InitStructure(context.Background(), plan.RepoStructure))

	if b == nil {
		b = bus.NewMailbox()
	}

	return Env{Plan: plan, Generator: gen, Repo: repo, Briefs: brief.NewStore(), Bus: b}
}

func TestWorker_ProcessImplement(t *testing.T) {
	ctx := context.Background()
	gen := testutil.NewScriptedGenerator().Code("app/utils.py", utilsV1)
	env := newEnv(t, gen, nil)

	w := New("Dev-2", []string{"app/utils.py"}, env)
	require.NoError(t, w.Process(ctx, core.ImplementTask("app/utils.py", 1)))

	content, err := env.Repo.Read("app/utils.py")
	require.NoError(t, err)
	assert.Equal(t, utilsV1, content)

	b, ok := env.Briefs.Get("app/utils.py")
	require.True(t, ok)
	require.Len(t, b.Functions, 1)
	assert.Equal(t, "greet", b.Functions[0].Name)

	trail, err := env.Repo.AuditTrail(ctx)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "Dev-2", trail[0].Agent)
	assert.Equal(t, core.ChangeCreate, trail[0].Record.ChangeType)
	assert.Equal(t, "greet", trail[0].Record.FunctionsAdded[0].Name)
	assert.Empty(t, trail[0].Record.RelatedFilesBriefUsed)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.True(t, strings.HasPrefix(prompts[0], "# FILE_PATH: app/utils.py\n"))
	assert.Contains(t, prompts[0], "Interfaces:\n- function: def utils() -> str:")
}

func TestWorker_ToleratesMissingDependencyBrief(t *testing.T) {
	ctx := context.Background()
	gen := testutil.NewScriptedGenerator().Code("main.py", mainV1)
	env := newEnv(t, gen, nil)

	w := New("Dev-1", []string{"main.py"}, env)
	require.NoError(t, w.Process(ctx, core.ImplementTask("main.py", 1)))

	trail, err := env.Repo.AuditTrail(ctx)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Empty(t, trail[0].Record.RelatedFilesBriefUsed)
	assert.Contains(t, gen.Prompts()[0], "Briefs of other files (read-only):\n(none)")
}

func TestWorker_UsesDependencyBriefs(t *testing.T) {
	ctx := context.Background()
	gen := testutil.NewScriptedGenerator().Code("app/utils.py", utilsV1).Code("main.py", mainV1)
	env := newEnv(t, gen, nil)

	require.NoError(t, New("Dev-2", []string{"app/utils.py"}, env).Process(ctx, core.ImplementTask("app/utils.py", 1)))
	require.NoError(t, New("Dev-1", []string{"main.py"}, env).Process(ctx, core.ImplementTask("main.py", 1)))

	mainPrompt := gen.PromptsFor("main.py")[0]
	assert.Contains(t, mainPrompt, "* app/utils.py\n  - def greet(name: str) -> str:")
	assert.NotContains(t, mainPrompt, `"Hello, "`)

	trail, err := env.Repo.AuditTrail(ctx)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, []string{"app/utils.py"}, trail[1].Record.RelatedFilesBriefUsed)
}

func TestWorker_ProcessFix(t *testing.T) {
	ctx := context.Background()
	gen := testutil.NewScriptedGenerator().Code("app/utils.py", utilsV1, utilsV2)
	env := newEnv(t, gen, nil)

	w := New("Dev-2", []string{"app/utils.py"}, env, func(o *Options) { o.ExcerptLimit = 16 })
	require.NoError(t, w.Process(ctx, core.ImplementTask("app/utils.py", 1)))

	failure := core.Failure{FilePath: "tests/test_utils.py", Message: "AssertionError", Excerpt: strings.Repeat("x", 100) + "assert greet"}
	require.NoError(t, w.Process(ctx, core.FixTask("app/utils.py", 2, failure)))

	fixPrompt := gen.Prompts()[1]
	assert.Contains(t, fixPrompt, "Failure: AssertionError")
	assert.Contains(t, fixPrompt, "Reported at: tests/test_utils.py")
	assert.Contains(t, fixPrompt, "...(truncated)\nxxxxassert greet")
	assert.Contains(t, fixPrompt, "Current source:\n"+utilsV1)

	trail, err := env.Repo.AuditTrail(ctx)
	require.NoError(t, err)
	require.Len(t, trail, 2)

	rec := trail[1].Record
	assert.Equal(t, core.ChangeModify, rec.ChangeType)
	assert.Equal(t, "fix after test failure: AssertionError", rec.Rationale)
	require.Len(t, rec.FunctionsAdded, 1)
	assert.Equal(t, "shout", rec.FunctionsAdded[0].Name)
	assert.Empty(t, rec.FunctionsModified)
}

func TestWorker_ProcessErrors(t *testing.T) {
	ctx := context.Background()
	gen := testutil.NewScriptedGenerator().Code("app/utils.py", utilsV1)
	env := newEnv(t, gen, nil)

	w := New("Dev-1", []string{"main.py"}, env)

	assert.Error(t, w.Process(ctx, core.Task{ID: "t", Kind: core.TaskImplement}))
	assert.Error(t, w.Process(ctx, core.ImplementTask("tests/test_main.py", 1)))

	// Dev-1 does not own app/utils.py: the write is rejected.
	err := w.Process(ctx, core.ImplementTask("app/utils.py", 1))
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.True(t, env.Repo.IsPlaceholder("app/utils.py"))
}

func TestWorker_CommitsUnparseableSource(t *testing.T) {
	ctx := context.Background()
	plan := testutil.NewPlanBuilder("go-plan").Language("go").File("main.go", "Dev-1").Build()

	repo, err := repository.New(t.TempDir(), repository.PermissionsFromPlan(plan))
	require.NoError(t, err)
	require.NoError(t, repo.InitStructure(ctx, plan.RepoStructure))

	broken := "package main\nfunc main( {\n"
	gen := testutil.NewScriptedGenerator().Code("main.go", broken)
	env := Env{Plan: plan, Generator: gen, Repo: repo, Briefs: brief.NewStore(), Bus: bus.NewMailbox()}

	w := New("Dev-1", []string{"main.go"}, env)
	require.NoError(t, w.Process(ctx, core.ImplementTask("main.go", 1)))

	content, err := repo.Read("main.go")
	require.NoError(t, err)
	assert.Equal(t, broken, content)

	trail, err := repo.AuditTrail(ctx)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "main.go", trail[0].Record.FilePath)
	assert.Equal(t, core.ChangeCreate, trail[0].Record.ChangeType)
	assert.Empty(t, trail[0].Record.FunctionsAdded)

	b, ok := env.Briefs.Get("main.go")
	require.True(t, ok)
	assert.Empty(t, b.Functions)
}

func TestWorker_KeepsBriefWhenFixIsUnparseable(t *testing.T) {
	ctx := context.Background()
	plan := testutil.NewPlanBuilder("go-plan").Language("go").File("main.go", "Dev-1").Build()

	repo, err := repository.New(t.TempDir(), repository.PermissionsFromPlan(plan))
	require.NoError(t, err)
	require.NoError(t, repo.InitStructure(ctx, plan.RepoStructure))

	good := "package main\n\nfunc Run() int { return 1 }\n"
	gen := testutil.NewScriptedGenerator().Code("main.go", good, "package main\nfunc Run( {\n")
	env := Env{Plan: plan, Generator: gen, Repo: repo, Briefs: brief.NewStore(), Bus: bus.NewMailbox()}

	w := New("Dev-1", []string{"main.go"}, env)
	require.NoError(t, w.Process(ctx, core.ImplementTask("main.go", 1)))
	require.NoError(t, w.Process(ctx, core.FixTask("main.go", 1, core.Failure{FilePath: "main.go", Message: "boom"})))

	trail, err := repo.AuditTrail(ctx)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, core.ChangeModify, trail[1].Record.ChangeType)
	assert.Empty(t, trail[1].Record.FunctionsRemoved)

	b, ok := env.Briefs.Get("main.go")
	require.True(t, ok)
	require.Len(t, b.Functions, 1)
	assert.Equal(t, "Run", b.Functions[0].Name)
}

type failingHistory struct {
	*repository.MemoryHistory
	fail atomic.Bool
}

func (h *failingHistory) Append(ctx context.Context, c repository.Commit) (repository.Commit, error) {
	if h.fail.Load() {
		return repository.Commit{}, errors.New("history unavailable")
	}

	return h.MemoryHistory.Append(ctx, c)
}

func TestWorker_RestoresContentWhenCommitFails(t *testing.T) {
	ctx := context.Background()
	plan := testutil.GreetingPlan()
	history := &failingHistory{MemoryHistory: repository.NewMemoryHistory()}

	repo, err := repository.New(t.TempDir(), repository.PermissionsFromPlan(plan), func(o *repository.Options) {
		o.History = history
	})
	require.NoError(t, err)
	require.NoError(t, repo.InitStructure(ctx, plan.RepoStructure))

	gen := testutil.NewScriptedGenerator().Code("app/utils.py", utilsV1)
	env := Env{Plan: plan, Generator: gen, Repo: repo, Briefs: brief.NewStore(), Bus: bus.NewMailbox()}

	history.fail.Store(true)

	w := New("Dev-2", []string{"app/utils.py"}, env)
	err = w.Process(ctx, core.ImplementTask("app/utils.py", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history unavailable")

	assert.True(t, repo.IsPlaceholder("app/utils.py"))
	_, ok := env.Briefs.Get("app/utils.py")
	assert.False(t, ok)
}

func TestWorker_RunEmitsCompletionForEveryTask(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	boom := errors.New("model down")
	gen := testutil.NewScriptedGenerator().Code("app/utils.py", utilsV1).Fail("main.py", boom)
	env := newEnv(t, gen, nil)

	w := New("Dev-1", []string{"main.py", "app/utils.py"}, env)
	assert.Equal(t, StateIdle, w.State())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	env.Bus.Emit(w.Topic(), "noise")
	env.Bus.Emit(w.Topic(), core.ImplementTask("main.py", 1))
	env.Bus.Emit(w.Topic(), core.ImplementTask("app/utils.py", 1))
	env.Bus.Emit(w.Topic(), core.Task{ID: "odd", Kind: core.TaskKind(42), Path: "main.py", Round: 1})
	env.Bus.Emit(w.Topic(), core.ExitTask())

	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, w.State())

	got, err := bus.NewBarrier(env.Bus).Await(ctx, 1, 3, time.Second)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "main.py", got[0].Path)
	assert.ErrorIs(t, got[0].Err, boom)
	assert.False(t, got[1].Failed())
	assert.True(t, got[2].Failed())
	assert.Equal(t, "Dev-1", got[1].WorkerID)
}

func TestWorker_RunStopsOnContext(t *testing.T) {
	env := newEnv(t, testutil.NewScriptedGenerator(), nil)
	w := New("Dev-1", []string{"main.py"}, env)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
	assert.Equal(t, StateStopped, w.State())
}

func TestPool_Modes(t *testing.T) {
	for _, mode := range []Mode{ModeThreaded, ModeCooperative} {
		t.Run(string(mode), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var b core.Bus = bus.NewMailbox()
			if mode == ModeCooperative {
				ch := bus.NewChannels()
				t.Cleanup(func() { _ = ch.Close() })
				b = ch
			}

			var inFlight, maxInFlight atomic.Int32

			gen := testutil.NewScriptedGenerator().Code("app/utils.py", utilsV1).Code("main.py", mainV1)
			gen.Hook = func(string) {
				n := inFlight.Add(1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				inFlight.Add(-1)
			}

			env := newEnv(t, gen, b)
			pool := NewPool(env, func(o *PoolOptions) { o.Mode = mode })
			require.Len(t, pool.Workers(), 2)

			owner, ok := pool.Owner("app/utils.py")
			require.True(t, ok)
			assert.Equal(t, "Dev-2", owner)

			pool.Start(ctx)

			n, err := pool.DispatchImplement(1)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			got, err := bus.NewBarrier(b).Await(ctx, 1, n, 2*time.Second)
			require.NoError(t, err)

			for _, c := range got {
				assert.NoError(t, c.Err)
			}

			// Generation calls overlap in both modes: the token is given up
			// while a call is in flight.
			assert.Equal(t, int32(2), maxInFlight.Load())

			require.NoError(t, pool.Stop(ctx))
			require.NoError(t, pool.Stop(ctx))

			for _, w := range pool.Workers() {
				assert.Equal(t, StateStopped, w.State())
			}
		})
	}
}

func TestPool_DispatchAndStopErrors(t *testing.T) {
	env := newEnv(t, testutil.NewScriptedGenerator(), nil)
	pool := NewPool(env)

	err := pool.Dispatch(core.ImplementTask("tests/test_main.py", 1))
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	assert.ErrorIs(t, pool.Stop(context.Background()), ErrNotStarted)
}

func TestTokenScheduler(t *testing.T) {
	assert.Nil(t, NewScheduler(ModeThreaded))

	s := NewScheduler(ModeCooperative)
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Acquire(ctx))

	s.Release()
	require.NoError(t, s.Acquire(context.Background()))
	s.Release()
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "unbounded", truncate("unbounded", 0))
	assert.Equal(t, "...(truncated)\n89", truncate("0123456789", 2))

	// "é" is two bytes; a cut inside it moves to the next rune.
	got := truncate("aéé", 3)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "...(truncated)\né", got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "processing", StateProcessing.String())
	assert.Equal(t, "State(9)", State(9).String())
}
