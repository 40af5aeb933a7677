package convergence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhitenWhiten/CodeTeam/brief"
	"github.com/WhitenWhiten/CodeTeam/bus"
	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/internal/testutil"
	"github.com/WhitenWhiten/CodeTeam/repository"
	"github.com/WhitenWhiten/CodeTeam/worker"
)

var greetingOwners = map[string]string{"main.py": "Dev-1", "app/utils.py": "Dev-2"}

func TestAttribute(t *testing.T) {
	t.Run("owned failure goes to its owner", func(t *testing.T) {
		fixes := Attribute([]core.Failure{{FilePath: "app/utils.py", Message: "AssertionError"}}, greetingOwners)
		require.Len(t, fixes, 1)
		assert.Equal(t, "Dev-2", fixes[0].Owner)
		assert.Equal(t, "app/utils.py", fixes[0].Path)
		assert.False(t, fixes[0].Broadcast)
	})

	t.Run("unowned failure is broadcast", func(t *testing.T) {
		fixes := Attribute([]core.Failure{{FilePath: "tests/test_main.py", Message: "ImportError"}}, greetingOwners)
		require.Len(t, fixes, 2)
		assert.Equal(t, "app/utils.py", fixes[0].Path)
		assert.Equal(t, "main.py", fixes[1].Path)
		assert.True(t, fixes[0].Broadcast)
		assert.True(t, fixes[1].Broadcast)
	})

	t.Run("duplicates are merged", func(t *testing.T) {
		fixes := Attribute([]core.Failure{
			{FilePath: "app/utils.py", Message: "first"},
			{FilePath: "", Message: "timeout"},
			{FilePath: "app/utils.py", Message: "first", Excerpt: "E   assert 1 == 2"},
		}, greetingOwners)

		require.Len(t, fixes, 2)
		assert.Equal(t, "app/utils.py", fixes[0].Path)
		assert.Len(t, fixes[0].Failures, 3)
		assert.False(t, fixes[0].Broadcast)

		d := fixes[0].Diagnostic()
		assert.Equal(t, "app/utils.py", d.FilePath)
		assert.Equal(t, "first; timeout", d.Message)
		assert.Equal(t, "E   assert 1 == 2", d.Excerpt)

		assert.Equal(t, "main.py", fixes[1].Path)
		assert.True(t, fixes[1].Broadcast)
	})

	t.Run("nothing to route", func(t *testing.T) {
		assert.Empty(t, Attribute(nil, greetingOwners))
		assert.Empty(t, Attribute([]core.Failure{{Message: "boom"}}, map[string]string{}))
	})
}

func newRepo(t *testing.T, plan *core.DesignPlan) *repository.Manager {
	t.Helper()

	repo, err := repository.New(t.TempDir(), repository.PermissionsFromPlan(plan))
	require.NoError(t, err)
	require.NoError(t, repo.InitStructure(context.Background(), plan.RepoStructure))

	return repo
}

func TestQA_InitTests(t *testing.T) {
	ctx := context.Background()
	plan := testutil.GreetingPlan()
	repo := newRepo(t, plan)

	gen := testutil.NewScriptedGenerator().Files(map[string]string{
		"tests/test_main.py":    "from main import main\n\ndef test_main():\n    assert main()\n",
		"./tests/test_utils.py": "def test_utils():\n    pass\n",
		"tests/test_extra.py":   "undeclared",
		"main.py":               "print('hijack')",
		"../escape.py":          "nope",
	})

	qa := NewQA(plan, gen, repo, testutil.NewScriptedRunner())

	written, err := qa.InitTests(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tests/test_main.py", "tests/test_utils.py"}, written)
	assert.Equal(t, []string{"tests/test_main.py", "tests/test_utils.py"}, repo.Permissions().Owned(core.QAOwner))

	content, err := repo.Read("tests/test_main.py")
	require.NoError(t, err)
	assert.Contains(t, content, "def test_main")

	assert.True(t, repo.IsPlaceholder("main.py"))
	assert.False(t, repo.Exists("tests/test_extra.py"))

	commits, err := repo.Log(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "[QA] add tests", commits[1].Message)
	assert.Equal(t, []string{"tests/test_main.py", "tests/test_utils.py"}, commits[1].Paths)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Write only these files: tests/test_main.py, tests/test_utils.py.")
	assert.Contains(t, prompts[0], `"id": "plan-greeting"`)
}

func TestQA_InitTests_Errors(t *testing.T) {
	ctx := context.Background()

	plan := testutil.NewPlanBuilder("no-tests").File("main.py", "Dev-1").Build()
	gen := testutil.NewScriptedGenerator()

	written, err := NewQA(plan, gen, newRepo(t, plan), nil).InitTests(ctx)
	require.NoError(t, err)
	assert.Empty(t, written)
	assert.Empty(t, gen.Prompts())

	plan = testutil.GreetingPlan()
	gen = testutil.NewScriptedGenerator().FailFiles(core.ErrStructuredGenerationFailed)

	_, err = NewQA(plan, gen, newRepo(t, plan), nil).InitTests(ctx)
	assert.ErrorIs(t, err, core.ErrStructuredGenerationFailed)
}

func TestQA_RunTests(t *testing.T) {
	plan := testutil.GreetingPlan()
	repo := newRepo(t, plan)

	qa := NewQA(plan, nil, repo, testutil.NewScriptedRunner(testutil.Fail(core.Failure{Message: "boom"})))
	assert.Equal(t, "python -m pytest -q", qa.Command())

	res, err := qa.RunTests(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Success)

	qa = NewQA(plan, nil, repo, nil, func(o *QAOptions) { o.Command = "make test" })
	assert.Equal(t, "make test", qa.Command())
}

func TestDefaultTestCommand(t *testing.T) {
	assert.Equal(t, "python -m pytest -q", DefaultTestCommand(testutil.GreetingPlan()))
	assert.Equal(t, "go test ./...", DefaultTestCommand(testutil.NewPlanBuilder("g").Language("go").Build()))
}

type testerFunc func(ctx context.Context) (core.RunResult, error)

func (f testerFunc) RunTests(ctx context.Context) (core.RunResult, error) { return f(ctx) }

// scriptedTester serves results in order and repeats the last one.
func scriptedTester(results ...core.RunResult) (Tester, *testutil.ScriptedRunner) {
	r := testutil.NewScriptedRunner(results...)
	return testerFunc(func(ctx context.Context) (core.RunResult, error) { return r.RunTests(ctx, "", "") }), r
}

// completingDispatcher records tasks and, unless silent, answers each one
// with a completion on the done topic.
type completingDispatcher struct {
	mu     sync.Mutex
	bus    core.Bus
	tasks  []core.Task
	silent bool
	err    error
}

func (d *completingDispatcher) Dispatch(task core.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}

	d.tasks = append(d.tasks, task)

	if !d.silent {
		d.bus.Emit(core.TopicDone, core.Completion{TaskID: task.ID, Path: task.Path, Kind: task.Kind, Round: task.Round})
	}

	return nil
}

func TestLoop_StopsOnSuccess(t *testing.T) {
	b := bus.NewMailbox()
	tester, runner := scriptedTester(testutil.Pass())
	d := &completingDispatcher{bus: b}

	var reports []RoundReport

	out, err := NewLoop(tester, d, b, greetingOwners, func(o *LoopOptions) {
		o.OnRound = func(r RoundReport) { reports = append(reports, r) }
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopSuccess, out.Reason)
	assert.True(t, out.Success())
	assert.Zero(t, out.Rounds)
	assert.Equal(t, 1, runner.Runs())
	assert.Empty(t, d.tasks)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Round)
	assert.Equal(t, 1, b.Len(core.TopicQAResult))
}

func TestLoop_DispatchesOneFixToOwner(t *testing.T) {
	b := bus.NewMailbox()
	tester, runner := scriptedTester(
		testutil.Fail(core.Failure{FilePath: "app/utils.py", Message: "AssertionError"}),
		testutil.Pass(),
	)
	d := &completingDispatcher{bus: b}

	out, err := NewLoop(tester, d, b, greetingOwners).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopSuccess, out.Reason)
	assert.Equal(t, 1, out.Rounds)
	assert.Equal(t, 2, runner.Runs())

	require.Len(t, d.tasks, 1)
	assert.Equal(t, core.TaskFix, d.tasks[0].Kind)
	assert.Equal(t, "app/utils.py", d.tasks[0].Path)
	assert.Equal(t, 1, d.tasks[0].Round)
	assert.Equal(t, "AssertionError", d.tasks[0].Diagnostic.Message)

	require.Len(t, out.Reports, 2)
	assert.Len(t, out.Reports[0].Completions, 1)
	assert.Zero(t, b.Len(core.TopicDone))
}

func TestLoop_Broadcast(t *testing.T) {
	b := bus.NewMailbox()
	tester, _ := scriptedTester(testutil.Fail(core.Failure{Message: "timeout"}), testutil.Pass())
	d := &completingDispatcher{bus: b}

	out, err := NewLoop(tester, d, b, greetingOwners).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopSuccess, out.Reason)

	require.Len(t, d.tasks, 2)
	assert.Equal(t, "app/utils.py", d.tasks[0].Path)
	assert.Equal(t, "main.py", d.tasks[1].Path)
}

func TestLoop_BudgetExhausted(t *testing.T) {
	b := bus.NewMailbox()
	tester, runner := scriptedTester(testutil.Fail(core.Failure{FilePath: "main.py", Message: "still failing"}))
	d := &completingDispatcher{bus: b}

	out, err := NewLoop(tester, d, b, greetingOwners, func(o *LoopOptions) { o.MaxRounds = 3 }).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopBudget, out.Reason)
	assert.False(t, out.Success())
	assert.Equal(t, 3, out.Rounds)
	assert.Equal(t, 4, runner.Runs())
	require.Len(t, d.tasks, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{d.tasks[0].Round, d.tasks[1].Round, d.tasks[2].Round})

	tester, runner = scriptedTester(testutil.Fail(core.Failure{FilePath: "main.py", Message: "x"}))
	out, err = NewLoop(tester, d, b, greetingOwners, func(o *LoopOptions) {
		o.MaxRounds = 1
		o.VerifyFinal = false
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopBudget, out.Reason)
	assert.Equal(t, 1, runner.Runs())
}

func TestLoop_NoActionableFailures(t *testing.T) {
	b := bus.NewMailbox()
	tester, _ := scriptedTester(testutil.Fail())
	d := &completingDispatcher{bus: b}

	out, err := NewLoop(tester, d, b, greetingOwners).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopNoFixes, out.Reason)
	assert.Empty(t, d.tasks)
}

func TestLoop_RoundTimeout(t *testing.T) {
	b := bus.NewMailbox()
	tester, _ := scriptedTester(testutil.Fail(core.Failure{FilePath: "main.py", Message: "x"}))
	d := &completingDispatcher{bus: b, silent: true}

	out, err := NewLoop(tester, d, b, greetingOwners, func(o *LoopOptions) {
		o.RoundTimeout = 30 * time.Millisecond
	}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRoundTimeout)
	assert.True(t, IsRoundTimeout(err))
	assert.Equal(t, 1, out.Rounds)
}

func TestLoop_Errors(t *testing.T) {
	b := bus.NewMailbox()

	tester, _ := scriptedTester(testutil.Fail(core.Failure{FilePath: "main.py", Message: "x"}))
	d := &completingDispatcher{bus: b, err: &core.PermissionError{Path: "main.py", Reason: "path has no owner"}}

	_, err := NewLoop(tester, d, b, greetingOwners).Run(context.Background())
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	runErr := errors.New("exec: pytest not found")
	failing := testerFunc(func(context.Context) (core.RunResult, error) { return core.RunResult{}, runErr })

	_, err = NewLoop(failing, d, b, greetingOwners).Run(context.Background())
	assert.ErrorIs(t, err, runErr)
}

const utilsBroken = `def greet(name: str) -> str:
    return "Hi"
`

const utilsFixed = `def greet(name: str) -> str:
    return f"Hello, {name}!"
`

const mainSrc = `from app.utils import greet


def main(name: str = "World") -> str:
    return greet(name)
`

func TestLoop_WithWorkerPool(t *testing.T) {
	for _, mode := range []worker.Mode{worker.ModeThreaded, worker.ModeCooperative} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			plan := testutil.GreetingPlan()
			repo := newRepo(t, plan)

			var b core.Bus = bus.NewMailbox()
			if mode == worker.ModeCooperative {
				ch := bus.NewChannels()
				t.Cleanup(func() { _ = ch.Close() })
				b = ch
			}

			gen := testutil.NewScriptedGenerator().
				Code("app/utils.py", utilsBroken, utilsFixed).
				Code("main.py", mainSrc)

			pool := worker.NewPool(worker.Env{Plan: plan, Generator: gen, Repo: repo, Briefs: brief.NewStore(), Bus: b},
				func(o *worker.PoolOptions) { o.Mode = mode })
			pool.Start(ctx)

			n, err := pool.DispatchImplement(0)
			require.NoError(t, err)

			done, err := bus.NewBarrier(b).Await(ctx, 0, n, 5*time.Second)
			require.NoError(t, err)
			require.Len(t, done, 2)

			tester, runner := scriptedTester(
				testutil.Fail(core.Failure{FilePath: "app/utils.py", Message: "assert 'Hi' == 'Hello, World!'"}),
				testutil.Pass(),
			)

			out, err := NewLoop(tester, pool, b, plan.Owners(), func(o *LoopOptions) {
				o.RoundTimeout = 5 * time.Second
			}).Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, StopSuccess, out.Reason)
			assert.Equal(t, 2, runner.Runs())

			content, err := repo.Read("app/utils.py")
			require.NoError(t, err)
			assert.Equal(t, utilsFixed, content)

			assert.Len(t, gen.PromptsFor("app/utils.py"), 2)
			assert.Len(t, gen.PromptsFor("main.py"), 1)

			trail, err := repo.AuditTrail(ctx)
			require.NoError(t, err)
			require.Len(t, trail, 3)
			last := trail[2]
			assert.Equal(t, "Dev-2", last.Agent)
			assert.Equal(t, core.ChangeModify, last.Record.ChangeType)
			assert.Contains(t, last.Record.Rationale, "fix after test failure")

			require.NoError(t, pool.Stop(ctx))
		})
	}
}
