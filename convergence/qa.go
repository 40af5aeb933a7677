package convergence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/internal/util"
	"github.com/WhitenWhiten/CodeTeam/logging"
	"github.com/WhitenWhiten/CodeTeam/repository"
)

var testsPrompt = util.MustParse("qa_tests", `You are QA. Write a {{default "unit" .TestFramework}} test suite for the design specification below.
Rules:
- Write only these files: {{join ", " .Files}}.
- Test the declared interfaces only; import them from the paths given in the specification.
- Output strict JSON: {"tests": {"{{index .Files 0}}": "<content>", ...}}

Specification:
{{json .Plan}}
`)

// DefaultTestCommand returns the command used to run the suite of plan.
func DefaultTestCommand(plan *core.DesignPlan) string {
	lang := strings.ToLower(plan.TechStack.Language)
	framework := strings.ToLower(plan.TechStack.TestFramework)

	switch {
	case lang == "go" || lang == "golang" || framework == "go test":
		return "go test ./..."
	default:
		return "python -m pytest -q"
	}
}

// QAOptions configures a QA.
type QAOptions struct {
	// Command runs the suite; defaults to DefaultTestCommand.
	Command string
	Logger  logging.Logger
}

// QA owns the files under tests/ and runs the suite.
type QA struct {
	plan   *core.DesignPlan
	gen    core.Generator
	repo   *repository.Manager
	runner core.TestRunner
	opts   QAOptions
}

// NewQA creates the QA role for plan.
func NewQA(plan *core.DesignPlan, gen core.Generator, repo *repository.Manager, runner core.TestRunner, optFns ...func(o *QAOptions)) *QA {
	opts := QAOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Command == "" {
		opts.Command = DefaultTestCommand(plan)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &QA{plan: plan, gen: gen, repo: repo, runner: runner, opts: opts}
}

// Command returns the test command.
func (q *QA) Command() string { return q.opts.Command }

// InitTests grants QA the declared test files, generates their content,
// writes the files it may write and commits them in one bulk commit.
// Generated paths outside the declared test files are dropped. It returns
// the written paths sorted.
func (q *QA) InitTests(ctx context.Context) ([]string, error) {
	declared := q.plan.TestPaths()
	if len(declared) == 0 {
		q.opts.Logger.Warn("No test files declared; skipping test generation")
		return nil, nil
	}

	if err := q.repo.Permissions().Grant(core.QAOwner, declared...); err != nil {
		return nil, err
	}

	prompt, err := util.Render(testsPrompt, struct {
		TestFramework string
		Files         []string
		Plan          *core.DesignPlan
	}{q.plan.TechStack.TestFramework, declared, q.plan})
	if err != nil {
		return nil, err
	}

	files, err := q.gen.GenerateFiles(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate tests: %w", err)
	}

	allowed := make(map[string]struct{}, len(declared))
	for _, p := range declared {
		allowed[p] = struct{}{}
	}

	var written []string

	for raw, content := range files {
		p, err := repository.NormalizePath(raw)
		if err != nil {
			q.opts.Logger.Warn("Dropping generated test file", "path", raw, "error", err.Error())
			continue
		}

		if _, ok := allowed[p]; !ok {
			q.opts.Logger.Warn("Dropping undeclared test file", "path", p)
			continue
		}

		if err := q.repo.Write(p, content, core.QAOwner); err != nil {
			return written, err
		}

		written = append(written, p)
	}

	sort.Strings(written)

	if _, err := q.repo.CommitAll(ctx, "[QA] add tests"); err != nil {
		return written, err
	}

	q.opts.Logger.Info("Tests initialized", "files", len(written), "declared", len(declared))

	return written, nil
}

// RunTests runs the suite in the repository root.
func (q *QA) RunTests(ctx context.Context) (core.RunResult, error) {
	res, err := q.runner.RunTests(ctx, q.repo.Root(), q.opts.Command)
	if err != nil {
		return res, fmt.Errorf("run tests: %w", err)
	}

	q.opts.Logger.Info("Tests finished", "success", res.Success, "failures", len(res.Failures))

	return res, nil
}
