package testutil

import (
	"context"
	"sync"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// ScriptedRunner is a core.TestRunner returning scripted results in order
// and repeating the last one.
type ScriptedRunner struct {
	mu      sync.Mutex
	results []core.RunResult
	runs    int
}

var _ core.TestRunner = (*ScriptedRunner)(nil)

// NewScriptedRunner creates a runner serving results in order.
func NewScriptedRunner(results ...core.RunResult) *ScriptedRunner {
	return &ScriptedRunner{results: results}
}

// Runs reports how many times RunTests was called.
func (r *ScriptedRunner) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.runs
}

// RunTests implements core.TestRunner.
func (r *ScriptedRunner) RunTests(ctx context.Context, _, _ string) (core.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return core.RunResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs++

	if len(r.results) == 0 {
		return core.RunResult{Success: true, Failures: []core.Failure{}}, nil
	}

	res := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}

	return res, nil
}

// Pass is a successful run result.
func Pass() core.RunResult {
	return core.RunResult{Success: true, Output: "passed", Failures: []core.Failure{}}
}

// Fail is a failed run result carrying failures.
func Fail(failures ...core.Failure) core.RunResult {
	return core.RunResult{Success: false, Output: "failed", Failures: failures}
}
