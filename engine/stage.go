package engine

import "fmt"

// Stage names one step of a run.
type Stage string

const (
	StagePlan      Stage = "plan"
	StageSelect    Stage = "select"
	StageInitRepo  Stage = "init_repo"
	StageInitTests Stage = "init_tests"
	StageImplement Stage = "implement"
	StageConverge  Stage = "converge"
	StageShutdown  Stage = "shutdown"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StagePlan, StageSelect, StageInitRepo, StageInitTests, StageImplement, StageConverge, StageShutdown}

// StageError reports the stage a run was aborted at together with the
// repository state committed before the failure.
type StageError struct {
	Stage Stage
	RunID string
	// RepoRoot is empty when the run failed before the repository existed.
	RepoRoot string
	// Commits counts the commits recorded before the failure.
	Commits int
	Err     error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.RepoRoot == "" {
		return fmt.Sprintf("run %s failed at %s: %v", e.RunID, e.Stage, e.Err)
	}

	return fmt.Sprintf("run %s failed at %s (%s, %d commits): %v", e.RunID, e.Stage, e.RepoRoot, e.Commits, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.Err }
