// Package engine implements the orchestration layer of CodeTeam.
//
// The Engine drives one run per question through a fixed sequence of stages
// and owns every resource the run creates: the repository, the commit
// history, the bus and the worker pool.
//
// # Stages
//
//	plan        architects propose design plans concurrently; invalid
//	            proposals are discarded
//	select      the selector picks one surviving plan
//	init_repo   the declared tree is materialized and committed
//	init_tests  QA writes the declared test files
//	implement   every developer implements its files, round 0
//	converge    test, attribute failures, dispatch fixes, repeat
//	shutdown    workers receive the exit signal and are joined
//
// A failing stage aborts the run. Run returns the partial Result together
// with a *StageError naming the stage, the repository root and the number of
// commits recorded so far.
//
// # Usage
//
//	e := engine.New(func(o *engine.Options) {
//	    o.Generator = generation.New(model, nil)
//	    o.History = engine.SQLiteHistory()
//	    o.Logger = logger
//	})
//
//	res, err := e.Run(ctx, "Build a CLI that greets the user")
//	if err != nil {
//	    var se *engine.StageError
//	    if errors.As(err, &se) {
//	        log.Printf("aborted at %s", se.Stage)
//	    }
//	}
//
// # Concurrency
//
// Runs are isolated from each other and bounded by Config.MaxConcurrentRuns.
// Stop cancels a run by id; the run still stops its workers and closes its
// history before returning.
//
// # Callbacks
//
// Callbacks observe stage boundaries, convergence rounds and failures. An
// error from a before_stage or after_stage callback aborts the run, which
// makes PlanCheckCallback usable as a veto on the selected plan.
package engine
