// Package convergence drives the test and fix cycle after the initial
// implementation round.
//
// QA writes the test suite and runs it. Attribute maps the failures of a run
// to fix tasks for the owning developers, broadcasting unattributable
// failures to every owner. Loop repeats test, attribute, dispatch and wait
// until the suite passes, no fix can be produced, or the round budget is
// spent.
package convergence
