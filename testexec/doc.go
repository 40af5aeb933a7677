// Package testexec implements the test-execution boundary: it runs the test
// command of a generated repository in a shell and turns the output into
// attributed failures.
//
// A run that exceeds its timeout is reported as a failed RunResult with a
// single unattributed failure, never as an error. Errors are reserved for
// commands that cannot be started and for cancellation by the caller.
package testexec
