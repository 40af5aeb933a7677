// Package worker implements the developer workers and the pool that owns
// them.
//
// A Worker consumes tasks from its own topic, implements or fixes the file
// named by the task, and emits exactly one core.Completion on the done topic
// for every implement or fix task it takes, successful or not. Workers see
// other files only through the brief store.
//
// Two scheduling modes share the same code. In threaded mode every worker
// runs freely on its own goroutine. In cooperative mode a single scheduling
// token serializes processing: a worker holds it while handling a task and
// gives it up while waiting on the bus and while a generation call is in
// flight.
package worker
