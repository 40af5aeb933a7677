package core

import "fmt"

// TaskKind tags the variant carried by a Task.
type TaskKind int

const (
	// TaskImplement asks the owner to produce the initial content of a file.
	TaskImplement TaskKind = iota
	// TaskFix asks the owner to repair a file given a failure diagnostic.
	TaskFix
	// TaskExit stops the receiving worker.
	TaskExit
)

// String returns the wire name of the kind.
func (k TaskKind) String() string {
	switch k {
	case TaskImplement:
		return "implement"
	case TaskFix:
		return "fix"
	case TaskExit:
		return "exit"
	default:
		return fmt.Sprintf("TaskKind(%d)", int(k))
	}
}

// Task is a unit of work posted to a worker topic. Use the constructors; the
// zero value is an implement task without a path and is rejected by workers.
type Task struct {
	ID         string
	Kind       TaskKind
	Path       string
	Round      int
	Diagnostic *Failure
}

// ImplementTask creates an implement task for a path in the given round.
func ImplementTask(path string, round int) Task {
	return Task{ID: NewID(), Kind: TaskImplement, Path: path, Round: round}
}

// FixTask creates a fix task carrying the failure that triggered it.
func FixTask(path string, round int, diagnostic Failure) Task {
	d := diagnostic
	return Task{ID: NewID(), Kind: TaskFix, Path: path, Round: round, Diagnostic: &d}
}

// ExitTask creates a shutdown task.
func ExitTask() Task {
	return Task{ID: NewID(), Kind: TaskExit}
}

// Completion is the signal a worker emits on the completion topic after
// every implement or fix task, whether or not the task succeeded.
type Completion struct {
	TaskID   string
	WorkerID string
	Path     string
	Kind     TaskKind
	Round    int
	Err      error
}

// Failed reports whether the task behind the completion failed.
func (c Completion) Failed() bool { return c.Err != nil }

// Well-known topic names.
const (
	// TopicDone receives one Completion per processed implement/fix task.
	TopicDone = "dev_done"
	// TopicQAResult receives the RunResult of every test run.
	TopicQAResult = "qa_result"
)

// WorkerTopic returns the task topic a worker consumes from.
func WorkerTopic(workerID string) string {
	return "dev_task:" + workerID
}
