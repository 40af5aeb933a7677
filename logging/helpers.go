package logging

import "time"

// Outcome logs okMsg at info level, or failMsg at error level with err
// attached, on any Logger.
func Outcome(l Logger, okMsg, failMsg string, err error, args ...any) {
	l = OrNoOp(l)

	if err != nil {
		l.Error(failMsg, append(args, "error", err.Error())...)
		return
	}

	l.Info(okMsg, args...)
}

// Generation logs a generation call outcome on any Logger.
func Generation(l Logger, kind string, attempts int, dur time.Duration, err error) {
	if rl, ok := l.(*RunLogger); ok {
		rl.LogGeneration(kind, attempts, dur, err)
		return
	}

	Outcome(l, "Generation completed", "Generation failed", err, "kind", kind, "attempts", attempts, "duration", dur)
}

// Stage logs a pipeline stage outcome on any Logger.
func Stage(l Logger, stage string, dur time.Duration, err error) {
	if rl, ok := l.(*RunLogger); ok {
		rl.LogStage(stage, dur, err)
		return
	}

	Outcome(l, "Stage completed", "Stage failed", err, "stage", stage, "duration", dur)
}

// Task logs a worker task outcome on any Logger.
func Task(l Logger, worker, kind, path string, dur time.Duration, err error) {
	if rl, ok := l.(*RunLogger); ok {
		rl.LogTask(worker, kind, path, dur, err)
		return
	}

	Outcome(l, "Task completed", "Task failed", err, "worker", worker, "task", kind, "path", path, "duration", dur)
}
