package convergence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WhitenWhiten/CodeTeam/bus"
	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
)

// StopReason tells why a Loop ended.
type StopReason string

const (
	// StopSuccess means the suite passed.
	StopSuccess StopReason = "success"
	// StopNoFixes means the failures produced no fix task.
	StopNoFixes StopReason = "no_actionable_failures"
	// StopBudget means every round was spent.
	StopBudget StopReason = "budget_exhausted"
)

// Tester runs the suite.
type Tester interface {
	RunTests(ctx context.Context) (core.RunResult, error)
}

// Dispatcher posts a task to the owner of its path.
type Dispatcher interface {
	Dispatch(task core.Task) error
}

// RoundReport describes one round of the loop.
type RoundReport struct {
	Round       int
	Result      core.RunResult
	Fixes       []Fix
	Completions []core.Completion
	Duration    time.Duration
}

// Outcome is the result of a Loop run.
type Outcome struct {
	Reason StopReason
	// Rounds counts the fix rounds dispatched.
	Rounds  int
	Final   core.RunResult
	Reports []RoundReport
}

// Success reports whether the last test run passed.
func (o *Outcome) Success() bool { return o != nil && o.Final.Success }

// LoopOptions configures a Loop.
type LoopOptions struct {
	// MaxRounds bounds the number of fix rounds.
	MaxRounds int
	// RoundTimeout bounds the wait for the completions of one round.
	RoundTimeout time.Duration
	// FirstRound is the round tag of the first fix round. The initial
	// implementation round is round 0.
	FirstRound int
	// VerifyFinal runs the suite once more after the last fix round so the
	// outcome reflects the final tree. With MaxRounds zero this is the only
	// test run.
	VerifyFinal bool
	// OnRound is called after every test run.
	OnRound func(RoundReport)
	Logger  logging.Logger
}

// Loop runs test, attribute, dispatch and wait rounds.
type Loop struct {
	tester   Tester
	dispatch Dispatcher
	bus      core.Bus
	barrier  *bus.Barrier
	owners   map[string]string
	opts     LoopOptions
}

// NewLoop creates a loop over the given collaborators. owners maps every
// developer-owned path to its developer id.
func NewLoop(tester Tester, dispatch Dispatcher, b core.Bus, owners map[string]string, optFns ...func(o *LoopOptions)) *Loop {
	opts := LoopOptions{
		MaxRounds:    2,
		RoundTimeout: 10 * time.Minute,
		FirstRound:   1,
		VerifyFinal:  true,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Loop{
		tester:   tester,
		dispatch: dispatch,
		bus:      b,
		barrier:  bus.NewBarrier(b, func(o *bus.BarrierOptions) { o.Logger = opts.Logger }),
		owners:   owners,
		opts:     opts,
	}
}

// Run executes at most MaxRounds fix rounds. It stops early when the suite
// passes or when no fix task can be produced. A round whose completions do
// not arrive in time fails the run with core.ErrRoundTimeout; the returned
// outcome still holds the rounds completed so far.
func (l *Loop) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{Reason: StopBudget}

	for i := 0; i < l.opts.MaxRounds; i++ {
		round := l.opts.FirstRound + i
		start := time.Now()

		res, err := l.test(ctx)
		if err != nil {
			return out, err
		}

		out.Final = res
		report := RoundReport{Round: round, Result: res}

		if res.Success {
			out.Reason = StopSuccess
			l.report(out, report, start)
			l.opts.Logger.Info("All tests passed", "round", round)

			return out, nil
		}

		report.Fixes = Attribute(res.Failures, l.owners)
		if len(report.Fixes) == 0 {
			out.Reason = StopNoFixes
			l.report(out, report, start)
			l.opts.Logger.Warn("No actionable failures; stopping", "round", round, "failures", len(res.Failures))

			return out, nil
		}

		for _, fx := range report.Fixes {
			if err := l.dispatch.Dispatch(core.FixTask(fx.Path, round, fx.Diagnostic())); err != nil {
				l.report(out, report, start)
				return out, fmt.Errorf("dispatch fix for %s: %w", fx.Path, err)
			}
		}

		out.Rounds++

		l.opts.Logger.Info("Fix round dispatched", "round", round, "fixes", len(report.Fixes), "failures", len(res.Failures))

		report.Completions, err = l.barrier.Await(ctx, round, len(report.Fixes), l.opts.RoundTimeout)
		l.report(out, report, start)

		if err != nil {
			return out, err
		}

		for _, c := range report.Completions {
			if c.Failed() {
				l.opts.Logger.Warn("Fix task failed", "round", round, "path", c.Path, "worker_id", c.WorkerID, "error", c.Err.Error())
			}
		}
	}

	if l.opts.VerifyFinal {
		res, err := l.test(ctx)
		if err != nil {
			return out, err
		}

		out.Final = res
		if res.Success {
			out.Reason = StopSuccess
		}
	}

	l.opts.Logger.Info("Convergence finished", "reason", string(out.Reason), "rounds", out.Rounds, "success", out.Final.Success)

	return out, nil
}

func (l *Loop) test(ctx context.Context) (core.RunResult, error) {
	res, err := l.tester.RunTests(ctx)
	if err != nil {
		return res, err
	}

	l.bus.Emit(core.TopicQAResult, res)

	return res, nil
}

func (l *Loop) report(out *Outcome, r RoundReport, start time.Time) {
	r.Duration = time.Since(start)
	out.Reports = append(out.Reports, r)

	if l.opts.OnRound != nil {
		l.opts.OnRound(r)
	}
}

// IsRoundTimeout reports whether err is a barrier timeout.
func IsRoundTimeout(err error) bool { return errors.Is(err, core.ErrRoundTimeout) }
