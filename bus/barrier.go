package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
)

// BarrierOptions configures a Barrier.
type BarrierOptions struct {
	// Topic carries the completions. Defaults to core.TopicDone.
	Topic  string
	Logger logging.Logger
}

// Barrier waits for the completions of one dispatch round. Completions
// tagged with another round, and payloads that are not completions, are
// discarded, so a late signal can neither satisfy nor starve a later wait.
type Barrier struct {
	bus  core.Bus
	opts BarrierOptions
}

// NewBarrier creates a Barrier reading from bus.
func NewBarrier(bus core.Bus, optFns ...func(o *BarrierOptions)) *Barrier {
	opts := BarrierOptions{
		Topic:  core.TopicDone,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Barrier{bus: bus, opts: opts}
}

// Await collects expected completions tagged with round. It returns the
// completions gathered so far together with core.ErrRoundTimeout when the
// deadline passes first.
func (b *Barrier) Await(ctx context.Context, round, expected int, timeout time.Duration) ([]core.Completion, error) {
	got := make([]core.Completion, 0, max(expected, 0))
	if expected <= 0 {
		return got, nil
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	for len(got) < expected {
		payload, err := b.bus.Take(ctx, b.opts.Topic, 0)
		if err != nil {
			if errors.Is(err, core.ErrTimeout) {
				return got, fmt.Errorf("%w: round %d received %d of %d completions", core.ErrRoundTimeout, round, len(got), expected)
			}

			return got, err
		}

		c, ok := payload.(core.Completion)
		if !ok {
			b.opts.Logger.Warn("discarding unexpected payload", "topic", b.opts.Topic, "type", fmt.Sprintf("%T", payload))
			continue
		}

		if c.Round != round {
			b.opts.Logger.Warn("discarding stale completion", "round", round, "completion_round", c.Round, "path", c.Path, "worker_id", c.WorkerID)
			continue
		}

		got = append(got, c)
	}

	return got, nil
}
