package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// withTimeout derives a context whose deadline cause is core.ErrTimeout.
// A non-positive timeout means no deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeoutCause(ctx, timeout, core.ErrTimeout)
}

// waitErr converts a finished context into the error returned by Take.
func waitErr(ctx context.Context, topic string) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, core.ErrTimeout) {
		return fmt.Errorf("take %s: %w", topic, core.ErrTimeout)
	}

	return fmt.Errorf("take %s: %w", topic, cause)
}

type taker interface {
	Take(ctx context.Context, topic string, timeout time.Duration) (any, error)
}

// waitForCount consumes expected payloads from topic under one deadline.
func waitForCount(ctx context.Context, b taker, topic string, expected int, timeout time.Duration) bool {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	for i := 0; i < expected; i++ {
		if _, err := b.Take(ctx, topic, 0); err != nil {
			return false
		}
	}

	return true
}
