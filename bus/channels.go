package bus

import (
	"context"
	"sync"
	"time"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// Channels is the channel-backed Bus implementation. Each topic is owned by
// an actor goroutine holding an unbounded queue; Emit hands payloads to the
// actor and Take receives the queue head. Close stops all actors.
type Channels struct {
	mu        sync.Mutex
	topics    map[string]*topicActor
	done      chan struct{}
	closeOnce sync.Once
}

var _ core.Bus = (*Channels)(nil)

type topicActor struct {
	in     chan any
	out    chan any
	lenReq chan chan int
}

// NewChannels creates an empty Channels bus.
func NewChannels() *Channels {
	return &Channels{topics: make(map[string]*topicActor), done: make(chan struct{})}
}

func (c *Channels) actor(topic string) *topicActor {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.topics[topic]
	if !ok {
		a = &topicActor{in: make(chan any, 64), out: make(chan any), lenReq: make(chan chan int)}
		c.topics[topic] = a

		go a.run(c.done)
	}

	return a
}

func (a *topicActor) run(done <-chan struct{}) {
	var queue []any

	for {
		var (
			out  chan any
			head any
		)

		if len(queue) > 0 {
			out = a.out
			head = queue[0]
		}

		select {
		case v := <-a.in:
			queue = append(queue, v)
		case out <- head:
			queue[0] = nil
			queue = queue[1:]
		case r := <-a.lenReq:
			// Pending sends are counted too.
			r <- len(queue) + len(a.in)
		case <-done:
			return
		}
	}
}

// Emit implements core.Bus. Payloads emitted after Close are dropped.
func (c *Channels) Emit(topic string, payload any) {
	a := c.actor(topic)

	select {
	case a.in <- payload:
	case <-c.done:
	}
}

// Take implements core.Bus.
func (c *Channels) Take(ctx context.Context, topic string, timeout time.Duration) (any, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	a := c.actor(topic)

	select {
	case v := <-a.out:
		return v, nil
	case <-ctx.Done():
		return nil, waitErr(ctx, topic)
	case <-c.done:
		return nil, context.Canceled
	}
}

// WaitForCount implements core.Bus.
func (c *Channels) WaitForCount(ctx context.Context, topic string, expected int, timeout time.Duration) bool {
	return waitForCount(ctx, c, topic, expected, timeout)
}

// Len implements core.Bus.
func (c *Channels) Len(topic string) int {
	a := c.actor(topic)
	r := make(chan int, 1)

	select {
	case a.lenReq <- r:
		return <-r
	case <-c.done:
		return 0
	}
}

// Close stops every topic actor. Further Take calls fail immediately.
func (c *Channels) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
