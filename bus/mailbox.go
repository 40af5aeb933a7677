package bus

import (
	"context"
	"sync"
	"time"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// Mailbox is the blocking Bus implementation.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	topics map[string][]any
}

var _ core.Bus = (*Mailbox)(nil)

// NewMailbox creates an empty Mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{topics: make(map[string][]any)}
	m.cond = sync.NewCond(&m.mu)

	return m
}

// Emit implements core.Bus.
func (m *Mailbox) Emit(topic string, payload any) {
	m.mu.Lock()
	m.topics[topic] = append(m.topics[topic], payload)
	m.mu.Unlock()

	m.cond.Broadcast()
}

// Take implements core.Bus. It blocks the calling goroutine.
func (m *Mailbox) Take(ctx context.Context, topic string, timeout time.Duration) (any, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	// Wake the waiters when the deadline passes or the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.topics[topic]) == 0 {
		if ctx.Err() != nil {
			return nil, waitErr(ctx, topic)
		}

		m.cond.Wait()
	}

	q := m.topics[topic]
	head := q[0]
	q[0] = nil
	m.topics[topic] = q[1:]

	return head, nil
}

// WaitForCount implements core.Bus.
func (m *Mailbox) WaitForCount(ctx context.Context, topic string, expected int, timeout time.Duration) bool {
	return waitForCount(ctx, m, topic, expected, timeout)
}

// Len implements core.Bus.
func (m *Mailbox) Len(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.topics[topic])
}
