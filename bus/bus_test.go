package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WhitenWhiten/CodeTeam/core"
)

type closer interface {
	core.Bus
	Close() error
}

func flavors() map[string]func() core.Bus {
	return map[string]func() core.Bus{
		"mailbox":  func() core.Bus { return NewMailbox() },
		"channels": func() core.Bus { return NewChannels() },
	}
}

func cleanup(t *testing.T, b core.Bus) {
	if c, ok := b.(closer); ok {
		t.Cleanup(func() { _ = c.Close() })
	}
}

func TestBus_FIFOPerTopic(t *testing.T) {
	for name, mk := range flavors() {
		t.Run(name, func(t *testing.T) {
			b := mk()
			cleanup(t, b)

			for i := 0; i < 5; i++ {
				b.Emit("a", i)
			}
			b.Emit("b", "other")

			assert.Equal(t, 5, b.Len("a"))
			assert.Equal(t, 1, b.Len("b"))

			for i := 0; i < 5; i++ {
				v, err := b.Take(context.Background(), "a", time.Second)
				require.NoError(t, err)
				assert.Equal(t, i, v)
			}

			assert.Equal(t, 0, b.Len("a"))
			assert.Equal(t, 1, b.Len("b"))
		})
	}
}

func TestBus_TakeTimeout(t *testing.T) {
	for name, mk := range flavors() {
		t.Run(name, func(t *testing.T) {
			b := mk()
			cleanup(t, b)

			start := time.Now()
			_, err := b.Take(context.Background(), "empty", 20*time.Millisecond)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrTimeout)
			assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
		})
	}
}

func TestBus_TakeCancelled(t *testing.T) {
	for name, mk := range flavors() {
		t.Run(name, func(t *testing.T) {
			b := mk()
			cleanup(t, b)

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(10 * time.Millisecond)
				cancel()
			}()

			_, err := b.Take(ctx, "empty", 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, core.ErrTimeout)
		})
	}
}

func TestBus_TakeWakesOnEmit(t *testing.T) {
	for name, mk := range flavors() {
		t.Run(name, func(t *testing.T) {
			b := mk()
			cleanup(t, b)

			go func() {
				time.Sleep(10 * time.Millisecond)
				b.Emit("t", "hello")
			}()

			v, err := b.Take(context.Background(), "t", time.Second)
			require.NoError(t, err)
			assert.Equal(t, "hello", v)
		})
	}
}

func TestBus_ConcurrentProducersDeliverEverything(t *testing.T) {
	for name, mk := range flavors() {
		t.Run(name, func(t *testing.T) {
			b := mk()
			cleanup(t, b)

			const producers, each = 4, 25

			var wg sync.WaitGroup
			for p := 0; p < producers; p++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < each; i++ {
						b.Emit("t", i)
					}
				}()
			}

			assert.True(t, b.WaitForCount(context.Background(), "t", producers*each, 2*time.Second))
			wg.Wait()
			assert.Equal(t, 0, b.Len("t"))
		})
	}
}

func TestBus_WaitForCountDrains(t *testing.T) {
	for name, mk := range flavors() {
		t.Run(name, func(t *testing.T) {
			b := mk()
			cleanup(t, b)

			assert.True(t, b.WaitForCount(context.Background(), "done", 0, time.Millisecond))

			// Three signals for a wait of two: the surplus stays queued and
			// satisfies a later wait early.
			for i := 0; i < 3; i++ {
				b.Emit("done", i)
			}

			assert.True(t, b.WaitForCount(context.Background(), "done", 2, time.Second))
			assert.Equal(t, 1, b.Len("done"))
			assert.True(t, b.WaitForCount(context.Background(), "done", 1, 10*time.Millisecond))

			// Fewer signals than expected: the wait times out after consuming
			// what was there.
			b.Emit("done", "only")
			assert.False(t, b.WaitForCount(context.Background(), "done", 2, 20*time.Millisecond))
			assert.Equal(t, 0, b.Len("done"))
		})
	}
}

func TestChannels_Close(t *testing.T) {
	b := NewChannels()
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	b.Emit("t", 1)
	assert.Equal(t, 0, b.Len("t"))

	_, err := b.Take(context.Background(), "t", time.Second)
	assert.Error(t, err)
}

func TestBarrier_RoundTagging(t *testing.T) {
	for name, mk := range flavors() {
		t.Run(name, func(t *testing.T) {
			b := mk()
			cleanup(t, b)

			barrier := NewBarrier(b)

			b.Emit(core.TopicDone, core.Completion{TaskID: "late", Path: "a.py", Round: 0})
			b.Emit(core.TopicDone, "garbage")
			b.Emit(core.TopicDone, core.Completion{TaskID: "t1", Path: "a.py", Round: 1})
			b.Emit(core.TopicDone, core.Completion{TaskID: "t2", Path: "b.py", Round: 1, Err: errors.New("boom")})

			got, err := barrier.Await(context.Background(), 1, 2, time.Second)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "t1", got[0].TaskID)
			assert.True(t, got[1].Failed())
			assert.Equal(t, 0, b.Len(core.TopicDone))
		})
	}
}

func TestBarrier_Timeout(t *testing.T) {
	b := NewMailbox()
	barrier := NewBarrier(b)

	b.Emit(core.TopicDone, core.Completion{TaskID: "t1", Round: 2})
	b.Emit(core.TopicDone, core.Completion{TaskID: "stale", Round: 1})

	got, err := barrier.Await(context.Background(), 2, 2, 30*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrRoundTimeout)
	assert.Len(t, got, 1)

	got, err = barrier.Await(context.Background(), 3, 0, time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBarrier_CustomTopic(t *testing.T) {
	b := NewMailbox()
	barrier := NewBarrier(b, func(o *BarrierOptions) { o.Topic = "custom" })

	b.Emit(core.TopicDone, core.Completion{TaskID: "ignored", Round: 1})
	b.Emit("custom", core.Completion{TaskID: "t1", Round: 1})

	got, err := barrier.Await(context.Background(), 1, 1, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "t1", got[0].TaskID)
	assert.Equal(t, 1, b.Len(core.TopicDone))
}
