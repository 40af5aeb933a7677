// Package bus provides the topic-keyed task bus shared by the orchestrator
// and the workers, in two interchangeable flavors behind core.Bus:
//
//   - Mailbox: a mutex and condition variable guard per-topic slices;
//     Take blocks the calling goroutine. Used by the threaded scheduler.
//   - Channels: every topic is owned by an actor goroutine that hands the
//     queue head out over a channel; Take is a select that can be abandoned
//     at any time. Used by the cooperative scheduler.
//
// Both guarantee FIFO delivery per topic and unbounded, non-blocking Emit.
//
// WaitForCount is a draining barrier: it consumes the signals it counts. If a
// round emits more completions than the matching WaitForCount expects, the
// surplus is left on the topic and is consumed by the next round's wait,
// which then returns early; if it emits fewer, the wait runs into its
// timeout. Barrier layers round tagging on top so stale completions are
// discarded instead of counted.
package bus
