package repository

import (
	"context"
	"sync"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// History is the append-only commit log behind a Manager.
type History interface {
	// Append records c and returns it with its assigned ID.
	Append(ctx context.Context, c Commit) (Commit, error)
	// List returns every commit oldest first.
	List(ctx context.Context) ([]Commit, error)
	Close() error
}

// MemoryHistory is a process-local History.
type MemoryHistory struct {
	mu      sync.RWMutex
	commits []Commit
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// Append implements History.
func (h *MemoryHistory) Append(_ context.Context, c Commit) (Commit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.ID == "" {
		c.ID = core.NewID()
	}

	c.Paths = append([]string(nil), c.Paths...)
	h.commits = append(h.commits, c)

	return c, nil
}

// List implements History.
func (h *MemoryHistory) List(_ context.Context) ([]Commit, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Commit, len(h.commits))
	copy(out, h.commits)

	return out, nil
}

// Close implements History.
func (h *MemoryHistory) Close() error { return nil }
